package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/minio/minio-go/v7"

	"github.com/bru02/zhm/server/internal/config"
)

// exerciseBackend runs the behaviour every Backend must share.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()
	key := RoomKey("main", "sql-room")

	if _, err := b.Get(ctx, key); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get on empty backend: got %v, want ErrNotFound", err)
	}

	if err := b.Put(ctx, key, []byte(`[{"name":"a.sql"}]`)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := b.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if string(got) != `[{"name":"a.sql"}]` {
		t.Errorf("Get: got %s", got)
	}

	if err := b.Put(ctx, key, []byte(`[]`)); err != nil {
		t.Fatalf("Put overwrite: %v", err)
	}
	got, err = b.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get after overwrite: %v", err)
	}
	if string(got) != `[]` {
		t.Errorf("Get after overwrite: got %s, want []", got)
	}

	other := RoomKey("main", "other-room")
	if _, err := b.Get(ctx, other); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get other room: got %v, want ErrNotFound", err)
	}
}

func TestRoomKey(t *testing.T) {
	if got := RoomKey("main", "sql-room"); got != "rooms/main/sql-room/files" {
		t.Errorf("RoomKey: got %q", got)
	}
}

func TestMemory(t *testing.T) {
	exerciseBackend(t, NewMemory())
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	v := []byte("abc")
	m.Put(ctx, "k", v) //nolint:errcheck
	v[0] = 'X'
	got, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("stored value aliased caller slice: got %s", got)
	}
}

func TestFile(t *testing.T) {
	f, err := NewFile(filepath.Join(t.TempDir(), "snapshots"))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	exerciseBackend(t, f)
}

func TestFile_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	f1, _ := NewFile(dir)
	if err := f1.Put(ctx, "rooms/main/r/files", []byte("[1]")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	f2, _ := NewFile(dir)
	got, err := f2.Get(ctx, "rooms/main/r/files")
	if err != nil || string(got) != "[1]" {
		t.Errorf("Get after reopen: got %s, %v", got, err)
	}
}

func TestSQLite(t *testing.T) {
	s, err := NewSQLite(filepath.Join(t.TempDir(), "relay.db"))
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	exerciseBackend(t, s)
}

func TestSQLite_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.db")
	ctx := context.Background()

	s1, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("NewSQLite: %v", err)
	}
	if err := s1.Put(ctx, "k", []byte("v1")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	s1.Close()

	s2, err := NewSQLite(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	got, err := s2.Get(ctx, "k")
	if err != nil || string(got) != "v1" {
		t.Errorf("Get after reopen: got %s, %v", got, err)
	}
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr(), "", 0)
	t.Cleanup(func() { r.Close() })
	exerciseBackend(t, r)

	if ttl := mr.TTL(RoomKey("main", "sql-room")); ttl != 0 {
		t.Errorf("room key TTL: got %v, want none", ttl)
	}
}

func TestRedis_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedis(mr.Addr(), "", 0)
	defer r.Close()
	mr.Close()

	_, err := r.Get(context.Background(), "k")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Get against closed server: got %v, want a transport error", err)
	}
}

// fakeS3 is an in-memory S3Client.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	keys    []string
}

func newFakeS3() *fakeS3 { return &fakeS3{objects: make(map[string][]byte)} }

func (f *fakeS3) PutObject(_ context.Context, bucket, key string, r io.Reader, size int64, _ minio.PutObjectOptions) (minio.UploadInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return minio.UploadInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[bucket+"/"+key] = data
	f.keys = append(f.keys, key)
	return minio.UploadInfo{Bucket: bucket, Key: key, Size: size}, nil
}

func (f *fakeS3) GetObject(_ context.Context, bucket, key string, _ minio.GetObjectOptions) (S3Object, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[bucket+"/"+key]
	return &fakeObject{Reader: bytes.NewReader(data), missing: !ok}, nil
}

type fakeObject struct {
	*bytes.Reader
	missing bool
}

func (o *fakeObject) Close() error { return nil }

func (o *fakeObject) Stat() (minio.ObjectInfo, error) {
	if o.missing {
		return minio.ObjectInfo{}, minio.ErrorResponse{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return minio.ObjectInfo{Size: o.Size()}, nil
}

func TestS3(t *testing.T) {
	exerciseBackend(t, NewS3WithClient(newFakeS3(), "relay", ""))
}

func TestS3_Prefix(t *testing.T) {
	fake := newFakeS3()
	s := NewS3WithClient(fake, "relay", "snapshots")
	if err := s.Put(context.Background(), "rooms/main/r/files", []byte("[]")); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if len(fake.keys) != 1 || fake.keys[0] != "snapshots/rooms/main/r/files" {
		t.Errorf("object keys: got %v", fake.keys)
	}
}

func TestNew_Backends(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.StorageConfig
		want string
	}{
		{"default", config.StorageConfig{}, "*storage.Memory"},
		{"memory", config.StorageConfig{Backend: "memory"}, "*storage.Memory"},
		{"file", config.StorageConfig{Backend: "file", Path: filepath.Join(dir, "files")}, "*storage.File"},
		{"sqlite", config.StorageConfig{Backend: "sqlite", Path: filepath.Join(dir, "relay.db")}, "*storage.SQLite"},
		{"redis", config.StorageConfig{Backend: "redis", Redis: config.RedisConfig{Addr: "localhost:6379"}}, "*storage.Redis"},
		{"s3", config.StorageConfig{Backend: "s3", S3: config.S3Config{Endpoint: "localhost:9000", Bucket: "relay"}}, "*storage.S3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			b, err := New(tc.cfg)
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			defer b.Close()
			if got := fmt.Sprintf("%T", b); got != tc.want {
				t.Errorf("backend type: got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestNew_UnknownBackend(t *testing.T) {
	if _, err := New(config.StorageConfig{Backend: "tape"}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}
