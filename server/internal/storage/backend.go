package storage

import (
	"context"
	"errors"
	"path"
)

// ErrNotFound is returned by Get when no value is stored under the key.
var ErrNotFound = errors.New("storage: key not found")

// Backend is a durable key-value store. Put overwrites any previous value.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// RoomKey returns the key holding the file snapshot of a room.
func RoomKey(party, room string) string {
	return path.Join("rooms", party, room, "files")
}
