package viewer

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// --- helpers ---

// safeBuffer is a bytes.Buffer guarded for concurrent use.
type safeBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *safeBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *safeBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// startStream serves a WebSocket that writes msgs in order. When hold is
// true the connection stays open until the client goes away; otherwise it
// is closed normally after the last message.
func startStream(t *testing.T, msgs []string, hold bool) string {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, m := range msgs {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(m)); err != nil {
				return
			}
		}
		if hold {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}
		conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// --- tests ---

func TestViewer_RendersInitAndUpdates(t *testing.T) {
	url := startStream(t, []string{
		`{"type":"init","files":[{"name":"b.sql","content":"select b;","updatedAt":20},{"name":"a.sql","content":"select a;","updatedAt":10}],"latest":"b.sql"}`,
		`{"type":"file-update","file":{"name":"b.sql","content":"select bb;","updatedAt":30}}`,
		`{"type":"file-update","file":{"name":"a.sql","content":"select aa;","updatedAt":40}}`,
	}, false)

	out := &safeBuffer{}
	v := New(url, out)
	if err := v.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The active file stays b.sql; the update to a.sql does not re-render.
	want := "── b.sql ── [b.sql | a.sql]\nselect b;\n" +
		"── b.sql ── [b.sql | a.sql]\nselect bb;\n"
	if got := out.String(); got != want {
		t.Errorf("output:\ngot  %q\nwant %q", got, want)
	}
	if v.Active() != "b.sql" || v.Buffer() != "select bb;" {
		t.Errorf("state: got %q/%q, want b.sql/select bb;", v.Active(), v.Buffer())
	}
}

func TestViewer_EmptyRoomThenFirstFile(t *testing.T) {
	url := startStream(t, []string{
		`{"type":"init","files":[]}`,
		`{"type":"file-update","file":{"name":"new.sql","content":"select 1;","updatedAt":1}}`,
	}, false)

	out := &safeBuffer{}
	v := New(url, out)
	if err := v.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := out.String(), "── new.sql ──\nselect 1;\n"; got != want {
		t.Errorf("output: got %q, want %q", got, want)
	}
}

func TestViewer_PruneClearsView(t *testing.T) {
	url := startStream(t, []string{
		`{"type":"init","files":[{"name":"a.sql","content":"x","updatedAt":1}],"latest":"a.sql"}`,
		`{"type":"init","files":[]}`,
	}, false)

	out := &safeBuffer{}
	v := New(url, out)
	if err := v.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.HasSuffix(out.String(), "── (no files) ──\n") {
		t.Errorf("output: got %q, want it to end with the empty frame", out.String())
	}
	if v.Active() != "" {
		t.Errorf("Active: got %q, want empty", v.Active())
	}
}

func TestViewer_SkipsMalformedMessages(t *testing.T) {
	url := startStream(t, []string{
		`not json`,
		`{"type":"init","files":[{"name":"a.sql","content":"ok","updatedAt":1}]}`,
	}, false)

	out := &safeBuffer{}
	if err := New(url, out).Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := out.String(), "── a.sql ──\nok\n"; got != want {
		t.Errorf("output: got %q, want %q", got, want)
	}
}

func TestViewer_ReturnsOnCancel(t *testing.T) {
	url := startStream(t, []string{`{"type":"init","files":[]}`}, true)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- New(url, &safeBuffer{}).Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run after cancel: got %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestViewer_DialError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	err := New("ws"+strings.TrimPrefix(srv.URL, "http"), &safeBuffer{}).Run(context.Background())
	if err == nil {
		t.Fatal("Run against a non-WebSocket endpoint: expected error")
	}
}

func TestViewer_ClearScreen(t *testing.T) {
	url := startStream(t, []string{
		`{"type":"init","files":[{"name":"a.sql","content":"x","updatedAt":1}]}`,
	}, false)

	out := &safeBuffer{}
	v := New(url, out)
	v.Clear = true
	if err := v.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := out.String(), clearScreen+"── a.sql ──\nx\n"; got != want {
		t.Errorf("output: got %q, want %q", got, want)
	}
}
