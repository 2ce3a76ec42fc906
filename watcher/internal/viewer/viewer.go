package viewer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/bru02/zhm/pkg/protocol"
)

const (
	handshakeTimeout = 10 * time.Second
	clearScreen      = "\x1b[H\x1b[2J"
)

// Viewer follows a room over its WebSocket stream and renders the active
// file to an io.Writer every time the rendered text changes.
type Viewer struct {
	// Clear redraws each frame on a cleared screen instead of appending it.
	Clear bool

	url    string
	out    io.Writer
	dialer *websocket.Dialer

	mu sync.Mutex
	ws *protocol.Workspace
}

// New returns a Viewer for the room stream at url (ws:// or wss://).
func New(url string, out io.Writer) *Viewer {
	return &Viewer{
		url:    url,
		out:    out,
		dialer: &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		ws:     protocol.NewWorkspace(),
	}
}

// Run connects and renders until ctx is cancelled or the relay closes the
// connection. A cancelled ctx is not an error.
func (v *Viewer) Run(ctx context.Context) error {
	conn, _, err := v.dialer.DialContext(ctx, v.url, nil)
	if err != nil {
		return fmt.Errorf("viewer: dial %s: %w", v.url, err)
	}
	defer conn.Close()
	slog.Info("viewer: connected", "url", v.url)

	stop := context.AfterFunc(ctx, func() {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	})
	defer stop()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return fmt.Errorf("viewer: read: %w", err)
		}
		if err := v.handle(data); err != nil {
			slog.Warn("viewer: ignoring message", "err", err)
		}
	}
}

// Active returns the name of the file being rendered.
func (v *Viewer) Active() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ws.Active()
}

// Buffer returns the text currently rendered.
func (v *Viewer) Buffer() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.ws.Buffer()
}

func (v *Viewer) handle(data []byte) error {
	msg, err := protocol.Decode(data)
	if err != nil {
		return err
	}

	v.mu.Lock()
	edit := v.ws.Apply(msg)
	active, buffer, tabs := v.ws.Active(), v.ws.Buffer(), v.ws.Tabs()
	v.mu.Unlock()

	if !edit.Changed() {
		return nil
	}
	slog.Debug("viewer: render",
		"type", msg.Type,
		"file", active,
		"reset", edit.Reset,
		"from", edit.Patch.From,
		"to", edit.Patch.To,
		"insert", len(edit.Patch.Insert))
	if v.Clear {
		if _, err := io.WriteString(v.out, clearScreen); err != nil {
			return fmt.Errorf("viewer: render: %w", err)
		}
	}
	return render(v.out, active, tabs, buffer)
}

// render writes one frame: a header naming the active file and the other
// tabs, then the buffer.
func render(w io.Writer, active string, tabs []string, buffer string) error {
	if active == "" {
		_, err := io.WriteString(w, "── (no files) ──\n")
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "── %s ──", active)
	if len(tabs) > 1 {
		fmt.Fprintf(&b, " [%s]", strings.Join(tabs, " | "))
	}
	b.WriteString("\n")
	b.WriteString(buffer)
	if !strings.HasSuffix(buffer, "\n") {
		b.WriteString("\n")
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("viewer: render: %w", err)
	}
	return nil
}
