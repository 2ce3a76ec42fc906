package room

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/bru02/zhm/server/internal/store"
	"github.com/bru02/zhm/server/internal/ws"
)

// maxIngestBody bounds the size of a single ingest request.
const maxIngestBody = 8 << 20

// ServeHTTP dispatches on the part of the path after the room id:
//
//	POST        <room>/ingest  store one file
//	POST|DELETE <room>/prune   remove every file
//	GET         <room>[/state] files newest-first plus latest
//	WebSocket   <room>         join as a viewer
//
// The room's files are loaded before anything else happens.
func (r *Room) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if err := r.Load(req.Context()); err != nil {
		slog.Error("room: load failed", "party", r.Party, "room", r.ID, "err", err)
		jsonErr(w, http.StatusInternalServerError, "storage unavailable")
		return
	}

	switch sub := subPath(req.URL.Path, r.ID); sub {
	case "ingest":
		r.serveIngest(w, req)
	case "prune":
		r.servePrune(w, req)
	case "", "state":
		switch {
		case sub == "" && ws.IsUpgrade(req):
			r.serveConnect(w, req)
		case req.Method == http.MethodGet:
			r.serveState(w, req)
		default:
			jsonErr(w, http.StatusNotFound, "not found")
		}
	default:
		jsonErr(w, http.StatusNotFound, "not found")
	}
}

func (r *Room) serveIngest(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxIngestBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			r.metrics.IncRejected()
			jsonErr(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		jsonErr(w, http.StatusBadRequest, "read body")
		return
	}

	in, err := DecodeIngest(body)
	if err != nil {
		r.metrics.IncRejected()
		jsonErr(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := r.Ingest(req.Context(), in)
	if errors.Is(err, store.ErrInvalidRecord) {
		r.metrics.IncRejected()
		jsonErr(w, http.StatusBadRequest, ErrMissingField.Error())
		return
	}
	if err != nil {
		slog.Error("room: ingest failed", "party", r.Party, "room", r.ID, "err", err)
		jsonErr(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	jsonResp(w, http.StatusOK, IngestResponse{OK: true, Stored: rec})
}

func (r *Room) servePrune(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost && req.Method != http.MethodDelete {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	n, err := r.Prune(req.Context())
	if err != nil {
		slog.Error("room: prune failed", "party", r.Party, "room", r.ID, "err", err)
		jsonErr(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	jsonResp(w, http.StatusOK, PruneResponse{OK: true, Pruned: n})
}

func (r *Room) serveState(w http.ResponseWriter, req *http.Request) {
	resp, err := r.State(req.Context())
	if err != nil {
		jsonErr(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	jsonResp(w, http.StatusOK, resp)
}

func (r *Room) serveConnect(w http.ResponseWriter, req *http.Request) {
	conn, err := ws.Upgrade(w, req)
	if err != nil {
		// upgrader has already written the error response.
		return
	}
	if err := r.Connect(req.Context(), conn); err != nil {
		slog.Error("room: connect failed", "party", r.Party, "room", r.ID, "err", err)
	}
}

// subPath returns the path segments after the first one equal to id, joined
// with "/". A path that does not mention id is returned unchanged.
func subPath(path, id string) string {
	var segments []string
	for _, s := range strings.Split(path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	for i, s := range segments {
		if s == id {
			return strings.Join(segments[i+1:], "/")
		}
	}
	return path
}

// --- helpers ----------------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, errorResponse{Error: msg})
}
