package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/felixge/httpsnoop"
	"github.com/gorilla/mux"

	"github.com/bru02/zhm/server/internal/metrics"
	"github.com/bru02/zhm/server/internal/room"
)

// Handler is the HTTP entry point of the relay server.
type Handler struct {
	rooms   *room.Manager
	metrics *metrics.Registry
	router  *mux.Router
}

// New creates a Handler that serves rooms under /<prefix>/{party}/{room}.
// When uiDir is non-empty, unmatched paths are served from it with an
// index.html fallback.
func New(rooms *room.Manager, reg *metrics.Registry, prefix, uiDir string) http.Handler {
	h := &Handler{rooms: rooms, metrics: reg, router: mux.NewRouter()}
	r := h.router

	r.Use(logRequests)
	r.Methods(http.MethodGet).Path("/healthz").HandlerFunc(h.health)
	r.Methods(http.MethodGet).Path("/metrics").HandlerFunc(h.serveMetrics)

	roomPath := "/" + prefix + "/{party}/{room}"
	r.Path(roomPath).HandlerFunc(h.room)
	r.Path(roomPath + "/{rest:.*}").HandlerFunc(h.room)

	if uiDir != "" {
		r.PathPrefix("/").Handler(spa(uiDir))
		slog.Info("serving UI static files", "dir", uiDir)
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

// health returns GET /healthz: liveness plus room and session counts.
func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	jsonResp(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Rooms:    h.rooms.Rooms(),
		Sessions: h.rooms.Sessions(),
	})
}

// serveMetrics returns GET /metrics in the Prometheus text format.
func (h *Handler) serveMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", string(metrics.Format))
	if err := h.metrics.Write(w); err != nil {
		slog.Error("api: write metrics", "err", err)
	}
}

// room hands the request to the addressed room. The path is rewritten to
// /<room>/<rest> so the room sees its own id as the first segment even when
// the party shares its name.
func (h *Handler) room(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rm := h.rooms.Get(vars["party"], vars["room"])

	req := r.Clone(r.Context())
	req.URL.Path = "/" + vars["room"] + "/" + vars["rest"]
	req.URL.RawPath = ""
	rm.ServeHTTP(w, req)
}

// --- middleware -------------------------------------------------------------

func logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		slog.Debug("handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration", m.Duration,
		)
	})
}

// spa serves files from dir, falling back to index.html for unknown paths.
func spa(dir string) http.Handler {
	fs := http.FileServer(http.Dir(dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := filepath.Join(dir, filepath.FromSlash(filepath.Clean("/"+r.URL.Path)))
		if _, err := os.Stat(path); os.IsNotExist(err) {
			http.ServeFile(w, r, filepath.Join(dir, "index.html"))
			return
		}
		fs.ServeHTTP(w, r)
	})
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
