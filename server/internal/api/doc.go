// Package api implements the HTTP surface of the relay server.
//
// New(manager, registry, prefix, uiDir) returns an http.Handler that serves:
//
//	GET  /healthz                          liveness, room and session counts
//	GET  /metrics                          Prometheus text exposition
//	*    /<prefix>/{party}/{room}[/{rest}] dispatched to the room
//	GET  /*                                static UI with SPA fallback (optional)
//
// Room requests reach room.Room.ServeHTTP with the path rewritten to
// /<room>/<rest>. Every request is logged with its status and duration.
package api
