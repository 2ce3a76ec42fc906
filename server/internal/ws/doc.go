// Package ws implements the per-room WebSocket session hub.
//
// New(bufSize) creates a Hub. Hub.Attach registers an upgraded connection and
// queues its init message ahead of any later broadcast; Hub.Serve then runs
// the write and read pumps until the connection closes.
//
// Hub.Broadcast never blocks: each session has a bounded queue and a session
// whose queue is full is disconnected instead of slowing the writer down.
//
// The upgrader accepts all origins. Viewers only receive; the read pump
// exists to answer pings and notice disconnects.
package ws
