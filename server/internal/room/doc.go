// Package room implements the relay room: the HTTP and WebSocket surface over
// one FileStore, and the Manager that creates rooms on demand and unloads
// them once idle.
//
// Every room operation first waits for the room's persisted files to load.
// Mutations (ingest, prune) and session joins are serialized per room, so a
// viewer always receives its init message before any broadcast and
// broadcasts reach viewers in mutation order. Broadcasts never block: a
// viewer that falls behind is disconnected.
//
// Rooms share nothing with each other except the storage backend.
package room
