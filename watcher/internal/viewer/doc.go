// Package viewer is a read-only terminal client for a room: it subscribes to
// the room's WebSocket stream, merges init and file-update messages into a
// protocol.Workspace and prints the active file whenever its text changes.
package viewer
