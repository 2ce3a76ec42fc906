// Package store holds the per-room FileStore: the set of recently shipped SQL
// files keyed by name, trimmed to a retention window and snapshotted to a
// durable Storage after every mutation.
package store
