// Package storage provides the durable key-value backends rooms persist their
// file snapshots to. Every backend stores opaque values under string keys;
// a room keeps exactly one key, see RoomKey.
//
// Backends: Memory (process lifetime only), File (one JSON file per key),
// SQLite (kv table), Redis (plain GET/SET) and S3 (one object per key on any
// S3-compatible store). New selects one from config.StorageConfig.
package storage
