// Package shipper posts changed files to the relay's ingest endpoint over
// plain HTTP JSON.
//
// Shipper.Ship() is non-blocking: records are placed in an in-memory channel
// (default capacity 256). When the buffer is full the oldest entry is evicted
// so the most recent edits are always preserved.
//
// Shipper.Run() drains the buffer in order, retrying a failed record with
// truncated exponential backoff (1s→60s, ±25% jitter) on transport errors and
// 5xx answers. 4xx answers mean the record is unacceptable and it is
// discarded immediately rather than retried.
//
// Shipper.Prune() clears the room and reports how many files were removed.
package shipper
