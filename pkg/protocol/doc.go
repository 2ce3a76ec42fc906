// Package protocol defines the messages the relay sends to connected viewers
// and the client-side discipline for applying them.
//
// Two message types exist, both server → client:
//
//	{"type": "init", "files": [FileRecord...], "latest": "a.sql"}
//	{"type": "file-update", "file": FileRecord}
//
// init replaces the receiver's whole file set; files are ordered newest-first
// and latest (omitted when there are no files) names the newest one.
// file-update upserts a single record by name.
//
// Diff computes the minimal contiguous replacement between two versions of a
// document (common prefix, then common suffix of what remains), so a viewer
// can patch its buffer without resetting the cursor. Workspace combines both:
// it tracks the file set, tab order and active file, and reports every change
// to the rendered buffer as an Edit.
package protocol
