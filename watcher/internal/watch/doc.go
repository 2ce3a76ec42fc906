// Package watch follows a directory tree for changes to tracked files.
//
// A file is tracked when its base name ends with the configured suffix and
// does not start with the ignore prefix. Events for a path are debounced per
// path, then the file is read and handed to the Handler as a
// protocol.FileRecord. Deleted files are not reported. Directories created
// after startup are picked up as they appear. Hidden directories are skipped.
package watch
