// Package config loads the watcher configuration.
//
// Settings are layered: Defaults, then the optional YAML file (Load), then
// RELAY_* environment variables (ApplyEnv), then command-line flags applied
// by the caller. Validate runs on the merged result.
//
// WatcherConfig derives the room endpoints: BaseURL is
// <protocol>://<host>/<prefix>/<party>/<room>, with IngestURL, PruneURL and
// StreamURL (ws/wss) below it. An empty protocol means http for localhost
// and 127.0.0.1 hosts and https for everything else.
package config
