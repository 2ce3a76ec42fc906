package room

import "github.com/bru02/zhm/pkg/protocol"

// IngestRequest is a decoded ingest body. UpdatedAt is NaN when the writer
// did not send a usable timestamp.
type IngestRequest struct {
	Name      string
	Content   string
	UpdatedAt float64
}

// IngestResponse is the payload for POST <room>/ingest.
type IngestResponse struct {
	OK     bool                `json:"ok"`
	Stored protocol.FileRecord `json:"stored"`
}

// PruneResponse is the payload for POST|DELETE <room>/prune.
type PruneResponse struct {
	OK     bool `json:"ok"`
	Pruned int  `json:"pruned"`
}

// StateResponse is the payload for GET <room> and GET <room>/state.
// Latest is null when the room is empty.
type StateResponse struct {
	Files  []protocol.FileRecord `json:"files"`
	Latest *string               `json:"latest"`
}

// errorResponse is a generic JSON error body.
type errorResponse struct {
	Error string `json:"error"`
}
