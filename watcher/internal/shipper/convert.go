package shipper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/bru02/zhm/pkg/protocol"
)

// newIngestRequest encodes rec as the relay's ingest body:
// {"name": ..., "content": ..., "updatedAt": <ms>}.
func newIngestRequest(ctx context.Context, url string, rec protocol.FileRecord) (*http.Request, error) {
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", rec.Name, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
