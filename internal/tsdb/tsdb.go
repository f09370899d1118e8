// Package tsdb ships check results and outage records to an external
// time-series store over its HTTP bulk-ingest endpoint. The engine's own
// state never depends on the store being reachable.
package tsdb

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Doc is one ingest document. Kind is "status" or "outage"; ID is the source
// record id, so re-shipped batches dedupe on the store side. Fields carry the
// record body as flat key/value pairs.
type Doc struct {
	Kind      string         `json:"kind"`
	ID        int64          `json:"id"`
	Endpoint  string         `json:"endpoint"`
	Timestamp time.Time      `json:"timestamp"`
	Fields    map[string]any `json:"fields"`
}

// Writer is the sink the sync worker talks to.
type Writer interface {
	// WriteBatch persists all docs or none; a partial write must return an
	// error so the caller keeps the batch marked unsynced.
	WriteBatch(ctx context.Context, docs []Doc) error
}

type Client struct {
	BaseURL string
	Client  *http.Client
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		return nil
	}
	return &Client{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type bulkRequest struct {
	Docs []Doc `json:"docs"`
}

func (c *Client) WriteBatch(ctx context.Context, docs []Doc) error {
	if c == nil || c.BaseURL == "" {
		return errors.New("tsdb disabled")
	}
	if len(docs) == 0 {
		return nil
	}
	body, err := json.Marshal(bulkRequest{Docs: docs})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/bulk", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("tsdb bulk status %d", resp.StatusCode)
	}
	return nil
}
