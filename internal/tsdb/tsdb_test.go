package tsdb

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestWriteBatch_PostsDocs(t *testing.T) {
	var got bulkRequest
	var path string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(200)
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	docs := []Doc{
		{Kind: "status", Endpoint: "ep-1", Timestamp: time.Now().UTC(), Fields: map[string]any{"ok": true, "latency_ms": 42}},
		{Kind: "outage", Endpoint: "ep-2", Timestamp: time.Now().UTC(), Fields: map[string]any{"severity": "MAJOR"}},
	}
	if err := c.WriteBatch(context.Background(), docs); err != nil {
		t.Fatalf("write err: %v", err)
	}
	if path != "/bulk" {
		t.Fatalf("wrong path: %s", path)
	}
	if len(got.Docs) != 2 || got.Docs[0].Kind != "status" || got.Docs[1].Endpoint != "ep-2" {
		t.Fatalf("payload wrong: %+v", got)
	}
}

func TestWriteBatch_Non2xx(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(503)
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	if err := c.WriteBatch(context.Background(), []Doc{{Kind: "status"}}); err == nil {
		t.Fatal("expected error on 503")
	}
}

func TestWriteBatch_EmptyIsNoop(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	c := NewClient(ts.URL)
	if err := c.WriteBatch(context.Background(), nil); err != nil {
		t.Fatalf("empty batch: %v", err)
	}
	if called {
		t.Fatal("empty batch must not hit the wire")
	}
}
