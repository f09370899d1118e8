package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"servicewatch/internal/domain"
)

func httpEndpoint(url string) *domain.ServiceEndpoint {
	return &domain.ServiceEndpoint{
		ID:       "ep-http",
		Address:  url,
		Protocol: domain.ProtocolHTTP,
		Timeout:  2 * time.Second,
	}
}

func TestHTTPChecker_StatusOK(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
		w.Write([]byte("ok"))
	}))
	defer s.Close()

	chk := NewHTTPChecker()
	out := chk.Check(context.Background(), httpEndpoint(s.URL))
	if !out.OK || out.Kind != KindSuccess {
		t.Fatalf("want success, got %+v", out)
	}
	if out.StatusCode != 200 {
		t.Fatalf("want status 200, got %d", out.StatusCode)
	}
	if out.LatencyMS < 0 {
		t.Fatalf("latency should be >= 0, got %f", out.LatencyMS)
	}
}

func TestHTTPChecker_Status500(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", 500)
	}))
	defer s.Close()

	chk := NewHTTPChecker()
	out := chk.Check(context.Background(), httpEndpoint(s.URL))
	if out.OK || out.Kind != KindStatusMismatch {
		t.Fatalf("want status_mismatch, got %+v", out)
	}
	if out.StatusCode != 500 {
		t.Fatalf("want status 500, got %d", out.StatusCode)
	}
}

func TestHTTPChecker_ExpectedStatus(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(204)
	}))
	defer s.Close()

	ep := httpEndpoint(s.URL)
	ep.ExpectedStatus = 204
	chk := NewHTTPChecker()
	if out := chk.Check(context.Background(), ep); !out.OK {
		t.Fatalf("want 204 accepted, got %+v", out)
	}

	ep.ExpectedStatus = 200
	if out := chk.Check(context.Background(), ep); out.OK || out.Kind != KindStatusMismatch {
		t.Fatalf("want mismatch on 204 vs 200, got %+v", out)
	}
}

func TestHTTPChecker_BodyPattern(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer s.Close()

	ep := httpEndpoint(s.URL)
	ep.ExpectedPattern = `"status":"healthy"`
	chk := NewHTTPChecker()
	if out := chk.Check(context.Background(), ep); !out.OK {
		t.Fatalf("want pattern match, got %+v", out)
	}

	ep.ExpectedPattern = `"status":"ok"`
	out := chk.Check(context.Background(), ep)
	if out.OK || out.Kind != KindContentMismatch {
		t.Fatalf("want content_mismatch, got %+v", out)
	}
}

func TestHTTPChecker_TimeoutOutcome(t *testing.T) {
	s := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer s.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	chk := NewHTTPChecker()
	out := chk.Check(ctx, httpEndpoint(s.URL))
	if out.OK {
		t.Fatalf("want failure due to timeout, got %+v", out)
	}
	if out.Kind != KindTimeout {
		t.Fatalf("want timeout kind, got %q (%s)", out.Kind, out.Message)
	}
	if out.StatusCode != 0 {
		t.Fatalf("want status 0 on transport error, got %d", out.StatusCode)
	}
}
