package probe

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"servicewatch/internal/domain"
)

// fake checker you can control
type fakeChecker struct {
	results []Outcome
	i       int
}

func (f *fakeChecker) Check(ctx context.Context, ep *domain.ServiceEndpoint) Outcome {
	if f.i >= len(f.results) {
		return Outcome{Kind: KindError, Message: "no more"}
	}
	r := f.results[f.i]
	f.i++
	return r
}

func fixedDefaults(attempts int, backoff time.Duration) func() Defaults {
	return func() Defaults { return Defaults{Attempts: attempts, Backoff: backoff} }
}

func TestRetryChecker_SucceedsAfterRetry(t *testing.T) {
	f := &fakeChecker{
		results: []Outcome{
			{Kind: KindTimeout, Message: "first fail"},
			{OK: true, Kind: KindSuccess, Message: "ok"},
		},
	}
	rc := &RetryChecker{Inner: f, Defaults: fixedDefaults(3, time.Millisecond)}
	out := rc.Check(context.Background(), &domain.ServiceEndpoint{})
	if !out.OK {
		t.Fatalf("expected success after retry, got %+v", out)
	}
	if f.i != 2 {
		t.Fatalf("expected 2 attempts, got %d", f.i)
	}
}

func TestRetryChecker_AllFailAnnotates(t *testing.T) {
	f := &fakeChecker{
		results: []Outcome{
			{Kind: KindRefused, Message: "fail1"},
			{Kind: KindTimeout, Message: "fail2"},
		},
	}
	rc := &RetryChecker{Inner: f, Defaults: fixedDefaults(2, 0)}
	out := rc.Check(context.Background(), &domain.ServiceEndpoint{})
	if out.OK {
		t.Fatal("expected failure, got success")
	}
	if out.Kind != KindTimeout {
		t.Fatalf("final outcome should be the last attempt, got %q", out.Kind)
	}
	if out.Message == "" {
		t.Fatal("expected failure message annotation, got empty")
	}
}

func TestRetryChecker_EndpointRetriesWin(t *testing.T) {
	f := &fakeChecker{
		results: []Outcome{
			{Kind: KindTimeout}, {Kind: KindTimeout}, {Kind: KindTimeout}, {Kind: KindTimeout},
		},
	}
	rc := &RetryChecker{Inner: f, Defaults: fixedDefaults(2, 0)}
	_ = rc.Check(context.Background(), &domain.ServiceEndpoint{Retries: 4})
	if f.i != 4 {
		t.Fatalf("endpoint retries=4 should drive 4 attempts, got %d", f.i)
	}
}

func TestRetryChecker_DefaultsReadPerCheck(t *testing.T) {
	f := &fakeChecker{
		results: []Outcome{
			{Kind: KindTimeout}, {Kind: KindTimeout}, {Kind: KindTimeout}, {Kind: KindTimeout},
		},
	}
	attempts := 1
	rc := &RetryChecker{Inner: f, Defaults: func() Defaults { return Defaults{Attempts: attempts} }}

	_ = rc.Check(context.Background(), &domain.ServiceEndpoint{})
	if f.i != 1 {
		t.Fatalf("attempts=1 should drive 1 attempt, got %d", f.i)
	}

	attempts = 3
	_ = rc.Check(context.Background(), &domain.ServiceEndpoint{})
	if f.i != 4 {
		t.Fatalf("reloaded attempts=3 should drive 3 more attempts, got %d total", f.i)
	}
}

func TestProber_UnsupportedProtocol(t *testing.T) {
	p := NewProber()
	out := p.Check(context.Background(), &domain.ServiceEndpoint{Protocol: "GOPHER"})
	if out.OK || out.Kind != KindError {
		t.Fatalf("want error outcome, got %+v", out)
	}
}

func TestProber_DefaultTimeoutBoundsCheck(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(200)
	}))
	defer ts.Close()

	p := NewProber()
	p.Defaults = func() Defaults { return Defaults{Timeout: 50 * time.Millisecond} }

	// No per-endpoint timeout: the configured default must bound the probe.
	out := p.Check(context.Background(), &domain.ServiceEndpoint{
		Protocol: domain.ProtocolHTTP,
		Address:  ts.URL,
	})
	if out.OK {
		t.Fatalf("slow response must time out under the default, got %+v", out)
	}
	if out.Kind != KindTimeout {
		t.Fatalf("want timeout outcome, got %q (%s)", out.Kind, out.Message)
	}
}
