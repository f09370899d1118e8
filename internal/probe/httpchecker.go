package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"syscall"
	"time"

	"servicewatch/internal/domain"
)

// maxBodyBytes bounds how much of a response body is read for pattern checks.
const maxBodyBytes = 256 << 10

type HTTPChecker struct {
	Client *http.Client
}

func NewHTTPChecker() *HTTPChecker {
	return &HTTPChecker{
		// No client timeout; the per-check context already bounds the probe.
		Client: &http.Client{},
	}
}

func (h *HTTPChecker) Check(ctx context.Context, ep *domain.ServiceEndpoint) Outcome {
	target := httpURL(ep)
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Outcome{Kind: KindError, Message: err.Error()}
	}

	resp, err := h.Client.Do(req)
	latency := latencySince(start)
	if err != nil {
		return classifyNetErr(err, latency)
	}
	defer resp.Body.Close()

	out := Outcome{StatusCode: resp.StatusCode, LatencyMS: latency, Message: resp.Status}

	if ep.ExpectedStatus != 0 {
		if resp.StatusCode != ep.ExpectedStatus {
			out.Kind = KindStatusMismatch
			out.Message = fmt.Sprintf("status %d, want %d", resp.StatusCode, ep.ExpectedStatus)
			return out
		}
	} else if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		out.Kind = KindStatusMismatch
		return out
	}

	if ep.ExpectedPattern != "" {
		body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		out.LatencyMS = latencySince(start)
		if err != nil {
			return classifyNetErr(err, out.LatencyMS)
		}
		re, err := regexp.Compile(ep.ExpectedPattern)
		if err != nil {
			// Malformed patterns are rejected at the admin surface; a stale
			// one is a content mismatch, not an engine fault.
			out.Kind = KindContentMismatch
			out.Message = "bad pattern: " + err.Error()
			return out
		}
		if !re.Match(body) {
			out.Kind = KindContentMismatch
			out.Message = "body does not match " + ep.ExpectedPattern
			return out
		}
	}

	out.OK = true
	out.Kind = KindSuccess
	return out
}

// httpURL builds the request URL from the endpoint definition. Addresses that
// already carry a scheme are used as-is.
func httpURL(ep *domain.ServiceEndpoint) string {
	if strings.Contains(ep.Address, "://") {
		return ep.Address
	}
	scheme := "http"
	if ep.Protocol == domain.ProtocolHTTPS {
		scheme = "https"
	}
	if ep.Port != 0 {
		return fmt.Sprintf("%s://%s", scheme, hostPort(ep))
	}
	return fmt.Sprintf("%s://%s", scheme, ep.Address)
}

// classifyNetErr turns a transport error into a typed outcome.
func classifyNetErr(err error, latencyMS float64) Outcome {
	out := Outcome{LatencyMS: latencyMS, Message: err.Error()}
	var ne net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		out.Kind = KindTimeout
	case errors.As(err, &ne) && ne.Timeout():
		out.Kind = KindTimeout
	case errors.Is(err, syscall.ECONNREFUSED):
		out.Kind = KindRefused
	default:
		out.Kind = KindError
	}
	return out
}
