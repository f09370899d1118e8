package probe

import (
	"context"
	"net"
	"strconv"
	"time"

	"servicewatch/internal/domain"
)

// OutcomeKind classifies a probe result. Reachability failures are data for
// the status tracker, never errors.
type OutcomeKind string

const (
	KindSuccess         OutcomeKind = "success"
	KindTimeout         OutcomeKind = "timeout"
	KindRefused         OutcomeKind = "refused"
	KindStatusMismatch  OutcomeKind = "status_mismatch"
	KindContentMismatch OutcomeKind = "content_mismatch"
	KindDNSFailure      OutcomeKind = "dns_failure"
	KindPacketLoss      OutcomeKind = "packet_loss"
	KindError           OutcomeKind = "error"
)

// Outcome is the unified result of a single probe.
type Outcome struct {
	OK         bool        `json:"ok"`
	Kind       OutcomeKind `json:"kind"`
	LatencyMS  float64     `json:"latency_ms"`
	StatusCode int         `json:"status_code,omitempty"`
	Message    string      `json:"message,omitempty"`
}

// Checker performs a single check against one endpoint.
type Checker interface {
	Check(ctx context.Context, ep *domain.ServiceEndpoint) Outcome
}

// Defaults supplies fallbacks for endpoint fields left unset. They are read
// through a closure on every check, so a configuration reload takes effect
// without restarting loops.
type Defaults struct {
	Timeout  time.Duration
	Attempts int
	Backoff  time.Duration
}

// Prober is the single protocol dispatch point. One checker per protocol
// variant; the switch below is the only place that branches on protocol.
type Prober struct {
	HTTP *HTTPChecker
	TCP  *TCPChecker
	UDP  *UDPChecker
	DNS  *DNSChecker
	ICMP *ICMPChecker

	// Defaults, when set, is consulted per check for endpoints without an
	// explicit timeout.
	Defaults func() Defaults
}

func NewProber() *Prober {
	return &Prober{
		HTTP: NewHTTPChecker(),
		TCP:  &TCPChecker{},
		UDP:  &UDPChecker{},
		DNS:  &DNSChecker{},
		ICMP: &ICMPChecker{Count: 3},
	}
}

// Check dispatches to the protocol's checker under the endpoint's timeout.
// It never blocks past ep.Timeout and never returns an error; a timeout is an
// Outcome like any other.
func (p *Prober) Check(ctx context.Context, ep *domain.ServiceEndpoint) Outcome {
	timeout := ep.Timeout
	if timeout <= 0 && p.Defaults != nil {
		timeout = p.Defaults().Timeout
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch ep.Protocol {
	case domain.ProtocolHTTP, domain.ProtocolHTTPS:
		return p.HTTP.Check(cctx, ep)
	case domain.ProtocolTCP:
		return p.TCP.Check(cctx, ep)
	case domain.ProtocolUDP:
		return p.UDP.Check(cctx, ep)
	case domain.ProtocolDNS:
		return p.DNS.Check(cctx, ep)
	case domain.ProtocolICMP:
		return p.ICMP.Check(cctx, ep)
	}
	return Outcome{Kind: KindError, Message: "unsupported protocol " + string(ep.Protocol)}
}

// hostPort joins the endpoint address with its port for dial-style probes.
func hostPort(ep *domain.ServiceEndpoint) string {
	return net.JoinHostPort(ep.Address, strconv.Itoa(ep.Port))
}

func latencySince(start time.Time) float64 {
	return time.Since(start).Seconds() * 1000 // ms
}
