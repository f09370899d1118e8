package probe

import (
	"context"
	"net"
	"regexp"
	"time"

	"servicewatch/internal/domain"
)

type UDPChecker struct {
	Dialer net.Dialer
	// Payload is written after the dial; some services only answer to a
	// non-empty datagram.
	Payload []byte
}

// Check sends one datagram and waits for a reply until the context deadline.
// UDP gives no handshake, so silence is not a failure: a port-unreachable
// from the kernel is the only reliable down signal. When an expected pattern
// is configured the reply must arrive and match.
func (c *UDPChecker) Check(ctx context.Context, ep *domain.ServiceEndpoint) Outcome {
	start := time.Now()
	conn, err := c.Dialer.DialContext(ctx, "udp", hostPort(ep))
	if err != nil {
		return classifyNetErr(err, latencySince(start))
	}
	defer conn.Close()

	payload := c.Payload
	if len(payload) == 0 {
		payload = []byte{0}
	}
	if _, err := conn.Write(payload); err != nil {
		return classifyNetErr(err, latencySince(start))
	}

	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(dl)
	}
	buf := make([]byte, 2048)
	n, err := conn.Read(buf)
	latency := latencySince(start)
	if err != nil {
		out := classifyNetErr(err, latency)
		if out.Kind == KindTimeout && ep.ExpectedPattern == "" {
			// No reply and nothing expected: the port did not refuse us.
			return Outcome{OK: true, Kind: KindSuccess, LatencyMS: latency, Message: "no reply (accepted)"}
		}
		return out
	}

	if ep.ExpectedPattern != "" {
		re, rerr := regexp.Compile(ep.ExpectedPattern)
		if rerr != nil || !re.Match(buf[:n]) {
			return Outcome{Kind: KindContentMismatch, LatencyMS: latency, Message: "reply does not match pattern"}
		}
	}
	return Outcome{OK: true, Kind: KindSuccess, LatencyMS: latency, Message: "reply received"}
}
