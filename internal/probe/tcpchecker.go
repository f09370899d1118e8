package probe

import (
	"context"
	"net"
	"time"

	"servicewatch/internal/domain"
)

type TCPChecker struct {
	Dialer net.Dialer
}

func (c *TCPChecker) Check(ctx context.Context, ep *domain.ServiceEndpoint) Outcome {
	start := time.Now()
	conn, err := c.Dialer.DialContext(ctx, "tcp", hostPort(ep))
	latency := latencySince(start)
	if err != nil {
		return classifyNetErr(err, latency)
	}
	_ = conn.Close()
	return Outcome{OK: true, Kind: KindSuccess, LatencyMS: latency, Message: "connected"}
}
