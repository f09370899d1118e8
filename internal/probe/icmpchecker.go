package probe

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"

	"servicewatch/internal/domain"
)

type ICMPChecker struct {
	// Count is the number of echo requests per check.
	Count int
	// Privileged selects raw sockets instead of unprivileged UDP-mode ICMP.
	Privileged bool
}

// Check sends Count echo requests and reports average round-trip plus loss.
// All requests lost is a timeout; partial loss is surfaced as packet_loss but
// still counts as reachable.
func (c *ICMPChecker) Check(ctx context.Context, ep *domain.ServiceEndpoint) Outcome {
	count := c.Count
	if count < 1 {
		count = 3
	}

	network, addr := "udp4", net.Addr(&net.UDPAddr{IP: net.ParseIP(ep.Address)})
	if c.Privileged {
		network, addr = "ip4:icmp", &net.IPAddr{IP: net.ParseIP(ep.Address)}
	}
	if ip := net.ParseIP(ep.Address); ip == nil {
		ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", ep.Address)
		if err != nil || len(ips) == 0 {
			return Outcome{Kind: KindDNSFailure, Message: "cannot resolve " + ep.Address}
		}
		if c.Privileged {
			addr = &net.IPAddr{IP: ips[0]}
		} else {
			addr = &net.UDPAddr{IP: ips[0]}
		}
	}

	conn, err := icmp.ListenPacket(network, "")
	if err != nil {
		return Outcome{Kind: KindError, Message: "icmp listen: " + err.Error()}
	}
	defer conn.Close()
	if dl, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(dl)
	}

	id := os.Getpid() & 0xffff
	var received int
	var totalRTT time.Duration

	for seq := 0; seq < count; seq++ {
		msg := icmp.Message{
			Type: ipv4.ICMPTypeEcho,
			Body: &icmp.Echo{ID: id, Seq: seq, Data: []byte("servicewatch")},
		}
		wb, err := msg.Marshal(nil)
		if err != nil {
			return Outcome{Kind: KindError, Message: err.Error()}
		}

		if _, err := conn.WriteTo(wb, addr); err != nil {
			continue
		}
		rtt, ok := awaitEchoReply(conn, seq)
		if !ok {
			continue
		}
		received++
		totalRTT += rtt
	}

	if received == 0 {
		return Outcome{Kind: KindTimeout, Message: fmt.Sprintf("%d/%d echo requests lost", count, count)}
	}

	avgMS := float64(totalRTT.Microseconds()) / float64(received) / 1000
	out := Outcome{OK: true, LatencyMS: avgMS}
	if received < count {
		out.Kind = KindPacketLoss
		out.Message = fmt.Sprintf("%d%% packet loss", (count-received)*100/count)
	} else {
		out.Kind = KindSuccess
		out.Message = "0% packet loss"
	}
	return out
}

// awaitEchoReply reads until the reply for seq arrives or the connection
// deadline fires. The echo id is not matched: the kernel rewrites it in
// udp4 mode, and the connection is private to this check anyway.
func awaitEchoReply(conn *icmp.PacketConn, seq int) (time.Duration, bool) {
	start := time.Now()
	rb := make([]byte, 1500)
	for {
		n, _, err := conn.ReadFrom(rb)
		if err != nil {
			return 0, false
		}
		msg, err := icmp.ParseMessage(ipv4.ICMPTypeEchoReply.Protocol(), rb[:n])
		if err != nil {
			continue
		}
		echo, ok := msg.Body.(*icmp.Echo)
		if !ok || msg.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		if echo.Seq != seq {
			continue
		}
		return time.Since(start), true
	}
}
