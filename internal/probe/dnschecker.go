package probe

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"servicewatch/internal/domain"
)

type DNSChecker struct {
	Resolver *net.Resolver
}

// Resolution classes, from worst to best.
const (
	dnsInvalidName = "INVALID_NAME"
	dnsNXDomain    = "NXDOMAIN"
	dnsServfail    = "SERVFAIL_or_TIMEOUT"
	dnsNoARecord   = "NO_A_RECORD"
	dnsResolves    = "RESOLVES"
)

func (d *DNSChecker) Check(ctx context.Context, ep *domain.ServiceEndpoint) Outcome {
	domainName := strings.TrimSpace(ep.Address)
	if domainName == "" || strings.Contains(domainName, "://") {
		return Outcome{Kind: KindDNSFailure, Message: dnsInvalidName}
	}

	r := d.Resolver
	if r == nil {
		r = &net.Resolver{} // OS resolver
	}

	start := time.Now()
	class := classifyLookup(ctx, r, domainName)
	latency := latencySince(start)

	if class == dnsResolves {
		return Outcome{OK: true, Kind: KindSuccess, LatencyMS: latency, Message: class}
	}
	kind := KindDNSFailure
	if class == dnsServfail {
		kind = KindTimeout
	}
	return Outcome{Kind: kind, LatencyMS: latency, Message: class}
}

func classifyLookup(ctx context.Context, r *net.Resolver, name string) string {
	ips, err := r.LookupIP(ctx, "ip", name)
	if err == nil && len(ips) > 0 {
		return dnsResolves
	}

	class := ""
	if err != nil {
		var de *net.DNSError
		if errors.As(err, &de) {
			if de.IsNotFound {
				class = dnsNXDomain
			} else if de.IsTemporary || de.Timeout() {
				class = dnsServfail
			}
		}
	}

	// A zone can have NS records but no address records; that is a
	// configuration state, not a resolver fault.
	if ns, nerr := r.LookupNS(ctx, name); nerr == nil && len(ns) > 0 {
		if class == dnsNXDomain || class == "" {
			return dnsNoARecord
		}
	}
	if class == "" {
		class = dnsServfail
	}
	return class
}
