package domain

import (
	"time"
)

type EndpointID string

// Protocol is the closed set of probe protocols.
type Protocol string

const (
	ProtocolHTTP  Protocol = "HTTP"
	ProtocolHTTPS Protocol = "HTTPS"
	ProtocolTCP   Protocol = "TCP"
	ProtocolUDP   Protocol = "UDP"
	ProtocolDNS   Protocol = "DNS"
	ProtocolICMP  Protocol = "ICMP"
)

// ValidProtocol reports whether p is one of the supported protocol variants.
func ValidProtocol(p Protocol) bool {
	switch p {
	case ProtocolHTTP, ProtocolHTTPS, ProtocolTCP, ProtocolUDP, ProtocolDNS, ProtocolICMP:
		return true
	}
	return false
}

// EndpointState is the rolling state of a monitored endpoint.
type EndpointState string

const (
	StateUnknown  EndpointState = "UNKNOWN"
	StateUp       EndpointState = "UP"
	StateDown     EndpointState = "DOWN"
	StateDegraded EndpointState = "DEGRADED"
)

// ServiceEndpoint is a monitored target. The engine never mutates it except
// through the Active flag; everything else is admin-surface configuration.
type ServiceEndpoint struct {
	ID              EndpointID    `json:"id"`
	Name            string        `json:"name"`
	Address         string        `json:"address"`
	Protocol        Protocol      `json:"protocol"`
	Port            int           `json:"port,omitempty"`
	CheckInterval   time.Duration `json:"check_interval"`
	Timeout         time.Duration `json:"timeout"`
	Retries         int           `json:"retries"`
	ExpectedStatus  int           `json:"expected_status,omitempty"`
	ExpectedPattern string        `json:"expected_pattern,omitempty"`
	LatencyBudgetMS float64       `json:"latency_budget_ms,omitempty"`
	Tags            []string      `json:"tags,omitempty"`
	Active          bool          `json:"active"`
	CreatedAt       time.Time     `json:"created_at"`
}

// HasTag reports whether the endpoint carries the given tag.
func (e *ServiceEndpoint) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ServiceStatus is one immutable record per completed check. Append-only;
// current endpoint state is derived from the tail of these records.
type ServiceStatus struct {
	ID         int64         `json:"id"`
	EndpointID EndpointID    `json:"endpoint_id"`
	State      EndpointState `json:"state"`
	OK         bool          `json:"ok"`
	LatencyMS  float64       `json:"latency_ms"`
	Reason     string        `json:"reason,omitempty"`
	CheckedAt  time.Time     `json:"checked_at"`
	Synced     bool          `json:"synced"`
}

// Severity classifies an outage. Ordering matters for escalation.
type Severity string

const (
	SeverityWarning  Severity = "WARNING"
	SeverityMinor    Severity = "MINOR"
	SeverityMajor    Severity = "MAJOR"
	SeverityCritical Severity = "CRITICAL"
)

var severityOrder = []Severity{SeverityWarning, SeverityMinor, SeverityMajor, SeverityCritical}

// Promote returns the next severity up, capped at CRITICAL.
func (s Severity) Promote() Severity {
	for i, v := range severityOrder {
		if v == s && i+1 < len(severityOrder) {
			return severityOrder[i+1]
		}
	}
	return SeverityCritical
}

// ServiceOutage is a confirmed incident. At most one open outage (EndTime nil)
// may exist per endpoint.
type ServiceOutage struct {
	ID              int64         `json:"id"`
	EndpointID      EndpointID    `json:"endpoint_id"`
	StartTime       time.Time     `json:"start_time"`
	EndTime         *time.Time    `json:"end_time"`
	Duration        time.Duration `json:"duration"`
	Severity        Severity      `json:"severity"`
	Verified        bool          `json:"verified"`
	EscalatedAt     *time.Time    `json:"escalated_at,omitempty"`
	ResolutionNotes string        `json:"resolution_notes,omitempty"`
	ResolvedBy      string        `json:"resolved_by,omitempty"`
	Synced          bool          `json:"synced"`
}

// Resolved reports whether the outage has been closed.
func (o *ServiceOutage) Resolved() bool { return o.EndTime != nil }

// Age is the elapsed open time, or the final duration once resolved.
func (o *ServiceOutage) Age(now time.Time) time.Duration {
	if o.EndTime != nil {
		return o.EndTime.Sub(o.StartTime)
	}
	return now.Sub(o.StartTime)
}
