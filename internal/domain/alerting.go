package domain

import "time"

// ChannelType is the closed set of notification channel kinds.
type ChannelType string

const (
	ChannelSlack   ChannelType = "slack"
	ChannelEmail   ChannelType = "email"
	ChannelWebhook ChannelType = "webhook"
)

// NotificationChannel is externally managed delivery configuration. The
// engine only reads it.
type NotificationChannel struct {
	ID     string      `json:"id"`
	Type   ChannelType `json:"type"`
	Target string      `json:"target"` // webhook URL or email address
	From   string      `json:"from,omitempty"`
	APIKey string      `json:"-"` // provider credential, never serialized
}

// AlertRule routes outage events of a given severity to channels. Throttle is
// the minimum gap between repeated notifications for the same
// (endpoint, rule, severity); escalations reset that clock because the
// severity changes.
type AlertRule struct {
	ID       string                `json:"id"`
	Name     string                `json:"name"`
	Severity Severity              `json:"severity"`
	Channels []NotificationChannel `json:"channels"`
	Throttle time.Duration         `json:"throttle"`
	// Latency marks the rule that handles DEGRADED latency events, which
	// never open outages but may still be alert-worthy.
	Latency bool `json:"latency,omitempty"`
}

// SeverityRule classifies a fresh outage from endpoint tags. First match
// wins; an empty tag is the default rule.
type SeverityRule struct {
	Tag      string   `json:"tag"`
	Severity Severity `json:"severity"`
}

// ClassifySeverity applies rules in order and falls back to MAJOR.
func ClassifySeverity(ep *ServiceEndpoint, rules []SeverityRule) Severity {
	for _, r := range rules {
		if r.Tag == "" || ep.HasTag(r.Tag) {
			return r.Severity
		}
	}
	return SeverityMajor
}

// DispatchedAlert is the audit record of one delivery attempt, including
// suppressed ones.
type DispatchedAlert struct {
	ID         int64      `json:"id"`
	EndpointID EndpointID `json:"endpoint_id"`
	OutageID   int64      `json:"outage_id,omitempty"`
	RuleID     string     `json:"rule_id"`
	Severity   Severity   `json:"severity"`
	Channel    string     `json:"channel"`
	Suppressed bool       `json:"suppressed"`
	Error      string     `json:"error,omitempty"`
	SentAt     time.Time  `json:"sent_at"`
}
