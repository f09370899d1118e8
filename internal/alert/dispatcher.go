package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"servicewatch/internal/backoff"
	"servicewatch/internal/domain"
	"servicewatch/internal/notify"
	"servicewatch/internal/outage"
	"servicewatch/internal/repo"
)

const deliverTimeout = 30 * time.Second

type throttleKey struct {
	endpoint domain.EndpointID
	rule     string
	severity domain.Severity
}

// Dispatcher turns outage events into channel notifications. Delivery fans
// out per channel on its own goroutine with bounded retries, so a dead
// channel never blocks detection or its siblings.
type Dispatcher struct {
	log   *zap.Logger
	rules func() []domain.AlertRule
	maint repo.MaintenanceStore
	audit repo.AlertStore

	newNotifier  func(domain.NotificationChannel) (notify.Notifier, error)
	attempts     int
	retryBackoff time.Duration
	now          func() time.Time

	mu       sync.Mutex
	lastSent map[throttleKey]time.Time
	wg       sync.WaitGroup
}

func NewDispatcher(log *zap.Logger, maint repo.MaintenanceStore, audit repo.AlertStore, rules func() []domain.AlertRule) *Dispatcher {
	return &Dispatcher{
		log:          log,
		rules:        rules,
		maint:        maint,
		audit:        audit,
		newNotifier:  notify.ForChannel,
		attempts:     3,
		retryBackoff: 2 * time.Second,
		now:          func() time.Time { return time.Now().UTC() },
		lastSent:     make(map[throttleKey]time.Time),
	}
}

var _ outage.Alerter = (*Dispatcher)(nil)

// Wait blocks until in-flight deliveries drain. Used on shutdown.
func (d *Dispatcher) Wait() { d.wg.Wait() }

func (d *Dispatcher) Notify(ctx context.Context, ev outage.Event) {
	rule := d.matchRule(ev)
	if rule == nil {
		d.log.Debug("dispatch_no_rule",
			zap.String("endpoint_id", string(ev.Endpoint.ID)),
			zap.String("event", string(ev.Type)),
		)
		return
	}
	sev := eventSeverity(ev)
	now := d.now()

	// Maintenance check happens at dispatch time; detection already ran and
	// the outage record exists regardless.
	wins, err := d.maint.ActiveWindows(ctx, ev.Endpoint, now)
	if err != nil {
		d.log.Warn("maintenance_lookup_error", zap.Error(err))
	}
	if len(wins) > 0 {
		d.log.Info("dispatch_suppressed",
			zap.String("endpoint_id", string(ev.Endpoint.ID)),
			zap.String("event", string(ev.Type)),
			zap.Int64("window_id", wins[0].ID),
		)
		d.recordAudit(ctx, ev, rule, sev, "", true, nil)
		return
	}

	// Escalations and recoveries always go out; throttling either would hide
	// a state change behind an alert that already fired.
	bypass := ev.Type == outage.EventEscalated || ev.Type == outage.EventResolved
	key := throttleKey{endpoint: ev.Endpoint.ID, rule: rule.ID, severity: sev}
	if !bypass && rule.Throttle > 0 {
		d.mu.Lock()
		last, seen := d.lastSent[key]
		d.mu.Unlock()
		if seen && now.Sub(last) < rule.Throttle {
			d.log.Debug("dispatch_throttled",
				zap.String("endpoint_id", string(ev.Endpoint.ID)),
				zap.String("rule_id", rule.ID),
				zap.String("severity", string(sev)),
			)
			return
		}
	}
	d.mu.Lock()
	d.lastSent[key] = now // bypassing events reset the clock too
	d.mu.Unlock()

	title, text := renderMessage(ev, now)
	for _, ch := range rule.Channels {
		ch := ch
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(ev, rule, sev, ch, title, text)
		}()
	}
}

// deliver retries one channel with backoff and records the audit row. It runs
// detached from the caller's context so a cancelled check loop cannot abort a
// send mid-flight.
func (d *Dispatcher) deliver(ev outage.Event, rule *domain.AlertRule, sev domain.Severity, ch domain.NotificationChannel, title, text string) {
	ctx, cancel := context.WithTimeout(context.Background(), deliverTimeout)
	defer cancel()

	n, err := d.newNotifier(ch)
	if err == nil {
		for i := 1; i <= d.attempts; i++ {
			if err = n.Send(ctx, title, text); err == nil {
				break
			}
			if i < d.attempts {
				select {
				case <-ctx.Done():
					i = d.attempts
				case <-time.After(backoff.Delay(i, d.retryBackoff, 30*time.Second)):
				}
			}
		}
	}
	if err != nil {
		d.log.Warn("channel_delivery_failed",
			zap.String("channel", ch.ID),
			zap.String("endpoint_id", string(ev.Endpoint.ID)),
			zap.Error(err),
		)
	}
	d.recordAudit(ctx, ev, rule, sev, ch.ID, false, err)
}

func (d *Dispatcher) recordAudit(ctx context.Context, ev outage.Event, rule *domain.AlertRule, sev domain.Severity, channel string, suppressed bool, sendErr error) {
	rec := &domain.DispatchedAlert{
		EndpointID: ev.Endpoint.ID,
		RuleID:     rule.ID,
		Severity:   sev,
		Channel:    channel,
		Suppressed: suppressed,
		SentAt:     d.now(),
	}
	if ev.Outage != nil {
		rec.OutageID = ev.Outage.ID
	}
	if sendErr != nil {
		rec.Error = sendErr.Error()
	}
	if err := d.audit.RecordDispatch(ctx, rec); err != nil {
		d.log.Warn("alert_audit_error", zap.Error(err))
	}
}

func (d *Dispatcher) matchRule(ev outage.Event) *domain.AlertRule {
	rules := d.rules()
	if ev.Type == outage.EventDegraded {
		for i := range rules {
			if rules[i].Latency {
				return &rules[i]
			}
		}
		return nil
	}
	sev := eventSeverity(ev)
	var fallback *domain.AlertRule
	for i := range rules {
		if rules[i].Latency {
			continue
		}
		if rules[i].Severity == sev {
			return &rules[i]
		}
		if rules[i].Severity == "" && fallback == nil {
			fallback = &rules[i]
		}
	}
	return fallback
}

func eventSeverity(ev outage.Event) domain.Severity {
	if ev.Outage != nil {
		return ev.Outage.Severity
	}
	return domain.SeverityWarning
}

func renderMessage(ev outage.Event, now time.Time) (title, text string) {
	ep := ev.Endpoint
	switch ev.Type {
	case outage.EventOpened:
		title = fmt.Sprintf("🔴 %s is DOWN [%s]", ep.Name, ev.Outage.Severity)
		text = fmt.Sprintf("Endpoint: %s (%s)\nSince: %s (%s)\nSeverity: %s",
			ep.Address, ep.Protocol,
			ev.Outage.StartTime.Format(time.RFC3339), humanize.Time(ev.Outage.StartTime),
			ev.Outage.Severity,
		)
	case outage.EventEscalated:
		title = fmt.Sprintf("⚠️ %s outage escalated to %s", ep.Name, ev.Outage.Severity)
		text = fmt.Sprintf("Endpoint: %s (%s)\nOpen for: %s\nSeverity: %s",
			ep.Address, ep.Protocol,
			humanize.RelTime(ev.Outage.StartTime, now, "", ""),
			ev.Outage.Severity,
		)
	case outage.EventResolved:
		title = fmt.Sprintf("🟢 %s RECOVERED", ep.Name)
		text = fmt.Sprintf("Endpoint: %s (%s)\nOutage duration: %s",
			ep.Address, ep.Protocol,
			humanize.RelTime(now.Add(-ev.Outage.Duration), now, "", ""),
		)
	case outage.EventDegraded:
		title = fmt.Sprintf("🟡 %s is DEGRADED", ep.Name)
		text = fmt.Sprintf("Endpoint: %s (%s)\nChecks succeed but exceed the latency budget.",
			ep.Address, ep.Protocol)
	}
	return title, text
}
