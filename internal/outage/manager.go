package outage

import (
	"context"
	"time"

	"go.uber.org/zap"

	"servicewatch/internal/domain"
	"servicewatch/internal/probe"
	"servicewatch/internal/repo"
	"servicewatch/internal/tracker"
)

type EventType string

const (
	EventOpened    EventType = "opened"
	EventEscalated EventType = "escalated"
	EventResolved  EventType = "resolved"
	EventDegraded  EventType = "degraded"
)

// Event is what the alert dispatcher consumes. Outage is nil for degraded
// latency events, which never open outages.
type Event struct {
	Type     EventType
	Endpoint *domain.ServiceEndpoint
	Outage   *domain.ServiceOutage
	At       time.Time
}

// Alerter receives outage events. Implementations must not block detection.
type Alerter interface {
	Notify(ctx context.Context, ev Event)
}

// History lets the manager feed a verification result back into the status
// stream, so a suppressed false positive shows up in history and flips the
// derived state back to UP.
type History interface {
	Apply(ctx context.Context, ep *domain.ServiceEndpoint, out probe.Outcome)
}

// Policy is read per event so reloads take effect immediately.
type Policy struct {
	VerifyEnabled bool
	EscalateAfter time.Duration
	SeverityRules []domain.SeverityRule
}

// Manager owns the outage lifecycle: open on confirmed failure streaks,
// verify to suppress false positives, close on recovery, escalate stale ones.
type Manager struct {
	log       *zap.Logger
	outages   repo.OutageStore
	endpoints repo.EndpointStore
	verifier  probe.Checker
	history   History
	alerter   Alerter
	policy    func() Policy
	now       func() time.Time
}

func NewManager(
	log *zap.Logger,
	outages repo.OutageStore,
	endpoints repo.EndpointStore,
	verifier probe.Checker,
	alerter Alerter,
	policy func() Policy,
) *Manager {
	return &Manager{
		log:       log,
		outages:   outages,
		endpoints: endpoints,
		verifier:  verifier,
		alerter:   alerter,
		policy:    policy,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetHistory wires the status recorder after construction; the tracker and
// manager reference each other, so one side is attached late.
func (m *Manager) SetHistory(h History) { m.history = h }

var _ tracker.TransitionSink = (*Manager)(nil)

// OnTransition runs on the endpoint's serialized path, so outage records for
// one endpoint are never raced.
func (m *Manager) OnTransition(ctx context.Context, tr tracker.Transition) {
	switch tr.To {
	case domain.StateDown:
		m.confirmDown(ctx, tr)
	case domain.StateUp:
		m.closeOpen(ctx, tr)
	case domain.StateDegraded:
		m.emit(ctx, Event{Type: EventDegraded, Endpoint: tr.Endpoint, At: tr.At})
	}
}

func (m *Manager) confirmDown(ctx context.Context, tr tracker.Transition) {
	ep := tr.Endpoint
	open, err := m.outages.FindOpenOutage(ctx, ep.ID)
	if err != nil {
		m.log.Warn("find_open_outage_error", zap.String("endpoint_id", string(ep.ID)), zap.Error(err))
		return
	}
	if open != nil {
		// Flapping endpoint: the existing outage keeps running, no fork.
		return
	}

	p := m.policy()
	if p.VerifyEnabled && m.verifier != nil {
		out := m.verifier.Check(ctx, ep)
		if out.OK {
			m.log.Info("outage_suppressed_false_positive",
				zap.String("endpoint_id", string(ep.ID)),
				zap.Float64("latency_ms", out.LatencyMS),
			)
			if m.history != nil {
				m.history.Apply(ctx, ep, out)
			}
			return
		}
	}

	start := tr.At
	if len(tr.FailureStreak) > 0 {
		start = tr.FailureStreak[0].CheckedAt
	}
	o := &domain.ServiceOutage{
		EndpointID: ep.ID,
		StartTime:  start,
		Severity:   domain.ClassifySeverity(ep, p.SeverityRules),
		Verified:   p.VerifyEnabled,
	}
	if err := m.outages.OpenOutage(ctx, o); err != nil {
		m.log.Error("open_outage_error", zap.String("endpoint_id", string(ep.ID)), zap.Error(err))
		return
	}
	m.log.Warn("outage_opened",
		zap.Int64("outage_id", o.ID),
		zap.String("endpoint_id", string(ep.ID)),
		zap.String("severity", string(o.Severity)),
		zap.Time("start_time", o.StartTime),
	)
	m.emit(ctx, Event{Type: EventOpened, Endpoint: ep, Outage: o, At: tr.At})
}

func (m *Manager) closeOpen(ctx context.Context, tr tracker.Transition) {
	open, err := m.outages.FindOpenOutage(ctx, tr.Endpoint.ID)
	if err != nil {
		m.log.Warn("find_open_outage_error", zap.String("endpoint_id", string(tr.Endpoint.ID)), zap.Error(err))
		return
	}
	if open == nil {
		return
	}
	m.resolve(ctx, open, "endpoint recovered", "engine")
	m.emit(ctx, Event{Type: EventResolved, Endpoint: tr.Endpoint, Outage: open, At: tr.At})
}

// Resolve closes an outage by id on behalf of an operator. Resolving an
// already-resolved outage is a no-op.
func (m *Manager) Resolve(ctx context.Context, id int64, notes, by string) (*domain.ServiceOutage, error) {
	o, err := m.outages.GetOutage(ctx, id)
	if err != nil || o == nil {
		return nil, err
	}
	if o.Resolved() {
		return o, nil
	}
	m.resolve(ctx, o, notes, by)
	if ep, err := m.endpoints.GetEndpoint(ctx, o.EndpointID); err == nil && ep != nil {
		m.emit(ctx, Event{Type: EventResolved, Endpoint: ep, Outage: o, At: *o.EndTime})
	}
	return o, nil
}

func (m *Manager) resolve(ctx context.Context, o *domain.ServiceOutage, notes, by string) {
	end := m.now()
	o.EndTime = &end
	o.Duration = end.Sub(o.StartTime)
	o.ResolutionNotes = notes
	o.ResolvedBy = by
	o.Synced = false
	if err := m.outages.UpdateOutage(ctx, o); err != nil {
		m.log.Error("close_outage_error", zap.Int64("outage_id", o.ID), zap.Error(err))
		return
	}
	m.log.Info("outage_resolved",
		zap.Int64("outage_id", o.ID),
		zap.String("endpoint_id", string(o.EndpointID)),
		zap.Duration("duration", o.Duration),
	)
}

// RunEscalations periodically promotes open outages that outlived the
// escalation threshold. Stops when ctx is cancelled.
func (m *Manager) RunEscalations(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = time.Minute
	}
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("escalation_sweep_stopped")
			return
		case <-t.C:
			m.EscalateOnce(ctx)
		}
	}
}

// EscalateOnce sweeps open outages and promotes stale ones a single step.
func (m *Manager) EscalateOnce(ctx context.Context) {
	p := m.policy()
	if p.EscalateAfter <= 0 {
		return
	}
	open, err := m.outages.ListOpenOutages(ctx)
	if err != nil {
		m.log.Warn("escalation_list_error", zap.Error(err))
		return
	}
	now := m.now()
	for _, o := range open {
		if o.EscalatedAt != nil || o.Age(now) < p.EscalateAfter {
			continue
		}
		o.Severity = o.Severity.Promote()
		o.EscalatedAt = &now
		o.Synced = false
		if err := m.outages.UpdateOutage(ctx, o); err != nil {
			m.log.Error("escalate_outage_error", zap.Int64("outage_id", o.ID), zap.Error(err))
			continue
		}
		m.log.Warn("outage_escalated",
			zap.Int64("outage_id", o.ID),
			zap.String("endpoint_id", string(o.EndpointID)),
			zap.String("severity", string(o.Severity)),
		)
		ep, err := m.endpoints.GetEndpoint(ctx, o.EndpointID)
		if err != nil || ep == nil {
			continue
		}
		m.emit(ctx, Event{Type: EventEscalated, Endpoint: ep, Outage: o, At: now})
	}
}

func (m *Manager) emit(ctx context.Context, ev Event) {
	if m.alerter != nil {
		m.alerter.Notify(ctx, ev)
	}
}
