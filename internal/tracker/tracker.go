package tracker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"servicewatch/internal/backoff"
	"servicewatch/internal/domain"
	"servicewatch/internal/probe"
	"servicewatch/internal/repo"
)

// Transition is emitted whenever the derived endpoint state changes.
type Transition struct {
	Endpoint *domain.ServiceEndpoint
	From, To domain.EndpointState
	// FailureStreak holds the trailing failed records when To is DOWN. Its
	// first element carries the true outage start time.
	FailureStreak []domain.ServiceStatus
	At            time.Time
}

// TransitionSink consumes state transitions for one endpoint, called on the
// endpoint's serialized path.
type TransitionSink interface {
	OnTransition(ctx context.Context, tr Transition)
}

// Policy is the detection tuning read per check so SIGHUP reloads apply on
// the next tick.
type Policy struct {
	Threshold       int
	Recovery        int
	LatencyBudgetMS float64
}

// Tracker turns probe outcomes into ServiceStatus records and derives the
// per-endpoint state from the tail of history. Callers must serialize Apply
// per endpoint; the scheduler's per-endpoint loops guarantee that.
type Tracker struct {
	log      *zap.Logger
	statuses repo.StatusStore
	sink     TransitionSink
	policy   func() Policy

	mu    sync.Mutex
	tails map[domain.EndpointID][]domain.ServiceStatus
}

func New(log *zap.Logger, statuses repo.StatusStore, sink TransitionSink, policy func() Policy) *Tracker {
	return &Tracker{
		log:      log,
		statuses: statuses,
		sink:     sink,
		policy:   policy,
		tails:    make(map[domain.EndpointID][]domain.ServiceStatus),
	}
}

// Apply records one probe outcome and drives the state machine.
func (t *Tracker) Apply(ctx context.Context, ep *domain.ServiceEndpoint, out probe.Outcome) {
	p := t.policy()
	if p.Threshold < 1 {
		p.Threshold = 3
	}
	if p.Recovery < 1 {
		p.Recovery = 1
	}

	st := domain.ServiceStatus{
		EndpointID: ep.ID,
		State:      observedState(ep, out, p),
		OK:         out.OK,
		LatencyMS:  out.LatencyMS,
		Reason:     string(out.Kind) + ": " + out.Message,
		CheckedAt:  time.Now().UTC(),
	}

	tail := t.loadTail(ctx, ep.ID, tailCap(p))
	from := deriveState(tail, p.Threshold, p.Recovery)

	t.persist(ctx, ep, &st)

	tail = append(tail, st)
	if c := tailCap(p); len(tail) > c {
		tail = tail[len(tail)-c:]
	}
	t.storeTail(ep.ID, tail)

	to := deriveState(tail, p.Threshold, p.Recovery)
	if from == to {
		return
	}

	tr := Transition{Endpoint: ep, From: from, To: to, At: st.CheckedAt}
	if to == domain.StateDown {
		tr.FailureStreak = trailingFailures(tail)
	}
	t.log.Info("state_transition",
		zap.String("endpoint_id", string(ep.ID)),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
	if t.sink != nil {
		t.sink.OnTransition(ctx, tr)
	}
}

// State returns the currently derived state for an endpoint.
func (t *Tracker) State(ctx context.Context, id domain.EndpointID) domain.EndpointState {
	p := t.policy()
	if p.Threshold < 1 {
		p.Threshold = 3
	}
	if p.Recovery < 1 {
		p.Recovery = 1
	}
	tail := t.loadTail(ctx, id, tailCap(p))
	return deriveState(tail, p.Threshold, p.Recovery)
}

// Forget drops the cached tail, e.g. when an endpoint is deleted.
func (t *Tracker) Forget(id domain.EndpointID) {
	t.mu.Lock()
	delete(t.tails, id)
	t.mu.Unlock()
}

func (t *Tracker) loadTail(ctx context.Context, id domain.EndpointID, n int) []domain.ServiceStatus {
	t.mu.Lock()
	tail, ok := t.tails[id]
	t.mu.Unlock()
	if ok {
		return tail
	}
	tail, err := t.statuses.StatusTail(ctx, id, n)
	if err != nil {
		t.log.Warn("tail_rebuild_error", zap.String("endpoint_id", string(id)), zap.Error(err))
		tail = nil
	}
	t.storeTail(id, tail)
	return tail
}

func (t *Tracker) storeTail(id domain.EndpointID, tail []domain.ServiceStatus) {
	t.mu.Lock()
	t.tails[id] = tail
	t.mu.Unlock()
}

// persist appends the status record with a few bounded retries. Detection
// keeps running on the in-memory tail even if the store lags.
func (t *Tracker) persist(ctx context.Context, ep *domain.ServiceEndpoint, st *domain.ServiceStatus) {
	const attempts = 3
	var err error
	for i := 1; i <= attempts; i++ {
		if err = t.statuses.AppendStatus(ctx, st); err == nil {
			return
		}
		if i < attempts {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff.Delay(i, 200*time.Millisecond, 2*time.Second)):
			}
		}
	}
	t.log.Warn("status_append_error",
		zap.String("endpoint_id", string(ep.ID)),
		zap.Error(err),
	)
}

func observedState(ep *domain.ServiceEndpoint, out probe.Outcome, p Policy) domain.EndpointState {
	if !out.OK {
		return domain.StateDown
	}
	budget := ep.LatencyBudgetMS
	if budget == 0 {
		budget = p.LatencyBudgetMS
	}
	if budget > 0 && out.LatencyMS > budget {
		return domain.StateDegraded
	}
	return domain.StateUp
}

func tailCap(p Policy) int {
	c := 2 * (p.Threshold + p.Recovery)
	if c < 32 {
		c = 32
	}
	return c
}

// deriveState recomputes the endpoint state purely from the record tail.
// A failure run shorter than threshold keeps the preceding state; leaving
// DOWN takes recovery consecutive successes.
func deriveState(tail []domain.ServiceStatus, threshold, recovery int) domain.EndpointState {
	if len(tail) == 0 {
		return domain.StateUnknown
	}

	f := 0
	for i := len(tail) - 1; i >= 0 && !tail[i].OK; i-- {
		f++
	}
	if f >= threshold {
		return domain.StateDown
	}
	if f > 0 {
		// Below threshold: the streak carries no state weight yet.
		return deriveState(tail[:len(tail)-f], threshold, recovery)
	}

	s := 0
	for i := len(tail) - 1; i >= 0 && tail[i].OK; i-- {
		s++
	}
	if s < recovery && deriveState(tail[:len(tail)-s], threshold, recovery) == domain.StateDown {
		return domain.StateDown
	}
	return tail[len(tail)-1].State
}

func trailingFailures(tail []domain.ServiceStatus) []domain.ServiceStatus {
	i := len(tail)
	for i > 0 && !tail[i-1].OK {
		i--
	}
	streak := make([]domain.ServiceStatus, len(tail)-i)
	copy(streak, tail[i:])
	return streak
}
