package outage

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"servicewatch/internal/domain"
	"servicewatch/internal/probe"
	"servicewatch/internal/repo/memory"
	"servicewatch/internal/tracker"
)

type fakeVerifier struct {
	out   probe.Outcome
	calls int
}

func (f *fakeVerifier) Check(ctx context.Context, ep *domain.ServiceEndpoint) probe.Outcome {
	f.calls++
	return f.out
}

type eventRecorder struct {
	events []Event
}

func (e *eventRecorder) Notify(ctx context.Context, ev Event) {
	e.events = append(e.events, ev)
}

func (e *eventRecorder) ofType(t EventType) []Event {
	var out []Event
	for _, ev := range e.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// rig wires a real tracker to a manager over one memory store, the same shape
// the engine runs with.
type rig struct {
	store   *memory.Store
	tracker *tracker.Tracker
	manager *Manager
	events  *eventRecorder
	ep      *domain.ServiceEndpoint
}

func newRig(t *testing.T, verify *fakeVerifier, policy Policy) *rig {
	t.Helper()
	store := memory.New()
	events := &eventRecorder{}
	var v probe.Checker
	if verify != nil {
		v = verify
	}
	mgr := NewManager(zap.NewNop(), store, store, v, events, func() Policy { return policy })
	trk := tracker.New(zap.NewNop(), store, mgr, func() tracker.Policy {
		return tracker.Policy{Threshold: 3, Recovery: 1}
	})
	mgr.SetHistory(trk)

	ep := &domain.ServiceEndpoint{ID: "ep-1", Name: "api", Active: true}
	require.NoError(t, store.CreateEndpoint(context.Background(), ep))
	return &rig{store: store, tracker: trk, manager: mgr, events: events, ep: ep}
}

func (r *rig) fail(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		r.tracker.Apply(ctx, r.ep, probe.Outcome{Kind: probe.KindTimeout, Message: "deadline exceeded"})
	}
}

func (r *rig) succeed(ctx context.Context, n int) {
	for i := 0; i < n; i++ {
		r.tracker.Apply(ctx, r.ep, probe.Outcome{OK: true, Kind: probe.KindSuccess})
	}
}

func TestManager_OpensOutageAtThreshold(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, nil, Policy{VerifyEnabled: false})

	r.succeed(ctx, 1)
	r.fail(ctx, 3)

	open, err := r.store.FindOpenOutage(ctx, r.ep.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	require.Equal(t, domain.SeverityMajor, open.Severity)
	require.Len(t, r.events.ofType(EventOpened), 1)

	// Start time must be the first failure of the streak, not detection time.
	tail, err := r.store.StatusTail(ctx, r.ep.ID, 10)
	require.NoError(t, err)
	require.Len(t, tail, 4)
	require.True(t, open.StartTime.Equal(tail[1].CheckedAt),
		"start=%v want first failure at %v", open.StartTime, tail[1].CheckedAt)
}

func TestManager_ShortStreakOpensNothing(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, nil, Policy{})

	r.succeed(ctx, 1)
	r.fail(ctx, 2)
	r.succeed(ctx, 1)
	r.fail(ctx, 2)

	open, err := r.store.FindOpenOutage(ctx, r.ep.ID)
	require.NoError(t, err)
	require.Nil(t, open)
	require.Empty(t, r.events.ofType(EventOpened))
}

func TestManager_VerificationSuppressesFalsePositive(t *testing.T) {
	ctx := context.Background()
	verifier := &fakeVerifier{out: probe.Outcome{OK: true, Kind: probe.KindSuccess}}
	r := newRig(t, verifier, Policy{VerifyEnabled: true})

	r.succeed(ctx, 1)
	r.fail(ctx, 3)

	require.Equal(t, 1, verifier.calls)
	open, err := r.store.FindOpenOutage(ctx, r.ep.ID)
	require.NoError(t, err)
	require.Nil(t, open, "verification success must suppress the outage")
	require.Equal(t, domain.StateUp, r.tracker.State(ctx, r.ep.ID))

	// History keeps the failures plus the verification success.
	tail, _ := r.store.StatusTail(ctx, r.ep.ID, 10)
	require.Len(t, tail, 5)
}

func TestManager_VerificationFailureOpensVerifiedOutage(t *testing.T) {
	ctx := context.Background()
	verifier := &fakeVerifier{out: probe.Outcome{Kind: probe.KindRefused}}
	r := newRig(t, verifier, Policy{VerifyEnabled: true})

	r.fail(ctx, 3)

	open, err := r.store.FindOpenOutage(ctx, r.ep.ID)
	require.NoError(t, err)
	require.NotNil(t, open)
	require.True(t, open.Verified)
}

func TestManager_RecoveryClosesOutage(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, nil, Policy{})

	r.fail(ctx, 3)
	r.succeed(ctx, 1)

	open, err := r.store.FindOpenOutage(ctx, r.ep.ID)
	require.NoError(t, err)
	require.Nil(t, open)

	history, err := r.store.OutagesByEndpoint(ctx, r.ep.ID, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	require.True(t, history[0].Resolved())
	require.Greater(t, history[0].Duration, time.Duration(0))
	require.Len(t, r.events.ofType(EventResolved), 1)
}

func TestManager_ResolveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, nil, Policy{})
	r.fail(ctx, 3)

	open, _ := r.store.FindOpenOutage(ctx, r.ep.ID)
	require.NotNil(t, open)

	first, err := r.manager.Resolve(ctx, open.ID, "fixed by ops", "alice")
	require.NoError(t, err)
	require.True(t, first.Resolved())
	end := *first.EndTime

	second, err := r.manager.Resolve(ctx, open.ID, "again", "bob")
	require.NoError(t, err)
	require.True(t, second.EndTime.Equal(end), "re-resolving must not move the end time")
	require.Equal(t, "alice", second.ResolvedBy)
}

func TestManager_EscalationPromotesOnce(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, nil, Policy{EscalateAfter: 2 * time.Hour})
	r.fail(ctx, 3)

	open, _ := r.store.FindOpenOutage(ctx, r.ep.ID)
	require.NotNil(t, open)
	require.Equal(t, domain.SeverityMajor, open.Severity)

	// 2h1m later the sweep promotes and emits an escalation event.
	r.manager.now = func() time.Time { return open.StartTime.Add(2*time.Hour + time.Minute) }
	r.manager.EscalateOnce(ctx)

	promoted, _ := r.store.FindOpenOutage(ctx, r.ep.ID)
	require.Equal(t, domain.SeverityCritical, promoted.Severity)
	require.NotNil(t, promoted.EscalatedAt)
	require.Len(t, r.events.ofType(EventEscalated), 1)

	// A second sweep must not promote again.
	r.manager.EscalateOnce(ctx)
	require.Len(t, r.events.ofType(EventEscalated), 1)
}

func TestManager_SeverityRulesClassifyCritical(t *testing.T) {
	ctx := context.Background()
	r := newRig(t, nil, Policy{
		SeverityRules: []domain.SeverityRule{{Tag: "critical", Severity: domain.SeverityCritical}},
	})
	r.ep.Tags = []string{"critical"}
	r.fail(ctx, 3)

	open, _ := r.store.FindOpenOutage(ctx, r.ep.ID)
	require.NotNil(t, open)
	require.Equal(t, domain.SeverityCritical, open.Severity)
}

// Property: however the outcomes interleave, an endpoint never has more than
// one open outage and never goes down on a sub-threshold streak.
func TestManager_SingleOpenOutageInvariant(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	for trial := 0; trial < 20; trial++ {
		r := newRig(t, nil, Policy{})
		streak := 0
		for i := 0; i < 200; i++ {
			if rng.Intn(100) < 35 {
				r.fail(ctx, 1)
				streak++
			} else {
				r.succeed(ctx, 1)
				streak = 0
			}

			all, err := r.store.OutagesByEndpoint(ctx, r.ep.ID, 0)
			require.NoError(t, err)
			openCount := 0
			for _, o := range all {
				if !o.Resolved() {
					openCount++
				}
			}
			require.LessOrEqual(t, openCount, 1, "trial %d step %d", trial, i)
			if streak > 0 && streak < 3 && openCount == 1 {
				// an open outage here must predate the current short streak
				open, _ := r.store.FindOpenOutage(ctx, r.ep.ID)
				require.True(t, open.StartTime.Before(time.Now().UTC().Add(time.Second)))
			}
		}
	}
}
