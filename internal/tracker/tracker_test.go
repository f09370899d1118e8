package tracker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"servicewatch/internal/domain"
	"servicewatch/internal/probe"
	"servicewatch/internal/repo/memory"
)

type sinkRecorder struct {
	transitions []Transition
}

func (s *sinkRecorder) OnTransition(ctx context.Context, tr Transition) {
	s.transitions = append(s.transitions, tr)
}

func fixedPolicy(threshold, recovery int, budget float64) func() Policy {
	return func() Policy {
		return Policy{Threshold: threshold, Recovery: recovery, LatencyBudgetMS: budget}
	}
}

func st(ok bool, state domain.EndpointState) domain.ServiceStatus {
	return domain.ServiceStatus{OK: ok, State: state}
}

func TestDeriveState(t *testing.T) {
	up := st(true, domain.StateUp)
	down := st(false, domain.StateDown)
	deg := st(true, domain.StateDegraded)

	cases := []struct {
		name      string
		tail      []domain.ServiceStatus
		threshold int
		recovery  int
		want      domain.EndpointState
	}{
		{"empty", nil, 3, 1, domain.StateUnknown},
		{"single success", []domain.ServiceStatus{up}, 3, 1, domain.StateUp},
		{"one failure keeps up", []domain.ServiceStatus{up, down}, 3, 1, domain.StateUp},
		{"two failures keep up", []domain.ServiceStatus{up, down, down}, 3, 1, domain.StateUp},
		{"threshold crossing", []domain.ServiceStatus{up, down, down, down}, 3, 1, domain.StateDown},
		{"success resets streak", []domain.ServiceStatus{up, down, down, up, down, down}, 3, 1, domain.StateUp},
		{"recovery after down", []domain.ServiceStatus{down, down, down, up}, 3, 1, domain.StateUp},
		{"stabilizing recovery incomplete", []domain.ServiceStatus{down, down, down, up}, 3, 2, domain.StateDown},
		{"stabilizing recovery complete", []domain.ServiceStatus{down, down, down, up, up}, 3, 2, domain.StateUp},
		{"degraded latest", []domain.ServiceStatus{up, deg}, 3, 1, domain.StateDegraded},
		{"failures below threshold keep degraded", []domain.ServiceStatus{deg, down}, 3, 1, domain.StateDegraded},
		{"only failures below threshold", []domain.ServiceStatus{down, down}, 3, 1, domain.StateUnknown},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, deriveState(c.tail, c.threshold, c.recovery))
		})
	}
}

func TestTracker_ThresholdCrossingEmitsDownWithStreak(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sink := &sinkRecorder{}
	tr := New(zap.NewNop(), store, sink, fixedPolicy(3, 1, 0))
	ep := &domain.ServiceEndpoint{ID: "ep-1", Name: "api"}

	tr.Apply(ctx, ep, probe.Outcome{OK: true, Kind: probe.KindSuccess})
	for i := 0; i < 3; i++ {
		tr.Apply(ctx, ep, probe.Outcome{Kind: probe.KindTimeout})
	}

	require.Len(t, sink.transitions, 2) // UNKNOWN->UP, UP->DOWN
	last := sink.transitions[1]
	require.Equal(t, domain.StateUp, last.From)
	require.Equal(t, domain.StateDown, last.To)
	require.Len(t, last.FailureStreak, 3)
	require.False(t, last.FailureStreak[0].CheckedAt.After(last.FailureStreak[2].CheckedAt))
}

func TestTracker_ShortStreakNeverGoesDown(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sink := &sinkRecorder{}
	tr := New(zap.NewNop(), store, sink, fixedPolicy(3, 1, 0))
	ep := &domain.ServiceEndpoint{ID: "ep-1"}

	tr.Apply(ctx, ep, probe.Outcome{OK: true, Kind: probe.KindSuccess})
	tr.Apply(ctx, ep, probe.Outcome{Kind: probe.KindTimeout})
	tr.Apply(ctx, ep, probe.Outcome{Kind: probe.KindTimeout})
	tr.Apply(ctx, ep, probe.Outcome{OK: true, Kind: probe.KindSuccess})
	tr.Apply(ctx, ep, probe.Outcome{Kind: probe.KindTimeout})
	tr.Apply(ctx, ep, probe.Outcome{Kind: probe.KindTimeout})

	for _, x := range sink.transitions {
		require.NotEqual(t, domain.EndpointState("DOWN"), x.To, "short streaks must not go DOWN")
	}
	require.Equal(t, domain.StateUp, tr.State(ctx, ep.ID))
}

func TestTracker_LatencyBudgetDegrades(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	sink := &sinkRecorder{}
	tr := New(zap.NewNop(), store, sink, fixedPolicy(3, 1, 100))
	ep := &domain.ServiceEndpoint{ID: "ep-1"}

	tr.Apply(ctx, ep, probe.Outcome{OK: true, Kind: probe.KindSuccess, LatencyMS: 50})
	tr.Apply(ctx, ep, probe.Outcome{OK: true, Kind: probe.KindSuccess, LatencyMS: 500})

	require.Equal(t, domain.StateDegraded, tr.State(ctx, ep.ID))
	last := sink.transitions[len(sink.transitions)-1]
	require.Equal(t, domain.StateDegraded, last.To)
}

func TestTracker_EveryCheckAppendsExactlyOneRecord(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	tr := New(zap.NewNop(), store, nil, fixedPolicy(3, 1, 0))
	ep := &domain.ServiceEndpoint{ID: "ep-1"}

	for i := 0; i < 7; i++ {
		tr.Apply(ctx, ep, probe.Outcome{OK: i%2 == 0, Kind: probe.KindSuccess})
	}
	tail, err := store.StatusTail(ctx, ep.ID, 100)
	require.NoError(t, err)
	require.Len(t, tail, 7)
}

func TestTracker_RebuildsTailFromStore(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	base := time.Now().UTC()
	// Pre-existing history: two failures on disk.
	for i := 0; i < 2; i++ {
		require.NoError(t, store.AppendStatus(ctx, &domain.ServiceStatus{
			EndpointID: "ep-1", State: domain.StateDown, CheckedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}
	sink := &sinkRecorder{}
	tr := New(zap.NewNop(), store, sink, fixedPolicy(3, 1, 0))
	ep := &domain.ServiceEndpoint{ID: "ep-1"}

	// A fresh tracker must count the persisted streak: one more failure
	// crosses the threshold.
	tr.Apply(ctx, ep, probe.Outcome{Kind: probe.KindRefused})
	require.Equal(t, domain.StateDown, tr.State(ctx, ep.ID))
	require.NotEmpty(t, sink.transitions)
	require.Equal(t, domain.StateDown, sink.transitions[len(sink.transitions)-1].To)
	require.Len(t, sink.transitions[len(sink.transitions)-1].FailureStreak, 3)
}
