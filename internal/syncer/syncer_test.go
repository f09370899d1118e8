package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"servicewatch/internal/domain"
	"servicewatch/internal/repo/memory"
	"servicewatch/internal/tsdb"
)

type captureSink struct {
	batches [][]tsdb.Doc
	fail    bool
}

func (s *captureSink) WriteBatch(ctx context.Context, docs []tsdb.Doc) error {
	if s.fail {
		return errors.New("store unavailable")
	}
	s.batches = append(s.batches, docs)
	return nil
}

func seedStatuses(t *testing.T, store *memory.Store, n int) {
	t.Helper()
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		err := store.AppendStatus(context.Background(), &domain.ServiceStatus{
			EndpointID: "ep-1",
			State:      domain.StateUp,
			OK:         true,
			LatencyMS:  float64(10 + i),
			CheckedAt:  base.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}
}

func TestSyncOnce_ShipsAndMarks(t *testing.T) {
	store := memory.New()
	sink := &captureSink{}
	seedStatuses(t, store, 3)

	end := time.Date(2025, 6, 1, 11, 0, 0, 0, time.UTC)
	o := &domain.ServiceOutage{
		EndpointID: "ep-1",
		StartTime:  end.Add(-10 * time.Minute),
		Severity:   domain.SeverityMajor,
	}
	require.NoError(t, store.OpenOutage(context.Background(), o))

	w := New(zap.NewNop(), store, store, sink, time.Minute, 100)
	require.NoError(t, w.SyncOnce(context.Background()))

	require.Len(t, sink.batches, 2, "one status batch, one outage batch")
	require.Len(t, sink.batches[0], 3)
	require.Equal(t, "status", sink.batches[0][0].Kind)
	require.Equal(t, "outage", sink.batches[1][0].Kind)

	left, err := store.UnsyncedStatuses(context.Background(), 100)
	require.NoError(t, err)
	require.Empty(t, left, "shipped statuses must be marked synced")
	leftO, err := store.UnsyncedOutages(context.Background(), 100)
	require.NoError(t, err)
	require.Empty(t, leftO)
}

func TestSyncOnce_FailureLeavesUnsynced(t *testing.T) {
	store := memory.New()
	sink := &captureSink{fail: true}
	seedStatuses(t, store, 2)

	w := New(zap.NewNop(), store, store, sink, time.Minute, 100)
	require.Error(t, w.SyncOnce(context.Background()))

	left, err := store.UnsyncedStatuses(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, left, 2, "failed batch must stay unsynced")

	// Store recovers; the same records ship on the next pass.
	sink.fail = false
	require.NoError(t, w.SyncOnce(context.Background()))
	left, err = store.UnsyncedStatuses(context.Background(), 100)
	require.NoError(t, err)
	require.Empty(t, left)
}

func TestSyncOnce_HonorsBatchLimit(t *testing.T) {
	store := memory.New()
	sink := &captureSink{}
	seedStatuses(t, store, 5)

	w := New(zap.NewNop(), store, store, sink, time.Minute, 2)
	require.NoError(t, w.SyncOnce(context.Background()))
	require.Len(t, sink.batches[0], 2)

	left, err := store.UnsyncedStatuses(context.Background(), 100)
	require.NoError(t, err)
	require.Len(t, left, 3)
}

func TestRun_StopsOnCancel(t *testing.T) {
	store := memory.New()
	w := New(zap.NewNop(), store, store, &captureSink{}, 5*time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}
