// Package syncer drains unsynced check results and outage records to the
// time-series store in batches. Records are marked synced only after the
// store confirms the write, so a crash or a failed batch re-ships rather than
// drops data.
package syncer

import (
	"context"
	"time"

	"go.uber.org/zap"

	"servicewatch/internal/backoff"
	"servicewatch/internal/domain"
	"servicewatch/internal/repo"
	"servicewatch/internal/tsdb"
)

type Worker struct {
	log      *zap.Logger
	statuses repo.StatusStore
	outages  repo.OutageStore
	sink     tsdb.Writer
	interval time.Duration
	batch    int
}

func New(log *zap.Logger, statuses repo.StatusStore, outages repo.OutageStore, sink tsdb.Writer, interval time.Duration, batch int) *Worker {
	if interval <= 0 {
		interval = time.Minute
	}
	if batch <= 0 {
		batch = 200
	}
	return &Worker{
		log:      log,
		statuses: statuses,
		outages:  outages,
		sink:     sink,
		interval: interval,
		batch:    batch,
	}
}

// Run loops until ctx is cancelled. Consecutive failures back off up to five
// minutes instead of hammering a store that is down.
func (w *Worker) Run(ctx context.Context) {
	failures := 0
	for {
		delay := w.interval
		if failures > 0 {
			delay = backoff.Delay(failures, w.interval, 5*time.Minute)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		if err := w.SyncOnce(ctx); err != nil {
			failures++
			w.log.Warn("sync_failed", zap.Error(err), zap.Int("consecutive_failures", failures))
			continue
		}
		failures = 0
	}
}

// SyncOnce ships one batch of statuses and one of outages.
func (w *Worker) SyncOnce(ctx context.Context) error {
	if err := w.syncStatuses(ctx); err != nil {
		return err
	}
	return w.syncOutages(ctx)
}

func (w *Worker) syncStatuses(ctx context.Context) error {
	sts, err := w.statuses.UnsyncedStatuses(ctx, w.batch)
	if err != nil {
		return err
	}
	if len(sts) == 0 {
		return nil
	}
	docs := make([]tsdb.Doc, 0, len(sts))
	ids := make([]int64, 0, len(sts))
	for _, st := range sts {
		docs = append(docs, statusDoc(st))
		ids = append(ids, st.ID)
	}
	if err := w.sink.WriteBatch(ctx, docs); err != nil {
		return err
	}
	if err := w.statuses.MarkStatusesSynced(ctx, ids); err != nil {
		return err
	}
	w.log.Debug("statuses_synced", zap.Int("count", len(ids)))
	return nil
}

func (w *Worker) syncOutages(ctx context.Context) error {
	outs, err := w.outages.UnsyncedOutages(ctx, w.batch)
	if err != nil {
		return err
	}
	if len(outs) == 0 {
		return nil
	}
	docs := make([]tsdb.Doc, 0, len(outs))
	ids := make([]int64, 0, len(outs))
	for _, o := range outs {
		docs = append(docs, outageDoc(o))
		ids = append(ids, o.ID)
	}
	if err := w.sink.WriteBatch(ctx, docs); err != nil {
		return err
	}
	if err := w.outages.MarkOutagesSynced(ctx, ids); err != nil {
		return err
	}
	w.log.Debug("outages_synced", zap.Int("count", len(ids)))
	return nil
}

func statusDoc(st domain.ServiceStatus) tsdb.Doc {
	return tsdb.Doc{
		Kind:      "status",
		ID:        st.ID,
		Endpoint:  string(st.EndpointID),
		Timestamp: st.CheckedAt,
		Fields: map[string]any{
			"state":      string(st.State),
			"ok":         st.OK,
			"latency_ms": st.LatencyMS,
			"reason":     st.Reason,
		},
	}
}

func outageDoc(o domain.ServiceOutage) tsdb.Doc {
	fields := map[string]any{
		"severity": string(o.Severity),
		"verified": o.Verified,
		"resolved": o.Resolved(),
	}
	if o.EndTime != nil {
		fields["end_time"] = o.EndTime.UTC()
		fields["duration_ms"] = o.Duration.Milliseconds()
	}
	if o.ResolvedBy != "" {
		fields["resolved_by"] = o.ResolvedBy
	}
	return tsdb.Doc{
		Kind:      "outage",
		ID:        o.ID,
		Endpoint:  string(o.EndpointID),
		Timestamp: o.StartTime,
		Fields:    fields,
	}
}
