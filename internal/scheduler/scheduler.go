// Package scheduler runs one check loop per active endpoint. The loop
// goroutine is the only writer for its endpoint's status stream, which gives
// the tracker the per-endpoint serialization it requires. A global semaphore
// caps how many probes run at once across all loops.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"servicewatch/internal/domain"
	"servicewatch/internal/probe"
	"servicewatch/internal/repo"
)

// Applier consumes probe outcomes, one serialized call per endpoint.
type Applier interface {
	Apply(ctx context.Context, ep *domain.ServiceEndpoint, out probe.Outcome)
}

type loop struct {
	cancel      context.CancelFunc
	fingerprint string
}

type Scheduler struct {
	log       *zap.Logger
	checker   probe.Checker
	applier   Applier
	endpoints repo.EndpointStore

	sem             chan struct{}
	refresh         time.Duration
	defaultInterval func() time.Duration
	forget          func(domain.EndpointID)

	mu    sync.Mutex
	loops map[domain.EndpointID]*loop
	wg    sync.WaitGroup
}

// New builds a scheduler. defaultInterval is read per tick for endpoints
// without an explicit interval, so a reloaded default applies without a
// restart.
func New(log *zap.Logger, checker probe.Checker, applier Applier, endpoints repo.EndpointStore, maxConcurrent int, refresh time.Duration, defaultInterval func() time.Duration) *Scheduler {
	if maxConcurrent < 1 {
		maxConcurrent = 16
	}
	if refresh <= 0 {
		refresh = 15 * time.Second
	}
	if defaultInterval == nil {
		defaultInterval = func() time.Duration { return 30 * time.Second }
	}
	return &Scheduler{
		log:             log,
		checker:         checker,
		applier:         applier,
		endpoints:       endpoints,
		sem:             make(chan struct{}, maxConcurrent),
		refresh:         refresh,
		defaultInterval: defaultInterval,
		loops:           make(map[domain.EndpointID]*loop),
	}
}

// SetForget installs a callback invoked when an endpoint's loop is torn down,
// used to drop the tracker's cached tail for removed endpoints.
func (s *Scheduler) SetForget(fn func(domain.EndpointID)) { s.forget = fn }

// Run reconciles loops against the registry until ctx is cancelled, then
// stops every loop and waits for in-flight checks to finish.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.refresh)
	defer ticker.Stop()

	s.reconcile(ctx)
	for {
		select {
		case <-ctx.Done():
			s.stopAll()
			s.wg.Wait()
			return
		case <-ticker.C:
			s.reconcile(ctx)
		}
	}
}

func (s *Scheduler) reconcile(ctx context.Context) {
	eps, err := s.endpoints.ListEndpoints(ctx, true)
	if err != nil {
		s.log.Warn("registry_refresh_error", zap.Error(err))
		return
	}
	s.Sync(ctx, eps)
}

// Sync diffs the desired endpoint set against running loops: new endpoints
// get a loop, changed endpoints get their loop restarted with the new
// definition, and loops for missing endpoints are stopped.
func (s *Scheduler) Sync(ctx context.Context, eps []*domain.ServiceEndpoint) {
	desired := make(map[domain.EndpointID]*domain.ServiceEndpoint, len(eps))
	for _, ep := range eps {
		if ep.Active {
			desired[ep.ID] = ep
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, l := range s.loops {
		ep, ok := desired[id]
		if ok && l.fingerprint == fingerprint(ep) {
			delete(desired, id)
			continue
		}
		l.cancel()
		delete(s.loops, id)
		if !ok {
			s.log.Info("endpoint_unscheduled", zap.String("endpoint_id", string(id)))
			if s.forget != nil {
				s.forget(id)
			}
		}
	}

	for id, ep := range desired {
		loopCtx, cancel := context.WithCancel(ctx)
		s.loops[id] = &loop{cancel: cancel, fingerprint: fingerprint(ep)}
		s.wg.Add(1)
		go s.runLoop(loopCtx, cloneEndpoint(ep))
		s.log.Info("endpoint_scheduled",
			zap.String("endpoint_id", string(id)),
			zap.String("protocol", string(ep.Protocol)),
			zap.Duration("interval", s.interval(ep)),
		)
	}
}

// runLoop checks one endpoint forever: once immediately, then on its
// interval. The interval is re-evaluated after every check, so endpoints on
// the default cadence follow a reloaded default from their next tick.
// Results observed after loop cancellation are discarded so a stale
// definition never writes into the stream of its replacement.
func (s *Scheduler) runLoop(ctx context.Context, ep *domain.ServiceEndpoint) {
	defer s.wg.Done()

	s.checkOnce(ctx, ep)
	timer := time.NewTimer(s.interval(ep))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.checkOnce(ctx, ep)
			timer.Reset(s.interval(ep))
		}
	}
}

func (s *Scheduler) checkOnce(ctx context.Context, ep *domain.ServiceEndpoint) {
	select {
	case <-ctx.Done():
		return
	case s.sem <- struct{}{}:
	}
	defer func() { <-s.sem }()

	out := s.checker.Check(ctx, ep)
	if ctx.Err() != nil {
		return
	}
	s.applier.Apply(ctx, ep, out)
}

func (s *Scheduler) interval(ep *domain.ServiceEndpoint) time.Duration {
	if ep.CheckInterval > 0 {
		return ep.CheckInterval
	}
	if d := s.defaultInterval(); d > 0 {
		return d
	}
	return 30 * time.Second
}

func (s *Scheduler) stopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, l := range s.loops {
		l.cancel()
		delete(s.loops, id)
	}
}

// Running reports how many endpoint loops are active.
func (s *Scheduler) Running() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.loops)
}

// fingerprint covers every field that changes probing behavior; a changed
// fingerprint restarts the loop.
func fingerprint(ep *domain.ServiceEndpoint) string {
	return fmt.Sprintf("%s|%s|%d|%s|%s|%d|%d|%s|%g",
		ep.Address, ep.Protocol, ep.Port,
		ep.CheckInterval, ep.Timeout, ep.Retries,
		ep.ExpectedStatus, ep.ExpectedPattern, ep.LatencyBudgetMS,
	)
}

func cloneEndpoint(ep *domain.ServiceEndpoint) *domain.ServiceEndpoint {
	cp := *ep
	cp.Tags = append([]string(nil), ep.Tags...)
	return &cp
}
