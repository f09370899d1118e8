package probe

import (
	"context"
	"time"

	"servicewatch/internal/backoff"

	"servicewatch/internal/domain"
)

// RetryChecker re-runs a failed check a few times with a short backoff so a
// transient blip never reaches the status tracker. The endpoint's own Retries
// field, when set, overrides the default attempt count; the default itself is
// read per check so a reload applies immediately.
type RetryChecker struct {
	Inner    Checker
	Defaults func() Defaults
	MaxWait  time.Duration
}

func (r *RetryChecker) Check(ctx context.Context, ep *domain.ServiceEndpoint) Outcome {
	var def Defaults
	if r.Defaults != nil {
		def = r.Defaults()
	}
	attempts := def.Attempts
	if ep.Retries > 0 {
		attempts = ep.Retries
	}
	if attempts < 1 {
		attempts = 1
	}
	maxWait := r.MaxWait
	if maxWait <= 0 {
		maxWait = 5 * time.Second
	}

	var last Outcome
	for i := 1; i <= attempts; i++ {
		last = r.Inner.Check(ctx, ep)
		if last.OK {
			return last
		}
		if i < attempts {
			select {
			case <-ctx.Done():
				return last
			case <-time.After(backoff.Delay(i, def.Backoff, maxWait)):
			}
		}
	}
	last.Message = last.Message + " (after retries)"
	return last
}
