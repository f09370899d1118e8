package domain

import (
	"time"

	"github.com/robfig/cron/v3"
)

// MaintenanceWindow suppresses alert dispatch for covered endpoints while it
// is active. Detection keeps running; only notifications are held back.
//
// A one-shot window is [StartTime, EndTime]. A recurring window carries a
// standard cron expression in Recurrence plus a Duration; each cron firing
// opens the window for Duration. Activity is derived from the wall clock at
// dispatch time, no background job flips windows on and off.
type MaintenanceWindow struct {
	ID         int64         `json:"id"`
	EndpointID EndpointID    `json:"endpoint_id,omitempty"`
	Tag        string        `json:"tag,omitempty"`
	StartTime  time.Time     `json:"start_time"`
	EndTime    time.Time     `json:"end_time"`
	Recurrence string        `json:"recurrence,omitempty"`
	Duration   time.Duration `json:"duration,omitempty"`
	Comment    string        `json:"comment,omitempty"`
}

// Covers reports whether the window applies to the given endpoint, either by
// direct endpoint id or by tag.
func (w *MaintenanceWindow) Covers(ep *ServiceEndpoint) bool {
	if w.EndpointID != "" && w.EndpointID == ep.ID {
		return true
	}
	return w.Tag != "" && ep.HasTag(w.Tag)
}

// ActiveAt reports whether the window is active at t.
func (w *MaintenanceWindow) ActiveAt(t time.Time) bool {
	if w.Recurrence == "" {
		return !t.Before(w.StartTime) && !t.After(w.EndTime)
	}
	if w.Duration <= 0 {
		return false
	}
	sched, err := cron.ParseStandard(w.Recurrence)
	if err != nil {
		// Malformed recurrence should have been rejected at admin validation;
		// treat it as never active rather than swallowing alerts forever.
		return false
	}
	// If an occurrence started within the last Duration, its window is open.
	next := sched.Next(t.Add(-w.Duration))
	return !next.After(t) && t.Before(next.Add(w.Duration))
}

// ValidRecurrence reports whether expr parses as a standard cron expression.
func ValidRecurrence(expr string) bool {
	if expr == "" {
		return true
	}
	_, err := cron.ParseStandard(expr)
	return err == nil
}
