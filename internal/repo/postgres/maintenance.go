package postgres

import (
	"context"
	"fmt"
	"time"

	"servicewatch/internal/domain"
)

// ---- MaintenanceStore ----

func (s *Store) CreateWindow(ctx context.Context, w *domain.MaintenanceWindow) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO maintenance_windows
		   (endpoint_id, tag, start_time, end_time, recurrence, duration_ms, comment)
		 VALUES ($1,$2,$3,$4,$5,$6,$7)
		 RETURNING id`,
		string(w.EndpointID), w.Tag, w.StartTime, w.EndTime, w.Recurrence,
		w.Duration.Milliseconds(), w.Comment,
	).Scan(&w.ID)
	if err != nil {
		return fmt.Errorf("insert window: %w", err)
	}
	return nil
}

func (s *Store) DeleteWindow(ctx context.Context, id int64) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM maintenance_windows WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete window: %w", err)
	}
	return nil
}

func (s *Store) ListWindows(ctx context.Context) ([]*domain.MaintenanceWindow, error) {
	return s.listWindows(ctx,
		`SELECT id, endpoint_id, tag, start_time, end_time, recurrence, duration_ms, comment
		   FROM maintenance_windows ORDER BY start_time DESC`)
}

// ActiveWindows narrows to windows that could cover the endpoint in SQL and
// evaluates the wall-clock/recurrence logic in Go, where the cron expression
// lives.
func (s *Store) ActiveWindows(ctx context.Context, ep *domain.ServiceEndpoint, t time.Time) ([]*domain.MaintenanceWindow, error) {
	candidates, err := s.listWindows(ctx,
		`SELECT id, endpoint_id, tag, start_time, end_time, recurrence, duration_ms, comment
		   FROM maintenance_windows
		  WHERE (endpoint_id=$1 OR tag = ANY($2))
		    AND (recurrence <> '' OR end_time >= $3)`,
		string(ep.ID), ep.Tags, t)
	if err != nil {
		return nil, err
	}
	var out []*domain.MaintenanceWindow
	for _, w := range candidates {
		if w.Covers(ep) && w.ActiveAt(t) {
			out = append(out, w)
		}
	}
	return out, nil
}

func (s *Store) listWindows(ctx context.Context, q string, args ...any) ([]*domain.MaintenanceWindow, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list windows: %w", err)
	}
	defer rows.Close()

	var out []*domain.MaintenanceWindow
	for rows.Next() {
		var (
			w          domain.MaintenanceWindow
			eid        string
			durationMS int64
		)
		if err := rows.Scan(&w.ID, &eid, &w.Tag, &w.StartTime, &w.EndTime, &w.Recurrence, &durationMS, &w.Comment); err != nil {
			return nil, fmt.Errorf("scan window: %w", err)
		}
		w.EndpointID = domain.EndpointID(eid)
		w.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, &w)
	}
	return out, rows.Err()
}
