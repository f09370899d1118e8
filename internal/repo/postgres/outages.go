package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"servicewatch/internal/domain"
)

// ---- OutageStore ----

func (s *Store) OpenOutage(ctx context.Context, o *domain.ServiceOutage) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO outages
		   (endpoint_id, start_time, severity, verified, synced)
		 VALUES ($1,$2,$3,$4,false)
		 RETURNING id`,
		string(o.EndpointID), o.StartTime, string(o.Severity), o.Verified,
	).Scan(&o.ID)
	if err != nil {
		return fmt.Errorf("insert outage: %w", err)
	}
	return nil
}

func (s *Store) UpdateOutage(ctx context.Context, o *domain.ServiceOutage) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE outages SET
		   end_time=$2, duration_ms=$3, severity=$4, verified=$5, escalated_at=$6,
		   resolution_notes=$7, resolved_by=$8, synced=$9
		 WHERE id=$1`,
		o.ID, o.EndTime, o.Duration.Milliseconds(), string(o.Severity), o.Verified,
		o.EscalatedAt, o.ResolutionNotes, o.ResolvedBy, o.Synced,
	)
	if err != nil {
		return fmt.Errorf("update outage: %w", err)
	}
	return nil
}

const selectOutage = `
SELECT id, endpoint_id, start_time, end_time, duration_ms, severity, verified,
       escalated_at, resolution_notes, resolved_by, synced
  FROM outages`

func scanOutage(row pgx.Row) (*domain.ServiceOutage, error) {
	var (
		o          domain.ServiceOutage
		eid, sev   string
		durationMS int64
	)
	err := row.Scan(&o.ID, &eid, &o.StartTime, &o.EndTime, &durationMS, &sev, &o.Verified,
		&o.EscalatedAt, &o.ResolutionNotes, &o.ResolvedBy, &o.Synced)
	if err != nil {
		return nil, err
	}
	o.EndpointID = domain.EndpointID(eid)
	o.Severity = domain.Severity(sev)
	o.Duration = time.Duration(durationMS) * time.Millisecond
	return &o, nil
}

func (s *Store) GetOutage(ctx context.Context, id int64) (*domain.ServiceOutage, error) {
	o, err := scanOutage(s.pool.QueryRow(ctx, selectOutage+` WHERE id=$1`, id))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get outage: %w", err)
	}
	return o, nil
}

func (s *Store) FindOpenOutage(ctx context.Context, id domain.EndpointID) (*domain.ServiceOutage, error) {
	o, err := scanOutage(s.pool.QueryRow(ctx,
		selectOutage+` WHERE endpoint_id=$1 AND end_time IS NULL`, string(id)))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find open outage: %w", err)
	}
	return o, nil
}

func (s *Store) ListOpenOutages(ctx context.Context) ([]*domain.ServiceOutage, error) {
	return s.listOutages(ctx, selectOutage+` WHERE end_time IS NULL ORDER BY start_time ASC`)
}

func (s *Store) OutagesByEndpoint(ctx context.Context, id domain.EndpointID, limit int) ([]*domain.ServiceOutage, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.listOutages(ctx,
		selectOutage+` WHERE endpoint_id=$1 ORDER BY start_time DESC LIMIT $2`, string(id), limit)
}

func (s *Store) listOutages(ctx context.Context, q string, args ...any) ([]*domain.ServiceOutage, error) {
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list outages: %w", err)
	}
	defer rows.Close()

	var out []*domain.ServiceOutage
	for rows.Next() {
		o, err := scanOutage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outage: %w", err)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *Store) UnsyncedOutages(ctx context.Context, limit int) ([]domain.ServiceOutage, error) {
	rows, err := s.listOutages(ctx,
		selectOutage+` WHERE NOT synced ORDER BY id ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	out := make([]domain.ServiceOutage, 0, len(rows))
	for _, o := range rows {
		out = append(out, *o)
	}
	return out, nil
}

func (s *Store) MarkOutagesSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE outages SET synced=true WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark outages synced: %w", err)
	}
	return nil
}
