package postgres

import (
	"context"
	"fmt"

	"servicewatch/internal/domain"
)

// ---- StatusStore ----

func (s *Store) AppendStatus(ctx context.Context, st *domain.ServiceStatus) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO statuses (endpoint_id, state, ok, latency_ms, reason, checked_at, synced)
		 VALUES ($1,$2,$3,$4,$5,$6,false)
		 RETURNING id`,
		string(st.EndpointID), string(st.State), st.OK, st.LatencyMS, st.Reason, st.CheckedAt,
	).Scan(&st.ID)
	if err != nil {
		return fmt.Errorf("insert status: %w", err)
	}
	return nil
}

func (s *Store) StatusTail(ctx context.Context, id domain.EndpointID, n int) ([]domain.ServiceStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, endpoint_id, state, ok, latency_ms, reason, checked_at, synced
		   FROM (SELECT * FROM statuses WHERE endpoint_id=$1 ORDER BY checked_at DESC, id DESC LIMIT $2) t
		  ORDER BY checked_at ASC, id ASC`,
		string(id), n)
	if err != nil {
		return nil, fmt.Errorf("status tail: %w", err)
	}
	defer rows.Close()

	var out []domain.ServiceStatus
	for rows.Next() {
		var (
			st       domain.ServiceStatus
			eid, sta string
		)
		if err := rows.Scan(&st.ID, &eid, &sta, &st.OK, &st.LatencyMS, &st.Reason, &st.CheckedAt, &st.Synced); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		st.EndpointID = domain.EndpointID(eid)
		st.State = domain.EndpointState(sta)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) UnsyncedStatuses(ctx context.Context, limit int) ([]domain.ServiceStatus, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, endpoint_id, state, ok, latency_ms, reason, checked_at, synced
		   FROM statuses
		  WHERE NOT synced
		  ORDER BY id ASC
		  LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("unsynced statuses: %w", err)
	}
	defer rows.Close()

	var out []domain.ServiceStatus
	for rows.Next() {
		var (
			st       domain.ServiceStatus
			eid, sta string
		)
		if err := rows.Scan(&st.ID, &eid, &sta, &st.OK, &st.LatencyMS, &st.Reason, &st.CheckedAt, &st.Synced); err != nil {
			return nil, fmt.Errorf("scan status: %w", err)
		}
		st.EndpointID = domain.EndpointID(eid)
		st.State = domain.EndpointState(sta)
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) MarkStatusesSynced(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `UPDATE statuses SET synced=true WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("mark statuses synced: %w", err)
	}
	return nil
}
