package postgres

import (
	"context"
	"fmt"

	"servicewatch/internal/domain"
)

// ---- AlertStore ----

func (s *Store) RecordDispatch(ctx context.Context, a *domain.DispatchedAlert) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO dispatched_alerts
		   (endpoint_id, outage_id, rule_id, severity, channel, suppressed, error, sent_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 RETURNING id`,
		string(a.EndpointID), a.OutageID, a.RuleID, string(a.Severity),
		a.Channel, a.Suppressed, a.Error, a.SentAt,
	).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("insert dispatched alert: %w", err)
	}
	return nil
}

func (s *Store) RecentDispatches(ctx context.Context, limit int) ([]*domain.DispatchedAlert, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, endpoint_id, outage_id, rule_id, severity, channel, suppressed, error, sent_at
		   FROM dispatched_alerts ORDER BY sent_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent dispatches: %w", err)
	}
	defer rows.Close()

	var out []*domain.DispatchedAlert
	for rows.Next() {
		var (
			a        domain.DispatchedAlert
			eid, sev string
		)
		if err := rows.Scan(&a.ID, &eid, &a.OutageID, &a.RuleID, &sev, &a.Channel, &a.Suppressed, &a.Error, &a.SentAt); err != nil {
			return nil, fmt.Errorf("scan dispatched alert: %w", err)
		}
		a.EndpointID = domain.EndpointID(eid)
		a.Severity = domain.Severity(sev)
		out = append(out, &a)
	}
	return out, rows.Err()
}
