package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"servicewatch/internal/domain"
	"servicewatch/internal/repo"
)

var (
	_ repo.EndpointStore    = (*Store)(nil)
	_ repo.StatusStore      = (*Store)(nil)
	_ repo.OutageStore      = (*Store)(nil)
	_ repo.MaintenanceStore = (*Store)(nil)
	_ repo.AlertStore       = (*Store)(nil)
)

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ---- EndpointStore ----

func (s *Store) CreateEndpoint(ctx context.Context, ep *domain.ServiceEndpoint) error {
	if ep.ID == "" {
		ep.ID = domain.EndpointID(makeID())
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO endpoints
		   (id, name, address, protocol, port, check_interval_ms, timeout_ms, retries,
		    expected_status, expected_pattern, latency_budget_ms, tags, active, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		string(ep.ID), ep.Name, ep.Address, string(ep.Protocol), ep.Port,
		ep.CheckInterval.Milliseconds(), ep.Timeout.Milliseconds(), ep.Retries,
		ep.ExpectedStatus, ep.ExpectedPattern, ep.LatencyBudgetMS, ep.Tags, ep.Active, ep.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert endpoint: %w", err)
	}
	return nil
}

func (s *Store) UpdateEndpoint(ctx context.Context, ep *domain.ServiceEndpoint) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE endpoints SET
		   name=$2, address=$3, protocol=$4, port=$5, check_interval_ms=$6, timeout_ms=$7,
		   retries=$8, expected_status=$9, expected_pattern=$10, latency_budget_ms=$11,
		   tags=$12, active=$13
		 WHERE id=$1`,
		string(ep.ID), ep.Name, ep.Address, string(ep.Protocol), ep.Port,
		ep.CheckInterval.Milliseconds(), ep.Timeout.Milliseconds(), ep.Retries,
		ep.ExpectedStatus, ep.ExpectedPattern, ep.LatencyBudgetMS, ep.Tags, ep.Active,
	)
	if err != nil {
		return fmt.Errorf("update endpoint: %w", err)
	}
	return nil
}

func (s *Store) DeleteEndpoint(ctx context.Context, id domain.EndpointID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM endpoints WHERE id=$1`, string(id))
	if err != nil {
		return fmt.Errorf("delete endpoint: %w", err)
	}
	return nil
}

func (s *Store) GetEndpoint(ctx context.Context, id domain.EndpointID) (*domain.ServiceEndpoint, error) {
	row := s.pool.QueryRow(ctx, selectEndpoint+` WHERE id=$1`, string(id))
	ep, err := scanEndpoint(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get endpoint: %w", err)
	}
	return ep, nil
}

func (s *Store) ListEndpoints(ctx context.Context, activeOnly bool) ([]*domain.ServiceEndpoint, error) {
	q := selectEndpoint + ` ORDER BY created_at DESC, id DESC`
	if activeOnly {
		q = selectEndpoint + ` WHERE active ORDER BY created_at DESC, id DESC`
	}
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list endpoints: %w", err)
	}
	defer rows.Close()

	var out []*domain.ServiceEndpoint
	for rows.Next() {
		ep, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("scan endpoint: %w", err)
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func (s *Store) SetEndpointActive(ctx context.Context, id domain.EndpointID, active bool) error {
	_, err := s.pool.Exec(ctx, `UPDATE endpoints SET active=$2 WHERE id=$1`, string(id), active)
	if err != nil {
		return fmt.Errorf("set endpoint active: %w", err)
	}
	return nil
}

const selectEndpoint = `
SELECT id, name, address, protocol, port, check_interval_ms, timeout_ms, retries,
       expected_status, expected_pattern, latency_budget_ms, tags, active, created_at
  FROM endpoints`

func scanEndpoint(row pgx.Row) (*domain.ServiceEndpoint, error) {
	var (
		ep         domain.ServiceEndpoint
		id, proto  string
		intervalMS int64
		timeoutMS  int64
	)
	err := row.Scan(&id, &ep.Name, &ep.Address, &proto, &ep.Port, &intervalMS, &timeoutMS,
		&ep.Retries, &ep.ExpectedStatus, &ep.ExpectedPattern, &ep.LatencyBudgetMS,
		&ep.Tags, &ep.Active, &ep.CreatedAt)
	if err != nil {
		return nil, err
	}
	ep.ID = domain.EndpointID(id)
	ep.Protocol = domain.Protocol(proto)
	ep.CheckInterval = time.Duration(intervalMS) * time.Millisecond
	ep.Timeout = time.Duration(timeoutMS) * time.Millisecond
	return &ep, nil
}

// ID format: 20060102Thhmmss.nnnnnnnnn
func makeID() string {
	now := time.Now().UTC()
	return now.Format("20060102T150405.") + fmt.Sprintf("%09d", now.Nanosecond())
}
