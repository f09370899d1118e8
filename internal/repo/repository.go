package repo

import (
	"context"
	"time"

	"servicewatch/internal/domain"
)

// Ports (interfaces) — swap in any DB adapter later. Method names are
// entity-qualified so one store struct can satisfy all of them. Lookups that
// miss return nil, nil rather than an error.

type EndpointStore interface {
	CreateEndpoint(ctx context.Context, ep *domain.ServiceEndpoint) error
	UpdateEndpoint(ctx context.Context, ep *domain.ServiceEndpoint) error
	DeleteEndpoint(ctx context.Context, id domain.EndpointID) error
	GetEndpoint(ctx context.Context, id domain.EndpointID) (*domain.ServiceEndpoint, error)
	ListEndpoints(ctx context.Context, activeOnly bool) ([]*domain.ServiceEndpoint, error)
	SetEndpointActive(ctx context.Context, id domain.EndpointID, active bool) error
}

type StatusStore interface {
	// AppendStatus writes one immutable check record and assigns its ID.
	AppendStatus(ctx context.Context, st *domain.ServiceStatus) error
	// StatusTail returns the most recent n records for an endpoint in
	// chronological order (oldest first).
	StatusTail(ctx context.Context, id domain.EndpointID, n int) ([]domain.ServiceStatus, error)
	UnsyncedStatuses(ctx context.Context, limit int) ([]domain.ServiceStatus, error)
	MarkStatusesSynced(ctx context.Context, ids []int64) error
}

type OutageStore interface {
	// OpenOutage persists a new outage and assigns its ID.
	OpenOutage(ctx context.Context, o *domain.ServiceOutage) error
	UpdateOutage(ctx context.Context, o *domain.ServiceOutage) error
	GetOutage(ctx context.Context, id int64) (*domain.ServiceOutage, error)
	// FindOpenOutage is the point query backing the one-open-outage invariant.
	FindOpenOutage(ctx context.Context, id domain.EndpointID) (*domain.ServiceOutage, error)
	ListOpenOutages(ctx context.Context) ([]*domain.ServiceOutage, error)
	OutagesByEndpoint(ctx context.Context, id domain.EndpointID, limit int) ([]*domain.ServiceOutage, error)
	UnsyncedOutages(ctx context.Context, limit int) ([]domain.ServiceOutage, error)
	MarkOutagesSynced(ctx context.Context, ids []int64) error
}

type MaintenanceStore interface {
	CreateWindow(ctx context.Context, w *domain.MaintenanceWindow) error
	DeleteWindow(ctx context.Context, id int64) error
	ListWindows(ctx context.Context) ([]*domain.MaintenanceWindow, error)
	// ActiveWindows returns windows covering the endpoint that are active at t.
	ActiveWindows(ctx context.Context, ep *domain.ServiceEndpoint, t time.Time) ([]*domain.MaintenanceWindow, error)
}

// AlertStore keeps the audit trail of dispatched (or suppressed)
// notifications.
type AlertStore interface {
	RecordDispatch(ctx context.Context, a *domain.DispatchedAlert) error
	RecentDispatches(ctx context.Context, limit int) ([]*domain.DispatchedAlert, error)
}
