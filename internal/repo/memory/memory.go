package memory

import (
	"context"
	"sync"
	"time"

	"servicewatch/internal/domain"
)

// Store is the in-memory adapter used in tests and DB-less development runs.
type Store struct {
	mu        sync.RWMutex
	endpoints map[domain.EndpointID]*domain.ServiceEndpoint
	statuses  []*domain.ServiceStatus
	outages   []*domain.ServiceOutage
	windows   []*domain.MaintenanceWindow
	alerts    []*domain.DispatchedAlert

	nextStatusID int64
	nextOutageID int64
	nextWindowID int64
	nextAlertID  int64
}

func New() *Store {
	return &Store{
		endpoints: make(map[domain.EndpointID]*domain.ServiceEndpoint),
		statuses:  make([]*domain.ServiceStatus, 0, 128),
	}
}

// ---- EndpointStore ----

func (m *Store) CreateEndpoint(ctx context.Context, ep *domain.ServiceEndpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ep.ID == "" {
		ep.ID = domain.EndpointID(time.Now().UTC().Format("20060102T150405.000000000"))
	}
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}
	cp := *ep
	m.endpoints[ep.ID] = &cp
	return nil
}

func (m *Store) UpdateEndpoint(ctx context.Context, ep *domain.ServiceEndpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ep
	m.endpoints[ep.ID] = &cp
	return nil
}

func (m *Store) DeleteEndpoint(ctx context.Context, id domain.EndpointID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.endpoints, id)
	return nil
}

func (m *Store) GetEndpoint(ctx context.Context, id domain.EndpointID) (*domain.ServiceEndpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ep, ok := m.endpoints[id]
	if !ok {
		return nil, nil
	}
	cp := *ep
	return &cp, nil
}

func (m *Store) ListEndpoints(ctx context.Context, activeOnly bool) ([]*domain.ServiceEndpoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.ServiceEndpoint, 0, len(m.endpoints))
	for _, ep := range m.endpoints {
		if activeOnly && !ep.Active {
			continue
		}
		cp := *ep
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Store) SetEndpointActive(ctx context.Context, id domain.EndpointID, active bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ep, ok := m.endpoints[id]; ok {
		ep.Active = active
	}
	return nil
}

// ---- StatusStore ----

func (m *Store) AppendStatus(ctx context.Context, st *domain.ServiceStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextStatusID++
	st.ID = m.nextStatusID
	cp := *st
	m.statuses = append(m.statuses, &cp)
	return nil
}

func (m *Store) StatusTail(ctx context.Context, id domain.EndpointID, n int) ([]domain.ServiceStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var tail []domain.ServiceStatus
	for i := len(m.statuses) - 1; i >= 0 && len(tail) < n; i-- {
		if m.statuses[i].EndpointID == id {
			tail = append(tail, *m.statuses[i])
		}
	}
	// reverse to chronological order
	for i, j := 0, len(tail)-1; i < j; i, j = i+1, j-1 {
		tail[i], tail[j] = tail[j], tail[i]
	}
	return tail, nil
}

func (m *Store) UnsyncedStatuses(ctx context.Context, limit int) ([]domain.ServiceStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ServiceStatus
	for _, st := range m.statuses {
		if st.Synced {
			continue
		}
		out = append(out, *st)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Store) MarkStatusesSynced(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for _, st := range m.statuses {
		if set[st.ID] {
			st.Synced = true
		}
	}
	return nil
}

// ---- OutageStore ----

func (m *Store) OpenOutage(ctx context.Context, o *domain.ServiceOutage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextOutageID++
	o.ID = m.nextOutageID
	cp := *o
	m.outages = append(m.outages, &cp)
	return nil
}

func (m *Store) UpdateOutage(ctx context.Context, o *domain.ServiceOutage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, cur := range m.outages {
		if cur.ID == o.ID {
			cp := *o
			m.outages[i] = &cp
			return nil
		}
	}
	return nil
}

func (m *Store) GetOutage(ctx context.Context, id int64) (*domain.ServiceOutage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.outages {
		if o.ID == id {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Store) FindOpenOutage(ctx context.Context, id domain.EndpointID) (*domain.ServiceOutage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, o := range m.outages {
		if o.EndpointID == id && o.EndTime == nil {
			cp := *o
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *Store) ListOpenOutages(ctx context.Context) ([]*domain.ServiceOutage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.ServiceOutage
	for _, o := range m.outages {
		if o.EndTime == nil {
			cp := *o
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Store) OutagesByEndpoint(ctx context.Context, id domain.EndpointID, limit int) ([]*domain.ServiceOutage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.ServiceOutage
	for i := len(m.outages) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if m.outages[i].EndpointID == id {
			cp := *m.outages[i]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *Store) UnsyncedOutages(ctx context.Context, limit int) ([]domain.ServiceOutage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.ServiceOutage
	for _, o := range m.outages {
		if o.Synced {
			continue
		}
		out = append(out, *o)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *Store) MarkOutagesSynced(ctx context.Context, ids []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	for _, o := range m.outages {
		if set[o.ID] {
			o.Synced = true
		}
	}
	return nil
}

// ---- MaintenanceStore ----

func (m *Store) CreateWindow(ctx context.Context, w *domain.MaintenanceWindow) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextWindowID++
	w.ID = m.nextWindowID
	cp := *w
	m.windows = append(m.windows, &cp)
	return nil
}

func (m *Store) DeleteWindow(ctx context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, w := range m.windows {
		if w.ID == id {
			m.windows = append(m.windows[:i], m.windows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (m *Store) ListWindows(ctx context.Context) ([]*domain.MaintenanceWindow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.MaintenanceWindow, 0, len(m.windows))
	for _, w := range m.windows {
		cp := *w
		out = append(out, &cp)
	}
	return out, nil
}

func (m *Store) ActiveWindows(ctx context.Context, ep *domain.ServiceEndpoint, t time.Time) ([]*domain.MaintenanceWindow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.MaintenanceWindow
	for _, w := range m.windows {
		if w.Covers(ep) && w.ActiveAt(t) {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

// ---- AlertStore ----

func (m *Store) RecordDispatch(ctx context.Context, a *domain.DispatchedAlert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextAlertID++
	a.ID = m.nextAlertID
	cp := *a
	m.alerts = append(m.alerts, &cp)
	return nil
}

func (m *Store) RecentDispatches(ctx context.Context, limit int) ([]*domain.DispatchedAlert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*domain.DispatchedAlert
	for i := len(m.alerts) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		cp := *m.alerts[i]
		out = append(out, &cp)
	}
	return out, nil
}
