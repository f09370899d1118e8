package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"servicewatch/internal/domain"
	"servicewatch/internal/httpapi/middleware"
	"servicewatch/internal/probe"
	"servicewatch/internal/repo"
)

// StateReader exposes the tracker's derived state to the API.
type StateReader interface {
	State(ctx context.Context, id domain.EndpointID) domain.EndpointState
}

// OutageResolver closes outages on behalf of an operator.
type OutageResolver interface {
	Resolve(ctx context.Context, id int64, notes, by string) (*domain.ServiceOutage, error)
}

type Limits struct {
	PublicRPM   int
	PublicBurst int
	AdminRPM    int
	AdminBurst  int
}

type Server struct {
	Logger    *zap.Logger
	Endpoints repo.EndpointStore
	Statuses  repo.StatusStore
	Outages   repo.OutageStore
	Windows   repo.MaintenanceStore
	Alerts    repo.AlertStore
	States    StateReader
	Resolver  OutageResolver
	Checker   probe.Checker
	Keys      middleware.Keys
	Limits    Limits
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// Read surface: public or admin key.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAny(s.Keys))
		r.Use(middleware.RateLimit(s.Limits.PublicRPM, s.Limits.PublicBurst))

		r.Get("/api/endpoints", s.handleListEndpoints)
		r.Get("/api/endpoints/{id}", s.handleGetEndpoint)
		r.Get("/api/endpoints/{id}/status", s.handleEndpointStatus)
		r.Get("/api/outages", s.handleListOutages)
		r.Get("/api/windows", s.handleListWindows)
		r.Get("/api/alerts", s.handleListAlerts)
	})

	// Mutations: admin key only.
	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAdmin(s.Keys))
		r.Use(middleware.RateLimit(s.Limits.AdminRPM, s.Limits.AdminBurst))

		r.Post("/api/endpoints", s.handleCreateEndpoint)
		r.Put("/api/endpoints/{id}", s.handleUpdateEndpoint)
		r.Delete("/api/endpoints/{id}", s.handleDeleteEndpoint)
		r.Post("/api/endpoints/{id}/pause", s.handleSetActive(false))
		r.Post("/api/endpoints/{id}/resume", s.handleSetActive(true))
		r.Post("/api/windows", s.handleCreateWindow)
		r.Delete("/api/windows/{id}", s.handleDeleteWindow)
		r.Post("/api/outages/{id}/resolve", s.handleResolveOutage)
	})

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---- endpoints ----

type endpointPayload struct {
	Name            string   `json:"name"`
	Address         string   `json:"address"`
	Protocol        string   `json:"protocol"`
	Port            int      `json:"port"`
	CheckIntervalMS int64    `json:"check_interval_ms"`
	TimeoutMS       int64    `json:"timeout_ms"`
	Retries         int      `json:"retries"`
	ExpectedStatus  int      `json:"expected_status"`
	ExpectedPattern string   `json:"expected_pattern"`
	LatencyBudgetMS float64  `json:"latency_budget_ms"`
	Tags            []string `json:"tags"`
	Active          *bool    `json:"active"`
}

func (p *endpointPayload) validate() string {
	if p.Name == "" || p.Address == "" {
		return "name and address are required"
	}
	if !domain.ValidProtocol(domain.Protocol(p.Protocol)) {
		return "unknown protocol"
	}
	if p.Port < 0 || p.Port > 65535 {
		return "port out of range"
	}
	if p.CheckIntervalMS != 0 && p.CheckIntervalMS < 1000 {
		return "check_interval_ms must be at least 1000"
	}
	if p.TimeoutMS < 0 {
		return "timeout_ms must be positive"
	}
	if p.CheckIntervalMS > 0 && p.TimeoutMS > p.CheckIntervalMS {
		return "timeout_ms must not exceed check_interval_ms"
	}
	if p.Retries < 0 || p.Retries > 10 {
		return "retries out of range"
	}
	if p.ExpectedPattern != "" {
		if _, err := regexp.Compile(p.ExpectedPattern); err != nil {
			return "expected_pattern does not compile"
		}
	}
	return ""
}

func (p *endpointPayload) apply(ep *domain.ServiceEndpoint) {
	ep.Name = p.Name
	ep.Address = p.Address
	ep.Protocol = domain.Protocol(p.Protocol)
	ep.Port = p.Port
	ep.CheckInterval = time.Duration(p.CheckIntervalMS) * time.Millisecond
	ep.Timeout = time.Duration(p.TimeoutMS) * time.Millisecond
	ep.Retries = p.Retries
	ep.ExpectedStatus = p.ExpectedStatus
	ep.ExpectedPattern = p.ExpectedPattern
	ep.LatencyBudgetMS = p.LatencyBudgetMS
	ep.Tags = p.Tags
	if p.Active != nil {
		ep.Active = *p.Active
	}
}

func (s *Server) handleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	var p endpointPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if msg := p.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	ep := &domain.ServiceEndpoint{Active: true, CreatedAt: time.Now().UTC()}
	p.apply(ep)
	if err := s.Endpoints.CreateEndpoint(r.Context(), ep); err != nil {
		writeError(w, http.StatusInternalServerError, "could not create endpoint")
		return
	}

	// One synchronous check for immediate feedback; the scheduler picks the
	// endpoint up on its next registry refresh.
	out := s.Checker.Check(r.Context(), ep)

	s.Logger.Info("endpoint_created",
		zap.String("endpoint_id", string(ep.ID)),
		zap.String("protocol", string(ep.Protocol)),
		zap.Bool("first_check_ok", out.OK),
		zap.Float64("latency_ms", out.LatencyMS),
	)

	writeJSON(w, http.StatusCreated, map[string]any{
		"endpoint":    ep,
		"first_check": out,
	})
}

func (s *Server) handleUpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	id := domain.EndpointID(chi.URLParam(r, "id"))
	ep, err := s.Endpoints.GetEndpoint(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup error")
		return
	}
	if ep == nil {
		writeError(w, http.StatusNotFound, "no such endpoint")
		return
	}

	var p endpointPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if msg := p.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	p.apply(ep)
	if err := s.Endpoints.UpdateEndpoint(r.Context(), ep); err != nil {
		writeError(w, http.StatusInternalServerError, "could not update endpoint")
		return
	}
	s.Logger.Info("endpoint_updated", zap.String("endpoint_id", string(ep.ID)))
	writeJSON(w, http.StatusOK, ep)
}

func (s *Server) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	id := domain.EndpointID(chi.URLParam(r, "id"))
	if err := s.Endpoints.DeleteEndpoint(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "could not delete endpoint")
		return
	}
	s.Logger.Info("endpoint_deleted", zap.String("endpoint_id", string(id)))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetActive(active bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := domain.EndpointID(chi.URLParam(r, "id"))
		ep, err := s.Endpoints.GetEndpoint(r.Context(), id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "lookup error")
			return
		}
		if ep == nil {
			writeError(w, http.StatusNotFound, "no such endpoint")
			return
		}
		if err := s.Endpoints.SetEndpointActive(r.Context(), id, active); err != nil {
			writeError(w, http.StatusInternalServerError, "could not update endpoint")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"id": id, "active": active})
	}
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	eps, err := s.Endpoints.ListEndpoints(r.Context(), activeOnly)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, eps)
}

func (s *Server) handleGetEndpoint(w http.ResponseWriter, r *http.Request) {
	id := domain.EndpointID(chi.URLParam(r, "id"))
	ep, err := s.Endpoints.GetEndpoint(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup error")
		return
	}
	if ep == nil {
		writeError(w, http.StatusNotFound, "no such endpoint")
		return
	}
	writeJSON(w, http.StatusOK, ep)
}

func (s *Server) handleEndpointStatus(w http.ResponseWriter, r *http.Request) {
	id := domain.EndpointID(chi.URLParam(r, "id"))
	ep, err := s.Endpoints.GetEndpoint(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "lookup error")
		return
	}
	if ep == nil {
		writeError(w, http.StatusNotFound, "no such endpoint")
		return
	}

	n := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			n = v
		}
	}
	tail, err := s.Statuses.StatusTail(r.Context(), id, n)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "history error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"endpoint_id": id,
		"state":       s.States.State(r.Context(), id),
		"history":     tail,
	})
}

// ---- outages ----

func (s *Server) handleListOutages(w http.ResponseWriter, r *http.Request) {
	if epID := r.URL.Query().Get("endpoint"); epID != "" {
		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
				limit = v
			}
		}
		outs, err := s.Outages.OutagesByEndpoint(r.Context(), domain.EndpointID(epID), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "list error")
			return
		}
		writeJSON(w, http.StatusOK, outs)
		return
	}

	outs, err := s.Outages.ListOpenOutages(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, outs)
}

type resolvePayload struct {
	Notes      string `json:"notes"`
	ResolvedBy string `json:"resolved_by"`
}

func (s *Server) handleResolveOutage(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad outage id")
		return
	}
	var p resolvePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if p.ResolvedBy == "" {
		writeError(w, http.StatusBadRequest, "resolved_by is required")
		return
	}

	o, err := s.Resolver.Resolve(r.Context(), id, p.Notes, p.ResolvedBy)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "resolve error")
		return
	}
	if o == nil {
		writeError(w, http.StatusNotFound, "no such outage")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// ---- maintenance windows ----

type windowPayload struct {
	EndpointID string `json:"endpoint_id"`
	Tag        string `json:"tag"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Recurrence string `json:"recurrence"`
	DurationMS int64  `json:"duration_ms"`
	Comment    string `json:"comment"`
}

func (s *Server) handleCreateWindow(w http.ResponseWriter, r *http.Request) {
	var p windowPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "bad payload")
		return
	}
	if p.EndpointID == "" && p.Tag == "" {
		writeError(w, http.StatusBadRequest, "endpoint_id or tag is required")
		return
	}
	if !domain.ValidRecurrence(p.Recurrence) {
		writeError(w, http.StatusBadRequest, "recurrence does not parse")
		return
	}

	win := &domain.MaintenanceWindow{
		EndpointID: domain.EndpointID(p.EndpointID),
		Tag:        p.Tag,
		Recurrence: p.Recurrence,
		Duration:   time.Duration(p.DurationMS) * time.Millisecond,
		Comment:    p.Comment,
	}
	if p.Recurrence == "" {
		start, err1 := time.Parse(time.RFC3339, p.StartTime)
		end, err2 := time.Parse(time.RFC3339, p.EndTime)
		if err1 != nil || err2 != nil || !end.After(start) {
			writeError(w, http.StatusBadRequest, "start_time and end_time must be RFC3339 with end after start")
			return
		}
		win.StartTime = start
		win.EndTime = end
	} else if win.Duration <= 0 {
		writeError(w, http.StatusBadRequest, "recurring windows need duration_ms")
		return
	}

	if err := s.Windows.CreateWindow(r.Context(), win); err != nil {
		writeError(w, http.StatusInternalServerError, "could not create window")
		return
	}
	s.Logger.Info("maintenance_window_created",
		zap.Int64("window_id", win.ID),
		zap.String("endpoint_id", p.EndpointID),
		zap.String("tag", p.Tag),
	)
	writeJSON(w, http.StatusCreated, win)
}

func (s *Server) handleDeleteWindow(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad window id")
		return
	}
	if err := s.Windows.DeleteWindow(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "could not delete window")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListWindows(w http.ResponseWriter, r *http.Request) {
	wins, err := s.Windows.ListWindows(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, wins)
}

// ---- alert audit ----

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}
	alerts, err := s.Alerts.RecentDispatches(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}
