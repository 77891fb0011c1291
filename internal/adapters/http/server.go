package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mentionscan/internal/domain"
	"mentionscan/internal/logger"
	"mentionscan/internal/ports"
	"mentionscan/internal/services/reports"
	"mentionscan/internal/services/scanner"
	"mentionscan/internal/workers/scanrunner"
)

const (
	defaultWaitTimeout = 30 * time.Second
	maxWaitTimeout     = 5 * time.Minute
)

type Scanner interface {
	Enqueue(ctx context.Context, req ports.ScanRequest) (string, error)
	Status(ctx context.Context, runID string) (scanner.StatusView, error)
	Queries(ctx context.Context, runID string) ([]domain.ResearchedQuery, error)
	RequestEnrichment(ctx context.Context, runID string) error
	UpdateSchedule(ctx context.Context, subscriptionID string, day, hour int, tz string) error
}

type Reports interface {
	GetLatest(ctx context.Context, site string) (reports.Report, error)
}

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server serves the scan API as JSON over chi.
type Server struct {
	scanner   Scanner
	reports   Reports
	jobs      ports.JobRepository
	processor scanrunner.ScanProcessor
	metrics   http.Handler
	health    Pinger
	log       logger.Logger
}

type Deps struct {
	Scanner   Scanner
	Reports   Reports
	Jobs      ports.JobRepository
	Processor scanrunner.ScanProcessor
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	// Health is pinged by /healthz when set.
	Health Pinger
	Logger logger.Logger
}

func New(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = logger.NewNop()
	}
	return &Server{
		scanner:   d.Scanner,
		reports:   d.Reports,
		jobs:      d.Jobs,
		processor: d.Processor,
		metrics:   d.Metrics,
		health:    d.Health,
		log:       d.Logger,
	}
}

func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.getHealthz)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Post("/scans", s.postScan)
	r.Get("/scans/{id}", s.getScan)
	r.Get("/scans/{id}/queries", s.getScanQueries)
	r.Post("/scans/{id}/enrich", s.postEnrich)
	r.Put("/subscriptions/{id}/schedule", s.putSchedule)
	r.Get("/domains/{domain}/report", s.getReport)
	return r
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health.Ping(r.Context()); err != nil {
			s.log.Warn("health check failed", logger.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scanRequest struct {
	URL                  string  `json:"url"`
	LeadID               string  `json:"leadId"`
	DomainSubscriptionID *string `json:"domainSubscriptionId,omitempty"`
}

type scanAccepted struct {
	ScanID string `json:"scanId"`
}

// postScan enqueues a scan. With ?wait=true the scan is processed inline,
// bounded by ?timeout seconds, and its final status is returned.
func (s *Server) postScan(w http.ResponseWriter, r *http.Request) {
	var body scanRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	ctx := r.Context()
	id, err := s.scanner.Enqueue(ctx, ports.ScanRequest{
		Domain:               body.URL,
		LeadID:               body.LeadID,
		DomainSubscriptionID: body.DomainSubscriptionID,
	})
	switch {
	case errors.Is(err, scanner.ErrScanInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"scanId": id, "error": "a scan is already in progress"})
		return
	case errors.Is(err, scanner.ErrInvalidDomain):
		writeError(w, http.StatusBadRequest, "invalid domain")
		return
	case err != nil:
		s.internal(w, r, err)
		return
	}

	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); !wait || s.processor == nil {
		writeJSON(w, http.StatusAccepted, scanAccepted{ScanID: id})
		return
	}

	waitCtx, cancel := context.WithTimeout(ctx, waitTimeout(r.URL.Query().Get("timeout")))
	defer cancel()
	if err := scanrunner.ProcessInline(waitCtx, s.jobs, s.processor, id); err != nil {
		s.log.Warn("inline scan failed", logger.String("run_id", id), logger.Error(err))
	}
	view, err := s.scanner.Status(context.WithoutCancel(ctx), id)
	if err != nil {
		s.internal(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func waitTimeout(raw string) time.Duration {
	secs, err := strconv.Atoi(raw)
	if err != nil || secs <= 0 {
		return defaultWaitTimeout
	}
	return min(time.Duration(secs)*time.Second, maxWaitTimeout)
}

func (s *Server) getScan(w http.ResponseWriter, r *http.Request) {
	view, err := s.scanner.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) getScanQueries(w http.ResponseWriter, r *http.Request) {
	queries, err := s.scanner.Queries(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"queries": queries})
}

func (s *Server) postEnrich(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.scanner.RequestEnrichment(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, scanAccepted{ScanID: id})
}

type scheduleRequest struct {
	Day      *int   `json:"day"`
	Hour     *int   `json:"hour"`
	Timezone string `json:"timezone"`
}

func (s *Server) putSchedule(w http.ResponseWriter, r *http.Request) {
	var body scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Day == nil || body.Hour == nil {
		writeError(w, http.StatusBadRequest, "day, hour and timezone are required")
		return
	}
	err := s.scanner.UpdateSchedule(r.Context(), chi.URLParam(r, "id"), *body.Day, *body.Hour, body.Timezone)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) getReport(w http.ResponseWriter, r *http.Request) {
	site, err := scanner.NormalizeDomain(chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid domain")
		return
	}
	rep, err := s.reports.GetLatest(r.Context(), site)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// fail maps service errors to status codes. Anything unrecognized is logged
// and reported as a generic 500.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ports.ErrNotFound), errors.Is(err, reports.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, scanner.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, scanner.ErrNotComplete):
		writeError(w, http.StatusConflict, "scan is not complete")
	default:
		s.internal(w, r, err)
	}
}

func (s *Server) internal(w http.ResponseWriter, r *http.Request, err error) {
	s.log.Error("request failed",
		logger.String("method", r.Method),
		logger.String("path", r.URL.Path),
		logger.String("request_id", middleware.GetReqID(r.Context())),
		logger.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
