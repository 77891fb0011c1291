package scanner

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"mentionscan/internal/domain"
	"mentionscan/internal/events"
	"mentionscan/internal/logger"
	"mentionscan/internal/ports"
)

var (
	// ErrScanInFlight is returned by Enqueue when the lead or subscription
	// already has a non-terminal run.
	ErrScanInFlight    = errors.New("scan already in progress")
	ErrInvalidDomain   = errors.New("invalid domain")
	ErrInvalidSchedule = errors.New("invalid schedule")
	ErrNotComplete     = errors.New("scan is not complete")
)

type Service struct {
	runs    ports.ScanRunRepository
	subs    ports.SubscriptionRepository
	queries ports.QueryRepository
	bus     ports.EventBus
	log     logger.Logger
}

func New(runs ports.ScanRunRepository, subs ports.SubscriptionRepository, queries ports.QueryRepository, bus ports.EventBus, log logger.Logger) *Service {
	if log == nil {
		log = logger.NewNop()
	}
	return &Service{runs: runs, subs: subs, queries: queries, bus: bus, log: log}
}

// NormalizeDomain reduces a URL or host to its registrable domain.
func NormalizeDomain(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrInvalidDomain
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDomain, err)
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" || !strings.Contains(host, ".") {
		return "", ErrInvalidDomain
	}
	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		registrable = host
	}
	return registrable, nil
}

// Enqueue creates a pending run and queues its job. When a run is already
// in flight for the same subscription (or lead) its ID is returned together
// with ErrScanInFlight and nothing is created.
func (s *Service) Enqueue(ctx context.Context, req ports.ScanRequest) (string, error) {
	site, err := NormalizeDomain(req.Domain)
	if err != nil {
		return "", err
	}
	if req.LeadID == "" && req.DomainSubscriptionID == nil {
		return "", fmt.Errorf("%w: lead or subscription required", ErrInvalidDomain)
	}
	run := domain.ScanRun{
		Domain:               site,
		LeadID:               req.LeadID,
		DomainSubscriptionID: req.DomainSubscriptionID,
		Status:               domain.ScanPending,
	}
	runID, created, err := s.runs.CreateIfIdle(ctx, run)
	if err != nil {
		return "", err
	}
	if !created {
		return runID, ErrScanInFlight
	}
	s.log.Info("scan enqueued", logger.String("run_id", runID), logger.String("domain", site))
	return runID, nil
}

// HandleScanRequested is the scan/requested event handler. An in-flight
// scan makes the event a no-op.
func (s *Service) HandleScanRequested(ctx context.Context, ev events.Event) error {
	var req ports.ScanRequest
	if err := ev.Decode(&req); err != nil {
		return err
	}
	runID, err := s.Enqueue(ctx, req)
	switch {
	case errors.Is(err, ErrScanInFlight):
		s.log.Info("scan already in flight, skipping", logger.String("run_id", runID), logger.String("domain", req.Domain))
		return nil
	case errors.Is(err, ErrInvalidDomain):
		s.log.Warn("scan request rejected", logger.String("domain", req.Domain), logger.Error(err))
		return nil
	}
	return err
}

func (s *Service) Status(ctx context.Context, runID string) (StatusView, error) {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return StatusView{}, err
	}
	return View(run), nil
}

func (s *Service) Queries(ctx context.Context, runID string) ([]domain.ResearchedQuery, error) {
	if _, err := s.runs.Get(ctx, runID); err != nil {
		return nil, err
	}
	return s.queries.ListQueries(ctx, runID)
}

// RequestEnrichment re-triggers enrichment for a completed run. A trigger
// for a run that is already enriching replaces the in-flight one.
func (s *Service) RequestEnrichment(ctx context.Context, runID string) error {
	run, err := s.runs.Get(ctx, runID)
	if err != nil {
		return err
	}
	if run.Status != domain.ScanComplete {
		return ErrNotComplete
	}
	return s.bus.Send(ctx, ports.EventScanEnrich, ports.EnrichRequest{ScanRunID: runID})
}

// ValidateSchedule checks a weekday (0=Sunday), hour and IANA timezone.
func ValidateSchedule(day, hour int, tz string) error {
	if day < 0 || day > 6 {
		return fmt.Errorf("%w: day must be 0-6", ErrInvalidSchedule)
	}
	if hour < 0 || hour > 23 {
		return fmt.Errorf("%w: hour must be 0-23", ErrInvalidSchedule)
	}
	if strings.TrimSpace(tz) == "" {
		return fmt.Errorf("%w: timezone required", ErrInvalidSchedule)
	}
	if _, err := time.LoadLocation(tz); err != nil {
		return fmt.Errorf("%w: unknown timezone %q", ErrInvalidSchedule, tz)
	}
	return nil
}

func (s *Service) UpdateSchedule(ctx context.Context, subscriptionID string, day, hour int, tz string) error {
	if err := ValidateSchedule(day, hour, tz); err != nil {
		return err
	}
	return s.subs.UpdateSchedule(ctx, subscriptionID, day, hour, tz)
}
