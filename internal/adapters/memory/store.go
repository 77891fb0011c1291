// Package memory is an in-process implementation of the store ports, used by
// tests and by local runs without DATABASE_URL.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"mentionscan/internal/domain"
	"mentionscan/internal/ports"
)

type job struct {
	id       string
	runID    string
	status   string
	queuedAt time.Time
	started  time.Time
	attempts int
	reason   string
}

type Store struct {
	mu        sync.Mutex
	now       func() time.Time
	runs      map[string]domain.ScanRun
	subs      map[string]domain.DomainSubscription
	slots     map[string]struct{}
	analyses  map[string]domain.BusinessAnalysis
	queries   map[string][]domain.ResearchedQuery
	results   map[string][]domain.PlatformResult
	brand     map[string][]domain.BrandAwarenessResult
	summaries map[string]string
	usage     []domain.Usage
	flags     map[string]bool
	jobs      []*job
}

var _ ports.Store = (*Store)(nil)

func New() *Store {
	return NewWithClock(clockwork.NewRealClock())
}

// NewWithClock returns a store whose timestamps and job leases follow clock.
func NewWithClock(clock clockwork.Clock) *Store {
	return &Store{
		now:       clock.Now,
		runs:      map[string]domain.ScanRun{},
		subs:      map[string]domain.DomainSubscription{},
		slots:     map[string]struct{}{},
		analyses:  map[string]domain.BusinessAnalysis{},
		queries:   map[string][]domain.ResearchedQuery{},
		results:   map[string][]domain.PlatformResult{},
		brand:     map[string][]domain.BrandAwarenessResult{},
		summaries: map[string]string{},
		flags:     map[string]bool{},
	}
}

// PutSubscription inserts or replaces a subscription.
func (s *Store) PutSubscription(sub domain.DomainSubscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs[sub.ID] = sub
}

// SetFlag sets a feature flag value.
func (s *Store) SetFlag(name string, on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[name] = on
}

// Runs returns a snapshot of all runs, oldest first.
func (s *Store) Runs() []domain.ScanRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.ScanRun, 0, len(s.runs))
	for _, r := range s.runs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt == nil || out[j].StartedAt == nil {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(*out[j].StartedAt)
	})
	return out
}

// Usage returns the recorded token usage.
func (s *Store) Usage() []domain.Usage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Usage(nil), s.usage...)
}

// JobStatus returns the status of the newest job for a run.
func (s *Store) JobStatus(runID string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := ""
	for _, j := range s.jobs {
		if j.runID == runID {
			status = j.status
		}
	}
	return status
}

// CompetitiveSummary returns the stored summary for a run.
func (s *Store) CompetitiveSummary(runID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.summaries[runID]
	return v, ok
}

// ScanRunRepository

func (s *Store) CreateIfIdle(ctx context.Context, run domain.ScanRun) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := run.InFlightKey()
	for _, existing := range s.runs {
		if existing.InFlightKey() == key && !existing.Status.Terminal() {
			return existing.ID, false, nil
		}
	}
	now := s.now()
	run.ID = uuid.NewString()
	run.Status = domain.ScanPending
	run.Progress = 0
	run.StartedAt = &now
	s.runs[run.ID] = run
	s.jobs = append(s.jobs, &job{id: uuid.NewString(), runID: run.ID, status: "queued", queuedAt: now})
	return run.ID, true, nil
}

func (s *Store) Get(ctx context.Context, runID string) (domain.ScanRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return domain.ScanRun{}, ports.ErrNotFound
	}
	return r, nil
}

func (s *Store) LatestComplete(ctx context.Context, site string) (domain.ScanRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var best *domain.ScanRun
	for _, r := range s.runs {
		if r.Domain != site || r.Status != domain.ScanComplete || r.CompletedAt == nil {
			continue
		}
		if best == nil || r.CompletedAt.After(*best.CompletedAt) {
			r := r
			best = &r
		}
	}
	if best == nil {
		return domain.ScanRun{}, ports.ErrNotFound
	}
	return *best, nil
}

func (s *Store) update(runID string, fn func(r *domain.ScanRun)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[runID]
	if !ok {
		return ports.ErrNotFound
	}
	fn(&r)
	s.runs[runID] = r
	return nil
}

func (s *Store) UpdateStatus(ctx context.Context, runID string, status domain.ScanStatus, progress int) error {
	return s.update(runID, func(r *domain.ScanRun) {
		r.Status = status
		r.Progress = progress
	})
}

func (s *Store) UpdateQueryProgress(ctx context.Context, runID string, done, total int) error {
	return s.update(runID, func(r *domain.ScanRun) {
		r.QueriesDone = done
		r.QueriesTotal = total
	})
}

func (s *Store) Complete(ctx context.Context, runID string, score int) error {
	return s.update(runID, func(r *domain.ScanRun) {
		now := s.now()
		r.Status = domain.ScanComplete
		r.Progress = 100
		r.Score = &score
		r.CompletedAt = &now
		r.ErrorMessage = nil
	})
}

func (s *Store) Fail(ctx context.Context, runID string, message string) error {
	return s.update(runID, func(r *domain.ScanRun) {
		now := s.now()
		r.Status = domain.ScanFailed
		r.ErrorMessage = &message
		r.CompletedAt = &now
	})
}

func (s *Store) SetEnrichmentStatus(ctx context.Context, runID string, status domain.EnrichmentStatus) error {
	return s.update(runID, func(r *domain.ScanRun) { r.EnrichmentStatus = status })
}

// SubscriptionRepository

func (s *Store) ListActive(ctx context.Context) ([]domain.DomainSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.DomainSubscription{}
	for _, sub := range s.subs {
		if sub.Status == domain.SubscriptionActive || sub.Status == domain.SubscriptionTrialing {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) GetSubscription(ctx context.Context, id string) (domain.DomainSubscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return domain.DomainSubscription{}, ports.ErrNotFound
	}
	return sub, nil
}

func (s *Store) UpdateSchedule(ctx context.Context, id string, day, hour int, timezone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return ports.ErrNotFound
	}
	sub.ScanScheduleDay, sub.ScanScheduleHour, sub.ScanTimezone = day, hour, timezone
	s.subs[id] = sub
	return nil
}

func (s *Store) ClaimDispatchSlot(ctx context.Context, subscriptionID string, slot time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := subscriptionID + "@" + slot.UTC().Format(time.RFC3339)
	if _, ok := s.slots[key]; ok {
		return false, nil
	}
	s.slots[key] = struct{}{}
	return true, nil
}

// AnalysisRepository

func (s *Store) SaveAnalysis(ctx context.Context, runID string, a domain.BusinessAnalysis) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.analyses[runID] = a
	return nil
}

func (s *Store) GetAnalysis(ctx context.Context, runID string) (domain.BusinessAnalysis, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.analyses[runID]
	return a, ok, nil
}

// QueryRepository

func (s *Store) ReplaceQueries(ctx context.Context, runID string, queries []domain.ResearchedQuery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries[runID] = append([]domain.ResearchedQuery(nil), queries...)
	return nil
}

func (s *Store) ListQueries(ctx context.Context, runID string) ([]domain.ResearchedQuery, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ResearchedQuery(nil), s.queries[runID]...), nil
}

// ResultRepository

func (s *Store) ReplaceResults(ctx context.Context, runID string, results []domain.PlatformResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[runID] = append([]domain.PlatformResult(nil), results...)
	return nil
}

func (s *Store) ListResults(ctx context.Context, runID string) ([]domain.PlatformResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.PlatformResult(nil), s.results[runID]...), nil
}

// BrandRepository

func (s *Store) ReplaceBrandResults(ctx context.Context, runID string, results []domain.BrandAwarenessResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.brand[runID] = append([]domain.BrandAwarenessResult(nil), results...)
	return nil
}

func (s *Store) ListBrandResults(ctx context.Context, runID string) ([]domain.BrandAwarenessResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BrandAwarenessResult(nil), s.brand[runID]...), nil
}

func (s *Store) HasCompetitorData(ctx context.Context, runID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.results[runID] {
		if len(r.Competitors) > 0 {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) SaveCompetitiveSummary(ctx context.Context, runID string, summary string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.summaries[runID] = summary
	return nil
}

func (s *Store) GetCompetitiveSummary(ctx context.Context, runID string) (string, bool, error) {
	v, ok := s.CompetitiveSummary(runID)
	return v, ok, nil
}

// UsageRepository

func (s *Store) RecordUsage(ctx context.Context, u domain.Usage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage = append(s.usage, u)
	return nil
}

// FlagRepository

func (s *Store) LoadFlags(ctx context.Context) (map[string]bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]bool, len(s.flags))
	for k, v := range s.flags {
		out[k] = v
	}
	return out, nil
}

// JobRepository

func (s *Store) ClaimNext(ctx context.Context) (ports.ScanJob, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for _, j := range s.jobs {
		expired := j.status == "running" && now.Sub(j.started) > ports.JobLease
		if j.status == "queued" || expired {
			j.status = "running"
			j.started = now
			j.attempts++
			return ports.ScanJob{ID: j.id, ScanRunID: j.runID}, true, nil
		}
	}
	return ports.ScanJob{}, false, nil
}

func (s *Store) setJob(jobID, status, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.id == jobID {
			j.status = status
			j.reason = reason
			return nil
		}
	}
	return ports.ErrNotFound
}

func (s *Store) MarkCompleted(ctx context.Context, jobID string) error {
	return s.setJob(jobID, "completed", "")
}

func (s *Store) MarkFailed(ctx context.Context, jobID string, reason string) error {
	return s.setJob(jobID, "failed", reason)
}

func (s *Store) Requeue(ctx context.Context, jobID string) error {
	return s.setJob(jobID, "queued", "")
}

func (s *Store) StartJobForScan(ctx context.Context, scanRunID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, j := range s.jobs {
		if j.runID == scanRunID && j.status == "queued" {
			j.status = "running"
			j.started = s.now()
			j.attempts++
			return j.id, nil
		}
	}
	return "", ports.ErrNotFound
}
