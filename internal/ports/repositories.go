package ports

import (
	"context"
	"errors"
	"time"

	"mentionscan/internal/domain"
)

// ErrNotFound is returned by repositories when the keyed row does not exist.
var ErrNotFound = errors.New("not found")

// ScanRunRepository manages scan runs and their job rows.
type ScanRunRepository interface {
	// CreateIfIdle inserts a pending run and its job unless a non-terminal run
	// exists for the same in-flight key. created is false in that case and the
	// in-flight run's id is returned.
	CreateIfIdle(ctx context.Context, run domain.ScanRun) (runID string, created bool, err error)
	Get(ctx context.Context, runID string) (domain.ScanRun, error)
	// LatestComplete returns the most recently completed run for a domain.
	LatestComplete(ctx context.Context, domain string) (domain.ScanRun, error)
	UpdateStatus(ctx context.Context, runID string, status domain.ScanStatus, progress int) error
	UpdateQueryProgress(ctx context.Context, runID string, done, total int) error
	Complete(ctx context.Context, runID string, score int) error
	Fail(ctx context.Context, runID string, message string) error
	SetEnrichmentStatus(ctx context.Context, runID string, status domain.EnrichmentStatus) error
}

// SubscriptionRepository is read-only from the dispatcher's point of view;
// schedule updates arrive from the settings API.
type SubscriptionRepository interface {
	ListActive(ctx context.Context) ([]domain.DomainSubscription, error)
	GetSubscription(ctx context.Context, id string) (domain.DomainSubscription, error)
	UpdateSchedule(ctx context.Context, id string, day, hour int, timezone string) error
	// ClaimDispatchSlot records that subscriptionID was dispatched for the UTC
	// hour starting at slot. claimed is false when it already was.
	ClaimDispatchSlot(ctx context.Context, subscriptionID string, slot time.Time) (claimed bool, err error)
}

// AnalysisRepository stores the business analysis of a run (upsert by run id).
type AnalysisRepository interface {
	SaveAnalysis(ctx context.Context, runID string, a domain.BusinessAnalysis) error
	GetAnalysis(ctx context.Context, runID string) (a domain.BusinessAnalysis, found bool, err error)
}

// QueryRepository holds a run's researched prompt set.
type QueryRepository interface {
	ReplaceQueries(ctx context.Context, runID string, queries []domain.ResearchedQuery) error
	ListQueries(ctx context.Context, runID string) ([]domain.ResearchedQuery, error)
}

// ResultRepository holds per-platform answers for a run.
type ResultRepository interface {
	ReplaceResults(ctx context.Context, runID string, results []domain.PlatformResult) error
	ListResults(ctx context.Context, runID string) ([]domain.PlatformResult, error)
}

// BrandRepository holds entity-recognition results and competitive summaries.
type BrandRepository interface {
	ReplaceBrandResults(ctx context.Context, runID string, results []domain.BrandAwarenessResult) error
	ListBrandResults(ctx context.Context, runID string) ([]domain.BrandAwarenessResult, error)
	HasCompetitorData(ctx context.Context, runID string) (bool, error)
	SaveCompetitiveSummary(ctx context.Context, runID string, summary string) error
	GetCompetitiveSummary(ctx context.Context, runID string) (summary string, found bool, err error)
}

// UsageRepository records LLM token usage per run.
type UsageRepository interface {
	RecordUsage(ctx context.Context, u domain.Usage) error
}

// FlagRepository loads feature flags.
type FlagRepository interface {
	LoadFlags(ctx context.Context) (map[string]bool, error)
}

// Store is everything the scan pipeline persists.
type Store interface {
	ScanRunRepository
	SubscriptionRepository
	AnalysisRepository
	QueryRepository
	ResultRepository
	BrandRepository
	UsageRepository
	FlagRepository
	JobRepository
}
