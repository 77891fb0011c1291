package scanrunner_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentionscan/internal/adapters/memory"
	"mentionscan/internal/domain"
	"mentionscan/internal/workers/scanrunner"
	"mentionscan/internal/workflow"
)

type brandFunc func(ctx context.Context, runID string) ([]domain.BrandAwarenessResult, error)

func (f brandFunc) Check(ctx context.Context, runID, _ string, _ domain.BusinessAnalysis) ([]domain.BrandAwarenessResult, error) {
	return f(ctx, runID)
}

type countingSummarizer struct{ calls atomic.Int32 }

func (s *countingSummarizer) Summarize(context.Context, string, string, domain.BusinessAnalysis, []domain.PlatformResult) (string, error) {
	s.calls.Add(1)
	return "You trail Pipe Pros on emergency queries.", nil
}

func recognized(_ context.Context, runID string) ([]domain.BrandAwarenessResult, error) {
	return []domain.BrandAwarenessResult{
		{RunID: runID, Platform: domain.PlatformChatGPT, Recognized: true, Response: "A plumber."},
		{RunID: runID, Platform: domain.PlatformClaude},
	}, nil
}

func completedRun(t *testing.T, store *memory.Store) string {
	t.Helper()
	ctx := context.Background()
	id, _, err := store.CreateIfIdle(ctx, domain.ScanRun{Domain: "acme.com", LeadID: "lead-1"})
	require.NoError(t, err)
	require.NoError(t, store.Complete(ctx, id, 40))
	return id
}

func TestEnrich_StoresBrandResultsAndSummary(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	id := completedRun(t, store)
	require.NoError(t, store.ReplaceResults(ctx, id, []domain.PlatformResult{{RunID: id, Competitors: []string{"Pipe Pros"}}}))
	summarizer := &countingSummarizer{}
	e := scanrunner.NewEnricher(store, brandFunc(recognized), summarizer, fastSteps(), nil, nil)

	require.NoError(t, e.Enrich(ctx, id))
	require.NoError(t, e.Enrich(ctx, id), "re-enrichment is idempotent")

	got, err := store.ListBrandResults(ctx, id)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	summary, ok := store.CompetitiveSummary(id)
	assert.True(t, ok)
	assert.Equal(t, "You trail Pipe Pros on emergency queries.", summary)
	run, _ := store.Get(ctx, id)
	assert.Equal(t, domain.EnrichmentComplete, run.EnrichmentStatus)
	assert.Equal(t, domain.ScanComplete, run.Status)
}

func TestEnrich_SkipsSummaryWithoutCompetitors(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	id := completedRun(t, store)
	summarizer := &countingSummarizer{}
	e := scanrunner.NewEnricher(store, brandFunc(recognized), summarizer, fastSteps(), nil, nil)

	require.NoError(t, e.Enrich(ctx, id))

	assert.Zero(t, summarizer.calls.Load())
	_, ok := store.CompetitiveSummary(id)
	assert.False(t, ok)
}

func TestEnrich_StepFailureFailsRun(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	id := completedRun(t, store)
	var calls atomic.Int32
	failing := brandFunc(func(context.Context, string) ([]domain.BrandAwarenessResult, error) {
		calls.Add(1)
		return nil, errors.New("store unavailable")
	})
	e := scanrunner.NewEnricher(store, failing, &countingSummarizer{}, fastSteps(), nil, nil)

	err := e.Enrich(ctx, id)
	require.Error(t, err)
	assert.True(t, workflow.IsPermanent(err))
	assert.EqualValues(t, 2, calls.Load(), "one attempt plus one bounded retry")

	run, _ := store.Get(ctx, id)
	assert.Equal(t, domain.ScanFailed, run.Status)
	assert.Equal(t, domain.EnrichmentFailed, run.EnrichmentStatus)
	require.NotNil(t, run.ErrorMessage)
	assert.Equal(t, scanrunner.MsgEnrichment, *run.ErrorMessage)
}

func TestEnrich_IncompleteRunIsSkipped(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	id, _, err := store.CreateIfIdle(ctx, domain.ScanRun{Domain: "acme.com", LeadID: "lead-1"})
	require.NoError(t, err)
	e := scanrunner.NewEnricher(store, brandFunc(recognized), &countingSummarizer{}, fastSteps(), nil, nil)

	assert.Error(t, e.Enrich(ctx, id))
	run, _ := store.Get(ctx, id)
	assert.Equal(t, domain.ScanPending, run.Status)
	assert.Equal(t, domain.EnrichmentNone, run.EnrichmentStatus)
}

func TestEnrich_NewerTriggerCancelsInFlight(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	id := completedRun(t, store)

	started := make(chan struct{})
	var calls atomic.Int32
	checker := brandFunc(func(ctx context.Context, runID string) ([]domain.BrandAwarenessResult, error) {
		if calls.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return recognized(ctx, runID)
	})
	e := scanrunner.NewEnricher(store, checker, &countingSummarizer{}, fastSteps(), nil, nil)

	firstErr := make(chan error, 1)
	go func() { firstErr <- e.Enrich(ctx, id) }()

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("first enrichment never started")
	}

	require.NoError(t, e.Enrich(ctx, id))
	assert.NoError(t, <-firstErr, "superseded enrichment is not a failure")
	assert.EqualValues(t, 2, calls.Load())

	run, _ := store.Get(ctx, id)
	assert.Equal(t, domain.ScanComplete, run.Status)
	assert.Equal(t, domain.EnrichmentComplete, run.EnrichmentStatus)
}

func TestEnrich_ShutdownLeavesRunComplete(t *testing.T) {
	store := memory.New()
	id := completedRun(t, store)

	ctx, cancel := context.WithCancel(context.Background())
	blocked := brandFunc(func(ctx context.Context, _ string) ([]domain.BrandAwarenessResult, error) {
		cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	e := scanrunner.NewEnricher(store, blocked, &countingSummarizer{}, fastSteps(), nil, nil)

	err := e.Enrich(ctx, id)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, workflow.IsPermanent(err))

	run, _ := store.Get(context.Background(), id)
	assert.Equal(t, domain.ScanComplete, run.Status)
	assert.Equal(t, domain.EnrichmentNone, run.EnrichmentStatus)
	assert.Nil(t, run.ErrorMessage)

	e = scanrunner.NewEnricher(store, brandFunc(recognized), &countingSummarizer{}, fastSteps(), nil, nil)
	require.NoError(t, e.Enrich(context.Background(), id))
	run, _ = store.Get(context.Background(), id)
	assert.Equal(t, domain.EnrichmentComplete, run.EnrichmentStatus)
}
