package reports_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentionscan/internal/adapters/memory"
	"mentionscan/internal/domain"
	"mentionscan/internal/services/reports"
)

func completedRun(t *testing.T, store *memory.Store, site, lead string, score int) string {
	t.Helper()
	ctx := context.Background()
	id, created, err := store.CreateIfIdle(ctx, domain.ScanRun{Domain: site, LeadID: lead})
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, store.Complete(ctx, id, score))
	return id
}

func TestGetLatest_NotFound(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	id, _, err := store.CreateIfIdle(ctx, domain.ScanRun{Domain: "acme.com", LeadID: "l1"})
	require.NoError(t, err)
	require.NoError(t, store.Fail(ctx, id, "boom"))

	_, err = reports.New(store).GetLatest(ctx, "acme.com")
	assert.ErrorIs(t, err, reports.ErrNotFound)
}

func TestGetLatest_AggregatesResults(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	id := completedRun(t, store, "acme.com", "l1", 50)

	require.NoError(t, store.ReplaceQueries(ctx, id, []domain.ResearchedQuery{
		{Query: "best plumber in sydney", Category: domain.CategoryFindingProvider, RelevanceScore: 20},
		{Query: "emergency plumber sydney", Category: domain.CategoryService, RelevanceScore: 10},
	}))
	require.NoError(t, store.ReplaceResults(ctx, id, []domain.PlatformResult{
		{RunID: id, Query: "best plumber in sydney", Platform: domain.PlatformChatGPT, Mentioned: true, Position: 1, Competitors: []string{"Pipe Pros"}},
		{RunID: id, Query: "best plumber in sydney", Platform: domain.PlatformClaude, Mentioned: false, Competitors: []string{"Pipe Pros", "Drain Co"}},
		{RunID: id, Query: "emergency plumber sydney", Platform: domain.PlatformChatGPT, Mentioned: false},
		{RunID: id, Query: "emergency plumber sydney", Platform: domain.PlatformClaude, Mentioned: true, Position: 2},
	}))

	rep, err := reports.New(store).GetLatest(ctx, "acme.com")
	require.NoError(t, err)

	assert.Equal(t, id, rep.ScanRunID)
	assert.Equal(t, 50, rep.Score)
	assert.False(t, rep.CompletedAt.IsZero())
	assert.Len(t, rep.Queries, 2)
	assert.Equal(t, []reports.PlatformStats{
		{Platform: domain.PlatformChatGPT, Asked: 2, Mentioned: 1},
		{Platform: domain.PlatformClaude, Asked: 2, Mentioned: 1},
	}, rep.Platforms)
	assert.Equal(t, []string{"Pipe Pros", "Drain Co"}, rep.TopCompetitors)
	assert.Empty(t, rep.BrandAwareness)
	assert.Empty(t, rep.CompetitiveSummary)
}

func TestGetLatest_IncludesEnrichmentWhenComplete(t *testing.T) {
	store := memory.New()
	ctx := context.Background()
	id := completedRun(t, store, "acme.com", "l1", 80)
	require.NoError(t, store.ReplaceBrandResults(ctx, id, []domain.BrandAwarenessResult{
		{RunID: id, Platform: domain.PlatformChatGPT, Recognized: true, Response: "Acme is a plumber."},
	}))
	require.NoError(t, store.SaveCompetitiveSummary(ctx, id, "Acme trails Pipe Pros."))

	svc := reports.New(store)

	rep, err := svc.GetLatest(ctx, "acme.com")
	require.NoError(t, err)
	assert.Empty(t, rep.BrandAwareness, "enrichment is hidden until it completes")

	require.NoError(t, store.SetEnrichmentStatus(ctx, id, domain.EnrichmentComplete))
	rep, err = svc.GetLatest(ctx, "acme.com")
	require.NoError(t, err)
	require.Len(t, rep.BrandAwareness, 1)
	assert.True(t, rep.BrandAwareness[0].Recognized)
	assert.Equal(t, "Acme trails Pipe Pros.", rep.CompetitiveSummary)
	assert.Equal(t, domain.EnrichmentComplete, rep.EnrichmentStatus)
}
