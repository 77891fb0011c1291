// Package reports assembles the latest completed scan of a domain into a
// single read model.
package reports

import (
	"context"
	"errors"
	"time"

	"mentionscan/internal/domain"
	"mentionscan/internal/ports"
	"mentionscan/internal/services/brand"
)

var ErrNotFound = errors.New("no completed scan")

const topCompetitors = 5

type Repository interface {
	ports.ScanRunRepository
	ports.QueryRepository
	ports.ResultRepository
	ports.BrandRepository
}

type PlatformStats struct {
	Platform  domain.Platform `json:"platform"`
	Asked     int             `json:"asked"`
	Mentioned int             `json:"mentioned"`
}

type Report struct {
	Domain             string                        `json:"domain"`
	ScanRunID          string                        `json:"scanRunId"`
	Score              int                           `json:"score"`
	CompletedAt        time.Time                     `json:"completedAt"`
	Queries            []domain.ResearchedQuery      `json:"queries"`
	Platforms          []PlatformStats               `json:"platforms"`
	TopCompetitors     []string                      `json:"topCompetitors"`
	EnrichmentStatus   domain.EnrichmentStatus       `json:"enrichmentStatus,omitempty"`
	BrandAwareness     []domain.BrandAwarenessResult `json:"brandAwareness,omitempty"`
	CompetitiveSummary string                        `json:"competitiveSummary,omitempty"`
}

type Service struct {
	repo Repository
}

func New(repo Repository) *Service { return &Service{repo: repo} }

// GetLatest returns the report of the most recent complete run for site.
func (s *Service) GetLatest(ctx context.Context, site string) (Report, error) {
	run, err := s.repo.LatestComplete(ctx, site)
	if errors.Is(err, ports.ErrNotFound) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, err
	}

	queries, err := s.repo.ListQueries(ctx, run.ID)
	if err != nil {
		return Report{}, err
	}
	results, err := s.repo.ListResults(ctx, run.ID)
	if err != nil {
		return Report{}, err
	}

	rep := Report{
		Domain:           run.Domain,
		ScanRunID:        run.ID,
		Queries:          queries,
		Platforms:        platformStats(results),
		TopCompetitors:   brand.TopCompetitors(results, topCompetitors),
		EnrichmentStatus: run.EnrichmentStatus,
	}
	if run.Score != nil {
		rep.Score = *run.Score
	}
	if run.CompletedAt != nil {
		rep.CompletedAt = *run.CompletedAt
	}

	if run.EnrichmentStatus == domain.EnrichmentComplete {
		if rep.BrandAwareness, err = s.repo.ListBrandResults(ctx, run.ID); err != nil {
			return Report{}, err
		}
		summary, _, err := s.repo.GetCompetitiveSummary(ctx, run.ID)
		if err != nil {
			return Report{}, err
		}
		rep.CompetitiveSummary = summary
	}
	return rep, nil
}

// platformStats counts answers and mentions per platform, in first-seen order.
func platformStats(results []domain.PlatformResult) []PlatformStats {
	out := []PlatformStats{}
	idx := map[domain.Platform]int{}
	for _, r := range results {
		i, ok := idx[r.Platform]
		if !ok {
			i = len(out)
			idx[r.Platform] = i
			out = append(out, PlatformStats{Platform: r.Platform})
		}
		out[i].Asked++
		if r.Mentioned {
			out[i].Mentioned++
		}
	}
	return out
}
