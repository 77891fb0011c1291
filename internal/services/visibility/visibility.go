// Package visibility asks each platform the researched queries and records
// whether the business shows up in the answers.
package visibility

import (
	"context"
	"math"
	"sync"

	"mentionscan/internal/domain"
	"mentionscan/internal/logger"
	"mentionscan/internal/ports"
	"mentionscan/internal/ratelimit"
)

// ProgressFunc reports completed platform calls out of total.
type ProgressFunc func(done, total int)

type Options struct {
	Platforms []domain.Platform
	Policy    ratelimit.Policy
	Logger    logger.Logger
}

type Executor struct {
	llm       ports.LLMClient
	usage     ports.UsageRepository
	platforms []domain.Platform
	policy    ratelimit.Policy
	log       logger.Logger
}

func New(llm ports.LLMClient, usage ports.UsageRepository, opts Options) *Executor {
	e := &Executor{llm: llm, usage: usage, platforms: opts.Platforms, policy: opts.Policy, log: opts.Logger}
	if len(e.platforms) == 0 {
		e.platforms = domain.ResearchPlatforms
	}
	if e.log == nil {
		e.log = logger.NewNop()
	}
	return e
}

// Platforms is the number of platforms each query is asked on.
func (e *Executor) Platforms() int { return len(e.platforms) }

// Run asks every query on every platform, query-major. Failed calls produce
// no result; the returned slice keeps task order.
func (e *Executor) Run(ctx context.Context, runID, site string, a domain.BusinessAnalysis, queries []domain.ResearchedQuery, onProgress ProgressFunc) ([]domain.PlatformResult, error) {
	total := len(queries) * len(e.platforms)
	slots := make([]*domain.PlatformResult, total)
	target := NewTarget(a.BusinessName, site)
	log := e.log.With(logger.String("run_id", runID))

	var mu sync.Mutex
	done := 0
	err := e.policy.Each(ctx, total, func(ctx context.Context, i int) {
		q := queries[i/len(e.platforms)]
		p := e.platforms[i%len(e.platforms)]
		if res, ok := e.ask(ctx, log, runID, target, q.Query, p); ok {
			slots[i] = &res
		}
		if onProgress != nil {
			mu.Lock()
			done++
			n := done
			mu.Unlock()
			onProgress(n, total)
		}
	})
	if err != nil {
		return nil, err
	}

	out := make([]domain.PlatformResult, 0, total)
	for _, r := range slots {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (e *Executor) ask(ctx context.Context, log logger.Logger, runID string, target Target, query string, p domain.Platform) (domain.PlatformResult, bool) {
	c, err := e.llm.Complete(ctx, p, query)
	if err != nil {
		log.Warn("platform query failed", logger.String("platform", string(p)), logger.String("query", query), logger.Error(err))
		return domain.PlatformResult{}, false
	}
	if e.usage != nil {
		if err := e.usage.RecordUsage(ctx, domain.Usage{
			RunID: runID, Platform: p, Purpose: "visibility_query",
			InputTokens: c.InputTokens, OutputTokens: c.OutputTokens,
		}); err != nil {
			log.Warn("record usage failed", logger.Error(err))
		}
	}
	mentioned, position := target.Find(c.Text)
	return domain.PlatformResult{
		RunID:       runID,
		Query:       query,
		Platform:    p,
		Response:    c.Text,
		Mentioned:   mentioned,
		Position:    position,
		Competitors: Competitors(c.Text, target),
	}, true
}

// Score is the rounded percentage of results that mention the business.
func Score(results []domain.PlatformResult) int {
	if len(results) == 0 {
		return 0
	}
	mentioned := 0
	for _, r := range results {
		if r.Mentioned {
			mentioned++
		}
	}
	return int(math.Round(100 * float64(mentioned) / float64(len(results))))
}
