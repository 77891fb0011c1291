// Package research asks LLM platforms which queries customers would use to
// find a business, and reduces their overlapping answers to a small prompt set.
package research

import (
	"context"
	"sync"

	"mentionscan/internal/domain"
	"mentionscan/internal/logger"
	"mentionscan/internal/ports"
	"mentionscan/internal/ratelimit"
)

// ProgressFunc is called after each platform finishes, successfully or not.
type ProgressFunc func(platform domain.Platform, done, total int)

type Options struct {
	// Platforms are asked in this order. Defaults to domain.ResearchPlatforms.
	Platforms []domain.Platform
	Policy    ratelimit.Policy
	Rank      RankOptions
	Logger    logger.Logger
}

type Engine struct {
	llm       ports.LLMClient
	usage     ports.UsageRepository
	platforms []domain.Platform
	policy    ratelimit.Policy
	rank      RankOptions
	log       logger.Logger
}

func New(llm ports.LLMClient, usage ports.UsageRepository, opts Options) *Engine {
	e := &Engine{llm: llm, usage: usage, platforms: opts.Platforms, policy: opts.Policy, rank: opts.Rank, log: opts.Logger}
	if len(e.platforms) == 0 {
		e.platforms = domain.ResearchPlatforms
	}
	if e.log == nil {
		e.log = logger.NewNop()
	}
	return e
}

// Research collects raw query suggestions from every platform. A platform
// that errors or answers with unparseable text contributes nothing; the
// result is empty only when all of them fail.
func (e *Engine) Research(ctx context.Context, a domain.BusinessAnalysis, runID string, onProgress ProgressFunc) []domain.RawQuerySuggestion {
	prompt := renderPrompt(a)
	log := e.log.With(logger.String("run_id", runID))
	perPlatform := make([][]domain.RawQuerySuggestion, len(e.platforms))

	var mu sync.Mutex
	done := 0
	err := e.policy.Each(ctx, len(e.platforms), func(ctx context.Context, i int) {
		platform := e.platforms[i]
		perPlatform[i] = e.ask(ctx, log, runID, platform, prompt)
		if onProgress != nil {
			mu.Lock()
			done++
			n := done
			mu.Unlock()
			onProgress(platform, n, len(e.platforms))
		}
	})
	if err != nil {
		log.Warn("query research interrupted", logger.Error(err))
	}

	var out []domain.RawQuerySuggestion
	for _, s := range perPlatform {
		out = append(out, s...)
	}
	log.Info("query research finished", logger.Int("suggestions", len(out)))
	return out
}

func (e *Engine) ask(ctx context.Context, log logger.Logger, runID string, platform domain.Platform, prompt string) []domain.RawQuerySuggestion {
	log = log.With(logger.String("platform", string(platform)))
	completion, err := e.llm.Complete(ctx, platform, prompt)
	if err != nil {
		log.Warn("query research call failed", logger.Error(err))
		return nil
	}
	if e.usage != nil {
		if err := e.usage.RecordUsage(ctx, domain.Usage{
			RunID:        runID,
			Platform:     platform,
			Purpose:      "query_research",
			InputTokens:  completion.InputTokens,
			OutputTokens: completion.OutputTokens,
		}); err != nil {
			log.Warn("record usage failed", logger.Error(err))
		}
	}
	suggestions, err := parseSuggestions(completion.Text, platform)
	if err != nil {
		log.Warn("query research response unparseable", logger.Error(err))
		return nil
	}
	return suggestions
}

// Select ranks suggestions into at most limit queries, falling back to the
// synthesized set when suggestions is empty.
func (e *Engine) Select(a domain.BusinessAnalysis, suggestions []domain.RawQuerySuggestion, limit int) []domain.ResearchedQuery {
	return e.rank.Select(a, suggestions, limit)
}
