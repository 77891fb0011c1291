package brand

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"mentionscan/internal/domain"
	"mentionscan/internal/logger"
	"mentionscan/internal/ports"
)

const summaryPrompt = `You are advising %s (%s) on how AI assistants present it against competitors.

Across %d assistant answers it was mentioned %d times. Competitors named most often:
%s

Write a short competitive summary (at most 120 words) with two concrete suggestions for
being recommended more often. Plain text, no headings.`

const maxSummaryCompetitors = 8

// Summarizer writes the competitive summary for a run using one platform.
type Summarizer struct {
	llm      ports.LLMClient
	usage    ports.UsageRepository
	platform domain.Platform
	log      logger.Logger
}

func NewSummarizer(llm ports.LLMClient, usage ports.UsageRepository, platform domain.Platform, log logger.Logger) *Summarizer {
	if platform == "" {
		platform = domain.PlatformClaude
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Summarizer{llm: llm, usage: usage, platform: platform, log: log}
}

func (s *Summarizer) Summarize(ctx context.Context, runID, site string, a domain.BusinessAnalysis, results []domain.PlatformResult) (string, error) {
	mentioned := 0
	for _, r := range results {
		if r.Mentioned {
			mentioned++
		}
	}
	name := a.BusinessName
	if name == "" {
		name = site
	}
	prompt := fmt.Sprintf(summaryPrompt, name, site, len(results), mentioned, competitorList(results))

	c, err := s.llm.Complete(ctx, s.platform, prompt)
	if err != nil {
		return "", fmt.Errorf("competitive summary: %w", err)
	}
	recordUsage(ctx, s.usage, s.log, runID, s.platform, "competitive_summary", c)
	return strings.TrimSpace(c.Text), nil
}

// TopCompetitors counts competitor names across results, most frequent first.
func TopCompetitors(results []domain.PlatformResult, n int) []string {
	counts := map[string]int{}
	display := map[string]string{}
	var order []string
	for _, r := range results {
		for _, c := range r.Competitors {
			k := strings.ToLower(strings.TrimSpace(c))
			if k == "" {
				continue
			}
			if _, ok := counts[k]; !ok {
				order = append(order, k)
				display[k] = strings.TrimSpace(c)
			}
			counts[k]++
		}
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })
	if len(order) > n {
		order = order[:n]
	}
	out := make([]string, len(order))
	for i, k := range order {
		out[i] = display[k]
	}
	return out
}

func competitorList(results []domain.PlatformResult) string {
	top := TopCompetitors(results, maxSummaryCompetitors)
	if len(top) == 0 {
		return "- none"
	}
	return "- " + strings.Join(top, "\n- ")
}
