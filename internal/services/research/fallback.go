package research

import (
	"strings"

	"mentionscan/internal/domain"
)

const (
	// FallbackRelevance is the fixed score of synthesized queries.
	FallbackRelevance  = 5
	maxFallbackQueries = 7
)

// FallbackQueries synthesizes a deterministic prompt set from the business
// analysis when no platform produced usable suggestions. It always returns
// between 2 and 7 queries, each with an empty SuggestedBy.
func FallbackQueries(a domain.BusinessAnalysis) []domain.ResearchedQuery {
	businessType := strings.ToLower(orDefault(a.BusinessType, "business"))
	where := " near me"
	if loc := strings.TrimSpace(a.Location); loc != "" {
		where = " in " + strings.ToLower(loc)
	}

	var out []domain.ResearchedQuery
	seen := map[string]struct{}{}
	add := func(q string, c domain.Category) {
		q = strings.Join(strings.Fields(strings.ToLower(q)), " ")
		if q == "" || len(out) >= maxFallbackQueries {
			return
		}
		if _, ok := seen[q]; ok {
			return
		}
		seen[q] = struct{}{}
		out = append(out, domain.ResearchedQuery{
			Query:          q,
			Category:       c,
			SuggestedBy:    []domain.Platform{},
			RelevanceScore: FallbackRelevance,
		})
	}

	add("best "+businessType+where, domain.CategoryFindingProvider)
	for _, s := range firstN(a.Services, 2) {
		add(s+where, domain.CategoryService)
	}
	for _, p := range firstN(a.Products, 2) {
		add("where to buy "+p+where, domain.CategoryProductSpecific)
	}
	add("top rated "+businessType+where+" reviews", domain.CategoryReview)
	for _, k := range a.KeyPhrases {
		add(k+where, domain.CategoryGeneral)
	}
	return out
}

// Select returns the ranked prompt set for suggestions, or the fallback set
// when there are none. The fallback set never drops below two queries, even
// for a smaller limit.
func (o RankOptions) Select(a domain.BusinessAnalysis, suggestions []domain.RawQuerySuggestion, limit int) []domain.ResearchedQuery {
	if len(suggestions) == 0 {
		fb := FallbackQueries(a)
		if n := max(limit, 2); limit > 0 && len(fb) > n {
			fb = fb[:n]
		}
		return fb
	}
	return o.DedupeAndRank(suggestions, limit)
}

func firstN(items []string, n int) []string {
	var out []string
	for _, it := range items {
		if strings.TrimSpace(it) == "" {
			continue
		}
		out = append(out, it)
		if len(out) == n {
			break
		}
	}
	return out
}
