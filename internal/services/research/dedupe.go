package research

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"mentionscan/internal/domain"
)

const (
	// SimilarityThreshold is the Jaccard similarity at which two queries
	// are treated as the same question.
	SimilarityThreshold = 0.5
	// CategoryCapDivisor sets the per-category cap to ceil(limit/divisor).
	CategoryCapDivisor = 3
	// PlatformWeight is the relevance contributed by each agreeing platform.
	PlatformWeight = 10
	// DefaultQueryLimit is the size of a run's prompt set.
	DefaultQueryLimit = 7

	naturalMinLen = 20
	naturalMaxLen = 60
	minWordLen    = 3
)

// RankOptions overrides the clustering and selection constants. Zero values
// fall back to the package defaults.
type RankOptions struct {
	SimilarityThreshold float64
	CategoryCapDivisor  int
}

func (o RankOptions) threshold() float64 {
	if o.SimilarityThreshold <= 0 {
		return SimilarityThreshold
	}
	return o.SimilarityThreshold
}

func (o RankOptions) divisor() int {
	if o.CategoryCapDivisor <= 0 {
		return CategoryCapDivisor
	}
	return o.CategoryCapDivisor
}

// significantWords returns the lowercase words of q longer than two characters.
func significantWords(q string) map[string]struct{} {
	words := strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		if utf8.RuneCountInString(w) >= minWordLen {
			set[w] = struct{}{}
		}
	}
	return set
}

// Similarity is the Jaccard index of the significant word sets of a and b.
// Queries without significant words only match themselves.
func Similarity(a, b string) float64 {
	wa, wb := significantWords(a), significantWords(b)
	if len(wa) == 0 || len(wb) == 0 {
		if strings.TrimSpace(strings.ToLower(a)) == strings.TrimSpace(strings.ToLower(b)) {
			return 1
		}
		return 0
	}
	inter := 0
	for w := range wa {
		if _, ok := wb[w]; ok {
			inter++
		}
	}
	union := len(wa) + len(wb) - inter
	return float64(inter) / float64(union)
}

type group struct {
	seed      string
	members   []domain.RawQuerySuggestion
	platforms []domain.Platform
}

func (g *group) add(s domain.RawQuerySuggestion) {
	g.members = append(g.members, s)
	for _, p := range g.platforms {
		if p == s.Platform {
			return
		}
	}
	g.platforms = append(g.platforms, s.Platform)
}

// representative prefers the first member of natural length.
func (g *group) representative() domain.RawQuerySuggestion {
	for _, m := range g.members {
		if n := utf8.RuneCountInString(m.Query); n >= naturalMinLen && n <= naturalMaxLen {
			return m
		}
	}
	return g.members[0]
}

// cluster greedily assigns each suggestion to the first group whose seed is
// similar enough, in input order.
func cluster(suggestions []domain.RawQuerySuggestion, threshold float64) []*group {
	var groups []*group
	for _, s := range suggestions {
		var target *group
		for _, g := range groups {
			if Similarity(g.seed, s.Query) >= threshold {
				target = g
				break
			}
		}
		if target == nil {
			target = &group{seed: s.Query}
			groups = append(groups, target)
		}
		target.add(s)
	}
	return groups
}

// DedupeAndRank clusters suggestions and selects up to limit queries using
// the default constants.
func DedupeAndRank(suggestions []domain.RawQuerySuggestion, limit int) []domain.ResearchedQuery {
	return RankOptions{}.DedupeAndRank(suggestions, limit)
}

// DedupeAndRank is a pure function of its input: clusters are ranked by the
// number of distinct platforms that suggested them, then selected with a
// soft per-category cap.
func (o RankOptions) DedupeAndRank(suggestions []domain.RawQuerySuggestion, limit int) []domain.ResearchedQuery {
	if limit <= 0 || len(suggestions) == 0 {
		return []domain.ResearchedQuery{}
	}

	groups := cluster(suggestions, o.threshold())
	ranked := make([]domain.ResearchedQuery, 0, len(groups))
	for _, g := range groups {
		rep := g.representative()
		ranked = append(ranked, domain.ResearchedQuery{
			Query:          rep.Query,
			Category:       rep.Category,
			SuggestedBy:    append([]domain.Platform(nil), g.platforms...),
			RelevanceScore: PlatformWeight * len(g.platforms),
		})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].RelevanceScore > ranked[j].RelevanceScore
	})

	return selectDiverse(ranked, limit, o.divisor())
}

func selectDiverse(ranked []domain.ResearchedQuery, limit, divisor int) []domain.ResearchedQuery {
	capPerCategory := (limit + divisor - 1) / divisor
	out := make([]domain.ResearchedQuery, 0, limit)
	taken := make([]bool, len(ranked))
	perCategory := map[domain.Category]int{}

	for i, q := range ranked {
		if len(out) == limit {
			break
		}
		if perCategory[q.Category] >= capPerCategory {
			continue
		}
		perCategory[q.Category]++
		taken[i] = true
		out = append(out, q)
	}
	for i, q := range ranked {
		if len(out) == limit {
			break
		}
		if !taken[i] {
			out = append(out, q)
		}
	}
	return out
}
