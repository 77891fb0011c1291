package research

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode"

	"mentionscan/internal/domain"
)

var errNoArray = errors.New("no JSON array in response")

var validCategories = map[domain.Category]struct{}{
	domain.CategoryFindingProvider: {},
	domain.CategoryProductSpecific: {},
	domain.CategoryService:         {},
	domain.CategoryComparison:      {},
	domain.CategoryReview:          {},
	domain.CategoryHowTo:           {},
	domain.CategoryGeneral:         {},
}

// NormalizeCategory lowercases raw, drops everything but letters and
// underscores, and maps unknown values to general.
func NormalizeCategory(raw string) domain.Category {
	cleaned := strings.Map(func(r rune) rune {
		r = unicode.ToLower(r)
		if (r >= 'a' && r <= 'z') || r == '_' {
			return r
		}
		return -1
	}, raw)
	c := domain.Category(cleaned)
	if _, ok := validCategories[c]; ok {
		return c
	}
	return domain.CategoryGeneral
}

type suggestion struct {
	Query    string `json:"query"`
	Category string `json:"category"`
}

// parseSuggestions decodes the first [...] array in text.
func parseSuggestions(text string, platform domain.Platform) ([]domain.RawQuerySuggestion, error) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, errNoArray
	}
	var items []suggestion
	if err := json.Unmarshal([]byte(text[start:end+1]), &items); err != nil {
		return nil, err
	}
	out := make([]domain.RawQuerySuggestion, 0, len(items))
	for _, it := range items {
		q := strings.ToLower(strings.TrimSpace(it.Query))
		if q == "" {
			continue
		}
		out = append(out, domain.RawQuerySuggestion{
			Query:    q,
			Category: NormalizeCategory(it.Category),
			Platform: platform,
		})
	}
	return out, nil
}
