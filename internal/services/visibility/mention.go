package visibility

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

const maxCompetitors = 10

// Target is what counts as a mention of the business.
type Target struct {
	terms []string
}

// NewTarget matches the business name, the bare domain and the domain's
// first label when it is long enough to be distinctive.
func NewTarget(businessName, site string) Target {
	var t Target
	add := func(s string) {
		s = strings.ToLower(strings.TrimSpace(s))
		if utf8.RuneCountInString(s) < 4 {
			return
		}
		for _, have := range t.terms {
			if have == s {
				return
			}
		}
		t.terms = append(t.terms, s)
	}
	add(businessName)
	host := strings.TrimPrefix(strings.ToLower(site), "www.")
	add(host)
	if label, _, ok := strings.Cut(host, "."); ok {
		add(label)
	}
	return t
}

func (t Target) matches(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range t.terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

var listItem = regexp.MustCompile(`^\s*(?:\d+[.)]|[-*•])\s+(.+)$`)

// Find reports whether text mentions the target and, when the mention sits in
// a list, its 1-based position among the list items. Position is 0 when the
// mention is outside any list.
func (t Target) Find(text string) (bool, int) {
	if !t.matches(text) {
		return false, 0
	}
	pos := 0
	for _, line := range strings.Split(text, "\n") {
		m := listItem.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		pos++
		if t.matches(m[1]) {
			return true, pos
		}
	}
	return true, 0
}

var boldName = regexp.MustCompile(`\*\*([^*]+)\*\*`)

// Competitors pulls business names out of list items: the bold text when
// present, otherwise the text before the first separator.
func Competitors(text string, t Target) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, line := range strings.Split(text, "\n") {
		m := listItem.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		item := m[1]
		if t.matches(item) {
			continue
		}
		name := ""
		if b := boldName.FindStringSubmatch(item); b != nil {
			name = b[1]
		} else {
			name = item
			for _, sep := range []string{" - ", " – ", ": ", " (", ", "} {
				if i := strings.Index(name, sep); i > 0 {
					name = name[:i]
				}
			}
		}
		name = strings.Trim(strings.TrimSpace(name), ":.-")
		if name == "" || utf8.RuneCountInString(name) > 60 || len(strings.Fields(name)) > 6 {
			continue
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, name)
		if len(out) == maxCompetitors {
			break
		}
	}
	return out
}
