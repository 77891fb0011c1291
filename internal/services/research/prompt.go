package research

import (
	"fmt"
	"strings"

	"mentionscan/internal/domain"
)

const researchPrompt = `You help a local business understand how customers find providers like it through AI assistants.

Business type: %s
Location: %s
Services: %s
Products: %s

List exactly 10 search queries a real customer would type into an AI assistant when they are ready to pick a provider.
Only include commercial-intent queries, where a good answer names specific businesses (for example "best emergency plumber in Parramatta").
Do not include advisory queries that would only get generic how-to advice (for example "how do I unblock a drain").

Each query must have one category: finding_provider, product_specific, service, comparison, review, how_to, general.

Reply with ONLY a JSON array of 10 objects: [{"query": "...", "category": "..."}]`

func renderPrompt(a domain.BusinessAnalysis) string {
	return fmt.Sprintf(researchPrompt,
		orDefault(a.BusinessType, "business"),
		orDefault(a.Location, "not specified"),
		joinOrNone(a.Services),
		joinOrNone(a.Products),
	)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return strings.TrimSpace(s)
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none listed"
	}
	return strings.Join(items, ", ")
}
