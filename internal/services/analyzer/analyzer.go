// Package analyzer turns crawled pages into a structured business analysis.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/net/publicsuffix"

	"mentionscan/internal/domain"
	"mentionscan/internal/ports"
)

// MaxCombinedText bounds the crawl text sent to the model.
const MaxCombinedText = 24000

var ErrUnparseable = errors.New("analysis response is not a JSON object")

const analysisPrompt = `Analyze this business website content and identify what the business does.
%s
Respond with only a JSON object:
{
  "businessType": "short noun phrase, e.g. plumber, coffee roaster, accounting firm",
  "businessName": "trading name if stated",
  "location": "city/region if the business serves a specific area, else empty",
  "industry": "broad industry",
  "services": ["up to 6 services"],
  "products": ["up to 6 products"],
  "keyPhrases": ["up to 6 phrases customers would use"],
  "targetAudience": "who the customers are"
}

WEBSITE CONTENT:
%s`

// LLMAnalyzer implements ports.Analyzer with a single platform.
type LLMAnalyzer struct {
	llm      ports.LLMClient
	platform domain.Platform
}

var _ ports.Analyzer = (*LLMAnalyzer)(nil)

func New(llm ports.LLMClient, platform domain.Platform) *LLMAnalyzer {
	if platform == "" {
		platform = domain.PlatformClaude
	}
	return &LLMAnalyzer{llm: llm, platform: platform}
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, combinedText, tldCountry string) (domain.BusinessAnalysis, error) {
	hint := ""
	if tldCountry != "" {
		hint = "The website uses a " + tldCountry + " domain; prefer a location in " + tldCountry + " when the content is ambiguous.\n"
	}
	c, err := a.llm.Complete(ctx, a.platform, fmt.Sprintf(analysisPrompt, hint, combinedText))
	if err != nil {
		return domain.BusinessAnalysis{}, fmt.Errorf("analyze: %w", err)
	}
	return parseAnalysis(c.Text)
}

func parseAnalysis(text string) (domain.BusinessAnalysis, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return domain.BusinessAnalysis{}, ErrUnparseable
	}
	var out domain.BusinessAnalysis
	if err := json.Unmarshal([]byte(text[start:end+1]), &out); err != nil {
		return domain.BusinessAnalysis{}, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	out.BusinessType = strings.TrimSpace(out.BusinessType)
	if out.BusinessType == "" {
		out.BusinessType = "business"
	}
	out.Services = compact(out.Services)
	out.Products = compact(out.Products)
	out.KeyPhrases = compact(out.KeyPhrases)
	return out, nil
}

func compact(items []string) []string {
	out := []string{}
	for _, it := range items {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

// CombinedText joins the pages into one labelled document, bounded by
// MaxCombinedText bytes.
func CombinedText(r domain.CrawlResult) string {
	var b strings.Builder
	for _, p := range r.Pages {
		var page strings.Builder
		fmt.Fprintf(&page, "=== %s ===\n", p.Path)
		if p.Title != "" {
			fmt.Fprintf(&page, "Title: %s\n", p.Title)
		}
		if p.Description != "" {
			fmt.Fprintf(&page, "Description: %s\n", p.Description)
		}
		if p.H1 != "" {
			fmt.Fprintf(&page, "H1: %s\n", p.H1)
		}
		if len(p.Headings) > 0 {
			fmt.Fprintf(&page, "Headings: %s\n", strings.Join(p.Headings, " | "))
		}
		page.WriteString(p.BodyText)
		page.WriteString("\n\n")

		if b.Len()+page.Len() > MaxCombinedText {
			break
		}
		b.WriteString(page.String())
	}
	return b.String()
}

var countryTLDs = map[string]string{
	"au": "Australia",
	"nz": "New Zealand",
	"uk": "United Kingdom",
	"ie": "Ireland",
	"ca": "Canada",
	"us": "United States",
	"de": "Germany",
	"fr": "France",
	"nl": "Netherlands",
	"es": "Spain",
	"it": "Italy",
	"in": "India",
	"sg": "Singapore",
	"za": "South Africa",
}

// TLDCountry maps a domain's country-code TLD to a country name, or "" for
// generic TLDs.
func TLDCountry(site string) string {
	suffix, _ := publicsuffix.PublicSuffix(strings.ToLower(site))
	last := suffix
	if i := strings.LastIndex(suffix, "."); i >= 0 {
		last = suffix[i+1:]
	}
	return countryTLDs[last]
}
