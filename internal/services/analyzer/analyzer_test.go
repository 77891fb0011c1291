package analyzer_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mentionscan/internal/domain"
	"mentionscan/internal/ports"
	"mentionscan/internal/services/analyzer"
)

type oneShot struct {
	text   string
	prompt string
}

func (o *oneShot) Complete(_ context.Context, _ domain.Platform, prompt string) (ports.Completion, error) {
	o.prompt = prompt
	return ports.Completion{Text: o.text}, nil
}

func TestAnalyze(t *testing.T) {
	llm := &oneShot{text: "Sure!\n```json\n" + `{"businessType":" Plumber ","businessName":"Acme","location":"Sydney","industry":"Trades",
"services":["Blocked drains"," ",""],"products":[],"keyPhrases":["emergency plumber"]}` + "\n```"}

	got, err := analyzer.New(llm, "").Analyze(context.Background(), "page text", "Australia")

	require.NoError(t, err)
	assert.Equal(t, "Plumber", got.BusinessType)
	assert.Equal(t, "Sydney", got.Location)
	assert.Equal(t, []string{"Blocked drains"}, got.Services)
	assert.Empty(t, got.Products)
	assert.Contains(t, llm.prompt, "Australia domain")
	assert.Contains(t, llm.prompt, "page text")
}

func TestAnalyze_Unparseable(t *testing.T) {
	_, err := analyzer.New(&oneShot{text: "no idea"}, "").Analyze(context.Background(), "x", "")
	assert.ErrorIs(t, err, analyzer.ErrUnparseable)
}

func TestCombinedText(t *testing.T) {
	r := domain.CrawlResult{Pages: []domain.CrawledPage{
		{Path: "/", Title: "Home", H1: "Acme Plumbing", Headings: []string{"Drains", "Hot water"}, BodyText: "We fix pipes."},
		{Path: "/about", BodyText: "Family owned."},
	}}

	got := analyzer.CombinedText(r)

	assert.Contains(t, got, "=== / ===\nTitle: Home\nH1: Acme Plumbing\nHeadings: Drains | Hot water\nWe fix pipes.")
	assert.Contains(t, got, "=== /about ===\nFamily owned.")
}

func TestCombinedText_Bounded(t *testing.T) {
	var pages []domain.CrawledPage
	for i := 0; i < 15; i++ {
		pages = append(pages, domain.CrawledPage{Path: "/p", BodyText: strings.Repeat("x", 5000)})
	}
	assert.LessOrEqual(t, len(analyzer.CombinedText(domain.CrawlResult{Pages: pages})), analyzer.MaxCombinedText)
}

func TestTLDCountry(t *testing.T) {
	assert.Equal(t, "Australia", analyzer.TLDCountry("acme.com.au"))
	assert.Equal(t, "United Kingdom", analyzer.TLDCountry("shop.co.uk"))
	assert.Equal(t, "", analyzer.TLDCountry("example.com"))
}
