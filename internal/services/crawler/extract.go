package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"mentionscan/internal/domain"
)

// nonContentSelectors lists elements stripped before extracting body text.
const nonContentSelectors = "script, style, noscript, nav, header, footer"

// ExtractPage parses an HTML document into a CrawledPage.
func ExtractPage(pageURL string, body []byte) (domain.CrawledPage, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return domain.CrawledPage{}, fmt.Errorf("parse html: %w", err)
	}

	page := domain.CrawledPage{
		URL:         pageURL,
		Path:        pagePath(pageURL),
		Title:       collapse(doc.Find("title").First().Text()),
		Description: metaDescription(doc),
		H1:          collapse(doc.Find("h1").First().Text()),
		Headings:    headings(doc),
	}

	text := bodyText(doc)
	page.WordCount = len(strings.Fields(text))
	page.BodyText = truncate(text, MaxBodyText)
	return page, nil
}

func pagePath(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

func metaDescription(doc *goquery.Document) string {
	if desc, ok := doc.Find("meta[name='description']").Attr("content"); ok {
		return collapse(desc)
	}
	if desc, ok := doc.Find("meta[property='og:description']").Attr("content"); ok {
		return collapse(desc)
	}
	return ""
}

func headings(doc *goquery.Document) []string {
	out := []string{}
	doc.Find("h2, h3").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if t := collapse(s.Text()); t != "" {
			out = append(out, t)
		}
		return len(out) < MaxHeadings
	})
	return out
}

func bodyText(doc *goquery.Document) string {
	body := doc.Find("body").First()
	if body.Length() == 0 {
		return ""
	}
	body.Find(nonContentSelectors).Remove()
	// block elements are separated so adjacent words do not fuse
	body.Find("p, div, li, h1, h2, h3, h4, h5, h6, br, td, section, article").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})
	return collapse(body.Text())
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate cuts s to at most limit bytes without splitting a rune.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
