// Package crawler fetches a small representative sample of a business website.
//
// CrawlSite never fails: fetch and parse errors only reduce the number of
// pages returned. Callers treat an empty result as insufficient data.
package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"mentionscan/internal/domain"
	"mentionscan/internal/logger"
)

const (
	// MaxPages is the number of URLs fetched and extracted per crawl.
	MaxPages = 15
	// MaxSitemapURLs caps the URLs taken from sitemaps.
	MaxSitemapURLs = 20
	// MaxBodyText caps CrawledPage.BodyText in characters.
	MaxBodyText = 5000
	// MaxHeadings caps the h2/h3 headings kept per page.
	MaxHeadings = 20

	defaultFetchDelay = 200 * time.Millisecond
	defaultTimeout    = 10 * time.Second
	maxResponseBytes  = 2 << 20
	userAgent         = "Mozilla/5.0 (compatible; MentionScanBot/1.0)"
)

type Options struct {
	// Client performs every request. Defaults to a client with a 10s timeout.
	Client *http.Client
	// FetchDelay is slept between discovery fetches. Negative disables it.
	FetchDelay time.Duration
	Logger     logger.Logger
}

type Crawler struct {
	client *http.Client
	delay  time.Duration
	log    logger.Logger
}

func New(opts Options) *Crawler {
	c := &Crawler{client: opts.Client, delay: opts.FetchDelay, log: opts.Logger}
	if c.client == nil {
		c.client = &http.Client{Timeout: defaultTimeout}
	}
	if c.delay == 0 {
		c.delay = defaultFetchDelay
	}
	if c.delay < 0 {
		c.delay = 0
	}
	if c.log == nil {
		c.log = logger.NewNop()
	}
	return c
}

// CrawlSite discovers up to MaxPages URLs for domain and extracts their content.
func (c *Crawler) CrawlSite(ctx context.Context, site string) domain.CrawlResult {
	site = bareDomain(site)
	log := c.log.With(logger.String("domain", site))

	urls := c.sitemapURLs(ctx, site)
	source := "sitemap"
	if len(urls) == 0 {
		urls = c.discover(ctx, site)
		source = "discovery"
	}
	if len(urls) == 0 {
		urls = []string{"https://" + site, "https://www." + site}
		source = "homepage"
	}
	if len(urls) > MaxPages {
		urls = urls[:MaxPages]
	}
	log.Debug("crawl urls selected", logger.String("source", source), logger.Int("count", len(urls)))

	result := domain.CrawlResult{Domain: site}
	for _, u := range urls {
		if ctx.Err() != nil {
			break
		}
		body, finalURL, err := c.fetchHTML(ctx, u)
		if err != nil {
			log.Debug("page fetch failed", logger.String("url", u), logger.Error(err))
			continue
		}
		page, err := ExtractPage(finalURL, body)
		if err != nil {
			log.Debug("page parse failed", logger.String("url", u), logger.Error(err))
			continue
		}
		result.Pages = append(result.Pages, page)
	}
	result.TotalPages = len(result.Pages)
	log.Info("crawl finished", logger.String("source", source), logger.Int("pages", result.TotalPages))
	return result
}

// bareDomain strips scheme, path, port and a leading www. from user input.
func bareDomain(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if strings.Contains(s, "://") {
		if u, err := url.Parse(s); err == nil {
			s = u.Host
		}
	}
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSuffix(s, ".")
	return strings.TrimPrefix(s, "www.")
}

func (c *Crawler) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("GET %s: status %d", rawURL, resp.StatusCode)
	}
	return resp, nil
}

func (c *Crawler) fetchText(ctx context.Context, rawURL string) (string, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// fetchHTML returns the body of an HTML response and the URL it was served
// from after redirects.
func (c *Crawler) fetchHTML(ctx context.Context, rawURL string) ([]byte, string, error) {
	resp, err := c.get(ctx, rawURL)
	if err != nil {
		return nil, "", err
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(strings.ToLower(ct), "html") {
		return nil, "", fmt.Errorf("GET %s: not html (%s)", rawURL, ct)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, "", err
	}
	return b, resp.Request.URL.String(), nil
}

func (c *Crawler) pause(ctx context.Context) {
	if c.delay <= 0 {
		return
	}
	t := time.NewTimer(c.delay)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
