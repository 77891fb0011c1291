package crawler

import (
	"bytes"
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/publicsuffix"

	"mentionscan/internal/logger"
)

// skippedPathPrefixes are admin, auth, commerce plumbing and API paths that
// never describe the business.
var skippedPathPrefixes = []string{
	"/wp-admin", "/wp-json", "/wp-login", "/wp-content", "/wp-includes",
	"/admin", "/api/", "/login", "/logout", "/signin", "/signup", "/register",
	"/cart", "/checkout", "/account", "/my-account", "/feed", "/cdn-cgi", "/xmlrpc",
}

// discover runs a bounded breadth-first crawl from the homepage and returns
// up to MaxPages same-site page URLs.
func (c *Crawler) discover(ctx context.Context, site string) []string {
	root := registrable(site)
	home := "https://" + site
	frontier := []string{home}
	visited := map[string]struct{}{}
	var discovered []string
	known := map[string]struct{}{}

	add := func(u string) {
		if contains(known, u) {
			return
		}
		known[u] = struct{}{}
		discovered = append(discovered, u)
		frontier = append(frontier, u)
	}

	fetches := 0
	for len(frontier) > 0 && len(discovered) < MaxPages && ctx.Err() == nil {
		next := frontier[0]
		frontier = frontier[1:]
		if _, ok := visited[next]; ok {
			continue
		}
		visited[next] = struct{}{}

		if fetches > 0 {
			c.pause(ctx)
		}
		fetches++
		body, _, err := c.fetchHTML(ctx, next)
		if err != nil {
			c.log.Debug("discovery fetch failed", logger.String("url", next), logger.Error(err))
			if next == home {
				frontier = append(frontier, "https://www."+site)
			}
			continue
		}
		base, err := url.Parse(next)
		if err != nil {
			continue
		}
		if self := normalizeLink(base); !contains(known, self) {
			known[self] = struct{}{}
			discovered = append(discovered, self)
		}
		for _, link := range extractLinks(base, body, root) {
			if len(discovered) >= MaxPages {
				break
			}
			add(link)
		}
	}
	if len(discovered) > MaxPages {
		discovered = discovered[:MaxPages]
	}
	return discovered
}

// extractLinks returns normalized same-site page links found in body.
func extractLinks(base *url.URL, body []byte, root string) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "#") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		u := base.ResolveReference(ref)
		if u.Scheme != "http" && u.Scheme != "https" {
			return
		}
		if registrable(u.Hostname()) != root {
			return
		}
		if isResource(u.Path) || skippedPath(u.Path) {
			return
		}
		n := normalizeLink(u)
		if _, ok := seen[n]; ok {
			return
		}
		seen[n] = struct{}{}
		out = append(out, n)
	})
	return out
}

// normalizeLink drops the query, fragment and trailing slash.
func normalizeLink(u *url.URL) string {
	host := strings.ToLower(u.Host)
	p := strings.TrimRight(u.Path, "/")
	return u.Scheme + "://" + host + p
}

func skippedPath(p string) bool {
	p = strings.ToLower(p)
	for _, prefix := range skippedPathPrefixes {
		if strings.HasPrefix(p, prefix) || p+"/" == prefix {
			return true
		}
	}
	return false
}

// registrable returns the eTLD+1 of host, or host itself when it has none
// (IP addresses, localhost).
func registrable(host string) string {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	if h, _, ok := strings.Cut(host, ":"); ok {
		host = h
	}
	r, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return r
}

func contains(set map[string]struct{}, k string) bool {
	_, ok := set[k]
	return ok
}
