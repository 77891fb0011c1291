package crawler

import (
	"context"
	"html"
	"path"
	"regexp"
	"strings"

	"mentionscan/internal/logger"
)

// maxNestedSitemaps bounds how many child sitemaps of an index are followed.
const maxNestedSitemaps = 3

// locPattern tolerates CDATA, namespace prefixes on the root and whitespace
// around the URL.
var locPattern = regexp.MustCompile(`(?is)<loc>\s*(?:<!\[CDATA\[)?\s*(.*?)\s*(?:\]\]>)?\s*</loc>`)

var resourceExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".gif": {}, ".webp": {}, ".svg": {}, ".ico": {}, ".bmp": {},
	".pdf": {}, ".doc": {}, ".docx": {}, ".xls": {}, ".xlsx": {}, ".ppt": {}, ".pptx": {}, ".csv": {},
	".zip": {}, ".gz": {}, ".rar": {}, ".mp3": {}, ".mp4": {}, ".mov": {}, ".avi": {}, ".webm": {},
	".css": {}, ".js": {}, ".json": {}, ".xml": {}, ".txt": {}, ".rss": {}, ".woff": {}, ".woff2": {}, ".ttf": {},
}

func sitemapCandidates(site string) []string {
	return []string{
		"https://" + site + "/sitemap.xml",
		"https://" + site + "/sitemap_index.xml",
		"https://www." + site + "/sitemap.xml",
	}
}

// sitemapURLs returns page URLs from the first sitemap that yields any.
func (c *Crawler) sitemapURLs(ctx context.Context, site string) []string {
	for _, candidate := range sitemapCandidates(site) {
		body, err := c.fetchText(ctx, candidate)
		if err != nil {
			c.log.Debug("sitemap unavailable", logger.String("url", candidate), logger.Error(err))
			continue
		}
		pages, children := parseSitemap(body)
		if len(pages) == 0 && len(children) > 0 {
			pages = c.nestedSitemapURLs(ctx, children)
		}
		if len(pages) > 0 {
			return pages
		}
	}
	return nil
}

func (c *Crawler) nestedSitemapURLs(ctx context.Context, children []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for i, child := range children {
		if i >= maxNestedSitemaps || len(out) >= MaxSitemapURLs {
			break
		}
		body, err := c.fetchText(ctx, child)
		if err != nil {
			continue
		}
		pages, _ := parseSitemap(body)
		for _, p := range pages {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			out = append(out, p)
			if len(out) >= MaxSitemapURLs {
				break
			}
		}
	}
	return out
}

// parseSitemap splits <loc> entries into HTML page URLs (capped at
// MaxSitemapURLs) and nested .xml sitemaps.
func parseSitemap(body string) (pages, sitemaps []string) {
	seen := map[string]struct{}{}
	for _, m := range locPattern.FindAllStringSubmatch(body, -1) {
		loc := strings.TrimSpace(html.UnescapeString(m[1]))
		if loc == "" {
			continue
		}
		if _, ok := seen[loc]; ok {
			continue
		}
		seen[loc] = struct{}{}
		ext := strings.ToLower(path.Ext(stripQuery(loc)))
		if ext == ".xml" || ext == ".gz" {
			sitemaps = append(sitemaps, loc)
			continue
		}
		if isResource(loc) {
			continue
		}
		if len(pages) < MaxSitemapURLs {
			pages = append(pages, loc)
		}
	}
	return pages, sitemaps
}

func stripQuery(u string) string {
	if i := strings.IndexAny(u, "?#"); i >= 0 {
		return u[:i]
	}
	return u
}

func isResource(u string) bool {
	_, ok := resourceExtensions[strings.ToLower(path.Ext(stripQuery(u)))]
	return ok
}
