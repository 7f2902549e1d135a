// Package crawler discovers the URLs of an institutional site. It
// prefers the site's sitemap.xml and falls back to breadth-first link
// crawling, with include/exclude pattern rules and a polite request
// rate.
package crawler

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/campusrag/internal/core/ports/driven"
	"github.com/custodia-labs/campusrag/internal/logger"
	"github.com/custodia-labs/campusrag/internal/normalisers/web"
)

// DefaultMaxPages bounds a crawl when the caller sets no limit.
const DefaultMaxPages = 500

// Crawler walks one site and returns the page URLs worth ingesting.
type Crawler struct {
	fetcher  driven.Fetcher
	limiter  *rate.Limiter
	maxPages int
}

// Option configures the crawler.
type Option func(*Crawler)

// WithMaxPages caps the number of pages visited during discovery.
func WithMaxPages(n int) Option {
	return func(c *Crawler) {
		if n > 0 {
			c.maxPages = n
		}
	}
}

// WithRateLimit sets the sustained request rate in requests per
// second.
func WithRateLimit(rps float64) Option {
	return func(c *Crawler) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// New creates a crawler using the given fetcher. The default rate is
// two requests per second.
func New(fetcher driven.Fetcher, opts ...Option) *Crawler {
	c := &Crawler{
		fetcher:  fetcher,
		limiter:  rate.NewLimiter(rate.Limit(2), 1),
		maxPages: DefaultMaxPages,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Discover returns the crawl frontier for the site rooted at baseURL,
// in discovery order with baseURL first. The sitemap is tried before
// link crawling; either way the rules filter what is admitted.
func (c *Crawler) Discover(ctx context.Context, baseURL string, rules *Rules) ([]string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("invalid base URL %q", baseURL)
	}

	if urls, err := c.fromSitemap(ctx, parsed, rules); err == nil && len(urls) > 0 {
		logger.Debug("crawler: sitemap yielded %d URLs", len(urls))
		return urls, nil
	}

	return c.fromLinks(ctx, baseURL, rules)
}

// sitemapEntry is one <url> element of a sitemap.xml.
type sitemapEntry struct {
	Loc string `xml:"loc"`
}

type sitemapDoc struct {
	URLs []sitemapEntry `xml:"url"`
}

func (c *Crawler) fromSitemap(ctx context.Context, base *url.URL, rules *Rules) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	sitemapURL := fmt.Sprintf("%s://%s/sitemap.xml", base.Scheme, base.Host)
	raw, err := c.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	var doc sitemapDoc
	if err := xml.Unmarshal(raw.HTML, &doc); err != nil {
		return nil, fmt.Errorf("parsing sitemap: %w", err)
	}

	frontier := newQueue()
	for _, entry := range doc.URLs {
		loc := strings.TrimSpace(entry.Loc)
		if loc == "" || !rules.Admit(loc) {
			continue
		}
		canonical, err := web.CanonicalURL(loc)
		if err != nil {
			continue
		}
		frontier.add(canonical)
		if len(frontier.all()) >= c.maxPages {
			break
		}
	}
	return frontier.all(), nil
}

func (c *Crawler) fromLinks(ctx context.Context, baseURL string, rules *Rules) ([]string, error) {
	frontier := newQueue()
	start, err := web.CanonicalURL(baseURL)
	if err != nil {
		return nil, err
	}
	frontier.add(start)

	visited := 0
	for frontier.hasNext() && visited < c.maxPages {
		current := frontier.next()
		visited++

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		raw, err := c.fetcher.Fetch(ctx, current)
		if err != nil {
			logger.Debug("crawler: skipping %s: %v", current, err)
			continue
		}

		for _, link := range extractLinks(raw.HTML, current) {
			if !rules.Admit(link) {
				continue
			}
			canonical, err := web.CanonicalURL(link)
			if err != nil {
				continue
			}
			if len(frontier.all()) < c.maxPages {
				frontier.add(canonical)
			}
		}
	}
	logger.Debug("crawler: link discovery visited %d pages, found %d URLs", visited, len(frontier.all()))
	return frontier.all(), nil
}

// extractLinks returns the absolute href targets of all anchors in
// the document, skipping non-navigational schemes.
func extractLinks(html []byte, baseURL string) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil
	}

	var links []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok {
			return
		}
		if resolved := web.ResolveURL(href, base); resolved != "" {
			links = append(links, resolved)
		}
	})
	return links
}
