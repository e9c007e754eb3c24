// Package news pulls market headlines from RSS feeds, ranks companies by
// mention volume, and assembles the premarket briefs for the Taiwan and US
// sessions.
package news

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"github.com/sirupsen/logrus"

	"github.com/wyhuang/marketdash/internal/datasource"
	"github.com/wyhuang/marketdash/internal/logger"
	"github.com/wyhuang/marketdash/pkg/models"
)

// FeedSource fetches headlines for a keyword query. Implementations filter
// to the given lookback window.
type FeedSource interface {
	Search(ctx context.Context, keywords []string, lang, region string, window time.Duration) ([]models.NewsItem, error)
	FetchFeed(ctx context.Context, feedURL string, window time.Duration) ([]models.NewsItem, error)
}

// Fetcher reads Google News search feeds and plain RSS feeds.
type Fetcher struct {
	baseURL string
	parser  *gofeed.Parser
	cache   *datasource.Cache
	limiter *datasource.RateLimiter
	log     *logrus.Entry
}

// NewFetcher creates a feed fetcher with a 10 minute cache.
func NewFetcher() *Fetcher {
	return &Fetcher{
		baseURL: "https://news.google.com",
		parser:  gofeed.NewParser(),
		cache:   datasource.NewCache(10 * time.Minute),
		limiter: datasource.NewRateLimiter(2, time.Second),
		log:     logger.Component("news"),
	}
}

// NewFetcherWithBaseURL points the Google News queries at a custom host.
func NewFetcherWithBaseURL(base string) *Fetcher {
	f := NewFetcher()
	f.baseURL = strings.TrimRight(base, "/")
	return f
}

// Search queries the Google News RSS search endpoint for the keywords.
func (f *Fetcher) Search(ctx context.Context, keywords []string, lang, region string, window time.Duration) ([]models.NewsItem, error) {
	escaped := make([]string, len(keywords))
	for i, k := range keywords {
		escaped[i] = url.QueryEscape(k)
	}
	query := strings.Join(escaped, "+")

	var feedURL string
	if region == "US" {
		feedURL = fmt.Sprintf("%s/rss/search?q=%s&hl=en&gl=US&ceid=US:en", f.baseURL, query)
	} else {
		feedURL = fmt.Sprintf("%s/rss/search?q=%s&hl=%s&gl=%s&ceid=%s:%s",
			f.baseURL, query, lang, region, region, lang)
	}
	return f.FetchFeed(ctx, feedURL, window)
}

// FetchFeed parses one RSS feed and keeps items inside the window.
// Facebook links are dropped.
func (f *Fetcher) FetchFeed(ctx context.Context, feedURL string, window time.Duration) ([]models.NewsItem, error) {
	cacheKey := "feed:" + feedURL
	if cached, ok := f.cache.Get(cacheKey); ok {
		return filterWindow(cached.([]models.NewsItem), window), nil
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	feed, err := f.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	items := make([]models.NewsItem, 0, len(feed.Items))
	for _, item := range feed.Items {
		link := item.Link
		if strings.Contains(strings.ToLower(link), "facebook.com") ||
			strings.Contains(strings.ToLower(link), "fb.com") {
			continue
		}
		n := models.NewsItem{
			Title: cleanHTML(item.Title),
			Link:  link,
		}
		if item.PublishedParsed != nil {
			n.PublishedAt = item.PublishedParsed.UTC()
		} else {
			n.PublishedAt = time.Now().UTC()
		}
		n.Title, n.Source = splitPublisher(n.Title)
		items = append(items, n)
	}

	f.cache.Set(cacheKey, items)
	return filterWindow(items, window), nil
}

// filterWindow keeps items published within the lookback window.
func filterWindow(items []models.NewsItem, window time.Duration) []models.NewsItem {
	if window <= 0 {
		return items
	}
	cutoff := time.Now().UTC().Add(-window)
	var out []models.NewsItem
	for _, n := range items {
		if !n.PublishedAt.Before(cutoff) {
			out = append(out, n)
		}
	}
	return out
}

// splitPublisher strips the " - Publisher" suffix Google News appends to
// titles, returning the bare title and the publisher name.
func splitPublisher(title string) (string, string) {
	if i := strings.LastIndex(title, " - "); i > 0 && i < len(title)-3 {
		return strings.TrimSpace(title[:i]), strings.TrimSpace(title[i+3:])
	}
	return title, ""
}

// cleanHTML strips HTML tags using goquery.
func cleanHTML(s string) string {
	if !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader("<body>" + s + "</body>"))
	if err != nil {
		return s
	}
	return strings.TrimSpace(doc.Text())
}
