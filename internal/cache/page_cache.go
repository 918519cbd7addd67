// Package cache keeps recently fetched pages in memory so that a URL found by
// several terms is downloaded once.
package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/smallbiznis/prospector/internal/providers/fetch"
)

const (
	defaultPageTTL = 30 * time.Minute
	maxCacheBytes  = 64 << 20
)

// PageCache is a fetch.Fetcher that serves repeated URLs from memory.
// Failed fetches are never cached.
type PageCache struct {
	next  fetch.Fetcher
	pages *ristretto.Cache[string, fetch.Page]
	ttl   time.Duration
}

func NewPageCache(next fetch.Fetcher, ttl time.Duration) (*PageCache, error) {
	if ttl <= 0 {
		ttl = defaultPageTTL
	}
	pages, err := ristretto.NewCache(&ristretto.Config[string, fetch.Page]{
		NumCounters: 1e5,
		MaxCost:     maxCacheBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &PageCache{next: next, pages: pages, ttl: ttl}, nil
}

func (c *PageCache) Fetch(ctx context.Context, url string) (fetch.Page, error) {
	if page, ok := c.pages.Get(url); ok {
		return page, nil
	}
	page, err := c.next.Fetch(ctx, url)
	if err != nil {
		return fetch.Page{}, err
	}
	c.pages.SetWithTTL(url, page, int64(len(page.Text)+len(page.Title)+1), c.ttl)
	return page, nil
}

// Wait blocks until buffered writes are visible to Fetch.
func (c *PageCache) Wait() { c.pages.Wait() }

func (c *PageCache) Close() { c.pages.Close() }
