// Package cache holds the page caches that can sit in front of the query repository.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/NewsPager/internal/domain"
	lru "github.com/hashicorp/golang-lru"
)

type pageKey struct {
	query string
	page  domain.PageKey
}

type entry struct {
	resp      *domain.FeedResponse
	expiresAt time.Time
}

// MemoryPageCache is a bounded LRU of backend responses with a per-entry TTL.
type MemoryPageCache struct {
	lru *lru.Cache
	ttl time.Duration
	now func() time.Time
}

func NewMemoryPageCache(size int, ttl time.Duration) (*MemoryPageCache, error) {
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &MemoryPageCache{lru: c, ttl: ttl, now: time.Now}, nil
}

func (c *MemoryPageCache) GetPage(_ context.Context, query string, page domain.PageKey) (*domain.FeedResponse, bool, error) {
	k := pageKey{query: query, page: page}
	v, ok := c.lru.Get(k)
	if !ok {
		return nil, false, nil
	}
	e := v.(entry)
	if c.ttl > 0 && !c.now().Before(e.expiresAt) {
		c.lru.Remove(k)
		return nil, false, nil
	}
	return e.resp, true, nil
}

func (c *MemoryPageCache) PutPage(_ context.Context, query string, page domain.PageKey, resp *domain.FeedResponse) error {
	c.lru.Add(pageKey{query: query, page: page}, entry{resp: resp, expiresAt: c.now().Add(c.ttl)})
	return nil
}

// DropQuery removes every cached page of query.
func (c *MemoryPageCache) DropQuery(_ context.Context, query string) error {
	for _, k := range c.lru.Keys() {
		if pk, ok := k.(pageKey); ok && pk.query == query {
			c.lru.Remove(pk)
		}
	}
	return nil
}

// Purge empties the cache.
func (c *MemoryPageCache) Purge() {
	c.lru.Purge()
}

// Len returns the number of cached pages, expired ones included.
func (c *MemoryPageCache) Len() int {
	return c.lru.Len()
}
