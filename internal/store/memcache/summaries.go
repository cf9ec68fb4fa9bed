// Package memcache is the in-process fallback for the session summary cache,
// used when no Redis is configured or reachable.
package memcache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/suPer8Hu/ai-component-studio/internal/studio"
)

type SummaryCache struct {
	lru *expirable.LRU[uint64, []studio.SessionSummary]
}

func NewSummaryCache(size int, ttl time.Duration) *SummaryCache {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SummaryCache{lru: expirable.NewLRU[uint64, []studio.SessionSummary](size, nil, ttl)}
}

func (c *SummaryCache) GetSummaries(_ context.Context, userID uint64) ([]studio.SessionSummary, bool, error) {
	list, ok := c.lru.Get(userID)
	if !ok {
		return nil, false, nil
	}
	return append([]studio.SessionSummary(nil), list...), true, nil
}

func (c *SummaryCache) SetSummaries(_ context.Context, userID uint64, list []studio.SessionSummary) error {
	c.lru.Add(userID, append([]studio.SessionSummary(nil), list...))
	return nil
}

func (c *SummaryCache) InvalidateSummaries(_ context.Context, userID uint64) error {
	c.lru.Remove(userID)
	return nil
}
