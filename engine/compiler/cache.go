package compiler

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// CachedCatalog memoizes a Catalog for a short TTL. Nested tool rows only
// change when a provider is registered, so compiles can share lookups.
type CachedCatalog struct {
	next  Catalog
	cache *ristretto.Cache[string, []NestedTool]
	ttl   time.Duration
}

func NewCachedCatalog(next Catalog, ttl time.Duration) (*CachedCatalog, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, []NestedTool]{
		NumCounters:        10_000,
		MaxCost:            1_000,
		BufferItems:        64,
		// each entry costs 1, MaxCost is an entry count
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog cache: %w", err)
	}
	return &CachedCatalog{next: next, cache: cache, ttl: ttl}, nil
}

func (c *CachedCatalog) NestedTools(ctx context.Context, customToolID string) ([]NestedTool, error) {
	if c.ttl <= 0 {
		return c.next.NestedTools(ctx, customToolID)
	}
	if nested, ok := c.cache.Get(customToolID); ok {
		return nested, nil
	}
	nested, err := c.next.NestedTools(ctx, customToolID)
	if err != nil {
		return nil, err
	}
	c.cache.SetWithTTL(customToolID, nested, 1, c.ttl)
	c.cache.Wait()
	return nested, nil
}

func (c *CachedCatalog) Close() {
	c.cache.Close()
}
