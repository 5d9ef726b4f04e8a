package graph

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/golang/groupcache/lru"
)

// defaultMergeBaseCacheSize bounds the memoized merge-base results for
// a single graph construction.
const defaultMergeBaseCacheSize = 4096

// MergeBaseCache memoizes merge-base lookups. Merge bases are immutable
// for a given pair of commits, so entries never need invalidation and
// an LRU bound is enough.
type MergeBaseCache struct {
	cache *lru.Cache
}

// NewMergeBaseCache returns a cache holding up to maxEntries results.
func NewMergeBaseCache(maxEntries int) *MergeBaseCache {
	return &MergeBaseCache{cache: lru.New(maxEntries)}
}

// MergeBase returns the merge bases of a and b, consulting the cache
// first. The order of a and b does not matter.
func (c *MergeBaseCache) MergeBase(a, b *object.Commit) ([]plumbing.Hash, error) {
	key := mergeBaseKey(a.Hash, b.Hash)
	if v, ok := c.cache.Get(key); ok {
		return v.([]plumbing.Hash), nil
	}

	bases, err := a.MergeBase(b)
	if err != nil {
		return nil, fmt.Errorf("merge base of %s and %s: %w", a.Hash, b.Hash, err)
	}

	oids := make([]plumbing.Hash, 0, len(bases))
	for _, base := range bases {
		oids = append(oids, base.Hash)
	}

	c.cache.Add(key, oids)

	return oids, nil
}

// Len returns the number of cached results.
func (c *MergeBaseCache) Len() int {
	return c.cache.Len()
}

func mergeBaseKey(a, b plumbing.Hash) string {
	if b.String() < a.String() {
		a, b = b, a
	}

	return a.String() + ".." + b.String()
}
