package permission

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	negativeCacheSize = 1024
	negativeCacheTTL  = 30 * time.Second
)

// collectionCache is a read-through cache in front of a CollectionStore.
// Collections are immutable after creation, so positive entries never go
// stale. Confirmed misses are remembered too, but only briefly and in a
// bounded set: a collection seeded out-of-band becomes visible once the
// negative entry expires.
type collectionCache struct {
	store CollectionStore

	mu     sync.RWMutex
	byName map[string]Collection

	negated *expirable.LRU[string, struct{}]
}

func newCollectionCache(store CollectionStore) *collectionCache {
	return newCollectionCacheTTL(store, negativeCacheTTL)
}

func newCollectionCacheTTL(store CollectionStore, ttl time.Duration) *collectionCache {
	return &collectionCache{
		store:   store,
		byName:  make(map[string]Collection),
		negated: expirable.NewLRU[string, struct{}](negativeCacheSize, nil, ttl),
	}
}

// Find returns the named collection, consulting the store on a miss.
func (c *collectionCache) Find(ctx context.Context, name string) (Collection, error) {
	c.mu.RLock()
	col, ok := c.byName[name]
	c.mu.RUnlock()
	if ok {
		return col, nil
	}
	if _, ok := c.negated.Get(name); ok {
		return Collection{}, ErrNotFound
	}

	col, err := c.store.FindCollection(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			c.negated.Add(name, struct{}{})
		}
		return Collection{}, err
	}

	c.mu.Lock()
	c.byName[name] = col
	c.mu.Unlock()
	c.negated.Remove(name)
	return col, nil
}

// Put records a freshly created collection.
func (c *collectionCache) Put(col Collection) {
	c.mu.Lock()
	c.byName[col.Name] = col
	c.mu.Unlock()
	c.negated.Remove(col.Name)
}
