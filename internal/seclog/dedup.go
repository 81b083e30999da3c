package seclog

import (
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Dedup suppresses identical violation reports from the same device
// within a TTL window. Bounded LRU so a hostile fleet can't grow memory.
type Dedup struct {
	cache *lru.Cache[string, time.Time]
	ttl   time.Duration
}

func NewDedup(maxKeys int, ttl time.Duration) *Dedup {
	c, _ := lru.New[string, time.Time](maxKeys)
	return &Dedup{cache: c, ttl: ttl}
}

func (d *Dedup) IsDuplicate(key string) bool {
	if addedAt, ok := d.cache.Get(key); ok {
		if time.Since(addedAt) < d.ttl {
			return true
		}
		// Expired but still in LRU, refresh below.
	}
	d.cache.Add(key, time.Now())
	return false
}
