package entity

// Cache is a per-run read-through cache of reference records keyed by kind
// and lookup key. Entries added while a row is in flight are staged and only
// become visible to later rows after Commit; Discard drops them when the row
// transaction rolls back. A nil *Cache disables caching.
//
// A Cache belongs to one run and is not safe for concurrent use.
type Cache struct {
	committed map[cacheKey]any
	staged    map[cacheKey]any
}

type cacheKey struct {
	kind, key string
}

// NewCache returns an empty cache for a new run.
func NewCache() *Cache {
	return &Cache{
		committed: make(map[cacheKey]any),
		staged:    make(map[cacheKey]any),
	}
}

func (c *Cache) get(kind, key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	k := cacheKey{kind, key}
	if v, ok := c.staged[k]; ok {
		return v, true
	}
	v, ok := c.committed[k]
	return v, ok
}

func (c *Cache) put(kind, key string, v any) {
	if c == nil {
		return
	}
	c.staged[cacheKey{kind, key}] = v
}

// Commit publishes the entries staged by the current row.
func (c *Cache) Commit() {
	if c == nil {
		return
	}
	for k, v := range c.staged {
		c.committed[k] = v
	}
	clear(c.staged)
}

// Discard drops the entries staged by the current row.
func (c *Cache) Discard() {
	if c == nil {
		return
	}
	clear(c.staged)
}

// Len returns the number of committed entries.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return len(c.committed)
}

func cached[T any](c *Cache, kind, key string) (T, bool) {
	v, ok := c.get(kind, key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}
