package metadata

import "sync"

// Cache memoizes decoded documents per code source key. Concurrent first
// accesses to one key share a single load; failed loads are not cached.
type Cache struct {
	entries sync.Map // key -> *cacheEntry
}

type cacheEntry struct {
	once sync.Once
	doc  *Document
	err  error
}

// Get returns the document for key, calling load at most once per
// successful key.
func (c *Cache) Get(key string, load func() (*Document, error)) (*Document, error) {
	v, _ := c.entries.LoadOrStore(key, &cacheEntry{})
	e := v.(*cacheEntry)
	e.once.Do(func() { e.doc, e.err = load() })
	if e.err != nil {
		c.entries.CompareAndDelete(key, e)
		return nil, e.err
	}
	return e.doc, nil
}

// Forget drops the cached document for key.
func (c *Cache) Forget(key string) {
	c.entries.Delete(key)
}
