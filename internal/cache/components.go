package cache

import "sync"

// Components memoizes the resolved relations of a single record, keyed by
// relation name and a query hash.
type Components struct {
	mu      sync.Mutex
	entries map[string]map[string]any
}

// NewComponents creates an empty component cache.
func NewComponents() *Components {
	return &Components{entries: make(map[string]map[string]any)}
}

func (c *Components) Get(relation, key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[relation][key]
	return v, ok
}

func (c *Components) Put(relation, key string, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	byKey, ok := c.entries[relation]
	if !ok {
		byKey = make(map[string]any)
		c.entries[relation] = byKey
	}
	byKey[key] = v
}

// InvalidateRelation drops every cached value for relation.
func (c *Components) InvalidateRelation(relation string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, relation)
}

// Each calls fn for every cached value. fn must not call back into c.
func (c *Components) Each(fn func(relation, key string, v any)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for rel, byKey := range c.entries {
		for k, v := range byKey {
			fn(rel, k, v)
		}
	}
}

func (c *Components) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]map[string]any)
}

func (c *Components) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, byKey := range c.entries {
		n += len(byKey)
	}
	return n
}
