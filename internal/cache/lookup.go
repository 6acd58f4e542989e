package cache

import "sync"

// Destroyable is implemented by values that can be logically deleted while
// still cached.
type Destroyable interface {
	IsDestroyed() bool
}

// Stats counts cache traffic since creation or the last Clear.
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
}

// Lookup memoizes single-value finds keyed by (class, key).
type Lookup[T Destroyable] struct {
	mu      sync.Mutex
	entries map[string]map[string]T
	stats   Stats
}

// NewLookup creates an empty lookup cache.
func NewLookup[T Destroyable]() *Lookup[T] {
	return &Lookup[T]{entries: make(map[string]map[string]T)}
}

// Get returns the cached value. A destroyed value is evicted and reported
// as a miss.
func (l *Lookup[T]) Get(class, key string) (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var zero T
	byKey, ok := l.entries[class]
	if !ok {
		l.stats.Misses++
		return zero, false
	}
	v, ok := byKey[key]
	if !ok {
		l.stats.Misses++
		return zero, false
	}
	if v.IsDestroyed() {
		delete(byKey, key)
		l.stats.Evictions++
		l.stats.Misses++
		return zero, false
	}
	l.stats.Hits++
	return v, true
}

// Put stores a value.
func (l *Lookup[T]) Put(class, key string, v T) {
	l.mu.Lock()
	defer l.mu.Unlock()

	byKey, ok := l.entries[class]
	if !ok {
		byKey = make(map[string]T)
		l.entries[class] = byKey
	}
	byKey[key] = v
}

// InvalidateClasses drops every entry cached under the given classes.
func (l *Lookup[T]) InvalidateClasses(classes ...string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range classes {
		delete(l.entries, c)
	}
}

// Clear drops everything and resets the counters.
func (l *Lookup[T]) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = make(map[string]map[string]T)
	l.stats = Stats{}
}

// Len returns the number of cached entries.
func (l *Lookup[T]) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, byKey := range l.entries {
		n += len(byKey)
	}
	return n
}

// Stats returns a snapshot of the counters.
func (l *Lookup[T]) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}
