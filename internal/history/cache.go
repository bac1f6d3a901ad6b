package history

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Identified items carry a record id unique within their collection.
type Identified interface {
	Identity() string
}

// Token identifies one in-flight snapshot delivery for a key.
type Token string

type snapshot[T any] struct {
	items     []T
	token     Token
	appliedAt time.Time
}

// Cache holds the latest full snapshot per key. A snapshot is only installed when
// its token is still the most recent one issued for the key, so a slow fetch that
// started before a newer delivery can never overwrite it.
type Cache[T Identified] struct {
	mu      sync.RWMutex
	latest  map[string]Token
	entries map[string]snapshot[T]
}

// NewCache creates an empty cache.
func NewCache[T Identified]() *Cache[T] {
	return &Cache[T]{
		latest:  make(map[string]Token),
		entries: make(map[string]snapshot[T]),
	}
}

// Begin issues a token for a new delivery and makes it the latest for key.
func (c *Cache[T]) Begin(key string) Token {
	tok := Token(uuid.NewString())
	c.mu.Lock()
	c.latest[key] = tok
	c.mu.Unlock()
	return tok
}

// Apply replaces the snapshot for key if tok is still current. Duplicated ids keep
// their first occurrence. It reports whether the snapshot was installed.
func (c *Cache[T]) Apply(key string, tok Token, items []T, at time.Time) bool {
	deduped := Dedup(items)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.latest[key] != tok {
		return false
	}
	c.entries[key] = snapshot[T]{items: deduped, token: tok, appliedAt: at}
	return true
}

// Replace installs a snapshot unconditionally, superseding any in-flight delivery.
func (c *Cache[T]) Replace(key string, items []T, at time.Time) {
	c.Apply(key, c.Begin(key), items, at)
}

// Get returns a copy of the snapshot for key and when it was applied.
func (c *Cache[T]) Get(key string) ([]T, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, time.Time{}, false
	}
	return append([]T(nil), e.items...), e.appliedAt, true
}

// Keys returns the keys holding a snapshot, sorted.
func (c *Cache[T]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.entries))
	for k := range c.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Dedup drops items whose id was already seen, keeping the first occurrence.
func Dedup[T Identified](items []T) []T {
	out := make([]T, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		id := it.Identity()
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, it)
	}
	return out
}
