// Package cache implements the in-process result cache used for generated
// content and relayed Spotify reads. Entries expire after a per-entry TTL and
// are evicted lazily when read. Writes and evictions are copied to an
// optional Mirror so a restarted process can warm up again; the mirror is
// best effort and never the source of truth.
package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"SonicMirror/pkg/metrics"
)

// mirrorTimeout bounds every mirror operation issued by the cache.
const mirrorTimeout = 2 * time.Second

// Entry is one cached value.
type Entry struct {
	Data      []byte    `json:"data"`
	CreatedAt time.Time `json:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the entry is past its expiry at now.
func (e Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Mirror persists cache entries outside the process.
type Mirror interface {
	Put(ctx context.Context, key string, e Entry) error
	Delete(ctx context.Context, keys ...string) error
	Load(ctx context.Context) (map[string]Entry, error)
}

// Stats summarises the live entries.
type Stats struct {
	Entries int      `json:"entries"`
	Keys    []string `json:"keys"`
	Hits    uint64   `json:"hits"`
	Misses  uint64   `json:"misses"`
}

// Cache is a TTL keyed byte store safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	entries map[string]Entry
	hits    uint64
	misses  uint64

	mirror Mirror
	now    func() time.Time
	log    logrus.FieldLogger
}

// Option customises a Cache.
type Option func(*Cache)

// WithMirror copies writes and evictions to m.
func WithMirror(m Mirror) Option {
	return func(c *Cache) { c.mirror = m }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used for mirror failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(c *Cache) { c.log = l }
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]Entry),
		now:     time.Now,
		log:     logrus.StandardLogger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the value stored under key. Missing and expired entries report
// false; an expired entry is evicted.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	e, ok := c.entries[key]
	expired := ok && e.Expired(c.now())
	if expired {
		delete(c.entries, key)
	}
	if ok && !expired {
		c.hits++
	} else {
		c.misses++
	}
	c.mu.Unlock()

	if expired {
		c.mirrorDelete(key)
	}
	if !ok || expired {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return nil, false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return e.Data, true
}

// Set stores value under key for ttl, replacing any previous entry. A non
// positive ttl stores nothing.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := c.now()
	e := Entry{Data: value, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	c.mu.Lock()
	c.entries[key] = e
	c.mu.Unlock()

	if c.mirror != nil {
		ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
		defer cancel()
		if err := c.mirror.Put(ctx, key, e); err != nil {
			c.log.WithError(err).WithField("key", key).Warn("cache mirror put failed")
		}
	}
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	_, ok := c.entries[key]
	delete(c.entries, key)
	c.mu.Unlock()
	if ok {
		c.mirrorDelete(key)
	}
}

// ClearPattern evicts every key containing substr and returns how many were
// removed.
func (c *Cache) ClearPattern(substr string) int {
	var removed []string
	c.mu.Lock()
	for k := range c.entries {
		if strings.Contains(k, substr) {
			delete(c.entries, k)
			removed = append(removed, k)
		}
	}
	c.mu.Unlock()
	c.mirrorDelete(removed...)
	return len(removed)
}

// Stats returns the live keys in sorted order along with hit counters.
// Expired entries that were not read yet are not reported.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	s := Stats{Keys: []string{}, Hits: c.hits, Misses: c.misses}
	for k, e := range c.entries {
		if e.Expired(now) {
			continue
		}
		s.Keys = append(s.Keys, k)
	}
	sort.Strings(s.Keys)
	s.Entries = len(s.Keys)
	return s
}

// Restore loads unexpired entries from the mirror. Entries already present
// in memory win.
func (c *Cache) Restore(ctx context.Context) (int, error) {
	if c.mirror == nil {
		return 0, nil
	}
	loaded, err := c.mirror.Load(ctx)
	if err != nil {
		return 0, err
	}
	now := c.now()
	n := 0
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range loaded {
		if e.Expired(now) {
			continue
		}
		if _, ok := c.entries[k]; ok {
			continue
		}
		c.entries[k] = e
		n++
	}
	return n, nil
}

func (c *Cache) mirrorDelete(keys ...string) {
	if c.mirror == nil || len(keys) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := c.mirror.Delete(ctx, keys...); err != nil {
		c.log.WithError(err).WithField("keys", len(keys)).Warn("cache mirror delete failed")
	}
}
