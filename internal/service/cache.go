package service

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	cache "github.com/patrickmn/go-cache"
)

// ResolutionCache remembers resolved drivers, entries and persisted lap counts
// between snapshots so a steady feed does not re-query unchanged rows.
type ResolutionCache struct {
	cache     *cache.Cache
	ttl       time.Duration
	mu        sync.RWMutex
	hitCount  uint64
	missCount uint64
}

// NewResolutionCache creates a new resolution cache
func NewResolutionCache(ttl time.Duration) *ResolutionCache {
	return &ResolutionCache{
		cache: cache.New(ttl, ttl*2),
		ttl:   ttl,
	}
}

func driverKey(first, last string) string {
	return fmt.Sprintf("driver:%s|%s", first, last)
}

func entryKey(eventID, classID uuid.UUID, number string) string {
	return fmt.Sprintf("entry:%s:%s:%s", eventID, classID, number)
}

func entryDriverKey(eventID, classID, driverID uuid.UUID) string {
	return fmt.Sprintf("entry-driver:%s:%s:%s", eventID, classID, driverID)
}

func lapKey(sessionID, driverID uuid.UUID) string {
	return fmt.Sprintf("laps:%s:%s", sessionID, driverID)
}

func (rc *ResolutionCache) get(key string) (any, bool) {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	v, found := rc.cache.Get(key)
	if found {
		rc.hitCount++
	} else {
		rc.missCount++
	}
	return v, found
}

// stage starts a write set that reaches the cache only if the unit of work commits
func (rc *ResolutionCache) stage() *stagedCache {
	return &stagedCache{parent: rc, writes: make(map[string]any)}
}

// Clear flushes the entire cache
func (rc *ResolutionCache) Clear() {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	rc.cache.Flush()
	rc.hitCount = 0
	rc.missCount = 0
}

// Stats returns cache statistics
func (rc *ResolutionCache) Stats() (hits, misses uint64, ratio float64) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()

	hits = rc.hitCount
	misses = rc.missCount
	total := hits + misses
	if total > 0 {
		ratio = float64(hits) / float64(total)
	}
	return
}

// ItemCount returns the number of items in cache
func (rc *ResolutionCache) ItemCount() int {
	return rc.cache.ItemCount()
}

// deleted marks a key removed within a staged write set
type deleted struct{}

type stagedCache struct {
	parent *ResolutionCache
	writes map[string]any
	flush  bool
}

func (s *stagedCache) get(key string) (any, bool) {
	if v, ok := s.writes[key]; ok {
		if _, gone := v.(deleted); gone {
			return nil, false
		}
		return v, true
	}
	if s.flush {
		return nil, false
	}
	return s.parent.get(key)
}

func (s *stagedCache) getInt(key string) (int, bool) {
	v, ok := s.get(key)
	if !ok {
		return 0, false
	}
	n, ok := v.(int)
	return n, ok
}

func (s *stagedCache) set(key string, v any) {
	s.writes[key] = v
}

func (s *stagedCache) delete(key string) {
	s.writes[key] = deleted{}
}

// invalidate drops everything cached so far; used after merges move rows around
func (s *stagedCache) invalidate() {
	s.flush = true
	clear(s.writes)
}

func (s *stagedCache) commit() {
	rc := s.parent
	rc.mu.Lock()
	defer rc.mu.Unlock()

	if s.flush {
		rc.cache.Flush()
	}
	for k, v := range s.writes {
		if _, gone := v.(deleted); gone {
			rc.cache.Delete(k)
			continue
		}
		rc.cache.Set(k, v, rc.ttl)
	}
}
