package answer

import (
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/applydi/applydi/internal/store"
)

// Cache sizing defaults.
const (
	// DefaultCacheTTL is how long a cached answer stays valid.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheSize is the soft entry cap. Inserting past it evicts the
	// single oldest entry by insertion time.
	DefaultCacheSize = 10
)

type cacheEntry struct {
	text       string
	insertedAt time.Time
	expiresAt  time.Time
}

// answerCache is a small TTL cache for identical repeated questions. The
// lock covers map access only; it is never held across a model call.
type answerCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func newAnswerCache(ttl time.Duration, maxEntries int) *answerCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}
	return &answerCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// cacheKey derives the lookup key from everything that changes the answer:
// the asking user, the question text, the document selection, and the agent
// type (it alters provider routing).
func cacheKey(userID uuid.UUID, question string, docIDs []uuid.UUID, agentType store.AgentType) string {
	qh := fnv.New64a()
	qh.Write([]byte(question))

	ids := make([]string, len(docIDs))
	for i, id := range docIDs {
		ids[i] = id.String()
	}
	dh := fnv.New64a()
	dh.Write([]byte(strings.Join(ids, ",")))

	return fmt.Sprintf("%s_%x_%x_%s", userID, qh.Sum64(), dh.Sum64(), agentType)
}

func (c *answerCache) get(key string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return "", false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		return "", false
	}
	return entry.text, true
}

func (c *answerCache) put(key, text string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.entries[key] = cacheEntry{
		text:       text,
		insertedAt: now,
		expiresAt:  now.Add(c.ttl),
	}

	for len(c.entries) > c.maxEntries {
		c.evictOldestLocked()
	}
}

// evictOldestLocked removes the entry with the earliest insertion time.
// Callers must hold mu.
func (c *answerCache) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)
	for key, entry := range c.entries {
		if oldestKey == "" || entry.insertedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.insertedAt
		}
	}
	delete(c.entries, oldestKey)
}
