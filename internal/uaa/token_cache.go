package uaa

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// tokenCache stores access tokens in memory for the lifetime of the process,
// keyed by client identity. Tokens are never persisted to disk. The key
// includes a digest of the client secret so a grant performed with a rotated
// secret never reuses a token obtained with the previous one.
type tokenCache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	token     string
	expiresAt time.Time
}

func newTokenCache() *tokenCache {
	return &tokenCache{entries: make(map[string]cacheEntry)}
}

func cacheKey(clientID, clientSecret string) string {
	sum := sha256.Sum256([]byte(clientSecret))
	return clientID + ":" + hex.EncodeToString(sum[:8])
}

// get retrieves a cached token if present and not expired.
func (c *tokenCache) get(clientID, clientSecret string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[cacheKey(clientID, clientSecret)]
	if !ok || entry.token == "" {
		return "", false
	}
	if time.Now().After(entry.expiresAt) {
		return "", false
	}
	return entry.token, true
}

// set stores a token with the given TTL. A small buffer is subtracted so
// tokens are refreshed before their actual expiration.
func (c *tokenCache) set(clientID, clientSecret, token string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	buffer := 5 * time.Second
	if ttl > buffer {
		ttl -= buffer
	}
	c.entries[cacheKey(clientID, clientSecret)] = cacheEntry{
		token:     token,
		expiresAt: time.Now().Add(ttl),
	}
}

// clear removes every cached token.
func (c *tokenCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}
