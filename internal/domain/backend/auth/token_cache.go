package auth

import (
	"sync"
	"time"
)

// defaultExpiryBuffer is how many seconds before the token's declared
// expiry a cached token is treated as already-expired, so a refresh
// always completes before the real deadline.
const defaultExpiryBuffer = 30 * time.Second

// tokenCache is a thread-safe in-memory bearer-token cache with
// buffer-adjusted TTL expiry.
type tokenCache struct {
	mu            sync.Mutex
	token         string
	expiresAt     time.Time
	expiryBuffer  time.Duration
}

func newTokenCache(buffer time.Duration) *tokenCache {
	if buffer <= 0 {
		buffer = defaultExpiryBuffer
	}
	return &tokenCache{expiryBuffer: buffer}
}

// get returns the cached token if still valid, else ("", false).
func (c *tokenCache) get() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.token == "" || time.Now().After(c.expiresAt) {
		return "", false
	}
	return c.token, true
}

// set stores token with a lifetime of expiresIn, considering it expired
// expiryBuffer before the real deadline.
func (c *tokenCache) set(token string, expiresIn time.Duration) {
	effective := expiresIn - c.expiryBuffer
	if effective < 0 {
		effective = 0
	}
	c.mu.Lock()
	c.token = token
	c.expiresAt = time.Now().Add(effective)
	c.mu.Unlock()
}

// invalidate clears the cached token, forcing the next Headers call to
// refresh.
func (c *tokenCache) invalidate() {
	c.mu.Lock()
	c.token = ""
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}
