// (c) Siemens AG 2023
//
// SPDX-License-Identifier: MIT

package dnsworker

import (
	"sync"
	"time"
)

// DefaultCacheTTL is how long positive answers are served from a pool's
// cache unless configured otherwise via [WithCacheTTL].
const DefaultCacheTTL = 60 * time.Second

// answerCache caches positive name resolution answers for a limited time, so
// that bursts of speculative pre-resolves for the same host don't hammer the
// resolver. Negative answers are never cached: a host that just failed to
// resolve may well resolve a moment later, and speculative work shouldn't
// remember failures.
type answerCache struct {
	ttl time.Duration
	mu  sync.Mutex
	m   map[string]answerEntry // host -> cached addresses with expiry
}

type answerEntry struct {
	addrs   []string
	expires time.Time
}

// newAnswerCache returns a new answerCache serving stored answers for the
// given TTL. A zero or negative TTL disables caching altogether.
func newAnswerCache(ttl time.Duration) *answerCache {
	return &answerCache{
		ttl: ttl,
		m:   map[string]answerEntry{},
	}
}

// lookup returns the cached addresses for host, if present and not yet
// expired. Expired entries are dropped on the spot.
func (c *answerCache) lookup(host string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.m[host]
	if !ok {
		return nil, false
	}
	if time.Now().After(entry.expires) {
		delete(c.m, host)
		return nil, false
	}
	return entry.addrs, true
}

// store remembers a positive answer for host until the cache TTL runs out.
func (c *answerCache) store(host string, addrs []string) {
	if c.ttl <= 0 || len(addrs) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[host] = answerEntry{
		addrs:   addrs,
		expires: time.Now().Add(c.ttl),
	}
}
