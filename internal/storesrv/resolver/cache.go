package resolver

import (
	"sync"
	"time"

	"github.com/merchantry/merchantry/internal/storesrv/catalog"
)

// tenantCache is a short-TTL positive-result cache keyed by domain. Only
// active tenants are cached; mutations drop the entry via Invalidate.
type tenantCache struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry
}

type cacheEntry struct {
	tenant  catalog.Tenant
	expires time.Time
}

func newTenantCache(ttl time.Duration) *tenantCache {
	return &tenantCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
	}
}

func (c *tenantCache) get(domain string) (*catalog.Tenant, bool) {
	c.mu.RLock()
	entry, ok := c.entries[domain]
	c.mu.RUnlock()
	if !ok || time.Now().After(entry.expires) {
		return nil, false
	}
	// each caller gets its own copy so a downstream mutation cannot poison
	// the cached record
	cp := entry.tenant
	return &cp, true
}

func (c *tenantCache) put(domain string, tenant *catalog.Tenant) {
	c.mu.Lock()
	c.entries[domain] = cacheEntry{
		tenant:  *tenant,
		expires: time.Now().Add(c.ttl),
	}
	c.mu.Unlock()
}

func (c *tenantCache) drop(domain string) {
	c.mu.Lock()
	delete(c.entries, domain)
	c.mu.Unlock()
}
