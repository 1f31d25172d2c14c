package cache

import (
	"context"
	"sync"
	"time"

	"quotefeed/internal/provider"
)

// entry stores the cached quote for a single key with expiry.
type entry struct {
	expiresAt time.Time
	quote     provider.Quote
}

// Provider caches results per logical key for a TTL.
// It requests only missing keys from the underlying provider and
// combines cached + fresh results.
type Provider struct {
	P        provider.Provider
	TTL      time.Duration
	MaxItems int

	now func() time.Time

	mu    sync.RWMutex
	items map[string]entry
}

func (c *Provider) Name() string { return c.P.Name() }

// Enabled forwards the credential check of the wrapped provider.
func (c *Provider) Enabled() bool { return provider.IsEnabled(c.P) }

func (c *Provider) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

// Fetch returns quotes for the requested keys using the cache when valid.
// If the upstream fails while some keys are cached, the cached keys are
// returned without an error.
func (c *Provider) Fetch(ctx context.Context, keys []string) (provider.Quotes, error) {
	if c.TTL <= 0 {
		return c.P.Fetch(ctx, keys)
	}

	now := c.clock()

	// split into cached and missing keys
	var cached provider.Quotes
	missing := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))

	c.mu.RLock()
	for _, k := range keys {
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		if e, ok := c.items[k]; ok && now.Before(e.expiresAt) {
			cached.Set(e.quote)
			continue
		}
		missing = append(missing, k)
	}
	c.mu.RUnlock()

	if len(missing) == 0 {
		return cached, nil
	}

	fresh, err := c.P.Fetch(ctx, missing)
	if err != nil {
		if cached.Len() > 0 {
			return orderByRequest(keys, cached, provider.Quotes{}), nil
		}
		return provider.Quotes{}, err
	}

	expiry := now.Add(c.TTL)
	c.mu.Lock()
	if c.items == nil {
		c.items = make(map[string]entry, fresh.Len())
	}
	for k, q := range fresh.All() {
		c.items[k] = entry{expiresAt: expiry, quote: q}
	}
	c.evictLocked(now)
	c.mu.Unlock()

	return orderByRequest(keys, cached, fresh), nil
}

// evictLocked caps the cache size: expired entries go first, then arbitrary ones.
func (c *Provider) evictLocked(now time.Time) {
	if c.MaxItems <= 0 || len(c.items) <= c.MaxItems {
		return
	}
	for k, v := range c.items {
		if now.After(v.expiresAt) {
			delete(c.items, k)
		}
	}
	for k := range c.items {
		if len(c.items) <= c.MaxItems {
			break
		}
		delete(c.items, k)
	}
}

// orderByRequest merges cached and fresh quotes following request order.
func orderByRequest(keys []string, cached, fresh provider.Quotes) provider.Quotes {
	var out provider.Quotes
	for _, k := range keys {
		if q, ok := fresh.Get(k); ok {
			out.Set(q)
			continue
		}
		if q, ok := cached.Get(k); ok {
			out.Set(q)
		}
	}
	return out
}
