// Package tiered puts an in-process cache in front of a remote one.
package tiered

import (
	"context"
	"time"

	"github.com/Strob0t/forgetop/internal/port/cache"
)

// Cache reads through local to remote. Remote hits are copied into local
// for localTTL, so a summary published remotely shows up locally after at
// most localTTL unless Invalidate is called first.
type Cache struct {
	local    cache.Cache
	remote   cache.Cache
	localTTL time.Duration
}

// New creates a tiered cache.
func New(local, remote cache.Cache, localTTL time.Duration) *Cache {
	return &Cache{local: local, remote: remote, localTTL: localTTL}
}

// Get checks local, then remote.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, found, err := c.local.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if found {
		return val, true, nil
	}

	val, found, err = c.remote.Get(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	_ = c.local.Set(ctx, key, val, c.localTTL)
	return val, true, nil
}

// Set writes remote first; local is only updated once remote accepted the
// value.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.remote.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	lt := c.localTTL
	if ttl > 0 && ttl < lt {
		lt = ttl
	}
	return c.local.Set(ctx, key, value, lt)
}

// Delete removes key from both tiers.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.remote.Delete(ctx, key); err != nil {
		return err
	}
	return c.local.Delete(ctx, key)
}

// Invalidate drops key from the local tier only, so the next Get rereads
// the remote value.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	return c.local.Delete(ctx, key)
}
