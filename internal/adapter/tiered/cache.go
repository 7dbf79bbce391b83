// Package tiered layers an in-process cache over a shared remote one.
package tiered

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Strob0t/agentlink/internal/port/cache"
)

// Cache reads through L1 to L2 and writes to both. L2 is advisory: when it
// is unreachable reads fall back to a miss and L1 keeps serving.
type Cache struct {
	local    cache.Cache
	remote   cache.Cache
	backfill time.Duration
}

var _ cache.Cache = (*Cache)(nil)

// New creates a tiered cache. backfill is the L1 lifetime of values
// fetched from L2.
func New(local, remote cache.Cache, backfill time.Duration) *Cache {
	return &Cache{local: local, remote: remote, backfill: backfill}
}

// Get checks L1, then L2, copying an L2 hit into L1.
func (c *Cache) Get(ctx context.Context, key string) (data []byte, ok bool, err error) {
	if val, found, err := c.local.Get(ctx, key); err != nil {
		return nil, false, err
	} else if found {
		return val, true, nil
	}

	val, found, err := c.remote.Get(ctx, key)
	if err != nil {
		slog.DebugContext(ctx, "remote cache get failed", "error", err)
		return nil, false, nil
	}
	if !found {
		return nil, false, nil
	}
	if err := c.local.Set(ctx, key, val, c.backfill); err != nil {
		slog.DebugContext(ctx, "local cache backfill failed", "error", err)
	}
	return val, true, nil
}

// Set writes L1, then L2. An L2 failure is reported after L1 is updated.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.local.Set(ctx, key, value, ttl); err != nil {
		return err
	}
	if err := c.remote.Set(ctx, key, value, ttl); err != nil {
		return fmt.Errorf("remote cache set: %w", err)
	}
	return nil
}

// Delete removes key from both levels.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.local.Delete(ctx, key); err != nil {
		return err
	}
	if err := c.remote.Delete(ctx, key); err != nil {
		return fmt.Errorf("remote cache delete: %w", err)
	}
	return nil
}
