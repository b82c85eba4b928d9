package trm

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cartera-ar/cartera/internal/cartera/fx"
)

// CachedProvider fronts a rate provider with a Redis read-through cache, one
// key per reference date. Snapshots are immutable per date so entries carry a
// TTL only to bound stale keys after manual TRM edits.
type CachedProvider struct {
	next   fx.Provider
	client *redis.Client
	ttl    time.Duration
}

// NewCachedProvider wraps next with caching. A nil client degrades to a
// pass-through.
func NewCachedProvider(next fx.Provider, client *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{next: next, client: client, ttl: ttl}
}

func cacheKey(reference time.Time) string {
	return "trm:snapshot:" + reference.Format(dateLayout)
}

// SnapshotFor implements fx.Provider.
func (p *CachedProvider) SnapshotFor(ctx context.Context, reference time.Time) (fx.Snapshot, error) {
	if p.client == nil {
		return p.next.SnapshotFor(ctx, reference)
	}

	key := cacheKey(reference)
	payload, err := p.client.Get(ctx, key).Bytes()
	if err == nil {
		var rates map[string]float64
		if err := json.Unmarshal(payload, &rates); err == nil {
			return fx.Snapshot{AsOf: reference, Rates: rates}, nil
		}
		// Corrupt entry: fall through and repopulate.
	} else if err != redis.Nil {
		return fx.Snapshot{}, fmt.Errorf("trm: cache get: %w", err)
	}

	snapshot, err := p.next.SnapshotFor(ctx, reference)
	if err != nil {
		return fx.Snapshot{}, err
	}
	raw, err := json.Marshal(snapshot.Rates)
	if err != nil {
		return fx.Snapshot{}, fmt.Errorf("trm: cache encode: %w", err)
	}
	if err := p.client.Set(ctx, key, raw, p.ttl).Err(); err != nil {
		return fx.Snapshot{}, fmt.Errorf("trm: cache set: %w", err)
	}
	return snapshot, nil
}

// Invalidate drops the cached snapshot for a reference date, used after a
// manual rate update.
func (p *CachedProvider) Invalidate(ctx context.Context, reference time.Time) error {
	if p.client == nil {
		return nil
	}
	return p.client.Del(ctx, cacheKey(reference)).Err()
}
