package candidatestore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// segmentKey identifies a routable segment: currency × payment method.
type segmentKey struct {
	CurrencyID      int
	PaymentMethodID int
}

func (k segmentKey) String() string {
	return fmt.Sprintf("seg:%d:%d", k.CurrencyID, k.PaymentMethodID)
}

// segmentMetrics is the per-psp projection computed from a segment's rows:
// segment-scoped authorization rate plus capability presence flags.
type segmentMetrics struct {
	Count             int     `json:"count"`
	Successes         int     `json:"successes"`
	Supports3DS       bool    `json:"supports_3ds"`
	SupportsTokenized bool    `json:"supports_tokenized"`
	MeanFeeBps        float64 `json:"mean_fee_bps"`
	FixedFee          float64 `json:"fixed_fee"`
}

func (m segmentMetrics) authRate() float64 {
	if m.Count == 0 {
		return 0
	}
	return float64(m.Successes) / float64(m.Count)
}

// segmentView is the cached, per-segment projection: one segmentMetrics
// per psp name.
type segmentView map[string]segmentMetrics

// segmentCache is the freshness layer in front of the historical outcome
// store: get-or-miss with a TTL, backed by either an in-process map or a
// shared Redis instance. Grounded on the teacher's in-process map+mutex
// shape (internal/orchestrator.go's PaymentStore) for the local backend,
// and on itsneelabh-gomind's RedisSessionManager / the pulseberry
// affinity-cache-with-fallback shape for the distributed backend.
type segmentCache interface {
	get(ctx context.Context, key segmentKey) (segmentView, bool)
	set(ctx context.Context, key segmentKey, view segmentView, ttl time.Duration)
}

// localSegmentCache is the default, in-process cache backend.
type localSegmentCache struct {
	mu      sync.RWMutex
	entries map[segmentKey]localCacheEntry
}

type localCacheEntry struct {
	view      segmentView
	expiresAt time.Time
}

func newLocalSegmentCache() *localSegmentCache {
	return &localSegmentCache{entries: make(map[segmentKey]localCacheEntry)}
}

func (c *localSegmentCache) get(_ context.Context, key segmentKey) (segmentView, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.view, true
}

func (c *localSegmentCache) set(_ context.Context, key segmentKey, view segmentView, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = localCacheEntry{view: view, expiresAt: time.Now().Add(ttl)}
}

// redisSegmentCache backs the segment cache with a shared Redis instance,
// for deployments running multiple router replicas that should share one
// freshness window instead of each coalescing independently.
type redisSegmentCache struct {
	client *redis.Client
	fallback *localSegmentCache
}

func newRedisSegmentCache(client *redis.Client) *redisSegmentCache {
	return &redisSegmentCache{client: client, fallback: newLocalSegmentCache()}
}

func (c *redisSegmentCache) get(ctx context.Context, key segmentKey) (segmentView, bool) {
	raw, err := c.client.Get(ctx, key.String()).Bytes()
	if err != nil {
		// Redis miss or unavailable: fall back to the local cache rather
		// than treating every lookup as a cold miss, mirroring
		// pulseberry's selectByAffinity degrade-to-health-score path.
		return c.fallback.get(ctx, key)
	}
	var view segmentView
	if err := json.Unmarshal(raw, &view); err != nil {
		return nil, false
	}
	return view, true
}

func (c *redisSegmentCache) set(ctx context.Context, key segmentKey, view segmentView, ttl time.Duration) {
	raw, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key.String(), raw, ttl).Err(); err != nil {
		c.fallback.set(ctx, key, view, ttl)
	}
}
