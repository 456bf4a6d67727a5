package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/binods1313/MutationMechanic-sub000/store"
)

// TieredCache implements a two-tier caching strategy:
//   - fast: in-process LRU with a byte quota, short TTL
//   - durable: the store's cache_entry table, long TTL
//
// Both tiers hold the same envelope {data, timestamp}. A durable hit is promoted
// into the fast tier with a refreshed timestamp. Write failures in either tier are
// logged and counted but never surfaced to callers; a failed cache write must not
// fail the operation that produced the value.
type TieredCache struct {
	fast    FastTier
	durable *store.Store
	config  TieredCacheConfig
	metrics *Metrics

	maintenanceOnce sync.Once
}

// TieredCacheConfig holds the configuration for the tiered cache.
type TieredCacheConfig struct {
	FastTTL      time.Duration // validity of fast-tier entries (default: 7 days)
	DurableTTL   time.Duration // validity of durable-tier entries (default: 30 days)
	RetentionTTL time.Duration // maximum age of history records kept by maintenance (default: 365 days)
	Metrics      *Metrics
	// Now is the clock used for timestamps and expiry; defaults to time.Now.
	Now func() time.Time
}

// DefaultTieredConfig returns the default tiered cache configuration.
func DefaultTieredConfig() *TieredCacheConfig {
	return &TieredCacheConfig{
		FastTTL:      7 * 24 * time.Hour,
		DurableTTL:   30 * 24 * time.Hour,
		RetentionTTL: 365 * 24 * time.Hour,
		Now:          time.Now,
	}
}

// envelope is the serialized form of a cache entry in both tiers.
type envelope struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// SweepResult reports what a maintenance sweep removed.
type SweepResult struct {
	HistoryDeleted int64 `json:"historyDeleted"`
	CacheDeleted   int64 `json:"cacheDeleted"`
	FastExpired    int   `json:"fastExpired"`
}

// EnvelopeExpired returns a Config.Reclaimable predicate that reports entries written
// by a TieredCache more than ttl ago. Values that are not envelopes are never reclaimable.
func EnvelopeExpired(ttl time.Duration, now func() time.Time) func(key string, value []byte) bool {
	if now == nil {
		now = time.Now
	}
	return func(_ string, value []byte) bool {
		env, err := decodeEnvelope(value)
		if err != nil {
			return false
		}
		return now().UnixMilli()-env.Timestamp >= ttl.Milliseconds()
	}
}

// NewTieredCache creates a tiered cache. A nil durable store disables the durable tier;
// a nil fast tier gets an unbounded in-memory cache.
func NewTieredCache(fast FastTier, durable *store.Store, config *TieredCacheConfig) *TieredCache {
	defaults := DefaultTieredConfig()
	if config == nil {
		config = defaults
	}
	cfg := *config
	if cfg.FastTTL <= 0 {
		cfg.FastTTL = defaults.FastTTL
	}
	if cfg.DurableTTL <= 0 {
		cfg.DurableTTL = defaults.DurableTTL
	}
	if cfg.RetentionTTL <= 0 {
		cfg.RetentionTTL = defaults.RetentionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if fast == nil {
		fast = New(Config{})
	}

	return &TieredCache{
		fast:    fast,
		durable: durable,
		config:  cfg,
		metrics: cfg.Metrics,
	}
}

// Fast returns the fast tier.
func (t *TieredCache) Fast() FastTier {
	return t.fast
}

// Durable returns the durable tier handle, or nil when the durable tier is disabled.
func (t *TieredCache) Durable() *store.Store {
	return t.durable
}

// Now returns the current time of the cache clock.
func (t *TieredCache) Now() time.Time {
	return t.config.Now()
}

// Get returns the cached data for key. A cached JSON null is returned as a hit.
func (t *TieredCache) Get(ctx context.Context, key string) (json.RawMessage, bool) {
	now := t.config.Now().UnixMilli()

	if b, ok := t.fast.Get(key); ok {
		env, err := decodeEnvelope(b)
		switch {
		case err != nil:
			slog.Warn("dropping corrupted fast cache entry", slog.String("key", key), slog.String("error", err.Error()))
			t.fast.Delete(key)
		case now-env.Timestamp < t.config.FastTTL.Milliseconds():
			t.metrics.recordHit(tierFast)
			return env.Data, true
		default:
			t.fast.Delete(key)
			t.metrics.recordExpiration(tierFast)
		}
		t.metrics.updateFastSize(t.fast.Size())
	}

	if t.durable == nil {
		t.metrics.recordMiss()
		return nil, false
	}

	entry, err := t.durable.GetCacheEntry(ctx, key)
	if err != nil {
		slog.Warn("failed to read durable cache", slog.String("key", key), slog.String("error", err.Error()))
		t.metrics.recordMiss()
		return nil, false
	}
	if entry == nil {
		t.metrics.recordMiss()
		return nil, false
	}

	env, err := decodeEnvelope([]byte(entry.Payload))
	if err != nil {
		slog.Warn("dropping corrupted durable cache entry", slog.String("key", key), slog.String("error", err.Error()))
		t.deleteDurable(ctx, key)
		t.metrics.recordMiss()
		return nil, false
	}
	if now-env.Timestamp >= t.config.DurableTTL.Milliseconds() {
		t.deleteDurable(ctx, key)
		t.metrics.recordExpiration(tierDurable)
		t.metrics.recordMiss()
		return nil, false
	}

	t.metrics.recordHit(tierDurable)
	promoted, err := json.Marshal(envelope{Data: env.Data, Timestamp: now})
	if err == nil {
		if err := t.fast.Set(key, promoted); err != nil {
			slog.Warn("failed to promote cache entry", slog.String("key", key), slog.String("error", err.Error()))
			t.metrics.recordWriteFailure(tierFast)
		} else {
			t.metrics.recordPromotion()
		}
		t.metrics.updateFastSize(t.fast.Size())
	}
	return env.Data, true
}

// GetInto decodes the cached data for key into dest. A decode failure is a miss.
func (t *TieredCache) GetInto(ctx context.Context, key string, dest any) bool {
	data, ok := t.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		slog.Warn("failed to decode cached value", slog.String("key", key), slog.String("error", err.Error()))
		return false
	}
	return true
}

// Set stores data under key in both tiers. Each tier is written independently.
func (t *TieredCache) Set(ctx context.Context, key string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Warn("failed to encode cache value", slog.String("key", key), slog.String("error", err.Error()))
		return
	}
	now := t.config.Now().UnixMilli()
	b, err := json.Marshal(envelope{Data: raw, Timestamp: now})
	if err != nil {
		slog.Warn("failed to encode cache envelope", slog.String("key", key), slog.String("error", err.Error()))
		return
	}

	if err := t.fast.Set(key, b); err != nil {
		slog.Warn("failed to write fast cache", slog.String("key", key), slog.String("error", err.Error()))
		t.metrics.recordWriteFailure(tierFast)
	}
	t.metrics.updateFastSize(t.fast.Size())

	if t.durable == nil {
		return
	}
	if err := t.durable.UpsertCacheEntry(ctx, &store.CacheEntry{
		Key:       key,
		Payload:   string(b),
		CreatedTs: now,
	}); err != nil {
		slog.Warn("failed to write durable cache", slog.String("key", key), slog.String("error", err.Error()))
		t.metrics.recordWriteFailure(tierDurable)
	}
}

// Delete removes key from both tiers.
func (t *TieredCache) Delete(ctx context.Context, key string) {
	t.fast.Delete(key)
	t.metrics.updateFastSize(t.fast.Size())
	t.deleteDurable(ctx, key)
}

func (t *TieredCache) deleteDurable(ctx context.Context, key string) {
	if t.durable == nil {
		return
	}
	if _, err := t.durable.DeleteCacheEntries(ctx, &store.DeleteCacheEntry{Key: &key}); err != nil {
		slog.Warn("failed to delete durable cache entry", slog.String("key", key), slog.String("error", err.Error()))
	}
}

// RunMaintenance runs the retention sweep at most once per cache instance.
// Errors are logged and not retried.
func (t *TieredCache) RunMaintenance(ctx context.Context) {
	t.maintenanceOnce.Do(func() {
		result, err := t.Sweep(ctx)
		if err != nil {
			slog.Error("cache maintenance failed", "error", err)
			return
		}
		slog.Info("cache maintenance completed",
			slog.Int64("historyDeleted", result.HistoryDeleted),
			slog.Int64("cacheDeleted", result.CacheDeleted),
			slog.Int("fastExpired", result.FastExpired))
	})
}

// Sweep drops reclaimable fast-tier entries, then deletes history records older than
// the retention window and durable cache entries older than the durable TTL.
func (t *TieredCache) Sweep(ctx context.Context) (*SweepResult, error) {
	result := &SweepResult{FastExpired: t.fast.CleanupExpired()}
	t.metrics.recordExpirations(tierFast, result.FastExpired)
	t.metrics.updateFastSize(t.fast.Size())
	if t.durable == nil {
		return result, nil
	}
	now := t.config.Now()

	historyCutoff := now.Add(-t.config.RetentionTTL).UnixMilli()
	deleted, err := t.durable.DeleteHistoryRecords(ctx, &store.DeleteHistoryRecord{CreatedBefore: &historyCutoff})
	if err != nil {
		return nil, errors.Wrap(err, "failed to delete expired history records")
	}
	result.HistoryDeleted = deleted

	cacheCutoff := now.Add(-t.config.DurableTTL).UnixMilli() + 1
	deleted, err = t.durable.DeleteCacheEntries(ctx, &store.DeleteCacheEntry{CreatedBefore: &cacheCutoff})
	if err != nil {
		return nil, errors.Wrap(err, "failed to delete expired cache entries")
	}
	result.CacheDeleted = deleted
	return result, nil
}

// Purge removes every entry whose key starts with prefix from both tiers.
// The count adds up the removals of each tier.
func (t *TieredCache) Purge(ctx context.Context, prefix string) (int64, error) {
	if prefix == "" {
		return 0, errors.New("purge prefix must not be empty")
	}
	removed := int64(t.fast.DeletePrefix(prefix))
	t.metrics.updateFastSize(t.fast.Size())
	if t.durable == nil {
		return removed, nil
	}
	deleted, err := t.durable.DeleteCacheEntries(ctx, &store.DeleteCacheEntry{KeyPrefix: &prefix})
	if err != nil {
		return removed, errors.Wrapf(err, "failed to purge durable cache entries with prefix %q", prefix)
	}
	return removed + deleted, nil
}

// Stats returns cache statistics.
func (t *TieredCache) Stats() map[string]any {
	stats := map[string]any{
		"fast_size":       t.fast.Size(),
		"durable_enabled": t.durable != nil,
	}
	if c, ok := t.fast.(*Cache); ok {
		stats["fast_bytes"] = c.Bytes()
	}
	return stats
}

func decodeEnvelope(b []byte) (*envelope, error) {
	var env envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return nil, err
	}
	if env.Data == nil {
		return nil, errors.New("missing data field")
	}
	return &env, nil
}
