package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binods1313/MutationMechanic-sub000/store"
	teststore "github.com/binods1313/MutationMechanic-sub000/store/test"
)

const (
	testFastTTL    = 7 * 24 * time.Hour
	testDurableTTL = 30 * 24 * time.Hour
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestTieredCache(t *testing.T, fast FastTier, durable *store.Store) (*TieredCache, *fakeClock, *Metrics) {
	t.Helper()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	tc := NewTieredCache(fast, durable, &TieredCacheConfig{
		FastTTL:    testFastTTL,
		DurableTTL: testDurableTTL,
		Metrics:    metrics,
		Now:        clock.Now,
	})
	return tc, clock, metrics
}

func TestTieredCache_FastTTLBoundary(t *testing.T) {
	ctx := context.Background()
	fast := New(Config{})
	tc, clock, _ := newTestTieredCache(t, fast, nil)

	tc.Set(ctx, "k", map[string]int{"v": 1})

	clock.Advance(testFastTTL - time.Millisecond)
	data, ok := tc.Get(ctx, "k")
	require.True(t, ok)
	assert.JSONEq(t, `{"v":1}`, string(data))

	clock.Advance(time.Millisecond)
	data, ok = tc.Get(ctx, "k")
	assert.False(t, ok)
	assert.Nil(t, data)
	_, ok = fast.Get("k")
	assert.False(t, ok, "expired entry should be removed from the fast tier")
}

func TestTieredCache_Promotion(t *testing.T) {
	ctx := context.Background()
	ts := teststore.NewTestingStore(ctx, t)
	fast := New(Config{})
	tc, clock, metrics := newTestTieredCache(t, fast, ts)

	tc.Set(ctx, "k", []string{"a", "b"})
	fast.Delete("k")

	clock.Advance(time.Hour)
	data, ok := tc.Get(ctx, "k")
	require.True(t, ok)
	assert.JSONEq(t, `["a","b"]`, string(data))

	b, ok := fast.Get("k")
	require.True(t, ok)
	var env envelope
	require.NoError(t, json.Unmarshal(b, &env))
	assert.Equal(t, clock.Now().UnixMilli(), env.Timestamp)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.promotions))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.hits.WithLabelValues(tierDurable)))

	// A second read is served from the fast tier.
	_, ok = tc.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.hits.WithLabelValues(tierFast)))
}

func TestTieredCache_FastExpiredFallsThroughToDurable(t *testing.T) {
	ctx := context.Background()
	ts := teststore.NewTestingStore(ctx, t)
	tc, clock, metrics := newTestTieredCache(t, New(Config{}), ts)

	tc.Set(ctx, "k", "value")
	clock.Advance(testFastTTL)

	data, ok := tc.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, `"value"`, string(data))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.expirations.WithLabelValues(tierFast)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.promotions))
}

func TestTieredCache_DurableExpiry(t *testing.T) {
	ctx := context.Background()
	ts := teststore.NewTestingStore(ctx, t)
	tc, clock, metrics := newTestTieredCache(t, New(Config{}), ts)

	tc.Set(ctx, "k", "value")
	clock.Advance(testDurableTTL)

	_, ok := tc.Get(ctx, "k")
	assert.False(t, ok)

	entry, err := ts.GetCacheEntry(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, entry)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.expirations.WithLabelValues(tierDurable)))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.misses))
}

func TestTieredCache_CachedNull(t *testing.T) {
	ctx := context.Background()
	tc, _, _ := newTestTieredCache(t, New(Config{}), nil)

	tc.Set(ctx, "k", nil)
	data, ok := tc.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "null", string(data))
}

func TestTieredCache_QuotaFailureDoesNotBlockDurable(t *testing.T) {
	ctx := context.Background()
	ts := teststore.NewTestingStore(ctx, t)
	fast := New(Config{MaxBytes: 16})
	tc, _, metrics := newTestTieredCache(t, fast, ts)

	tc.Set(ctx, "big", map[string]string{"payload": "far more than sixteen bytes"})
	assert.Equal(t, 0, fast.Size())
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.writeFailures.WithLabelValues(tierFast)))

	entry, err := ts.GetCacheEntry(ctx, "big")
	require.NoError(t, err)
	require.NotNil(t, entry)

	// Promotion fails again but the durable value is still returned.
	var got map[string]string
	require.True(t, tc.GetInto(ctx, "big", &got))
	assert.Equal(t, "far more than sixteen bytes", got["payload"])
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.writeFailures.WithLabelValues(tierFast)))
}

func TestTieredCache_CorruptedEntries(t *testing.T) {
	ctx := context.Background()
	ts := teststore.NewTestingStore(ctx, t)
	fast := New(Config{})
	tc, clock, _ := newTestTieredCache(t, fast, ts)

	require.NoError(t, fast.Set("k", []byte("not json")))
	require.NoError(t, ts.UpsertCacheEntry(ctx, &store.CacheEntry{
		Key:       "k",
		Payload:   `{"timestamp":1}`,
		CreatedTs: clock.Now().UnixMilli(),
	}))

	_, ok := tc.Get(ctx, "k")
	assert.False(t, ok)
	_, ok = fast.Get("k")
	assert.False(t, ok)
	entry, err := ts.GetCacheEntry(ctx, "k")
	require.NoError(t, err)
	assert.Nil(t, entry)
}

func TestTieredCache_GetIntoDecodeFailure(t *testing.T) {
	ctx := context.Background()
	tc, _, _ := newTestTieredCache(t, New(Config{}), nil)

	tc.Set(ctx, "k", "text")
	var n int
	assert.False(t, tc.GetInto(ctx, "k", &n))
}

func TestTieredCache_Delete(t *testing.T) {
	ctx := context.Background()
	ts := teststore.NewTestingStore(ctx, t)
	tc, _, _ := newTestTieredCache(t, New(Config{}), ts)

	tc.Set(ctx, "k", 1)
	tc.Delete(ctx, "k")

	_, ok := tc.Get(ctx, "k")
	assert.False(t, ok)
}

func TestTieredCache_RunMaintenance(t *testing.T) {
	ctx := context.Background()
	ts := teststore.NewTestingStore(ctx, t)
	tc, clock, _ := newTestTieredCache(t, New(Config{}), ts)
	now := clock.Now()

	ages := map[string]time.Duration{
		"fresh":    time.Hour,
		"almost":   364 * 24 * time.Hour,
		"year-old": 366 * 24 * time.Hour,
		"ancient":  3 * 365 * 24 * time.Hour,
	}
	for id, age := range ages {
		_, err := ts.CreateHistoryRecord(ctx, &store.HistoryRecord{
			ID:                 id,
			Gene:               "BRCA1",
			Variant:            "c.68_69delAG",
			Timestamp:          now.Add(-age).UnixMilli(),
			RiskLevel:          store.RiskHigh,
			PathogenicityLabel: store.LabelPathogenic,
			Type:               store.AnalysisExplainer,
			VariantType:        store.VariantFrameshift,
		})
		require.NoError(t, err)
	}
	require.NoError(t, ts.UpsertCacheEntry(ctx, &store.CacheEntry{
		Key:       "stale",
		Payload:   fmt.Sprintf(`{"data":1,"timestamp":%d}`, now.Add(-testDurableTTL).UnixMilli()),
		CreatedTs: now.Add(-testDurableTTL).UnixMilli(),
	}))
	tc.Set(ctx, "live", 2)

	tc.RunMaintenance(ctx)

	records, err := ts.ListHistoryRecords(ctx, &store.FindHistoryRecord{})
	require.NoError(t, err)
	ids := make([]string, 0, len(records))
	for _, r := range records {
		ids = append(ids, r.ID)
	}
	assert.ElementsMatch(t, []string{"fresh", "almost"}, ids)

	entries, err := ts.ListCacheEntries(ctx, &store.FindCacheEntry{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "live", entries[0].Key)

	// Maintenance runs once per process.
	_, err = ts.CreateHistoryRecord(ctx, &store.HistoryRecord{
		ID:        "late",
		Gene:      "TP53",
		Variant:   "c.743G>A",
		Timestamp: now.Add(-2 * 365 * 24 * time.Hour).UnixMilli(),
	})
	require.NoError(t, err)
	tc.RunMaintenance(ctx)
	late, err := ts.GetHistoryRecord(ctx, "late")
	require.NoError(t, err)
	assert.NotNil(t, late)
}

func TestTieredCache_SweepWithoutDurable(t *testing.T) {
	tc, _, _ := newTestTieredCache(t, New(Config{}), nil)
	result, err := tc.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &SweepResult{}, result)
	assert.Nil(t, tc.Durable())
}

func TestTieredCache_SweepReclaimsFastTier(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	fast := New(Config{Reclaimable: EnvelopeExpired(testFastTTL, clock.Now)})
	metrics, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	tc := NewTieredCache(fast, nil, &TieredCacheConfig{FastTTL: testFastTTL, Metrics: metrics, Now: clock.Now})

	tc.Set(ctx, "old", 1)
	clock.Advance(testFastTTL)
	tc.Set(ctx, "new", 2)
	require.NoError(t, fast.Set("raw", []byte(`[1,2,3]`)))

	result, err := tc.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.FastExpired)
	assert.Equal(t, 2, fast.Size())
	_, ok := fast.Get("old")
	assert.False(t, ok)
	_, ok = fast.Get("raw")
	assert.True(t, ok, "values that are not envelopes are kept")
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.expirations.WithLabelValues(tierFast)))
}

func TestEnvelopeExpired(t *testing.T) {
	clock := &fakeClock{now: time.UnixMilli(10_000)}
	expired := EnvelopeExpired(time.Second, clock.Now)

	assert.False(t, expired("k", []byte(`{"data":1,"timestamp":9001}`)))
	assert.True(t, expired("k", []byte(`{"data":1,"timestamp":9000}`)))
	assert.False(t, expired("k", []byte(`not json`)))
	assert.False(t, expired("k", []byte(`{"timestamp":1}`)))
}

func TestTieredCache_Purge(t *testing.T) {
	ctx := context.Background()
	ts := teststore.NewTestingStore(ctx, t)
	fast := New(Config{})
	tc, _, _ := newTestTieredCache(t, fast, ts)

	tc.Set(ctx, "ai_explain_1", "a")
	tc.Set(ctx, "ai_explain_2", "b")
	tc.Set(ctx, "genomic_ctx_1", "c")

	removed, err := tc.Purge(ctx, "ai_explain_")
	require.NoError(t, err)
	assert.Equal(t, int64(4), removed)

	_, ok := tc.Get(ctx, "ai_explain_1")
	assert.False(t, ok)
	_, ok = tc.Get(ctx, "genomic_ctx_1")
	assert.True(t, ok)

	_, err = tc.Purge(ctx, "")
	assert.Error(t, err)
}

func TestGenerateCacheKey(t *testing.T) {
	a := GenerateCacheKey("genomic_ctx_", "BRCA1", " c.68_69delAG ")
	b := GenerateCacheKey("genomic_ctx_", "brca1", "c.68_69delAG")
	c := GenerateCacheKey("genomic_ctx_", "BRCA2", "c.68_69delAG")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, len("genomic_ctx_")+16)
}
