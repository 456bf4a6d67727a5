package preset

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binods1313/MutationMechanic-sub000/store/cache"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newTestService() (*Service, *cache.Cache) {
	fast := cache.New(cache.Config{})
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	return NewService(fast, clock.Now), fast
}

func TestSavePreset(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	saved, err := svc.SavePreset(ctx, &Preset{Title: "Sickle cell", HGVS: "HBB:c.20A>T"})
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, TypeCustom, saved.Type)
	assert.NotZero(t, saved.CreatedAt)
	assert.Equal(t, saved.CreatedAt, saved.ModifiedAt)

	second, err := svc.SavePreset(ctx, &Preset{ID: "cf", Title: "Cystic fibrosis", HGVS: "CFTR:c.1521_1523del", Type: "benchmark"})
	require.NoError(t, err)

	presets := svc.GetPresets(ctx)
	require.Len(t, presets, 2)
	assert.Equal(t, second.ID, presets[0].ID)
	assert.Equal(t, saved.ID, presets[1].ID)

	t.Run("requires title and hgvs", func(t *testing.T) {
		_, err := svc.SavePreset(ctx, &Preset{Title: "No variant"})
		assert.True(t, errors.Is(err, ErrInvalidPreset))
	})
}

func TestSavePresetMergeIdentity(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	original, err := svc.SavePreset(ctx, &Preset{ID: "p1", Title: "BRCA1 founder", HGVS: "BRCA1:c.68_69delAG", Description: "first"})
	require.NoError(t, err)

	t.Run("matching hgvs and title with a new id", func(t *testing.T) {
		merged, err := svc.SavePreset(ctx, &Preset{ID: "p2", Title: "BRCA1 founder", HGVS: "BRCA1:c.68_69delAG", Description: "updated"})
		require.NoError(t, err)

		presets := svc.GetPresets(ctx)
		require.Len(t, presets, 1)
		assert.Equal(t, "p1", presets[0].ID)
		assert.Equal(t, "updated", presets[0].Description)
		assert.Equal(t, original.CreatedAt, presets[0].CreatedAt)
		assert.Greater(t, merged.ModifiedAt, original.ModifiedAt)
	})

	t.Run("matching id", func(t *testing.T) {
		_, err := svc.SavePreset(ctx, &Preset{ID: "p1", Title: "Renamed", HGVS: "BRCA1:c.68_69delAG"})
		require.NoError(t, err)

		presets := svc.GetPresets(ctx)
		require.Len(t, presets, 1)
		assert.Equal(t, "Renamed", presets[0].Title)
	})
}

func TestSavePresetEviction(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	for i := 0; i < MaxPresets; i++ {
		_, err := svc.SavePreset(ctx, &Preset{ID: fmt.Sprintf("p%03d", i), Title: fmt.Sprintf("Preset %d", i), HGVS: fmt.Sprintf("GENE:c.%dA>G", i)})
		require.NoError(t, err)
	}
	require.Len(t, svc.GetPresets(ctx), MaxPresets)

	_, err := svc.SavePreset(ctx, &Preset{ID: "newest", Title: "Newest", HGVS: "GENE:c.999A>G"})
	require.NoError(t, err)

	presets := svc.GetPresets(ctx)
	require.Len(t, presets, MaxPresets)
	assert.Equal(t, "newest", presets[0].ID)
	for _, p := range presets {
		assert.NotEqual(t, "p000", p.ID, "oldest preset should be evicted")
	}
}

func TestDeletePreset(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.SavePreset(ctx, &Preset{ID: "a", Title: "A", HGVS: "A:c.1A>G"})
	require.NoError(t, err)
	_, err = svc.SavePreset(ctx, &Preset{ID: "b", Title: "B", HGVS: "B:c.1A>G"})
	require.NoError(t, err)

	require.NoError(t, svc.DeletePreset(ctx, "a"))
	require.NoError(t, svc.DeletePreset(ctx, "absent"))

	presets := svc.GetPresets(ctx)
	require.Len(t, presets, 1)
	assert.Equal(t, "b", presets[0].ID)
}

func TestImportPresets(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.SavePreset(ctx, &Preset{ID: "a", Title: "Stored A", HGVS: "A:c.1A>G"})
	require.NoError(t, err)
	_, err = svc.SavePreset(ctx, &Preset{ID: "b", Title: "Stored B", HGVS: "B:c.1A>G"})
	require.NoError(t, err)

	t.Run("not json", func(t *testing.T) {
		_, err := svc.ImportPresets(ctx, "not json")
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrInvalidImport))
		assert.Contains(t, err.Error(), "JSON array")
	})

	for _, payload := range []string{`{"id":"x"}`, "{}", "null", " null ", "42", `"presets"`, ""} {
		t.Run(fmt.Sprintf("not an array %q", payload), func(t *testing.T) {
			_, err := svc.ImportPresets(ctx, payload)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidImport))
			assert.Len(t, svc.GetPresets(ctx), 2)
		})
	}

	t.Run("non-object entry", func(t *testing.T) {
		_, err := svc.ImportPresets(ctx, `[1]`)
		assert.True(t, errors.Is(err, ErrInvalidImport))
	})

	t.Run("empty array leaves collection unchanged", func(t *testing.T) {
		before := svc.GetPresets(ctx)
		merged, err := svc.ImportPresets(ctx, "[]")
		require.NoError(t, err)
		assert.Len(t, merged, 2)
		assert.Equal(t, before, svc.GetPresets(ctx))
	})

	t.Run("imported entries win on id", func(t *testing.T) {
		merged, err := svc.ImportPresets(ctx, `[
			{"id":"b","title":"Imported B","hgvs":"B:c.1A>G","type":"benchmark","createdAt":1,"modifiedAt":2},
			{"id":"c","title":"Imported C","hgvs":"C:c.1A>G","type":"custom","createdAt":1,"modifiedAt":1},
			{"id":"c","title":"Duplicate C","hgvs":"C:c.1A>G","type":"custom","createdAt":1,"modifiedAt":1}
		]`)
		require.NoError(t, err)
		require.Len(t, merged, 3)
		assert.Equal(t, "b", merged[0].ID)
		assert.Equal(t, "Imported B", merged[0].Title)
		assert.Equal(t, "c", merged[1].ID)
		assert.Equal(t, "Imported C", merged[1].Title)
		assert.Equal(t, "a", merged[2].ID)
	})
}

func TestPresetExtraFieldsRoundTrip(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService()

	_, err := svc.ImportPresets(ctx, `[{"id":"x","title":"X","hgvs":"X:c.1A>G","type":"benchmark","createdAt":1,"modifiedAt":1,"expectedOutcome":{"label":"PATHOGENIC"}}]`)
	require.NoError(t, err)

	out, err := svc.ExportPresets(ctx)
	require.NoError(t, err)

	var exported []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &exported))
	require.Len(t, exported, 1)
	assert.Equal(t, map[string]any{"label": "PATHOGENIC"}, exported[0]["expectedOutcome"])
	assert.Contains(t, out, "\n  {")
}

func TestGetPresetsMalformed(t *testing.T) {
	ctx := context.Background()
	svc, fast := newTestService()

	require.NoError(t, fast.Set(StorageKey, []byte("{broken")))
	assert.Empty(t, svc.GetPresets(ctx))

	// A save over malformed data starts a fresh collection.
	_, err := svc.SavePreset(ctx, &Preset{Title: "A", HGVS: "A:c.1A>G"})
	require.NoError(t, err)
	assert.Len(t, svc.GetPresets(ctx), 1)
}

func TestSavePresetQuota(t *testing.T) {
	ctx := context.Background()
	svc := NewService(cache.New(cache.Config{MaxBytes: 64}), nil)

	_, err := svc.SavePreset(ctx, &Preset{Title: "Too large for the quota", HGVS: "GENE:c.123456789A>G", Description: "long description"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, cache.ErrQuotaExceeded))
	assert.Empty(t, svc.GetPresets(ctx))
}

func TestSavePresetReclaimsExpiredEntries(t *testing.T) {
	ctx := context.Background()
	const fastTTL = 7 * 24 * time.Hour
	clock := &fakeClock{now: time.UnixMilli(1_700_000_000_000)}
	fast := cache.New(cache.Config{
		MaxBytes:    64 << 10,
		Reclaimable: cache.EnvelopeExpired(fastTTL, clock.Now),
	})
	tc := cache.NewTieredCache(fast, nil, &cache.TieredCacheConfig{FastTTL: fastTTL, Now: clock.Now})

	payload := strings.Repeat("x", 1000)
	for i := 0; i < 200; i++ {
		tc.Set(ctx, fmt.Sprintf("genomic_ctx_%03d", i), payload)
	}
	require.Greater(t, fast.Bytes(), int64(60<<10))

	svc := NewService(fast, clock.Now)
	_, err := svc.SavePreset(ctx, &Preset{Title: "Too early", HGVS: "A:c.1A>G", Description: strings.Repeat("d", 8<<10)})
	require.Error(t, err, "unexpired entries still hold the quota")
	assert.True(t, errors.Is(err, cache.ErrQuotaExceeded))

	clock.now = clock.now.Add(365 * 24 * time.Hour)
	saved, err := svc.SavePreset(ctx, &Preset{Title: "After expiry", HGVS: "A:c.1A>G", Description: strings.Repeat("d", 8<<10)})
	require.NoError(t, err)
	assert.Equal(t, 1, fast.Size())
	presets := svc.GetPresets(ctx)
	require.Len(t, presets, 1)
	assert.Equal(t, saved.ID, presets[0].ID)
}
