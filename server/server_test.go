package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binods1313/MutationMechanic-sub000/internal/profile"
	"github.com/binods1313/MutationMechanic-sub000/server/service/preset"
	teststore "github.com/binods1313/MutationMechanic-sub000/store/test"
)

func newTestProfile(t *testing.T) *profile.Profile {
	t.Helper()
	p := &profile.Profile{Mode: "dev", Data: t.TempDir()}
	p.FromEnv()
	require.NoError(t, p.Validate())
	return p
}

func TestServerRoutes(t *testing.T) {
	ctx := context.Background()
	p := newTestProfile(t)
	s, err := NewServer(ctx, p, teststore.NewTestingStore(ctx, t))
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, true, health["durable"])
	assert.Contains(t, health, "cache")
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/presets", strings.NewReader(`{"title":"t","hgvs":"h"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mutationmechanic_http_requests_total")
}

func TestServerPersistsFastTier(t *testing.T) {
	ctx := context.Background()
	p := newTestProfile(t)

	s, err := NewServer(ctx, p, nil)
	require.NoError(t, err)
	_, err = s.PresetService.SavePreset(ctx, mustPreset())
	require.NoError(t, err)
	s.Shutdown(ctx)

	_, err = os.Stat(p.FastSnapshotPath())
	require.NoError(t, err)

	restarted, err := NewServer(ctx, p, nil)
	require.NoError(t, err)
	presets := restarted.PresetService.GetPresets(ctx)
	require.Len(t, presets, 1)
	assert.Equal(t, "BRCA1 hotspot", presets[0].Title)
}

func mustPreset() *preset.Preset {
	return &preset.Preset{Title: "BRCA1 hotspot", HGVS: "NM_007294.4:c.68_69del"}
}
