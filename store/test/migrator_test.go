package test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateIsIdempotent(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	// NewTestingStore already applied every step.
	applied, err := ts.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, applied)

	histories, err := ts.GetDriver().ListMigrationHistories(ctx)
	require.NoError(t, err)
	require.Len(t, histories, 3)
	assert.Equal(t, 1, histories[0].Version)
	assert.Equal(t, "cache_entry", histories[0].Name)
	assert.Equal(t, 3, histories[2].Version)
}

func TestMigrateReappliesStepsSafely(t *testing.T) {
	if getDriverFromEnv() != "sqlite" {
		t.Skip("index introspection uses sqlite_master")
	}
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	// Forget the applied steps; every step must be safe to run again.
	_, err := ts.GetDriver().GetDB().ExecContext(ctx, `DELETE FROM migration_history`)
	require.NoError(t, err)

	applied, err := ts.Migrate(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, applied)

	rows, err := ts.GetDriver().GetDB().QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'index' AND tbl_name = 'history' AND name LIKE 'idx_%' ORDER BY name`)
	require.NoError(t, err)
	defer rows.Close()
	var indexes []string
	for rows.Next() {
		var name string
		require.NoError(t, rows.Scan(&name))
		indexes = append(indexes, name)
	}
	require.NoError(t, rows.Err())
	assert.Equal(t, []string{
		"idx_history_created_ts",
		"idx_history_gene",
		"idx_history_pathogenicity_label",
		"idx_history_risk_level",
	}, indexes)
}

func TestMigrateRejectsDowngrade(t *testing.T) {
	ctx := context.Background()
	ts := NewTestingStore(ctx, t)

	_, err := ts.GetDriver().GetDB().ExecContext(ctx, `UPDATE migration_history SET app_version = '99.0.0' WHERE version = 1`)
	require.NoError(t, err)

	_, err = ts.Migrate(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot downgrade")
}
