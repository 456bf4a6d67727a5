package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestPresetsImportExport(t *testing.T) {
	dir := t.TempDir()
	importFile := filepath.Join(dir, "presets.json")
	require.NoError(t, os.WriteFile(importFile, []byte(`[{"id":"p1","title":"BRCA1 hotspot","hgvs":"NM_007294.4:c.68_69del","type":"custom","createdAt":1,"modifiedAt":1}]`), 0644))

	out, err := execute(t, "presets", "import", importFile, "--mode", "dev", "--data", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "1 stored")

	exportFile := filepath.Join(dir, "export.json")
	out, err = execute(t, "presets", "export", exportFile, "--mode", "dev", "--data", dir)
	require.NoError(t, err, out)

	exported, err := os.ReadFile(exportFile)
	require.NoError(t, err)
	assert.Contains(t, string(exported), `"id": "p1"`)
	assert.Contains(t, string(exported), "BRCA1 hotspot")
}

func TestPresetsImportRejectsNonArray(t *testing.T) {
	dir := t.TempDir()
	importFile := filepath.Join(dir, "presets.json")
	require.NoError(t, os.WriteFile(importFile, []byte(`{"id":"p1"}`), 0644))

	_, err := execute(t, "presets", "import", importFile, "--mode", "dev", "--data", dir)
	assert.ErrorContains(t, err, "import file must contain a JSON array of presets")
}

func TestSweep(t *testing.T) {
	dir := t.TempDir()
	out, err := execute(t, "sweep", "--mode", "dev", "--data", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, "deleted 0 history records")
}

func TestSweepPurgesPrefix(t *testing.T) {
	dir := t.TempDir()
	t.Cleanup(func() { _ = sweepCmd.Flags().Set("prefix", "") })
	out, err := execute(t, "sweep", "--prefix", "genomic_ctx_", "--mode", "dev", "--data", dir)
	require.NoError(t, err, out)
	assert.Contains(t, out, `purged 0 cache entries with prefix "genomic_ctx_"`)
}
