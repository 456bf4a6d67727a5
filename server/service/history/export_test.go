package history

import (
	"encoding/csv"
	"encoding/json"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/binods1313/MutationMechanic-sub000/store"
)

func exportRecords() []*store.HistoryRecord {
	position := int64(248)
	return []*store.HistoryRecord{
		{
			ID:                  "TP53-c.743G>A-2000-b",
			Gene:                "TP53",
			Variant:             "c.743G>A",
			Timestamp:           2000,
			RiskLevel:           store.RiskHigh,
			PathogenicityScore:  31,
			PathogenicityLabel:  store.LabelPathogenic,
			Confidence:          88,
			DiseaseAssociations: []string{"Li-Fraumeni syndrome", "Sarcoma"},
			Therapies:           []string{},
			Type:                store.AnalysisDecoder,
			VariantType:         store.VariantMissense,
			Position:            &position,
		},
		{
			ID:                  "CFTR-c.1521_1523del-1000-a",
			Gene:                "CFTR",
			Variant:             "c.1521_1523del",
			Timestamp:           1000,
			RiskLevel:           store.RiskMedium,
			PathogenicityScore:  14.5,
			PathogenicityLabel:  store.LabelVUS,
			Confidence:          70,
			DiseaseAssociations: []string{"Cystic fibrosis"},
			Therapies:           []string{"Ivacaftor"},
			Type:                store.AnalysisExplainer,
			VariantType:         store.VariantIndel,
		},
	}
}

func TestExportJSON(t *testing.T) {
	out, err := Export(exportRecords(), ExportOptions{Format: FormatJSON, Fields: []string{"gene", "pathogenicityLabel"}})
	require.NoError(t, err)

	var rows []map[string]any
	require.NoError(t, json.Unmarshal(out, &rows))
	require.Len(t, rows, 2)
	assert.Equal(t, map[string]any{"gene": "TP53", "pathogenicityLabel": "PATHOGENIC"}, rows[0])
}

func TestExportCSV(t *testing.T) {
	out, err := Export(exportRecords(), ExportOptions{Format: FormatCSV, Fields: []string{"gene", "diseaseAssociations", "position"}})
	require.NoError(t, err)

	rows, err := csv.NewReader(strings.NewReader(string(out))).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"gene", "diseaseAssociations", "position"},
		{"TP53", "Li-Fraumeni syndrome; Sarcoma", "248"},
		{"CFTR", "Cystic fibrosis", ""},
	}, rows)
}

func TestExportText(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	out, err := Export(exportRecords(), ExportOptions{Format: FormatText, Now: now})
	require.NoError(t, err)

	text := string(out)
	assert.Contains(t, text, "Generated: 2026-01-02T03:04:05Z")
	assert.Contains(t, text, "Records: 2")
	assert.Contains(t, text, "1. TP53 c.743G>A")
	assert.Contains(t, text, "   Classification: VUS")
	assert.Contains(t, text, "   Therapies: Ivacaftor")
}

func TestExportLocation(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)
	out, err := Export(exportRecords(), ExportOptions{Format: FormatCSV, Fields: []string{"timestamp"}, Location: tokyo})
	require.NoError(t, err)
	assert.Contains(t, string(out), "1970-01-01T09:00:02+09:00")

	out, err = Export(exportRecords(), ExportOptions{Format: FormatCSV, Fields: []string{"timestamp"}})
	require.NoError(t, err)
	assert.Contains(t, string(out), "1970-01-01T00:00:02Z")
}

func TestExportHTML(t *testing.T) {
	out, err := Export(exportRecords(), ExportOptions{Format: FormatHTML, Fields: []string{"gene", "variant"}})
	require.NoError(t, err)

	html := string(out)
	assert.True(t, strings.HasPrefix(html, "<!DOCTYPE html>"))
	assert.Contains(t, html, "<h1>MutationMechanic Analysis Report</h1>")
	assert.Contains(t, html, "<table>")
	assert.Contains(t, html, "<td>TP53</td>")
	assert.Contains(t, html, "<th>Variant</th>")
}

func TestExportErrors(t *testing.T) {
	_, err := Export(exportRecords(), ExportOptions{Format: "pdf"})
	assert.Error(t, err)

	_, err = Export(exportRecords(), ExportOptions{Fields: []string{"secret"}})
	assert.Error(t, err)
}

func TestFeed(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)

	rss, err := Feed(exportRecords(), FeedOptions{Link: "https://mm.example.org/", Now: now, Limit: 1})
	require.NoError(t, err)
	assert.Contains(t, rss, "<rss")
	assert.Contains(t, rss, "TP53 c.743G&gt;A")
	assert.Contains(t, rss, "https://mm.example.org/history/TP53-c.743G&gt;A-2000-b")
	assert.NotContains(t, rss, "CFTR")

	atom, err := Feed(exportRecords(), FeedOptions{Format: "atom", Now: now})
	require.NoError(t, err)
	assert.Contains(t, atom, "<feed")
	assert.Contains(t, atom, "CFTR")

	_, err = Feed(nil, FeedOptions{Format: "json"})
	assert.Error(t, err)
}
