package history

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/binods1313/MutationMechanic-sub000/server/timezone"
	"github.com/binods1313/MutationMechanic-sub000/store"
)

// Export formats.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
	FormatText = "text"
	FormatHTML = "html"
)

// AllFields lists every exportable record field in output order.
var AllFields = []string{
	"id", "gene", "variant", "timestamp", "riskLevel", "pathogenicityScore",
	"pathogenicityLabel", "confidence", "diseaseAssociations", "therapies",
	"type", "variantType", "position", "archived",
}

// ExportOptions selects the output format and the fields to include.
type ExportOptions struct {
	Format string
	// Fields defaults to AllFields.
	Fields []string
	// Now stamps the report header; defaults to time.Now.
	Now time.Time
	// Location renders timestamps; defaults to UTC.
	Location *time.Location
}

// ContentType returns the MIME type of an export format.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatText:
		return "text/plain; charset=utf-8"
	case FormatHTML:
		return "text/html; charset=utf-8"
	default:
		return "application/json"
	}
}

// Export renders records in the requested format.
func Export(records []*store.HistoryRecord, opts ExportOptions) ([]byte, error) {
	fields := opts.Fields
	if len(fields) == 0 {
		fields = AllFields
	}
	for _, f := range fields {
		if !isKnownField(f) {
			return nil, errors.Errorf("unknown export field %q", f)
		}
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now()
	}
	loc := opts.Location
	if loc == nil {
		loc = timezone.UTC
	}

	switch opts.Format {
	case "", FormatJSON:
		return exportJSON(records, fields)
	case FormatCSV:
		return exportCSV(records, fields, loc)
	case FormatText:
		return exportText(records, fields, opts.Now, loc), nil
	case FormatHTML:
		return exportHTML(records, fields, opts.Now, loc)
	default:
		return nil, errors.Errorf("unsupported export format %q", opts.Format)
	}
}

func exportJSON(records []*store.HistoryRecord, fields []string) ([]byte, error) {
	rows := make([]map[string]any, 0, len(records))
	for _, r := range records {
		row := make(map[string]any, len(fields))
		for _, f := range fields {
			row[f] = fieldValue(r, f)
		}
		rows = append(rows, row)
	}
	b, err := json.MarshalIndent(rows, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal export")
	}
	return b, nil
}

func exportCSV(records []*store.HistoryRecord, fields []string, loc *time.Location) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(fields); err != nil {
		return nil, errors.Wrap(err, "failed to write csv header")
	}
	for _, r := range records {
		row := make([]string, len(fields))
		for i, f := range fields {
			row[i] = formatField(r, f, loc)
		}
		if err := w.Write(row); err != nil {
			return nil, errors.Wrap(err, "failed to write csv row")
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, errors.Wrap(err, "failed to flush csv")
	}
	return buf.Bytes(), nil
}

func exportText(records []*store.HistoryRecord, fields []string, now time.Time, loc *time.Location) []byte {
	var sb strings.Builder
	sb.WriteString("MutationMechanic Analysis Report\n")
	fmt.Fprintf(&sb, "Generated: %s\n", now.In(loc).Format(time.RFC3339))
	fmt.Fprintf(&sb, "Records: %d\n", len(records))
	for i, r := range records {
		fmt.Fprintf(&sb, "\n%d. %s %s\n", i+1, r.Gene, r.Variant)
		for _, f := range fields {
			fmt.Fprintf(&sb, "   %s: %s\n", fieldTitle(f), formatField(r, f, loc))
		}
	}
	return []byte(sb.String())
}

func exportHTML(records []*store.HistoryRecord, fields []string, now time.Time, loc *time.Location) ([]byte, error) {
	var md strings.Builder
	md.WriteString("# MutationMechanic Analysis Report\n\n")
	fmt.Fprintf(&md, "Generated %s, %d records.\n\n", now.In(loc).Format(time.RFC3339), len(records))
	if len(records) > 0 {
		titles := make([]string, len(fields))
		separators := make([]string, len(fields))
		for i, f := range fields {
			titles[i] = fieldTitle(f)
			separators[i] = "---"
		}
		md.WriteString("| " + strings.Join(titles, " | ") + " |\n")
		md.WriteString("| " + strings.Join(separators, " | ") + " |\n")
		for _, r := range records {
			cells := make([]string, len(fields))
			for i, f := range fields {
				cells[i] = escapeTableCell(formatField(r, f, loc))
			}
			md.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}

	var body bytes.Buffer
	renderer := goldmark.New(goldmark.WithExtensions(extension.Table))
	if err := renderer.Convert([]byte(md.String()), &body); err != nil {
		return nil, errors.Wrap(err, "failed to render report")
	}

	var out bytes.Buffer
	out.WriteString("<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"><title>MutationMechanic Analysis Report</title></head>\n<body>\n")
	out.Write(body.Bytes())
	out.WriteString("</body>\n</html>\n")
	return out.Bytes(), nil
}

func isKnownField(field string) bool {
	for _, f := range AllFields {
		if f == field {
			return true
		}
	}
	return false
}

func fieldValue(r *store.HistoryRecord, field string) any {
	switch field {
	case "id":
		return r.ID
	case "gene":
		return r.Gene
	case "variant":
		return r.Variant
	case "timestamp":
		return r.Timestamp
	case "riskLevel":
		return r.RiskLevel
	case "pathogenicityScore":
		return r.PathogenicityScore
	case "pathogenicityLabel":
		return r.PathogenicityLabel
	case "confidence":
		return r.Confidence
	case "diseaseAssociations":
		return orEmpty(r.DiseaseAssociations)
	case "therapies":
		return orEmpty(r.Therapies)
	case "type":
		return r.Type
	case "variantType":
		return r.VariantType
	case "position":
		return r.Position
	case "archived":
		return r.Archived
	}
	return nil
}

func formatField(r *store.HistoryRecord, field string, loc *time.Location) string {
	switch field {
	case "timestamp":
		return timezone.FormatTimestamp(r.Timestamp, loc, time.RFC3339)
	case "pathogenicityScore":
		return strconv.FormatFloat(r.PathogenicityScore, 'f', -1, 64)
	case "confidence":
		return strconv.FormatFloat(r.Confidence, 'f', -1, 64)
	case "diseaseAssociations":
		return strings.Join(r.DiseaseAssociations, "; ")
	case "therapies":
		return strings.Join(r.Therapies, "; ")
	case "position":
		if r.Position == nil {
			return ""
		}
		return strconv.FormatInt(*r.Position, 10)
	case "archived":
		return strconv.FormatBool(r.Archived)
	}
	return fmt.Sprint(fieldValue(r, field))
}

var fieldTitles = map[string]string{
	"id":                  "ID",
	"gene":                "Gene",
	"variant":             "Variant",
	"timestamp":           "Date",
	"riskLevel":           "Risk Level",
	"pathogenicityScore":  "Pathogenicity Score",
	"pathogenicityLabel":  "Classification",
	"confidence":          "Confidence",
	"diseaseAssociations": "Disease Associations",
	"therapies":           "Therapies",
	"type":                "Analysis",
	"variantType":         "Variant Type",
	"position":            "Position",
	"archived":            "Archived",
}

func fieldTitle(field string) string {
	if t, ok := fieldTitles[field]; ok {
		return t
	}
	return field
}

func escapeTableCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}
