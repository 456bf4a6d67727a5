package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/binods1313/MutationMechanic-sub000/store"
)

func (d *DB) CreateHistoryRecord(ctx context.Context, create *store.HistoryRecord) (*store.HistoryRecord, error) {
	diseases, err := marshalStrings(create.DiseaseAssociations)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal disease associations: %w", err)
	}
	therapies, err := marshalStrings(create.Therapies)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal therapies: %w", err)
	}

	fields := []string{
		"id", "gene", "variant", "created_ts", "risk_level",
		"pathogenicity_score", "pathogenicity_label", "confidence",
		"disease_associations", "therapies", "analysis_type", "variant_type",
		"position", "archived",
	}
	values := []any{
		create.ID, create.Gene, create.Variant, create.Timestamp, string(create.RiskLevel),
		create.PathogenicityScore, string(create.PathogenicityLabel), create.Confidence,
		diseases, therapies, string(create.Type), string(create.VariantType),
		nullInt64(create.Position), create.Archived,
	}

	// Plain INSERT: a duplicate id is a constraint error, never an overwrite.
	stmt := `INSERT INTO history (` + strings.Join(fields, ", ") + `) VALUES (` + placeholders(len(values)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, values...); err != nil {
		return nil, fmt.Errorf("failed to create history record: %w", err)
	}
	return create, nil
}

func (d *DB) ListHistoryRecords(ctx context.Context, find *store.FindHistoryRecord) ([]*store.HistoryRecord, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if len(find.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(find.IDs))+")")
		for _, id := range find.IDs {
			args = append(args, id)
		}
	}
	if v := find.Gene; v != nil {
		where, args = append(where, "gene = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.RiskLevel; v != nil {
		where, args = append(where, "risk_level = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := find.Label; v != nil {
		where, args = append(where, "pathogenicity_label = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := find.Archived; v != nil {
		where, args = append(where, "archived = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.StartTs; v != nil {
		where, args = append(where, "created_ts >= "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.EndTs; v != nil {
		where, args = append(where, "created_ts <= "+placeholder(len(args)+1)), append(args, *v)
	}

	orderBy := "ORDER BY created_ts ASC"
	if find.OrderByTimeDesc {
		orderBy = "ORDER BY created_ts DESC"
	}

	query := `
		SELECT
			id, gene, variant, created_ts, risk_level,
			pathogenicity_score, pathogenicity_label, confidence,
			disease_associations, therapies, analysis_type, variant_type,
			position, archived
		FROM history
		WHERE ` + strings.Join(where, " AND ") + ` ` + orderBy
	if find.Limit != nil {
		query = fmt.Sprintf("%s LIMIT %d", query, *find.Limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	list := make([]*store.HistoryRecord, 0)
	for rows.Next() {
		var record store.HistoryRecord
		var diseases, therapies string
		var position sql.NullInt64
		if err := rows.Scan(
			&record.ID,
			&record.Gene,
			&record.Variant,
			&record.Timestamp,
			&record.RiskLevel,
			&record.PathogenicityScore,
			&record.PathogenicityLabel,
			&record.Confidence,
			&diseases,
			&therapies,
			&record.Type,
			&record.VariantType,
			&position,
			&record.Archived,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		if record.DiseaseAssociations, err = unmarshalStrings(diseases); err != nil {
			return nil, fmt.Errorf("failed to unmarshal disease associations of %s: %w", record.ID, err)
		}
		if record.Therapies, err = unmarshalStrings(therapies); err != nil {
			return nil, fmt.Errorf("failed to unmarshal therapies of %s: %w", record.ID, err)
		}
		if position.Valid {
			record.Position = &position.Int64
		}
		list = append(list, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history: %w", err)
	}
	return list, nil
}

func (d *DB) UpdateHistoryRecord(ctx context.Context, update *store.UpdateHistoryRecord) (int64, error) {
	set, args := []string{}, []any{}

	if v := update.Gene; v != nil {
		set, args = append(set, "gene = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Variant; v != nil {
		set, args = append(set, "variant = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.RiskLevel; v != nil {
		set, args = append(set, "risk_level = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := update.PathogenicityScore; v != nil {
		set, args = append(set, "pathogenicity_score = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.PathogenicityLabel; v != nil {
		set, args = append(set, "pathogenicity_label = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := update.Confidence; v != nil {
		set, args = append(set, "confidence = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.DiseaseAssociations; v != nil {
		raw, err := marshalStrings(*v)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal disease associations: %w", err)
		}
		set, args = append(set, "disease_associations = "+placeholder(len(args)+1)), append(args, raw)
	}
	if v := update.Therapies; v != nil {
		raw, err := marshalStrings(*v)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal therapies: %w", err)
		}
		set, args = append(set, "therapies = "+placeholder(len(args)+1)), append(args, raw)
	}
	if v := update.Type; v != nil {
		set, args = append(set, "analysis_type = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := update.VariantType; v != nil {
		set, args = append(set, "variant_type = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := update.Position; v != nil {
		set, args = append(set, "position = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Archived; v != nil {
		set, args = append(set, "archived = "+placeholder(len(args)+1)), append(args, *v)
	}

	// If no fields to update, return early
	if len(set) == 0 {
		return 0, nil
	}

	args = append(args, update.ID)
	stmt := `UPDATE history SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to update history record: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func (d *DB) DeleteHistoryRecords(ctx context.Context, delete *store.DeleteHistoryRecord) (int64, error) {
	where, args := []string{}, []any{}

	if v := delete.ID; v != nil {
		where, args = append(where, "id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if len(delete.IDs) > 0 {
		where = append(where, "id IN ("+placeholders(len(delete.IDs))+")")
		for _, id := range delete.IDs {
			args = append(args, id)
		}
	}
	if v := delete.CreatedBefore; v != nil {
		where, args = append(where, "created_ts < "+placeholder(len(args)+1)), append(args, *v)
	}
	if len(where) == 0 && !delete.All {
		return 0, fmt.Errorf("refusing to delete history records without a condition")
	}

	stmt := `DELETE FROM history`
	if len(where) > 0 {
		stmt += ` WHERE ` + strings.Join(where, " AND ")
	}
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete history records: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
