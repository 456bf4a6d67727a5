package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/binods1313/MutationMechanic-sub000/store"
)

func (d *DB) ListCacheEntries(ctx context.Context, find *store.FindCacheEntry) ([]*store.CacheEntry, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.Key; v != nil {
		where, args = append(where, "cache_key = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `SELECT cache_key, payload, created_ts FROM cache_entry WHERE ` + strings.Join(where, " AND ") + ` ORDER BY created_ts DESC`
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entries: %w", err)
	}
	defer rows.Close()

	list := make([]*store.CacheEntry, 0)
	for rows.Next() {
		var entry store.CacheEntry
		if err := rows.Scan(&entry.Key, &entry.Payload, &entry.CreatedTs); err != nil {
			return nil, fmt.Errorf("failed to scan cache entry: %w", err)
		}
		list = append(list, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cache entries: %w", err)
	}
	return list, nil
}

func (d *DB) UpsertCacheEntry(ctx context.Context, upsert *store.CacheEntry) error {
	stmt := `INSERT INTO cache_entry (cache_key, payload, created_ts) VALUES (` + placeholders(3) + `)
		ON CONFLICT(cache_key) DO UPDATE SET payload = excluded.payload, created_ts = excluded.created_ts`
	if _, err := d.db.ExecContext(ctx, stmt, upsert.Key, upsert.Payload, upsert.CreatedTs); err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	return nil
}

func (d *DB) DeleteCacheEntries(ctx context.Context, delete *store.DeleteCacheEntry) (int64, error) {
	where, args := []string{}, []any{}

	if v := delete.Key; v != nil {
		where, args = append(where, "cache_key = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := delete.KeyPrefix; v != nil {
		where, args = append(where, "cache_key LIKE "+placeholder(len(args)+1)+" ESCAPE '\\'"), append(args, escapeLike(*v)+"%")
	}
	if v := delete.CreatedBefore; v != nil {
		where, args = append(where, "created_ts < "+placeholder(len(args)+1)), append(args, *v)
	}
	if len(where) == 0 && !delete.All {
		return 0, fmt.Errorf("refusing to delete cache entries without a condition")
	}

	stmt := `DELETE FROM cache_entry`
	if len(where) > 0 {
		stmt += ` WHERE ` + strings.Join(where, " AND ")
	}
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to delete cache entries: %w", err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// escapeLike escapes LIKE wildcards so a key prefix matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
