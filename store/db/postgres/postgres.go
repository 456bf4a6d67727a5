package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	// Import the PostgreSQL driver.
	_ "github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/binods1313/MutationMechanic-sub000/internal/profile"
	"github.com/binods1313/MutationMechanic-sub000/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}

	// Open the PostgreSQL connection
	db, err := sql.Open("postgres", profile.DSN)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	// Single-user dashboard backend: a small pool is plenty.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(2 * time.Hour)
	db.SetConnMaxIdleTime(15 * time.Minute)

	// Verify connection is working before returning
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	var driver store.Driver = &DB{
		db:      db,
		profile: profile,
	}
	return driver, nil
}

func (d *DB) GetDB() *sql.DB {
	return d.db
}

func (d *DB) Close() error {
	return d.db.Close()
}

func (d *DB) ListMigrationHistories(ctx context.Context) ([]*store.MigrationHistory, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT version, name, app_version, applied_ts FROM migration_history ORDER BY version ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query migration_history: %w", err)
	}
	defer rows.Close()

	list := make([]*store.MigrationHistory, 0)
	for rows.Next() {
		var h store.MigrationHistory
		if err := rows.Scan(&h.Version, &h.Name, &h.AppVersion, &h.AppliedTs); err != nil {
			return nil, fmt.Errorf("failed to scan migration_history: %w", err)
		}
		list = append(list, &h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate migration_history: %w", err)
	}
	return list, nil
}

func (d *DB) CreateMigrationHistory(ctx context.Context, tx *sql.Tx, create *store.MigrationHistory) error {
	stmt := `INSERT INTO migration_history (version, name, app_version, applied_ts) VALUES (` + placeholders(4) + `)`
	if _, err := tx.ExecContext(ctx, stmt, create.Version, create.Name, create.AppVersion, create.AppliedTs); err != nil {
		return fmt.Errorf("failed to create migration_history: %w", err)
	}
	return nil
}
