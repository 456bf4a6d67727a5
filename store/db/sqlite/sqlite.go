package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/binods1313/MutationMechanic-sub000/internal/profile"
	"github.com/binods1313/MutationMechanic-sub000/store"
)

type DB struct {
	db      *sql.DB
	profile *profile.Profile
}

// NewDB opens a database specified by its database driver name and a
// driver-specific data source name, usually consisting of at least a
// database name and connection information.
func NewDB(profile *profile.Profile) (store.Driver, error) {
	if profile == nil {
		return nil, errors.New("profile is nil")
	}
	if profile.DSN == "" {
		return nil, errors.New("dsn required")
	}

	// Connect to the database with some sane settings:
	// - No shared-cache: it's obsolete; WAL journal mode is a better solution.
	// - No foreign key constraints: history rows are standalone.
	// - Busy timeout so concurrent writers wait instead of failing with SQLITE_BUSY.
	sqliteDB, err := sql.Open("sqlite", profile.DSN+"?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", profile.DSN)
	}
	if err := sqliteDB.Ping(); err != nil {
		return nil, errors.Wrap(err, "failed to ping database")
	}

	driver := DB{db: sqliteDB, profile: profile}
	return &driver, nil
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
