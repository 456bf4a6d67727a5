package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/binods1313/MutationMechanic-sub000/internal/version"
)

// Migration System Overview:
//
// The schema is an ordered list of steps embedded under migration/{driver}/.
// Each file is named "NN__description.sql" where NN is the integer schema version
// the step brings the database to. Every statement in a step must be idempotent
// (CREATE ... IF NOT EXISTS), so re-running a step against a database that already
// has the object is harmless.
//
// Applied steps are recorded in migration_history together with the application
// version that applied them. Migrate refuses to run a binary older than the newest
// recorded application version.

//go:embed migration
var migrationFS embed.FS

const (
	// MigrateFileNameSplit is the split character between the schema version and the description in the migration file name.
	// For example, "01__cache_entry.sql".
	MigrateFileNameSplit = "__"

	createMigrationHistoryStmt = `CREATE TABLE IF NOT EXISTS migration_history (
	version INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	app_version TEXT NOT NULL,
	applied_ts BIGINT NOT NULL
)`
)

// MigrationHistory is a record of one applied schema step.
type MigrationHistory struct {
	Version    int
	Name       string
	AppVersion string
	AppliedTs  int64
}

// migrationStep is one embedded schema step.
type migrationStep struct {
	Version int
	Name    string
	Path    string
}

// parseMigrationFileName extracts the schema version and description from "NN__description.sql".
func parseMigrationFileName(filename string) (int, string, error) {
	if !strings.Contains(filename, MigrateFileNameSplit) {
		return 0, "", errors.Errorf("invalid migration filename format (missing %s): %s", MigrateFileNameSplit, filename)
	}
	parts := strings.SplitN(filename, MigrateFileNameSplit, 2)
	v, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", errors.Errorf("migration filename must start with a number: %s", filename)
	}
	if v <= 0 {
		return 0, "", errors.Errorf("migration version must be positive: %s", filename)
	}
	return v, strings.TrimSuffix(parts[1], ".sql"), nil
}

// loadMigrationSteps returns the embedded steps for driver sorted by version.
func loadMigrationSteps(driver string) ([]migrationStep, error) {
	filePaths, err := fs.Glob(migrationFS, fmt.Sprintf("migration/%s/*.sql", driver))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read migration files")
	}

	steps := make([]migrationStep, 0, len(filePaths))
	seen := map[int]string{}
	for _, filePath := range filePaths {
		v, name, err := parseMigrationFileName(filepath.Base(filePath))
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[v]; ok {
			return nil, errors.Errorf("duplicate migration version %d: %s and %s", v, prev, filePath)
		}
		seen[v] = filePath
		steps = append(steps, migrationStep{Version: v, Name: name, Path: filePath})
	}
	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps, nil
}

// Migrate brings the database schema to the latest embedded version.
// It returns the number of steps applied.
func (s *Store) Migrate(ctx context.Context) (int, error) {
	db := s.driver.GetDB()
	if _, err := db.ExecContext(ctx, createMigrationHistoryStmt); err != nil {
		return 0, errors.Wrap(err, "failed to create migration_history")
	}

	histories, err := s.driver.ListMigrationHistories(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "failed to list migration histories")
	}
	appVersion := version.GetCurrentVersion(s.profile.Mode)
	currentSchemaVersion := 0
	for _, h := range histories {
		if h.Version > currentSchemaVersion {
			currentSchemaVersion = h.Version
		}
		if version.IsValid(h.AppVersion) && version.IsVersionGreaterThan(h.AppVersion, appVersion) {
			slog.Error("cannot downgrade schema",
				slog.String("databaseAppVersion", h.AppVersion),
				slog.String("currentAppVersion", appVersion),
			)
			return 0, errors.Errorf("cannot downgrade from %s to %s", h.AppVersion, appVersion)
		}
	}

	steps, err := loadMigrationSteps(s.profile.Driver)
	if err != nil {
		return 0, err
	}

	pending := make([]migrationStep, 0, len(steps))
	for _, step := range steps {
		if step.Version > currentSchemaVersion {
			pending = append(pending, step)
		}
	}
	if len(pending) == 0 {
		return 0, nil
	}

	// Apply all pending steps atomically.
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "failed to start transaction")
	}
	defer tx.Rollback()

	slog.Info("start migration",
		slog.Int("currentSchemaVersion", currentSchemaVersion),
		slog.Int("targetSchemaVersion", pending[len(pending)-1].Version))

	for _, step := range pending {
		slog.Info("applying migration", slog.String("file", step.Path), slog.Int("version", step.Version))

		bytes, err := migrationFS.ReadFile(step.Path)
		if err != nil {
			return 0, errors.Wrapf(err, "failed to read migration file: %s", step.Path)
		}
		if err := execute(ctx, tx, string(bytes)); err != nil {
			return 0, errors.Wrapf(err, "failed to execute migration %s", step.Path)
		}
		if err := s.driver.CreateMigrationHistory(ctx, tx, &MigrationHistory{
			Version:    step.Version,
			Name:       step.Name,
			AppVersion: appVersion,
			AppliedTs:  time.Now().UnixMilli(),
		}); err != nil {
			return 0, errors.Wrapf(err, "failed to record migration %s", step.Path)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "failed to commit migration transaction")
	}

	slog.Info("migration completed", slog.Int("migrationsApplied", len(pending)))
	return len(pending), nil
}

// execute runs every statement of a migration file inside tx.
func execute(ctx context.Context, tx *sql.Tx, sql string) error {
	for i, stmt := range splitSQL(sql) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return errors.Wrapf(err, "failed to execute statement %d: %s", i+1, stmt)
		}
	}
	return nil
}

// splitSQL splits a migration file into statements on semicolons outside of
// single-quoted strings, dropping "--" comments.
func splitSQL(sql string) []string {
	var statements []string
	var current strings.Builder
	inSingleQuote := false

	for _, line := range strings.Split(sql, "\n") {
		for i := 0; i < len(line); i++ {
			ch := line[i]
			if !inSingleQuote && ch == '-' && i+1 < len(line) && line[i+1] == '-' {
				break
			}
			if ch == '\'' {
				inSingleQuote = !inSingleQuote
			}
			if ch == ';' && !inSingleQuote {
				if stmt := strings.TrimSpace(current.String()); stmt != "" {
					statements = append(statements, stmt)
				}
				current.Reset()
				continue
			}
			current.WriteByte(ch)
		}
		current.WriteByte('\n')
	}
	if stmt := strings.TrimSpace(current.String()); stmt != "" {
		statements = append(statements, stmt)
	}
	return statements
}
