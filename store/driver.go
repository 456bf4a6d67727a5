package store

import (
	"context"
	"database/sql"
)

// Driver is an interface for store driver.
// It contains all methods that store database driver should implement.
type Driver interface {
	GetDB() *sql.DB
	Close() error

	// MigrationHistory model related methods.
	ListMigrationHistories(ctx context.Context) ([]*MigrationHistory, error)
	CreateMigrationHistory(ctx context.Context, tx *sql.Tx, create *MigrationHistory) error

	// CacheEntry model related methods.
	ListCacheEntries(ctx context.Context, find *FindCacheEntry) ([]*CacheEntry, error)
	UpsertCacheEntry(ctx context.Context, upsert *CacheEntry) error
	DeleteCacheEntries(ctx context.Context, delete *DeleteCacheEntry) (int64, error)

	// HistoryRecord model related methods.
	CreateHistoryRecord(ctx context.Context, create *HistoryRecord) (*HistoryRecord, error)
	ListHistoryRecords(ctx context.Context, find *FindHistoryRecord) ([]*HistoryRecord, error)
	UpdateHistoryRecord(ctx context.Context, update *UpdateHistoryRecord) (int64, error)
	DeleteHistoryRecords(ctx context.Context, delete *DeleteHistoryRecord) (int64, error)
}
