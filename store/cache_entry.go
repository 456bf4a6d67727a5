package store

import (
	"context"
)

// CacheEntry is a row of the durable cache tier.
// Payload is the serialized entry envelope; CreatedTs is epoch milliseconds.
type CacheEntry struct {
	Key       string
	Payload   string
	CreatedTs int64
}

// FindCacheEntry is the find condition for cache entries.
type FindCacheEntry struct {
	Key *string
}

// DeleteCacheEntry is the delete request for cache entries.
// At least one condition must be set unless All is true.
type DeleteCacheEntry struct {
	Key           *string
	KeyPrefix     *string
	CreatedBefore *int64
	All           bool
}

// GetCacheEntry returns the entry stored under key, or nil if there is none.
func (s *Store) GetCacheEntry(ctx context.Context, key string) (*CacheEntry, error) {
	list, err := s.driver.ListCacheEntries(ctx, &FindCacheEntry{Key: &key})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

func (s *Store) ListCacheEntries(ctx context.Context, find *FindCacheEntry) ([]*CacheEntry, error) {
	return s.driver.ListCacheEntries(ctx, find)
}

func (s *Store) UpsertCacheEntry(ctx context.Context, upsert *CacheEntry) error {
	return s.driver.UpsertCacheEntry(ctx, upsert)
}

// DeleteCacheEntries deletes matching entries and returns how many rows were removed.
func (s *Store) DeleteCacheEntries(ctx context.Context, delete *DeleteCacheEntry) (int64, error) {
	return s.driver.DeleteCacheEntries(ctx, delete)
}
