package cache

import (
	"container/list"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/pkg/errors"
)

// ErrQuotaExceeded is returned when a write would push the cache past its byte quota.
var ErrQuotaExceeded = errors.New("cache quota exceeded")

// FastTier is the in-process tier of the tiered cache.
type FastTier interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte) error
	Delete(key string)
	Size() int
	DeletePrefix(prefix string) int
	// CleanupExpired removes reclaimable entries and returns how many were removed.
	CleanupExpired() int
}

// Config holds the configuration for the in-memory cache.
type Config struct {
	// MaxBytes is the total quota for keys plus values. Writes past the quota fail
	// with ErrQuotaExceeded. Zero means unbounded.
	MaxBytes int64
	// Reclaimable reports whether an entry may be dropped, typically because it has
	// expired. Reclaimable entries are removed before a write is rejected for quota
	// and are not restored from a snapshot. Nil means nothing is reclaimable.
	Reclaimable func(key string, value []byte) bool
}

// Cache is a byte-quota LRU cache safe for concurrent use.
type Cache struct {
	config Config

	mu    sync.Mutex
	items map[string]*list.Element
	order *list.List // front is most recently used
	bytes int64
}

type item struct {
	key   string
	value []byte
}

func (i *item) size() int64 {
	return int64(len(i.key) + len(i.value))
}

// New creates a new in-memory cache.
func New(config Config) *Cache {
	return &Cache{
		config: config,
		items:  make(map[string]*list.Element),
		order:  list.New(),
	}
}

// Get retrieves a value and marks it as recently used.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*item).value, true
}

// Set stores a value. When the new total would exceed MaxBytes, reclaimable entries
// are removed first; if it still does not fit, Set fails with ErrQuotaExceeded and the
// stored value for key is left unchanged.
func (c *Cache) Set(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := &item{key: key, value: value}
	if c.config.MaxBytes > 0 && c.totalWith(next) > c.config.MaxBytes {
		c.cleanupExpired()
		if c.totalWith(next) > c.config.MaxBytes {
			return errors.Wrapf(ErrQuotaExceeded, "writing %d bytes for key %q", next.size(), key)
		}
	}

	total := c.totalWith(next)
	if existing, ok := c.items[key]; ok {
		existing.Value = next
		c.order.MoveToFront(existing)
		c.bytes = total
		return nil
	}
	c.items[key] = c.order.PushFront(next)
	c.bytes = total
	return nil
}

// totalWith returns the quota usage after storing next. It must be called with the lock held.
func (c *Cache) totalWith(next *item) int64 {
	total := c.bytes + next.size()
	if existing, ok := c.items[next.key]; ok {
		total -= existing.Value.(*item).size()
	}
	return total
}

// CleanupExpired removes all reclaimable entries.
func (c *Cache) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cleanupExpired()
}

// cleanupExpired must be called with the lock held.
func (c *Cache) cleanupExpired() int {
	if c.config.Reclaimable == nil {
		return 0
	}
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		it := elem.Value.(*item)
		if c.config.Reclaimable(it.key, it.value) {
			c.removeElement(elem)
			removed++
		}
		elem = prev
	}
	return removed
}

// Delete removes a value.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
}

// DeletePrefix removes every value whose key starts with prefix.
func (c *Cache) DeletePrefix(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, elem := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(elem)
			removed++
		}
	}
	return removed
}

// Clear removes all values.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.bytes = 0
}

// Size returns the number of entries.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Bytes returns the bytes currently counted against the quota.
func (c *Cache) Bytes() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bytes
}

// removeElement must be called with the lock held.
func (c *Cache) removeElement(elem *list.Element) {
	it := elem.Value.(*item)
	c.order.Remove(elem)
	delete(c.items, it.key)
	c.bytes -= it.size()
}

type snapshotEntry struct {
	Key   string `json:"key"`
	Value []byte `json:"value"`
}

// SaveSnapshot writes all entries, least recently used first, to path.
// The file is replaced atomically.
func (c *Cache) SaveSnapshot(path string) error {
	c.mu.Lock()
	entries := make([]snapshotEntry, 0, len(c.items))
	for elem := c.order.Back(); elem != nil; elem = elem.Prev() {
		it := elem.Value.(*item)
		entries = append(entries, snapshotEntry{Key: it.key, Value: it.value})
	}
	c.mu.Unlock()

	b, err := json.Marshal(entries)
	if err != nil {
		return errors.Wrap(err, "failed to marshal cache snapshot")
	}
	return writeFileAtomic(path, b)
}

// LoadSnapshot restores entries written by SaveSnapshot. A missing file is not an error.
// Reclaimable entries and entries that no longer fit the quota are skipped.
func (c *Cache) LoadSnapshot(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, errors.Wrapf(err, "failed to read cache snapshot %s", path)
	}

	var entries []snapshotEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return 0, errors.Wrapf(err, "failed to parse cache snapshot %s", path)
	}
	loaded := 0
	for _, e := range entries {
		if c.config.Reclaimable != nil && c.config.Reclaimable(e.Key, e.Value) {
			continue
		}
		if err := c.Set(e.Key, e.Value); err != nil {
			continue
		}
		loaded++
	}
	return loaded, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create %s", dir)
	}

	tmp, err := os.CreateTemp(dir, ".tmp_cache_*.json")
	if err != nil {
		return errors.Wrap(err, "failed to create temp file")
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to write temp file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return errors.Wrap(err, "failed to sync temp file")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "failed to close temp file")
	}
	return errors.Wrap(os.Rename(tmpName, path), "failed to replace snapshot")
}

var _ FastTier = (*Cache)(nil)
