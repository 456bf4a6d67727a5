// Package preset manages the user's saved variant presets.
//
// The collection is small and bounded, so it lives in the fast cache tier as a
// single JSON array and is rewritten in one write on every change.
package preset

import (
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/binods1313/MutationMechanic-sub000/store/cache"
)

const (
	// StorageKey is the fast-tier key of the preset collection.
	StorageKey = "mm_presets"
	// MaxPresets caps the collection; the least recently modified entries are dropped.
	MaxPresets = 200
)

var (
	// ErrInvalidImport is returned when an import payload is not a JSON array of presets.
	ErrInvalidImport = errors.New("invalid preset import")
	// ErrInvalidPreset is returned when a preset to be saved lacks a title or hgvs.
	ErrInvalidPreset = errors.New("invalid preset")
)

// Service manages presets.
type Service struct {
	fast cache.FastTier
	now  func() time.Time

	// mu serializes read-modify-write cycles of the collection.
	mu sync.Mutex
}

// NewService creates a preset service over the fast tier. A nil clock uses time.Now.
func NewService(fast cache.FastTier, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{fast: fast, now: now}
}

// GetPresets returns all presets, most recently modified first.
// Unreadable stored data yields an empty collection.
func (s *Service) GetPresets(_ context.Context) []*Preset {
	presets := s.load()
	sortByModified(presets)
	return presets
}

// SavePreset inserts preset or merges it into the entry with the same id, or the
// same hgvs and title. It returns the stored preset.
func (s *Service) SavePreset(_ context.Context, preset *Preset) (*Preset, error) {
	if preset == nil || strings.TrimSpace(preset.Title) == "" || strings.TrimSpace(preset.HGVS) == "" {
		return nil, errors.Wrap(ErrInvalidPreset, "title and hgvs are required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UnixMilli()
	presets := s.load()

	var saved *Preset
	for _, existing := range presets {
		if existing.sameAs(preset) {
			existing.mergeFrom(preset)
			saved = existing
			break
		}
	}
	if saved == nil {
		saved = clonePreset(preset)
		if saved.ID == "" {
			saved.ID = shortuuid.New()
		}
		if saved.Type == "" {
			saved.Type = TypeCustom
		}
		if saved.CreatedAt == 0 {
			saved.CreatedAt = now
		}
		presets = append([]*Preset{saved}, presets...)
	}
	saved.ModifiedAt = now

	sortByModified(presets)
	if len(presets) > MaxPresets {
		presets = presets[:MaxPresets]
	}
	if err := s.persist(presets); err != nil {
		return nil, err
	}
	return saved, nil
}

// DeletePreset removes the preset with id. Deleting an absent id is a no-op.
func (s *Service) DeletePreset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	presets := s.load()
	kept := presets[:0]
	for _, p := range presets {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	if len(kept) == len(presets) {
		return nil
	}
	return s.persist(kept)
}

// ImportPresets merges a JSON array of presets ahead of the stored collection.
// On duplicate ids the first occurrence wins, so imported entries replace stored ones.
func (s *Service) ImportPresets(_ context.Context, data string) ([]*Preset, error) {
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(data), &items); err != nil || items == nil {
		return nil, errors.Wrap(ErrInvalidImport, "import file must contain a JSON array of presets")
	}
	imported := make([]*Preset, 0, len(items))
	for i, item := range items {
		p := &Preset{}
		if !isObject(item) {
			return nil, errors.Wrapf(ErrInvalidImport, "entry %d is not a preset object", i+1)
		}
		if err := json.Unmarshal(item, p); err != nil {
			return nil, errors.Wrapf(ErrInvalidImport, "entry %d is not a preset object", i+1)
		}
		if p.ID == "" {
			p.ID = shortuuid.New()
		}
		imported = append(imported, p)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]bool{}
	merged := make([]*Preset, 0, len(imported))
	for _, p := range append(imported, s.load()...) {
		if seen[p.ID] {
			continue
		}
		seen[p.ID] = true
		merged = append(merged, p)
	}
	if len(merged) > MaxPresets {
		merged = merged[:MaxPresets]
	}
	if err := s.persist(merged); err != nil {
		return nil, err
	}
	return merged, nil
}

// ExportPresets returns the collection as pretty-printed JSON.
func (s *Service) ExportPresets(ctx context.Context) (string, error) {
	b, err := json.MarshalIndent(s.GetPresets(ctx), "", "  ")
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal presets")
	}
	return string(b), nil
}

func (s *Service) load() []*Preset {
	b, ok := s.fast.Get(StorageKey)
	if !ok {
		return []*Preset{}
	}
	var presets []*Preset
	if err := json.Unmarshal(b, &presets); err != nil {
		slog.Warn("ignoring malformed preset collection", slog.String("error", err.Error()))
		return []*Preset{}
	}
	valid := presets[:0]
	for _, p := range presets {
		if p != nil {
			valid = append(valid, p)
		}
	}
	return valid
}

func (s *Service) persist(presets []*Preset) error {
	b, err := json.Marshal(presets)
	if err != nil {
		return errors.Wrap(err, "failed to marshal presets")
	}
	if err := s.fast.Set(StorageKey, b); err != nil {
		return errors.Wrap(err, "failed to store presets")
	}
	return nil
}

func sortByModified(presets []*Preset) {
	sort.SliceStable(presets, func(i, j int) bool {
		return presets[i].ModifiedAt > presets[j].ModifiedAt
	})
}

func clonePreset(p *Preset) *Preset {
	c := *p
	if p.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(p.Extra))
		for k, v := range p.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

func isObject(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return strings.HasPrefix(trimmed, "{")
}
