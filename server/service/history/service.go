// Package history provides the analysis-record log of the dashboard.
//
// Records live in the durable cache tier, which is queried directly through its
// indexed store handle. A statistics snapshot is kept in the tiered cache and
// invalidated after every write. When the durable tier is unavailable, reads
// return empty results and writes are no-ops.
package history

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/binods1313/MutationMechanic-sub000/store"
	"github.com/binods1313/MutationMechanic-sub000/store/cache"
)

const (
	// StatsCacheKey is the tiered-cache key of the statistics snapshot.
	StatsCacheKey = "history_stats"

	// Label thresholds on the pathogenicity score.
	benignBelow = 10
	vusBelow    = 20
)

// ErrInvalidRecord is returned when a record to be added fails validation.
var ErrInvalidRecord = errors.New("invalid history record")

// CreateRecordRequest is a history record without the fields the service derives.
type CreateRecordRequest struct {
	Gene                string             `json:"gene"`
	Variant             string             `json:"variant"`
	Timestamp           int64              `json:"timestamp,omitempty"`
	RiskLevel           store.RiskLevel    `json:"riskLevel"`
	PathogenicityScore  float64            `json:"pathogenicityScore"`
	Confidence          float64            `json:"confidence"`
	DiseaseAssociations []string           `json:"diseaseAssociations"`
	Therapies           []string           `json:"therapies"`
	Type                store.AnalysisType `json:"type"`
	VariantType         store.VariantType  `json:"variantType"`
	Position            *int64             `json:"position,omitempty"`
}

// RecordPatch carries the fields of a partial update. Nil fields are left unchanged.
type RecordPatch struct {
	Gene                *string                   `json:"gene,omitempty"`
	Variant             *string                   `json:"variant,omitempty"`
	RiskLevel           *store.RiskLevel          `json:"riskLevel,omitempty"`
	PathogenicityScore  *float64                  `json:"pathogenicityScore,omitempty"`
	PathogenicityLabel  *store.PathogenicityLabel `json:"pathogenicityLabel,omitempty"`
	Confidence          *float64                  `json:"confidence,omitempty"`
	DiseaseAssociations *[]string                 `json:"diseaseAssociations,omitempty"`
	Therapies           *[]string                 `json:"therapies,omitempty"`
	Type                *store.AnalysisType       `json:"type,omitempty"`
	VariantType         *store.VariantType        `json:"variantType,omitempty"`
	Position            *int64                    `json:"position,omitempty"`
	Archived            *bool                     `json:"archived,omitempty"`
}

// ListOptions narrows the records returned by ListRecords.
// StartTs and EndTs are inclusive epoch milliseconds.
type ListOptions struct {
	StartTs         *int64
	EndTs           *int64
	Gene            *string
	IncludeArchived bool
	Filter          *Filter
}

// Service manages history records.
type Service struct {
	cache *cache.TieredCache

	// statsMu orders snapshot stores against invalidations; statsGen counts invalidations.
	statsMu  sync.Mutex
	statsGen uint64
	// statsComputed, when set, runs between computing and storing a snapshot.
	statsComputed func()
}

// NewService creates a history service over the tiered cache.
func NewService(tc *cache.TieredCache) *Service {
	return &Service{cache: tc}
}

// Durable reports whether records can be stored.
func (s *Service) Durable() bool {
	return s.cache.Durable() != nil
}

// ClassifyPathogenicity maps a score to its label: below 10 is benign, below 20 is
// a variant of uncertain significance, anything else is pathogenic.
func ClassifyPathogenicity(score float64) store.PathogenicityLabel {
	switch {
	case score < benignBelow:
		return store.LabelBenign
	case score < vusBelow:
		return store.LabelVUS
	default:
		return store.LabelPathogenic
	}
}

// AddRecord derives the label and id, persists the record and returns its id.
// The insert fails if a record with the same id already exists.
func (s *Service) AddRecord(ctx context.Context, create *CreateRecordRequest) (string, error) {
	if err := validateCreate(create); err != nil {
		return "", err
	}
	db := s.cache.Durable()
	if db == nil {
		return "", nil
	}

	ts := create.Timestamp
	if ts == 0 {
		ts = s.cache.Now().UnixMilli()
	}
	variantType := create.VariantType
	if variantType == "" {
		variantType = store.VariantUnknown
	}
	analysisType := create.Type
	if analysisType == "" {
		analysisType = store.AnalysisExplainer
	}

	record := &store.HistoryRecord{
		ID:                  fmt.Sprintf("%s-%s-%d-%s", create.Gene, create.Variant, ts, shortuuid.New()),
		Gene:                create.Gene,
		Variant:             create.Variant,
		Timestamp:           ts,
		RiskLevel:           create.RiskLevel,
		PathogenicityScore:  create.PathogenicityScore,
		PathogenicityLabel:  ClassifyPathogenicity(create.PathogenicityScore),
		Confidence:          create.Confidence,
		DiseaseAssociations: orEmpty(create.DiseaseAssociations),
		Therapies:           orEmpty(create.Therapies),
		Type:                analysisType,
		VariantType:         variantType,
		Position:            create.Position,
		Archived:            false,
	}
	if _, err := db.CreateHistoryRecord(ctx, record); err != nil {
		return "", errors.Wrapf(err, "failed to add history record for %s %s", create.Gene, create.Variant)
	}
	s.invalidateStats(ctx)
	return record.ID, nil
}

// GetRecord returns the record with id, or nil if there is none.
func (s *Service) GetRecord(ctx context.Context, id string) (*store.HistoryRecord, error) {
	db := s.cache.Durable()
	if db == nil {
		return nil, nil
	}
	return db.GetHistoryRecord(ctx, id)
}

// GetAllRecords returns every record, newest first.
func (s *Service) GetAllRecords(ctx context.Context) ([]*store.HistoryRecord, error) {
	db := s.cache.Durable()
	if db == nil {
		return []*store.HistoryRecord{}, nil
	}
	records, err := db.ListHistoryRecords(ctx, &store.FindHistoryRecord{OrderByTimeDesc: true})
	if err != nil {
		return nil, errors.Wrap(err, "failed to list history records")
	}
	return records, nil
}

// GetRecordsByDateRange returns the records created in [start, end], in index order.
func (s *Service) GetRecordsByDateRange(ctx context.Context, start, end int64) ([]*store.HistoryRecord, error) {
	db := s.cache.Durable()
	if db == nil {
		return []*store.HistoryRecord{}, nil
	}
	records, err := db.ListHistoryRecords(ctx, &store.FindHistoryRecord{StartTs: &start, EndTs: &end})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list history records between %d and %d", start, end)
	}
	return records, nil
}

// ListRecords returns records matching opts, newest first.
// Archived records are excluded unless IncludeArchived is set.
func (s *Service) ListRecords(ctx context.Context, opts *ListOptions) ([]*store.HistoryRecord, error) {
	db := s.cache.Durable()
	if db == nil {
		return []*store.HistoryRecord{}, nil
	}
	if opts == nil {
		opts = &ListOptions{}
	}
	find := &store.FindHistoryRecord{
		StartTs:         opts.StartTs,
		EndTs:           opts.EndTs,
		Gene:            opts.Gene,
		OrderByTimeDesc: true,
	}
	if !opts.IncludeArchived {
		archived := false
		find.Archived = &archived
	}
	records, err := db.ListHistoryRecords(ctx, find)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list history records")
	}
	if opts.Filter == nil {
		return records, nil
	}

	filtered := make([]*store.HistoryRecord, 0, len(records))
	for _, record := range records {
		ok, err := opts.Filter.Match(record)
		if err != nil {
			return nil, err
		}
		if ok {
			filtered = append(filtered, record)
		}
	}
	return filtered, nil
}

// UpdateRecord merges the provided fields into the record with id.
// A missing record is a silent no-op. The label is not recomputed from a new score.
func (s *Service) UpdateRecord(ctx context.Context, id string, patch *RecordPatch) error {
	db := s.cache.Durable()
	if db == nil || patch == nil {
		return nil
	}
	existing, err := db.GetHistoryRecord(ctx, id)
	if err != nil {
		return errors.Wrapf(err, "failed to get history record %s", id)
	}
	if existing == nil {
		return nil
	}

	update := &store.UpdateHistoryRecord{
		ID:                  id,
		Gene:                patch.Gene,
		Variant:             patch.Variant,
		RiskLevel:           patch.RiskLevel,
		PathogenicityScore:  patch.PathogenicityScore,
		PathogenicityLabel:  patch.PathogenicityLabel,
		Confidence:          patch.Confidence,
		DiseaseAssociations: patch.DiseaseAssociations,
		Therapies:           patch.Therapies,
		Type:                patch.Type,
		VariantType:         patch.VariantType,
		Position:            patch.Position,
		Archived:            patch.Archived,
	}
	if update.IsEmpty() {
		return nil
	}
	if _, err := db.UpdateHistoryRecord(ctx, update); err != nil {
		return errors.Wrapf(err, "failed to update history record %s", id)
	}
	s.invalidateStats(ctx)
	return nil
}

// SetArchived sets the archived flag on every listed record and returns how many changed.
func (s *Service) SetArchived(ctx context.Context, ids []string, archived bool) (int64, error) {
	db := s.cache.Durable()
	if db == nil || len(ids) == 0 {
		return 0, nil
	}
	var total int64
	for _, id := range ids {
		n, err := db.UpdateHistoryRecord(ctx, &store.UpdateHistoryRecord{ID: id, Archived: &archived})
		if err != nil {
			return total, errors.Wrapf(err, "failed to archive history record %s", id)
		}
		total += n
	}
	s.invalidateStats(ctx)
	return total, nil
}

// DeleteRecord removes one record. Deleting an absent id is a no-op.
func (s *Service) DeleteRecord(ctx context.Context, id string) error {
	db := s.cache.Durable()
	if db == nil {
		return nil
	}
	if _, err := db.DeleteHistoryRecords(ctx, &store.DeleteHistoryRecord{ID: &id}); err != nil {
		return errors.Wrapf(err, "failed to delete history record %s", id)
	}
	s.invalidateStats(ctx)
	return nil
}

// DeleteRecords removes the listed records and returns how many were deleted.
func (s *Service) DeleteRecords(ctx context.Context, ids []string) (int64, error) {
	db := s.cache.Durable()
	if db == nil || len(ids) == 0 {
		return 0, nil
	}
	n, err := db.DeleteHistoryRecords(ctx, &store.DeleteHistoryRecord{IDs: ids})
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete history records")
	}
	s.invalidateStats(ctx)
	return n, nil
}

// ClearHistory removes every record.
func (s *Service) ClearHistory(ctx context.Context) error {
	db := s.cache.Durable()
	if db == nil {
		return nil
	}
	if _, err := db.DeleteHistoryRecords(ctx, &store.DeleteHistoryRecord{All: true}); err != nil {
		return errors.Wrap(err, "failed to clear history")
	}
	s.invalidateStats(ctx)
	return nil
}

// Sweep runs the retention sweep immediately, regardless of whether startup
// maintenance has already run.
func (s *Service) Sweep(ctx context.Context) (*cache.SweepResult, error) {
	result, err := s.cache.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	if result.HistoryDeleted > 0 {
		s.invalidateStats(ctx)
	}
	return result, nil
}

// RunMaintenance runs the once-per-process retention sweep and drops the
// statistics snapshot, which may predate records the sweep removed.
func (s *Service) RunMaintenance(ctx context.Context) {
	s.cache.RunMaintenance(ctx)
	s.invalidateStats(ctx)
}

func (s *Service) invalidateStats(ctx context.Context) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.statsGen++
	s.cache.Delete(ctx, StatsCacheKey)
}

func validateCreate(create *CreateRecordRequest) error {
	if create == nil {
		return errors.Wrap(ErrInvalidRecord, "empty request")
	}
	if strings.TrimSpace(create.Gene) == "" {
		return errors.Wrap(ErrInvalidRecord, "gene is required")
	}
	if strings.TrimSpace(create.Variant) == "" {
		return errors.Wrap(ErrInvalidRecord, "variant is required")
	}
	switch create.RiskLevel {
	case store.RiskLow, store.RiskMedium, store.RiskHigh:
	default:
		return errors.Wrapf(ErrInvalidRecord, "unknown risk level %q", create.RiskLevel)
	}
	switch create.Type {
	case "", store.AnalysisExplainer, store.AnalysisDecoder:
	default:
		return errors.Wrapf(ErrInvalidRecord, "unknown analysis type %q", create.Type)
	}
	switch create.VariantType {
	case "", store.VariantMissense, store.VariantFrameshift, store.VariantNonsense,
		store.VariantSpliceSite, store.VariantIndel, store.VariantUnknown:
	default:
		return errors.Wrapf(ErrInvalidRecord, "unknown variant type %q", create.VariantType)
	}
	return nil
}

func orEmpty(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
