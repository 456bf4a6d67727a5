package store

import (
	"context"
	"time"
)

// RiskLevel is the clinical risk level assigned by an analysis.
type RiskLevel string

const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// PathogenicityLabel is the classification derived from a pathogenicity score.
type PathogenicityLabel string

const (
	LabelBenign     PathogenicityLabel = "BENIGN"
	LabelVUS        PathogenicityLabel = "VUS"
	LabelPathogenic PathogenicityLabel = "PATHOGENIC"
)

// AnalysisType is the workflow that produced a history record.
type AnalysisType string

const (
	AnalysisExplainer AnalysisType = "EXPLAINER"
	AnalysisDecoder   AnalysisType = "DECODER"
)

// VariantType is the molecular consequence class of a variant.
type VariantType string

const (
	VariantMissense   VariantType = "MISSENSE"
	VariantFrameshift VariantType = "FRAMESHIFT"
	VariantNonsense   VariantType = "NONSENSE"
	VariantSpliceSite VariantType = "SPLICE_SITE"
	VariantIndel      VariantType = "INDEL"
	VariantUnknown    VariantType = "UNKNOWN"
)

// HistoryRecord is the object representing one analysis result.
type HistoryRecord struct {
	ID                  string             `json:"id"`
	Gene                string             `json:"gene"`
	Variant             string             `json:"variant"`
	Timestamp           int64              `json:"timestamp"`
	RiskLevel           RiskLevel          `json:"riskLevel"`
	PathogenicityScore  float64            `json:"pathogenicityScore"`
	PathogenicityLabel  PathogenicityLabel `json:"pathogenicityLabel"`
	Confidence          float64            `json:"confidence"`
	DiseaseAssociations []string           `json:"diseaseAssociations"`
	Therapies           []string           `json:"therapies"`
	Type                AnalysisType       `json:"type"`
	VariantType         VariantType        `json:"variantType"`
	Position            *int64             `json:"position,omitempty"`
	Archived            bool               `json:"archived"`
}

// Time returns the creation time of the record.
func (r *HistoryRecord) Time() time.Time {
	return time.UnixMilli(r.Timestamp)
}

// FindHistoryRecord is the find condition for history records.
// StartTs and EndTs are inclusive epoch milliseconds.
type FindHistoryRecord struct {
	ID        *string
	IDs       []string
	Gene      *string
	RiskLevel *RiskLevel
	Label     *PathogenicityLabel
	Archived  *bool

	StartTs *int64
	EndTs   *int64

	// OrderByTimeDesc sorts newest first; otherwise results come back in index order.
	OrderByTimeDesc bool
	Limit           *int
}

// UpdateHistoryRecord is the update request for a history record.
// Only non-nil fields are written.
type UpdateHistoryRecord struct {
	ID                  string
	Gene                *string
	Variant             *string
	RiskLevel           *RiskLevel
	PathogenicityScore  *float64
	PathogenicityLabel  *PathogenicityLabel
	Confidence          *float64
	DiseaseAssociations *[]string
	Therapies           *[]string
	Type                *AnalysisType
	VariantType         *VariantType
	Position            *int64
	Archived            *bool
}

// IsEmpty reports whether the update carries no field changes.
func (u *UpdateHistoryRecord) IsEmpty() bool {
	return u.Gene == nil && u.Variant == nil && u.RiskLevel == nil &&
		u.PathogenicityScore == nil && u.PathogenicityLabel == nil && u.Confidence == nil &&
		u.DiseaseAssociations == nil && u.Therapies == nil && u.Type == nil &&
		u.VariantType == nil && u.Position == nil && u.Archived == nil
}

// DeleteHistoryRecord is the delete request for history records.
// At least one condition must be set unless All is true.
type DeleteHistoryRecord struct {
	ID            *string
	IDs           []string
	CreatedBefore *int64
	All           bool
}

// CreateHistoryRecord inserts a new record. It fails if the id already exists.
func (s *Store) CreateHistoryRecord(ctx context.Context, create *HistoryRecord) (*HistoryRecord, error) {
	return s.driver.CreateHistoryRecord(ctx, create)
}

// ListHistoryRecords lists history records with filter.
func (s *Store) ListHistoryRecords(ctx context.Context, find *FindHistoryRecord) ([]*HistoryRecord, error) {
	return s.driver.ListHistoryRecords(ctx, find)
}

// GetHistoryRecord gets a history record by id. It returns nil if none exists.
func (s *Store) GetHistoryRecord(ctx context.Context, id string) (*HistoryRecord, error) {
	list, err := s.driver.ListHistoryRecords(ctx, &FindHistoryRecord{ID: &id})
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdateHistoryRecord updates a history record and returns the number of affected rows.
func (s *Store) UpdateHistoryRecord(ctx context.Context, update *UpdateHistoryRecord) (int64, error) {
	return s.driver.UpdateHistoryRecord(ctx, update)
}

// DeleteHistoryRecords deletes history records and returns the number of affected rows.
func (s *Store) DeleteHistoryRecords(ctx context.Context, delete *DeleteHistoryRecord) (int64, error) {
	return s.driver.DeleteHistoryRecords(ctx, delete)
}
