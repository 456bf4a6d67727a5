package history

import (
	"context"

	"github.com/binods1313/MutationMechanic-sub000/store"
)

// Stats is the aggregate view of the history log.
type Stats struct {
	Total           int                              `json:"total"`
	Archived        int                              `json:"archived"`
	ByLabel         map[store.PathogenicityLabel]int `json:"byLabel"`
	ByRiskLevel     map[store.RiskLevel]int          `json:"byRiskLevel"`
	ByType          map[store.AnalysisType]int       `json:"byType"`
	MeanScore       float64                          `json:"meanScore"`
	NewestTimestamp int64                            `json:"newestTimestamp,omitempty"`
	OldestTimestamp int64                            `json:"oldestTimestamp,omitempty"`
}

// Stats returns the cached statistics snapshot, computing it on a miss.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	var cached Stats
	if s.cache.GetInto(ctx, StatsCacheKey, &cached) {
		return &cached, nil
	}

	s.statsMu.Lock()
	gen := s.statsGen
	s.statsMu.Unlock()

	records, err := s.GetAllRecords(ctx)
	if err != nil {
		return nil, err
	}
	stats := computeStats(records)
	if s.statsComputed != nil {
		s.statsComputed()
	}
	if s.cache.Durable() == nil {
		return stats, nil
	}

	// A write since the read invalidated this snapshot; do not store it.
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	if s.statsGen == gen {
		s.cache.Set(ctx, StatsCacheKey, stats)
	}
	return stats, nil
}

func computeStats(records []*store.HistoryRecord) *Stats {
	stats := &Stats{
		ByLabel:     map[store.PathogenicityLabel]int{},
		ByRiskLevel: map[store.RiskLevel]int{},
		ByType:      map[store.AnalysisType]int{},
	}
	var scoreSum float64
	for _, r := range records {
		stats.Total++
		if r.Archived {
			stats.Archived++
		}
		stats.ByLabel[r.PathogenicityLabel]++
		stats.ByRiskLevel[r.RiskLevel]++
		stats.ByType[r.Type]++
		scoreSum += r.PathogenicityScore
		if stats.NewestTimestamp == 0 || r.Timestamp > stats.NewestTimestamp {
			stats.NewestTimestamp = r.Timestamp
		}
		if stats.OldestTimestamp == 0 || r.Timestamp < stats.OldestTimestamp {
			stats.OldestTimestamp = r.Timestamp
		}
	}
	if stats.Total > 0 {
		stats.MeanScore = scoreSum / float64(stats.Total)
	}
	return stats
}
