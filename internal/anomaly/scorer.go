package anomaly

import (
	"errors"
	"log/slog"
	"time"

	"authwatch/internal/model"
)

// OutlierModel is any unsupervised scorer that fits on feature vectors and
// returns a score plus a binary label per vector. Higher score means more
// inlier-like.
type OutlierModel interface {
	FitScore(vectors [][]float64) (scores []float64, anomalous []bool)
}

// Params configures the scorer. Model is optional and defaults to a seeded
// isolation forest built from the remaining fields.
type Params struct {
	Horizon       time.Duration
	Contamination float64
	Trees         int
	SampleSize    int
	Seed          int64
	Model         OutlierModel
}

// Scorer flags statistically unusual source addresses by their aggregated
// failure behavior over the trailing horizon.
type Scorer struct {
	params Params
	model  OutlierModel
	logger *slog.Logger
}

// NewScorer validates parameters up front; a non-positive horizon or a
// contamination outside (0, 0.5] is a caller error and fails fast.
func NewScorer(params Params, logger *slog.Logger) (*Scorer, error) {
	if params.Horizon <= 0 {
		return nil, errors.New("anomaly: horizon must be a positive duration")
	}
	if params.Contamination <= 0 || params.Contamination > 0.5 {
		return nil, errors.New("anomaly: contamination must be in (0, 0.5]")
	}
	m := params.Model
	if m == nil {
		m = NewIsolationForest(ForestConfig{
			Trees:         params.Trees,
			SampleSize:    params.SampleSize,
			Contamination: params.Contamination,
			Seed:          params.Seed,
		})
	}
	return &Scorer{params: params, model: m, logger: logger}, nil
}

// Score aggregates features and fits the outlier model. Fewer than two
// feature rows skips fitting: every row comes back unflagged with a neutral
// zero score. Empty input yields an empty map.
func (s *Scorer) Score(events []model.Event) map[string]model.AnomalyResult {
	rows := FeatureRows(events, s.params.Horizon)
	results := make(map[string]model.AnomalyResult, len(rows))
	if len(rows) == 0 {
		return results
	}
	if len(rows) < 2 {
		if s.logger != nil {
			s.logger.Debug("too few sources to fit outlier model", "rows", len(rows))
		}
		for _, row := range rows {
			results[row.SourceAddr] = model.AnomalyResult{FeatureRow: row}
		}
		return results
	}

	vectors := make([][]float64, len(rows))
	for i, row := range rows {
		vectors[i] = []float64{
			float64(row.TotalFailures),
			float64(row.DistinctAccounts),
			row.FailuresPerMin,
		}
	}
	scores, anomalous := s.model.FitScore(vectors)
	flagged := 0
	for i, row := range rows {
		if anomalous[i] {
			flagged++
		}
		results[row.SourceAddr] = model.AnomalyResult{
			FeatureRow:   row,
			AnomalyScore: scores[i],
			Anomalous:    anomalous[i],
		}
	}
	if s.logger != nil {
		s.logger.Info("anomaly scoring complete", "sources", len(rows), "anomalous", flagged)
	}
	return results
}
