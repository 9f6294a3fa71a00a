// Package scoring turns procedure outcomes into evaluation scores.
package scoring

import (
	"math"

	"github.com/okian/jumptrain/internal/domain/model"
)

// Default scoring configuration constants.
const (
	defaultWeight = 1
	maxScoreValue = 100
)

// DefaultPoints are the base points per outcome.
func DefaultPoints() map[model.Outcome]float64 {
	return map[model.Outcome]float64{
		model.OutcomeSuccess: 100,
		model.OutcomeForced:  50,
		model.OutcomeFail:    0,
		model.OutcomeSkipped: 0,
	}
}

// Option applies a configuration option to the OutcomeScorer.
type Option func(*OutcomeScorer)

// WithPoints overrides base points for some outcomes.
func WithPoints(points map[model.Outcome]float64) Option {
	return func(s *OutcomeScorer) {
		for o, p := range points {
			s.points[o] = p
		}
	}
}

// WithEvaluationWeightsFromConfig sets weights per evaluation id.
func WithEvaluationWeightsFromConfig(weights map[string]float64, defaultWeight float64) Option {
	return func(s *OutcomeScorer) {
		s.weights = make(map[string]float64)
		for id, w := range weights {
			if w > 0 {
				s.weights[id] = w
			}
		}
		if defaultWeight > 0 {
			s.defaultWeight = defaultWeight
		}
	}
}

// Input abstracts the fields needed for scoring.
type Input struct {
	Procedure model.Procedure
	Outcome   model.Outcome
}

// Result contains the computed score and the weight it carries in summaries.
type Result struct {
	Score  float64
	Weight float64
}

// Scorer computes a score from an input.
type Scorer interface {
	Score(in Input) Result
}

// OutcomeScorer implements Scorer from outcome points and evaluation weights.
type OutcomeScorer struct {
	points        map[model.Outcome]float64
	weights       map[string]float64
	defaultWeight float64
}

// NewOutcomeScorer creates a scorer with configuration options.
func NewOutcomeScorer(opts ...Option) *OutcomeScorer {
	s := &OutcomeScorer{
		points:        DefaultPoints(),
		weights:       make(map[string]float64),
		defaultWeight: defaultWeight,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the score of one outcome. Weight comes from the configured
// evaluation weights, then the procedure's own weight, then the default.
func (s *OutcomeScorer) Score(in Input) Result {
	weight, ok := s.weights[in.Procedure.EvaluationID]
	if !ok {
		weight = in.Procedure.Weight
	}
	if weight <= 0 {
		weight = s.defaultWeight
	}
	score := math.Max(0, math.Min(maxScoreValue, s.points[in.Outcome]))
	return Result{Score: score, Weight: weight}
}

// Summary aggregates a session's evaluation records.
type Summary struct {
	Records  int                   `json:"records"`
	Weighted float64               `json:"weighted_score"`
	Outcomes map[model.Outcome]int `json:"outcomes"`
}

// Summarize computes the weighted mean score of records.
func Summarize(records []model.EvaluationRecord) Summary {
	sum := Summary{Records: len(records), Outcomes: map[model.Outcome]int{}}
	var total, weights float64
	for _, r := range records {
		sum.Outcomes[r.Outcome]++
		w := r.Weight
		if w <= 0 {
			w = defaultWeight
		}
		total += r.Score * w
		weights += w
	}
	if weights > 0 {
		sum.Weighted = math.Round(total/weights*100) / 100
	}
	return sum
}
