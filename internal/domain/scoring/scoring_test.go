package scoring_test

import (
	"testing"

	"github.com/okian/jumptrain/internal/domain/model"
	scoring "github.com/okian/jumptrain/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

func TestOutcomeScorer_Score(t *testing.T) {
	Convey("Given a scorer with evaluation weights", t, func() {
		scorer := scoring.NewOutcomeScorer(
			scoring.WithEvaluationWeightsFromConfig(map[string]float64{
				"eval-exit":    3,
				"eval-ignored": -1,
			}, 1),
		)

		Convey("When scoring outcomes", func() {
			exit := model.Procedure{ID: "go-jump", EvaluationID: "eval-exit", Weight: 2}

			Convey("Then base points follow the outcome", func() {
				So(scorer.Score(scoring.Input{Procedure: exit, Outcome: model.OutcomeSuccess}).Score, ShouldEqual, 100)
				So(scorer.Score(scoring.Input{Procedure: exit, Outcome: model.OutcomeForced}).Score, ShouldEqual, 50)
				So(scorer.Score(scoring.Input{Procedure: exit, Outcome: model.OutcomeFail}).Score, ShouldEqual, 0)
				So(scorer.Score(scoring.Input{Procedure: exit, Outcome: model.OutcomeSkipped}).Score, ShouldEqual, 0)
			})

			Convey("Then configured weights win over procedure weights", func() {
				So(scorer.Score(scoring.Input{Procedure: exit, Outcome: model.OutcomeSuccess}).Weight, ShouldEqual, 3)
				own := model.Procedure{EvaluationID: "eval-landing", Weight: 2}
				So(scorer.Score(scoring.Input{Procedure: own, Outcome: model.OutcomeSuccess}).Weight, ShouldEqual, 2)
				plain := model.Procedure{EvaluationID: "eval-ignored"}
				So(scorer.Score(scoring.Input{Procedure: plain, Outcome: model.OutcomeSuccess}).Weight, ShouldEqual, 1)
			})
		})

		Convey("When points are overridden out of range", func() {
			s := scoring.NewOutcomeScorer(scoring.WithPoints(map[model.Outcome]float64{model.OutcomeForced: 250}))
			So(s.Score(scoring.Input{Outcome: model.OutcomeForced}).Score, ShouldEqual, 100)
		})
	})
}

func TestSummarize(t *testing.T) {
	Convey("Given a session's records", t, func() {
		records := []model.EvaluationRecord{
			{Outcome: model.OutcomeSuccess, Score: 100, Weight: 3},
			{Outcome: model.OutcomeFail, Score: 0, Weight: 1},
			{Outcome: model.OutcomeSkipped, Score: 0},
		}

		Convey("Then the weighted mean and outcome counts are computed", func() {
			sum := scoring.Summarize(records)
			So(sum.Records, ShouldEqual, 3)
			So(sum.Weighted, ShouldEqual, 60)
			So(sum.Outcomes[model.OutcomeSkipped], ShouldEqual, 1)
		})

		Convey("Then an empty session scores zero", func() {
			So(scoring.Summarize(nil).Weighted, ShouldEqual, 0)
		})
	})
}
