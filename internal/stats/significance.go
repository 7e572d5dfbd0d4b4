package stats

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// TestResult is a chi-square statistic and its p-value
type TestResult struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
}

// Neutral is returned whenever the test cannot be computed
func Neutral() TestResult {
	return TestResult{Statistic: 0, PValue: 1}
}

// CompareToBaseline tests a card's observed [wins, draws, losses] against
// the counts expected if its games followed the baseline rates.
func CompareToBaseline(card Outcomes, baseline Rates) TestResult {
	games := float64(card.Games())
	if games <= 0 {
		return Neutral()
	}
	observed := []float64{float64(card.Wins), float64(card.Draws), float64(card.Losses)}
	expected := []float64{baseline.Win * games, baseline.Draw * games, baseline.Loss * games}
	return GoodnessOfFit(observed, expected)
}

// GoodnessOfFit runs Pearson's chi-square test with len(observed)-1 degrees
// of freedom. Any zero expected cell makes the result neutral.
func GoodnessOfFit(observed, expected []float64) TestResult {
	if len(observed) < 2 || len(observed) != len(expected) {
		return Neutral()
	}
	for _, e := range expected {
		if e <= 0 || math.IsNaN(e) {
			return Neutral()
		}
	}

	statistic := stat.ChiSquare(observed, expected)
	return TestResult{
		Statistic: statistic,
		PValue:    ChiSquareSurvival(statistic, len(observed)-1),
	}
}

// ChiSquareSurvival is P(X >= x) for a chi-square distribution with df
// degrees of freedom.
func ChiSquareSurvival(x float64, df int) float64 {
	if df <= 0 || math.IsNaN(x) || x <= 0 {
		return 1
	}
	return distuv.ChiSquared{K: float64(df)}.Survival(x)
}
