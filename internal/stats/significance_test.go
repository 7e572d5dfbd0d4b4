package stats

import (
	"math"
	"testing"
)

const tolerance = 1e-9

func almostEqual(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps
}

func TestRatesOf(t *testing.T) {
	rates := RatesOf(Outcomes{Wins: 50, Draws: 10, Losses: 40})
	if !almostEqual(rates.Win, 0.5, tolerance) || !almostEqual(rates.Draw, 0.1, tolerance) || !almostEqual(rates.Loss, 0.4, tolerance) {
		t.Fatalf("RatesOf = %+v, want {0.5 0.1 0.4}", rates)
	}
}

func TestRatesOf_SumToOne(t *testing.T) {
	cases := []Outcomes{
		{Wins: 1},
		{Wins: 3, Draws: 7, Losses: 11},
		{Draws: 2},
		{Wins: 1234, Draws: 56, Losses: 789},
	}
	for _, o := range cases {
		r := RatesOf(o)
		if sum := r.Win + r.Draw + r.Loss; !almostEqual(sum, 1, tolerance) {
			t.Errorf("RatesOf(%+v) sums to %v, want 1", o, sum)
		}
	}
}

func TestRatesOf_NoGames(t *testing.T) {
	if r := RatesOf(Outcomes{}); r != (Rates{}) {
		t.Fatalf("RatesOf(zero) = %+v, want all zero", r)
	}
	if w := WinRate(Outcomes{}); w != 0 {
		t.Fatalf("WinRate(zero) = %v, want 0", w)
	}
}

func TestCompareToBaseline_ScenarioB(t *testing.T) {
	baseline := RatesOf(Outcomes{Wins: 50, Draws: 10, Losses: 40})
	card := Outcomes{Wins: 14, Draws: 2, Losses: 4}

	if w := WinRate(card); !almostEqual(w, 0.7, tolerance) {
		t.Fatalf("card win rate = %v, want 0.7", w)
	}

	got := CompareToBaseline(card, baseline)

	// (14-10)^2/10 + (2-2)^2/2 + (4-8)^2/8
	wantStat := 1.6 + 0 + 2.0
	if !almostEqual(got.Statistic, wantStat, 1e-9) {
		t.Fatalf("statistic = %v, want %v", got.Statistic, wantStat)
	}
	if !almostEqual(got.PValue, math.Exp(-wantStat/2), 1e-12) {
		t.Fatalf("p-value = %v, want %v", got.PValue, math.Exp(-wantStat/2))
	}
}

func TestCompareToBaseline_Degenerate(t *testing.T) {
	tests := []struct {
		name     string
		card     Outcomes
		baseline Rates
	}{
		{"card with no games", Outcomes{}, Rates{Win: 0.5, Draw: 0.1, Loss: 0.4}},
		{"baseline with no games", Outcomes{Wins: 3, Losses: 1}, Rates{}},
		{"baseline never drew", Outcomes{Wins: 3, Draws: 1, Losses: 1}, Rates{Win: 0.5, Loss: 0.5}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CompareToBaseline(tt.card, tt.baseline)
			if got != Neutral() {
				t.Errorf("CompareToBaseline = %+v, want neutral %+v", got, Neutral())
			}
		})
	}
}

func TestGoodnessOfFit_MismatchedInput(t *testing.T) {
	if got := GoodnessOfFit([]float64{1, 2}, []float64{1}); got != Neutral() {
		t.Fatalf("mismatched lengths gave %+v", got)
	}
	if got := GoodnessOfFit([]float64{1}, []float64{1}); got != Neutral() {
		t.Fatalf("single cell gave %+v", got)
	}
}

func TestChiSquareSurvival(t *testing.T) {
	tests := []struct {
		name string
		x    float64
		df   int
		want float64
		eps  float64
	}{
		{"zero statistic", 0, 2, 1, 0},
		{"df 2 closed form", 3.6, 2, math.Exp(-1.8), 1e-12},
		{"df 1 critical value", 3.841458820694124, 1, 0.05, 1e-7},
		{"df 3 critical value", 7.814727903251178, 3, 0.05, 1e-7},
		{"df 4 critical value", 9.487729036781154, 4, 0.05, 1e-7},
		{"df 1 large statistic", 10.827566170662733, 1, 0.001, 1e-8},
		{"df 5 small statistic", 1.1454762260617692, 5, 0.95, 1e-7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChiSquareSurvival(tt.x, tt.df)
			if !almostEqual(got, tt.want, tt.eps) {
				t.Errorf("ChiSquareSurvival(%v, %d) = %v, want %v", tt.x, tt.df, got, tt.want)
			}
		})
	}
}

func TestInclusionRate(t *testing.T) {
	if got := InclusionRate(20, 100); !almostEqual(got, 0.2, tolerance) {
		t.Errorf("InclusionRate(20, 100) = %v, want 0.2", got)
	}
	if got := InclusionRate(3, 0); got != 0 {
		t.Errorf("InclusionRate(3, 0) = %v, want 0", got)
	}
}
