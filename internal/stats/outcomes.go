package stats

// Outcomes are summed game results
type Outcomes struct {
	Wins   int `json:"wins"`
	Draws  int `json:"draws"`
	Losses int `json:"losses"`
}

func (o Outcomes) Games() int {
	return o.Wins + o.Draws + o.Losses
}

func (o Outcomes) Add(other Outcomes) Outcomes {
	return Outcomes{
		Wins:   o.Wins + other.Wins,
		Draws:  o.Draws + other.Draws,
		Losses: o.Losses + other.Losses,
	}
}

// Rates are outcome fractions. They sum to 1 when any game was played and
// are all zero otherwise.
type Rates struct {
	Win  float64 `json:"win"`
	Draw float64 `json:"draw"`
	Loss float64 `json:"loss"`
}

func RatesOf(o Outcomes) Rates {
	games := o.Games()
	if games <= 0 {
		return Rates{}
	}
	total := float64(games)
	return Rates{
		Win:  float64(o.Wins) / total,
		Draw: float64(o.Draws) / total,
		Loss: float64(o.Losses) / total,
	}
}

// WinRate is wins over all games, 0 when nothing was played
func WinRate(o Outcomes) float64 {
	return RatesOf(o).Win
}

// InclusionRate is the share of a commander's decks that run a card
func InclusionRate(cardDecks, totalDecks int) float64 {
	if totalDecks <= 0 {
		return 0
	}
	return float64(cardDecks) / float64(totalDecks)
}
