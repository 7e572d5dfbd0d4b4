package models

import (
	"time"
)

// SampleSize describes how many decks back a baseline
type SampleSize struct {
	TotalDecks int `json:"total_decks"`
	TotalGames int `json:"total_games"`
}

// OutcomeRates are win/draw/loss fractions of all games played
type OutcomeRates struct {
	Win  float64 `json:"win"`
	Draw float64 `json:"draw"`
	Loss float64 `json:"loss"`
}

// Baseline is the commander-level performance every card is compared to
type Baseline struct {
	SampleSize SampleSize   `json:"sample_size"`
	Rates      OutcomeRates `json:"rates"`
}

// Significance is the result of the goodness-of-fit test of a card's
// outcomes against the baseline rates
type Significance struct {
	Statistic float64 `json:"statistic"`
	PValue    float64 `json:"p_value"`
}

type CardPerformance struct {
	CardWinRate  float64      `json:"card_win_rate"`
	DeckWinRate  float64      `json:"deck_win_rate"`
	WinRateDiff  float64      `json:"win_rate_diff"` // percentage points
	Significance Significance `json:"significance"`
}

// CardStat is one card's performance inside a commander identity
type CardStat struct {
	UniqueCardID  string          `json:"unique_card_id"`
	ScryfallID    string          `json:"scryfall_id"`
	Name          string          `json:"name"`
	TypeLine      string          `json:"type_line"`
	CMC           float64         `json:"cmc"`
	ManaCost      string          `json:"mana_cost"`
	ImageURL      string          `json:"image_url"`
	ImageURLLarge string          `json:"image_url_large"`
	Legality      string          `json:"legality"`
	ScryfallURI   string          `json:"scryfall_uri"`
	TypeBucket    string          `json:"type_bucket,omitempty"`
	DecksWithCard int             `json:"decks_with_card"`
	InclusionRate float64         `json:"inclusion_rate"`
	Wins          int             `json:"wins"`
	Draws         int             `json:"draws"`
	Losses        int             `json:"losses"`
	Performance   CardPerformance `json:"performance"`
}

// CardBuckets groups card statistics by the type bucket of the submitted
// deck. Cards not in the submitted deck go to Other.
type CardBuckets struct {
	ByTypeBucket map[string][]CardStat `json:"by_type_bucket"`
	Other        []CardStat            `json:"other"`
}

// CommanderDetail is the display metadata of one commander card
type CommanderDetail struct {
	UniqueCardID    string  `json:"unique_card_id"`
	ScryfallID      string  `json:"scryfall_id"`
	Name            string  `json:"name"`
	TypeLine        string  `json:"type_line"`
	CMC             float64 `json:"cmc"`
	ManaCost        string  `json:"mana_cost"`
	ImageURL        string  `json:"image_url"`
	ImageURLLarge   string  `json:"image_url_large"`
	ImageURLArtCrop string  `json:"image_url_art_crop"`
	ScryfallURI     string  `json:"scryfall_uri"`
}

// StatisticsResponse is the assembled answer for one commander identity
type StatisticsResponse struct {
	CommanderKey    string            `json:"commander_key"`
	Window          string            `json:"window"`
	MinFieldSize    int               `json:"min_field_size"`
	SnapshotVersion uint64            `json:"snapshot_version"`
	BuiltAt         time.Time         `json:"built_at"`
	Baseline        Baseline          `json:"baseline"`
	Cards           CardBuckets       `json:"cards"`
	Commanders      []CommanderDetail `json:"commanders"`
}

// CardStatisticsResponse is the single card view of a commander identity
type CardStatisticsResponse struct {
	CommanderKey string            `json:"commander_key"`
	Window       string            `json:"window"`
	MinFieldSize int               `json:"min_field_size"`
	Baseline     Baseline          `json:"baseline"`
	Card         CardStat          `json:"card"`
	Commanders   []CommanderDetail `json:"commanders"`
}

// CommanderSummary is one row of the commander leaderboard
type CommanderSummary struct {
	CommanderKey string       `json:"commander_key"`
	CommanderIDs []string     `json:"commander_ids"`
	Names        []string     `json:"names"`
	DeckCount    int          `json:"deck_count"`
	Wins         int          `json:"wins"`
	Draws        int          `json:"draws"`
	Losses       int          `json:"losses"`
	Rates        OutcomeRates `json:"rates"`
}

// CommanderListResponse is the leaderboard for one slice
type CommanderListResponse struct {
	Window       string             `json:"window"`
	MinFieldSize int                `json:"min_field_size"`
	Search       string             `json:"search,omitempty"`
	Commanders   []CommanderSummary `json:"commanders"`
}

// DatabaseStatistics are site-wide record counts
type DatabaseStatistics struct {
	Tournaments       int64 `json:"tournaments"`
	TournamentEntries int64 `json:"tournament_entries"`
	Cards             int64 `json:"cards"`
	Decks             int64 `json:"decks"`
}
