package rollup

import (
	"time"

	"github.com/sam-warren/cedhtools/internal/identity"
	"github.com/sam-warren/cedhtools/internal/stats"
)

// Aggregate is the deck count and summed results of one rollup row
type Aggregate struct {
	DeckCount int `json:"deck_count"`
	stats.Outcomes
}

// CardAggregate is a card-level row within a commander identity
type CardAggregate struct {
	CardID     string `json:"unique_card_id"`
	PrintingID string `json:"printing_id,omitempty"`
	Aggregate
}

// Snapshot is an immutable, fully built slice. Readers may hold on to a
// snapshot while a newer one is swapped in.
type Snapshot struct {
	Slice      Slice
	Version    uint64
	BuildID    string
	BuiltAt    time.Time
	Commanders map[identity.Key]Aggregate
	Cards      map[identity.Key][]CardAggregate
}

// CardRowCount is the number of card-level rows across all commanders
func (s *Snapshot) CardRowCount() int {
	n := 0
	for _, rows := range s.Cards {
		n += len(rows)
	}
	return n
}

// Commander returns the commander-level row for a key
func (s *Snapshot) Commander(key identity.Key) (Aggregate, bool) {
	agg, ok := s.Commanders[key]
	return agg, ok
}

// CardsFor returns a copy of the card-level rows for a key, sorted by card
func (s *Snapshot) CardsFor(key identity.Key) []CardAggregate {
	rows := s.Cards[key]
	if len(rows) == 0 {
		return nil
	}
	out := make([]CardAggregate, len(rows))
	copy(out, rows)
	return out
}
