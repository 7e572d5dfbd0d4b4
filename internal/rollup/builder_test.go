package rollup

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sam-warren/cedhtools/internal/identity"
	"github.com/sam-warren/cedhtools/internal/models"
	"github.com/sam-warren/cedhtools/internal/stats"
)

var buildTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// commanderDeck builds an eligible deck with the given commanders and
// non-commander cards, padded with basic lands to 100.
func commanderDeck(id string, commanders []string, cards ...string) models.Deck {
	d := models.Deck{ID: id, Format: models.FormatCommander}
	for _, c := range commanders {
		d.Cards = append(d.Cards, models.DeckCard{DeckID: id, Board: models.BoardCommanders, UniqueCardID: c, Quantity: 1})
	}
	for _, c := range cards {
		d.Cards = append(d.Cards, models.DeckCard{DeckID: id, Board: models.BoardMainboard, UniqueCardID: c, Quantity: 1})
	}
	remaining := models.CommanderDeckSize - len(commanders) - len(cards)
	d.Cards = append(d.Cards, models.DeckCard{DeckID: id, Board: models.BoardMainboard, UniqueCardID: "basic-land", Quantity: remaining})
	return d
}

func standing(deckID string, w, d, l int, start time.Time, fieldSize int) models.LinkedStanding {
	return models.LinkedStanding{DeckID: deckID, Wins: w, Draws: d, Losses: l, StartDate: start, FieldSize: fieldSize}
}

func allTime(minSize int) Slice {
	return Slice{Window: WindowAllTime, MinFieldSize: minSize}
}

func TestBuild_OrderInvariantCommanderKey(t *testing.T) {
	decks := []models.Deck{
		commanderDeck("d1", []string{"A", "B"}),
		commanderDeck("d2", []string{"B", "A"}),
	}
	standings := []models.LinkedStanding{
		standing("d1", 3, 1, 2, buildTime, 50),
		standing("d2", 4, 0, 3, buildTime, 50),
	}

	snap := NewBuilder(DefaultOptions()).Build(allTime(0), buildTime, NewDataset(decks, standings, buildTime))

	require.Len(t, snap.Commanders, 1)
	agg, ok := snap.Commander(identity.Canonicalize([]string{"A", "B"}))
	require.True(t, ok)
	assert.Equal(t, 2, agg.DeckCount)
	assert.Equal(t, stats.Outcomes{Wins: 7, Draws: 1, Losses: 5}, agg.Outcomes)
}

func TestBuild_SmallSampleSuppressed(t *testing.T) {
	var decks []models.Deck
	var standings []models.LinkedStanding
	for i := 0; i < 6; i++ {
		id := fmt.Sprintf("deck-%d", i)
		cards := []string{"X"}
		if i < 3 {
			cards = append(cards, "Y")
		}
		decks = append(decks, commanderDeck(id, []string{"C1"}, cards...))
		standings = append(standings, standing(id, 1, 0, 0, buildTime, 40))
	}

	snap := NewBuilder(DefaultOptions()).Build(allTime(0), buildTime, NewDataset(decks, standings, buildTime))

	rows := snap.CardsFor("C1")
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.CardID)
	}
	assert.Contains(t, ids, "X")
	assert.NotContains(t, ids, "Y", "card in 3 decks must be suppressed at threshold 5")
	for _, r := range rows {
		assert.GreaterOrEqual(t, r.DeckCount, 5)
	}
}

func TestBuild_CardTotalsNeverExceedBaseline(t *testing.T) {
	var decks []models.Deck
	var standings []models.LinkedStanding
	for i := 0; i < 12; i++ {
		id := fmt.Sprintf("deck-%d", i)
		cards := []string{"sol-ring"}
		if i%2 == 0 {
			cards = append(cards, "rhystic-study")
		}
		decks = append(decks, commanderDeck(id, []string{"kraum", "tymna"}, cards...))
		standings = append(standings,
			standing(id, i%4, 1, 3, buildTime.AddDate(0, 0, -i), 64),
			standing(id, 2, 0, 2, buildTime.AddDate(0, -2, 0), 120),
		)
	}
	// unlinked deck reference is ignored
	standings = append(standings, standing("missing", 10, 0, 0, buildTime, 64))

	b := NewBuilder(DefaultOptions())
	ds := NewDataset(decks, standings, buildTime)
	for _, slice := range DefaultOptions().Slices() {
		snap := b.Build(slice, buildTime, ds)
		for key, baseline := range snap.Commanders {
			for _, row := range snap.Cards[key] {
				assert.LessOrEqual(t, row.Wins, baseline.Wins, slice.String())
				assert.LessOrEqual(t, row.Draws, baseline.Draws, slice.String())
				assert.LessOrEqual(t, row.Losses, baseline.Losses, slice.String())
				assert.LessOrEqual(t, row.Games(), baseline.Games(), slice.String())
				assert.LessOrEqual(t, row.DeckCount, baseline.DeckCount, slice.String())
			}
		}
	}
}

func TestBuild_WindowAndFieldSize(t *testing.T) {
	decks := []models.Deck{
		commanderDeck("recent-small", []string{"C"}),
		commanderDeck("recent-large", []string{"C"}),
		commanderDeck("old-large", []string{"C"}),
	}
	standings := []models.LinkedStanding{
		standing("recent-small", 1, 0, 0, buildTime.AddDate(0, 0, -10), 20),
		standing("recent-large", 1, 0, 0, buildTime.AddDate(0, 0, -10), 80),
		standing("old-large", 1, 0, 0, buildTime.AddDate(-2, 0, 0), 80),
	}
	ds := NewDataset(decks, standings, buildTime)
	b := NewBuilder(DefaultOptions())

	tests := []struct {
		slice     Slice
		wantDecks int
	}{
		{Slice{WindowAllTime, 0}, 3},
		{Slice{WindowAllTime, 60}, 2},
		{Slice{WindowMonth, 0}, 2},
		{Slice{WindowMonth, 30}, 1},
		{Slice{WindowYear, 100}, 0},
		{Slice{WindowSinceBan, 0}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.slice.String(), func(t *testing.T) {
			snap := b.Build(tt.slice, buildTime, ds)
			agg, ok := snap.Commander("C")
			if tt.wantDecks == 0 {
				assert.False(t, ok)
				return
			}
			require.True(t, ok)
			assert.Equal(t, tt.wantDecks, agg.DeckCount)
		})
	}
}

func TestBuild_DeckCountedOncePerCard(t *testing.T) {
	d := commanderDeck("d1", []string{"C"}, "X")
	// sideboard copies never count
	d.Cards = append(d.Cards, models.DeckCard{DeckID: "d1", Board: models.BoardSideboard, UniqueCardID: "X", Quantity: 1})
	standings := []models.LinkedStanding{
		standing("d1", 2, 0, 1, buildTime, 10),
		standing("d1", 1, 1, 1, buildTime, 10),
	}

	opts := DefaultOptions()
	opts.MinSampleSize = 1
	snap := NewBuilder(opts).Build(allTime(0), buildTime, NewDataset([]models.Deck{d}, standings, buildTime))

	rows := snap.CardsFor("C")
	var x *CardAggregate
	for i := range rows {
		if rows[i].CardID == "X" {
			x = &rows[i]
		}
	}
	require.NotNil(t, x)
	assert.Equal(t, 1, x.DeckCount)
	assert.Equal(t, stats.Outcomes{Wins: 3, Draws: 1, Losses: 2}, x.Outcomes)
}

func TestNewDataset_SkipsIneligibleDecks(t *testing.T) {
	short := commanderDeck("short", []string{"C"})
	short.Cards = short.Cards[:len(short.Cards)-1]
	wrongFormat := commanderDeck("modern", []string{"C"})
	wrongFormat.Format = "modern"

	ds := NewDataset([]models.Deck{commanderDeck("ok", []string{"C"}, "X"), short, wrongFormat}, nil, buildTime)

	assert.Equal(t, 1, ds.DeckCount())
	assert.Equal(t, []string{"X", "basic-land"}, ds.CardIDs())
}

func TestBuild_AttachesPrintings(t *testing.T) {
	var decks []models.Deck
	var standings []models.LinkedStanding
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("deck-%d", i)
		decks = append(decks, commanderDeck(id, []string{"C"}, "X", "Y"))
		standings = append(standings, standing(id, 1, 0, 1, buildTime, 0))
	}
	ds := NewDataset(decks, standings, buildTime)
	ds.SetPrintings(map[string]models.Printing{"X": {ID: "print-x"}})

	rows := NewBuilder(DefaultOptions()).Build(allTime(0), buildTime, ds).CardsFor("C")

	byID := make(map[string]CardAggregate)
	for _, r := range rows {
		byID[r.CardID] = r
	}
	assert.Equal(t, "print-x", byID["X"].PrintingID)
	assert.Empty(t, byID["Y"].PrintingID)
}
