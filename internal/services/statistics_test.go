package services

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sam-warren/cedhtools/internal/deck"
	"github.com/sam-warren/cedhtools/internal/identity"
	"github.com/sam-warren/cedhtools/internal/models"
	"github.com/sam-warren/cedhtools/internal/rollup"
	"github.com/sam-warren/cedhtools/internal/stats"
)

type fakePrintings map[string]models.Printing

func (f fakePrintings) GetByIDs(_ context.Context, ids []string) (map[string]models.Printing, error) {
	out := make(map[string]models.Printing)
	for _, id := range ids {
		if p, ok := f[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

// fakeResolver is keyed by card identity
type fakeResolver struct {
	byCard map[string]models.Printing
	err    error
}

func (f *fakeResolver) SelectMany(_ context.Context, cardIDs []string) (map[string]models.Printing, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make(map[string]models.Printing)
	for _, id := range cardIDs {
		if p, ok := f.byCard[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}

var (
	sinceBan0 = rollup.Slice{Window: rollup.WindowSinceBan, MinFieldSize: 0}
	all30     = rollup.Slice{Window: rollup.WindowAllTime, MinFieldSize: 30}
)

func agg(decks, wins, draws, losses int) rollup.Aggregate {
	return rollup.Aggregate{DeckCount: decks, Outcomes: stats.Outcomes{Wins: wins, Draws: draws, Losses: losses}}
}

func printing(id, cardID, name string, cmc float64) models.Printing {
	return models.Printing{ID: id, UniqueCardID: cardID, Name: name, CMC: cmc, Legality: models.LegalityLegal}
}

type fixture struct {
	store     *rollup.Store
	printings fakePrintings
	resolver  *fakeResolver
	svc       *StatisticsService
}

// newFixture serves commander C1 with the baseline of 100 decks going
// 50-10-40 and four card rows
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := rollup.NewStore([]rollup.Slice{
		sinceBan0,
		{Window: rollup.WindowSinceBan, MinFieldSize: 30},
		{Window: rollup.WindowAllTime, MinFieldSize: 0},
		all30,
	})

	c1 := identity.Canonicalize([]string{"C1"})
	_, err := store.Swap(&rollup.Snapshot{
		Slice:   sinceBan0,
		Version: 3,
		BuiltAt: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC),
		Commanders: map[identity.Key]rollup.Aggregate{
			c1: agg(100, 50, 10, 40),
			identity.Canonicalize([]string{"P1", "P2"}): agg(40, 10, 2, 28),
		},
		Cards: map[identity.Key][]rollup.CardAggregate{
			c1: {
				{CardID: "W", PrintingID: "", Aggregate: agg(8, 4, 0, 4)},
				{CardID: "X", PrintingID: "x-p1", Aggregate: agg(20, 14, 2, 4)},
				{CardID: "Y", PrintingID: "y-p1", Aggregate: agg(10, 5, 1, 4)},
				{CardID: "Z", PrintingID: "z-gone", Aggregate: agg(6, 3, 0, 3)},
			},
		},
	})
	require.NoError(t, err)

	_, err = store.Swap(&rollup.Snapshot{
		Slice:      all30,
		Version:    1,
		Commanders: map[identity.Key]rollup.Aggregate{},
		Cards:      map[identity.Key][]rollup.CardAggregate{},
	})
	require.NoError(t, err)

	printings := fakePrintings{
		"x-p1": printing("x-p1", "X", "Xenagos", 4),
		"y-p1": printing("y-p1", "Y", "Yawgmoth's Will", 3),
	}
	resolver := &fakeResolver{byCard: map[string]models.Printing{
		"C1": printing("c1-p1", "C1", "Kinnan", 2),
		"P1": printing("p1-p1", "P1", "Tymna", 2),
		"P2": printing("p2-p1", "P2", "Kraum", 5),
		"Z":  printing("z-p2", "Z", "Zuran Orb", 0),
	}}

	return &fixture{
		store:     store,
		printings: printings,
		resolver:  resolver,
		svc:       NewStatisticsService(store, printings, resolver, rollup.WindowSinceBan),
	}
}

func findCard(t *testing.T, cards []models.CardStat, id string) models.CardStat {
	t.Helper()
	for _, c := range cards {
		if c.UniqueCardID == id {
			return c
		}
	}
	t.Fatalf("card %s not found in %v", id, cards)
	return models.CardStat{}
}

func TestCommanderStatistics_BaselineAndSignificance(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.CommanderStatistics(context.Background(), Query{CommanderIDs: []string{"C1"}})
	require.NoError(t, err)

	assert.Equal(t, "C1", resp.CommanderKey)
	assert.Equal(t, string(rollup.WindowSinceBan), resp.Window)
	assert.Equal(t, uint64(3), resp.SnapshotVersion)
	assert.Equal(t, 100, resp.Baseline.SampleSize.TotalDecks)
	assert.Equal(t, 100, resp.Baseline.SampleSize.TotalGames)
	assert.InDelta(t, 0.5, resp.Baseline.Rates.Win, 1e-12)
	assert.InDelta(t, 0.1, resp.Baseline.Rates.Draw, 1e-12)
	assert.InDelta(t, 0.4, resp.Baseline.Rates.Loss, 1e-12)

	x := findCard(t, resp.Cards.Other, "X")
	assert.Equal(t, "Xenagos", x.Name)
	assert.Equal(t, 20, x.DecksWithCard)
	assert.InDelta(t, 0.2, x.InclusionRate, 1e-12)
	assert.InDelta(t, 0.7, x.Performance.CardWinRate, 1e-12)
	assert.InDelta(t, 0.5, x.Performance.DeckWinRate, 1e-12)
	assert.InDelta(t, 20.0, x.Performance.WinRateDiff, 1e-9)
	assert.InDelta(t, 3.6, x.Performance.Significance.Statistic, 1e-9)
	assert.InDelta(t, math.Exp(-1.8), x.Performance.Significance.PValue, 1e-9)
}

func TestCommanderStatistics_PrintingResolution(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.CommanderStatistics(context.Background(), Query{CommanderIDs: []string{"C1"}})
	require.NoError(t, err)

	ids := make([]string, 0, len(resp.Cards.Other))
	for _, c := range resp.Cards.Other {
		ids = append(ids, c.UniqueCardID)
	}
	// W has no printing anywhere, Z falls back to the selector. Sorted by
	// mana value then name.
	assert.Equal(t, []string{"Z", "Y", "X"}, ids)
	assert.Equal(t, "z-p2", findCard(t, resp.Cards.Other, "Z").ScryfallID)

	for _, b := range deck.TypeBuckets() {
		list, ok := resp.Cards.ByTypeBucket[string(b)]
		assert.True(t, ok, "bucket %s present", b)
		assert.Empty(t, list)
	}
}

func TestCommanderStatistics_BannedStoredPrinting(t *testing.T) {
	f := newFixture(t)
	banned := f.printings["y-p1"]
	banned.Legality = models.LegalityBanned
	f.printings["y-p1"] = banned

	resp, err := f.svc.CommanderStatistics(context.Background(), Query{CommanderIDs: []string{"C1"}})
	require.NoError(t, err)
	for _, c := range resp.Cards.Other {
		assert.NotEqual(t, "Y", c.UniqueCardID, "banned printing without a legal fallback is dropped")
	}

	f.resolver.byCard["Y"] = printing("y-p2", "Y", "Yawgmoth's Will", 3)
	resp, err = f.svc.CommanderStatistics(context.Background(), Query{CommanderIDs: []string{"C1"}})
	require.NoError(t, err)
	assert.Equal(t, "y-p2", findCard(t, resp.Cards.Other, "Y").ScryfallID)
}

func TestCommanderStatistics_OrderInvariantKey(t *testing.T) {
	f := newFixture(t)

	a, err := f.svc.CommanderStatistics(context.Background(), Query{CommanderIDs: []string{"P1", "P2"}})
	require.NoError(t, err)
	b, err := f.svc.CommanderStatistics(context.Background(), Query{CommanderIDs: []string{"P2", " P1", "P2"}})
	require.NoError(t, err)

	assert.Equal(t, a.CommanderKey, b.CommanderKey)
	assert.Equal(t, 40, b.Baseline.SampleSize.TotalDecks)

	require.Len(t, b.Commanders, 2)
	assert.Equal(t, "Kraum", b.Commanders[0].Name)
	assert.Equal(t, "Tymna", b.Commanders[1].Name)
}

func TestCommanderStatistics_NoData(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.CommanderStatistics(context.Background(), Query{
		CommanderIDs: []string{"C1"},
		Window:       rollup.WindowAllTime,
		MinFieldSize: 30,
	})
	require.NoError(t, err)

	assert.Zero(t, resp.Baseline.SampleSize.TotalDecks)
	assert.Equal(t, models.OutcomeRates{}, resp.Baseline.Rates)
	assert.Empty(t, resp.Cards.Other)
	require.Len(t, resp.Commanders, 1)
	assert.Equal(t, "Kinnan", resp.Commanders[0].Name)
}

func TestCommanderStatistics_Decklist(t *testing.T) {
	f := newFixture(t)

	list := &deck.Decklist{
		Format: models.FormatCommander,
		Boards: map[string][]deck.Entry{
			models.BoardCommanders: {{UniqueCardID: "C1", Quantity: 1}},
			models.BoardMainboard: {
				{UniqueCardID: "X", TypeCode: "3", Quantity: 1},
				{UniqueCardID: "Z", TypeCode: "42", Quantity: 1},
				{UniqueCardID: "island", TypeCode: "8", Quantity: 97},
			},
		},
	}

	resp, err := f.svc.CommanderStatistics(context.Background(), Query{Decklist: list})
	require.NoError(t, err)

	creatures := resp.Cards.ByTypeBucket[string(deck.BucketCreature)]
	require.Len(t, creatures, 1)
	assert.Equal(t, "X", creatures[0].UniqueCardID)
	assert.Equal(t, "3", creatures[0].TypeBucket)

	unknown := resp.Cards.ByTypeBucket[string(deck.BucketUnknown)]
	require.Len(t, unknown, 1)
	assert.Equal(t, "Z", unknown[0].UniqueCardID)

	require.Len(t, resp.Cards.Other, 1)
	assert.Equal(t, "Y", resp.Cards.Other[0].UniqueCardID)
	assert.Empty(t, resp.Cards.ByTypeBucket[string(deck.BucketLand)], "island has no rollup row")
}

func TestCommanderStatistics_InputErrors(t *testing.T) {
	f := newFixture(t)
	valid := &deck.Decklist{
		Format: models.FormatCommander,
		Boards: map[string][]deck.Entry{
			models.BoardCommanders: {{UniqueCardID: "C1", Quantity: 1}},
			models.BoardMainboard:  {{UniqueCardID: "island", Quantity: 99}},
		},
	}

	tests := []struct {
		name  string
		query Query
		want  error
	}{
		{"no commanders", Query{}, ErrNoCommanders},
		{"blank commanders", Query{CommanderIDs: []string{" ", ""}}, ErrNoCommanders},
		{"three commanders", Query{CommanderIDs: []string{"a", "b", "c"}}, ErrTooManyCommanders},
		{"ids and decklist", Query{CommanderIDs: []string{"C1"}, Decklist: valid}, ErrAmbiguousQuery},
		{"short decklist", Query{Decklist: &deck.Decklist{Format: models.FormatCommander}}, deck.ErrInvalidDeck},
		{"unconfigured window", Query{CommanderIDs: []string{"C1"}, Window: rollup.WindowMonth}, ErrInvalidWindow},
		{"unconfigured size", Query{CommanderIDs: []string{"C1"}, MinFieldSize: 64}, ErrInvalidFieldSize},
		{"negative size", Query{CommanderIDs: []string{"C1"}, MinFieldSize: -1}, ErrInvalidFieldSize},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CommanderStatistics(context.Background(), tt.query)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsInputError(err))
		})
	}
}

func TestCommanderStatistics_StoreUnavailable(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CommanderStatistics(context.Background(), Query{
		CommanderIDs: []string{"C1"},
		Window:       rollup.WindowSinceBan,
		MinFieldSize: 30,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, rollup.ErrSliceUnavailable)
	assert.False(t, IsInputError(err))
}

func TestCommanderStatistics_ResolverError(t *testing.T) {
	f := newFixture(t)
	f.resolver.err = errors.New("database is gone")

	_, err := f.svc.CommanderStatistics(context.Background(), Query{CommanderIDs: []string{"C1"}})
	require.Error(t, err)
	assert.False(t, IsInputError(err))
}

func TestCardStatistics(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.CardStatistics(context.Background(), Query{CommanderIDs: []string{"C1"}}, "X")
	require.NoError(t, err)
	assert.Equal(t, "X", resp.Card.UniqueCardID)
	assert.InDelta(t, 3.6, resp.Card.Performance.Significance.Statistic, 1e-9)
	assert.Equal(t, 100, resp.Baseline.SampleSize.TotalDecks)

	_, err = f.svc.CardStatistics(context.Background(), Query{CommanderIDs: []string{"C1"}}, "W")
	assert.ErrorIs(t, err, ErrCardNotFound, "card without a printing")

	_, err = f.svc.CardStatistics(context.Background(), Query{CommanderIDs: []string{"C1"}}, "nope")
	assert.ErrorIs(t, err, ErrCardNotFound)
}

func TestTopCommanders(t *testing.T) {
	f := newFixture(t)

	resp, err := f.svc.TopCommanders(context.Background(), "", 0, 0, "")
	require.NoError(t, err)
	require.Len(t, resp.Commanders, 2)

	assert.Equal(t, "C1", resp.Commanders[0].CommanderKey)
	assert.Equal(t, []string{"Kinnan"}, resp.Commanders[0].Names)
	assert.Equal(t, "P1+P2", resp.Commanders[1].CommanderKey)
	assert.Equal(t, []string{"Tymna", "Kraum"}, resp.Commanders[1].Names)

	limited, err := f.svc.TopCommanders(context.Background(), rollup.WindowSinceBan, 0, 1, "")
	require.NoError(t, err)
	assert.Len(t, limited.Commanders, 1)

	_, err = f.svc.TopCommanders(context.Background(), rollup.WindowYear, 0, 10, "")
	assert.ErrorIs(t, err, ErrInvalidWindow)
}

func TestTopCommanders_Search(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name   string
		search string
		want   []string
	}{
		{"matches one partner", "kra", []string{"P1+P2"}},
		{"case insensitive", "KINNAN", []string{"C1"}},
		{"common substring", "an", []string{"C1"}},
		{"no match", "zur", []string{}},
		{"too short", "k", []string{}},
		{"blank search lists all", "  ", []string{"C1", "P1+P2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := f.svc.TopCommanders(context.Background(), "", 0, 0, tt.search)
			require.NoError(t, err)

			keys := []string{}
			for _, c := range resp.Commanders {
				keys = append(keys, c.CommanderKey)
			}
			assert.Equal(t, tt.want, keys)
		})
	}

	limited, err := f.svc.TopCommanders(context.Background(), "", 0, 1, "ym")
	require.NoError(t, err)
	require.Len(t, limited.Commanders, 1)
	assert.Equal(t, "P1+P2", limited.Commanders[0].CommanderKey, "limit applies after filtering")
	assert.Equal(t, "ym", limited.Search)
}
