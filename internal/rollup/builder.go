package rollup

import (
	"sort"
	"strings"
	"time"

	"github.com/sam-warren/cedhtools/internal/identity"
	"github.com/sam-warren/cedhtools/internal/models"
	"github.com/sam-warren/cedhtools/internal/stats"
)

// deckSummary is what the builder needs from an eligible deck
type deckSummary struct {
	key   identity.Key
	cards []string
}

// Dataset is the raw input of a refresh. It is loaded once and shared
// read-only by every slice build.
type Dataset struct {
	decks     map[string]deckSummary
	standings []models.LinkedStanding
	printings map[string]string
	LoadedAt  time.Time
}

// NewDataset keeps eligible decks and reduces them to their commander key
// and distinct non-commander cards.
func NewDataset(decks []models.Deck, standings []models.LinkedStanding, loadedAt time.Time) *Dataset {
	ds := &Dataset{
		decks:     make(map[string]deckSummary, len(decks)),
		standings: standings,
		printings: make(map[string]string),
		LoadedAt:  loadedAt,
	}

	for _, d := range decks {
		if !d.IsEligible() {
			continue
		}
		key := identity.Canonicalize(d.CommanderIDs())
		if key.IsZero() {
			continue
		}

		commanders := make(map[string]bool, key.Size())
		for _, id := range key.IDs() {
			commanders[id] = true
		}

		seen := make(map[string]bool)
		var cards []string
		for _, c := range d.Cards {
			board := strings.ToLower(c.Board)
			if board != models.BoardMainboard && board != models.BoardCompanions {
				continue
			}
			if c.UniqueCardID == "" || commanders[c.UniqueCardID] || seen[c.UniqueCardID] {
				continue
			}
			seen[c.UniqueCardID] = true
			cards = append(cards, c.UniqueCardID)
		}

		ds.decks[d.ID] = deckSummary{key: key, cards: cards}
	}

	return ds
}

// DeckCount is the number of eligible decks
func (ds *Dataset) DeckCount() int {
	return len(ds.decks)
}

// CardIDs returns every distinct card played in an eligible deck, sorted
func (ds *Dataset) CardIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, d := range ds.decks {
		for _, id := range d.cards {
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
	}
	sort.Strings(ids)
	return ids
}

// SetPrintings records the representative printing id of each card
func (ds *Dataset) SetPrintings(printings map[string]models.Printing) {
	for cardID, p := range printings {
		ds.printings[cardID] = p.ID
	}
}

// Builder computes slice snapshots from a dataset
type Builder struct {
	banDate       time.Time
	minSampleSize int
}

func NewBuilder(opts Options) *Builder {
	minSample := opts.MinSampleSize
	if minSample <= 0 {
		minSample = DefaultMinSample
	}
	return &Builder{
		banDate:       opts.BanDate,
		minSampleSize: minSample,
	}
}

func (b *Builder) MinSampleSize() int {
	return b.minSampleSize
}

// Build aggregates one slice. Only standings linked to eligible decks,
// inside the window and from large enough tournaments contribute. Each
// deck is counted once no matter how many standings it has.
func (b *Builder) Build(slice Slice, now time.Time, ds *Dataset) *Snapshot {
	cutoff, bounded := slice.Window.Cutoff(now, b.banDate)

	perDeck := make(map[string]stats.Outcomes)
	for _, st := range ds.standings {
		if _, ok := ds.decks[st.DeckID]; !ok {
			continue
		}
		if bounded && st.StartDate.Before(cutoff) {
			continue
		}
		if st.FieldSize < slice.MinFieldSize {
			continue
		}
		perDeck[st.DeckID] = perDeck[st.DeckID].Add(stats.Outcomes{
			Wins:   st.Wins,
			Draws:  st.Draws,
			Losses: st.Losses,
		})
	}

	commanders := make(map[identity.Key]Aggregate)
	cardGroups := make(map[identity.Key]map[string]Aggregate)
	for deckID, outcomes := range perDeck {
		d := ds.decks[deckID]

		agg := commanders[d.key]
		agg.DeckCount++
		agg.Outcomes = agg.Outcomes.Add(outcomes)
		commanders[d.key] = agg

		group, ok := cardGroups[d.key]
		if !ok {
			group = make(map[string]Aggregate)
			cardGroups[d.key] = group
		}
		for _, cardID := range d.cards {
			c := group[cardID]
			c.DeckCount++
			c.Outcomes = c.Outcomes.Add(outcomes)
			group[cardID] = c
		}
	}

	cards := make(map[identity.Key][]CardAggregate, len(cardGroups))
	for key, group := range cardGroups {
		var rows []CardAggregate
		for cardID, agg := range group {
			if agg.DeckCount < b.minSampleSize {
				continue
			}
			rows = append(rows, CardAggregate{
				CardID:     cardID,
				PrintingID: ds.printings[cardID],
				Aggregate:  agg,
			})
		}
		if len(rows) == 0 {
			continue
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].CardID < rows[j].CardID })
		cards[key] = rows
	}

	return &Snapshot{
		Slice:      slice,
		BuiltAt:    now,
		Commanders: commanders,
		Cards:      cards,
	}
}
