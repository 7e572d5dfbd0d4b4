package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sam-warren/cedhtools/internal/deck"
	"github.com/sam-warren/cedhtools/internal/models"
)

// StoredDecks loads imported decks, nil when the deck is unknown
type StoredDecks interface {
	GetByID(ctx context.Context, id string) (*models.Deck, error)
}

// RemoteDecks fetches a public decklist from the deck provider
type RemoteDecks interface {
	FetchDeck(ctx context.Context, publicID string) (*deck.Decklist, error)
}

// DeckService resolves deck references, preferring decks already imported
// over a call to the provider
type DeckService struct {
	stored    StoredDecks
	printings PrintingLookup
	remote    RemoteDecks
}

func NewDeckService(stored StoredDecks, printings PrintingLookup, remote RemoteDecks) *DeckService {
	return &DeckService{
		stored:    stored,
		printings: printings,
		remote:    remote,
	}
}

// FetchDeck returns the imported deck with this id, or fetches it. A
// failing local lookup falls through to the provider.
func (s *DeckService) FetchDeck(ctx context.Context, publicID string) (*deck.Decklist, error) {
	stored, err := s.stored.GetByID(ctx, publicID)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("deck_id", publicID).Msg("stored deck lookup failed, fetching instead")
	}
	if err == nil && stored != nil {
		list, err := s.fromStored(ctx, stored)
		if err != nil {
			return nil, err
		}
		zerolog.Ctx(ctx).Debug().Str("deck_id", publicID).Msg("using stored deck")
		return list, nil
	}
	return s.remote.FetchDeck(ctx, publicID)
}

// fromStored converts an imported deck. Names and type buckets come from
// the printing recorded on each entry.
func (s *DeckService) fromStored(ctx context.Context, d *models.Deck) (*deck.Decklist, error) {
	seen := make(map[string]bool)
	var printingIDs []string
	for _, c := range d.Cards {
		if c.PrintingID != "" && !seen[c.PrintingID] {
			seen[c.PrintingID] = true
			printingIDs = append(printingIDs, c.PrintingID)
		}
	}

	printings := map[string]models.Printing{}
	if len(printingIDs) > 0 {
		var err error
		printings, err = s.printings.GetByIDs(ctx, printingIDs)
		if err != nil {
			return nil, fmt.Errorf("failed to load printings of deck %s: %w", d.ID, err)
		}
	}

	list := &deck.Decklist{
		ID:     d.ID,
		Name:   d.Name,
		Format: strings.ToLower(d.Format),
		Boards: make(map[string][]deck.Entry),
	}
	for _, c := range d.Cards {
		board := strings.ToLower(c.Board)
		entry := deck.Entry{
			UniqueCardID: c.UniqueCardID,
			PrintingID:   c.PrintingID,
			Quantity:     c.Quantity,
			TypeCode:     string(deck.BucketUnknown),
		}
		if p, ok := printings[c.PrintingID]; ok {
			entry.Name = p.Name
			entry.TypeCode = string(deck.BucketForTypeLine(p.TypeLine))
		}
		list.Boards[board] = append(list.Boards[board], entry)
	}
	for board := range list.Boards {
		entries := list.Boards[board]
		sort.Slice(entries, func(i, j int) bool { return entries[i].UniqueCardID < entries[j].UniqueCardID })
	}
	return list, nil
}
