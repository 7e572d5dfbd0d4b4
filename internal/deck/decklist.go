// Package deck holds submitted decklists and classifies their cards for
// presentation.
package deck

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sam-warren/cedhtools/internal/models"
)

var ErrInvalidDeck = errors.New("invalid deck")

// ValidationError explains why a decklist cannot be analysed
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidDeck
}

// Entry is one card line of a board
type Entry struct {
	UniqueCardID string `json:"unique_card_id"`
	PrintingID   string `json:"scryfall_id,omitempty"`
	Name         string `json:"name,omitempty"`
	TypeCode     string `json:"type,omitempty"`
	Quantity     int    `json:"quantity"`
}

// Decklist is a deck submitted for analysis, keyed by board name
type Decklist struct {
	ID     string             `json:"id,omitempty"`
	Name   string             `json:"name,omitempty"`
	Format string             `json:"format"`
	Boards map[string][]Entry `json:"boards"`
}

// Board returns the entries of a board, matching the name case-insensitively
func (d Decklist) Board(name string) []Entry {
	if entries, ok := d.Boards[name]; ok {
		return entries
	}
	for board, entries := range d.Boards {
		if strings.EqualFold(board, name) {
			return entries
		}
	}
	return nil
}

// Count sums the quantities of a board. A missing quantity counts as one.
func (d Decklist) Count(board string) int {
	total := 0
	for _, e := range d.Board(board) {
		if e.Quantity <= 0 {
			total++
			continue
		}
		total += e.Quantity
	}
	return total
}

// CommanderIDs returns the card identities on the commander board
func (d Decklist) CommanderIDs() []string {
	entries := d.Board(models.BoardCommanders)
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		ids = append(ids, e.UniqueCardID)
	}
	return ids
}

// Validate checks the deck is a 100 card commander deck
func (d Decklist) Validate() error {
	if !strings.EqualFold(d.Format, models.FormatCommander) {
		return &ValidationError{Reason: "deck format must be commander"}
	}
	size := d.Count(models.BoardMainboard) + d.Count(models.BoardCommanders) + d.Count(models.BoardCompanions)
	if size != models.CommanderDeckSize {
		return &ValidationError{Reason: fmt.Sprintf("deck must contain exactly %d cards, found %d", models.CommanderDeckSize, size)}
	}
	if len(d.CommanderIDs()) == 0 {
		return &ValidationError{Reason: "deck has no commanders"}
	}
	return nil
}
