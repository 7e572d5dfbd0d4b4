package models

import (
	"strings"
	"time"

	"gorm.io/datatypes"
)

// Board names as stored on deck entries
const (
	BoardMainboard  = "mainboard"
	BoardCommanders = "commanders"
	BoardCompanions = "companions"
	BoardSideboard  = "sideboard"
	BoardMaybeboard = "maybeboard"
)

const (
	// FormatCommander is the only deck format counted in statistics
	FormatCommander = "commander"

	// CommanderDeckSize is the number of cards a legal commander deck holds
	// across the mainboard, commander and companion boards
	CommanderDeckSize = 100
)

// Deck is a decklist imported from an external deck builder. Metadata is
// the importer's raw payload and is never interpreted here.
type Deck struct {
	ID        string         `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name"`
	Format    string         `json:"format" gorm:"not null;index"`
	Cards     []DeckCard     `json:"cards" gorm:"foreignKey:DeckID;constraint:OnDelete:CASCADE"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// DeckCard is one (card, board, quantity) entry of a deck
type DeckCard struct {
	ID           uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	DeckID       string `json:"deck_id" gorm:"not null;uniqueIndex:idx_deck_card_board"`
	Board        string `json:"board" gorm:"not null;uniqueIndex:idx_deck_card_board"`
	UniqueCardID string `json:"unique_card_id" gorm:"not null;uniqueIndex:idx_deck_card_board;index"`
	PrintingID   string `json:"printing_id" gorm:"index"`
	Quantity     int    `json:"quantity" gorm:"not null;default:1"`
}

// IsCountedBoard reports whether cards on the board count towards the
// 100 card deck size
func IsCountedBoard(board string) bool {
	switch strings.ToLower(board) {
	case BoardMainboard, BoardCommanders, BoardCompanions:
		return true
	}
	return false
}

// CommanderIDs returns the card identities on the commander board
func (d Deck) CommanderIDs() []string {
	var ids []string
	for _, c := range d.Cards {
		if strings.EqualFold(c.Board, BoardCommanders) {
			ids = append(ids, c.UniqueCardID)
		}
	}
	return ids
}

// CountedSize sums quantities over the mainboard, commander and companion
// boards
func (d Deck) CountedSize() int {
	total := 0
	for _, c := range d.Cards {
		if IsCountedBoard(c.Board) {
			total += c.Quantity
		}
	}
	return total
}

// IsEligible reports whether the deck may contribute to statistics: it must
// be a commander deck of exactly 100 cards with at least one commander.
func (d Deck) IsEligible() bool {
	if !strings.EqualFold(d.Format, FormatCommander) {
		return false
	}
	if d.CountedSize() != CommanderDeckSize {
		return false
	}
	return len(d.CommanderIDs()) > 0
}
