package models

import (
	"time"

	"gorm.io/datatypes"
)

// Legality values for the commander format as reported by Scryfall
const (
	LegalityLegal      = "legal"
	LegalityNotLegal   = "not_legal"
	LegalityBanned     = "banned"
	LegalityRestricted = "restricted"
)

// Printing is one concrete edition of a logical card. UniqueCardID is the
// printing-independent identity shared by every edition of the same card.
type Printing struct {
	ID              string    `json:"scryfall_id" gorm:"primaryKey"`
	UniqueCardID    string    `json:"unique_card_id" gorm:"not null;index"`
	Name            string    `json:"name" gorm:"not null;index"`
	ManaCost        string    `json:"mana_cost"`
	CMC             float64   `json:"cmc"`
	TypeLine        string    `json:"type_line"`
	SetCode         string    `json:"set_code"`
	SetName         string    `json:"set_name"`
	CollectorNumber string    `json:"collector_number"`
	ImageURL        string    `json:"image_url"`
	ImageURLLarge   string    `json:"image_url_large"`
	ImageURLArtCrop string    `json:"image_url_art_crop"`
	ScryfallURI     string    `json:"scryfall_uri"`
	Legality        string    `json:"legality" gorm:"index"`
	ReleasedAt      time.Time `json:"released_at"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`

	// Raw card object from the catalog importer
	Metadata datatypes.JSON `json:"-"`
}

// IsLegal reports whether the printing may be shown as a representative
// printing for commander play
func (p Printing) IsLegal() bool {
	return p.Legality == LegalityLegal
}

// PrintingUsage pairs a printing with how many deck entries reference it
type PrintingUsage struct {
	Printing
	UsageCount int `json:"usage_count"`
}
