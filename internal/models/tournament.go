package models

import (
	"time"

	"gorm.io/datatypes"
)

// Tournament is an event imported from the tournament data provider
type Tournament struct {
	ID        string         `json:"id" gorm:"primaryKey"`
	Name      string         `json:"name"`
	StartDate time.Time      `json:"start_date" gorm:"not null;index"`
	FieldSize int            `json:"field_size" gorm:"not null;default:0;index"`
	TopCut    int            `json:"top_cut"`
	Metadata  datatypes.JSON `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Standing is one participant's record in a tournament. DeckID stays nil
// until the decklist link can be resolved.
type Standing struct {
	ID           uint       `json:"id" gorm:"primaryKey;autoIncrement"`
	TournamentID string     `json:"tournament_id" gorm:"not null;index"`
	Tournament   Tournament `json:"tournament" gorm:"foreignKey:TournamentID"`
	DeckID       *string    `json:"deck_id" gorm:"index"`
	PlayerName   string     `json:"player_name"`
	DecklistURL  string     `json:"decklist_url"`
	Wins         int        `json:"wins"`
	Draws        int        `json:"draws"`
	Losses       int        `json:"losses"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// LinkedStanding is the flattened view of a standing joined with its
// tournament, as consumed by the rollup builder
type LinkedStanding struct {
	DeckID    string    `json:"deck_id"`
	Wins      int       `json:"wins"`
	Draws     int       `json:"draws"`
	Losses    int       `json:"losses"`
	StartDate time.Time `json:"start_date"`
	FieldSize int       `json:"field_size"`
}
