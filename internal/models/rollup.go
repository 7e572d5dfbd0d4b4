package models

import (
	"time"
)

// RollupBuildStatus records the outcome of a slice rebuild
type RollupBuildStatus string

const (
	RollupBuildSucceeded RollupBuildStatus = "succeeded"
	RollupBuildFailed    RollupBuildStatus = "failed"
)

// CommanderRollup is the persisted copy of a commander-level aggregate for
// one slice. Rows are replaced wholesale on every rebuild.
type CommanderRollup struct {
	ID           uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	BuildID      string `json:"build_id" gorm:"not null;index"`
	Window       string `json:"window" gorm:"column:slice_window;not null;uniqueIndex:idx_commander_rollup_slice"`
	MinFieldSize int    `json:"min_field_size" gorm:"not null;uniqueIndex:idx_commander_rollup_slice"`
	CommanderKey string `json:"commander_key" gorm:"not null;uniqueIndex:idx_commander_rollup_slice"`
	DeckCount    int    `json:"deck_count"`
	Wins         int    `json:"wins"`
	Draws        int    `json:"draws"`
	Losses       int    `json:"losses"`
}

// CardRollup is the persisted copy of a card-level aggregate for one slice
type CardRollup struct {
	ID           uint   `json:"id" gorm:"primaryKey;autoIncrement"`
	BuildID      string `json:"build_id" gorm:"not null;index"`
	Window       string `json:"window" gorm:"column:slice_window;not null;uniqueIndex:idx_card_rollup_slice"`
	MinFieldSize int    `json:"min_field_size" gorm:"not null;uniqueIndex:idx_card_rollup_slice"`
	CommanderKey string `json:"commander_key" gorm:"not null;uniqueIndex:idx_card_rollup_slice"`
	UniqueCardID string `json:"unique_card_id" gorm:"not null;uniqueIndex:idx_card_rollup_slice"`
	PrintingID   string `json:"printing_id"`
	DeckCount    int    `json:"deck_count"`
	Wins         int    `json:"wins"`
	Draws        int    `json:"draws"`
	Losses       int    `json:"losses"`
}

// RollupBuild is the history record of a slice rebuild
type RollupBuild struct {
	ID             string            `json:"id" gorm:"primaryKey"`
	Window         string            `json:"window" gorm:"column:slice_window;not null;index:idx_rollup_build_slice"`
	MinFieldSize   int               `json:"min_field_size" gorm:"not null;index:idx_rollup_build_slice"`
	Version        uint64            `json:"version"`
	Status         RollupBuildStatus `json:"status" gorm:"not null"`
	CommanderCount int               `json:"commander_count"`
	CardCount      int               `json:"card_count"`
	Error          string            `json:"error,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	FinishedAt     time.Time         `json:"finished_at" gorm:"index"`
}
