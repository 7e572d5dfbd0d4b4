package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/sam-warren/cedhtools/internal/models"
)

type TotalsRepository struct {
	db *gorm.DB
}

func NewTotalsRepository(db *gorm.DB) *TotalsRepository {
	return &TotalsRepository{db: db}
}

// DatabaseStatistics counts tournaments and entries from the standings,
// distinct cards across all deck entries, and imported decks.
func (r *TotalsRepository) DatabaseStatistics(ctx context.Context) (*models.DatabaseStatistics, error) {
	var out models.DatabaseStatistics
	db := r.db.WithContext(ctx)

	if err := db.Model(&models.Standing{}).Distinct("tournament_id").Count(&out.Tournaments).Error; err != nil {
		return nil, fmt.Errorf("failed to count tournaments: %w", err)
	}
	if err := db.Model(&models.Standing{}).Count(&out.TournamentEntries).Error; err != nil {
		return nil, fmt.Errorf("failed to count tournament entries: %w", err)
	}
	if err := db.Model(&models.DeckCard{}).Distinct("unique_card_id").Count(&out.Cards).Error; err != nil {
		return nil, fmt.Errorf("failed to count cards: %w", err)
	}
	if err := db.Model(&models.Deck{}).Count(&out.Decks).Error; err != nil {
		return nil, fmt.Errorf("failed to count decks: %w", err)
	}
	return &out, nil
}
