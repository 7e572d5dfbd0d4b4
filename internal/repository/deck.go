// Package repository reads and writes the relational records behind the
// statistics engine.
package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sam-warren/cedhtools/internal/models"
)

const deckBatchSize = 500

type DeckRepository struct {
	db *gorm.DB
}

func NewDeckRepository(db *gorm.DB) *DeckRepository {
	return &DeckRepository{db: db}
}

// EligibleDecks returns every commander-format deck that passes the size
// and commander checks, with its cards loaded.
func (r *DeckRepository) EligibleDecks(ctx context.Context) ([]models.Deck, error) {
	var (
		batch []models.Deck
		out   []models.Deck
	)
	err := r.db.WithContext(ctx).
		Preload("Cards").
		Where("format = ?", models.FormatCommander).
		FindInBatches(&batch, deckBatchSize, func(tx *gorm.DB, _ int) error {
			for _, d := range batch {
				if d.IsEligible() {
					out = append(out, d)
				}
			}
			return ctx.Err()
		}).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID returns a deck with its cards, nil when it does not exist
func (r *DeckRepository) GetByID(ctx context.Context, id string) (*models.Deck, error) {
	var d models.Deck
	err := r.db.WithContext(ctx).
		Preload("Cards").
		Where("id = ?", id).
		Limit(1).
		Find(&d).Error
	if err != nil {
		return nil, err
	}
	if d.ID == "" {
		return nil, nil
	}
	return &d, nil
}
