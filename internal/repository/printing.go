package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sam-warren/cedhtools/internal/models"
)

// Keeps IN lists under the sqlite bound variable limit
const lookupChunkSize = 500

type PrintingRepository struct {
	db *gorm.DB
}

func NewPrintingRepository(db *gorm.DB) *PrintingRepository {
	return &PrintingRepository{db: db}
}

// PrintingsWithUsage returns every printing of the given cards together
// with the number of deck entries that reference it
func (r *PrintingRepository) PrintingsWithUsage(ctx context.Context, cardIDs []string) ([]models.PrintingUsage, error) {
	var out []models.PrintingUsage
	for _, chunk := range chunks(cardIDs, lookupChunkSize) {
		var rows []models.PrintingUsage
		err := r.db.WithContext(ctx).
			Table("printings").
			Select("printings.*, COUNT(deck_cards.id) AS usage_count").
			Joins("LEFT JOIN deck_cards ON deck_cards.printing_id = printings.id").
			Where("printings.unique_card_id IN ?", chunk).
			Group("printings.id").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		out = append(out, rows...)
	}
	return out, nil
}

// GetByIDs loads printings by scryfall id. Unknown ids are absent from the
// result.
func (r *PrintingRepository) GetByIDs(ctx context.Context, ids []string) (map[string]models.Printing, error) {
	out := make(map[string]models.Printing, len(ids))
	for _, chunk := range chunks(ids, lookupChunkSize) {
		var rows []models.Printing
		if err := r.db.WithContext(ctx).Where("id IN ?", chunk).Find(&rows).Error; err != nil {
			return nil, err
		}
		for _, p := range rows {
			out[p.ID] = p
		}
	}
	return out, nil
}

func chunks(ids []string, size int) [][]string {
	var out [][]string
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		out = append(out, ids[start:end])
	}
	return out
}
