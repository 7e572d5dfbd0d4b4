package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/sam-warren/cedhtools/internal/models"
)

type StandingRepository struct {
	db *gorm.DB
}

func NewStandingRepository(db *gorm.DB) *StandingRepository {
	return &StandingRepository{db: db}
}

// LinkedStandings returns every standing with a deck link, flattened with
// its tournament date and field size
func (r *StandingRepository) LinkedStandings(ctx context.Context) ([]models.LinkedStanding, error) {
	var out []models.LinkedStanding
	err := r.db.WithContext(ctx).
		Table("standings").
		Select("standings.deck_id, standings.wins, standings.draws, standings.losses, tournaments.start_date, tournaments.field_size").
		Joins("JOIN tournaments ON tournaments.id = standings.tournament_id").
		Where("standings.deck_id IS NOT NULL").
		Order("standings.id").
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RollupSource combines the deck and standing reads a rollup refresh needs
type RollupSource struct {
	*DeckRepository
	*StandingRepository
}

func NewRollupSource(decks *DeckRepository, standings *StandingRepository) *RollupSource {
	return &RollupSource{DeckRepository: decks, StandingRepository: standings}
}
