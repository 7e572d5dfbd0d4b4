package database

import (
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// cleanupDuplicateDeckCards removes duplicate deck_cards entries before the unique constraint is added
// This runs BEFORE AutoMigrate to prevent constraint violations
func cleanupDuplicateDeckCards(db *gorm.DB, log zerolog.Logger) error {
	if !db.Migrator().HasTable("deck_cards") {
		return nil
	}

	// Board names arrive in mixed case from some importers
	result := db.Exec(`UPDATE deck_cards SET board = LOWER(board) WHERE board <> LOWER(board)`)
	if result.Error != nil {
		log.Warn().Err(result.Error).Msg("failed to normalize deck card boards")
	}

	// Keep the newest row of each (deck, board, card), folding quantities is
	// left to the importer
	result = db.Exec(`
		DELETE FROM deck_cards
		WHERE id NOT IN (
			SELECT MAX(id)
			FROM deck_cards
			GROUP BY deck_id, board, unique_card_id
		)
	`)
	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected > 0 {
		log.Info().Int64("rows", result.RowsAffected).Msg("cleaned up duplicate deck_cards entries")
	}

	return nil
}

// RunMigrations runs any custom data migrations after schema changes
func RunMigrations(db *gorm.DB, log zerolog.Logger) error {
	if err := normalizeDeckFormats(db, log); err != nil {
		return err
	}
	if err := normalizeLegality(db, log); err != nil {
		return err
	}
	if err := unlinkOrphanStandings(db, log); err != nil {
		return err
	}
	return nil
}

func normalizeDeckFormats(db *gorm.DB, log zerolog.Logger) error {
	result := db.Exec(`UPDATE decks SET format = LOWER(TRIM(format)) WHERE format <> LOWER(TRIM(format))`)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Info().Int64("rows", result.RowsAffected).Msg("normalized deck formats")
	}
	return nil
}

func normalizeLegality(db *gorm.DB, log zerolog.Logger) error {
	result := db.Exec(`UPDATE printings SET legality = LOWER(legality) WHERE legality <> LOWER(legality)`)
	if result.Error != nil {
		return result.Error
	}

	// Missing legality means the importer never saw a commander legality entry
	result = db.Exec(`UPDATE printings SET legality = 'not_legal' WHERE legality IS NULL OR legality = ''`)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Info().Int64("rows", result.RowsAffected).Msg("defaulted empty printing legality")
	}
	return nil
}

// unlinkOrphanStandings clears deck links that point at decks which no longer exist
// The standing keeps its record and can be relinked by the next import
func unlinkOrphanStandings(db *gorm.DB, log zerolog.Logger) error {
	result := db.Exec(`
		UPDATE standings
		SET deck_id = NULL
		WHERE deck_id IS NOT NULL
		AND deck_id NOT IN (SELECT id FROM decks)
	`)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 {
		log.Warn().Int64("rows", result.RowsAffected).Msg("unlinked standings pointing at missing decks")
	}
	return nil
}
