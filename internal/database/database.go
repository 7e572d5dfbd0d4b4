package database

import (
	"fmt"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sam-warren/cedhtools/internal/config"
	"github.com/sam-warren/cedhtools/internal/models"
)

// Models lists every table managed by AutoMigrate
func Models() []interface{} {
	return []interface{}{
		&models.Printing{},
		&models.Deck{},
		&models.DeckCard{},
		&models.Tournament{},
		&models.Standing{},
		&models.CommanderRollup{},
		&models.CardRollup{},
		&models.RollupBuild{},
	}
}

// Open connects to the configured database and brings the schema up to
// date.
func Open(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.Database.Driver {
	case "postgres":
		dialector = postgres.Open(cfg.Database.DSN)
	case "sqlite":
		dialector = sqlite.Open(cfg.Database.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Database.Driver)
	}

	logLevel := logger.Warn
	if cfg.Database.Debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	log.Info().Str("driver", cfg.Database.Driver).Msg("database connected successfully")

	if err := Migrate(db, log); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate cleans up data that would violate new constraints, applies the
// schema and then runs data migrations. It is safe to run repeatedly.
func Migrate(db *gorm.DB, log zerolog.Logger) error {
	if err := cleanupDuplicateDeckCards(db, log); err != nil {
		return fmt.Errorf("failed to clean up duplicate deck cards: %w", err)
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	if err := RunMigrations(db, log); err != nil {
		return fmt.Errorf("failed to run data migrations: %w", err)
	}

	log.Info().Msg("database migration completed")
	return nil
}
