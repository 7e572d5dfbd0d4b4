package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sam-warren/cedhtools/internal/identity"
	"github.com/sam-warren/cedhtools/internal/models"
	"github.com/sam-warren/cedhtools/internal/rollup"
	"github.com/sam-warren/cedhtools/internal/stats"
)

const rollupInsertBatchSize = 500

// RollupRepository persists built slices and their build history
type RollupRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewRollupRepository(db *gorm.DB) *RollupRepository {
	return &RollupRepository{db: db, now: time.Now}
}

// SaveSnapshot replaces the stored rows of the snapshot's slice and records
// a successful build, all in one transaction
func (r *RollupRepository) SaveSnapshot(ctx context.Context, snap *rollup.Snapshot, startedAt time.Time) error {
	window := string(snap.Slice.Window)
	minSize := snap.Slice.MinFieldSize

	commanders := make([]models.CommanderRollup, 0, len(snap.Commanders))
	for key, agg := range snap.Commanders {
		commanders = append(commanders, models.CommanderRollup{
			BuildID:      snap.BuildID,
			Window:       window,
			MinFieldSize: minSize,
			CommanderKey: key.String(),
			DeckCount:    agg.DeckCount,
			Wins:         agg.Wins,
			Draws:        agg.Draws,
			Losses:       agg.Losses,
		})
	}

	cards := make([]models.CardRollup, 0, snap.CardRowCount())
	for key, rows := range snap.Cards {
		for _, row := range rows {
			cards = append(cards, models.CardRollup{
				BuildID:      snap.BuildID,
				Window:       window,
				MinFieldSize: minSize,
				CommanderKey: key.String(),
				UniqueCardID: row.CardID,
				PrintingID:   row.PrintingID,
				DeckCount:    row.DeckCount,
				Wins:         row.Wins,
				Draws:        row.Draws,
				Losses:       row.Losses,
			})
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("slice_window = ? AND min_field_size = ?", window, minSize).
			Delete(&models.CardRollup{}).Error; err != nil {
			return err
		}
		if err := tx.Where("slice_window = ? AND min_field_size = ?", window, minSize).
			Delete(&models.CommanderRollup{}).Error; err != nil {
			return err
		}
		if len(commanders) > 0 {
			if err := tx.CreateInBatches(&commanders, rollupInsertBatchSize).Error; err != nil {
				return err
			}
		}
		if len(cards) > 0 {
			if err := tx.CreateInBatches(&cards, rollupInsertBatchSize).Error; err != nil {
				return err
			}
		}
		return tx.Create(&models.RollupBuild{
			ID:             snap.BuildID,
			Window:         window,
			MinFieldSize:   minSize,
			Version:        snap.Version,
			Status:         models.RollupBuildSucceeded,
			CommanderCount: len(commanders),
			CardCount:      len(cards),
			StartedAt:      startedAt,
			FinishedAt:     r.now(),
		}).Error
	})
}

// RecordFailure writes a failed build record; stored rows are untouched
func (r *RollupRepository) RecordFailure(ctx context.Context, slice rollup.Slice, startedAt time.Time, buildErr error) error {
	msg := ""
	if buildErr != nil {
		msg = buildErr.Error()
	}
	return r.db.WithContext(ctx).Create(&models.RollupBuild{
		ID:           uuid.New().String(),
		Window:       string(slice.Window),
		MinFieldSize: slice.MinFieldSize,
		Status:       models.RollupBuildFailed,
		Error:        msg,
		StartedAt:    startedAt,
		FinishedAt:   r.now(),
	}).Error
}

// LoadSnapshot rebuilds the last successfully persisted snapshot of a
// slice. It returns nil, nil when the slice was never built.
func (r *RollupRepository) LoadSnapshot(ctx context.Context, slice rollup.Slice) (*rollup.Snapshot, error) {
	db := r.db.WithContext(ctx)

	var build models.RollupBuild
	err := db.Where("slice_window = ? AND min_field_size = ? AND status = ?",
		string(slice.Window), slice.MinFieldSize, models.RollupBuildSucceeded).
		Order("finished_at DESC").
		Limit(1).
		Find(&build).Error
	if err != nil {
		return nil, err
	}
	if build.ID == "" {
		return nil, nil
	}

	var commanders []models.CommanderRollup
	if err := db.Where("build_id = ?", build.ID).Find(&commanders).Error; err != nil {
		return nil, err
	}
	var cards []models.CardRollup
	if err := db.Where("build_id = ?", build.ID).
		Order("commander_key, unique_card_id").
		Find(&cards).Error; err != nil {
		return nil, err
	}

	snap := &rollup.Snapshot{
		Slice:      slice,
		Version:    build.Version,
		BuildID:    build.ID,
		BuiltAt:    build.StartedAt,
		Commanders: make(map[identity.Key]rollup.Aggregate, len(commanders)),
		Cards:      make(map[identity.Key][]rollup.CardAggregate),
	}
	for _, c := range commanders {
		snap.Commanders[identity.Key(c.CommanderKey)] = rollup.Aggregate{
			DeckCount: c.DeckCount,
			Outcomes:  stats.Outcomes{Wins: c.Wins, Draws: c.Draws, Losses: c.Losses},
		}
	}
	for _, c := range cards {
		key := identity.Key(c.CommanderKey)
		snap.Cards[key] = append(snap.Cards[key], rollup.CardAggregate{
			CardID:     c.UniqueCardID,
			PrintingID: c.PrintingID,
			Aggregate: rollup.Aggregate{
				DeckCount: c.DeckCount,
				Outcomes:  stats.Outcomes{Wins: c.Wins, Draws: c.Draws, Losses: c.Losses},
			},
		})
	}
	return snap, nil
}

// RecentBuilds returns the newest build records across all slices
func (r *RollupRepository) RecentBuilds(ctx context.Context, limit int) ([]models.RollupBuild, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.RollupBuild
	err := r.db.WithContext(ctx).
		Order("finished_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
