package postgres

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"assettracker/internal/model"
)

const defaultBatchSize = 500

// PositionRepository reads and appends device position history
type PositionRepository struct {
	db        *gorm.DB
	batchSize int
}

func NewPositionRepository(db *gorm.DB, batchSize int) *PositionRepository {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &PositionRepository{db: db, batchSize: batchSize}
}

// PositionsBetween returns a device's rows with start <= sample_time <= end
func (r *PositionRepository) PositionsBetween(ctx context.Context, deviceID string, start, end time.Time) ([]model.PositionUpdate, error) {
	var rows []*model.PositionPG
	err := r.db.WithContext(ctx).
		Where("device_id = ? AND sample_time >= ? AND sample_time <= ?", deviceID, start.UTC(), end.UTC()).
		Order("sample_time ASC, id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load history of %s: %w", deviceID, err)
	}

	out := make([]model.PositionUpdate, len(rows))
	for i, row := range rows {
		out[i] = model.PositionFromPG(row)
	}
	return out, nil
}

// InsertBatch appends updates inside one transaction
func (r *PositionRepository) InsertBatch(ctx context.Context, updates []model.PositionUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	rows := make([]*model.PositionPG, len(updates))
	for i, u := range updates {
		rows[i] = u.ToPG()
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(rows, r.batchSize).Error; err != nil {
			return fmt.Errorf("failed to insert %d positions: %w", len(rows), err)
		}
		return nil
	})
}
