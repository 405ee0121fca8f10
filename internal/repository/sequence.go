package repository

import (
	"context"
	"order-settlement/internal/model"
	"time"

	"gorm.io/gorm"
)

type SequenceRepository interface {
	// Increment bumps the counter for (prefix, day) and returns the new value.
	// It must run inside a transaction; the counter row stays locked until commit.
	Increment(ctx context.Context, tx *gorm.DB, prefix, day string) (int64, error)
}

type sequenceRepoImpl struct {
	db *gorm.DB
}

func NewSequenceRepository(db *gorm.DB) SequenceRepository {
	return &sequenceRepoImpl{db: db}
}

func (r *sequenceRepoImpl) Increment(ctx context.Context, tx *gorm.DB, prefix, day string) (int64, error) {
	if _, err := createIfAbsent(ctx, tx, &model.OrderSequence{Prefix: prefix, Day: day}); err != nil {
		return 0, translate(err, "order sequence")
	}

	var seq model.OrderSequence
	err := tx.WithContext(ctx).
		Clauses(forUpdate).
		Where("prefix = ? AND day = ?", prefix, day).
		First(&seq).Error
	if err != nil {
		return 0, translate(err, "order sequence")
	}

	next := seq.Counter + 1
	err = tx.WithContext(ctx).Model(&model.OrderSequence{}).
		Where("prefix = ? AND day = ?", prefix, day).
		Updates(map[string]interface{}{
			"counter":    next,
			"updated_at": time.Now(),
		}).Error
	if err != nil {
		return 0, translate(err, "order sequence")
	}

	return next, nil
}
