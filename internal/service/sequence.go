package service

import (
	"context"
	"fmt"
	"order-settlement/internal/apperror"
	"order-settlement/internal/repository"
	"time"

	"gorm.io/gorm"
)

// SequenceGenerator hands out order numbers of the form PREFIX-YYYYMMDD-NNNN.
type SequenceGenerator interface {
	Next(ctx context.Context, at time.Time) (string, error)
	NextInTx(ctx context.Context, tx *gorm.DB, at time.Time) (string, error)
}

type sequenceGeneratorImpl struct {
	db       *gorm.DB
	repo     repository.SequenceRepository
	prefix   string
	location *time.Location
}

func NewSequenceGenerator(db *gorm.DB, repo repository.SequenceRepository, prefix string, location *time.Location) SequenceGenerator {
	if location == nil {
		location = time.UTC
	}
	return &sequenceGeneratorImpl{
		db:       db,
		repo:     repo,
		prefix:   prefix,
		location: location,
	}
}

func (g *sequenceGeneratorImpl) Next(ctx context.Context, at time.Time) (string, error) {
	var number string
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		number, err = g.NextInTx(ctx, tx, at)
		return err
	})
	if err != nil {
		if repository.IsLockTimeout(err) {
			return "", apperror.Retry(err, "order sequence busy")
		}
		return "", err
	}
	return number, nil
}

// NextInTx lets the caller roll the number back together with its own writes; gaps are fine.
func (g *sequenceGeneratorImpl) NextInTx(ctx context.Context, tx *gorm.DB, at time.Time) (string, error) {
	day := at.In(g.location).Format("20060102")
	counter, err := g.repo.Increment(ctx, tx, g.prefix, day)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", g.prefix, day, counter), nil
}
