package repository

import (
	"context"
	"order-settlement/internal/model"
	"time"

	"gorm.io/gorm"
)

type WebhookRecordRepository interface {
	Store(ctx context.Context, tx *gorm.DB, record *model.WebhookRecord) (bool, error)
	Find(ctx context.Context, tx *gorm.DB, key string) (*model.WebhookRecord, error)
	MarkProcessed(ctx context.Context, tx *gorm.DB, key string) error
	MarkRejected(ctx context.Context, tx *gorm.DB, key string, reason string) error
	MarkFailed(ctx context.Context, tx *gorm.DB, key string, reason string) error
	ListPending(ctx context.Context, tx *gorm.DB, limit int) ([]*model.WebhookRecord, error)
}

type webhookRecordRepositoryImpl struct {
	db *gorm.DB
}

func NewWebhookRecordRepository(db *gorm.DB) WebhookRecordRepository {
	return &webhookRecordRepositoryImpl{db: db}
}

// Store inserts the raw notification and reports false when the key was already stored.
func (r *webhookRecordRepositoryImpl) Store(ctx context.Context, tx *gorm.DB, record *model.WebhookRecord) (bool, error) {
	created, err := createIfAbsent(ctx, tx, record)
	return created, translate(err, "webhook record")
}

func (r *webhookRecordRepositoryImpl) Find(ctx context.Context, tx *gorm.DB, key string) (*model.WebhookRecord, error) {
	var record model.WebhookRecord
	err := tx.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&record).Error
	if err != nil {
		return nil, translate(err, "webhook record")
	}
	return &record, nil
}

func (r *webhookRecordRepositoryImpl) MarkProcessed(ctx context.Context, tx *gorm.DB, key string) error {
	now := time.Now()
	return r.setStatus(ctx, tx, key, map[string]interface{}{
		"status":       model.WebhookStatusProcessed,
		"error":        "",
		"processed_at": &now,
	})
}

func (r *webhookRecordRepositoryImpl) MarkRejected(ctx context.Context, tx *gorm.DB, key string, reason string) error {
	return r.setStatus(ctx, tx, key, map[string]interface{}{
		"status": model.WebhookStatusRejected,
		"error":  reason,
	})
}

func (r *webhookRecordRepositoryImpl) MarkFailed(ctx context.Context, tx *gorm.DB, key string, reason string) error {
	return r.setStatus(ctx, tx, key, map[string]interface{}{
		"status": model.WebhookStatusFailed,
		"error":  reason,
	})
}

func (r *webhookRecordRepositoryImpl) ListPending(ctx context.Context, tx *gorm.DB, limit int) ([]*model.WebhookRecord, error) {
	var records []*model.WebhookRecord
	err := tx.WithContext(ctx).
		Where("status IN ?", []model.WebhookStatus{model.WebhookStatusReceived, model.WebhookStatusFailed}).
		Order("created_at").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, translate(err, "webhook records")
	}
	return records, nil
}

func (r *webhookRecordRepositoryImpl) setStatus(ctx context.Context, tx *gorm.DB, key string, values map[string]interface{}) error {
	values["updated_at"] = time.Now()
	return translate(tx.WithContext(ctx).Model(&model.WebhookRecord{}).
		Where("idempotency_key = ?", key).
		Updates(values).Error, "webhook record")
}
