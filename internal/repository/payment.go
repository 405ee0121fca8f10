package repository

import (
	"context"
	"errors"
	"order-settlement/internal/model"
	"time"

	"gorm.io/gorm"
)

type PaymentRepository interface {
	CreateIfAbsent(ctx context.Context, tx *gorm.DB, payment *model.Payment) (bool, error)
	FindByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*model.Payment, error)
	FindByCorrelationID(ctx context.Context, tx *gorm.DB, localID string) (*model.Payment, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, paymentID string) (*model.Payment, error)
	ListByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.Payment, error)
	MarkInitiated(ctx context.Context, tx *gorm.DB, paymentID string, result *model.GatewayTransaction) error
	UpdateStatus(ctx context.Context, tx *gorm.DB, paymentID string, status model.PaymentStatus, rawResponse string) error
	SumSettled(ctx context.Context, tx *gorm.DB, orderID string) (int64, error)
}

type paymentRepoImpl struct {
	db *gorm.DB
}

func NewPaymentRepository(db *gorm.DB) PaymentRepository {
	return &paymentRepoImpl{db: db}
}

func (r *paymentRepoImpl) CreateIfAbsent(ctx context.Context, tx *gorm.DB, payment *model.Payment) (bool, error) {
	created, err := createIfAbsent(ctx, tx, payment)
	return created, translate(err, "payment")
}

func (r *paymentRepoImpl) FindByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) (*model.Payment, error) {
	var payment model.Payment
	err := tx.WithContext(ctx).
		Where("idempotency_key = ?", key).
		First(&payment).Error
	if err != nil {
		return nil, translate(err, "payment")
	}
	return &payment, nil
}

// FindByCorrelationID returns nil without error when no payment carries the id.
func (r *paymentRepoImpl) FindByCorrelationID(ctx context.Context, tx *gorm.DB, localID string) (*model.Payment, error) {
	var payment model.Payment
	err := tx.WithContext(ctx).
		Where("local_correlation_id = ?", localID).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "payment")
	}
	return &payment, nil
}

func (r *paymentRepoImpl) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, paymentID string) (*model.Payment, error) {
	var payment model.Payment
	err := tx.WithContext(ctx).
		Clauses(forUpdate).
		Where("id = ?", paymentID).
		First(&payment).Error
	if err != nil {
		return nil, translate(err, "payment")
	}
	return &payment, nil
}

func (r *paymentRepoImpl) ListByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.Payment, error) {
	var payments []*model.Payment
	err := tx.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at").
		Find(&payments).Error
	if err != nil {
		return nil, translate(err, "payments")
	}
	return payments, nil
}

// MarkInitiated only advances a payment that has not progressed past created.
func (r *paymentRepoImpl) MarkInitiated(ctx context.Context, tx *gorm.DB, paymentID string, result *model.GatewayTransaction) error {
	return translate(tx.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ? AND status IN ?", paymentID, []model.PaymentStatus{
			model.PaymentStatusCreated,
			model.PaymentStatusFailed,
		}).
		Updates(map[string]interface{}{
			"gateway_transaction_id": result.TransactionID,
			"payment_url":            result.PaymentURL,
			"status":                 model.PaymentStatusInitiated,
			"updated_at":             time.Now(),
		}).Error, "payment")
}

func (r *paymentRepoImpl) UpdateStatus(ctx context.Context, tx *gorm.DB, paymentID string, status model.PaymentStatus, rawResponse string) error {
	result := tx.WithContext(ctx).Model(&model.Payment{}).
		Where("id = ?", paymentID).
		Updates(map[string]interface{}{
			"status":       status,
			"raw_response": rawResponse,
			"updated_at":   time.Now(),
		})
	if result.Error != nil {
		return translate(result.Error, "payment")
	}
	if result.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "payment")
	}
	return nil
}

func (r *paymentRepoImpl) SumSettled(ctx context.Context, tx *gorm.DB, orderID string) (int64, error) {
	var sum int64
	err := tx.WithContext(ctx).Model(&model.Payment{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("order_id = ? AND status IN ?", orderID, model.SettledPaymentStatuses).
		Scan(&sum).Error
	if err != nil {
		return 0, translate(err, "payments")
	}
	return sum, nil
}
