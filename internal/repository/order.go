package repository

import (
	"context"
	"order-settlement/internal/model"
	"time"

	"gorm.io/gorm"
)

type OrderRepository interface {
	Create(ctx context.Context, tx *gorm.DB, order *model.Order) error
	FindByID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error)
	GetOrderItems(ctx context.Context, tx *gorm.DB, orderID string) ([]model.OrderItem, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, orderID string, status model.OrderStatus) error
	UpdateTotals(ctx context.Context, tx *gorm.DB, order *model.Order) error
	MarkSettled(ctx context.Context, tx *gorm.DB, orderID string, at time.Time) error
}

type orderRepoImpl struct {
	db *gorm.DB
}

func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepoImpl{
		db: db,
	}
}

func (r *orderRepoImpl) Create(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return tx.WithContext(ctx).Create(order).Error
}

func (r *orderRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error) {
	var order model.Order
	err := tx.WithContext(ctx).
		Preload("Items").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, translate(err, "order")
	}

	return &order, nil
}

func (r *orderRepoImpl) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, orderID string) (*model.Order, error) {
	var order model.Order
	err := tx.WithContext(ctx).
		Clauses(forUpdate).
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, translate(err, "order")
	}

	return &order, nil
}

func (r *orderRepoImpl) GetOrderItems(ctx context.Context, tx *gorm.DB, orderID string) ([]model.OrderItem, error) {
	var items []model.OrderItem
	err := tx.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, translate(err, "order items")
	}

	return items, nil
}

func (r *orderRepoImpl) UpdateStatus(ctx context.Context, tx *gorm.DB, orderID string, status model.OrderStatus) error {
	result := tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return translate(result.Error, "order")
	}
	if result.RowsAffected == 0 {
		return translate(gorm.ErrRecordNotFound, "order")
	}
	return nil
}

func (r *orderRepoImpl) UpdateTotals(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	return translate(tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", order.ID).
		Updates(map[string]interface{}{
			"discount_minor": order.DiscountMinor,
			"total_minor":    order.TotalMinor,
			"status":         order.Status,
			"updated_at":     time.Now(),
		}).Error, "order")
}

// MarkSettled stamps the order once; an already settled order keeps its first timestamp.
func (r *orderRepoImpl) MarkSettled(ctx context.Context, tx *gorm.DB, orderID string, at time.Time) error {
	return translate(tx.WithContext(ctx).Model(&model.Order{}).
		Where("id = ? AND settled_at IS NULL", orderID).
		Update("settled_at", at).Error, "order")
}
