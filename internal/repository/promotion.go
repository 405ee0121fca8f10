package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"order-settlement/internal/model"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PromotionRepository interface {
	Seed(ctx context.Context, promotions []model.Promotion) error
	FindByCode(ctx context.Context, tx *gorm.DB, code string) (*model.Promotion, error)
	FindByID(ctx context.Context, tx *gorm.DB, promotionID uint) (*model.Promotion, error)
	IncrementRedemptions(ctx context.Context, tx *gorm.DB, promotionID uint) error
	CountCustomerRedemptions(ctx context.Context, tx *gorm.DB, promotionID uint, customerID string) (int64, error)
	CreateRedemptionIfAbsent(ctx context.Context, tx *gorm.DB, redemption *model.PromotionRedemption) (bool, error)
	ListRedemptionsByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.PromotionRedemption, error)
}

type promotionRepoImpl struct {
	db *gorm.DB
}

func NewPromotionRepository(db *gorm.DB) PromotionRepository {
	return &promotionRepoImpl{
		db: db,
	}
}

type promotionSeedFile struct {
	Promotions []model.Promotion `yaml:"promotions"`
}

// LoadPromotionSeed reads promotion definitions from a YAML file.
func LoadPromotionSeed(path string) ([]model.Promotion, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read promotion seed: %w", err)
	}

	var file promotionSeedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("decode promotion seed: %w", err)
	}
	return file.Promotions, nil
}

// Seed inserts promotions whose code is not yet known; existing codes are left untouched.
func (r *promotionRepoImpl) Seed(ctx context.Context, promotions []model.Promotion) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range promotions {
			promotion := promotions[i]
			promotion.Code = NormalizeCode(promotion.Code)
			if promotion.Code == "" {
				return fmt.Errorf("promotion #%d has no code", i)
			}

			var count int64
			if err := tx.Model(&model.Promotion{}).Where("code = ?", promotion.Code).Count(&count).Error; err != nil {
				return fmt.Errorf("check promotion %s: %w", promotion.Code, err)
			}
			if count > 0 {
				continue
			}
			if err := tx.Create(&promotion).Error; err != nil {
				return fmt.Errorf("seed promotion %s: %w", promotion.Code, err)
			}
		}
		return nil
	})
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *promotionRepoImpl) FindByCode(ctx context.Context, tx *gorm.DB, code string) (*model.Promotion, error) {
	var promotion model.Promotion
	err := tx.WithContext(ctx).
		Preload("Targets").
		Where("code = ?", NormalizeCode(code)).
		First(&promotion).Error
	if err != nil {
		return nil, translate(err, "promotion")
	}

	return &promotion, nil
}

func (r *promotionRepoImpl) FindByID(ctx context.Context, tx *gorm.DB, promotionID uint) (*model.Promotion, error) {
	var promotion model.Promotion
	err := tx.WithContext(ctx).
		Preload("Targets").
		Where("id = ?", promotionID).
		First(&promotion).Error
	if err != nil {
		return nil, translate(err, "promotion")
	}

	return &promotion, nil
}

func (r *promotionRepoImpl) IncrementRedemptions(ctx context.Context, tx *gorm.DB, promotionID uint) error {
	return translate(tx.WithContext(ctx).Model(&model.Promotion{}).
		Where("id = ?", promotionID).
		Updates(map[string]interface{}{
			"redemptions_count": gorm.Expr("redemptions_count + ?", 1),
			"updated_at":        time.Now(),
		}).Error, "promotion")
}

func (r *promotionRepoImpl) CountCustomerRedemptions(ctx context.Context, tx *gorm.DB, promotionID uint, customerID string) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).Model(&model.PromotionRedemption{}).
		Where("promotion_id = ? AND customer_id = ?", promotionID, customerID).
		Count(&count).Error
	if err != nil {
		return 0, translate(err, "promotion redemptions")
	}
	return count, nil
}

func (r *promotionRepoImpl) CreateRedemptionIfAbsent(ctx context.Context, tx *gorm.DB, redemption *model.PromotionRedemption) (bool, error) {
	created, err := createIfAbsent(ctx, tx, redemption)
	return created, translate(err, "promotion redemption")
}

func (r *promotionRepoImpl) ListRedemptionsByOrder(ctx context.Context, tx *gorm.DB, orderID string) ([]*model.PromotionRedemption, error) {
	var redemptions []*model.PromotionRedemption
	err := tx.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("redeemed_at").
		Find(&redemptions).Error
	if err != nil {
		return nil, translate(err, "promotion redemptions")
	}
	return redemptions, nil
}

type ReservationRepository interface {
	UpsertDraft(ctx context.Context, tx *gorm.DB, reservation *model.PromotionReservation) error
	Find(ctx context.Context, tx *gorm.DB, orderID string, promotionID uint) (*model.PromotionReservation, error)
	ListByOrder(ctx context.Context, tx *gorm.DB, orderID string, statuses ...model.ReservationStatus) ([]*model.PromotionReservation, error)
	UpdateStatus(ctx context.Context, tx *gorm.DB, reservationID uint, status model.ReservationStatus) error
	ReleaseDrafts(ctx context.Context, tx *gorm.DB, orderID string) (int64, error)
	SumDraftDiscount(ctx context.Context, tx *gorm.DB, orderID string) (int64, error)
}

type reservationRepoImpl struct {
	db *gorm.DB
}

func NewReservationRepository(db *gorm.DB) ReservationRepository {
	return &reservationRepoImpl{db: db}
}

// UpsertDraft keeps one reservation per (order, promotion); re-applying replaces the discount.
func (r *reservationRepoImpl) UpsertDraft(ctx context.Context, tx *gorm.DB, reservation *model.PromotionReservation) error {
	reservation.Status = model.ReservationStatusDraft
	return translate(tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "order_id"}, {Name: "promotion_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"discount_amount": reservation.DiscountAmount,
			"code":            reservation.Code,
			"status":          model.ReservationStatusDraft,
			"idempotency_key": reservation.IdempotencyKey,
			"updated_at":      time.Now(),
		}),
	}).Create(reservation).Error, "promotion reservation")
}

// Find returns nil without error when the order has no reservation for the promotion.
func (r *reservationRepoImpl) Find(ctx context.Context, tx *gorm.DB, orderID string, promotionID uint) (*model.PromotionReservation, error) {
	var reservation model.PromotionReservation
	err := tx.WithContext(ctx).
		Where("order_id = ? AND promotion_id = ?", orderID, promotionID).
		First(&reservation).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err, "promotion reservation")
	}
	return &reservation, nil
}

func (r *reservationRepoImpl) ListByOrder(ctx context.Context, tx *gorm.DB, orderID string, statuses ...model.ReservationStatus) ([]*model.PromotionReservation, error) {
	query := tx.WithContext(ctx).Where("order_id = ?", orderID)
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	var reservations []*model.PromotionReservation
	if err := query.Order("id").Find(&reservations).Error; err != nil {
		return nil, translate(err, "promotion reservations")
	}
	return reservations, nil
}

func (r *reservationRepoImpl) UpdateStatus(ctx context.Context, tx *gorm.DB, reservationID uint, status model.ReservationStatus) error {
	return translate(tx.WithContext(ctx).Model(&model.PromotionReservation{}).
		Where("id = ?", reservationID).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		}).Error, "promotion reservation")
}

func (r *reservationRepoImpl) ReleaseDrafts(ctx context.Context, tx *gorm.DB, orderID string) (int64, error) {
	result := tx.WithContext(ctx).Model(&model.PromotionReservation{}).
		Where("order_id = ? AND status = ?", orderID, model.ReservationStatusDraft).
		Updates(map[string]interface{}{
			"status":     model.ReservationStatusReleased,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return 0, translate(result.Error, "promotion reservations")
	}
	return result.RowsAffected, nil
}

func (r *reservationRepoImpl) SumDraftDiscount(ctx context.Context, tx *gorm.DB, orderID string) (int64, error) {
	var sum int64
	err := tx.WithContext(ctx).Model(&model.PromotionReservation{}).
		Select("COALESCE(SUM(discount_amount), 0)").
		Where("order_id = ? AND status = ?", orderID, model.ReservationStatusDraft).
		Scan(&sum).Error
	if err != nil {
		return 0, translate(err, "promotion reservations")
	}
	return sum, nil
}
