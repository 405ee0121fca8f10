package service

import (
	"context"
	"fmt"
	"order-settlement/internal/apperror"
	"order-settlement/internal/model"
	"order-settlement/internal/repository"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type PromotionService interface {
	// Evaluate previews a code against an order without reserving it.
	Evaluate(ctx context.Context, orderID, code, customerID string) (*EvaluationResult, error)
	ApplyToOrder(ctx context.Context, orderID, code, customerID string) (*model.PromotionReservation, error)
	RemoveFromOrder(ctx context.Context, orderID, code string) error
	Reservations(ctx context.Context, orderID string) ([]*model.PromotionReservation, error)
	OnOrderPaid(ctx context.Context, orderID string) error
	OnOrderCancelled(ctx context.Context, orderID string) error
}

type promotionServiceImpl struct {
	db              *gorm.DB
	evaluator       PromotionEvaluator
	promotionRepo   repository.PromotionRepository
	reservationRepo repository.ReservationRepository
	orderRepo       repository.OrderRepository
	totals          *orderTotals
	log             *zap.Logger
	now             func() time.Time
}

func NewPromotionService(
	db *gorm.DB,
	evaluator PromotionEvaluator,
	promotionRepo repository.PromotionRepository,
	reservationRepo repository.ReservationRepository,
	orderRepo repository.OrderRepository,
	loyaltyRepo repository.LoyaltyRepository,
	log *zap.Logger,
) PromotionService {
	return &promotionServiceImpl{
		db:              db,
		evaluator:       evaluator,
		promotionRepo:   promotionRepo,
		reservationRepo: reservationRepo,
		orderRepo:       orderRepo,
		totals: &orderTotals{
			orderRepo:       orderRepo,
			reservationRepo: reservationRepo,
			loyaltyRepo:     loyaltyRepo,
		},
		log: log,
		now: time.Now,
	}
}

func redemptionKey(orderID string, promotionID uint) string {
	return fmt.Sprintf("promo-redemption:%s:%d", orderID, promotionID)
}

func (s *promotionServiceImpl) Evaluate(ctx context.Context, orderID, code, customerID string) (*EvaluationResult, error) {
	order, err := s.orderRepo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		customerID = order.Customer()
	}
	return s.evaluator.Evaluate(ctx, s.db, code, order, customerID)
}

func (s *promotionServiceImpl) ApplyToOrder(ctx context.Context, orderID, code, customerID string) (*model.PromotionReservation, error) {
	var reservation *model.PromotionReservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !acceptsDiscounts(order) {
			return apperror.Conflict(fmt.Sprintf("order is %s and no longer accepts promotions", order.Status))
		}
		if order.Items, err = s.orderRepo.GetOrderItems(ctx, tx, orderID); err != nil {
			return err
		}
		if customerID == "" {
			customerID = order.Customer()
		}

		result, err := s.evaluator.Evaluate(ctx, tx, code, order, customerID)
		if err != nil {
			return err
		}
		if !result.Valid {
			return apperror.Validation(fmt.Sprintf("promotion %s: %s", repository.NormalizeCode(code), result.Reason))
		}
		promotion := result.Promotion

		existing, err := s.reservationRepo.Find(ctx, tx, orderID, promotion.ID)
		if err != nil {
			return err
		}
		if existing != nil && existing.Status == model.ReservationStatusConsumed {
			return apperror.Conflict("promotion already redeemed on this order")
		}

		if err := s.checkStackable(ctx, tx, orderID, promotion); err != nil {
			return err
		}

		err = s.reservationRepo.UpsertDraft(ctx, tx, &model.PromotionReservation{
			OrderID:        orderID,
			PromotionID:    promotion.ID,
			Code:           promotion.Code,
			DiscountAmount: result.DiscountAmount,
			Status:         model.ReservationStatusDraft,
			IdempotencyKey: redemptionKey(orderID, promotion.ID),
		})
		if err != nil {
			return fmt.Errorf("store promotion reservation: %w", err)
		}
		if err := s.totals.refresh(ctx, tx, order); err != nil {
			return fmt.Errorf("recalculate order totals: %w", err)
		}

		reservation, err = s.reservationRepo.Find(ctx, tx, orderID, promotion.ID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("promotion applied",
		zap.String("order_id", orderID),
		zap.String("code", reservation.Code),
		zap.Int64("discount", reservation.DiscountAmount),
	)
	return reservation, nil
}

// checkStackable rejects the draft when it or any other open draft on the order is exclusive.
func (s *promotionServiceImpl) checkStackable(ctx context.Context, tx *gorm.DB, orderID string, promotion *model.Promotion) error {
	drafts, err := s.reservationRepo.ListByOrder(ctx, tx, orderID, model.ReservationStatusDraft)
	if err != nil {
		return err
	}
	for _, draft := range drafts {
		if draft.PromotionID == promotion.ID {
			continue
		}
		if !promotion.Stackable {
			return apperror.Conflict(fmt.Sprintf("promotion %s cannot be combined with %s", promotion.Code, draft.Code))
		}
		other, err := s.promotionRepo.FindByID(ctx, tx, draft.PromotionID)
		if err != nil {
			return err
		}
		if !other.Stackable {
			return apperror.Conflict(fmt.Sprintf("promotion %s cannot be combined with %s", other.Code, promotion.Code))
		}
	}
	return nil
}

func (s *promotionServiceImpl) RemoveFromOrder(ctx context.Context, orderID, code string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !acceptsDiscounts(order) {
			return apperror.Conflict(fmt.Sprintf("order is %s and no longer accepts promotion changes", order.Status))
		}

		promotion, err := s.promotionRepo.FindByCode(ctx, tx, repository.NormalizeCode(code))
		if err != nil {
			return err
		}
		reservation, err := s.reservationRepo.Find(ctx, tx, orderID, promotion.ID)
		if err != nil {
			return err
		}
		if reservation == nil || reservation.Status != model.ReservationStatusDraft {
			return apperror.NotFound("promotion is not applied to this order")
		}

		if err := s.reservationRepo.UpdateStatus(ctx, tx, reservation.ID, model.ReservationStatusReleased); err != nil {
			return err
		}
		return s.totals.refresh(ctx, tx, order)
	})
}

func (s *promotionServiceImpl) Reservations(ctx context.Context, orderID string) ([]*model.PromotionReservation, error) {
	return s.reservationRepo.ListByOrder(ctx, s.db, orderID)
}

// OnOrderPaid turns every draft into a redemption. The usage counter only moves when
// the redemption row is new, so replays never double count.
func (s *promotionServiceImpl) OnOrderPaid(ctx context.Context, orderID string) error {
	var consumed int
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByID(ctx, tx, orderID)
		if err != nil {
			return err
		}
		drafts, err := s.reservationRepo.ListByOrder(ctx, tx, orderID, model.ReservationStatusDraft)
		if err != nil {
			return err
		}

		for _, draft := range drafts {
			created, err := s.promotionRepo.CreateRedemptionIfAbsent(ctx, tx, &model.PromotionRedemption{
				IdempotencyKey: redemptionKey(orderID, draft.PromotionID),
				PromotionID:    draft.PromotionID,
				OrderID:        orderID,
				CustomerID:     order.CustomerID,
				DiscountAmount: draft.DiscountAmount,
				RedeemedAt:     s.now(),
			})
			if err != nil {
				return fmt.Errorf("record redemption: %w", err)
			}
			if created {
				if err := s.promotionRepo.IncrementRedemptions(ctx, tx, draft.PromotionID); err != nil {
					return fmt.Errorf("increment redemptions: %w", err)
				}
			}
			if err := s.reservationRepo.UpdateStatus(ctx, tx, draft.ID, model.ReservationStatusConsumed); err != nil {
				return err
			}
			consumed++
		}
		return nil
	})
	if err != nil {
		return err
	}

	if consumed > 0 {
		s.log.Info("promotions redeemed", zap.String("order_id", orderID), zap.Int("count", consumed))
	}
	return nil
}

func (s *promotionServiceImpl) OnOrderCancelled(ctx context.Context, orderID string) error {
	var released int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		released, err = s.reservationRepo.ReleaseDrafts(ctx, tx, orderID)
		return err
	})
	if err != nil {
		return err
	}

	if released > 0 {
		s.log.Info("promotion reservations released", zap.String("order_id", orderID), zap.Int64("count", released))
	}
	return nil
}
