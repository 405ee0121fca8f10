package service

import (
	"context"
	"fmt"
	"order-settlement/internal/apperror"
	"order-settlement/internal/repository"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SettlementService fans order lifecycle events out to promotions and loyalty.
// Every step is idempotent, so a failed settlement can be re-driven as a whole.
type SettlementService interface {
	OnOrderPaid(ctx context.Context, orderID string) error
	OnOrderCancelled(ctx context.Context, orderID string) error
	Subscribe(bus *EventBus)
}

type settlementServiceImpl struct {
	db         *gorm.DB
	orderRepo  repository.OrderRepository
	promotions PromotionService
	loyalty    LoyaltyService
	log        *zap.Logger
	now        func() time.Time
}

func NewSettlementService(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	promotions PromotionService,
	loyalty LoyaltyService,
	log *zap.Logger,
) SettlementService {
	return &settlementServiceImpl{
		db:         db,
		orderRepo:  orderRepo,
		promotions: promotions,
		loyalty:    loyalty,
		log:        log,
		now:        time.Now,
	}
}

func (s *settlementServiceImpl) Subscribe(bus *EventBus) {
	bus.Subscribe(EventOrderPaid, "settlement", func(ctx context.Context, event OrderEvent) error {
		return s.OnOrderPaid(ctx, event.OrderID)
	})
	bus.Subscribe(EventOrderCancelled, "settlement", func(ctx context.Context, event OrderEvent) error {
		return s.OnOrderCancelled(ctx, event.OrderID)
	})
}

func (s *settlementServiceImpl) OnOrderPaid(ctx context.Context, orderID string) error {
	order, err := s.orderRepo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return err
	}
	if !order.Status.IsSettled() {
		return apperror.Conflict(fmt.Sprintf("order is %s, only paid orders can be settled", order.Status))
	}

	if err := s.promotions.OnOrderPaid(ctx, orderID); err != nil {
		return fmt.Errorf("redeem promotions: %w", err)
	}

	hold, err := s.loyalty.HoldForOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if hold != nil {
		if _, err := s.loyalty.ConsumeHold(ctx, hold.ID); err != nil {
			return fmt.Errorf("consume loyalty hold: %w", err)
		}
	}

	if customerID := order.Customer(); customerID != "" {
		if _, err := s.loyalty.EarnPointsForOrder(ctx, customerID, orderID); err != nil {
			return fmt.Errorf("earn loyalty points: %w", err)
		}
	}

	if err := s.orderRepo.MarkSettled(ctx, s.db, orderID, s.now()); err != nil {
		return fmt.Errorf("mark order settled: %w", err)
	}
	s.log.Info("order settled", zap.String("order_id", orderID))
	return nil
}

func (s *settlementServiceImpl) OnOrderCancelled(ctx context.Context, orderID string) error {
	order, err := s.orderRepo.FindByID(ctx, s.db, orderID)
	if err != nil {
		return err
	}
	if order.Status.IsSettled() {
		return apperror.Conflict(fmt.Sprintf("order is %s and cannot be released", order.Status))
	}

	if err := s.promotions.OnOrderCancelled(ctx, orderID); err != nil {
		return fmt.Errorf("release promotions: %w", err)
	}

	hold, err := s.loyalty.HoldForOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if hold != nil {
		if err := s.loyalty.ReleaseHold(ctx, hold.ID); err != nil {
			return fmt.Errorf("release loyalty hold: %w", err)
		}
	}
	return nil
}
