package service

import (
	"context"
	"fmt"
	"order-settlement/internal/apperror"
	"order-settlement/internal/model"
	"order-settlement/internal/money"
	"order-settlement/internal/repository"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type OrderLine struct {
	ItemID     string
	CategoryID string
	Name       string
	Quantity   int64
	UnitPrice  int64
}

type CreateOrderInput struct {
	CustomerID string
	Currency   string
	Items      []OrderLine
}

type OrderService interface {
	Create(ctx context.Context, input CreateOrderInput) (*model.Order, error)
	Get(ctx context.Context, orderID string) (*model.Order, error)
	Cancel(ctx context.Context, orderID string) (*model.Order, error)
	Complete(ctx context.Context, orderID string) (*model.Order, error)
}

type orderServiceImpl struct {
	db        *gorm.DB
	sequence  SequenceGenerator
	orderRepo repository.OrderRepository
	events    EventPublisher
	currency  string
	log       *zap.Logger
	now       func() time.Time
}

func NewOrderService(
	db *gorm.DB,
	sequence SequenceGenerator,
	orderRepo repository.OrderRepository,
	events EventPublisher,
	currency string,
	log *zap.Logger,
) OrderService {
	return &orderServiceImpl{
		db:        db,
		sequence:  sequence,
		orderRepo: orderRepo,
		events:    events,
		currency:  currency,
		log:       log,
		now:       time.Now,
	}
}

func (s *orderServiceImpl) Create(ctx context.Context, input CreateOrderInput) (*model.Order, error) {
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.currency
	}
	if currency != s.currency {
		return nil, apperror.Validation(fmt.Sprintf("currency %s is not supported", currency))
	}
	if len(input.Items) == 0 {
		return nil, apperror.Validation("order must contain at least one item")
	}

	subtotal := money.Zero(currency)
	items := make([]model.OrderItem, len(input.Items))
	for i, line := range input.Items {
		if strings.TrimSpace(line.ItemID) == "" {
			return nil, apperror.Validation("item id is required")
		}
		if line.Quantity <= 0 {
			return nil, apperror.Validation("item quantity must be positive")
		}
		unit, err := money.New(line.UnitPrice, currency)
		if err != nil {
			return nil, err
		}
		lineTotal, err := unit.Multiply(line.Quantity)
		if err != nil {
			return nil, err
		}
		if subtotal, err = subtotal.Add(lineTotal); err != nil {
			return nil, err
		}
		items[i] = model.OrderItem{
			ItemID:     line.ItemID,
			CategoryID: line.CategoryID,
			Name:       line.Name,
			Quantity:   line.Quantity,
			UnitPrice:  line.UnitPrice,
		}
	}

	order := &model.Order{
		ID:            uuid.NewString(),
		Status:        model.OrderStatusPending,
		SubtotalMinor: subtotal.Amount(),
		TotalMinor:    subtotal.Amount(),
		Currency:      currency,
		Items:         items,
	}
	if customer := strings.TrimSpace(input.CustomerID); customer != "" {
		order.CustomerID = &customer
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		number, err := s.sequence.NextInTx(ctx, tx, s.now())
		if err != nil {
			return fmt.Errorf("allocate order number: %w", err)
		}
		order.Number = number

		if err := s.orderRepo.Create(ctx, tx, order); err != nil {
			return fmt.Errorf("store order in db: %w", err)
		}
		return nil
	})
	if err != nil {
		if repository.IsLockTimeout(err) {
			return nil, apperror.Retry(err, "order sequence busy")
		}
		return nil, err
	}

	s.log.Info("order created",
		zap.String("order_id", order.ID),
		zap.String("number", order.Number),
		zap.Int64("subtotal", order.SubtotalMinor),
	)
	return order, nil
}

func (s *orderServiceImpl) Get(ctx context.Context, orderID string) (*model.Order, error) {
	return s.orderRepo.FindByID(ctx, s.db, orderID)
}

// Cancel is idempotent; cancelling again re-emits the event so releases can be re-driven.
func (s *orderServiceImpl) Cancel(ctx context.Context, orderID string) (*model.Order, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		switch {
		case order.Status == model.OrderStatusCancelled:
			return nil
		case order.Status.IsSettled():
			return apperror.Conflict(fmt.Sprintf("order is already %s", order.Status))
		case order.Status == model.OrderStatusPartial:
			return apperror.Conflict("order has confirmed payments")
		}
		return s.orderRepo.UpdateStatus(ctx, tx, orderID, model.OrderStatusCancelled)
	})
	if err != nil {
		return nil, err
	}

	if err := s.events.Publish(ctx, OrderEvent{Type: EventOrderCancelled, OrderID: orderID, OccurredAt: s.now()}); err != nil {
		return nil, fmt.Errorf("release order reservations: %w", err)
	}
	s.log.Info("order cancelled", zap.String("order_id", orderID))
	return s.orderRepo.FindByID(ctx, s.db, orderID)
}

func (s *orderServiceImpl) Complete(ctx context.Context, orderID string) (*model.Order, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := s.orderRepo.FindByIDForUpdate(ctx, tx, orderID)
		if err != nil {
			return err
		}
		switch order.Status {
		case model.OrderStatusCompleted:
			return nil
		case model.OrderStatusPaid:
			return s.orderRepo.UpdateStatus(ctx, tx, orderID, model.OrderStatusCompleted)
		}
		return apperror.Conflict(fmt.Sprintf("order is %s, only paid orders can be completed", order.Status))
	})
	if err != nil {
		return nil, err
	}
	return s.orderRepo.FindByID(ctx, s.db, orderID)
}

// orderTotals recomputes discount and total from the open promotion drafts and loyalty hold.
type orderTotals struct {
	orderRepo       repository.OrderRepository
	reservationRepo repository.ReservationRepository
	loyaltyRepo     repository.LoyaltyRepository
}

func (t *orderTotals) promotionDiscount(ctx context.Context, tx *gorm.DB, orderID string) (int64, error) {
	return t.reservationRepo.SumDraftDiscount(ctx, tx, orderID)
}

// refresh must run with the order row locked.
func (t *orderTotals) refresh(ctx context.Context, tx *gorm.DB, order *model.Order) error {
	discount, err := t.promotionDiscount(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	hold, err := t.loyaltyRepo.FindHoldingForOrder(ctx, tx, order.ID)
	if err != nil {
		return err
	}
	if hold != nil {
		discount += hold.DiscountAmount
	}

	subtotal, err := money.New(order.SubtotalMinor, order.Currency)
	if err != nil {
		return err
	}
	off, err := money.New(discount, order.Currency)
	if err != nil {
		return err
	}
	total, err := subtotal.Subtract(off)
	if err != nil {
		return err
	}

	order.DiscountMinor = discount
	order.TotalMinor = total.Amount()
	if acceptsDiscounts(order) {
		order.Status = model.OrderStatusPending
		if hold != nil {
			order.Status = model.OrderStatusHeld
		}
	}
	return t.orderRepo.UpdateTotals(ctx, tx, order)
}

// acceptsDiscounts is true until money has been confirmed against the order.
func acceptsDiscounts(order *model.Order) bool {
	return order.Status == model.OrderStatusPending || order.Status == model.OrderStatusHeld
}
