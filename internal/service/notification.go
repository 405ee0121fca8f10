package service

import (
	"context"
	"order-settlement/internal/model"
	"order-settlement/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

type NotificationDispatcher interface {
	OrderPaid(ctx context.Context, order *model.Order) error
	OrderCancelled(ctx context.Context, order *model.Order) error
}

// LogNotifier writes customer notifications to the log instead of delivering them.
type LogNotifier struct {
	log *zap.Logger
}

func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

func (n *LogNotifier) OrderPaid(_ context.Context, order *model.Order) error {
	n.log.Info("notify customer: order paid",
		zap.String("order_id", order.ID),
		zap.String("number", order.Number),
		zap.String("customer_id", order.Customer()),
		zap.Int64("total", order.TotalMinor),
	)
	return nil
}

func (n *LogNotifier) OrderCancelled(_ context.Context, order *model.Order) error {
	n.log.Info("notify customer: order cancelled",
		zap.String("order_id", order.ID),
		zap.String("number", order.Number),
		zap.String("customer_id", order.Customer()),
	)
	return nil
}

// SubscribeNotifications registers the dispatcher after settlement so customers hear
// about an order only once its reservations are finalized.
func SubscribeNotifications(bus *EventBus, db *gorm.DB, orderRepo repository.OrderRepository, dispatcher NotificationDispatcher) {
	load := func(ctx context.Context, orderID string) (*model.Order, error) {
		return orderRepo.FindByID(ctx, db, orderID)
	}
	bus.Subscribe(EventOrderPaid, "notification", func(ctx context.Context, event OrderEvent) error {
		order, err := load(ctx, event.OrderID)
		if err != nil {
			return err
		}
		return dispatcher.OrderPaid(ctx, order)
	})
	bus.Subscribe(EventOrderCancelled, "notification", func(ctx context.Context, event OrderEvent) error {
		order, err := load(ctx, event.OrderID)
		if err != nil {
			return err
		}
		return dispatcher.OrderCancelled(ctx, order)
	})
}
