package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type EventType string

const (
	EventOrderPaid      EventType = "order.paid"
	EventOrderCancelled EventType = "order.cancelled"
)

type OrderEvent struct {
	Type       EventType
	OrderID    string
	OccurredAt time.Time
}

// EventHandler must be idempotent: events are delivered at least once.
type EventHandler func(ctx context.Context, event OrderEvent) error

type EventPublisher interface {
	Publish(ctx context.Context, event OrderEvent) error
}

// EventBus delivers order events synchronously, after the emitting transaction commits.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]namedHandler
	log      *zap.Logger
}

type namedHandler struct {
	name string
	fn   EventHandler
}

func NewEventBus(log *zap.Logger) *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]namedHandler),
		log:      log,
	}
}

func (b *EventBus) Subscribe(eventType EventType, name string, fn EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[eventType] = append(b.handlers[eventType], namedHandler{name: name, fn: fn})
}

// Publish runs every handler even if an earlier one fails and joins the errors.
func (b *EventBus) Publish(ctx context.Context, event OrderEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	b.mu.RLock()
	handlers := append([]namedHandler(nil), b.handlers[event.Type]...)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h.fn(ctx, event); err != nil {
			b.log.Error("order event handler failed",
				zap.String("event", string(event.Type)),
				zap.String("handler", h.name),
				zap.String("order_id", event.OrderID),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}
