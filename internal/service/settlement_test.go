package service

import (
	"context"
	"errors"
	"testing"

	"order-settlement/internal/apperror"
	"order-settlement/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestCancel_ReleasesPromotionAndHold(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPromotions(t, model.Promotion{Code: "SAVE10", Type: model.PromotionTypePercentage, DiscountValue: 1000, Active: true})
	f.creditPoints(t, "cust-1", 1000)
	order := f.createOrder(t, "cust-1", line("sku-1", 1, 10000))

	_, err := f.promotions.ApplyToOrder(ctx, order.ID, "SAVE10", "")
	require.NoError(t, err)
	hold, err := f.loyalty.CreateOrRefreshHold(ctx, "cust-1", order.ID, 400)
	require.NoError(t, err)
	assert.Equal(t, int64(8600), f.reloadOrder(t, order.ID).TotalMinor)

	cancelled, err := f.orders.Cancel(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCancelled, cancelled.Status)

	_, err = f.orders.Cancel(ctx, order.ID)
	require.NoError(t, err)

	reservations, err := f.reservationRepo.ListByOrder(ctx, f.db, order.ID)
	require.NoError(t, err)
	require.Len(t, reservations, 1)
	assert.Equal(t, model.ReservationStatusReleased, reservations[0].Status)

	storedHold, err := f.loyaltyRepo.FindHold(ctx, f.db, hold.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HoldStatusReleased, storedHold.Status)

	redemptions, err := f.promotionRepo.ListRedemptionsByOrder(ctx, f.db, order.ID)
	require.NoError(t, err)
	assert.Empty(t, redemptions)
	entries, err := f.loyaltyRepo.ListLedgerByOrder(ctx, f.db, order.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)

	account := f.account(t, "cust-1")
	assert.Equal(t, int64(1000), account.PointsBalance)
	assert.Zero(t, account.PointsHeld)
}

func TestCancel_RejectsPaidOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, "", line("sku-1", 1, 1000))
	initiated, err := f.payments.Initiate(ctx, InitiateRequest{OrderID: order.ID})
	require.NoError(t, err)
	_, err = f.deliver(t, "evt_1", initiated.Payment, model.GatewayStateConfirmed)
	require.NoError(t, err)

	_, err = f.orders.Cancel(ctx, order.ID)
	assert.True(t, apperror.Is(err, apperror.CodeConflict))
}

func TestSettlement_RedeemsPromotionConsumesHoldAndEarns(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPromotions(t, model.Promotion{Code: "SAVE10", Type: model.PromotionTypePercentage, DiscountValue: 1000, Active: true})
	f.creditPoints(t, "cust-1", 1000)
	order := f.createOrder(t, "cust-1", line("sku-1", 1, 10000))
	_, err := f.promotions.ApplyToOrder(ctx, order.ID, "SAVE10", "")
	require.NoError(t, err)
	_, err = f.loyalty.CreateOrRefreshHold(ctx, "cust-1", order.ID, 400)
	require.NoError(t, err)

	initiated, err := f.payments.Initiate(ctx, InitiateRequest{OrderID: order.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(8600), initiated.Payment.Amount)
	_, err = f.deliver(t, "evt_1", initiated.Payment, model.GatewayStateConfirmed)
	require.NoError(t, err)

	// running settlement again changes nothing
	require.NoError(t, f.settlement.OnOrderPaid(ctx, order.ID))

	assert.Equal(t, int64(1), f.promotion(t, "SAVE10").RedemptionsCount)
	account := f.account(t, "cust-1")
	assert.Equal(t, int64(1000-400+86), account.PointsBalance)
	assert.Zero(t, account.PointsHeld)
}

func TestSettlement_OnOrderPaidRequiresPaidOrder(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, "", line("sku-1", 1, 1000))

	err := f.settlement.OnOrderPaid(context.Background(), order.ID)
	assert.True(t, apperror.Is(err, apperror.CodeConflict))
}

func TestComplete_OnlyFromPaid(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.createOrder(t, "", line("sku-1", 1, 1000))

	_, err := f.orders.Complete(ctx, order.ID)
	assert.True(t, apperror.Is(err, apperror.CodeConflict))

	initiated, err := f.payments.Initiate(ctx, InitiateRequest{OrderID: order.ID})
	require.NoError(t, err)
	_, err = f.deliver(t, "evt_1", initiated.Payment, model.GatewayStateConfirmed)
	require.NoError(t, err)

	completed, err := f.orders.Complete(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OrderStatusCompleted, completed.Status)
}

func TestEventBus_RunsAllHandlersAndJoinsErrors(t *testing.T) {
	bus := NewEventBus(zaptest.NewLogger(t))
	var calls []string
	bus.Subscribe(EventOrderPaid, "first", func(context.Context, OrderEvent) error {
		calls = append(calls, "first")
		return errors.New("boom")
	})
	bus.Subscribe(EventOrderPaid, "second", func(context.Context, OrderEvent) error {
		calls = append(calls, "second")
		return nil
	})
	bus.Subscribe(EventOrderCancelled, "other", func(context.Context, OrderEvent) error {
		calls = append(calls, "other")
		return nil
	})

	err := bus.Publish(context.Background(), OrderEvent{Type: EventOrderPaid, OrderID: "o-1"})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "first: boom")
	assert.Equal(t, []string{"first", "second"}, calls)
}

type recordingNotifier struct {
	paid, cancelled []string
}

func (n *recordingNotifier) OrderPaid(_ context.Context, order *model.Order) error {
	n.paid = append(n.paid, order.Number)
	return nil
}

func (n *recordingNotifier) OrderCancelled(_ context.Context, order *model.Order) error {
	n.cancelled = append(n.cancelled, order.Number)
	return nil
}

func TestSubscribeNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	notifier := &recordingNotifier{}
	SubscribeNotifications(f.bus, f.db, f.orderRepo, notifier)

	paid := f.createOrder(t, "", line("sku-1", 1, 1000))
	initiated, err := f.payments.Initiate(ctx, InitiateRequest{OrderID: paid.ID})
	require.NoError(t, err)
	_, err = f.deliver(t, "evt_1", initiated.Payment, model.GatewayStateConfirmed)
	require.NoError(t, err)

	cancelled := f.createOrder(t, "", line("sku-1", 1, 1000))
	_, err = f.orders.Cancel(ctx, cancelled.ID)
	require.NoError(t, err)

	assert.Equal(t, []string{paid.Number}, notifier.paid)
	assert.Equal(t, []string{cancelled.Number}, notifier.cancelled)
}
