package service

import (
	"context"
	"testing"

	"order-settlement/internal/apperror"
	"order-settlement/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyToOrder_ReservesDraftAndUpdatesTotals(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPromotions(t, model.Promotion{Code: "SAVE10", Type: model.PromotionTypePercentage, DiscountValue: 1000, Active: true})
	order := f.createOrder(t, "cust-1", line("sku-1", 1, 2500))

	reservation, err := f.promotions.ApplyToOrder(ctx, order.ID, "save10", "")
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusDraft, reservation.Status)
	assert.Equal(t, int64(250), reservation.DiscountAmount)
	assert.Equal(t, "promo-redemption:"+order.ID+":1", reservation.IdempotencyKey)

	stored := f.reloadOrder(t, order.ID)
	assert.Equal(t, int64(250), stored.DiscountMinor)
	assert.Equal(t, int64(2250), stored.TotalMinor)
}

func TestApplyToOrder_ReapplyRecomputesInsteadOfStacking(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPromotions(t, model.Promotion{Code: "SAVE10", Type: model.PromotionTypePercentage, DiscountValue: 1000, Active: true})
	order := f.createOrder(t, "", line("sku-1", 1, 2500))

	_, err := f.promotions.ApplyToOrder(ctx, order.ID, "SAVE10", "")
	require.NoError(t, err)
	_, err = f.promotions.ApplyToOrder(ctx, order.ID, "SAVE10", "")
	require.NoError(t, err)

	reservations, err := f.reservationRepo.ListByOrder(ctx, f.db, order.ID)
	require.NoError(t, err)
	assert.Len(t, reservations, 1)
	assert.Equal(t, int64(250), f.reloadOrder(t, order.ID).DiscountMinor)
}

func TestApplyToOrder_InvalidCodeIsValidationError(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, "", line("sku-1", 1, 2500))

	_, err := f.promotions.ApplyToOrder(context.Background(), order.ID, "MISSING", "")

	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeValidation))
	assert.Zero(t, f.reloadOrder(t, order.ID).DiscountMinor)
}

func TestApplyToOrder_Stackability(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPromotions(t,
		model.Promotion{Code: "A", Type: model.PromotionTypeFixed, DiscountValue: 100, Active: true, Stackable: true},
		model.Promotion{Code: "B", Type: model.PromotionTypeFixed, DiscountValue: 200, Active: true, Stackable: true},
		model.Promotion{Code: "SOLO", Type: model.PromotionTypeFixed, DiscountValue: 300, Active: true},
	)
	order := f.createOrder(t, "", line("sku-1", 1, 2500))

	_, err := f.promotions.ApplyToOrder(ctx, order.ID, "A", "")
	require.NoError(t, err)
	_, err = f.promotions.ApplyToOrder(ctx, order.ID, "B", "")
	require.NoError(t, err)
	assert.Equal(t, int64(2200), f.reloadOrder(t, order.ID).TotalMinor)

	_, err = f.promotions.ApplyToOrder(ctx, order.ID, "SOLO", "")
	require.Error(t, err)
	assert.True(t, apperror.Is(err, apperror.CodeConflict))

	other := f.createOrder(t, "", line("sku-1", 1, 2500))
	_, err = f.promotions.ApplyToOrder(ctx, other.ID, "SOLO", "")
	require.NoError(t, err)
	_, err = f.promotions.ApplyToOrder(ctx, other.ID, "A", "")
	assert.True(t, apperror.Is(err, apperror.CodeConflict))
}

func TestRemoveFromOrder_RestoresTotal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPromotions(t, model.Promotion{Code: "SAVE10", Type: model.PromotionTypePercentage, DiscountValue: 1000, Active: true})
	order := f.createOrder(t, "", line("sku-1", 1, 2500))

	_, err := f.promotions.ApplyToOrder(ctx, order.ID, "SAVE10", "")
	require.NoError(t, err)
	require.NoError(t, f.promotions.RemoveFromOrder(ctx, order.ID, "SAVE10"))

	stored := f.reloadOrder(t, order.ID)
	assert.Equal(t, int64(2500), stored.TotalMinor)
	assert.Zero(t, stored.DiscountMinor)

	err = f.promotions.RemoveFromOrder(ctx, order.ID, "SAVE10")
	assert.True(t, apperror.Is(err, apperror.CodeNotFound))
}

func TestPromotionOnOrderPaid_RedeemsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPromotions(t, model.Promotion{Code: "SAVE10", Type: model.PromotionTypePercentage, DiscountValue: 1000, Active: true})
	order := f.createOrder(t, "cust-1", line("sku-1", 1, 2500))
	_, err := f.promotions.ApplyToOrder(ctx, order.ID, "SAVE10", "")
	require.NoError(t, err)

	require.NoError(t, f.promotions.OnOrderPaid(ctx, order.ID))
	require.NoError(t, f.promotions.OnOrderPaid(ctx, order.ID))

	redemptions, err := f.promotionRepo.ListRedemptionsByOrder(ctx, f.db, order.ID)
	require.NoError(t, err)
	require.Len(t, redemptions, 1)
	assert.Equal(t, int64(250), redemptions[0].DiscountAmount)
	assert.Equal(t, "cust-1", *redemptions[0].CustomerID)
	assert.Equal(t, int64(1), f.promotion(t, "SAVE10").RedemptionsCount)

	reservations, err := f.reservationRepo.ListByOrder(ctx, f.db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusConsumed, reservations[0].Status)
}

func TestPromotionOnOrderCancelled_ReleasesDrafts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedPromotions(t, model.Promotion{Code: "SAVE10", Type: model.PromotionTypePercentage, DiscountValue: 1000, Active: true})
	order := f.createOrder(t, "", line("sku-1", 1, 2500))
	_, err := f.promotions.ApplyToOrder(ctx, order.ID, "SAVE10", "")
	require.NoError(t, err)

	require.NoError(t, f.promotions.OnOrderCancelled(ctx, order.ID))
	require.NoError(t, f.promotions.OnOrderCancelled(ctx, order.ID))

	reservations, err := f.reservationRepo.ListByOrder(ctx, f.db, order.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ReservationStatusReleased, reservations[0].Status)
	assert.Zero(t, f.promotion(t, "SAVE10").RedemptionsCount)
}
