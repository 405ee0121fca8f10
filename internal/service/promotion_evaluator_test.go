package service

import (
	"context"
	"testing"
	"time"

	"order-settlement/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (f *fixture) evaluate(t *testing.T, code string, order *model.Order, customerID string) *EvaluationResult {
	t.Helper()
	result, err := f.evaluator.Evaluate(context.Background(), f.db, code, f.reloadOrder(t, order.ID), customerID)
	require.NoError(t, err)
	return result
}

func TestEvaluate_PercentageOnSingleLine(t *testing.T) {
	f := newFixture(t)
	f.seedPromotions(t, model.Promotion{Code: "SAVE10", Type: model.PromotionTypePercentage, DiscountValue: 1000, Active: true})
	order := f.createOrder(t, "", line("sku-1", 1, 2500))

	result := f.evaluate(t, " save10 ", order, "")

	assert.True(t, result.Valid)
	assert.Equal(t, int64(250), result.DiscountAmount)
}

func TestEvaluate_PercentageFloors(t *testing.T) {
	f := newFixture(t)
	f.seedPromotions(t, model.Promotion{Code: "ODD", Type: model.PromotionTypePercentage, DiscountValue: 333, Active: true})
	order := f.createOrder(t, "", line("sku-1", 1, 999))

	result := f.evaluate(t, "ODD", order, "")

	// 999 * 0.0333 = 33.2667
	assert.Equal(t, int64(33), result.DiscountAmount)
}

func TestEvaluate_FixedIsCappedAtApplicableAmount(t *testing.T) {
	f := newFixture(t)
	f.seedPromotions(t, model.Promotion{Code: "FIVER", Type: model.PromotionTypeFixed, DiscountValue: 500, Active: true})
	order := f.createOrder(t, "", line("sku-1", 1, 300))

	result := f.evaluate(t, "FIVER", order, "")

	assert.True(t, result.Valid)
	assert.Equal(t, int64(300), result.DiscountAmount)
}

func TestEvaluate_FreeItemPicksCheapestTarget(t *testing.T) {
	f := newFixture(t)
	f.seedPromotions(t, model.Promotion{
		Code: "FREESOCK", Type: model.PromotionTypeFreeItem, Active: true,
		Targets: []model.PromotionTarget{{Kind: model.TargetKindCategory, TargetID: "socks", Mode: model.TargetModeInclude}},
	})
	order := f.createOrder(t, "",
		OrderLine{ItemID: "boot", CategoryID: "shoes", Quantity: 1, UnitPrice: 100},
		OrderLine{ItemID: "wool", CategoryID: "socks", Quantity: 2, UnitPrice: 900},
		OrderLine{ItemID: "cotton", CategoryID: "socks", Quantity: 1, UnitPrice: 400},
	)

	result := f.evaluate(t, "FREESOCK", order, "")

	assert.True(t, result.Valid)
	assert.Equal(t, int64(400), result.DiscountAmount)
}

func TestEvaluate_IncludeAndExcludeTargets(t *testing.T) {
	f := newFixture(t)
	f.seedPromotions(t, model.Promotion{
		Code: "SHOES20", Type: model.PromotionTypePercentage, DiscountValue: 2000, Active: true,
		Targets: []model.PromotionTarget{
			{Kind: model.TargetKindCategory, TargetID: "shoes", Mode: model.TargetModeInclude},
			{Kind: model.TargetKindItem, TargetID: "limited", Mode: model.TargetModeExclude},
		},
	})
	order := f.createOrder(t, "",
		OrderLine{ItemID: "runner", CategoryID: "shoes", Quantity: 1, UnitPrice: 5000},
		OrderLine{ItemID: "limited", CategoryID: "shoes", Quantity: 1, UnitPrice: 9000},
		OrderLine{ItemID: "cap", CategoryID: "hats", Quantity: 1, UnitPrice: 2000},
	)

	result := f.evaluate(t, "SHOES20", order, "")

	assert.True(t, result.Valid)
	assert.Equal(t, int64(1000), result.DiscountAmount)
}

func TestEvaluate_ExcludeOnlyTargets(t *testing.T) {
	f := newFixture(t)
	f.seedPromotions(t, model.Promotion{
		Code: "NOGIFT", Type: model.PromotionTypePercentage, DiscountValue: 1000, Active: true,
		Targets: []model.PromotionTarget{{Kind: model.TargetKindCategory, TargetID: "giftcards", Mode: model.TargetModeExclude}},
	})
	order := f.createOrder(t, "",
		OrderLine{ItemID: "card", CategoryID: "giftcards", Quantity: 1, UnitPrice: 5000},
		OrderLine{ItemID: "mug", CategoryID: "kitchen", Quantity: 1, UnitPrice: 1500},
	)

	result := f.evaluate(t, "NOGIFT", order, "")

	assert.Equal(t, int64(150), result.DiscountAmount)
}

func TestEvaluate_NothingApplicable(t *testing.T) {
	f := newFixture(t)
	f.seedPromotions(t, model.Promotion{
		Code: "SHOES", Type: model.PromotionTypeFixed, DiscountValue: 500, Active: true,
		Targets: []model.PromotionTarget{{Kind: model.TargetKindCategory, TargetID: "shoes", Mode: model.TargetModeInclude}},
	})
	order := f.createOrder(t, "", OrderLine{ItemID: "cap", CategoryID: "hats", Quantity: 1, UnitPrice: 2000})

	result := f.evaluate(t, "SHOES", order, "")

	assert.False(t, result.Valid)
	assert.Equal(t, ReasonNoApplicableItems, result.Reason)
}

func TestEvaluate_InvalidReasons(t *testing.T) {
	f := newFixture(t)
	now := f.clock.Now()
	f.seedPromotions(t,
		model.Promotion{Code: "OFF", Type: model.PromotionTypeFixed, DiscountValue: 100, Active: false},
		model.Promotion{Code: "SOON", Type: model.PromotionTypeFixed, DiscountValue: 100, Active: true, ValidFrom: ptr(now.Add(time.Hour))},
		model.Promotion{Code: "OLD", Type: model.PromotionTypeFixed, DiscountValue: 100, Active: true, ValidTo: ptr(now.Add(-time.Hour))},
		model.Promotion{Code: "BIG", Type: model.PromotionTypeFixed, DiscountValue: 100, Active: true, MinOrderAmount: 10000},
		model.Promotion{Code: "USED", Type: model.PromotionTypeFixed, DiscountValue: 100, Active: true, MaxUses: ptr(int64(0))},
	)
	order := f.createOrder(t, "", line("sku-1", 1, 2500))

	cases := map[string]string{
		"NOPE": ReasonNotFound,
		"OFF":  ReasonInactive,
		"SOON": ReasonNotYetValid,
		"OLD":  ReasonExpired,
		"BIG":  ReasonMinimumOrder,
		"USED": ReasonUsageLimit,
	}
	for code, reason := range cases {
		t.Run(code, func(t *testing.T) {
			result := f.evaluate(t, code, order, "")
			assert.False(t, result.Valid)
			assert.Equal(t, reason, result.Reason)
			assert.Zero(t, result.DiscountAmount)
		})
	}
}

func TestEvaluate_CustomerUsageLimit(t *testing.T) {
	f := newFixture(t)
	f.seedPromotions(t, model.Promotion{Code: "ONCE", Type: model.PromotionTypeFixed, DiscountValue: 100, Active: true, MaxUsesPerCustomer: ptr(int64(1))})
	promotion := f.promotion(t, "ONCE")
	order := f.createOrder(t, "cust-1", line("sku-1", 1, 2500))

	_, err := f.promotionRepo.CreateRedemptionIfAbsent(context.Background(), f.db, &model.PromotionRedemption{
		IdempotencyKey: "promo-redemption:earlier:1",
		PromotionID:    promotion.ID,
		OrderID:        "earlier",
		CustomerID:     ptr("cust-1"),
		DiscountAmount: 100,
		RedeemedAt:     f.clock.Now(),
	})
	require.NoError(t, err)

	assert.Equal(t, ReasonCustomerUsageLimit, f.evaluate(t, "ONCE", order, "cust-1").Reason)
	assert.True(t, f.evaluate(t, "ONCE", order, "cust-2").Valid)
}

func TestEvaluate_EmptyCodeIsValidationError(t *testing.T) {
	f := newFixture(t)
	order := f.createOrder(t, "", line("sku-1", 1, 2500))

	_, err := f.evaluator.Evaluate(context.Background(), f.db, "  ", f.reloadOrder(t, order.ID), "")
	assert.Error(t, err)
}
