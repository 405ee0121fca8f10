package dto

import (
	"order-settlement/internal/model"
	"time"
)

type Item struct {
	ItemID              string `json:"itemId"`
	CategoryID          string `json:"categoryId"`
	Name                string `json:"name"`
	Quantity            int64  `json:"quantity"`
	UnitPriceMinorUnits int64  `json:"unitPriceMinorUnits"`
}

type CreateOrderRequest struct {
	CustomerID string  `json:"customerId"`
	Currency   string  `json:"currency"`
	Items      []*Item `json:"items"`
}

type OrderResponse struct {
	*model.Order
	Promotions  []*model.PromotionReservation `json:"promotions,omitempty"`
	LoyaltyHold *model.LoyaltyHold            `json:"loyaltyHold,omitempty"`
}

type ApplyPromotionRequest struct {
	Code       string `json:"code"`
	CustomerID string `json:"customerId"`
}

type EvaluatePromotionRequest struct {
	OrderID    string `json:"orderId"`
	Code       string `json:"code"`
	CustomerID string `json:"customerId"`
}

type LoyaltyHoldRequest struct {
	CustomerID string `json:"customerId"`
	Points     int64  `json:"points"`
}

type PayRequest struct {
	AmountMinorUnits   *int64 `json:"amountMinorUnits"`
	IdempotencyKey     string `json:"idempotencyKey"`
	PaymentMethodToken string `json:"paymentMethodToken"`
}

type PartialPayRequest struct {
	AmountMinorUnits   int64  `json:"amountMinorUnits"`
	IdempotencyKey     string `json:"idempotencyKey"`
	PaymentMethodToken string `json:"paymentMethodToken"`
}

// PayResponse has no payment fields when the order was paid without a charge.
type PayResponse struct {
	PaymentID       string              `json:"paymentId,omitempty"`
	OrderID         string              `json:"orderId"`
	Status          model.PaymentStatus `json:"status,omitempty"`
	AmountMinor     int64               `json:"amountMinorUnits"`
	PaymentURL      string              `json:"paymentUrl,omitempty"`
	Reused          bool                `json:"reused"`
	OrderPaid       bool                `json:"orderPaid"`
	RemainingBefore *int64              `json:"remainingBeforeMinorUnits,omitempty"`
	RemainingAfter  *int64              `json:"remainingAfterMinorUnits,omitempty"`
}

type BalanceResponse struct {
	OrderID        string           `json:"orderId"`
	TotalMinor     int64            `json:"totalMinorUnits"`
	RemainingMinor int64            `json:"remainingMinorUnits"`
	Currency       string           `json:"currency"`
	Payments       []*model.Payment `json:"payments"`
}

type WebhookResponse struct {
	Key       string              `json:"key"`
	Status    model.WebhookStatus `json:"status"`
	Duplicate bool                `json:"duplicate"`
	OrderPaid bool                `json:"orderPaid"`
}

type ExpireHoldsResponse struct {
	Expired int64     `json:"expired"`
	At      time.Time `json:"at"`
}

type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}
