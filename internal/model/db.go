package model

import "time"

type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "created"
	PaymentStatusInitiated PaymentStatus = "initiated"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusExpired   PaymentStatus = "expired"

	// paid and completed are accepted from legacy gateway mappings and count as settled money
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusCompleted PaymentStatus = "completed"
)

// SettledPaymentStatuses are the statuses whose amounts count towards the order total.
var SettledPaymentStatuses = []PaymentStatus{
	PaymentStatusConfirmed,
	PaymentStatusPaid,
	PaymentStatusCompleted,
}

type Payment struct {
	ID                   string        `gorm:"primaryKey;size:36;not null" json:"id"`
	OrderID              string        `gorm:"size:36;index;not null" json:"orderId"`
	IdempotencyKey       string        `gorm:"size:191;uniqueIndex;not null" json:"idempotencyKey"`
	GatewayTransactionID string        `gorm:"size:128;index" json:"gatewayTransactionId,omitempty"`
	LocalCorrelationID   string        `gorm:"size:64;uniqueIndex;not null" json:"localCorrelationId"`
	Amount               int64         `gorm:"not null" json:"amountMinorUnits"`
	Currency             string        `gorm:"size:8;not null" json:"currency"`
	Status               PaymentStatus `gorm:"size:16;index;not null" json:"status"`
	PaymentURL           string        `gorm:"size:512" json:"paymentUrl,omitempty"`
	RawResponse          string        `gorm:"type:text" json:"-"`
	CreatedAt            time.Time     `json:"createdAt"`
	UpdatedAt            time.Time     `json:"updatedAt"`
}

type WebhookStatus string

const (
	WebhookStatusReceived  WebhookStatus = "received"
	WebhookStatusProcessed WebhookStatus = "processed"
	WebhookStatusRejected  WebhookStatus = "rejected"
	WebhookStatusFailed    WebhookStatus = "failed"
)

// WebhookRecord is the raw inbound notification, stored before it is interpreted.
type WebhookRecord struct {
	IdempotencyKey string        `gorm:"primaryKey;size:191;not null"`
	GatewayEventID string        `gorm:"size:128;index"`
	RawPayload     string        `gorm:"type:text;not null"`
	Signature      string        `gorm:"size:256"`
	Status         WebhookStatus `gorm:"size:16;index;not null"`
	Error          string        `gorm:"type:text"`
	ProcessedAt    *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
