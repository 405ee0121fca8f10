package model

import "time"

type PromotionType string

const (
	PromotionTypeFixed      PromotionType = "fixed"
	PromotionTypePercentage PromotionType = "percentage"
	PromotionTypeFreeItem   PromotionType = "free_item"
)

type Promotion struct {
	ID                 uint          `gorm:"primaryKey" json:"id" yaml:"-"`
	Code               string        `gorm:"size:64;uniqueIndex;not null" json:"code" yaml:"code"`
	Type               PromotionType `gorm:"size:16;not null" json:"type" yaml:"type"`
	DiscountValue      int64         `gorm:"not null" json:"discountValue" yaml:"discount_value"` // minor units or basis points
	Active             bool          `gorm:"not null" json:"active" yaml:"active"`
	ValidFrom          *time.Time    `json:"validFrom,omitempty" yaml:"valid_from"`
	ValidTo            *time.Time    `json:"validTo,omitempty" yaml:"valid_to"`
	MaxUses            *int64        `json:"maxUses,omitempty" yaml:"max_uses"`
	MaxUsesPerCustomer *int64        `json:"maxUsesPerCustomer,omitempty" yaml:"max_uses_per_customer"`
	RedemptionsCount   int64         `gorm:"not null;default:0" json:"redemptionsCount" yaml:"-"`
	MinOrderAmount     int64         `gorm:"not null;default:0" json:"minOrderAmount" yaml:"min_order_amount"`
	Stackable          bool          `gorm:"not null;default:false" json:"stackable" yaml:"stackable"`
	CreatedAt          time.Time     `json:"-" yaml:"-"`
	UpdatedAt          time.Time     `json:"-" yaml:"-"`

	Targets []PromotionTarget `gorm:"foreignKey:PromotionID" json:"targets,omitempty" yaml:"targets"`
}

type TargetKind string

const (
	TargetKindItem     TargetKind = "item"
	TargetKindCategory TargetKind = "category"
)

type TargetMode string

const (
	TargetModeInclude TargetMode = "include"
	TargetModeExclude TargetMode = "exclude"
)

type PromotionTarget struct {
	ID          uint       `gorm:"primaryKey" json:"-" yaml:"-"`
	PromotionID uint       `gorm:"index;not null" json:"-" yaml:"-"`
	Kind        TargetKind `gorm:"size:16;not null" json:"kind" yaml:"kind"`
	TargetID    string     `gorm:"size:64;not null" json:"targetId" yaml:"target_id"`
	Mode        TargetMode `gorm:"size:16;not null" json:"mode" yaml:"mode"`
}

type ReservationStatus string

const (
	ReservationStatusDraft    ReservationStatus = "draft"
	ReservationStatusConsumed ReservationStatus = "consumed"
	ReservationStatusReleased ReservationStatus = "released"
)

type PromotionReservation struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	OrderID        string            `gorm:"size:36;not null;uniqueIndex:idx_reservation_order_promotion" json:"orderId"`
	PromotionID    uint              `gorm:"not null;uniqueIndex:idx_reservation_order_promotion" json:"promotionId"`
	Code           string            `gorm:"size:64;not null" json:"code"`
	DiscountAmount int64             `gorm:"not null" json:"discountAmount"`
	Status         ReservationStatus `gorm:"size:16;index;not null" json:"status"`
	IdempotencyKey string            `gorm:"size:191;not null" json:"idempotencyKey"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// PromotionRedemption is written once, when the order is paid, and never updated.
type PromotionRedemption struct {
	IdempotencyKey string    `gorm:"primaryKey;size:191;not null" json:"idempotencyKey"`
	PromotionID    uint      `gorm:"index:idx_redemption_promotion_customer;not null" json:"promotionId"`
	OrderID        string    `gorm:"size:36;index;not null" json:"orderId"`
	CustomerID     *string   `gorm:"size:64;index:idx_redemption_promotion_customer" json:"customerId,omitempty"`
	DiscountAmount int64     `gorm:"not null" json:"discountAmount"`
	RedeemedAt     time.Time `gorm:"not null" json:"redeemedAt"`
}
