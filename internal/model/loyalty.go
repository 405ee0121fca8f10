package model

import "time"

type LoyaltyTier string

const (
	TierBronze   LoyaltyTier = "bronze"
	TierSilver   LoyaltyTier = "silver"
	TierGold     LoyaltyTier = "gold"
	TierPlatinum LoyaltyTier = "platinum"
)

type LoyaltyAccount struct {
	CustomerID     string      `gorm:"primaryKey;size:64;not null" json:"customerId"`
	PointsBalance  int64       `gorm:"not null;default:0" json:"pointsBalance"`
	PointsHeld     int64       `gorm:"not null;default:0" json:"pointsHeld"`
	LifetimePoints int64       `gorm:"not null;default:0" json:"lifetimePoints"`
	Tier           LoyaltyTier `gorm:"size:16;not null" json:"tier"`
	CreatedAt      time.Time   `json:"createdAt"`
	UpdatedAt      time.Time   `json:"updatedAt"`
}

// Available is the balance not reserved by holds.
func (a *LoyaltyAccount) Available() int64 {
	if a.PointsHeld >= a.PointsBalance {
		return 0
	}
	return a.PointsBalance - a.PointsHeld
}

type HoldStatus string

const (
	HoldStatusActive   HoldStatus = "active"
	HoldStatusConsumed HoldStatus = "consumed"
	HoldStatusReleased HoldStatus = "released"
	HoldStatusExpired  HoldStatus = "expired"
)

// HoldingStatuses still reserve points on the account.
var HoldingStatuses = []HoldStatus{HoldStatusActive, HoldStatusExpired}

type LoyaltyHold struct {
	ID             string     `gorm:"primaryKey;size:36;not null" json:"id"`
	IdempotencyKey string     `gorm:"size:191;uniqueIndex;not null" json:"idempotencyKey"`
	CustomerID     string     `gorm:"size:64;index;not null" json:"customerId"`
	OrderID        string     `gorm:"size:36;index;not null" json:"orderId"`
	PointsHeld     int64      `gorm:"not null" json:"pointsHeld"`
	DiscountAmount int64      `gorm:"not null" json:"discountAmount"`
	Status         HoldStatus `gorm:"size:16;index;not null" json:"status"`
	ExpiresAt      time.Time  `gorm:"index;not null" json:"expiresAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (h *LoyaltyHold) IsHolding() bool {
	return h.Status == HoldStatusActive || h.Status == HoldStatusExpired
}

type LedgerEntryType string

const (
	LedgerEntryEarn   LedgerEntryType = "earn"
	LedgerEntryRedeem LedgerEntryType = "redeem"
)

// LoyaltyLedgerEntry is immutable once written.
type LoyaltyLedgerEntry struct {
	IdempotencyKey string          `gorm:"primaryKey;size:191;not null" json:"idempotencyKey"`
	CustomerID     string          `gorm:"size:64;index;not null" json:"customerId"`
	OrderID        *string         `gorm:"size:36;index" json:"orderId,omitempty"`
	Type           LedgerEntryType `gorm:"size:16;not null" json:"type"`
	Points         int64           `gorm:"not null" json:"points"`
	BalanceAfter   int64           `gorm:"not null" json:"balanceAfter"`
	OccurredAt     time.Time       `gorm:"index;not null" json:"occurredAt"`
}
