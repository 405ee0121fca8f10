package model

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusHeld      OrderStatus = "held"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusPaid      OrderStatus = "paid"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// IsOpen reports whether the order may still take discounts and payments.
func (s OrderStatus) IsOpen() bool {
	switch s {
	case OrderStatusPending, OrderStatusHeld, OrderStatusPartial:
		return true
	}
	return false
}

// IsSettled reports whether the order reached the paid transition.
func (s OrderStatus) IsSettled() bool {
	return s == OrderStatusPaid || s == OrderStatusCompleted
}

type Order struct {
	ID            string      `gorm:"primaryKey;size:36;not null" json:"id"`
	Number        string      `gorm:"size:32;uniqueIndex;not null" json:"number"`
	Status        OrderStatus `gorm:"size:16;index;not null" json:"status"`
	CustomerID    *string     `gorm:"size:64;index" json:"customerId,omitempty"`
	SubtotalMinor int64       `gorm:"not null" json:"subtotalMinorUnits"`
	DiscountMinor int64       `gorm:"not null;default:0" json:"discountMinorUnits"`
	TotalMinor    int64       `gorm:"not null" json:"totalMinorUnits"`
	Currency      string      `gorm:"size:8;not null" json:"currency"`
	SettledAt     *time.Time  `json:"settledAt,omitempty"`
	CreatedAt     time.Time   `json:"createdAt"`
	UpdatedAt     time.Time   `json:"updatedAt"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`
}

func (o *Order) Customer() string {
	if o.CustomerID == nil {
		return ""
	}
	return *o.CustomerID
}

type OrderItem struct {
	ID uint `gorm:"primaryKey" json:"-"`
	// FK → orders.id
	OrderID    string `gorm:"size:36;index;not null" json:"-"`
	ItemID     string `gorm:"size:64;index;not null" json:"itemId"`
	CategoryID string `gorm:"size:64;index" json:"categoryId,omitempty"`
	Name       string `gorm:"size:128" json:"name,omitempty"`
	Quantity   int64  `gorm:"not null" json:"quantity"`
	UnitPrice  int64  `gorm:"not null" json:"unitPriceMinorUnits"`
}

// OrderSequence is the per-day counter behind human readable order numbers.
type OrderSequence struct {
	Prefix    string `gorm:"primaryKey;size:16;not null"`
	Day       string `gorm:"primaryKey;size:8;not null"` // YYYYMMDD
	Counter   int64  `gorm:"not null;default:0"`
	UpdatedAt time.Time
}
