package models

import (
	"time"

	"github.com/shopspring/decimal"
)

const OrderStatusPending = "pending"

// OrderLine is a snapshot of a product at purchase time. It is decoupled
// from the live Product so later catalog edits never change old orders.
type OrderLine struct {
	ProductID int64           `json:"product_id"`
	Title     string          `json:"title"`
	Price     decimal.Decimal `json:"price"` // Price at decrement time
	Quantity  int             `json:"quantity"`
}

// Subtotal returns price * quantity.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

// Order is an immutable purchase record. Only Status may change after
// creation, and nothing in this service changes it.
type Order struct {
	ID        string          `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string          `json:"user_id" gorm:"index;type:varchar(36)"`
	Lines     []OrderLine     `json:"items" gorm:"serializer:json"`
	Total     decimal.Decimal `json:"total" gorm:"type:decimal(14,2)"`
	Status    string          `json:"status" gorm:"type:varchar(32)"`
	CreatedAt time.Time       `json:"created_at" gorm:"index"`
}

// Receipt is what checkout hands back to the caller.
type Receipt struct {
	OrderID string          `json:"order_id"`
	Total   decimal.Decimal `json:"total"`
	Items   []OrderLine     `json:"items"`
}

// OrderTotal sums the line subtotals.
func OrderTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total
}

// Receipt builds the checkout response for an already placed order.
func (o *Order) Receipt() *Receipt {
	return &Receipt{OrderID: o.ID, Total: o.Total, Items: o.Lines}
}

// OrderPlacedEvent is published once an order has been committed.
type OrderPlacedEvent struct {
	OrderID   string          `json:"order_id"`
	UserID    string          `json:"user_id"`
	Total     decimal.Decimal `json:"total"`
	Status    string          `json:"status"`
	Items     []OrderLine     `json:"items"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewOrderPlacedEvent(o *Order) OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Total:     o.Total,
		Status:    o.Status,
		Items:     o.Lines,
		CreatedAt: o.CreatedAt,
	}
}
