package models

import "time"

// CartLine is one (product, quantity) pair in a cart.
type CartLine struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"required,gt=0"`
}

// Cart is owned by exactly one user. Lines hold unique product ids; adding
// the same product again merges the quantities.
type Cart struct {
	UserID    string     `json:"user_id" gorm:"primaryKey;type:varchar(36)"`
	Lines     []CartLine `json:"items" gorm:"serializer:json"`
	Version   int64      `json:"-"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Line returns the index of the line for productID, or -1.
func (c *Cart) Line(productID int64) int {
	for i := range c.Lines {
		if c.Lines[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Empty reports whether the cart has no lines.
func (c *Cart) Empty() bool {
	return c == nil || len(c.Lines) == 0
}

// Clone returns a deep copy.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Lines = append([]CartLine(nil), c.Lines...)
	return &cp
}
