package models

import "github.com/shopspring/decimal"

// Product represents a catalog entry. Stock is only ever changed by the
// guarded decrement performed during checkout.
type Product struct {
	ID          int64           `json:"id" gorm:"primaryKey;autoIncrement:false"`
	Title       string          `json:"title" gorm:"type:varchar(255)"`
	Description string          `json:"description" gorm:"type:text"`
	Category    string          `json:"category" gorm:"index;type:varchar(100)"`
	Price       decimal.Decimal `json:"price" gorm:"type:decimal(12,2)"`
	Rating      float64         `json:"rating"`
	Stock       int             `json:"stock" gorm:"check:stock >= 0"`
}

// Sortable product fields. The "-" prefix selects descending order.
var ProductSortFields = []string{"price", "rating", "title", "id"}

// ProductQuery describes a filtered, sorted, paginated catalog read.
type ProductQuery struct {
	Category string
	Search   string
	Sort     string
	Page     int
	Limit    int
}

// SortSpec is a validated sort key.
type SortSpec struct {
	Field      string
	Descending bool
}

func (s SortSpec) String() string {
	if s.Descending {
		return "-" + s.Field
	}
	return s.Field
}

// ProductFilter is the storage-level part of a ProductQuery.
type ProductFilter struct {
	Category string
	Search   string
}

// ProductPage is one page of catalog results.
type ProductPage struct {
	Total    int64     `json:"total"`
	Page     int       `json:"page"`
	Limit    int       `json:"limit"`
	Pages    int       `json:"pages"`
	Sort     string    `json:"sort,omitempty"`
	Products []Product `json:"products"`
}
