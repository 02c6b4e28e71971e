package repositories

import (
	"fmt"
	"regexp"
	"time"

	"storefront/internal/models"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Persistence shapes for MongoDB. decimal.Decimal has no BSON codec, so money
// travels as Decimal128.

type productDoc struct {
	ID          int64                `bson:"id"`
	Title       string               `bson:"title"`
	Description string               `bson:"description"`
	Category    string               `bson:"category"`
	Price       primitive.Decimal128 `bson:"price"`
	Rating      float64              `bson:"rating"`
	Stock       int                  `bson:"stock"`
}

type cartLineDoc struct {
	ProductID int64 `bson:"product_id"`
	Quantity  int   `bson:"quantity"`
}

type cartDoc struct {
	UserID    string        `bson:"user_id"`
	Items     []cartLineDoc `bson:"items"`
	Version   int64         `bson:"version"`
	UpdatedAt time.Time     `bson:"updated_at"`
}

type orderLineDoc struct {
	ProductID int64                `bson:"product_id"`
	Title     string               `bson:"title"`
	Price     primitive.Decimal128 `bson:"price"`
	Quantity  int                  `bson:"quantity"`
}

type orderDoc struct {
	OrderID   string               `bson:"order_id"`
	UserID    string               `bson:"user_id"`
	Items     []orderLineDoc       `bson:"items"`
	Total     primitive.Decimal128 `bson:"total"`
	Status    string               `bson:"status"`
	CreatedAt time.Time            `bson:"created_at"`
}

type userDoc struct {
	UserID    string    `bson:"user_id"`
	Username  string    `bson:"username"`
	Email     string    `bson:"email"`
	Password  string    `bson:"password"`
	CreatedAt time.Time `bson:"created_at"`
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("failed to encode decimal %s: %w", d, err)
	}
	return v, nil
}

// fromDecimal128 rejects NaN and infinities, which have no decimal form.
func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to decode decimal %s: %w", v, err)
	}
	return d, nil
}

func newProductDoc(p *models.Product) (productDoc, error) {
	price, err := toDecimal128(p.Price)
	if err != nil {
		return productDoc{}, err
	}
	return productDoc{
		ID:          p.ID,
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		Price:       price,
		Rating:      p.Rating,
		Stock:       p.Stock,
	}, nil
}

func (d productDoc) model() (*models.Product, error) {
	price, err := fromDecimal128(d.Price)
	if err != nil {
		return nil, fmt.Errorf("product %d price: %w", d.ID, err)
	}
	return &models.Product{
		ID:          d.ID,
		Title:       d.Title,
		Description: d.Description,
		Category:    d.Category,
		Price:       price,
		Rating:      d.Rating,
		Stock:       d.Stock,
	}, nil
}

func newCartDoc(c *models.Cart) cartDoc {
	items := make([]cartLineDoc, 0, len(c.Lines))
	for _, l := range c.Lines {
		items = append(items, cartLineDoc{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return cartDoc{UserID: c.UserID, Items: items, Version: c.Version, UpdatedAt: c.UpdatedAt}
}

func (d cartDoc) model() *models.Cart {
	lines := make([]models.CartLine, 0, len(d.Items))
	for _, l := range d.Items {
		lines = append(lines, models.CartLine{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return &models.Cart{UserID: d.UserID, Lines: lines, Version: d.Version, UpdatedAt: d.UpdatedAt}
}

func newOrderDoc(o *models.Order) (orderDoc, error) {
	total, err := toDecimal128(o.Total)
	if err != nil {
		return orderDoc{}, err
	}
	items := make([]orderLineDoc, 0, len(o.Lines))
	for _, l := range o.Lines {
		price, err := toDecimal128(l.Price)
		if err != nil {
			return orderDoc{}, err
		}
		items = append(items, orderLineDoc{ProductID: l.ProductID, Title: l.Title, Price: price, Quantity: l.Quantity})
	}
	return orderDoc{
		OrderID:   o.ID,
		UserID:    o.UserID,
		Items:     items,
		Total:     total,
		Status:    o.Status,
		CreatedAt: o.CreatedAt,
	}, nil
}

func (d orderDoc) model() (models.Order, error) {
	lines := make([]models.OrderLine, 0, len(d.Items))
	for _, l := range d.Items {
		price, err := fromDecimal128(l.Price)
		if err != nil {
			return models.Order{}, fmt.Errorf("order %s line %d price: %w", d.OrderID, l.ProductID, err)
		}
		lines = append(lines, models.OrderLine{ProductID: l.ProductID, Title: l.Title, Price: price, Quantity: l.Quantity})
	}
	total, err := fromDecimal128(d.Total)
	if err != nil {
		return models.Order{}, fmt.Errorf("order %s total: %w", d.OrderID, err)
	}
	return models.Order{
		ID:        d.OrderID,
		UserID:    d.UserID,
		Lines:     lines,
		Total:     total,
		Status:    d.Status,
		CreatedAt: d.CreatedAt,
	}, nil
}

func newUserDoc(u *models.User) userDoc {
	return userDoc{UserID: u.ID, Username: u.Username, Email: u.Email, Password: u.PasswordHash, CreatedAt: u.CreatedAt}
}

func (d userDoc) model() *models.User {
	return &models.User{ID: d.UserID, Username: d.Username, Email: d.Email, PasswordHash: d.Password, CreatedAt: d.CreatedAt}
}

// productFilterDoc matches the exact category, and a
// case-insensitive match on title or description.
func productFilterDoc(filter models.ProductFilter) bson.M {
	query := bson.M{}
	if filter.Category != "" {
		query["category"] = filter.Category
	}
	if filter.Search != "" {
		re := primitive.Regex{Pattern: regexp.QuoteMeta(filter.Search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"title": re},
			bson.M{"description": re},
		}
	}
	return query
}

func productSortDoc(sort models.SortSpec) bson.D {
	order := 1
	if sort.Descending {
		order = -1
	}
	doc := bson.D{{Key: sort.Field, Value: order}}
	if sort.Field != "id" {
		doc = append(doc, bson.E{Key: "id", Value: 1})
	}
	return doc
}
