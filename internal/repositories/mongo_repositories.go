package repositories

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"storefront/internal/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoProductRepository is a MongoDB implementation of ProductRepository.
type MongoProductRepository struct {
	coll *mongo.Collection
}

// List retrieves one page of products matching filter.
func (r *MongoProductRepository) List(ctx context.Context, filter models.ProductFilter, spec models.SortSpec, offset, limit int) ([]models.Product, error) {
	opts := options.Find().
		SetSort(productSortDoc(spec)).
		SetSkip(int64(offset)).
		SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, productFilterDoc(filter), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	var docs []productDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	products := make([]models.Product, 0, len(docs))
	for _, d := range docs {
		product, err := d.model()
		if err != nil {
			return nil, err
		}
		products = append(products, *product)
	}
	return products, nil
}

// Count returns the number of products matching filter.
func (r *MongoProductRepository) Count(ctx context.Context, filter models.ProductFilter) (int64, error) {
	total, err := r.coll.CountDocuments(ctx, productFilterDoc(filter))
	if err != nil {
		return 0, fmt.Errorf("failed to count products: %w", err)
	}
	return total, nil
}

// GetByID retrieves a single product by its ID.
func (r *MongoProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	var doc productDoc
	if err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFound("product", id)
		}
		return nil, fmt.Errorf("failed to get product by ID %d: %w", id, err)
	}
	return doc.model()
}

// Categories returns the distinct, sorted product categories.
func (r *MongoProductRepository) Categories(ctx context.Context) ([]string, error) {
	values, err := r.coll.Distinct(ctx, "category", bson.M{})
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	categories := make([]string, 0, len(values))
	for _, v := range values {
		if s, ok := v.(string); ok && s != "" {
			categories = append(categories, s)
		}
	}
	sort.Strings(categories)
	return categories, nil
}

// Create inserts a new product.
func (r *MongoProductRepository) Create(ctx context.Context, product *models.Product) error {
	doc, err := newProductDoc(product)
	if err != nil {
		return err
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}
	return nil
}

// DecrementStock applies {$inc: {stock: -qty}} guarded by {stock: {$gte: qty}}.
func (r *MongoProductRepository) DecrementStock(ctx context.Context, id int64, qty int) (*models.Product, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc productDoc
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"id": id, "stock": bson.M{"$gte": qty}},
		bson.M{"$inc": bson.M{"stock": -qty}},
		opts,
	).Decode(&doc)
	if err == nil {
		return doc.model()
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to decrement stock for product %d: %w", id, err)
	}

	product, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, &models.InsufficientStockError{ProductID: id, Title: product.Title, Available: product.Stock, Requested: qty}
}

// MongoCartRepository is a MongoDB implementation of CartRepository.
type MongoCartRepository struct {
	coll *mongo.Collection
}

// Get retrieves the cart owned by userID.
func (r *MongoCartRepository) Get(ctx context.Context, userID string) (*models.Cart, error) {
	var doc cartDoc
	if err := r.coll.FindOne(ctx, bson.M{"user_id": userID}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFound("cart", userID)
		}
		return nil, fmt.Errorf("failed to get cart for user %s: %w", userID, err)
	}
	return doc.model(), nil
}

// Save inserts or version-checked replaces the line list.
func (r *MongoCartRepository) Save(ctx context.Context, cart *models.Cart, expectedVersion int64) error {
	next := cart.Clone()
	next.Version = expectedVersion + 1
	next.UpdatedAt = time.Now()
	doc := newCartDoc(next)

	if expectedVersion == 0 {
		if _, err := r.coll.InsertOne(ctx, doc); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return models.ErrCartConflict
			}
			return fmt.Errorf("failed to create cart for user %s: %w", cart.UserID, err)
		}
	} else {
		res, err := r.coll.UpdateOne(ctx,
			bson.M{"user_id": cart.UserID, "version": expectedVersion},
			bson.M{"$set": bson.M{"items": doc.Items, "version": doc.Version, "updated_at": doc.UpdatedAt}},
		)
		if err != nil {
			return fmt.Errorf("failed to update cart for user %s: %w", cart.UserID, err)
		}
		if res.MatchedCount == 0 {
			return models.ErrCartConflict
		}
	}

	cart.Version = next.Version
	cart.UpdatedAt = next.UpdatedAt
	return nil
}

// MongoOrderRepository is a MongoDB implementation of OrderRepository.
type MongoOrderRepository struct {
	coll *mongo.Collection
}

// Create appends a new order.
func (r *MongoOrderRepository) Create(ctx context.Context, order *models.Order) error {
	if order.ID == "" {
		order.ID = uuid.New().String()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now()
	}
	doc, err := newOrderDoc(order)
	if err != nil {
		return err
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetByID retrieves a single order by its ID.
func (r *MongoOrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	var doc orderDoc
	if err := r.coll.FindOne(ctx, bson.M{"order_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFound("order", id)
		}
		return nil, fmt.Errorf("failed to get order by ID %s: %w", id, err)
	}
	order, err := doc.model()
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListByUser returns the user's orders in insertion order.
func (r *MongoOrderRepository) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	cursor, err := r.coll.Find(ctx, bson.M{"user_id": userID}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list orders for user %s: %w", userID, err)
	}
	var docs []orderDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	orders := make([]models.Order, 0, len(docs))
	for _, d := range docs {
		order, err := d.model()
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

// MongoUserRepository is a MongoDB implementation of UserRepository.
type MongoUserRepository struct {
	coll *mongo.Collection
}

// Create inserts a new user.
func (r *MongoUserRepository) Create(ctx context.Context, user *models.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	if _, err := r.coll.InsertOne(ctx, newUserDoc(user)); err != nil {
		switch duplicateIndex(err) {
		case userEmailIndex:
			return models.ErrDuplicateEmail
		case userUsernameIndex:
			return models.ErrDuplicateUsername
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (r *MongoUserRepository) first(ctx context.Context, field, value string) (*models.User, error) {
	var doc userDoc
	if err := r.coll.FindOne(ctx, bson.M{field: value}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, models.NewNotFound("user", value)
		}
		return nil, fmt.Errorf("failed to get user by %s %s: %w", field, value, err)
	}
	return doc.model(), nil
}

// GetByUsername retrieves a user by username.
func (r *MongoUserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	return r.first(ctx, "username", username)
}

// GetByEmail retrieves a user by email.
func (r *MongoUserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.first(ctx, "email", email)
}

// GetByID retrieves a user by id.
func (r *MongoUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	return r.first(ctx, "user_id", id)
}
