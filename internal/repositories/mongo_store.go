package repositories

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	productsCollection = "products"
	cartsCollection    = "carts"
	ordersCollection   = "orders"
	usersCollection    = "users"

	userEmailIndex    = "email_1"
	userUsernameIndex = "username_1"
)

// duplicateKeyCode is the server error code for a unique index violation.
const duplicateKeyCode = 11000

var dupIndexPattern = regexp.MustCompile(`index: (\S+) dup key`)

// MongoStore is a MongoDB implementation of Store. Atomic uses multi-document
// transactions, so the server must run as a replica set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects, pings and ensures the unique indexes.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(database)}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	unique := func(keys bson.D) mongo.IndexModel {
		return mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true)}
	}
	named := func(keys bson.D, name string) mongo.IndexModel {
		return mongo.IndexModel{Keys: keys, Options: options.Index().SetUnique(true).SetName(name)}
	}
	indexes := map[string][]mongo.IndexModel{
		productsCollection: {unique(bson.D{{Key: "id", Value: 1}}), {Keys: bson.D{{Key: "category", Value: 1}}}},
		cartsCollection:    {unique(bson.D{{Key: "user_id", Value: 1}})},
		ordersCollection:   {unique(bson.D{{Key: "order_id", Value: 1}}), {Keys: bson.D{{Key: "user_id", Value: 1}}}},
		usersCollection: {
			unique(bson.D{{Key: "user_id", Value: 1}}),
			named(bson.D{{Key: "email", Value: 1}}, userEmailIndex),
			named(bson.D{{Key: "username", Value: 1}}, userUsernameIndex),
		},
	}
	for name, idx := range indexes {
		if _, err := s.db.Collection(name).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	return nil
}

func (s *MongoStore) Products() ProductRepository {
	return &MongoProductRepository{coll: s.db.Collection(productsCollection)}
}

func (s *MongoStore) Carts() CartRepository {
	return &MongoCartRepository{coll: s.db.Collection(cartsCollection)}
}

func (s *MongoStore) Orders() OrderRepository {
	return &MongoOrderRepository{coll: s.db.Collection(ordersCollection)}
}

func (s *MongoStore) Users() UserRepository {
	return &MongoUserRepository{coll: s.db.Collection(usersCollection)}
}

// Atomic runs fn inside a session transaction. The repositories pick the
// session up from the ctx handed to fn.
func (s *MongoStore) Atomic(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx, s)
	}
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start MongoDB session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc, s)
	})
	return err
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// duplicateIndex names the unique index a write violated, or "" when err is
// not a duplicate key error.
func duplicateIndex(err error) string {
	var we mongo.WriteException
	if !errors.As(err, &we) {
		return ""
	}
	for _, e := range we.WriteErrors {
		if e.Code != duplicateKeyCode {
			continue
		}
		if m := dupIndexPattern.FindStringSubmatch(e.Message); m != nil {
			return m[1]
		}
	}
	return ""
}
