package repositories_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/repositories"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type storeFactory func(t *testing.T) repositories.Store

// backends returns a factory for every Store implementation. MongoDB runs
// only when MONGO_URI points at a replica set.
func backends() map[string]storeFactory {
	return map[string]storeFactory{
		"memory": func(t *testing.T) repositories.Store { return repositories.NewMemoryStore() },
		"sqlite": newSQLiteStore,
		"mongo":  newMongoStore,
	}
}

func newSQLiteStore(t *testing.T) repositories.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := repositories.OpenGORM("sqlite", dsn, logging.Discard())
	require.NoError(t, err)
	store := repositories.NewGORMStore(db)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newMongoStore(t *testing.T) repositories.Store {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		t.Skip("MONGO_URI not set")
	}
	ctx := context.Background()
	database := "storefront_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]

	store, err := repositories.NewMongoStore(ctx, uri, database)
	require.NoError(t, err)
	t.Cleanup(func() {
		if client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri)); err == nil {
			_ = client.Database(database).Drop(ctx)
			_ = client.Disconnect(ctx)
		}
		_ = store.Close()
	})
	return store
}

func seedCatalog(t *testing.T, store repositories.Store) {
	t.Helper()
	products := []models.Product{
		{ID: 1, Title: "Laptop", Description: "High performance laptop", Category: "electronics", Price: decimal.RequireFromString("1200.00"), Rating: 4.5, Stock: 10},
		{ID: 2, Title: "Keyboard", Description: "Mechanical keyboard", Category: "electronics", Price: decimal.RequireFromString("75.00"), Rating: 4.1, Stock: 25},
		{ID: 3, Title: "Mouse", Description: "Ergonomic wireless mouse", Category: "electronics", Price: decimal.RequireFromString("25.00"), Rating: 3.9, Stock: 50},
		{ID: 4, Title: "Novel", Description: "A long 100% paper story", Category: "books", Price: decimal.RequireFromString("12.50"), Rating: 4.8, Stock: 5},
	}
	for i := range products {
		require.NoError(t, store.Products().Create(context.Background(), &products[i]))
	}
}

func TestProductRepository_ListAndCount(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			seedCatalog(t, store)
			repo := store.Products()

			all, err := repo.List(ctx, models.ProductFilter{}, models.SortSpec{Field: "id"}, 0, 10)
			require.NoError(t, err)
			require.Len(t, all, 4)
			assert.Equal(t, int64(1), all[0].ID)

			byPrice, err := repo.List(ctx, models.ProductFilter{}, models.SortSpec{Field: "price", Descending: true}, 0, 10)
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 2, 3, 4}, ids(byPrice))

			byTitle, err := repo.List(ctx, models.ProductFilter{}, models.SortSpec{Field: "title"}, 1, 2)
			require.NoError(t, err)
			assert.Equal(t, []int64{1, 3}, ids(byTitle)) // Keyboard, [Laptop, Mouse], Novel

			books := models.ProductFilter{Category: "books"}
			count, err := repo.Count(ctx, books)
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			search := models.ProductFilter{Search: "MOUSE"}
			found, err := repo.List(ctx, search, models.SortSpec{Field: "id"}, 0, 10)
			require.NoError(t, err)
			assert.Equal(t, []int64{3}, ids(found))

			literal := models.ProductFilter{Search: "100%"}
			count, err = repo.Count(ctx, literal)
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			past, err := repo.List(ctx, models.ProductFilter{}, models.SortSpec{Field: "id"}, 40, 10)
			require.NoError(t, err)
			assert.Empty(t, past)

			categories, err := repo.Categories(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"books", "electronics"}, categories)
		})
	}
}

func TestProductRepository_DecrementStock(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			seedCatalog(t, store)
			repo := store.Products()

			p, err := repo.DecrementStock(ctx, 4, 3)
			require.NoError(t, err)
			assert.Equal(t, 2, p.Stock)
			assert.Equal(t, "Novel", p.Title)

			_, err = repo.DecrementStock(ctx, 4, 3)
			var stockErr *models.InsufficientStockError
			require.True(t, errors.As(err, &stockErr))
			assert.Equal(t, 2, stockErr.Available)
			assert.Equal(t, 3, stockErr.Requested)

			_, err = repo.DecrementStock(ctx, 99, 1)
			assert.True(t, errors.Is(err, models.ErrNotFound))

			p, err = repo.GetByID(ctx, 4)
			require.NoError(t, err)
			assert.Equal(t, 2, p.Stock)
		})
	}
}

func TestProductRepository_ConcurrentDecrement(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			seedCatalog(t, store)

			var (
				wg       sync.WaitGroup
				mu       sync.Mutex
				ok, fail int
			)
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.Products().DecrementStock(ctx, 4, 1)
					mu.Lock()
					defer mu.Unlock()
					switch {
					case err == nil:
						ok++
					case errors.Is(err, models.ErrInsufficientStock):
						fail++
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()

			assert.Equal(t, 5, ok)
			assert.Equal(t, 3, fail)
			p, err := store.Products().GetByID(ctx, 4)
			require.NoError(t, err)
			assert.Equal(t, 0, p.Stock)
		})
	}
}

func TestOpenGORM_MissingRowIsNotLogged(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&buf, nil))
	db, err := repositories.OpenGORM("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()), log)
	require.NoError(t, err)
	store := repositories.NewGORMStore(db)
	defer store.Close()

	ctx := context.Background()
	_, err = store.Products().GetByID(ctx, 42)
	assert.True(t, errors.Is(err, models.ErrNotFound))
	_, err = store.Carts().Get(ctx, "user-1")
	assert.True(t, errors.Is(err, models.ErrNotFound))

	assert.NotContains(t, buf.String(), "record not found")
}

func TestCartRepository_CompareAndSwap(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			repo := store.Carts()

			_, err := repo.Get(ctx, "user-1")
			assert.True(t, errors.Is(err, models.ErrNotFound))

			cart := &models.Cart{UserID: "user-1", Lines: []models.CartLine{{ProductID: 1, Quantity: 2}}}
			require.NoError(t, repo.Save(ctx, cart, 0))
			assert.Equal(t, int64(1), cart.Version)

			// A second create for the same user loses.
			dup := &models.Cart{UserID: "user-1", Lines: []models.CartLine{{ProductID: 2, Quantity: 1}}}
			assert.ErrorIs(t, repo.Save(ctx, dup, 0), models.ErrCartConflict)

			stored, err := repo.Get(ctx, "user-1")
			require.NoError(t, err)
			stored.Lines = append(stored.Lines, models.CartLine{ProductID: 3, Quantity: 1})
			require.NoError(t, repo.Save(ctx, stored, 1))
			assert.Equal(t, int64(2), stored.Version)

			// Stale writer.
			cart.Lines = nil
			assert.ErrorIs(t, repo.Save(ctx, cart, 1), models.ErrCartConflict)

			got, err := repo.Get(ctx, "user-1")
			require.NoError(t, err)
			assert.Equal(t, []models.CartLine{{ProductID: 1, Quantity: 2}, {ProductID: 3, Quantity: 1}}, got.Lines)
		})
	}
}

func TestOrderRepository(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			repo := store.Orders()
			base := time.Now().Add(-time.Hour)

			for i := 0; i < 3; i++ {
				order := &models.Order{
					UserID:    "user-1",
					Lines:     []models.OrderLine{{ProductID: int64(i + 1), Title: "Item", Price: decimal.RequireFromString("2.50"), Quantity: i + 1}},
					Total:     decimal.RequireFromString("2.50").Mul(decimal.NewFromInt(int64(i + 1))),
					Status:    models.OrderStatusPending,
					CreatedAt: base.Add(time.Duration(i) * time.Minute),
				}
				require.NoError(t, repo.Create(ctx, order))
				assert.NotEmpty(t, order.ID)
			}
			require.NoError(t, repo.Create(ctx, &models.Order{UserID: "user-2", Status: models.OrderStatusPending}))

			orders, err := repo.ListByUser(ctx, "user-1")
			require.NoError(t, err)
			require.Len(t, orders, 3)
			for i, o := range orders {
				assert.Equal(t, int64(i+1), o.Lines[0].ProductID)
				assert.True(t, decimal.RequireFromString("2.50").Equal(o.Lines[0].Price))
			}

			got, err := repo.GetByID(ctx, orders[2].ID)
			require.NoError(t, err)
			assert.True(t, decimal.RequireFromString("7.50").Equal(got.Total))

			_, err = repo.GetByID(ctx, "missing")
			assert.True(t, errors.Is(err, models.ErrNotFound))

			none, err := repo.ListByUser(ctx, "nobody")
			require.NoError(t, err)
			assert.Empty(t, none)
		})
	}
}

func TestUserRepository(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			repo := store.Users()

			user := &models.User{Username: "alice", Email: "alice@example.com", PasswordHash: "hash"}
			require.NoError(t, repo.Create(ctx, user))
			assert.NotEmpty(t, user.ID)

			err := repo.Create(ctx, &models.User{Username: "alice2", Email: "alice@example.com", PasswordHash: "hash"})
			assert.ErrorIs(t, err, models.ErrDuplicateEmail)
			err = repo.Create(ctx, &models.User{Username: "alice", Email: "other@example.com", PasswordHash: "hash"})
			assert.ErrorIs(t, err, models.ErrDuplicateUsername)

			require.NoError(t, repo.Create(ctx, &models.User{Username: "email", Email: "inbox@example.com", PasswordHash: "hash"}))
			err = repo.Create(ctx, &models.User{Username: "email", Email: "third@example.com", PasswordHash: "hash"})
			assert.ErrorIs(t, err, models.ErrDuplicateUsername)

			byEmail, err := repo.GetByEmail(ctx, "alice@example.com")
			require.NoError(t, err)
			assert.Equal(t, user.ID, byEmail.ID)

			byName, err := repo.GetByUsername(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, user.ID, byName.ID)

			byID, err := repo.GetByID(ctx, user.ID)
			require.NoError(t, err)
			assert.Equal(t, "hash", byID.PasswordHash)

			_, err = repo.GetByEmail(ctx, "nobody@example.com")
			assert.True(t, errors.Is(err, models.ErrNotFound))
		})
	}
}

func TestStore_AtomicRollsBack(t *testing.T) {
	for name, open := range backends() {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()
			seedCatalog(t, store)
			boom := errors.New("boom")

			err := store.Atomic(ctx, func(ctx context.Context, tx repositories.Store) error {
				if _, err := tx.Products().DecrementStock(ctx, 1, 4); err != nil {
					return err
				}
				if err := tx.Orders().Create(ctx, &models.Order{UserID: "user-1", Status: models.OrderStatusPending}); err != nil {
					return err
				}
				if err := tx.Carts().Save(ctx, &models.Cart{UserID: "user-1"}, 0); err != nil {
					return err
				}
				return boom
			})
			assert.ErrorIs(t, err, boom)

			p, err := store.Products().GetByID(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, 10, p.Stock)
			orders, err := store.Orders().ListByUser(ctx, "user-1")
			require.NoError(t, err)
			assert.Empty(t, orders)
			_, err = store.Carts().Get(ctx, "user-1")
			assert.True(t, errors.Is(err, models.ErrNotFound))

			err = store.Atomic(ctx, func(ctx context.Context, tx repositories.Store) error {
				_, err := tx.Products().DecrementStock(ctx, 1, 4)
				return err
			})
			require.NoError(t, err)
			p, err = store.Products().GetByID(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, 6, p.Stock)
		})
	}
}

func ids(products []models.Product) []int64 {
	out := make([]int64, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}
