package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"storefront/internal/cache"
	"storefront/internal/config"
	"storefront/internal/handlers"
	"storefront/internal/logging"
	"storefront/internal/models"
	"storefront/internal/repositories"
	"storefront/internal/security"
	"storefront/internal/services"
	"storefront/pkg/rabbitmq"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// application owns every long-lived resource of the process.
type application struct {
	http    *fiber.App
	store   repositories.Store
	mq      *rabbitmq.Client
	closers []func() error
	logger  *slog.Logger
}

// newApplication opens the configured backends and wires the HTTP app.
func newApplication(ctx context.Context, cfg config.Config, logger *slog.Logger) (*application, error) {
	a := &application{logger: logger}

	store, err := openStore(ctx, cfg, logging.Component(logger, "store"))
	if err != nil {
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	if cfg.Catalog.Seed {
		if err := seedCatalog(ctx, store.Products(), logging.Component(logger, "seed")); err != nil {
			a.Close()
			return nil, err
		}
	}

	idem, err := a.openIdempotency(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}

	var publisher services.EventPublisher
	if cfg.RabbitMQ.URL != "" {
		mq, err := rabbitmq.NewClient(rabbitmq.Config{URL: cfg.RabbitMQ.URL}, logging.Component(logger, "rabbitmq"))
		if err != nil {
			a.Close()
			return nil, err
		}
		a.mq = mq
		a.closers = append(a.closers, mq.Close)
		publisher = mq
	}

	authService := services.NewAuthService(
		store.Users(),
		security.NewBcryptHasher(cfg.Auth.BcryptCost),
		security.NewJWTIssuer(cfg.Auth.JWTSecret),
		cfg.Auth.AccessTTL,
		cfg.Auth.RefreshTTL,
		logging.Component(logger, "auth"),
	)
	svc := handlers.Services{
		Auth:     authService,
		Catalog:  services.NewCatalogService(store.Products()),
		Carts:    services.NewCartService(store, logging.Component(logger, "cart")),
		Checkout: services.NewCheckoutService(store, publisher, idem, cfg.Checkout.Timeout, logging.Component(logger, "checkout")),
		Orders:   services.NewOrderService(store.Orders()),
	}
	a.http = handlers.NewApp(svc, handlers.Options{
		AppName:   cfg.App.Name,
		AccessLog: os.Stdout,
		Logger:    logging.Component(logger, "http"),
	})
	return a, nil
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (repositories.Store, error) {
	switch cfg.Store.Driver {
	case "memory":
		return repositories.NewMemoryStore(), nil
	case "sqlite", "postgres":
		db, err := repositories.OpenGORM(cfg.Store.Driver, cfg.Store.DSN, logger)
		if err != nil {
			return nil, err
		}
		return repositories.NewGORMStore(db), nil
	case "mongo":
		return repositories.NewMongoStore(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	default:
		return nil, fmt.Errorf("store.driver %q not supported", cfg.Store.Driver)
	}
}

// openIdempotency uses Redis when an address is configured and falls back to
// process memory otherwise.
func (a *application) openIdempotency(ctx context.Context, cfg config.Config) (services.IdempotencyStore, error) {
	if cfg.Redis.Addr == "" {
		a.logger.Info("redis not configured, idempotency keys are kept in memory")
		return cache.NewMemoryIdempotencyStore(cfg.Idempotency.TTL), nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	a.closers = append(a.closers, rdb.Close)
	return cache.NewRedisIdempotencyStore(rdb, cfg.Idempotency.TTL), nil
}

// startConsumers runs the order event consumer when RabbitMQ is enabled.
func (a *application) startConsumers(ctx context.Context) error {
	if a.mq == nil {
		return nil
	}
	return a.mq.ConsumeOrderEvents(ctx, rabbitmq.LogOrderEvent(logging.Component(a.logger, "order-consumer")))
}

// Close releases resources in reverse order of acquisition.
func (a *application) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

// seedCatalog fills an empty catalog with a few sample products.
func seedCatalog(ctx context.Context, repo repositories.ProductRepository, logger *slog.Logger) error {
	total, err := repo.Count(ctx, models.ProductFilter{})
	if err != nil {
		return err
	}
	if total > 0 {
		return nil
	}

	products := []models.Product{
		{ID: 1, Title: "Laptop", Description: "High performance laptop", Category: "electronics", Price: decimal.RequireFromString("1200.00"), Rating: 4.5, Stock: 10},
		{ID: 2, Title: "Keyboard", Description: "Mechanical keyboard", Category: "electronics", Price: decimal.RequireFromString("75.00"), Rating: 4.2, Stock: 25},
		{ID: 3, Title: "Mouse", Description: "Ergonomic wireless mouse", Category: "electronics", Price: decimal.RequireFromString("25.00"), Rating: 4.0, Stock: 50},
		{ID: 4, Title: "Desk Lamp", Description: "LED lamp with dimmer", Category: "home", Price: decimal.RequireFromString("39.90"), Rating: 4.4, Stock: 15},
		{ID: 5, Title: "Coffee Beans", Description: "Single origin, 1kg", Category: "groceries", Price: decimal.RequireFromString("18.75"), Rating: 4.7, Stock: 40},
	}
	for i := range products {
		if err := repo.Create(ctx, &products[i]); err != nil {
			return fmt.Errorf("failed to seed product %s: %w", products[i].Title, err)
		}
	}
	logger.Info("catalog seeded", "products", len(products))
	return nil
}
