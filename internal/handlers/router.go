package handlers

import (
	"errors"
	"io"
	"log/slog"

	"storefront/internal/middleware"
	"storefront/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/utils"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Services bundles what the HTTP layer needs.
type Services struct {
	Auth     *services.AuthService
	Catalog  *services.CatalogService
	Carts    *services.CartService
	Checkout *services.CheckoutService
	Orders   *services.OrderService
}

// Options tunes the fiber app.
type Options struct {
	AppName   string
	AccessLog io.Writer // fiber access log; nil disables it
	Logger    *slog.Logger
}

// NewApp builds the fiber app with middleware, health, metrics and the
// /api/v1 routes.
func NewApp(svc Services, opts Options) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:      opts.AppName,
		ErrorHandler: errorHandler(opts.Logger),
	})

	app.Use(recover.New())
	app.Use(requestid.New())
	if opts.AccessLog != nil {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${locals:requestid} ${status} - ${latency} ${method} ${path}\n",
			Output: opts.AccessLog,
		}))
	}
	app.Use(cors.New())
	app.Use(middleware.Metrics())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	validate := validator.New()
	auth := middleware.AuthRequired(svc.Auth, opts.Logger)

	apiV1 := app.Group("/api/v1")
	NewProductHandler(svc.Catalog, opts.Logger).RegisterRoutes(apiV1)
	NewUserHandler(svc.Auth, validate, opts.Logger).RegisterRoutes(apiV1)
	NewCartHandler(svc.Carts, svc.Checkout, validate, opts.Logger).RegisterRoutes(apiV1, auth)
	NewOrderHandler(svc.Orders, opts.Logger).RegisterRoutes(apiV1, auth)

	return app
}

func errorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("unhandled error", "path", c.Path(), "error", err)
		}
		return c.Status(code).JSON(fiber.Map{
			"message": utils.StatusMessage(code),
			"error":   err.Error(),
		})
	}
}
