package handlers

import (
	"log/slog"

	"storefront/internal/middleware"
	"storefront/internal/models"
	"storefront/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// IdempotencyKeyHeader lets clients retry checkout without placing a second
// order.
const IdempotencyKeyHeader = "Idempotency-Key"

// CartHandler handles HTTP requests for the cart and checkout.
type CartHandler struct {
	carts    *services.CartService
	checkout *services.CheckoutService
	validate *validator.Validate
	logger   *slog.Logger
}

// NewCartHandler creates a new CartHandler.
func NewCartHandler(carts *services.CartService, checkout *services.CheckoutService, validate *validator.Validate, logger *slog.Logger) *CartHandler {
	return &CartHandler{
		carts:    carts,
		checkout: checkout,
		validate: validate,
		logger:   logger,
	}
}

// RegisterRoutes registers the cart routes behind auth.
func (h *CartHandler) RegisterRoutes(router fiber.Router, auth fiber.Handler) {
	cartRoutes := router.Group("/cart", auth)
	cartRoutes.Get("/", h.HandleGetCart)
	cartRoutes.Post("/add", h.HandleAddToCart)
	cartRoutes.Post("/checkout", h.HandleCheckout)
	cartRoutes.Delete("/:product_id", h.HandleRemoveFromCart)
}

// HandleAddToCart adds a line, merging with an existing one.
func (h *CartHandler) HandleAddToCart(c *fiber.Ctx) error {
	var line models.CartLine
	if err := c.BodyParser(&line); err != nil {
		return invalidBody(c, err)
	}
	if err := h.validate.Struct(line); err != nil {
		return validationFailed(c, err)
	}

	cart, err := h.carts.AddLine(c.UserContext(), middleware.UserID(c), line.ProductID, line.Quantity)
	if err != nil {
		return respondError(c, h.logger, "Could not add item to cart", err)
	}
	return c.JSON(fiber.Map{
		"message": "Item added to cart",
		"items":   cart.Lines,
	})
}

// HandleGetCart returns the caller's cart; a missing cart is empty.
func (h *CartHandler) HandleGetCart(c *fiber.Ctx) error {
	cart, err := h.carts.GetCart(c.UserContext(), middleware.UserID(c))
	if err != nil {
		return respondError(c, h.logger, "Could not retrieve cart", err)
	}
	return c.JSON(cart)
}

// HandleRemoveFromCart drops one line.
func (h *CartHandler) HandleRemoveFromCart(c *fiber.Ctx) error {
	productID, err := c.ParamsInt("product_id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Product ID must be an integer",
			"error":   err.Error(),
		})
	}
	cart, err := h.carts.RemoveLine(c.UserContext(), middleware.UserID(c), int64(productID))
	if err != nil {
		return respondError(c, h.logger, "Could not remove item from cart", err)
	}
	return c.JSON(fiber.Map{
		"message": "Item removed from cart",
		"items":   cart.Lines,
	})
}

// HandleCheckout turns the cart into an order.
func (h *CartHandler) HandleCheckout(c *fiber.Ctx) error {
	receipt, replayed, err := h.checkout.CheckoutOnce(c.UserContext(), middleware.UserID(c), c.Get(IdempotencyKeyHeader))
	if err != nil {
		return respondError(c, h.logger, "Checkout failed", err)
	}

	status := fiber.StatusCreated
	if replayed {
		status = fiber.StatusOK
		c.Set("Idempotent-Replayed", "true")
	}
	return c.Status(status).JSON(fiber.Map{
		"message":  "Order placed successfully",
		"order_id": receipt.OrderID,
		"total":    receipt.Total,
		"items":    receipt.Items,
	})
}
