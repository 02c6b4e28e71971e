package handlers

import (
	"errors"
	"fmt"
	"log/slog"

	"storefront/internal/models"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, models.ErrInsufficientStock),
		errors.Is(err, models.ErrEmptyCart),
		errors.Is(err, models.ErrInvalidSort),
		errors.Is(err, models.ErrInvalidPagination),
		errors.Is(err, models.ErrEmptySearch),
		errors.Is(err, models.ErrInvalidQuantity),
		errors.Is(err, models.ErrDuplicateEmail),
		errors.Is(err, models.ErrDuplicateUsername):
		return fiber.StatusBadRequest
	case errors.Is(err, models.ErrBadCredential),
		errors.Is(err, models.ErrInvalidToken):
		return fiber.StatusUnauthorized
	case errors.Is(err, models.ErrCartConflict),
		errors.Is(err, models.ErrDuplicateRequest):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, logger *slog.Logger, message string, err error) error {
	status := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		logger.Error(message, "path", c.Path(), "request_id", c.Locals("requestid"), "error", err)
	}

	body := fiber.Map{
		"message": message,
		"error":   err.Error(),
	}
	var stockErr *models.InsufficientStockError
	if errors.As(err, &stockErr) {
		body["product_id"] = stockErr.ProductID
		body["available"] = stockErr.Available
	}
	return c.Status(status).JSON(body)
}

func invalidBody(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Invalid request body",
		"error":   err.Error(),
	})
}

func validationFailed(c *fiber.Ctx, err error) error {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return invalidBody(c, err)
	}
	errorMessages := make(map[string]string)
	for _, e := range validationErrors {
		errorMessages[e.Field()] = fmt.Sprintf("Field '%s' failed on the '%s' tag", e.Field(), e.Tag())
	}
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": "Validation failed",
		"errors":  errorMessages,
	})
}
