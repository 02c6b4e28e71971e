package handlers

import (
	"log/slog"

	"storefront/internal/services"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
)

// UserHandler handles registration, login and token refresh.
type UserHandler struct {
	authService *services.AuthService
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewUserHandler creates a new UserHandler.
func NewUserHandler(authService *services.AuthService, validate *validator.Validate, logger *slog.Logger) *UserHandler {
	return &UserHandler{
		authService: authService,
		validate:    validate,
		logger:      logger,
	}
}

// RegisterRoutes registers the user routes with the Fiber app.
func (h *UserHandler) RegisterRoutes(router fiber.Router) {
	userRoutes := router.Group("/users")
	userRoutes.Post("/register", h.HandleRegister)
	userRoutes.Post("/login", h.HandleLogin)
	userRoutes.Post("/refresh", h.HandleRefresh)
}

// RegisterRequest represents the request body for registration.
type RegisterRequest struct {
	Username string `json:"username" validate:"required,min=3,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=72"`
}

// LoginRequest represents the request body for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshRequest carries the refresh token, in the body or the query string.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" query:"refresh_token" validate:"required"`
}

// HandleRegister handles new user registration.
func (h *UserHandler) HandleRegister(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	userID, err := h.authService.Register(c.UserContext(), req.Username, req.Email, req.Password)
	if err != nil {
		return respondError(c, h.logger, "Registration failed", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"message": "User registered",
		"user_id": userID,
	})
}

// HandleLogin authenticates by email and issues an access/refresh pair.
func (h *UserHandler) HandleLogin(c *fiber.Ctx) error {
	var req LoginRequest
	if err := c.BodyParser(&req); err != nil {
		return invalidBody(c, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	pair, err := h.authService.Login(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondError(c, h.logger, "Authentication failed", err)
	}
	return c.JSON(pair)
}

// HandleRefresh exchanges a refresh token for a new pair.
func (h *UserHandler) HandleRefresh(c *fiber.Ctx) error {
	var req RefreshRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return invalidBody(c, err)
		}
	}
	if req.RefreshToken == "" {
		req.RefreshToken = c.Query("refresh_token")
	}
	if err := h.validate.Struct(req); err != nil {
		return validationFailed(c, err)
	}

	pair, err := h.authService.Refresh(req.RefreshToken)
	if err != nil {
		return respondError(c, h.logger, "Invalid refresh token", err)
	}
	return c.JSON(pair)
}
