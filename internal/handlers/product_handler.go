package handlers

import (
	"log/slog"

	"storefront/internal/models"
	"storefront/internal/services"

	"github.com/gofiber/fiber/v2"
)

// ProductHandler handles HTTP requests for the catalog.
type ProductHandler struct {
	catalog *services.CatalogService
	logger  *slog.Logger
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(catalog *services.CatalogService, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{catalog: catalog, logger: logger}
}

// RegisterRoutes registers the public catalog routes.
func (h *ProductHandler) RegisterRoutes(router fiber.Router) {
	router.Get("/products", h.HandleListProducts)
	router.Get("/products/search", h.HandleSearchProducts)
	router.Get("/products/:id", h.HandleGetProduct)
	router.Get("/categories", h.HandleGetCategories)
}

// HandleListProducts serves ?page=&limit=&category=&sort=.
func (h *ProductHandler) HandleListProducts(c *fiber.Ctx) error {
	page, err := h.catalog.List(c.UserContext(), models.ProductQuery{
		Category: c.Query("category"),
		Sort:     c.Query("sort"),
		Page:     c.QueryInt("page", services.DefaultPage),
		Limit:    c.QueryInt("limit", services.DefaultLimit),
	})
	if err != nil {
		return respondError(c, h.logger, "Could not list products", err)
	}
	return c.JSON(page)
}

// HandleSearchProducts serves ?search_str=&page=&limit=.
func (h *ProductHandler) HandleSearchProducts(c *fiber.Ctx) error {
	page, err := h.catalog.Search(c.UserContext(),
		c.Query("search_str"),
		c.QueryInt("page", services.DefaultPage),
		c.QueryInt("limit", services.DefaultLimit),
	)
	if err != nil {
		return respondError(c, h.logger, "Could not search products", err)
	}
	return c.JSON(page)
}

// HandleGetProduct retrieves a single product by its ID.
func (h *ProductHandler) HandleGetProduct(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Product ID must be an integer",
			"error":   err.Error(),
		})
	}
	product, err := h.catalog.Get(c.UserContext(), int64(id))
	if err != nil {
		return respondError(c, h.logger, "Could not retrieve product", err)
	}
	return c.JSON(product)
}

// HandleGetCategories lists the distinct categories.
func (h *ProductHandler) HandleGetCategories(c *fiber.Ctx) error {
	categories, err := h.catalog.Categories(c.UserContext())
	if err != nil {
		return respondError(c, h.logger, "Could not list categories", err)
	}
	return c.JSON(fiber.Map{
		"count":      len(categories),
		"categories": categories,
	})
}
