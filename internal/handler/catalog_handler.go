package handler

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v3"

	"github.com/arturoeanton/erp-vision-middleware/internal/domain"
	"github.com/arturoeanton/erp-vision-middleware/internal/port"
)

// CatalogReader lists items and sales orders across every ERP backend.
type CatalogReader interface {
	GetItems(ctx context.Context, q port.ERPQuery) domain.ItemsByOrigin
	GetSalesOrders(ctx context.Context, q port.ERPQuery) domain.OrdersByOrigin
}

// CatalogHandler serves the ERP listing routes.
type CatalogHandler struct {
	catalog CatalogReader
}

// NewCatalogHandler creates a catalog handler.
func NewCatalogHandler(catalog CatalogReader) *CatalogHandler {
	return &CatalogHandler{catalog: catalog}
}

// Register mounts the catalog routes.
func (h *CatalogHandler) Register(router fiber.Router) {
	router.Get("/Items", h.Items)
	router.Get("/SalesOrders", h.SalesOrders)
}

// Items lists items. Backend failures show up per origin, never as an HTTP error.
func (h *CatalogHandler) Items(c fiber.Ctx) error {
	return c.JSON(h.catalog.GetItems(c.Context(), queryFrom(c)))
}

// SalesOrders lists sales orders.
func (h *CatalogHandler) SalesOrders(c fiber.Ctx) error {
	return c.JSON(h.catalog.GetSalesOrders(c.Context(), queryFrom(c)))
}

// queryFrom reads the OData system query options passed by the caller.
func queryFrom(c fiber.Ctx) port.ERPQuery {
	q := port.ERPQuery{Filter: c.Query("$filter")}
	if n, err := strconv.Atoi(c.Query("$top")); err == nil && n > 0 {
		q.Top = n
	}
	if n, err := strconv.Atoi(c.Query("$skip")); err == nil && n > 0 {
		q.Skip = n
	}
	return q
}
