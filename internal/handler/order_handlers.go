// Package handler implements the §4.7/§4.8/§6.1 HTTP surface: the order API
// (create/get/list) and the health/metrics endpoints, following the
// teacher's per-resource handler-struct style (abc-service's ItemHandler).
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/arc-self/order-lifecycle/internal/service"
	"github.com/arc-self/order-lifecycle/internal/tracing"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// OrderHandler wires the order service into the §6.1 HTTP surface.
type OrderHandler struct {
	svc    service.OrderService
	logger *zap.Logger
}

// NewOrderHandler constructs an OrderHandler.
func NewOrderHandler(svc service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, logger: logger}
}

// Register mounts the order routes on e.
func (h *OrderHandler) Register(e *echo.Echo) {
	orders := e.Group("/api/v1/orders")
	orders.POST("", h.CreateOrder)
	orders.GET("/:id", h.GetOrder)
	orders.GET("", h.ListOrders)
}

type orderItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int32  `json:"quantity" validate:"required"`
	Price     string `json:"price" validate:"required"`
}

// createOrderRequest is the §6.2-shaped OrderCreate body.
type createOrderRequest struct {
	UserID          string             `json:"user_id" validate:"required"`
	TotalAmount     string             `json:"total_amount" validate:"required"`
	Currency        string             `json:"currency" validate:"required"`
	ShippingAddress *string            `json:"shipping_address,omitempty"`
	Items           []orderItemRequest `json:"items" validate:"required"`
}

// CreateOrder handles POST /api/v1/orders (§4.7, §6.1): validates the user,
// then atomically writes the order, items, and order.created outbox row.
func (h *OrderHandler) CreateOrder(c echo.Context) error {
	var req createOrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errResp("invalid request body"))
	}

	items := make([]service.CreateOrderItem, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.CreateOrderItem{
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			Price:     it.Price,
		})
	}

	// Order creation starts a new unit of work (§9), so it mints a fresh
	// trace context rather than inheriting one — there is no inbound
	// traceparent to parse on this edge, only ones the outbox hands onward.
	ctx := tracing.WithContext(c.Request().Context(), tracing.New())

	order, err := h.svc.CreateOrder(ctx, service.CreateOrderInput{
		UserID:          req.UserID,
		TotalAmount:     req.TotalAmount,
		Currency:        req.Currency,
		ShippingAddress: req.ShippingAddress,
		Items:           items,
	})
	if err != nil {
		return h.writeServiceError(c, err)
	}

	return c.JSON(http.StatusOK, order)
}

// GetOrder handles GET /api/v1/orders/:id (§5 supplement).
func (h *OrderHandler) GetOrder(c echo.Context) error {
	order, err := h.svc.GetOrder(c.Request().Context(), c.Param("id"))
	if err != nil {
		return h.writeServiceError(c, err)
	}
	return c.JSON(http.StatusOK, order)
}

// ListOrders handles GET /api/v1/orders?skip=&limit= (§6.1: default
// skip=0, limit=100, ordered by created_at desc).
func (h *OrderHandler) ListOrders(c echo.Context) error {
	skip, limit := parsePagination(c)

	orders, err := h.svc.ListOrders(c.Request().Context(), skip, limit)
	if err != nil {
		h.logger.Error("ListOrders failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errResp("failed to list orders"))
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"data":  orders,
		"count": len(orders),
	})
}

// writeServiceError maps service sentinel errors to the §4.7 status codes:
// ErrUserNotFound/ErrNotFound → 404, ErrInvalidInput → 400, else 500 without
// leaking internal error text (§7).
func (h *OrderHandler) writeServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, errResp("user not found or not active"))
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, errResp("order not found"))
	case errors.Is(err, service.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, errResp(err.Error()))
	default:
		h.logger.Error("order request failed", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errResp("internal error"))
	}
}

// parsePagination reads skip/limit query parameters, capping limit and
// defaulting both — mirrors audit-service's parsePagination idiom.
func parsePagination(c echo.Context) (int32, int32) {
	skip := int32(0)
	limit := int32(defaultListLimit)

	if v := c.QueryParam("skip"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			skip = int32(n)
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = int32(n)
		}
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	return skip, limit
}

func errResp(msg string) map[string]string {
	return map[string]string{"error": msg}
}
