package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/arc-self/order-lifecycle/internal/domain"
	"github.com/arc-self/order-lifecycle/internal/service"
	"github.com/arc-self/order-lifecycle/internal/tracing"
)

// fakeOrderService is a hand-rolled fake matching the teacher's
// function-field mock style, sized down to this interface's three methods.
type fakeOrderService struct {
	createFn func(ctx context.Context, in service.CreateOrderInput) (domain.Order, error)
	getFn    func(ctx context.Context, id string) (domain.Order, error)
	listFn   func(ctx context.Context, skip, limit int32) ([]domain.Order, error)
}

func (f *fakeOrderService) CreateOrder(ctx context.Context, in service.CreateOrderInput) (domain.Order, error) {
	return f.createFn(ctx, in)
}
func (f *fakeOrderService) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	return f.getFn(ctx, id)
}
func (f *fakeOrderService) ListOrders(ctx context.Context, skip, limit int32) ([]domain.Order, error) {
	return f.listFn(ctx, skip, limit)
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

func TestCreateOrderReturns200OnSuccess(t *testing.T) {
	svc := &fakeOrderService{
		createFn: func(ctx context.Context, in service.CreateOrderInput) (domain.Order, error) {
			assert.Equal(t, "user-1", in.UserID)
			return domain.Order{ID: "order-1", UserID: in.UserID, Status: domain.OrderStatusPending}, nil
		},
	}
	h := NewOrderHandler(svc, zap.NewNop())
	e := newTestEcho()
	h.Register(e)

	body, _ := json.Marshal(createOrderRequest{
		UserID: "user-1", TotalAmount: "9.99", Currency: "USD",
		Items: []orderItemRequest{{ProductID: "p1", Quantity: 1, Price: "9.99"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got domain.Order
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "order-1", got.ID)
}

func TestCreateOrderEstablishesTraceContext(t *testing.T) {
	var gotCtx context.Context
	svc := &fakeOrderService{
		createFn: func(ctx context.Context, in service.CreateOrderInput) (domain.Order, error) {
			gotCtx = ctx
			return domain.Order{ID: "order-1", UserID: in.UserID}, nil
		},
	}
	h := NewOrderHandler(svc, zap.NewNop())
	e := newTestEcho()
	h.Register(e)

	body, _ := json.Marshal(createOrderRequest{
		UserID: "user-1", TotalAmount: "9.99", Currency: "USD",
		Items: []orderItemRequest{{ProductID: "p1", Quantity: 1, Price: "9.99"}},
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	tc, ok := tracing.FromContext(gotCtx)
	require.True(t, ok, "CreateOrder must receive a context carrying a trace context")
	assert.Len(t, tc.TraceID, 32)
	assert.Len(t, tc.SpanID, 16)
}

func TestCreateOrderReturns404OnUserNotFound(t *testing.T) {
	svc := &fakeOrderService{
		createFn: func(ctx context.Context, in service.CreateOrderInput) (domain.Order, error) {
			return domain.Order{}, service.ErrUserNotFound
		},
	}
	h := NewOrderHandler(svc, zap.NewNop())
	e := newTestEcho()
	h.Register(e)

	body, _ := json.Marshal(createOrderRequest{UserID: "user-x", TotalAmount: "1", Currency: "USD",
		Items: []orderItemRequest{{ProductID: "p1", Quantity: 1, Price: "1"}}})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders", bytes.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrderReturns404WhenMissing(t *testing.T) {
	svc := &fakeOrderService{
		getFn: func(ctx context.Context, id string) (domain.Order, error) {
			return domain.Order{}, service.ErrNotFound
		},
	}
	h := NewOrderHandler(svc, zap.NewNop())
	e := newTestEcho()
	h.Register(e)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders/missing", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListOrdersDefaultsSkipAndLimit(t *testing.T) {
	svc := &fakeOrderService{
		listFn: func(ctx context.Context, skip, limit int32) ([]domain.Order, error) {
			assert.Equal(t, int32(0), skip)
			assert.Equal(t, int32(defaultListLimit), limit)
			return []domain.Order{{ID: "order-1"}}, nil
		},
	}
	h := NewOrderHandler(svc, zap.NewNop())
	e := newTestEcho()
	h.Register(e)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		Data  []domain.Order `json:"data"`
		Count int            `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, 1, got.Count)
}

func TestListOrdersCapsLimitAtMax(t *testing.T) {
	svc := &fakeOrderService{
		listFn: func(ctx context.Context, skip, limit int32) ([]domain.Order, error) {
			assert.Equal(t, int32(maxListLimit), limit)
			return nil, nil
		},
	}
	h := NewOrderHandler(svc, zap.NewNop())
	e := newTestEcho()
	h.Register(e)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders?limit=10000", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}
