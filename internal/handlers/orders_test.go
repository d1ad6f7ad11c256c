package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/platform/auth"
	"github.com/scentora/storefront/internal/platform/pagination"
	"github.com/scentora/storefront/internal/services"
)

type stubOrderService struct {
	getFn           func(context.Context, string, string) (services.Order, error)
	statusFn        func(context.Context, string, string) (services.OrderStatusView, error)
	listFn          func(context.Context, string, services.Pagination) (domain.Page[services.Order], error)
	cancelItemFn    func(context.Context, services.CancelItemCommand) (services.CancellationResult, error)
	impactFn        func(context.Context, string, string, int) (services.CancellationImpact, error)
	cancelOrderFn   func(context.Context, services.CancelOrderCommand) (services.CancellationResult, error)
	requestReturnFn func(context.Context, services.ReturnRequestCommand) (services.Order, error)
	cancelReturnFn  func(context.Context, services.CancelReturnRequestCommand) (services.Order, error)
	approveFn       func(context.Context, services.ReturnDecisionCommand) (services.CancellationResult, error)
	rejectFn        func(context.Context, services.ReturnDecisionCommand) (services.Order, error)
	updateStatusFn  func(context.Context, services.UpdateItemStatusCommand) (services.Order, error)
}

var errStubNotImplemented = errors.New("not implemented")

func (s *stubOrderService) GetOrder(ctx context.Context, userID, orderID string) (services.Order, error) {
	if s.getFn != nil {
		return s.getFn(ctx, userID, orderID)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) GetOrderStatus(ctx context.Context, userID, orderID string) (services.OrderStatusView, error) {
	if s.statusFn != nil {
		return s.statusFn(ctx, userID, orderID)
	}
	return services.OrderStatusView{}, errStubNotImplemented
}

func (s *stubOrderService) ListOrders(ctx context.Context, userID string, pager services.Pagination) (domain.Page[services.Order], error) {
	if s.listFn != nil {
		return s.listFn(ctx, userID, pager)
	}
	return domain.Page[services.Order]{}, nil
}

func (s *stubOrderService) CancelItem(ctx context.Context, cmd services.CancelItemCommand) (services.CancellationResult, error) {
	if s.cancelItemFn != nil {
		return s.cancelItemFn(ctx, cmd)
	}
	return services.CancellationResult{}, errStubNotImplemented
}

func (s *stubOrderService) CancellationImpact(ctx context.Context, userID, orderID string, idx int) (services.CancellationImpact, error) {
	if s.impactFn != nil {
		return s.impactFn(ctx, userID, orderID, idx)
	}
	return services.CancellationImpact{}, errStubNotImplemented
}

func (s *stubOrderService) CancelOrder(ctx context.Context, cmd services.CancelOrderCommand) (services.CancellationResult, error) {
	if s.cancelOrderFn != nil {
		return s.cancelOrderFn(ctx, cmd)
	}
	return services.CancellationResult{}, errStubNotImplemented
}

func (s *stubOrderService) RequestReturn(ctx context.Context, cmd services.ReturnRequestCommand) (services.Order, error) {
	if s.requestReturnFn != nil {
		return s.requestReturnFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) CancelReturnRequest(ctx context.Context, cmd services.CancelReturnRequestCommand) (services.Order, error) {
	if s.cancelReturnFn != nil {
		return s.cancelReturnFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) ApproveReturn(ctx context.Context, cmd services.ReturnDecisionCommand) (services.CancellationResult, error) {
	if s.approveFn != nil {
		return s.approveFn(ctx, cmd)
	}
	return services.CancellationResult{}, errStubNotImplemented
}

func (s *stubOrderService) RejectReturn(ctx context.Context, cmd services.ReturnDecisionCommand) (services.Order, error) {
	if s.rejectFn != nil {
		return s.rejectFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubOrderService) UpdateItemStatus(ctx context.Context, cmd services.UpdateItemStatusCommand) (services.Order, error) {
	if s.updateStatusFn != nil {
		return s.updateStatusFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

var _ services.OrderService = (*stubOrderService)(nil)

func sampleOrder() services.Order {
	code := "SAVE150"
	placed := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	return services.Order{
		ID:          "ord_1",
		OrderNumber: "SC-2024-000001",
		UserID:      "u1",
		Items: []services.OrderItem{
			{ProductID: "p1", ProductName: "Oud Nights", VariantSize: 100, Quantity: 1, Price: 1000, Total: 1000, CouponDiscount: 100, OriginalCouponDiscount: 100, Status: domain.OrderStatusPlaced, Tracking: domain.Tracking{PlacedAt: &placed}},
			{ProductID: "p2", ProductName: "Citrus Veil", VariantSize: 50, Quantity: 2, Price: 250, Total: 500, CouponDiscount: 50, OriginalCouponDiscount: 50, Status: domain.OrderStatusPlaced},
		},
		TotalPrice:    1500,
		Discount:      150,
		FinalAmount:   1350,
		CouponApplied: true,
		CouponCode:    &code,
		PaymentMethod: domain.PaymentMethodWallet,
		PaymentStatus: domain.PaymentStatusCompleted,
		Status:        domain.OrderStatusPlaced,
		CreatedAt:     placed,
		UpdatedAt:     placed,
	}
}

func newOrderTestRouter(svc services.OrderService) chi.Router {
	router := chi.NewRouter()
	router.Route("/orders", NewOrderHandlers(nil, svc).Routes)
	return router
}

func serveAs(router http.Handler, uid, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if uid != "" {
		req = req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: []string{auth.RoleUser}}))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v (%s)", err, rr.Body.String())
	}
	return body
}

func TestOrderHandlersListOrders(t *testing.T) {
	token, err := pagination.EncodeToken(pagination.Cursor{CreatedAt: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC), ID: "ord_0"})
	if err != nil {
		t.Fatalf("encode token: %v", err)
	}
	var gotUser string
	var gotPager services.Pagination
	svc := &stubOrderService{listFn: func(_ context.Context, userID string, pager services.Pagination) (domain.Page[services.Order], error) {
		gotUser, gotPager = userID, pager
		return domain.Page[services.Order]{Items: []services.Order{sampleOrder()}, NextPageToken: "next"}, nil
	}}

	rr := serveAs(newOrderTestRouter(svc), "u1", http.MethodGet, "/orders?pageSize=5&pageToken="+token, "")

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if gotUser != "u1" || gotPager.PageSize != 5 || gotPager.PageToken != token {
		t.Fatalf("unexpected call %q %+v", gotUser, gotPager)
	}
	var resp struct {
		Success       bool           `json:"success"`
		Orders        []orderPayload `json:"orders"`
		NextPageToken string         `json:"nextPageToken"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || len(resp.Orders) != 1 || resp.NextPageToken != "next" {
		t.Fatalf("unexpected response %+v", resp)
	}
	order := resp.Orders[0]
	if order.FinalAmount != 1350 || order.Items[1].Index != 1 || order.Items[1].VariantSize != 50 {
		t.Fatalf("unexpected order payload %+v", order)
	}
	if order.Items[0].Tracking.PlacedAt != "2024-06-01T09:00:00Z" {
		t.Fatalf("unexpected tracking %+v", order.Items[0].Tracking)
	}
}

func TestOrderHandlersListOrdersRejectsBadPaging(t *testing.T) {
	router := newOrderTestRouter(&stubOrderService{})
	for _, query := range []string{"pageSize=abc", "pageSize=-1", "pageToken=bm90LWpzb24"} {
		t.Run(query, func(t *testing.T) {
			rr := serveAs(router, "u1", http.MethodGet, "/orders?"+query, "")
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d", rr.Code)
			}
		})
	}
}

func TestOrderHandlersRequireIdentity(t *testing.T) {
	rr := serveAs(newOrderTestRouter(&stubOrderService{}), "", http.MethodGet, "/orders/ord_1", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if body := decodeResponse(t, rr); body["success"] != false || body["error"] != "unauthenticated" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestOrderHandlersServiceErrorMapping(t *testing.T) {
	cases := map[string]struct {
		err     error
		status  int
		code    string
		message string
	}{
		"not found":    {fmt.Errorf("%w: ord_1", services.ErrOrderNotFound), http.StatusNotFound, "order_not_found", "order not found"},
		"conflict":     {services.ErrOrderConflict, http.StatusConflict, "order_conflict", ""},
		"invalid":      {fmt.Errorf("%w: reason is required", services.ErrOrderInvalidInput), http.StatusBadRequest, "invalid_request", "reason is required"},
		"state":        {fmt.Errorf("%w: item already shipped", services.ErrOrderInvalidState), http.StatusBadRequest, "order_invalid_state", "item already shipped"},
		"unavailable":  {services.ErrOrderUnavailable, http.StatusServiceUnavailable, "service_unavailable", ""},
		"unrecognised": {errors.New("firestore: deadline exceeded"), http.StatusInternalServerError, "internal_error", "something went wrong"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubOrderService{getFn: func(context.Context, string, string) (services.Order, error) {
				return services.Order{}, tc.err
			}}
			rr := serveAs(newOrderTestRouter(svc), "u1", http.MethodGet, "/orders/ord_1", "")
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			body := decodeResponse(t, rr)
			if body["success"] != false || body["error"] != tc.code {
				t.Fatalf("unexpected body %v", body)
			}
			if tc.message != "" && body["message"] != tc.message {
				t.Fatalf("expected message %q, got %v", tc.message, body["message"])
			}
		})
	}
}

func TestOrderHandlersCancelItemNormalisesVariantSize(t *testing.T) {
	cases := map[string]struct {
		body   string
		status int
		size   domain.VariantSize
	}{
		"number":          {`{"variantSize":100,"reason":"changed mind"}`, http.StatusOK, 100},
		"labelled string": {`{"variantSize":"100ml","reason":"changed mind"}`, http.StatusOK, 100},
		"array of one":    {`{"variantSize":["100"],"reason":"changed mind"}`, http.StatusOK, 100},
		"repeated array":  {`{"variantSize":[100,"100ml"],"reason":"changed mind"}`, http.StatusOK, 100},
		"mixed array":     {`{"variantSize":[100,50],"reason":"changed mind"}`, http.StatusBadRequest, 0},
		"missing":         {`{"reason":"changed mind"}`, http.StatusBadRequest, 0},
		"garbage":         {`{"variantSize":"large","reason":"changed mind"}`, http.StatusBadRequest, 0},
		"empty body":      {``, http.StatusBadRequest, 0},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var got services.CancelItemCommand
			svc := &stubOrderService{cancelItemFn: func(_ context.Context, cmd services.CancelItemCommand) (services.CancellationResult, error) {
				got = cmd
				return services.CancellationResult{Order: sampleOrder(), RefundAmount: 350, RefundToWallet: true, CouponRevoked: true}, nil
			}}
			rr := serveAs(newOrderTestRouter(svc), "u1", http.MethodPost, "/orders/ord_1/items/1/cancel", tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if tc.status != http.StatusOK {
				return
			}
			if got.UserID != "u1" || got.OrderID != "ord_1" || got.ItemIndex != 1 || got.VariantSize != tc.size || got.Reason != "changed mind" {
				t.Fatalf("unexpected command %+v", got)
			}
			body := decodeResponse(t, rr)
			if body["success"] != true || body["refundAmount"] != float64(350) || body["couponRevoked"] != true {
				t.Fatalf("unexpected body %v", body)
			}
		})
	}
}

func TestOrderHandlersCancelItemRejectsBadPathIndex(t *testing.T) {
	for _, idx := range []string{"-1", "x", "1.5"} {
		rr := serveAs(newOrderTestRouter(&stubOrderService{}), "u1", http.MethodPost, "/orders/ord_1/items/"+idx+"/cancel", `{"variantSize":100}`)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("index %s: expected 400, got %d", idx, rr.Code)
		}
	}
}

func TestOrderHandlersRequestReturnNormalisesItemIndex(t *testing.T) {
	cases := map[string]struct {
		body    string
		status  int
		indexes []int
		all     bool
	}{
		"number":        {`{"itemIndex":1,"reason":"leaking"}`, http.StatusOK, []int{1}, false},
		"string":        {`{"itemIndex":"0","reason":"leaking"}`, http.StatusOK, []int{0}, false},
		"array":         {`{"itemIndex":[0,"1"],"reason":"leaking"}`, http.StatusOK, []int{0, 1}, false},
		"all":           {`{"itemIndex":"all","reason":"leaking"}`, http.StatusOK, nil, true},
		"all uppercase": {`{"itemIndex":"ALL","reason":"leaking"}`, http.StatusOK, nil, true},
		"missing":       {`{"reason":"leaking"}`, http.StatusBadRequest, nil, false},
		"empty array":   {`{"itemIndex":[],"reason":"leaking"}`, http.StatusBadRequest, nil, false},
		"fraction":      {`{"itemIndex":1.5,"reason":"leaking"}`, http.StatusBadRequest, nil, false},
		"negative":      {`{"itemIndex":[-1],"reason":"leaking"}`, http.StatusBadRequest, nil, false},
		"object":        {`{"itemIndex":{"i":1},"reason":"leaking"}`, http.StatusBadRequest, nil, false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var got services.ReturnRequestCommand
			svc := &stubOrderService{requestReturnFn: func(_ context.Context, cmd services.ReturnRequestCommand) (services.Order, error) {
				got = cmd
				return sampleOrder(), nil
			}}
			rr := serveAs(newOrderTestRouter(svc), "u1", http.MethodPost, "/orders/ord_1/returns", tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if tc.status != http.StatusOK {
				return
			}
			if got.All != tc.all || len(got.ItemIndexes) != len(tc.indexes) {
				t.Fatalf("unexpected command %+v", got)
			}
			for i, idx := range tc.indexes {
				if got.ItemIndexes[i] != idx {
					t.Fatalf("unexpected indexes %v", got.ItemIndexes)
				}
			}
			if got.Reason != "leaking" {
				t.Fatalf("expected reason, got %q", got.Reason)
			}
		})
	}
}

func TestOrderHandlersCancellationImpact(t *testing.T) {
	svc := &stubOrderService{impactFn: func(_ context.Context, userID, orderID string, idx int) (services.CancellationImpact, error) {
		if userID != "u1" || orderID != "ord_1" || idx != 1 {
			t.Fatalf("unexpected args %s %s %d", userID, orderID, idx)
		}
		return services.CancellationImpact{ItemIndex: 1, ItemTotal: 500, CouponRevoked: true, BalanceDue: 100, RefundAmount: 350, RefundToWallet: true, NewFinalAmount: 1000}, nil
	}}
	rr := serveAs(newOrderTestRouter(svc), "u1", http.MethodGet, "/orders/ord_1/items/1/cancellation-impact", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	impact, ok := decodeResponse(t, rr)["impact"].(map[string]any)
	if !ok || impact["refundAmount"] != float64(350) || impact["balanceDue"] != float64(100) || impact["couponRevoked"] != true {
		t.Fatalf("unexpected impact %v", impact)
	}
}

func TestOrderHandlersCancelOrderAndWithdrawReturn(t *testing.T) {
	var cancelled services.CancelOrderCommand
	var withdrawn services.CancelReturnRequestCommand
	svc := &stubOrderService{
		cancelOrderFn: func(_ context.Context, cmd services.CancelOrderCommand) (services.CancellationResult, error) {
			cancelled = cmd
			return services.CancellationResult{Order: sampleOrder(), RefundAmount: 1350, RefundToWallet: true}, nil
		},
		cancelReturnFn: func(_ context.Context, cmd services.CancelReturnRequestCommand) (services.Order, error) {
			withdrawn = cmd
			return sampleOrder(), nil
		},
	}
	router := newOrderTestRouter(svc)

	rr := serveAs(router, "u1", http.MethodPost, "/orders/ord_1/cancel", `{"reason":" ordered twice ","details":"dup"}`)
	if rr.Code != http.StatusOK || cancelled.Reason != "ordered twice" || cancelled.Details != "dup" {
		t.Fatalf("cancel order: %d %+v", rr.Code, cancelled)
	}
	if decodeResponse(t, rr)["refundAmount"] != float64(1350) {
		t.Fatal("expected refund in response")
	}

	rr = serveAs(router, "u1", http.MethodPost, "/orders/ord_1/items/0/return/cancel", "")
	if rr.Code != http.StatusOK || withdrawn.ItemIndex != 0 || withdrawn.UserID != "u1" {
		t.Fatalf("withdraw return: %d %+v", rr.Code, withdrawn)
	}
}

func TestOrderHandlersGetOrderStatus(t *testing.T) {
	shipped := time.Date(2024, 6, 3, 8, 0, 0, 0, time.UTC)
	svc := &stubOrderService{statusFn: func(context.Context, string, string) (services.OrderStatusView, error) {
		return services.OrderStatusView{
			OrderID: "ord_1",
			Status:  domain.OrderStatusShipped,
			Items: []services.ItemStatusView{
				{Index: 0, ProductName: "Oud Nights", VariantSize: 100, Status: domain.OrderStatusShipped, Tracking: domain.Tracking{ShippedAt: &shipped, Location: "Mumbai hub"}},
			},
		}, nil
	}}
	rr := serveAs(newOrderTestRouter(svc), "u1", http.MethodGet, "/orders/ord_1/status", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	body := decodeResponse(t, rr)
	if body["status"] != "Shipped" {
		t.Fatalf("unexpected status %v", body["status"])
	}
	items := body["items"].([]any)
	tracking := items[0].(map[string]any)["tracking"].(map[string]any)
	if tracking["location"] != "Mumbai hub" || tracking["shippedAt"] != "2024-06-03T08:00:00Z" {
		t.Fatalf("unexpected tracking %v", tracking)
	}
}
