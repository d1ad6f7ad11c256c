package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/scentora/storefront/internal/platform/auth"
	"github.com/scentora/storefront/internal/platform/httpx"
	"github.com/scentora/storefront/internal/platform/pagination"
	"github.com/scentora/storefront/internal/services"
)

// OrderHandlers exposes the customer side of the order lifecycle.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.listOrders)
	r.Get("/{orderId}", h.getOrder)
	r.Get("/{orderId}/status", h.getOrderStatus)
	r.Post("/{orderId}/cancel", h.cancelOrder)
	r.Post("/{orderId}/returns", h.requestReturn)
	r.Post("/{orderId}/items/{itemIndex}/cancel", h.cancelItem)
	r.Get("/{orderId}/items/{itemIndex}/cancellation-impact", h.cancellationImpact)
	r.Post("/{orderId}/items/{itemIndex}/return/cancel", h.cancelReturnRequest)
}

type cancelItemRequest struct {
	VariantSize sizeList `json:"variantSize"`
	Reason      string   `json:"reason"`
	Details     string   `json:"details"`
}

type cancelOrderRequest struct {
	Reason  string `json:"reason"`
	Details string `json:"details"`
}

type returnRequest struct {
	ItemIndex indexList `json:"itemIndex"`
	Reason    string    `json:"reason"`
	Details   string    `json:"details"`
}

func (h *OrderHandlers) available(w http.ResponseWriter, r *http.Request) bool {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return false
	}
	return true
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	pager, err := pagination.Parse(r.URL.Query(), pagination.Options{})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	page, err := h.orders.ListOrders(ctx, userID, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	items := make([]orderPayload, 0, len(page.Items))
	for _, order := range page.Items {
		items = append(items, newOrderPayload(order))
	}
	fields := map[string]any{"orders": items}
	if page.NextPageToken != "" {
		fields["nextPageToken"] = page.NextPageToken
	}
	httpx.WriteSuccess(w, http.StatusOK, fields)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	order, err := h.orders.GetOrder(ctx, userID, chi.URLParam(r, "orderId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"order": newOrderPayload(order)})
}

func (h *OrderHandlers) getOrderStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	view, err := h.orders.GetOrderStatus(ctx, userID, chi.URLParam(r, "orderId"))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	items := make([]map[string]any, 0, len(view.Items))
	for _, item := range view.Items {
		items = append(items, map[string]any{
			"index":       item.Index,
			"productName": item.ProductName,
			"variantSize": float64(item.VariantSize),
			"status":      string(item.Status),
			"tracking":    newTrackingPayload(item.Tracking),
		})
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"orderId":     view.OrderID,
		"orderNumber": view.OrderNumber,
		"status":      string(view.Status),
		"items":       items,
		"updatedAt":   formatTime(view.UpdatedAt),
	})
}

func (h *OrderHandlers) cancelItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	idx, ok := pathIndex(w, r, chi.URLParam(r, "itemIndex"))
	if !ok {
		return
	}
	var req cancelItemRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	size, err := req.VariantSize.single()
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	result, err := h.orders.CancelItem(ctx, services.CancelItemCommand{
		UserID:      userID,
		OrderID:     chi.URLParam(r, "orderId"),
		ItemIndex:   idx,
		VariantSize: size,
		Reason:      strings.TrimSpace(req.Reason),
		Details:     strings.TrimSpace(req.Details),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCancellationResult(w, "item cancelled", result)
}

func (h *OrderHandlers) cancellationImpact(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	idx, ok := pathIndex(w, r, chi.URLParam(r, "itemIndex"))
	if !ok {
		return
	}
	impact, err := h.orders.CancellationImpact(ctx, userID, chi.URLParam(r, "orderId"), idx)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"impact": map[string]any{
			"itemIndex":      impact.ItemIndex,
			"itemTotal":      impact.ItemTotal,
			"itemDiscount":   impact.ItemDiscount,
			"itemUserPaid":   impact.ItemUserPaid,
			"couponRevoked":  impact.CouponRevoked,
			"couponCode":     impact.CouponCode,
			"minimumPrice":   impact.MinimumPrice,
			"remainingTotal": impact.RemainingTotal,
			"balanceDue":     impact.BalanceDue,
			"refundAmount":   impact.RefundAmount,
			"refundToWallet": impact.RefundToWallet,
			"newTotalPrice":  impact.NewTotalPrice,
			"newDiscount":    impact.NewDiscount,
			"newFinalAmount": impact.NewFinalAmount,
		},
	})
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req cancelOrderRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	result, err := h.orders.CancelOrder(ctx, services.CancelOrderCommand{
		UserID:  userID,
		OrderID: chi.URLParam(r, "orderId"),
		Reason:  strings.TrimSpace(req.Reason),
		Details: strings.TrimSpace(req.Details),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCancellationResult(w, "order cancelled", result)
}

func (h *OrderHandlers) requestReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req returnRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if err := req.ItemIndex.validate(); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	order, err := h.orders.RequestReturn(ctx, services.ReturnRequestCommand{
		UserID:      userID,
		OrderID:     chi.URLParam(r, "orderId"),
		ItemIndexes: req.ItemIndex.Values,
		All:         req.ItemIndex.All,
		Reason:      strings.TrimSpace(req.Reason),
		Details:     strings.TrimSpace(req.Details),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"message": "return requested",
		"order":   newOrderPayload(order),
	})
}

func (h *OrderHandlers) cancelReturnRequest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.available(w, r) {
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	idx, ok := pathIndex(w, r, chi.URLParam(r, "itemIndex"))
	if !ok {
		return
	}
	order, err := h.orders.CancelReturnRequest(ctx, services.CancelReturnRequestCommand{
		UserID:    userID,
		OrderID:   chi.URLParam(r, "orderId"),
		ItemIndex: idx,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"message": "return request withdrawn",
		"order":   newOrderPayload(order),
	})
}

func writeCancellationResult(w http.ResponseWriter, message string, result services.CancellationResult) {
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"message":        message,
		"refundAmount":   result.RefundAmount,
		"refundToWallet": result.RefundToWallet,
		"couponRevoked":  result.CouponRevoked,
		"order":          newOrderPayload(result.Order),
	})
}

var errItemIndexRequired = errors.New("itemIndex is required")

// validate rejects a missing or empty selection.
func (l indexList) validate() error {
	if !l.set || (!l.All && len(l.Values) == 0) {
		return errItemIndexRequired
	}
	return nil
}
