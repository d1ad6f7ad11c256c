package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/platform/auth"
	"github.com/scentora/storefront/internal/platform/httpx"
	"github.com/scentora/storefront/internal/services"
)

// AdminOrderHandlers exposes fulfilment and return decisions to admins.
type AdminOrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewAdminOrderHandlers constructs admin order handlers.
func NewAdminOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *AdminOrderHandlers {
	return &AdminOrderHandlers{authn: authn, orders: orders}
}

// Routes registers /admin/orders endpoints.
func (h *AdminOrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Post("/orders/{orderId}/status", h.updateStatus)
	r.Post("/orders/{orderId}/returns/approve", h.approveReturn)
	r.Post("/orders/{orderId}/returns/reject", h.rejectReturn)
}

type adminStatusRequest struct {
	ItemIndex indexList `json:"itemIndex"`
	Status    string    `json:"status"`
}

type adminReturnDecisionRequest struct {
	ItemIndex indexList `json:"itemIndex"`
	Reason    string    `json:"reason"`
}

func (h *AdminOrderHandlers) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	if h.orders == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return "", false
	}
	return requireUser(w, r)
}

func (h *AdminOrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req adminStatusRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	status, ok := domain.ParseOrderStatus(req.Status)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is not a known order status", http.StatusBadRequest))
		return
	}
	if err := req.ItemIndex.validate(); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	if !req.ItemIndex.All && len(req.ItemIndex.Values) != 1 {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", `itemIndex must be a single index or "all"`, http.StatusBadRequest))
		return
	}

	cmd := services.UpdateItemStatusCommand{
		ActorID: actorID,
		OrderID: chi.URLParam(r, "orderId"),
		All:     req.ItemIndex.All,
		Status:  status,
	}
	if !cmd.All {
		cmd.ItemIndex = req.ItemIndex.Values[0]
	}
	order, err := h.orders.UpdateItemStatus(ctx, cmd)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"message": "status updated",
		"order":   newOrderPayload(order),
	})
}

func (h *AdminOrderHandlers) approveReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req adminReturnDecisionRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if err := req.ItemIndex.validate(); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	result, err := h.orders.ApproveReturn(ctx, services.ReturnDecisionCommand{
		ActorID:     actorID,
		OrderID:     chi.URLParam(r, "orderId"),
		ItemIndexes: req.ItemIndex.Values,
		All:         req.ItemIndex.All,
		Reason:      strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	writeCancellationResult(w, "return approved", result)
}

func (h *AdminOrderHandlers) rejectReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actorID, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req adminReturnDecisionRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	if err := req.ItemIndex.validate(); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	order, err := h.orders.RejectReturn(ctx, services.ReturnDecisionCommand{
		ActorID:     actorID,
		OrderID:     chi.URLParam(r, "orderId"),
		ItemIndexes: req.ItemIndex.Values,
		All:         req.ItemIndex.All,
		Reason:      strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"message": "return rejected",
		"order":   newOrderPayload(order),
	})
}
