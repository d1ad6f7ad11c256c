package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/scentora/storefront/internal/platform/auth"
	"github.com/scentora/storefront/internal/platform/httpx"
	"github.com/scentora/storefront/internal/platform/idempotency"
	"github.com/scentora/storefront/internal/services"
)

const (
	walletAdjustmentCredit = "credit"
	walletAdjustmentDebit  = "debit"
)

// AdminWalletHandlers lets admins post manual credits and corrections to a customer wallet.
type AdminWalletHandlers struct {
	authn   *auth.Authenticator
	wallets services.WalletService
}

// NewAdminWalletHandlers constructs admin wallet handlers.
func NewAdminWalletHandlers(authn *auth.Authenticator, wallets services.WalletService) *AdminWalletHandlers {
	return &AdminWalletHandlers{authn: authn, wallets: wallets}
}

// Routes registers /admin/wallets endpoints.
func (h *AdminWalletHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth(auth.RoleAdmin))
	}
	r.Post("/wallets/{userId}/adjustments", h.adjust)
}

type walletAdjustmentRequest struct {
	Type        string  `json:"type"`
	Amount      float64 `json:"amount"`
	Description string  `json:"description"`
	OrderID     string  `json:"orderId"`
}

func (h *AdminWalletHandlers) adjust(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wallets == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wallet_service_unavailable", "wallet service unavailable", http.StatusServiceUnavailable))
		return
	}
	actorID, ok := requireUser(w, r)
	if !ok {
		return
	}
	// The ledger entry is keyed by the request key, so a retried adjustment posts once.
	key := strings.TrimSpace(r.Header.Get(idempotency.HeaderName))
	if key == "" {
		httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_required", "Idempotency-Key header is required", http.StatusBadRequest))
		return
	}
	var req walletAdjustmentRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "description is required", http.StatusBadRequest))
		return
	}

	cmd := services.WalletCommand{
		UserID:         chi.URLParam(r, "userId"),
		Amount:         req.Amount,
		Description:    description,
		OrderID:        strings.TrimSpace(req.OrderID),
		IdempotencyKey: "adjust:" + actorID + ":" + key,
	}
	var (
		balance float64
		err     error
	)
	switch strings.ToLower(strings.TrimSpace(req.Type)) {
	case walletAdjustmentCredit:
		balance, err = h.wallets.Credit(ctx, cmd)
	case walletAdjustmentDebit:
		balance, err = h.wallets.Debit(ctx, cmd)
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", `type must be "credit" or "debit"`, http.StatusBadRequest))
		return
	}
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{
		"message": "wallet adjusted",
		"userId":  cmd.UserID,
		"balance": balance,
	})
}
