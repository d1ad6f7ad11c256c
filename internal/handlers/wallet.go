package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/scentora/storefront/internal/platform/auth"
	"github.com/scentora/storefront/internal/platform/httpx"
	"github.com/scentora/storefront/internal/platform/pagination"
	"github.com/scentora/storefront/internal/services"
)

const walletTransactionPageSize = 10

// WalletHandlers exposes the caller's wallet balance and history.
type WalletHandlers struct {
	authn   *auth.Authenticator
	wallets services.WalletService
}

// NewWalletHandlers constructs wallet handlers.
func NewWalletHandlers(authn *auth.Authenticator, wallets services.WalletService) *WalletHandlers {
	return &WalletHandlers{authn: authn, wallets: wallets}
}

// Routes registers /wallet.
func (h *WalletHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Get("/", h.getWallet)
}

func (h *WalletHandlers) getWallet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.wallets == nil {
		httpx.WriteError(ctx, w, httpx.NewError("wallet_service_unavailable", "wallet service unavailable", http.StatusServiceUnavailable))
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	pager, err := pagination.Parse(r.URL.Query(), pagination.Options{DefaultPageSize: walletTransactionPageSize})
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	summary, err := h.wallets.GetWallet(ctx, userID, pager)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	fields := map[string]any{
		"balance":      summary.Wallet.Balance,
		"transactions": newWalletTransactionPayloads(summary.Transactions.Items),
	}
	if summary.Transactions.NextPageToken != "" {
		fields["nextPageToken"] = summary.Transactions.NextPageToken
	}
	httpx.WriteSuccess(w, http.StatusOK, fields)
}
