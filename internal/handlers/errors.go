package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/scentora/storefront/internal/platform/httpx"
	"github.com/scentora/storefront/internal/platform/requestctx"
	"github.com/scentora/storefront/internal/services"
)

type errorMapping struct {
	target  error
	code    string
	status  int
	message string // fixed message; empty echoes the error text
}

// Business rule failures are 400s; stale versions and reused payments are 409s.
var serviceErrorMappings = []errorMapping{
	{services.ErrOrderNotFound, "order_not_found", http.StatusNotFound, "order not found"},
	{services.ErrOrderConflict, "order_conflict", http.StatusConflict, "order was modified concurrently, please retry"},
	{services.ErrCheckoutConflict, "checkout_conflict", http.StatusConflict, "checkout conflicted with another request, please retry"},
	{services.ErrOrderInvalidInput, "invalid_request", http.StatusBadRequest, ""},
	{services.ErrOrderInvalidState, "order_invalid_state", http.StatusBadRequest, ""},
	{services.ErrOrderReturnWindowExpired, "return_window_expired", http.StatusBadRequest, ""},
	{services.ErrCouponRejected, "coupon_rejected", http.StatusBadRequest, ""},
	{services.ErrWalletInsufficientBalance, "insufficient_balance", http.StatusBadRequest, "insufficient wallet balance"},
	{services.ErrWalletInvalidInput, "invalid_request", http.StatusBadRequest, ""},
	{services.ErrInventoryInsufficientStock, "insufficient_stock", http.StatusBadRequest, ""},
	{services.ErrCheckoutInsufficientStock, "insufficient_stock", http.StatusBadRequest, ""},
	{services.ErrCheckoutCartNotReady, "cart_not_ready", http.StatusBadRequest, ""},
	{services.ErrCheckoutInvalidInput, "invalid_request", http.StatusBadRequest, ""},
	{services.ErrCheckoutPaymentReused, "payment_already_used", http.StatusConflict, "this payment has already been used for an order"},
	{services.ErrCheckoutPaymentFailed, "payment_failed", http.StatusBadRequest, "payment could not be verified"},
	{services.ErrOrderUnavailable, "service_unavailable", http.StatusServiceUnavailable, "order store unavailable"},
	{services.ErrCheckoutUnavailable, "service_unavailable", http.StatusServiceUnavailable, "checkout is temporarily unavailable"},
}

// writeServiceError maps service sentinels onto the error envelope. Anything unrecognised is
// logged in full and answered with a generic 500.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	for _, m := range serviceErrorMappings {
		if !errors.Is(err, m.target) {
			continue
		}
		message := m.message
		if message == "" {
			message = clientMessage(err, m.target)
		}
		if m.status >= http.StatusInternalServerError {
			requestctx.Logger(ctx).Warn("service dependency unavailable", zap.Error(err))
		}
		httpx.WriteError(ctx, w, httpx.NewError(m.code, message, m.status))
		return
	}
	requestctx.Logger(ctx).Error("unhandled service error", zap.Error(err))
	httpx.WriteError(ctx, w, httpx.NewError("internal_error", "something went wrong", http.StatusInternalServerError))
}

// clientMessage strips the sentinel prefix so "order: invalid input: reason is required" reads
// as "reason is required".
func clientMessage(err, sentinel error) string {
	msg := err.Error()
	prefix := sentinel.Error() + ": "
	if idx := strings.Index(msg, prefix); idx >= 0 {
		return msg[idx+len(prefix):]
	}
	return msg
}
