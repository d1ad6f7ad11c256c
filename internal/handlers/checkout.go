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

// CheckoutHandlers exposes the cart-to-order endpoints.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers. A nil authn leaves authentication to the
// enclosing route group; handlers still require an identity in the request context.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireFirebaseAuth())
	}
	r.Post("/payment-order", h.createPaymentOrder)
	r.Post("/verify-payment", h.verifyPayment)
	r.Post("/place-order", h.placeOrder)
}

// checkoutRequest covers all three endpoints. Gateway fields accept both the camelCase names
// and the snake_case names the Razorpay widget posts back.
type checkoutRequest struct {
	AddressID     string `json:"addressId"`
	PaymentMethod string `json:"paymentMethod"`
	CouponCode    string `json:"couponCode"`
	Provider      string `json:"provider"`

	GatewayOrderID string `json:"gatewayOrderId"`
	PaymentID      string `json:"paymentId"`
	Signature      string `json:"signature"`

	RazorpayOrderID   string `json:"razorpay_order_id"`
	RazorpayPaymentID string `json:"razorpay_payment_id"`
	RazorpaySignature string `json:"razorpay_signature"`
}

func (req checkoutRequest) gatewayOrderID() string {
	return firstNonEmpty(req.GatewayOrderID, req.RazorpayOrderID)
}

func (req checkoutRequest) paymentID() string {
	return firstNonEmpty(req.PaymentID, req.RazorpayPaymentID)
}

func (req checkoutRequest) signature() string {
	return firstNonEmpty(req.Signature, req.RazorpaySignature)
}

// method parses paymentMethod, falling back when the field is absent.
func (req checkoutRequest) method(fallback domain.PaymentMethod) (domain.PaymentMethod, bool) {
	if strings.TrimSpace(req.PaymentMethod) == "" {
		return fallback, true
	}
	return domain.ParsePaymentMethod(req.PaymentMethod)
}

func (h *CheckoutHandlers) createPaymentOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	method, ok := req.method(domain.PaymentMethodRazorpay)
	if !ok {
		writeInvalidPaymentMethod(w, r)
		return
	}

	order, err := h.checkout.CreatePaymentOrder(ctx, services.CreatePaymentOrderCommand{
		UserID:        userID,
		AddressID:     strings.TrimSpace(req.AddressID),
		PaymentMethod: method,
		CouponCode:    strings.TrimSpace(req.CouponCode),
		Provider:      strings.TrimSpace(req.Provider),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	fields := map[string]any{
		"orderId":       order.GatewayOrderID,
		"provider":      order.Provider,
		"amount":        order.AmountMinor,
		"displayAmount": order.Amount,
		"currency":      order.Currency,
	}
	if order.KeyID != "" {
		fields["key"] = order.KeyID
	}
	if order.ClientSecret != "" {
		fields["clientSecret"] = order.ClientSecret
	}
	httpx.WriteSuccess(w, http.StatusOK, fields)
}

func (h *CheckoutHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	method, ok := req.method(domain.PaymentMethodRazorpay)
	if !ok || !method.Prepaid() || method == domain.PaymentMethodWallet {
		writeInvalidPaymentMethod(w, r)
		return
	}

	order, err := h.checkout.VerifyPayment(ctx, services.VerifyPaymentCommand{
		UserID:         userID,
		AddressID:      strings.TrimSpace(req.AddressID),
		PaymentMethod:  method,
		CouponCode:     strings.TrimSpace(req.CouponCode),
		Provider:       strings.TrimSpace(req.Provider),
		GatewayOrderID: strings.TrimSpace(req.gatewayOrderID()),
		PaymentID:      strings.TrimSpace(req.paymentID()),
		Signature:      strings.TrimSpace(req.signature()),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, map[string]any{
		"message": "payment verified and order placed",
		"order":   newOrderPayload(order),
	})
}

func (h *CheckoutHandlers) placeOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !decodeBody(w, r, &req, false) {
		return
	}
	method, ok := req.method(domain.PaymentMethodCOD)
	if !ok || (method != domain.PaymentMethodCOD && method != domain.PaymentMethodWallet) {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "place-order accepts COD or Wallet; use verify-payment for online payments", http.StatusBadRequest))
		return
	}

	order, err := h.checkout.PlaceOrder(ctx, services.PlaceOrderCommand{
		UserID:        userID,
		AddressID:     strings.TrimSpace(req.AddressID),
		PaymentMethod: method,
		CouponCode:    strings.TrimSpace(req.CouponCode),
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, map[string]any{
		"message": "order placed",
		"order":   newOrderPayload(order),
	})
}

func writeInvalidPaymentMethod(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(r.Context(), w, httpx.NewError("invalid_request", "paymentMethod is not supported for this endpoint", http.StatusBadRequest))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
