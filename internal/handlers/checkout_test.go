package handlers

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/services"
)

type stubCheckoutService struct {
	paymentOrderFn func(context.Context, services.CreatePaymentOrderCommand) (services.PaymentOrder, error)
	verifyFn       func(context.Context, services.VerifyPaymentCommand) (services.Order, error)
	placeFn        func(context.Context, services.PlaceOrderCommand) (services.Order, error)
}

func (s *stubCheckoutService) CreatePaymentOrder(ctx context.Context, cmd services.CreatePaymentOrderCommand) (services.PaymentOrder, error) {
	if s.paymentOrderFn != nil {
		return s.paymentOrderFn(ctx, cmd)
	}
	return services.PaymentOrder{}, errStubNotImplemented
}

func (s *stubCheckoutService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
	if s.verifyFn != nil {
		return s.verifyFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

func (s *stubCheckoutService) PlaceOrder(ctx context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
	if s.placeFn != nil {
		return s.placeFn(ctx, cmd)
	}
	return services.Order{}, errStubNotImplemented
}

var _ services.CheckoutService = (*stubCheckoutService)(nil)

func newCheckoutTestRouter(svc services.CheckoutService) chi.Router {
	router := chi.NewRouter()
	router.Route("/checkout", NewCheckoutHandlers(nil, svc).Routes)
	return router
}

func TestCheckoutHandlersCreatePaymentOrder(t *testing.T) {
	var got services.CreatePaymentOrderCommand
	svc := &stubCheckoutService{paymentOrderFn: func(_ context.Context, cmd services.CreatePaymentOrderCommand) (services.PaymentOrder, error) {
		got = cmd
		return services.PaymentOrder{GatewayOrderID: "order_rzp_1", Provider: "razorpay", Amount: 1350, AmountMinor: 135000, Currency: "INR", KeyID: "rzp_test_key"}, nil
	}}

	rr := serveAs(newCheckoutTestRouter(svc), "u1", http.MethodPost, "/checkout/payment-order", `{"addressId":"addr_1","couponCode":" SAVE150 "}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if got.UserID != "u1" || got.AddressID != "addr_1" || got.CouponCode != "SAVE150" || got.PaymentMethod != domain.PaymentMethodRazorpay {
		t.Fatalf("unexpected command %+v", got)
	}
	body := decodeResponse(t, rr)
	if body["orderId"] != "order_rzp_1" || body["amount"] != float64(135000) || body["key"] != "rzp_test_key" || body["currency"] != "INR" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCheckoutHandlersVerifyPaymentAcceptsGatewayFieldNames(t *testing.T) {
	cases := map[string]string{
		"camel case": `{"addressId":"addr_1","gatewayOrderId":"order_rzp_1","paymentId":"pay_1","signature":"sig"}`,
		"razorpay":   `{"addressId":"addr_1","razorpay_order_id":"order_rzp_1","razorpay_payment_id":"pay_1","razorpay_signature":"sig"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			var got services.VerifyPaymentCommand
			svc := &stubCheckoutService{verifyFn: func(_ context.Context, cmd services.VerifyPaymentCommand) (services.Order, error) {
				got = cmd
				return sampleOrder(), nil
			}}
			rr := serveAs(newCheckoutTestRouter(svc), "u1", http.MethodPost, "/checkout/verify-payment", body)
			if rr.Code != http.StatusCreated {
				t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
			}
			if got.GatewayOrderID != "order_rzp_1" || got.PaymentID != "pay_1" || got.Signature != "sig" {
				t.Fatalf("unexpected command %+v", got)
			}
			if got.PaymentMethod != domain.PaymentMethodRazorpay {
				t.Fatalf("expected razorpay default, got %q", got.PaymentMethod)
			}
		})
	}
}

func TestCheckoutHandlersVerifyPaymentFailure(t *testing.T) {
	svc := &stubCheckoutService{verifyFn: func(context.Context, services.VerifyPaymentCommand) (services.Order, error) {
		return services.Order{}, fmt.Errorf("%w: signature mismatch", services.ErrCheckoutPaymentFailed)
	}}
	rr := serveAs(newCheckoutTestRouter(svc), "u1", http.MethodPost, "/checkout/verify-payment", `{"razorpay_order_id":"o","razorpay_payment_id":"p","razorpay_signature":"bad"}`)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if body := decodeResponse(t, rr); body["error"] != "payment_failed" || body["success"] != false {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCheckoutHandlersVerifyPaymentReplay(t *testing.T) {
	svc := &stubCheckoutService{verifyFn: func(context.Context, services.VerifyPaymentCommand) (services.Order, error) {
		return services.Order{}, fmt.Errorf("%w: gateway order o already settled", services.ErrCheckoutPaymentReused)
	}}
	rr := serveAs(newCheckoutTestRouter(svc), "u1", http.MethodPost, "/checkout/verify-payment", `{"razorpay_order_id":"o","razorpay_payment_id":"p","razorpay_signature":"sig"}`)
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
	if body := decodeResponse(t, rr); body["error"] != "payment_already_used" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCheckoutHandlersPlaceOrder(t *testing.T) {
	cases := map[string]struct {
		body   string
		status int
		method domain.PaymentMethod
	}{
		"default cod": {`{"addressId":"addr_1"}`, http.StatusCreated, domain.PaymentMethodCOD},
		"wallet":      {`{"addressId":"addr_1","paymentMethod":"wallet"}`, http.StatusCreated, domain.PaymentMethodWallet},
		"razorpay":    {`{"addressId":"addr_1","paymentMethod":"Razorpay"}`, http.StatusBadRequest, ""},
		"unknown":     {`{"addressId":"addr_1","paymentMethod":"barter"}`, http.StatusBadRequest, ""},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			var got services.PlaceOrderCommand
			svc := &stubCheckoutService{placeFn: func(_ context.Context, cmd services.PlaceOrderCommand) (services.Order, error) {
				got = cmd
				return sampleOrder(), nil
			}}
			rr := serveAs(newCheckoutTestRouter(svc), "u1", http.MethodPost, "/checkout/place-order", tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if tc.status == http.StatusCreated && got.PaymentMethod != tc.method {
				t.Fatalf("expected %q, got %q", tc.method, got.PaymentMethod)
			}
		})
	}
}

func TestCheckoutHandlersMapsStockAndCouponErrors(t *testing.T) {
	cases := map[string]struct {
		err  error
		code string
	}{
		"stock":    {fmt.Errorf("%w: Oud Nights 100ml", services.ErrCheckoutInsufficientStock), "insufficient_stock"},
		"coupon":   {fmt.Errorf("%w: expired", services.ErrCouponRejected), "coupon_rejected"},
		"balance":  {services.ErrWalletInsufficientBalance, "insufficient_balance"},
		"cart":     {fmt.Errorf("%w: cart is empty", services.ErrCheckoutCartNotReady), "cart_not_ready"},
		"conflict": {services.ErrCheckoutConflict, "checkout_conflict"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubCheckoutService{placeFn: func(context.Context, services.PlaceOrderCommand) (services.Order, error) {
				return services.Order{}, tc.err
			}}
			rr := serveAs(newCheckoutTestRouter(svc), "u1", http.MethodPost, "/checkout/place-order", `{"addressId":"addr_1"}`)
			if body := decodeResponse(t, rr); body["error"] != tc.code {
				t.Fatalf("expected %s, got %v (%d)", tc.code, body["error"], rr.Code)
			}
		})
	}
}
