package payments

import (
	"context"
	"errors"
	"testing"
)

type fakeProvider struct {
	lastOp  string
	order   GatewayOrder
	payment PaymentDetails
	err     error
}

func (f *fakeProvider) CreateOrder(ctx context.Context, req GatewayOrderRequest) (GatewayOrder, error) {
	f.lastOp = "create"
	return f.order, f.err
}

func (f *fakeProvider) VerifyPayment(ctx context.Context, req VerifyRequest) (PaymentDetails, error) {
	f.lastOp = "verify"
	return f.payment, f.err
}

func TestManagerCreateOrderUsesPreferredProvider(t *testing.T) {
	ctx := context.Background()
	razorpay := &fakeProvider{order: GatewayOrder{ID: "order_rzp"}}
	stripe := &fakeProvider{order: GatewayOrder{ID: "pi_123"}}

	mgr, err := NewManager(map[string]Provider{
		ProviderRazorpay: razorpay,
		ProviderStripe:   stripe,
	})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	order, err := mgr.CreateOrder(ctx, PaymentContext{PreferredProvider: "Stripe"}, GatewayOrderRequest{Amount: 100, Currency: "INR"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Provider != ProviderStripe || order.ID != "pi_123" {
		t.Fatalf("unexpected order %+v", order)
	}
	if razorpay.lastOp != "" {
		t.Fatalf("expected razorpay provider to remain unused")
	}
}

func TestManagerDefaultsToRazorpay(t *testing.T) {
	ctx := context.Background()
	razorpay := &fakeProvider{payment: PaymentDetails{Status: StatusSucceeded}}
	stripe := &fakeProvider{}

	mgr, err := NewManager(map[string]Provider{ProviderRazorpay: razorpay, ProviderStripe: stripe})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	details, err := mgr.VerifyPayment(ctx, PaymentContext{}, VerifyRequest{GatewayOrderID: "order_1"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if razorpay.lastOp != "verify" || details.Provider != ProviderRazorpay {
		t.Fatalf("expected razorpay to verify, got %+v", details)
	}
}

func TestManagerRoutesByCurrency(t *testing.T) {
	ctx := context.Background()
	razorpay := &fakeProvider{}
	stripe := &fakeProvider{order: GatewayOrder{ID: "pi_usd"}}

	mgr, err := NewManager(
		map[string]Provider{ProviderRazorpay: razorpay, ProviderStripe: stripe},
		WithCurrencyRoutes(map[string]string{"usd": "stripe"}),
	)
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	order, err := mgr.CreateOrder(ctx, PaymentContext{Currency: "USD"}, GatewayOrderRequest{Amount: 500})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if order.Provider != ProviderStripe {
		t.Fatalf("expected stripe, got %q", order.Provider)
	}
}

func TestManagerUnsupportedProvider(t *testing.T) {
	mgr, err := NewManager(map[string]Provider{ProviderRazorpay: &fakeProvider{}})
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	_, err = mgr.CreateOrder(context.Background(), PaymentContext{PreferredProvider: "paypal"}, GatewayOrderRequest{Amount: 1})
	if !errors.Is(err, ErrUnsupportedProvider) {
		t.Fatalf("expected ErrUnsupportedProvider, got %v", err)
	}
}

func TestNewManagerValidatesProviders(t *testing.T) {
	if _, err := NewManager(map[string]Provider{"bad": nil}); err == nil {
		t.Fatalf("expected error for nil provider")
	}
	if _, err := NewManager(nil); err == nil {
		t.Fatalf("expected error when providers empty")
	}
}

func TestMinorUnitConversion(t *testing.T) {
	if got := ToMinorUnits(1234.565); got != 123457 {
		t.Fatalf("expected 123457, got %d", got)
	}
	if got := FromMinorUnits(99950); got != 999.5 {
		t.Fatalf("expected 999.5, got %v", got)
	}
}
