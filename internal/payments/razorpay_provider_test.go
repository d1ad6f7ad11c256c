package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestVerifySignature(t *testing.T) {
	secret := []byte("s3cr3t")
	sig := Sign(secret, "order_9A33XWu170gUtm", "pay_29QQoUBi66xm2f")

	cases := []struct {
		name      string
		orderID   string
		paymentID string
		signature string
		want      bool
	}{
		{"valid", "order_9A33XWu170gUtm", "pay_29QQoUBi66xm2f", sig, true},
		{"uppercase hex", "order_9A33XWu170gUtm", "pay_29QQoUBi66xm2f", strings.ToUpper(sig), true},
		{"swapped ids", "pay_29QQoUBi66xm2f", "order_9A33XWu170gUtm", sig, false},
		{"tampered", "order_9A33XWu170gUtm", "pay_other", sig, false},
		{"empty payment", "order_9A33XWu170gUtm", "", sig, false},
		{"empty signature", "order_9A33XWu170gUtm", "pay_29QQoUBi66xm2f", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := VerifySignature(secret, tc.orderID, tc.paymentID, tc.signature); got != tc.want {
				t.Fatalf("VerifySignature = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRazorpayVerifyPaymentRejectsBadSignature(t *testing.T) {
	p, err := NewRazorpayProvider(RazorpayProviderConfig{KeyID: "rzp_test", KeySecret: "secret"})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, err = p.VerifyPayment(context.Background(), VerifyRequest{GatewayOrderID: "order_1", PaymentID: "pay_1", Signature: "deadbeef"})
	if !errors.Is(err, ErrSignatureMismatch) {
		t.Fatalf("expected ErrSignatureMismatch, got %v", err)
	}

	details, err := p.VerifyPayment(context.Background(), VerifyRequest{
		GatewayOrderID: "order_1",
		PaymentID:      "pay_1",
		Signature:      Sign([]byte("secret"), "order_1", "pay_1"),
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if details.Status != StatusSucceeded || details.PaymentID != "pay_1" {
		t.Fatalf("unexpected details %+v", details)
	}
}

func TestRazorpayCreateOrder(t *testing.T) {
	var gotAuthUser string
	var gotBody razorpayOrderRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuthUser, _, _ = r.BasicAuth()
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"order_abc","amount":135000,"currency":"INR","status":"created","created_at":1767225600}`))
	}))
	defer srv.Close()

	p, err := NewRazorpayProvider(RazorpayProviderConfig{KeyID: "rzp_test", KeySecret: "secret", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	order, err := p.CreateOrder(context.Background(), GatewayOrderRequest{Amount: 135000, Currency: "inr", Receipt: "rcpt_1"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if gotAuthUser != "rzp_test" {
		t.Fatalf("expected basic auth with key id, got %q", gotAuthUser)
	}
	if gotBody.Currency != "INR" || gotBody.Amount != 135000 || gotBody.Receipt != "rcpt_1" {
		t.Fatalf("unexpected request body %+v", gotBody)
	}
	if order.ID != "order_abc" || order.KeyID != "rzp_test" || order.Amount != 135000 {
		t.Fatalf("unexpected order %+v", order)
	}
}

func TestRazorpayCreateOrderSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":"BAD_REQUEST_ERROR","description":"amount exceeds maximum"}}`))
	}))
	defer srv.Close()

	p, err := NewRazorpayProvider(RazorpayProviderConfig{KeyID: "k", KeySecret: "s", BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	_, err = p.CreateOrder(context.Background(), GatewayOrderRequest{Amount: 1})
	if err == nil || !strings.Contains(err.Error(), "amount exceeds maximum") {
		t.Fatalf("expected api error description, got %v", err)
	}
}
