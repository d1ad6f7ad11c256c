package payments

import (
	"context"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v78"
)

type stubIntents struct {
	newFn func(*stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	getFn func(string, *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

func (s *stubIntents) New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.newFn(params)
}

func (s *stubIntents) Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	return s.getFn(id, params)
}

func TestStripeCreateOrder(t *testing.T) {
	var captured *stripe.PaymentIntentParams
	p, err := NewStripeProvider(StripeProviderConfig{
		PublishableKey: "pk_test",
		Intents: &stubIntents{newFn: func(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			captured = params
			return &stripe.PaymentIntent{ID: "pi_1", Amount: *params.Amount, Currency: "inr", ClientSecret: "pi_1_secret"}, nil
		}},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	order, err := p.CreateOrder(context.Background(), GatewayOrderRequest{Amount: 2500, Currency: "INR", Receipt: "r1"})
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if captured == nil || *captured.Currency != "inr" || captured.Metadata["receipt"] != "r1" {
		t.Fatalf("unexpected params %+v", captured)
	}
	if order.ID != "pi_1" || order.ClientSecret != "pi_1_secret" || order.KeyID != "pk_test" || order.Currency != "INR" {
		t.Fatalf("unexpected order %+v", order)
	}
}

func TestStripeVerifyPaymentRequiresSucceededIntent(t *testing.T) {
	status := stripe.PaymentIntentStatusRequiresPaymentMethod
	p, err := NewStripeProvider(StripeProviderConfig{
		Intents: &stubIntents{getFn: func(id string, _ *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
			return &stripe.PaymentIntent{
				ID:           id,
				Status:       status,
				Amount:       2500,
				Currency:     "inr",
				LatestCharge: &stripe.Charge{ID: "ch_1"},
			}, nil
		}},
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	_, err = p.VerifyPayment(context.Background(), VerifyRequest{GatewayOrderID: "pi_1"})
	if !errors.Is(err, ErrPaymentNotCaptured) {
		t.Fatalf("expected ErrPaymentNotCaptured, got %v", err)
	}

	status = stripe.PaymentIntentStatusSucceeded
	details, err := p.VerifyPayment(context.Background(), VerifyRequest{GatewayOrderID: "pi_1"})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if details.PaymentID != "ch_1" || details.Status != StatusSucceeded {
		t.Fatalf("unexpected details %+v", details)
	}
}
