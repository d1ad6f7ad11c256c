package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ProviderRazorpay and ProviderStripe are the registration keys used by the Manager.
const (
	ProviderRazorpay = "razorpay"
	ProviderStripe   = "stripe"

	defaultRazorpayBaseURL = "https://api.razorpay.com/v1"
	maxRazorpayErrorBody   = 4 << 10
)

// RazorpayLogger defines the logging contract for Razorpay provider operations.
type RazorpayLogger func(ctx context.Context, event string, fields map[string]any)

// RazorpayProviderConfig configures the RazorpayProvider.
type RazorpayProviderConfig struct {
	KeyID      string
	KeySecret  string
	BaseURL    string
	HTTPClient *http.Client
	Logger     RazorpayLogger
	Clock      func() time.Time
}

// RazorpayProvider opens gateway orders over the Razorpay REST API and verifies the
// checkout signature locally.
type RazorpayProvider struct {
	keyID   string
	secret  []byte
	baseURL string
	client  *http.Client
	logger  RazorpayLogger
	clock   func() time.Time
}

// NewRazorpayProvider constructs a Razorpay Provider.
func NewRazorpayProvider(cfg RazorpayProviderConfig) (*RazorpayProvider, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	secret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || secret == "" {
		return nil, errors.New("razorpay: key id and secret are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultRazorpayBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &RazorpayProvider{
		keyID:   keyID,
		secret:  []byte(secret),
		baseURL: baseURL,
		client:  client,
		logger:  logger,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrderResponse struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type razorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// CreateOrder opens a Razorpay order for the given amount in minor units.
func (p *RazorpayProvider) CreateOrder(ctx context.Context, req GatewayOrderRequest) (GatewayOrder, error) {
	if p == nil {
		return GatewayOrder{}, errors.New("razorpay: provider is nil")
	}
	if req.Amount <= 0 {
		return GatewayOrder{}, fmt.Errorf("razorpay: amount must be positive, got %d", req.Amount)
	}
	payload, err := json.Marshal(razorpayOrderRequest{
		Amount:   req.Amount,
		Currency: strings.ToUpper(defaultString(req.Currency, "INR")),
		Receipt:  req.Receipt,
		Notes:    req.Notes,
	})
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: encode order: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/orders", bytes.NewReader(payload))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: build request: %w", err)
	}
	httpReq.SetBasicAuth(p.keyID, string(p.secret))
	httpReq.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		httpReq.Header.Set("X-Razorpay-Idempotency", key)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: create order: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxRazorpayErrorBody))
		var apiErr razorpayErrorResponse
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error.Description != "" {
			return GatewayOrder{}, fmt.Errorf("razorpay: create order: %s (%s)", apiErr.Error.Description, apiErr.Error.Code)
		}
		return GatewayOrder{}, fmt.Errorf("razorpay: create order: unexpected status %d", resp.StatusCode)
	}

	var out razorpayOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: decode order: %w", err)
	}
	createdAt := p.clock()
	if out.CreatedAt > 0 {
		createdAt = time.Unix(out.CreatedAt, 0).UTC()
	}

	p.logger(ctx, "payments.razorpay.order.created", map[string]any{
		"gatewayOrderId": out.ID,
		"amount":         out.Amount,
		"currency":       out.Currency,
	})

	return GatewayOrder{
		ID:        out.ID,
		Provider:  ProviderRazorpay,
		Amount:    out.Amount,
		Currency:  strings.ToUpper(out.Currency),
		KeyID:     p.keyID,
		CreatedAt: createdAt,
	}, nil
}

// VerifyPayment trusts the payment only when the signature equals
// hex(HMAC-SHA256(order_id + "|" + payment_id, secret)).
func (p *RazorpayProvider) VerifyPayment(ctx context.Context, req VerifyRequest) (PaymentDetails, error) {
	if p == nil {
		return PaymentDetails{}, errors.New("razorpay: provider is nil")
	}
	if !VerifySignature(p.secret, req.GatewayOrderID, req.PaymentID, req.Signature) {
		p.logger(ctx, "payments.razorpay.signature.rejected", map[string]any{
			"gatewayOrderId": req.GatewayOrderID,
			"paymentId":      req.PaymentID,
		})
		return PaymentDetails{}, ErrSignatureMismatch
	}
	return PaymentDetails{
		Provider:       ProviderRazorpay,
		GatewayOrderID: strings.TrimSpace(req.GatewayOrderID),
		PaymentID:      strings.TrimSpace(req.PaymentID),
		Status:         StatusSucceeded,
	}, nil
}

// Sign computes the gateway signature for an order/payment pair.
func Sign(secret []byte, gatewayOrderID, paymentID string) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(strings.TrimSpace(gatewayOrderID) + "|" + strings.TrimSpace(paymentID)))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature compares the supplied signature with the expected one in constant time.
func VerifySignature(secret []byte, gatewayOrderID, paymentID, signature string) bool {
	if len(secret) == 0 || strings.TrimSpace(gatewayOrderID) == "" || strings.TrimSpace(paymentID) == "" {
		return false
	}
	expected := Sign(secret, gatewayOrderID, paymentID)
	got := strings.ToLower(strings.TrimSpace(signature))
	return hmac.Equal([]byte(expected), []byte(got))
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
