package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"STORE_FIREBASE_PROJECT_ID":      "scentora-dev",
		"STORE_PAYMENTS_RAZORPAY_KEY_ID": "rzp_test_key",
		"STORE_PAYMENTS_RAZORPAY_SECRET": "rzp_secret",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Firestore.ProjectID != "scentora-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "scentora-dev" {
		t.Errorf("expected pubsub project to follow firestore, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Payments.Currency != "INR" || cfg.Payments.DefaultProvider != "razorpay" {
		t.Errorf("unexpected payment defaults: %+v", cfg.Payments)
	}
	if cfg.Orders.ReturnWindow != 7*24*time.Hour {
		t.Errorf("unexpected return window %s", cfg.Orders.ReturnWindow)
	}
	if cfg.Orders.RevokeCouponOnFullCancel {
		t.Errorf("expected whole-order coupon revocation disabled by default")
	}
	if cfg.Idempotency.Store != "firestore" || cfg.Idempotency.TTL != defaultIdempotencyTTL {
		t.Errorf("unexpected idempotency defaults: %+v", cfg.Idempotency)
	}
	if cfg.Firestore.TxAttempts != 5 {
		t.Errorf("unexpected tx attempts %d", cfg.Firestore.TxAttempts)
	}
}

func TestLoadResolvesSecretReferences(t *testing.T) {
	env := baseEnv()
	env["STORE_PAYMENTS_RAZORPAY_SECRET"] = "secret://payments/razorpay"
	env["STORE_PAYMENTS_STRIPE_API_KEY"] = "sm://payments/stripe"
	env["STORE_SERVER_READ_TIMEOUT"] = "20s"
	env["STORE_ORDERS_REVOKE_COUPON_ON_FULL_CANCEL"] = "yes"

	var refs []string
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		refs = append(refs, ref)
		return "resolved:" + ref, nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Payments.RazorpaySecret != "resolved:secret://payments/razorpay" {
		t.Errorf("unexpected razorpay secret %q", cfg.Payments.RazorpaySecret)
	}
	if cfg.Payments.StripeAPIKey != "resolved:secret://payments/stripe" {
		t.Errorf("expected sm:// to be normalised, got %q", cfg.Payments.StripeAPIKey)
	}
	if len(refs) != 2 {
		t.Errorf("expected 2 secret lookups, got %v", refs)
	}
	if cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("unexpected read timeout %s", cfg.Server.ReadTimeout)
	}
	if !cfg.Orders.RevokeCouponOnFullCancel {
		t.Errorf("expected revocation flag enabled")
	}
}

func TestLoadSecretWithoutResolverFails(t *testing.T) {
	env := baseEnv()
	env["STORE_PAYMENTS_RAZORPAY_SECRET"] = "secret://payments/razorpay"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %v", err)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected resolver not configured, got %v", err)
	}
}

func TestLoadValidation(t *testing.T) {
	env := map[string]string{
		"STORE_IDEMPOTENCY_STORE": "redis",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := map[string]bool{
		"Firebase.ProjectID":  true,
		"Firestore.ProjectID": true,
		"Payments.Razorpay":   true,
		"Redis.Addr":          true,
	}
	fields := validation.Fields()
	if len(fields) != len(want) {
		t.Fatalf("unexpected fields %v", fields)
	}
	for _, f := range fields {
		if !want[f] {
			t.Errorf("unexpected field %s", f)
		}
	}
}

func TestLoadReadsDotEnvWithLowerPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "STORE_FIREBASE_PROJECT_ID=from-file\nSTORE_SERVER_PORT=7000\nSTORE_PAYMENTS_RAZORPAY_KEY_ID=k\nSTORE_PAYMENTS_RAZORPAY_SECRET=\"quoted secret\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	cfg, err := Load(context.Background(),
		WithEnvFile(path),
		WithoutSystemEnv(),
		WithEnvMap(map[string]string{"STORE_SERVER_PORT": "9000"}),
	)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Firebase.ProjectID != "from-file" {
		t.Errorf("expected project from file, got %s", cfg.Firebase.ProjectID)
	}
	if cfg.Server.Port != "9000" {
		t.Errorf("expected env map to win, got %s", cfg.Server.Port)
	}
	if cfg.Payments.RazorpaySecret != "quoted secret" {
		t.Errorf("expected quotes stripped, got %q", cfg.Payments.RazorpaySecret)
	}

	values, err := EnvironmentValues(WithEnvFile(path), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("EnvironmentValues: %v", err)
	}
	if values["STORE_SERVER_PORT"] != "7000" {
		t.Errorf("expected file value, got %q", values["STORE_SERVER_PORT"])
	}
}

func TestLoadMissingDotEnvIsIgnored(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(filepath.Join(t.TempDir(), "missing.env")))
	if err != nil {
		t.Fatalf("expected missing .env to be ignored, got %v", err)
	}
}
