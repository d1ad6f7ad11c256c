package firestore

import (
	"testing"
	"time"

	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/repositories"
)

func TestProductDocumentNormalisesVariantKeys(t *testing.T) {
	doc := productDocument{
		Name: "Amber",
		Variants: map[string]variantDocument{
			"50.0":  {Size: 50, Stock: 4, RegularPrice: 900},
			"100ml": {Size: 100, Stock: 1, RegularPrice: 1500, SalePrice: 1400},
			"bogus": {Size: 0},
		},
	}
	product := doc.toDomain("amber")
	if len(product.Variants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(product.Variants))
	}
	v, ok := product.Variant(50)
	if !ok || v.Stock != 4 {
		t.Fatalf("expected 50ml variant with stock 4, got %+v (%v)", v, ok)
	}
	if got := storedVariantKey(doc, 50); got != "50.0" {
		t.Fatalf("expected legacy key 50.0, got %q", got)
	}
	if got := storedVariantKey(doc, 100); got != "100ml" {
		t.Fatalf("expected key 100ml, got %q", got)
	}
	if got := storedVariantKey(doc, 30); got != "30" {
		t.Fatalf("expected canonical key for unknown size, got %q", got)
	}
}

func TestOrderDocumentPreservesLineState(t *testing.T) {
	code := "WELCOME10"
	now := time.Date(2026, 5, 2, 8, 0, 0, 0, time.UTC)
	order := domain.Order{
		ID:            "ord-1",
		UserID:        "user-1",
		CouponApplied: true,
		CouponCode:    &code,
		Status:        domain.OrderStatusShipped,
		Items: []domain.OrderItem{{
			ProductID:      "p1",
			VariantSize:    50,
			Quantity:       2,
			Price:          250,
			Total:          500,
			CouponDiscount: 50,
			Status:         domain.OrderStatusShipped,
			Tracking:       domain.Tracking{ShippedAt: &now, Location: "In transit"},
		}},
		Version: 3,
	}
	restored := newOrderDocument(order).toDomain("ord-1")
	if restored.Version != 3 || restored.CouponCode == nil || *restored.CouponCode != code {
		t.Fatalf("unexpected header %+v", restored)
	}
	item := restored.Items[0]
	if item.VariantSize != 50 || item.CouponDiscount != 50 || item.Status != domain.OrderStatusShipped {
		t.Fatalf("unexpected item %+v", item)
	}
	if item.Tracking.ShippedAt == nil || !item.Tracking.ShippedAt.Equal(now) {
		t.Fatalf("expected shipped timestamp to survive")
	}
}

func TestWalletEntryIDIsDeterministicForKeys(t *testing.T) {
	key := domain.WalletKey("ord-1", 2, domain.WalletActionCancel)
	if walletEntryID(key) != walletEntryID(key) {
		t.Fatalf("expected deterministic id")
	}
	if walletEntryID(key) == walletEntryID(domain.WalletKey("ord-1", 2, domain.WalletActionReturn)) {
		t.Fatalf("expected distinct ids per action")
	}
	if walletEntryID("") == walletEntryID("") {
		t.Fatalf("expected unique ids without key")
	}
}

func TestPaymentSessionDocIDRejectsPaths(t *testing.T) {
	if id, err := paymentSessionDocID(" order_gw_1 "); err != nil || id != "order_gw_1" {
		t.Fatalf("expected trimmed id, got %q (%v)", id, err)
	}
	for _, bad := range []string{"", "  ", "orders/order_gw_1"} {
		_, err := paymentSessionDocID(bad)
		if code, _ := repositories.LedgerCode(err); code != repositories.PaymentSessionNotFound {
			t.Fatalf("expected session not found for %q, got %v", bad, err)
		}
	}
}
