package services

import (
	"context"
	"errors"
	"testing"

	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/repositories"
)

type stubProductRepo struct {
	findFn   func(context.Context, string) (domain.Product, error)
	adjustFn func(context.Context, string, domain.VariantSize, int) (domain.ProductVariant, error)
}

func (s *stubProductRepo) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if s.findFn != nil {
		return s.findFn(ctx, productID)
	}
	return domain.Product{}, repositories.NewLedgerError(repositories.StockErrorProductNotFound, "product not found", nil)
}

func (s *stubProductRepo) AdjustStock(ctx context.Context, productID string, size domain.VariantSize, delta int) (domain.ProductVariant, error) {
	if s.adjustFn != nil {
		return s.adjustFn(ctx, productID, size, delta)
	}
	return domain.ProductVariant{Size: size}, nil
}

func TestInventoryLedgerDeltas(t *testing.T) {
	var deltas []int
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Products: &stubProductRepo{
		adjustFn: func(_ context.Context, productID string, size domain.VariantSize, delta int) (domain.ProductVariant, error) {
			if productID != "p1" || size != 50 {
				t.Fatalf("unexpected target %s/%s", productID, size)
			}
			deltas = append(deltas, delta)
			return domain.ProductVariant{Size: size, Stock: 10 + delta}, nil
		},
	}})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := ledger.DecrementStock(context.Background(), " p1 ", 50, 3); err != nil {
		t.Fatalf("decrement: %v", err)
	}
	if err := ledger.RestoreStock(context.Background(), "p1", 50, 2); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if len(deltas) != 2 || deltas[0] != -3 || deltas[1] != 2 {
		t.Fatalf("unexpected deltas %v", deltas)
	}
}

func TestInventoryLedgerValidation(t *testing.T) {
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Products: &stubProductRepo{}})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	cases := []struct {
		name string
		id   string
		size VariantSize
		qty  int
	}{
		{"missing product", "", 50, 1},
		{"zero size", "p1", 0, 1},
		{"zero quantity", "p1", 50, 0},
		{"negative quantity", "p1", 50, -2},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := ledger.RestoreStock(context.Background(), tc.id, tc.size, tc.qty); !errors.Is(err, ErrInventoryInvalidInput) {
				t.Fatalf("expected invalid input, got %v", err)
			}
		})
	}
}

func TestInventoryLedgerMapsLedgerErrors(t *testing.T) {
	code := repositories.StockErrorInsufficient
	ledger, err := NewInventoryLedger(InventoryLedgerDeps{Products: &stubProductRepo{
		adjustFn: func(context.Context, string, domain.VariantSize, int) (domain.ProductVariant, error) {
			return domain.ProductVariant{}, repositories.NewLedgerError(code, string(code), nil)
		},
	}})
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}
	if err := ledger.DecrementStock(context.Background(), "p1", 50, 5); !errors.Is(err, ErrInventoryInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	code = repositories.StockErrorVariantNotFound
	if err := ledger.RestoreStock(context.Background(), "p1", 50, 5); !errors.Is(err, ErrInventoryNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
