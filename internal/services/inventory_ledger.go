package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scentora/storefront/internal/repositories"
)

var (
	// ErrInventoryInvalidInput signals the caller provided invalid arguments.
	ErrInventoryInvalidInput = errors.New("inventory: invalid input")
	// ErrInventoryInsufficientStock indicates the requested quantity exceeds availability.
	ErrInventoryInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrInventoryNotFound indicates the product or its variant no longer exists.
	ErrInventoryNotFound = errors.New("inventory: product or variant not found")
)

// InventoryLedgerDeps bundles the collaborators required to construct the inventory ledger.
type InventoryLedgerDeps struct {
	Products repositories.ProductRepository
	Logger   Logger
}

type inventoryLedger struct {
	products repositories.ProductRepository
	logger   Logger
}

// NewInventoryLedger wires the product repository into an InventoryLedger.
func NewInventoryLedger(deps InventoryLedgerDeps) (InventoryLedger, error) {
	if deps.Products == nil {
		return nil, errors.New("inventory ledger: product repository is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &inventoryLedger{products: deps.Products, logger: logger}, nil
}

func (l *inventoryLedger) DecrementStock(ctx context.Context, productID string, size VariantSize, quantity int) error {
	if err := validateStockInput(productID, size, quantity); err != nil {
		return err
	}
	variant, err := l.products.AdjustStock(ctx, strings.TrimSpace(productID), size, -quantity)
	if err != nil {
		return mapStockError(err)
	}
	l.logger(ctx, "inventory.decremented", map[string]any{
		"productId": productID,
		"size":      size.Key(),
		"quantity":  quantity,
		"remaining": variant.Stock,
	})
	return nil
}

func (l *inventoryLedger) RestoreStock(ctx context.Context, productID string, size VariantSize, quantity int) error {
	if err := validateStockInput(productID, size, quantity); err != nil {
		return err
	}
	variant, err := l.products.AdjustStock(ctx, strings.TrimSpace(productID), size, quantity)
	if err != nil {
		return mapStockError(err)
	}
	l.logger(ctx, "inventory.restored", map[string]any{
		"productId": productID,
		"size":      size.Key(),
		"quantity":  quantity,
		"remaining": variant.Stock,
	})
	return nil
}

func validateStockInput(productID string, size VariantSize, quantity int) error {
	if strings.TrimSpace(productID) == "" {
		return fmt.Errorf("%w: product id is required", ErrInventoryInvalidInput)
	}
	if size <= 0 {
		return fmt.Errorf("%w: variant size must be positive", ErrInventoryInvalidInput)
	}
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be positive, got %d", ErrInventoryInvalidInput, quantity)
	}
	return nil
}

func mapStockError(err error) error {
	code, ok := repositories.LedgerCode(err)
	if !ok {
		return err
	}
	switch code {
	case repositories.StockErrorInsufficient:
		return fmt.Errorf("%w: %v", ErrInventoryInsufficientStock, err)
	case repositories.StockErrorProductNotFound, repositories.StockErrorVariantNotFound:
		return fmt.Errorf("%w: %v", ErrInventoryNotFound, err)
	case repositories.StockErrorInvalidQuantity:
		return fmt.Errorf("%w: %v", ErrInventoryInvalidInput, err)
	}
	return err
}
