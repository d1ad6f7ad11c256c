package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/scentora/storefront/internal/domain"
	pfirestore "github.com/scentora/storefront/internal/platform/firestore"
	"github.com/scentora/storefront/internal/repositories"
)

const productsCollection = "products"

// ProductRepository reads products and mutates per-variant stock.
type ProductRepository struct {
	provider *pfirestore.Provider
	clock    func() time.Time
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		provider: provider,
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// FindByID loads a product with its variants keyed by normalised size.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.provider == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, repositories.NewLedgerError(repositories.StockErrorProductNotFound, "product id is required", nil)
	}
	coll, err := r.provider.Collection(ctx, productsCollection)
	if err != nil {
		return domain.Product{}, err
	}
	snap, err := coll.Doc(productID).Get(ctx)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Product{}, repositories.NewLedgerError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err)
		}
		return domain.Product{}, pfirestore.WrapError("products.get", err)
	}
	var doc productDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Product{}, fmt.Errorf("decode product %s: %w", productID, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}

// AdjustStock applies delta to one variant. The read and the conditional write run in one
// transaction, so concurrent decrements can never take stock below zero.
func (r *ProductRepository) AdjustStock(ctx context.Context, productID string, size domain.VariantSize, delta int) (domain.ProductVariant, error) {
	if r == nil || r.provider == nil {
		return domain.ProductVariant{}, errors.New("product repository not initialised")
	}
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.ProductVariant{}, repositories.NewLedgerError(repositories.StockErrorProductNotFound, "product id is required", nil)
	}
	if delta == 0 {
		return domain.ProductVariant{}, repositories.NewLedgerError(repositories.StockErrorInvalidQuantity, "stock delta must be non-zero", nil)
	}
	coll, err := r.provider.Collection(ctx, productsCollection)
	if err != nil {
		return domain.ProductVariant{}, err
	}

	var updated domain.ProductVariant
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := coll.Doc(productID)
		snap, err := tx.Get(ref)
		if err != nil {
			if pfirestore.IsNotFound(err) {
				return repositories.NewLedgerError(repositories.StockErrorProductNotFound, fmt.Sprintf("product %s not found", productID), err)
			}
			return err
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return fmt.Errorf("decode product %s: %w", productID, err)
		}
		product := doc.toDomain(productID)
		variant, ok := product.Variant(size)
		if !ok {
			return repositories.NewLedgerError(repositories.StockErrorVariantNotFound,
				fmt.Sprintf("product %s has no %sml variant", productID, size), nil)
		}
		next := variant.Stock + delta
		if next < 0 {
			return repositories.NewLedgerError(repositories.StockErrorInsufficient,
				fmt.Sprintf("product %s %sml has %d in stock, requested %d", productID, size, variant.Stock, -delta), nil)
		}

		// The stored key may be a legacy spelling such as "50.0"; write back to the key we read.
		key := storedVariantKey(doc, size)
		if err := tx.Update(ref, []firestore.Update{
			{FieldPath: firestore.FieldPath{"variants", key, "stock"}, Value: next},
			{Path: "version", Value: firestore.Increment(1)},
			{Path: "updatedAt", Value: r.clock()},
		}); err != nil {
			return err
		}
		variant.Stock = next
		updated = variant
		return nil
	})
	if err != nil {
		return domain.ProductVariant{}, pfirestore.WrapError("products.adjustStock", err)
	}
	return updated, nil
}

func storedVariantKey(doc productDocument, size domain.VariantSize) string {
	if _, ok := doc.Variants[size.Key()]; ok {
		return size.Key()
	}
	for key, v := range doc.Variants {
		parsed, err := domain.ParseVariantSize(key)
		if err != nil {
			parsed, err = domain.ParseVariantSize(v.Size)
		}
		if err == nil && parsed == size {
			return key
		}
	}
	return size.Key()
}
