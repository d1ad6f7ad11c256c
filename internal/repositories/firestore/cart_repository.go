package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/scentora/storefront/internal/domain"
	pfirestore "github.com/scentora/storefront/internal/platform/firestore"
)

const cartsCollection = "carts"

// CartRepository reads the cart snapshot that checkout turns into an order.
type CartRepository struct {
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{provider: provider}, nil
}

// GetCart returns the user's cart; a missing document is an empty cart. Lines whose size
// cannot be parsed are dropped so a malformed entry never reaches pricing.
func (r *CartRepository) GetCart(ctx context.Context, userID string) (domain.Cart, error) {
	if r == nil || r.provider == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Cart{}, errors.New("cart repository: user id is required")
	}
	coll, err := r.provider.Collection(ctx, cartsCollection)
	if err != nil {
		return domain.Cart{}, err
	}
	snap, err := coll.Doc(userID).Get(ctx)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Cart{UserID: userID}, nil
		}
		return domain.Cart{}, pfirestore.WrapError("carts.get", err)
	}
	var doc cartDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Cart{}, fmt.Errorf("decode cart %s: %w", userID, err)
	}

	cart := domain.Cart{UserID: userID, UpdatedAt: doc.UpdatedAt}
	for _, line := range doc.Lines {
		size, err := domain.ParseVariantSize(line.VariantSize)
		if err != nil || line.Quantity <= 0 || strings.TrimSpace(line.ProductID) == "" {
			continue
		}
		cart.Lines = append(cart.Lines, domain.CartLine{
			ProductID:   strings.TrimSpace(line.ProductID),
			VariantSize: size,
			Quantity:    line.Quantity,
			Price:       line.Price,
		})
	}
	return cart, nil
}
