package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/scentora/storefront/internal/domain"
	pfirestore "github.com/scentora/storefront/internal/platform/firestore"
	"github.com/scentora/storefront/internal/repositories"
)

const couponsCollection = "coupons"

// CouponRepository reads coupons stored under their upper-cased code.
type CouponRepository struct {
	provider *pfirestore.Provider
}

// NewCouponRepository constructs a Firestore-backed coupon reader.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{provider: provider}, nil
}

func normaliseCouponID(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// FindByCode loads the coupon by its normalised code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if r == nil || r.provider == nil {
		return domain.Coupon{}, errors.New("coupon repository not initialised")
	}
	id := normaliseCouponID(code)
	if id == "" {
		return domain.Coupon{}, repositories.NewLedgerError(repositories.CouponErrorNotFound, "coupon code is required", nil)
	}
	coll, err := r.provider.Collection(ctx, couponsCollection)
	if err != nil {
		return domain.Coupon{}, err
	}
	snap, err := coll.Doc(id).Get(ctx)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return domain.Coupon{}, repositories.NewLedgerError(repositories.CouponErrorNotFound, fmt.Sprintf("coupon %s not found", id), err)
		}
		return domain.Coupon{}, pfirestore.WrapError("coupons.get", err)
	}
	var doc couponDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Coupon{}, fmt.Errorf("decode coupon %s: %w", id, err)
	}
	return doc.toDomain(snap.Ref.ID), nil
}
