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

// PlacementRepository creates orders and records their coupon, wallet and cart effects atomically.
type PlacementRepository struct {
	provider *pfirestore.Provider
	clock    func() time.Time
}

// NewPlacementRepository constructs the checkout placement writer.
func NewPlacementRepository(provider *pfirestore.Provider) (*PlacementRepository, error) {
	if provider == nil {
		return nil, errors.New("placement repository requires firestore provider")
	}
	return &PlacementRepository{
		provider: provider,
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Place writes the new order at version 1. Coupon limits are re-checked against the stored
// redemption list so two concurrent checkouts cannot both take the last use.
func (r *PlacementRepository) Place(ctx context.Context, commit repositories.PlacementCommit) (domain.Order, error) {
	if r == nil || r.provider == nil {
		return domain.Order{}, errors.New("placement repository not initialised")
	}
	orderID := strings.TrimSpace(commit.Order.ID)
	if orderID == "" {
		return domain.Order{}, errors.New("placement repository: order id is required")
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	orders := client.Collection(ordersCollection)
	coupons := client.Collection(couponsCollection)
	wallets := client.Collection(walletsCollection)
	carts := client.Collection(cartsCollection)

	var placed domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := orders.Doc(orderID)
		if _, err := tx.Get(ref); err == nil {
			return repositories.NewLedgerError(repositories.OrderErrorAlreadyExists, fmt.Sprintf("order %s already exists", orderID), nil)
		} else if !pfirestore.IsNotFound(err) {
			return err
		}

		var couponRef *firestore.DocumentRef
		if commit.Redemption != nil {
			couponRef = coupons.Doc(normaliseCouponID(commit.CouponCode))
			snap, err := tx.Get(couponRef)
			if err != nil {
				if pfirestore.IsNotFound(err) {
					return repositories.NewLedgerError(repositories.CouponErrorNotFound, fmt.Sprintf("coupon %s not found", commit.CouponCode), err)
				}
				return err
			}
			var doc couponDocument
			if err := snap.DataTo(&doc); err != nil {
				return fmt.Errorf("decode coupon %s: %w", couponRef.ID, err)
			}
			coupon := doc.toDomain(couponRef.ID)
			if coupon.RedemptionCount() >= coupon.Limit {
				return repositories.NewLedgerError(repositories.CouponErrorLimitReached, fmt.Sprintf("coupon %s reached its usage limit", coupon.Code), nil)
			}
			if coupon.UsageType == domain.CouponUsageOnce && coupon.UsedBy(commit.Redemption.UserID) {
				return repositories.NewLedgerError(repositories.CouponErrorAlreadyUsed, fmt.Sprintf("coupon %s already used", coupon.Code), nil)
			}
		}

		now := r.clock()
		var stage *walletStage
		if commit.WalletDebit != nil {
			var err error
			stage, err = stageWalletPostings(tx, wallets, []domain.WalletPosting{*commit.WalletDebit}, now)
			if err != nil {
				return err
			}
		}

		order := commit.Order.Clone()
		order.ID = orderID
		order.Version = 1
		if order.CreatedAt.IsZero() {
			order.CreatedAt = now
		}
		order.UpdatedAt = now
		if err := tx.Create(ref, newOrderDocument(order)); err != nil {
			return err
		}

		if couponRef != nil {
			redemption := redemptionDocument{
				UserID:    commit.Redemption.UserID,
				OrderID:   orderID,
				AppliedAt: now,
			}
			if err := tx.Update(couponRef, []firestore.Update{
				{Path: "appliedUsers", Value: firestore.ArrayUnion(redemption)},
				{Path: "updatedAt", Value: now},
			}); err != nil {
				return err
			}
		}
		if err := stage.write(tx); err != nil {
			return err
		}
		if commit.ClearCart {
			if err := tx.Set(carts.Doc(order.UserID), map[string]any{
				"items":     []cartLineDocument{},
				"updatedAt": now,
			}, firestore.MergeAll); err != nil {
				return err
			}
		}
		placed = order
		return nil
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.place", err)
	}
	return placed, nil
}
