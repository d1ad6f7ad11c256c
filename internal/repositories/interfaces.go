package repositories

import (
	"context"

	domain "github.com/scentora/storefront/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists order aggregates. Every write is a compare-and-swap on Order.Version.
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByUser(ctx context.Context, userID string, pager domain.Pagination) (domain.Page[domain.Order], error)
	// Commit stores order when the persisted version equals expectedVersion and applies the wallet
	// postings in the same transaction. The saved order carries expectedVersion+1.
	Commit(ctx context.Context, order domain.Order, expectedVersion int64, postings []domain.WalletPosting) (domain.Order, error)
}

// PlacementCommit bundles every write that makes a checkout final.
type PlacementCommit struct {
	Order       domain.Order
	Redemption  *domain.CouponRedemption
	CouponCode  string
	WalletDebit *domain.WalletPosting
	ClearCart   bool
}

// PlacementRepository creates orders together with their coupon, wallet and cart side effects.
type PlacementRepository interface {
	Place(ctx context.Context, commit PlacementCommit) (domain.Order, error)
}

// ProductRepository reads products and applies per-variant stock movements.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	// AdjustStock applies delta to the variant identified by size inside a transaction.
	// Negative deltas fail with StockErrorInsufficient when stock would drop below zero.
	AdjustStock(ctx context.Context, productID string, size domain.VariantSize, delta int) (domain.ProductVariant, error)
}

// CouponRepository reads coupons by normalised code.
type CouponRepository interface {
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
}

// WalletRepository owns wallet balances and their append-only transaction log.
type WalletRepository interface {
	Get(ctx context.Context, userID string) (domain.Wallet, error)
	ListTransactions(ctx context.Context, userID string, pager domain.Pagination) (domain.Page[domain.WalletTransaction], error)
	// Apply posts a single movement. Replaying an idempotency key returns the original entry.
	Apply(ctx context.Context, posting domain.WalletPosting) (domain.WalletTransaction, error)
}

// CartRepository exposes the cart snapshot used by checkout.
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (domain.Cart, error)
}

// AddressRepository resolves saved addresses owned by a user.
type AddressRepository interface {
	FindByID(ctx context.Context, userID, addressID string) (domain.Address, error)
}

// PaymentSessionRepository records the checkout each gateway order was opened for.
type PaymentSessionRepository interface {
	Save(ctx context.Context, session domain.PaymentSession) error
	FindByGatewayOrder(ctx context.Context, gatewayOrderID string) (domain.PaymentSession, error)
}

// OrderSequenceRepository allocates gap-free order numbers per calendar year.
type OrderSequenceRepository interface {
	NextOrderSequence(ctx context.Context, year int) (int64, error)
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
