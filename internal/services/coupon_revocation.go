package services

import domain "github.com/scentora/storefront/internal/domain"

// CouponRevocationPolicy enables the coupon minimum re-check per cancellation path.
type CouponRevocationPolicy struct {
	ItemCancel  bool
	OrderCancel bool
}

// DefaultCouponRevocationPolicy re-checks on single line cancellation only.
func DefaultCouponRevocationPolicy() CouponRevocationPolicy {
	return CouponRevocationPolicy{ItemCancel: true}
}

// CouponRevocation is the outcome of RevokeCouponIfUnearned.
type CouponRevocation struct {
	Revoked        bool
	RemainingTotal float64
	// BalanceDue is the discount the remaining lines had enjoyed and must now give back.
	BalanceDue float64
}

// RevokeCouponIfUnearned re-checks the coupon minimum against the live lines of order, leaving
// out the line at skip (-1 leaves out nothing). removedShare is the discount share leaving the
// order together with that line.
//
// When the minimum no longer holds the coupon is revoked order-wide: every line share is
// zeroed, the order discount drops to zero and totals are recomputed at full price.
func RevokeCouponIfUnearned(order *Order, coupon Coupon, skip int, removedShare float64) CouponRevocation {
	remaining := order.ActiveSubtotal(skip)
	result := CouponRevocation{RemainingTotal: remaining}
	if order.CouponRevoked || order.Discount <= 0 {
		return result
	}
	if RevalidateMinimum(coupon, remaining) {
		return result
	}

	due := domain.SubtractAmounts(order.Discount, removedShare)
	if due < 0 {
		due = 0
	}
	for i := range order.Items {
		order.Items[i].CouponDiscount = 0
	}
	order.Discount = 0
	order.CouponApplied = false
	order.CouponRevoked = true
	order.CouponCode = nil
	order.TotalPrice = remaining
	order.RecalculateFinal()

	result.Revoked = true
	result.BalanceDue = due
	return result
}
