package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/width"

	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/repositories"
)

// ErrCouponRejected wraps every coupon rejection surfaced to callers.
var ErrCouponRejected = errors.New("coupon: rejected")

var couponCaser = cases.Upper(language.Und)

// CouponEvaluatorDeps bundles the collaborators required to construct a coupon evaluator.
type CouponEvaluatorDeps struct {
	Coupons repositories.CouponRepository
	Clock   func() time.Time
	// Location decides which calendar day "today" is. Defaults to UTC.
	Location *time.Location
}

type couponEvaluator struct {
	coupons  repositories.CouponRepository
	clock    func() time.Time
	location *time.Location
}

// NewCouponEvaluator constructs the coupon evaluator.
func NewCouponEvaluator(deps CouponEvaluatorDeps) (CouponEvaluator, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon evaluator: coupon repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	loc := deps.Location
	if loc == nil {
		loc = time.UTC
	}
	return &couponEvaluator{coupons: deps.Coupons, clock: clock, location: loc}, nil
}

// NormalizeCouponCode folds full-width characters and upper-cases the code.
func NormalizeCouponCode(code string) string {
	folded := width.Fold.String(strings.TrimSpace(code))
	return couponCaser.String(folded)
}

func (e *couponEvaluator) Evaluate(ctx context.Context, code string, subtotal float64, userID string) (CouponEvaluation, error) {
	normalized := NormalizeCouponCode(code)
	if normalized == "" {
		return CouponEvaluation{Reason: CouponRejectionNotFound}, nil
	}
	coupon, err := e.coupons.FindByCode(ctx, normalized)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return CouponEvaluation{Reason: CouponRejectionNotFound}, nil
		}
		return CouponEvaluation{}, fmt.Errorf("coupon: lookup %s: %w", normalized, err)
	}
	return EvaluateCoupon(coupon, subtotal, userID, e.clock().In(e.location)), nil
}

// EvaluateCoupon applies the ordered coupon checks at the given instant. The first failing
// check decides the reason.
func EvaluateCoupon(coupon Coupon, subtotal float64, userID string, now time.Time) CouponEvaluation {
	result := CouponEvaluation{Coupon: coupon}
	if !coupon.Listed {
		result.Reason = CouponRejectionNotFound
		return result
	}
	today := dateOnly(now)
	if !coupon.ExpireDate.IsZero() && today.After(dateOnly(coupon.ExpireDate.In(now.Location()))) {
		result.Reason = CouponRejectionExpired
		return result
	}
	if !coupon.ActiveDate.IsZero() && today.Before(dateOnly(coupon.ActiveDate.In(now.Location()))) {
		result.Reason = CouponRejectionNotYetActive
		return result
	}
	if subtotal < coupon.MinimumPrice {
		result.Reason = CouponRejectionBelowMinimum
		return result
	}
	if coupon.RedemptionCount() >= coupon.Limit {
		result.Reason = CouponRejectionLimitReached
		return result
	}
	if coupon.UsageType == domain.CouponUsageOnce && coupon.UsedBy(userID) {
		result.Reason = CouponRejectionAlreadyUsed
		return result
	}
	result.Valid = true
	result.DiscountAmount = CouponDiscount(coupon, subtotal)
	return result
}

// CouponDiscount computes the discount a valid coupon grants on subtotal.
func CouponDiscount(coupon Coupon, subtotal float64) float64 {
	if subtotal <= 0 || coupon.DiscountValue <= 0 {
		return 0
	}
	switch coupon.DiscountType {
	case domain.DiscountTypePercentage:
		d := decimal.NewFromFloat(subtotal).Mul(decimal.NewFromFloat(coupon.DiscountValue)).Div(decimal.NewFromInt(100))
		if coupon.MaxDiscountAmount > 0 {
			d = decimal.Min(d, decimal.NewFromFloat(coupon.MaxDiscountAmount))
		}
		f, _ := d.Round(2).Float64()
		return f
	default:
		if coupon.DiscountValue > subtotal {
			return domain.Round2(subtotal)
		}
		return domain.Round2(coupon.DiscountValue)
	}
}

// RevalidateMinimum reports whether the coupon's minimum purchase still holds on the remaining
// subtotal.
func RevalidateMinimum(coupon Coupon, remainingSubtotal float64) bool {
	return remainingSubtotal >= coupon.MinimumPrice
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func couponRejectionMessage(reason CouponRejection) string {
	switch reason {
	case CouponRejectionNotFound:
		return "coupon not found"
	case CouponRejectionExpired:
		return "coupon has expired"
	case CouponRejectionNotYetActive:
		return "coupon is not active yet"
	case CouponRejectionBelowMinimum:
		return "order total is below the coupon minimum"
	case CouponRejectionLimitReached:
		return "coupon usage limit reached"
	case CouponRejectionAlreadyUsed:
		return "coupon already used"
	}
	return "coupon is not valid"
}
