package services

import (
	"context"
	"testing"
	"time"

	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/repositories"
)

type stubCouponRepo struct {
	findFn func(context.Context, string) (domain.Coupon, error)
}

func (s *stubCouponRepo) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	if s.findFn != nil {
		return s.findFn(ctx, code)
	}
	return domain.Coupon{}, repositories.NewLedgerError(repositories.CouponErrorNotFound, "coupon not found", nil)
}

func baseCoupon() Coupon {
	return Coupon{
		ID:            "SAVE150",
		Code:          "SAVE150",
		DiscountType:  domain.DiscountTypeFlat,
		DiscountValue: 150,
		MinimumPrice:  1200,
		UsageType:     domain.CouponUsageOnce,
		Limit:         10,
		ActiveDate:    time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		ExpireDate:    time.Date(2024, 6, 30, 0, 0, 0, 0, time.UTC),
		Listed:        true,
	}
}

func TestEvaluateCouponChecksInOrder(t *testing.T) {
	now := time.Date(2024, 6, 15, 18, 30, 0, 0, time.UTC)

	cases := []struct {
		name     string
		mutate   func(*Coupon)
		subtotal float64
		userID   string
		want     CouponRejection
		discount float64
	}{
		{name: "valid flat", subtotal: 1500, userID: "u1", discount: 150},
		{name: "unlisted", mutate: func(c *Coupon) { c.Listed = false }, subtotal: 1500, want: CouponRejectionNotFound},
		{name: "expired", mutate: func(c *Coupon) { c.ExpireDate = time.Date(2024, 6, 14, 0, 0, 0, 0, time.UTC) }, subtotal: 1500, want: CouponRejectionExpired},
		{name: "expires today is still valid", mutate: func(c *Coupon) { c.ExpireDate = time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC) }, subtotal: 1500, discount: 150},
		{name: "not yet active", mutate: func(c *Coupon) { c.ActiveDate = time.Date(2024, 6, 16, 0, 0, 0, 0, time.UTC) }, subtotal: 1500, want: CouponRejectionNotYetActive},
		{name: "below minimum", subtotal: 1199.99, want: CouponRejectionBelowMinimum},
		{name: "limit reached", mutate: func(c *Coupon) {
			c.Limit = 1
			c.AppliedUsers = []domain.CouponRedemption{{UserID: "other"}}
		}, subtotal: 1500, userID: "u1", want: CouponRejectionLimitReached},
		{name: "already used once", mutate: func(c *Coupon) {
			c.AppliedUsers = []domain.CouponRedemption{{UserID: "u1"}}
		}, subtotal: 1500, userID: "u1", want: CouponRejectionAlreadyUsed},
		{name: "multiple use allowed", mutate: func(c *Coupon) {
			c.UsageType = domain.CouponUsageMultiple
			c.AppliedUsers = []domain.CouponRedemption{{UserID: "u1"}}
		}, subtotal: 1500, userID: "u1", discount: 150},
		{name: "expired wins over below minimum", mutate: func(c *Coupon) { c.ExpireDate = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }, subtotal: 10, want: CouponRejectionExpired},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			coupon := baseCoupon()
			if tc.mutate != nil {
				tc.mutate(&coupon)
			}
			got := EvaluateCoupon(coupon, tc.subtotal, tc.userID, now)
			if got.Reason != tc.want {
				t.Fatalf("expected reason %q, got %q", tc.want, got.Reason)
			}
			if got.Valid != (tc.want == CouponRejectionNone) {
				t.Fatalf("valid flag mismatch: %+v", got)
			}
			if got.DiscountAmount != tc.discount {
				t.Fatalf("expected discount %.2f, got %.2f", tc.discount, got.DiscountAmount)
			}
		})
	}
}

func TestCouponDiscountPercentageCap(t *testing.T) {
	coupon := Coupon{DiscountType: domain.DiscountTypePercentage, DiscountValue: 20, MaxDiscountAmount: 100}
	if got := CouponDiscount(coupon, 1000); got != 100 {
		t.Fatalf("expected capped discount 100, got %.2f", got)
	}
	coupon.MaxDiscountAmount = 0
	if got := CouponDiscount(coupon, 1000); got != 200 {
		t.Fatalf("expected uncapped discount 200, got %.2f", got)
	}
	coupon.DiscountValue = 12.5
	if got := CouponDiscount(coupon, 99.99); got != 12.5 {
		t.Fatalf("expected rounded discount 12.50, got %.2f", got)
	}
}

func TestCouponDiscountFlatNeverExceedsSubtotal(t *testing.T) {
	coupon := Coupon{DiscountType: domain.DiscountTypeFlat, DiscountValue: 500}
	if got := CouponDiscount(coupon, 320.5); got != 320.5 {
		t.Fatalf("expected discount clamped to subtotal, got %.2f", got)
	}
}

func TestRevalidateMinimumIsStable(t *testing.T) {
	coupon := Coupon{MinimumPrice: 1200}
	for _, remaining := range []float64{1000, 1200, 1500} {
		first := RevalidateMinimum(coupon, remaining)
		second := RevalidateMinimum(coupon, remaining)
		if first != second {
			t.Fatalf("revalidation for %.2f changed between calls", remaining)
		}
		if first != (remaining >= 1200) {
			t.Fatalf("unexpected decision %v for %.2f", first, remaining)
		}
	}
}

func TestCouponEvaluatorNormalisesCode(t *testing.T) {
	var looked string
	evaluator, err := NewCouponEvaluator(CouponEvaluatorDeps{
		Coupons: &stubCouponRepo{findFn: func(_ context.Context, code string) (domain.Coupon, error) {
			looked = code
			return baseCoupon(), nil
		}},
		Clock: func() time.Time { return time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}

	result, err := evaluator.Evaluate(context.Background(), "  ｓａｖｅ150 ", 1500, "u1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if looked != "SAVE150" {
		t.Fatalf("expected normalised lookup, got %q", looked)
	}
	if !result.Valid || result.DiscountAmount != 150 {
		t.Fatalf("unexpected result %+v", result)
	}
}

func TestCouponEvaluatorUnknownCode(t *testing.T) {
	evaluator, err := NewCouponEvaluator(CouponEvaluatorDeps{Coupons: &stubCouponRepo{}})
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	result, err := evaluator.Evaluate(context.Background(), "missing", 500, "u1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Valid || result.Reason != CouponRejectionNotFound {
		t.Fatalf("expected not found rejection, got %+v", result)
	}
}

func TestCouponEvaluatorUsesConfiguredDay(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*3600)
	coupon := baseCoupon()
	coupon.ExpireDate = time.Date(2024, 6, 15, 0, 0, 0, 0, tokyo)
	evaluator, err := NewCouponEvaluator(CouponEvaluatorDeps{
		Coupons:  &stubCouponRepo{findFn: func(context.Context, string) (domain.Coupon, error) { return coupon, nil }},
		Clock:    func() time.Time { return time.Date(2024, 6, 15, 16, 0, 0, 0, time.UTC) },
		Location: tokyo,
	})
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	// 16:00 UTC is already the 16th in Tokyo.
	result, err := evaluator.Evaluate(context.Background(), "SAVE150", 1500, "u1")
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Reason != CouponRejectionExpired {
		t.Fatalf("expected expired in configured zone, got %+v", result)
	}
}
