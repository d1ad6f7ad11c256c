package domain

import (
	"strings"
	"time"
)

// DiscountType selects how a coupon's DiscountValue is interpreted.
type DiscountType string

const (
	DiscountTypeFlat       DiscountType = "flat"
	DiscountTypePercentage DiscountType = "percentage"
)

// CouponUsage limits redemptions per user.
type CouponUsage string

const (
	CouponUsageOnce     CouponUsage = "once"
	CouponUsageMultiple CouponUsage = "multiple"
)

// CouponRedemption records one completed checkout that used the coupon.
type CouponRedemption struct {
	UserID    string
	OrderID   string
	AppliedAt time.Time
}

// Coupon is an order-level discount code.
type Coupon struct {
	ID                string
	Code              string
	DiscountType      DiscountType
	DiscountValue     float64
	MinimumPrice      float64
	MaxDiscountAmount float64
	UsageType         CouponUsage
	Limit             int
	ActiveDate        time.Time
	ExpireDate        time.Time
	Listed            bool
	AppliedUsers      []CouponRedemption
	UpdatedAt         time.Time
}

// RedemptionCount is the number of completed uses; AppliedUsers is the source of truth.
func (c Coupon) RedemptionCount() int {
	return len(c.AppliedUsers)
}

// UsedBy reports whether the user already redeemed this coupon.
func (c Coupon) UsedBy(userID string) bool {
	userID = strings.TrimSpace(userID)
	for _, r := range c.AppliedUsers {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
