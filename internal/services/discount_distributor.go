package services

import (
	"github.com/shopspring/decimal"

	domain "github.com/scentora/storefront/internal/domain"
)

var oneCent = decimal.New(1, -2)

// DistributeDiscount spreads totalDiscount across the line totals in proportion to each total.
// Rounded shares always add back up to totalDiscount; any rounding remainder of a cent or more
// is given to the first line with the largest total.
func DistributeDiscount(totals []float64, totalDiscount float64) []float64 {
	shares := make([]float64, len(totals))
	if len(totals) == 0 || totalDiscount <= 0 {
		return shares
	}
	sum := decimal.Zero
	for _, t := range totals {
		sum = sum.Add(decimal.NewFromFloat(t))
	}
	if !sum.IsPositive() {
		return shares
	}

	discount := decimal.NewFromFloat(totalDiscount).Round(2)
	distributed := decimal.Zero
	largest := 0
	for i, t := range totals {
		share := discount.Mul(decimal.NewFromFloat(t)).Div(sum).Round(2)
		shares[i], _ = share.Float64()
		distributed = distributed.Add(share)
		if t > totals[largest] {
			largest = i
		}
	}

	remainder := discount.Sub(distributed)
	if remainder.Abs().GreaterThanOrEqual(oneCent) {
		adjusted := decimal.NewFromFloat(shares[largest]).Add(remainder).Round(2)
		shares[largest], _ = adjusted.Float64()
	}
	return shares
}

// applyDiscountShares writes the distributed shares onto the given item indexes. Shares are
// frozen into OriginalCouponDiscount the first time they are recorded.
func applyDiscountShares(order *Order, indexes []int, totalDiscount float64) {
	totals := make([]float64, len(indexes))
	for i, idx := range indexes {
		totals[i] = order.Items[idx].Total
	}
	shares := DistributeDiscount(totals, totalDiscount)
	for i, idx := range indexes {
		item := &order.Items[idx]
		item.CouponDiscount = shares[i]
		if item.OriginalCouponDiscount == 0 {
			item.OriginalCouponDiscount = shares[i]
		}
	}
}

// itemDiscountShares returns each line's share of the order discount. Orders written before
// per-line shares were tracked get their current discount distributed over the lines that are
// still active, and the shares are recorded on the order.
func itemDiscountShares(order *Order) []float64 {
	if order.HasItemDiscounts() || order.Discount <= 0 {
		shares := make([]float64, len(order.Items))
		for i, item := range order.Items {
			shares[i] = item.CouponDiscount
		}
		return shares
	}
	active := make([]int, 0, len(order.Items))
	for i, item := range order.Items {
		if item.Status != domain.OrderStatusCancelled {
			active = append(active, i)
		}
	}
	applyDiscountShares(order, active, order.Discount)
	shares := make([]float64, len(order.Items))
	for i, item := range order.Items {
		shares[i] = item.CouponDiscount
	}
	return shares
}
