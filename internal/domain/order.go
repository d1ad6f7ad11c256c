package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// OrderStatus is shared by line items and the order-level rollup.
type OrderStatus string

const (
	OrderStatusPlaced         OrderStatus = "Placed"
	OrderStatusConfirmed      OrderStatus = "Confirmed"
	OrderStatusProcessing     OrderStatus = "Processing"
	OrderStatusShipped        OrderStatus = "Shipped"
	OrderStatusOutForDelivery OrderStatus = "Out for Delivery"
	OrderStatusDelivered      OrderStatus = "Delivered"
	OrderStatusCancelled      OrderStatus = "Cancelled"
	OrderStatusReturnRequest  OrderStatus = "Return Request"
	OrderStatusReturned       OrderStatus = "Returned"
)

var statusPriority = map[OrderStatus]int{
	OrderStatusPlaced:         1,
	OrderStatusConfirmed:      2,
	OrderStatusProcessing:     3,
	OrderStatusShipped:        4,
	OrderStatusOutForDelivery: 5,
	OrderStatusDelivered:      6,
	OrderStatusCancelled:      7,
	OrderStatusReturnRequest:  8,
	OrderStatusReturned:       9,
}

// Priority returns the numeric rank of the status, or 0 when unknown.
func (s OrderStatus) Priority() int {
	return statusPriority[s]
}

// IsActivePath reports whether the status lies on the Placed..Delivered fulfilment path.
func (s OrderStatus) IsActivePath() bool {
	p := s.Priority()
	return p >= 1 && p <= 6
}

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusReturned
}

// ParseOrderStatus accepts the canonical labels as well as the camel/kebab spellings clients send.
func ParseOrderStatus(value string) (OrderStatus, bool) {
	key := strings.ToLower(strings.TrimSpace(value))
	key = strings.NewReplacer("-", "", "_", "", " ", "").Replace(key)
	switch key {
	case "placed", "pending":
		return OrderStatusPlaced, true
	case "confirmed":
		return OrderStatusConfirmed, true
	case "processing":
		return OrderStatusProcessing, true
	case "shipped":
		return OrderStatusShipped, true
	case "outfordelivery":
		return OrderStatusOutForDelivery, true
	case "delivered":
		return OrderStatusDelivered, true
	case "cancelled", "canceled":
		return OrderStatusCancelled, true
	case "returnrequest", "returnrequested":
		return OrderStatusReturnRequest, true
	case "returned":
		return OrderStatusReturned, true
	}
	return "", false
}

// PaymentMethod enumerates how an order was paid.
type PaymentMethod string

const (
	PaymentMethodCOD      PaymentMethod = "COD"
	PaymentMethodOnline   PaymentMethod = "OnlinePayment"
	PaymentMethodWallet   PaymentMethod = "Wallet"
	PaymentMethodRazorpay PaymentMethod = "Razorpay"
	PaymentMethodUPI      PaymentMethod = "UPI"
)

// Prepaid reports whether money was collected before fulfilment.
func (m PaymentMethod) Prepaid() bool {
	switch m {
	case PaymentMethodOnline, PaymentMethodWallet, PaymentMethodRazorpay, PaymentMethodUPI:
		return true
	}
	return false
}

// ParsePaymentMethod normalises client supplied method names.
func ParsePaymentMethod(value string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "cod", "cash", "cashondelivery":
		return PaymentMethodCOD, true
	case "onlinepayment", "online":
		return PaymentMethodOnline, true
	case "wallet":
		return PaymentMethodWallet, true
	case "razorpay":
		return PaymentMethodRazorpay, true
	case "upi":
		return PaymentMethodUPI, true
	}
	return "", false
}

// PaymentStatus tracks collection state of the order amount.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "Pending"
	PaymentStatusCompleted PaymentStatus = "Completed"
	PaymentStatusFailed    PaymentStatus = "Failed"
	PaymentStatusRefunded  PaymentStatus = "Refunded"
)

// Tracking holds set-once fulfilment milestones for a line item.
type Tracking struct {
	PlacedAt          *time.Time
	ConfirmedAt       *time.Time
	ProcessingAt      *time.Time
	ShippedAt         *time.Time
	OutForDeliveryAt  *time.Time
	DeliveredAt       *time.Time
	EstimatedDelivery *time.Time
	Location          string
}

// AddressSnapshot is the delivery address copied into the order at creation.
type AddressSnapshot struct {
	Name       string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// OrderItem is one purchased line. Its index within Order.Items is its identity.
type OrderItem struct {
	ProductID              string
	ProductName            string
	VariantSize            VariantSize
	Quantity               int
	Price                  float64
	Total                  float64
	CouponDiscount         float64
	OriginalCouponDiscount float64
	Status                 OrderStatus

	CancelReason  string
	CancelDetails string
	CancelledAt   *time.Time

	ReturnReason       string
	ReturnDetails      string
	ReturnRequestedAt  *time.Time
	ReturnedAt         *time.Time
	ReturnRejected     bool
	ReturnRejectReason string
	ReturnRejectedAt   *time.Time

	RefundAmount   float64
	ClawbackAmount float64

	Tracking Tracking
}

// Order is the aggregate root for a checkout.
type Order struct {
	ID               string
	OrderNumber      string
	UserID           string
	Items            []OrderItem
	TotalPrice       float64
	Discount         float64
	FinalAmount      float64
	CouponApplied    bool
	CouponCode       *string
	CouponRevoked    bool
	PaymentMethod    PaymentMethod
	PaymentStatus    PaymentStatus
	PaymentReference string
	GatewayOrderID   string
	Status           OrderStatus
	Address          AddressSnapshot
	DeliveredAt      *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
	Version          int64
}

// ErrOrderInvariant is returned by CheckInvariants.
var ErrOrderInvariant = errors.New("order invariant violated")

// RecalculateFinal re-derives FinalAmount from TotalPrice and Discount.
func (o *Order) RecalculateFinal() {
	o.TotalPrice = Round2(o.TotalPrice)
	o.Discount = Round2(o.Discount)
	o.FinalAmount = FinalAmount(o.TotalPrice, o.Discount)
}

// CheckInvariants verifies the money and coupon invariants that must hold after every mutation.
func (o Order) CheckInvariants() error {
	if !AmountsEqual(o.FinalAmount, FinalAmount(o.TotalPrice, o.Discount)) {
		return fmt.Errorf("%w: finalAmount %.2f != max(0, %.2f - %.2f)", ErrOrderInvariant, o.FinalAmount, o.TotalPrice, o.Discount)
	}
	if o.Discount < 0 || o.TotalPrice < 0 {
		return fmt.Errorf("%w: negative totals", ErrOrderInvariant)
	}
	if o.CouponRevoked {
		if o.Discount != 0 {
			return fmt.Errorf("%w: revoked coupon with discount %.2f", ErrOrderInvariant, o.Discount)
		}
		for i, item := range o.Items {
			if item.CouponDiscount != 0 {
				return fmt.Errorf("%w: revoked coupon but item %d keeps discount %.2f", ErrOrderInvariant, i, item.CouponDiscount)
			}
		}
	}
	for i, item := range o.Items {
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d has quantity %d", ErrOrderInvariant, i, item.Quantity)
		}
		if item.CouponDiscount < 0 || item.RefundAmount < 0 {
			return fmt.Errorf("%w: item %d has negative money fields", ErrOrderInvariant, i)
		}
	}
	return nil
}

// HasItemDiscounts reports whether per-item coupon shares were recorded.
func (o Order) HasItemDiscounts() bool {
	for _, item := range o.Items {
		if item.CouponDiscount > 0 {
			return true
		}
	}
	return false
}

// ActiveSubtotal sums totals of items that are not cancelled, skipping the given index (pass -1 to skip none).
func (o Order) ActiveSubtotal(skip int) float64 {
	values := make([]float64, 0, len(o.Items))
	for i, item := range o.Items {
		if i == skip || item.Status == OrderStatusCancelled {
			continue
		}
		values = append(values, item.Total)
	}
	return SumAmounts(values...)
}

// Clone returns a deep copy so that callers can compute a candidate state without aliasing.
func (o Order) Clone() Order {
	cp := o
	if o.CouponCode != nil {
		code := *o.CouponCode
		cp.CouponCode = &code
	}
	cp.DeliveredAt = cloneTime(o.DeliveredAt)
	if o.Items != nil {
		cp.Items = make([]OrderItem, len(o.Items))
		for i, item := range o.Items {
			cp.Items[i] = item.Clone()
		}
	}
	return cp
}

// Clone deep-copies the item including its timestamps.
func (i OrderItem) Clone() OrderItem {
	cp := i
	cp.CancelledAt = cloneTime(i.CancelledAt)
	cp.ReturnRequestedAt = cloneTime(i.ReturnRequestedAt)
	cp.ReturnedAt = cloneTime(i.ReturnedAt)
	cp.ReturnRejectedAt = cloneTime(i.ReturnRejectedAt)
	cp.Tracking = Tracking{
		PlacedAt:          cloneTime(i.Tracking.PlacedAt),
		ConfirmedAt:       cloneTime(i.Tracking.ConfirmedAt),
		ProcessingAt:      cloneTime(i.Tracking.ProcessingAt),
		ShippedAt:         cloneTime(i.Tracking.ShippedAt),
		OutForDeliveryAt:  cloneTime(i.Tracking.OutForDeliveryAt),
		DeliveredAt:       cloneTime(i.Tracking.DeliveredAt),
		EstimatedDelivery: cloneTime(i.Tracking.EstimatedDelivery),
		Location:          i.Tracking.Location,
	}
	return cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Pagination carries cursor paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// Page is a page of results with an optional continuation token.
type Page[T any] struct {
	Items         []T
	NextPageToken string
}
