package firestore

import (
	"strings"
	"time"

	domain "github.com/scentora/storefront/internal/domain"
)

type variantDocument struct {
	Size         float64 `firestore:"size"`
	Stock        int64   `firestore:"stock"`
	RegularPrice float64 `firestore:"regularPrice"`
	SalePrice    float64 `firestore:"salePrice"`
}

type productDocument struct {
	Name      string                     `firestore:"name"`
	Listed    bool                       `firestore:"isListed"`
	Variants  map[string]variantDocument `firestore:"variants"`
	Version   int64                      `firestore:"version"`
	UpdatedAt time.Time                  `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string) domain.Product {
	variants := make(map[domain.VariantSize]domain.ProductVariant, len(d.Variants))
	for key, v := range d.Variants {
		size, err := domain.ParseVariantSize(key)
		if err != nil {
			size, err = domain.ParseVariantSize(v.Size)
			if err != nil {
				continue
			}
		}
		variants[size] = domain.ProductVariant{
			Size:         size,
			Stock:        int(v.Stock),
			RegularPrice: v.RegularPrice,
			SalePrice:    v.SalePrice,
		}
	}
	return domain.Product{
		ID:        id,
		Name:      d.Name,
		Listed:    d.Listed,
		Variants:  variants,
		Version:   d.Version,
		UpdatedAt: d.UpdatedAt,
	}
}

type trackingDocument struct {
	PlacedAt          *time.Time `firestore:"placed,omitempty"`
	ConfirmedAt       *time.Time `firestore:"confirmed,omitempty"`
	ProcessingAt      *time.Time `firestore:"processing,omitempty"`
	ShippedAt         *time.Time `firestore:"shipped,omitempty"`
	OutForDeliveryAt  *time.Time `firestore:"outForDelivery,omitempty"`
	DeliveredAt       *time.Time `firestore:"delivered,omitempty"`
	EstimatedDelivery *time.Time `firestore:"estimatedDelivery,omitempty"`
	Location          string     `firestore:"location,omitempty"`
}

type orderItemDocument struct {
	ProductID              string           `firestore:"productId"`
	ProductName            string           `firestore:"productName"`
	VariantSize            float64          `firestore:"variantSize"`
	Quantity               int              `firestore:"quantity"`
	Price                  float64          `firestore:"price"`
	Total                  float64          `firestore:"total"`
	CouponDiscount         float64          `firestore:"couponDiscount"`
	OriginalCouponDiscount float64          `firestore:"originalCouponDiscount"`
	Status                 string           `firestore:"status"`
	CancelReason           string           `firestore:"cancelReason,omitempty"`
	CancelDetails          string           `firestore:"cancelDetails,omitempty"`
	CancelledAt            *time.Time       `firestore:"cancelledAt,omitempty"`
	ReturnReason           string           `firestore:"returnReason,omitempty"`
	ReturnDetails          string           `firestore:"returnDetails,omitempty"`
	ReturnRequestedAt      *time.Time       `firestore:"returnRequestedAt,omitempty"`
	ReturnedAt             *time.Time       `firestore:"returnedAt,omitempty"`
	ReturnRejected         bool             `firestore:"returnRejected"`
	ReturnRejectReason     string           `firestore:"returnRejectReason,omitempty"`
	ReturnRejectedAt       *time.Time       `firestore:"returnRejectedAt,omitempty"`
	RefundAmount           float64          `firestore:"refundAmount"`
	ClawbackAmount         float64          `firestore:"clawbackAmount"`
	Tracking               trackingDocument `firestore:"tracking"`
}

type addressSnapshotDocument struct {
	Name       string `firestore:"name"`
	Phone      string `firestore:"phone"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
}

type orderDocument struct {
	OrderNumber      string                  `firestore:"orderNumber"`
	UserID           string                  `firestore:"userId"`
	Items            []orderItemDocument     `firestore:"items"`
	TotalPrice       float64                 `firestore:"totalPrice"`
	Discount         float64                 `firestore:"discount"`
	FinalAmount      float64                 `firestore:"finalAmount"`
	CouponApplied    bool                    `firestore:"couponApplied"`
	CouponCode       *string                 `firestore:"couponCode"`
	CouponRevoked    bool                    `firestore:"couponRevoked"`
	PaymentMethod    string                  `firestore:"paymentMethod"`
	PaymentStatus    string                  `firestore:"paymentStatus"`
	PaymentReference string                  `firestore:"paymentReference,omitempty"`
	GatewayOrderID   string                  `firestore:"gatewayOrderId,omitempty"`
	Status           string                  `firestore:"status"`
	Address          addressSnapshotDocument `firestore:"address"`
	DeliveredAt      *time.Time              `firestore:"deliveredAt,omitempty"`
	CreatedAt        time.Time               `firestore:"createdAt"`
	UpdatedAt        time.Time               `firestore:"updatedAt"`
	Version          int64                   `firestore:"version"`
}

func newOrderDocument(o domain.Order) orderDocument {
	items := make([]orderItemDocument, len(o.Items))
	for i, item := range o.Items {
		items[i] = orderItemDocument{
			ProductID:              item.ProductID,
			ProductName:            item.ProductName,
			VariantSize:            float64(item.VariantSize),
			Quantity:               item.Quantity,
			Price:                  item.Price,
			Total:                  item.Total,
			CouponDiscount:         item.CouponDiscount,
			OriginalCouponDiscount: item.OriginalCouponDiscount,
			Status:                 string(item.Status),
			CancelReason:           item.CancelReason,
			CancelDetails:          item.CancelDetails,
			CancelledAt:            item.CancelledAt,
			ReturnReason:           item.ReturnReason,
			ReturnDetails:          item.ReturnDetails,
			ReturnRequestedAt:      item.ReturnRequestedAt,
			ReturnedAt:             item.ReturnedAt,
			ReturnRejected:         item.ReturnRejected,
			ReturnRejectReason:     item.ReturnRejectReason,
			ReturnRejectedAt:       item.ReturnRejectedAt,
			RefundAmount:           item.RefundAmount,
			ClawbackAmount:         item.ClawbackAmount,
			Tracking:               trackingDocument(item.Tracking),
		}
	}
	return orderDocument{
		OrderNumber:      o.OrderNumber,
		UserID:           o.UserID,
		Items:            items,
		TotalPrice:       o.TotalPrice,
		Discount:         o.Discount,
		FinalAmount:      o.FinalAmount,
		CouponApplied:    o.CouponApplied,
		CouponCode:       o.CouponCode,
		CouponRevoked:    o.CouponRevoked,
		PaymentMethod:    string(o.PaymentMethod),
		PaymentStatus:    string(o.PaymentStatus),
		PaymentReference: o.PaymentReference,
		GatewayOrderID:   o.GatewayOrderID,
		Status:           string(o.Status),
		Address:          addressSnapshotDocument(o.Address),
		DeliveredAt:      o.DeliveredAt,
		CreatedAt:        o.CreatedAt.UTC(),
		UpdatedAt:        o.UpdatedAt.UTC(),
		Version:          o.Version,
	}
}

func (d orderDocument) toDomain(id string) domain.Order {
	items := make([]domain.OrderItem, len(d.Items))
	for i, item := range d.Items {
		size, err := domain.ParseVariantSize(item.VariantSize)
		if err != nil {
			size = domain.VariantSize(item.VariantSize)
		}
		status, ok := domain.ParseOrderStatus(item.Status)
		if !ok {
			status = domain.OrderStatus(item.Status)
		}
		items[i] = domain.OrderItem{
			ProductID:              item.ProductID,
			ProductName:            item.ProductName,
			VariantSize:            size,
			Quantity:               item.Quantity,
			Price:                  item.Price,
			Total:                  item.Total,
			CouponDiscount:         item.CouponDiscount,
			OriginalCouponDiscount: item.OriginalCouponDiscount,
			Status:                 status,
			CancelReason:           item.CancelReason,
			CancelDetails:          item.CancelDetails,
			CancelledAt:            item.CancelledAt,
			ReturnReason:           item.ReturnReason,
			ReturnDetails:          item.ReturnDetails,
			ReturnRequestedAt:      item.ReturnRequestedAt,
			ReturnedAt:             item.ReturnedAt,
			ReturnRejected:         item.ReturnRejected,
			ReturnRejectReason:     item.ReturnRejectReason,
			ReturnRejectedAt:       item.ReturnRejectedAt,
			RefundAmount:           item.RefundAmount,
			ClawbackAmount:         item.ClawbackAmount,
			Tracking:               domain.Tracking(item.Tracking),
		}
	}
	status, ok := domain.ParseOrderStatus(d.Status)
	if !ok {
		status = domain.OrderStatus(d.Status)
	}
	return domain.Order{
		ID:               id,
		OrderNumber:      d.OrderNumber,
		UserID:           d.UserID,
		Items:            items,
		TotalPrice:       d.TotalPrice,
		Discount:         d.Discount,
		FinalAmount:      d.FinalAmount,
		CouponApplied:    d.CouponApplied,
		CouponCode:       d.CouponCode,
		CouponRevoked:    d.CouponRevoked,
		PaymentMethod:    domain.PaymentMethod(d.PaymentMethod),
		PaymentStatus:    domain.PaymentStatus(d.PaymentStatus),
		PaymentReference: d.PaymentReference,
		GatewayOrderID:   d.GatewayOrderID,
		Status:           status,
		Address:          domain.AddressSnapshot(d.Address),
		DeliveredAt:      d.DeliveredAt,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
		Version:          d.Version,
	}
}

type redemptionDocument struct {
	UserID    string    `firestore:"userId"`
	OrderID   string    `firestore:"orderId"`
	AppliedAt time.Time `firestore:"date"`
}

type couponDocument struct {
	Code              string               `firestore:"couponCode"`
	DiscountType      string               `firestore:"discountType"`
	DiscountValue     float64              `firestore:"discountPrice"`
	MinimumPrice      float64              `firestore:"minimumPrice"`
	MaxDiscountAmount float64              `firestore:"maxDiscountAmount"`
	UsageType         string               `firestore:"usageType"`
	Limit             int                  `firestore:"limit"`
	ActiveDate        time.Time            `firestore:"activeDate"`
	ExpireDate        time.Time            `firestore:"expireDate"`
	Listed            bool                 `firestore:"isListed"`
	AppliedUsers      []redemptionDocument `firestore:"appliedUsers"`
	UpdatedAt         time.Time            `firestore:"updatedAt"`
}

func (d couponDocument) toDomain(id string) domain.Coupon {
	redemptions := make([]domain.CouponRedemption, len(d.AppliedUsers))
	for i, r := range d.AppliedUsers {
		redemptions[i] = domain.CouponRedemption(r)
	}
	return domain.Coupon{
		ID:                id,
		Code:              d.Code,
		DiscountType:      domain.DiscountType(strings.ToLower(d.DiscountType)),
		DiscountValue:     d.DiscountValue,
		MinimumPrice:      d.MinimumPrice,
		MaxDiscountAmount: d.MaxDiscountAmount,
		UsageType:         domain.CouponUsage(strings.ToLower(d.UsageType)),
		Limit:             d.Limit,
		ActiveDate:        d.ActiveDate,
		ExpireDate:        d.ExpireDate,
		Listed:            d.Listed,
		AppliedUsers:      redemptions,
		UpdatedAt:         d.UpdatedAt,
	}
}

type walletDocument struct {
	Balance   float64   `firestore:"balance"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

type walletTransactionDocument struct {
	Type           string    `firestore:"type"`
	Amount         float64   `firestore:"amount"`
	Description    string    `firestore:"description"`
	OrderID        string    `firestore:"orderId,omitempty"`
	IdempotencyKey string    `firestore:"idempotencyKey,omitempty"`
	BalanceAfter   float64   `firestore:"balanceAfter"`
	CreatedAt      time.Time `firestore:"date"`
}

func (d walletTransactionDocument) toDomain(id, userID string) domain.WalletTransaction {
	return domain.WalletTransaction{
		ID:             id,
		UserID:         userID,
		Type:           domain.WalletTransactionType(d.Type),
		Amount:         d.Amount,
		Description:    d.Description,
		OrderID:        d.OrderID,
		IdempotencyKey: d.IdempotencyKey,
		BalanceAfter:   d.BalanceAfter,
		CreatedAt:      d.CreatedAt,
	}
}

type cartLineDocument struct {
	ProductID   string  `firestore:"productId"`
	VariantSize any     `firestore:"variantSize"`
	Quantity    int     `firestore:"quantity"`
	Price       float64 `firestore:"price"`
}

type cartDocument struct {
	Lines     []cartLineDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type addressDocument struct {
	Name       string    `firestore:"name"`
	Phone      string    `firestore:"phone"`
	Line1      string    `firestore:"line1"`
	Line2      string    `firestore:"line2,omitempty"`
	City       string    `firestore:"city"`
	State      string    `firestore:"state"`
	PostalCode string    `firestore:"postalCode"`
	Country    string    `firestore:"country"`
	IsDefault  bool      `firestore:"isDefault"`
	CreatedAt  time.Time `firestore:"createdAt"`
	UpdatedAt  time.Time `firestore:"updatedAt"`
}
