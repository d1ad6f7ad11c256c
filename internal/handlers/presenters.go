package handlers

import (
	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/services"
)

type trackingPayload struct {
	PlacedAt          string `json:"placedAt,omitempty"`
	ConfirmedAt       string `json:"confirmedAt,omitempty"`
	ProcessingAt      string `json:"processingAt,omitempty"`
	ShippedAt         string `json:"shippedAt,omitempty"`
	OutForDeliveryAt  string `json:"outForDeliveryAt,omitempty"`
	DeliveredAt       string `json:"deliveredAt,omitempty"`
	EstimatedDelivery string `json:"estimatedDelivery,omitempty"`
	Location          string `json:"location,omitempty"`
}

type orderItemPayload struct {
	Index                  int             `json:"index"`
	ProductID              string          `json:"productId"`
	ProductName            string          `json:"productName"`
	VariantSize            float64         `json:"variantSize"`
	Quantity               int             `json:"quantity"`
	Price                  float64         `json:"price"`
	Total                  float64         `json:"total"`
	CouponDiscount         float64         `json:"couponDiscount"`
	OriginalCouponDiscount float64         `json:"originalCouponDiscount"`
	Status                 string          `json:"status"`
	CancelReason           string          `json:"cancelReason,omitempty"`
	CancelDetails          string          `json:"cancelDetails,omitempty"`
	CancelledAt            string          `json:"cancelledAt,omitempty"`
	ReturnReason           string          `json:"returnReason,omitempty"`
	ReturnDetails          string          `json:"returnDetails,omitempty"`
	ReturnRequestedAt      string          `json:"returnRequestedAt,omitempty"`
	ReturnedAt             string          `json:"returnedAt,omitempty"`
	ReturnRejected         bool            `json:"returnRejected,omitempty"`
	ReturnRejectReason     string          `json:"returnRejectReason,omitempty"`
	ReturnRejectedAt       string          `json:"returnRejectedAt,omitempty"`
	RefundAmount           float64         `json:"refundAmount"`
	ClawbackAmount         float64         `json:"clawbackAmount"`
	Tracking               trackingPayload `json:"tracking"`
}

type addressPayload struct {
	Name       string `json:"name"`
	Phone      string `json:"phone"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
}

type orderPayload struct {
	ID               string             `json:"id"`
	OrderNumber      string             `json:"orderNumber"`
	Items            []orderItemPayload `json:"items"`
	TotalPrice       float64            `json:"totalPrice"`
	Discount         float64            `json:"discount"`
	FinalAmount      float64            `json:"finalAmount"`
	CouponApplied    bool               `json:"couponApplied"`
	CouponCode       *string            `json:"couponCode"`
	CouponRevoked    bool               `json:"couponRevoked"`
	PaymentMethod    string             `json:"paymentMethod"`
	PaymentStatus    string             `json:"paymentStatus"`
	PaymentReference string             `json:"paymentReference,omitempty"`
	Status           string             `json:"status"`
	Address          addressPayload     `json:"address"`
	DeliveredAt      string             `json:"deliveredAt,omitempty"`
	CreatedAt        string             `json:"createdAt"`
	UpdatedAt        string             `json:"updatedAt"`
}

func newTrackingPayload(t domain.Tracking) trackingPayload {
	return trackingPayload{
		PlacedAt:          formatTime(pointerTime(t.PlacedAt)),
		ConfirmedAt:       formatTime(pointerTime(t.ConfirmedAt)),
		ProcessingAt:      formatTime(pointerTime(t.ProcessingAt)),
		ShippedAt:         formatTime(pointerTime(t.ShippedAt)),
		OutForDeliveryAt:  formatTime(pointerTime(t.OutForDeliveryAt)),
		DeliveredAt:       formatTime(pointerTime(t.DeliveredAt)),
		EstimatedDelivery: formatTime(pointerTime(t.EstimatedDelivery)),
		Location:          t.Location,
	}
}

func newOrderPayload(order services.Order) orderPayload {
	items := make([]orderItemPayload, 0, len(order.Items))
	for idx, item := range order.Items {
		items = append(items, orderItemPayload{
			Index:                  idx,
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
			CancelledAt:            formatTime(pointerTime(item.CancelledAt)),
			ReturnReason:           item.ReturnReason,
			ReturnDetails:          item.ReturnDetails,
			ReturnRequestedAt:      formatTime(pointerTime(item.ReturnRequestedAt)),
			ReturnedAt:             formatTime(pointerTime(item.ReturnedAt)),
			ReturnRejected:         item.ReturnRejected,
			ReturnRejectReason:     item.ReturnRejectReason,
			ReturnRejectedAt:       formatTime(pointerTime(item.ReturnRejectedAt)),
			RefundAmount:           item.RefundAmount,
			ClawbackAmount:         item.ClawbackAmount,
			Tracking:               newTrackingPayload(item.Tracking),
		})
	}
	return orderPayload{
		ID:               order.ID,
		OrderNumber:      order.OrderNumber,
		Items:            items,
		TotalPrice:       order.TotalPrice,
		Discount:         order.Discount,
		FinalAmount:      order.FinalAmount,
		CouponApplied:    order.CouponApplied,
		CouponCode:       order.CouponCode,
		CouponRevoked:    order.CouponRevoked,
		PaymentMethod:    string(order.PaymentMethod),
		PaymentStatus:    string(order.PaymentStatus),
		PaymentReference: order.PaymentReference,
		Status:           string(order.Status),
		Address: addressPayload{
			Name:       order.Address.Name,
			Phone:      order.Address.Phone,
			Line1:      order.Address.Line1,
			Line2:      order.Address.Line2,
			City:       order.Address.City,
			State:      order.Address.State,
			PostalCode: order.Address.PostalCode,
			Country:    order.Address.Country,
		},
		DeliveredAt: formatTime(pointerTime(order.DeliveredAt)),
		CreatedAt:   formatTime(order.CreatedAt),
		UpdatedAt:   formatTime(order.UpdatedAt),
	}
}

type walletTransactionPayload struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	Amount       float64 `json:"amount"`
	Description  string  `json:"description"`
	OrderID      string  `json:"orderId,omitempty"`
	BalanceAfter float64 `json:"balanceAfter"`
	CreatedAt    string  `json:"createdAt"`
}

func newWalletTransactionPayloads(txns []services.WalletTransaction) []walletTransactionPayload {
	out := make([]walletTransactionPayload, 0, len(txns))
	for _, txn := range txns {
		out = append(out, walletTransactionPayload{
			ID:           txn.ID,
			Type:         string(txn.Type),
			Amount:       txn.Amount,
			Description:  txn.Description,
			OrderID:      txn.OrderID,
			BalanceAfter: txn.BalanceAfter,
			CreatedAt:    formatTime(txn.CreatedAt),
		})
	}
	return out
}
