package services

import (
	"context"
	"time"

	domain "github.com/scentora/storefront/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order             = domain.Order
	OrderItem         = domain.OrderItem
	OrderStatus       = domain.OrderStatus
	Coupon            = domain.Coupon
	Wallet            = domain.Wallet
	WalletTransaction = domain.WalletTransaction
	VariantSize       = domain.VariantSize
	Pagination        = domain.Pagination
	HealthReport      = domain.HealthReport
)

// Logger is the structured logging hook every service accepts.
type Logger func(ctx context.Context, event string, fields map[string]any)

// InventoryLedger moves per-variant stock.
type InventoryLedger interface {
	DecrementStock(ctx context.Context, productID string, size VariantSize, quantity int) error
	RestoreStock(ctx context.Context, productID string, size VariantSize, quantity int) error
}

// CouponEvaluator validates coupons and computes their discount.
type CouponEvaluator interface {
	Evaluate(ctx context.Context, code string, subtotal float64, userID string) (CouponEvaluation, error)
}

// WalletService exposes the user's stored-value ledger.
type WalletService interface {
	GetWallet(ctx context.Context, userID string, pager Pagination) (WalletSummary, error)
	Credit(ctx context.Context, cmd WalletCommand) (float64, error)
	Debit(ctx context.Context, cmd WalletCommand) (float64, error)
}

// OrderService runs the order lifecycle: cancellation, returns and admin status updates.
type OrderService interface {
	GetOrder(ctx context.Context, userID, orderID string) (Order, error)
	GetOrderStatus(ctx context.Context, userID, orderID string) (OrderStatusView, error)
	ListOrders(ctx context.Context, userID string, pager Pagination) (domain.Page[Order], error)
	CancelItem(ctx context.Context, cmd CancelItemCommand) (CancellationResult, error)
	CancellationImpact(ctx context.Context, userID, orderID string, itemIndex int) (CancellationImpact, error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (CancellationResult, error)
	RequestReturn(ctx context.Context, cmd ReturnRequestCommand) (Order, error)
	CancelReturnRequest(ctx context.Context, cmd CancelReturnRequestCommand) (Order, error)
	ApproveReturn(ctx context.Context, cmd ReturnDecisionCommand) (CancellationResult, error)
	RejectReturn(ctx context.Context, cmd ReturnDecisionCommand) (Order, error)
	UpdateItemStatus(ctx context.Context, cmd UpdateItemStatusCommand) (Order, error)
}

// CheckoutService turns a cart into an order.
type CheckoutService interface {
	CreatePaymentOrder(ctx context.Context, cmd CreatePaymentOrderCommand) (PaymentOrder, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error)
	PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error)
}

// SystemService reports service health.
type SystemService interface {
	HealthReport(ctx context.Context) (HealthReport, error)
}

// CouponRejection names why a coupon cannot be used.
type CouponRejection string

const (
	CouponRejectionNone         CouponRejection = ""
	CouponRejectionNotFound     CouponRejection = "not_found"
	CouponRejectionExpired      CouponRejection = "expired"
	CouponRejectionNotYetActive CouponRejection = "not_yet_active"
	CouponRejectionBelowMinimum CouponRejection = "below_minimum"
	CouponRejectionLimitReached CouponRejection = "limit_reached"
	CouponRejectionAlreadyUsed  CouponRejection = "already_used"
)

// CouponEvaluation is the outcome of Evaluate. Valid is false whenever Reason is set.
type CouponEvaluation struct {
	Valid          bool
	Coupon         Coupon
	DiscountAmount float64
	Reason         CouponRejection
}

// WalletCommand requests a ledger movement.
type WalletCommand struct {
	UserID         string
	Amount         float64
	Description    string
	OrderID        string
	IdempotencyKey string
}

// WalletSummary is the wallet balance with a page of recent entries.
type WalletSummary struct {
	Wallet       Wallet
	Transactions domain.Page[WalletTransaction]
}

// OrderStatusView is the lightweight status payload used for polling.
type OrderStatusView struct {
	OrderID     string
	OrderNumber string
	Status      OrderStatus
	Items       []ItemStatusView
	UpdatedAt   time.Time
}

// ItemStatusView reports one line's status and tracking.
type ItemStatusView struct {
	Index       int
	ProductName string
	VariantSize VariantSize
	Status      OrderStatus
	Tracking    domain.Tracking
}

// CancelItemCommand cancels one line. VariantSize must match the stored line.
type CancelItemCommand struct {
	UserID      string
	OrderID     string
	ItemIndex   int
	VariantSize VariantSize
	Reason      string
	Details     string
}

// CancelOrderCommand cancels every cancellable line of an order.
type CancelOrderCommand struct {
	UserID  string
	OrderID string
	Reason  string
	Details string
}

// ReturnRequestCommand asks to return delivered lines. Empty ItemIndexes with All set targets
// every delivered line.
type ReturnRequestCommand struct {
	UserID      string
	OrderID     string
	ItemIndexes []int
	All         bool
	Reason      string
	Details     string
}

// CancelReturnRequestCommand withdraws a pending return request.
type CancelReturnRequestCommand struct {
	UserID    string
	OrderID   string
	ItemIndex int
}

// ReturnDecisionCommand approves or rejects pending returns.
type ReturnDecisionCommand struct {
	ActorID     string
	OrderID     string
	ItemIndexes []int
	All         bool
	Reason      string
}

// UpdateItemStatusCommand is an admin status change for one line or all lines.
type UpdateItemStatusCommand struct {
	ActorID   string
	OrderID   string
	ItemIndex int
	All       bool
	Status    OrderStatus
}

// CancellationImpact is the dry-run money breakdown for cancelling a line.
type CancellationImpact struct {
	ItemIndex      int
	ItemTotal      float64
	ItemDiscount   float64
	ItemUserPaid   float64
	CouponRevoked  bool
	CouponCode     string
	MinimumPrice   float64
	RemainingTotal float64
	BalanceDue     float64
	RefundAmount   float64
	RefundToWallet bool
	NewTotalPrice  float64
	NewDiscount    float64
	NewFinalAmount float64
}

// CancellationResult returns the committed order with the money moved.
type CancellationResult struct {
	Order          Order
	RefundAmount   float64
	RefundToWallet bool
	CouponRevoked  bool
}

// CreatePaymentOrderCommand starts an online payment for the user's cart.
type CreatePaymentOrderCommand struct {
	UserID        string
	AddressID     string
	PaymentMethod domain.PaymentMethod
	CouponCode    string
	Provider      string
}

// PaymentOrder is what the client needs to open the gateway widget.
type PaymentOrder struct {
	GatewayOrderID string
	Provider       string
	Amount         float64
	AmountMinor    int64
	Currency       string
	KeyID          string
	ClientSecret   string
}

// VerifyPaymentCommand completes an online checkout after the gateway reports success.
type VerifyPaymentCommand struct {
	UserID         string
	AddressID      string
	PaymentMethod  domain.PaymentMethod
	CouponCode     string
	Provider       string
	GatewayOrderID string
	PaymentID      string
	Signature      string
}

// PlaceOrderCommand completes a COD or wallet checkout.
type PlaceOrderCommand struct {
	UserID        string
	AddressID     string
	PaymentMethod domain.PaymentMethod
	CouponCode    string
}
