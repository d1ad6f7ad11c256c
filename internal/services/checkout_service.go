package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/payments"
	"github.com/scentora/storefront/internal/repositories"
)

const (
	orderEventPlaced = "order.placed"

	orderIDPrefix   = "ord_"
	receiptPrefix   = "rcpt_"
	defaultCurrency = "INR"
)

var paidOrderNamespace = uuid.MustParse("0b7e4c52-6d1a-5f3e-9a0c-2f8d4e6b1c73")

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates checkout dependencies are currently unavailable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutCartNotReady indicates the cart is empty or references products that cannot be sold.
	ErrCheckoutCartNotReady = errors.New("checkout: cart not ready")
	// ErrCheckoutInsufficientStock indicates stock could not be taken for the cart lines.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutConflict indicates a concurrent modification prevented completing checkout.
	ErrCheckoutConflict = errors.New("checkout: conflict")
	// ErrCheckoutPaymentReused indicates a verified payment already settled an order.
	ErrCheckoutPaymentReused = errors.New("checkout: payment already used")
	// ErrCheckoutPaymentFailed indicates the gateway order could not be created or verified.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
)

// checkoutPaymentGateway abstracts payments.Manager for easier testing.
type checkoutPaymentGateway interface {
	CreateOrder(ctx context.Context, paymentCtx payments.PaymentContext, req payments.GatewayOrderRequest) (payments.GatewayOrder, error)
	VerifyPayment(ctx context.Context, paymentCtx payments.PaymentContext, req payments.VerifyRequest) (payments.PaymentDetails, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Carts       repositories.CartRepository
	Addresses   repositories.AddressRepository
	Products    repositories.ProductRepository
	Placements  repositories.PlacementRepository
	Sequences   repositories.OrderSequenceRepository
	Inventory   InventoryLedger
	Coupons     CouponEvaluator
	Payments    checkoutPaymentGateway
	Sessions    repositories.PaymentSessionRepository
	Events      OrderEventPublisher
	Currency    string
	Tracking    TrackingPolicy
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type checkoutService struct {
	carts      repositories.CartRepository
	addresses  repositories.AddressRepository
	products   repositories.ProductRepository
	placements repositories.PlacementRepository
	sequences  repositories.OrderSequenceRepository
	inventory  InventoryLedger
	coupons    CouponEvaluator
	payments   checkoutPaymentGateway
	sessions   repositories.PaymentSessionRepository
	events     OrderEventPublisher
	currency   string
	tracking   TrackingPolicy
	now        func() time.Time
	newID      func() string
	logger     Logger
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	switch {
	case deps.Carts == nil:
		return nil, errors.New("checkout service: cart repository is required")
	case deps.Addresses == nil:
		return nil, errors.New("checkout service: address repository is required")
	case deps.Products == nil:
		return nil, errors.New("checkout service: product repository is required")
	case deps.Placements == nil:
		return nil, errors.New("checkout service: placement repository is required")
	case deps.Sequences == nil:
		return nil, errors.New("checkout service: order sequence repository is required")
	case deps.Inventory == nil:
		return nil, errors.New("checkout service: inventory ledger is required")
	case deps.Coupons == nil:
		return nil, errors.New("checkout service: coupon evaluator is required")
	case deps.Payments != nil && deps.Sessions == nil:
		return nil, errors.New("checkout service: payment session repository is required with a gateway")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return strings.ToLower(ulid.Make().String())
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCurrency
	}
	tracking := deps.Tracking
	if tracking.DeliveryEstimate <= 0 {
		tracking = DefaultTrackingPolicy()
	}

	return &checkoutService{
		carts:      deps.Carts,
		addresses:  deps.Addresses,
		products:   deps.Products,
		placements: deps.Placements,
		sequences:  deps.Sequences,
		inventory:  deps.Inventory,
		coupons:    deps.Coupons,
		payments:   deps.Payments,
		sessions:   deps.Sessions,
		events:     deps.Events,
		currency:   currency,
		tracking:   tracking,
		now: func() time.Time {
			return clock().UTC()
		},
		newID:  idGen,
		logger: logger,
	}, nil
}

// checkoutQuote is a priced cart ready to become an order.
type checkoutQuote struct {
	userID  string
	address domain.Address
	order   Order
	coupon  *Coupon
}

// CreatePaymentOrder prices the cart and opens a gateway order for the amount due.
func (s *checkoutService) CreatePaymentOrder(ctx context.Context, cmd CreatePaymentOrderCommand) (PaymentOrder, error) {
	if s.payments == nil {
		return PaymentOrder{}, fmt.Errorf("%w: payment gateway not configured", ErrCheckoutUnavailable)
	}
	method, err := onlineMethod(cmd.PaymentMethod)
	if err != nil {
		return PaymentOrder{}, err
	}
	quote, err := s.quote(ctx, cmd.UserID, cmd.AddressID, cmd.CouponCode)
	if err != nil {
		return PaymentOrder{}, err
	}
	if quote.order.FinalAmount <= 0 {
		return PaymentOrder{}, fmt.Errorf("%w: nothing to pay online, place the order directly", ErrCheckoutInvalidInput)
	}

	amountMinor := payments.ToMinorUnits(quote.order.FinalAmount)
	fingerprint := checkoutIdempotencyKey(quote)
	gatewayOrder, err := s.payments.CreateOrder(ctx, s.paymentContext(cmd.Provider, method), payments.GatewayOrderRequest{
		Receipt:  receiptPrefix + s.newID(),
		Amount:   amountMinor,
		Currency: s.currency,
		Notes: map[string]string{
			"userId":    quote.userID,
			"addressId": quote.address.ID,
			"coupon":    derefString(quote.order.CouponCode),
		},
		IdempotencyKey: fingerprint,
	})
	if err != nil {
		s.logger(ctx, "checkout.gateway_order.failed", map[string]any{
			"userId": quote.userID,
			"amount": quote.order.FinalAmount,
			"error":  err.Error(),
		})
		return PaymentOrder{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	session := domain.PaymentSession{
		GatewayOrderID:  gatewayOrder.ID,
		Provider:        gatewayOrder.Provider,
		UserID:          quote.userID,
		AddressID:       quote.address.ID,
		CouponCode:      derefString(quote.order.CouponCode),
		AmountMinor:     amountMinor,
		Currency:        s.currency,
		CartFingerprint: fingerprint,
		CreatedAt:       s.now(),
	}
	if err := s.sessions.Save(ctx, session); err != nil {
		return PaymentOrder{}, fmt.Errorf("%w: record payment session: %v", ErrCheckoutUnavailable, err)
	}

	return PaymentOrder{
		GatewayOrderID: gatewayOrder.ID,
		Provider:       gatewayOrder.Provider,
		Amount:         quote.order.FinalAmount,
		AmountMinor:    amountMinor,
		Currency:       s.currency,
		KeyID:          gatewayOrder.KeyID,
		ClientSecret:   gatewayOrder.ClientSecret,
	}, nil
}

// VerifyPayment settles only the checkout the gateway order was opened for: the signature must
// verify, the caller must own the session, and the cart must still price to the amount paid.
// The order id is derived from the gateway order, so a replayed payment cannot place a second order.
func (s *checkoutService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (Order, error) {
	if s.payments == nil {
		return Order{}, fmt.Errorf("%w: payment gateway not configured", ErrCheckoutUnavailable)
	}
	method, err := onlineMethod(cmd.PaymentMethod)
	if err != nil {
		return Order{}, err
	}
	gatewayOrderID := strings.TrimSpace(cmd.GatewayOrderID)
	paymentID := strings.TrimSpace(cmd.PaymentID)
	if gatewayOrderID == "" {
		return Order{}, fmt.Errorf("%w: gateway order id is required", ErrCheckoutInvalidInput)
	}

	session, err := s.sessions.FindByGatewayOrder(ctx, gatewayOrderID)
	switch {
	case isNotFound(err):
		return Order{}, fmt.Errorf("%w: unknown gateway order %s", ErrCheckoutPaymentFailed, gatewayOrderID)
	case err != nil:
		return Order{}, fmt.Errorf("%w: load payment session: %v", ErrCheckoutUnavailable, err)
	case session.UserID != strings.TrimSpace(cmd.UserID):
		s.logger(ctx, "checkout.payment.foreign_session", map[string]any{
			"userId":         cmd.UserID,
			"gatewayOrderId": gatewayOrderID,
		})
		return Order{}, fmt.Errorf("%w: unknown gateway order %s", ErrCheckoutPaymentFailed, gatewayOrderID)
	}

	provider := strings.TrimSpace(cmd.Provider)
	if provider == "" {
		provider = session.Provider
	}
	details, err := s.payments.VerifyPayment(ctx, s.paymentContext(provider, method), payments.VerifyRequest{
		GatewayOrderID: gatewayOrderID,
		PaymentID:      paymentID,
		Signature:      strings.TrimSpace(cmd.Signature),
	})
	if err != nil {
		s.logger(ctx, "checkout.payment.verify_failed", map[string]any{
			"userId":         cmd.UserID,
			"gatewayOrderId": gatewayOrderID,
			"error":          err.Error(),
		})
		return Order{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}
	if session.Provider != "" && details.Provider != "" && details.Provider != session.Provider {
		return Order{}, fmt.Errorf("%w: gateway order belongs to %s", ErrCheckoutPaymentFailed, session.Provider)
	}
	if details.Amount > 0 && details.Amount != session.AmountMinor {
		return Order{}, fmt.Errorf("%w: paid %.2f but checkout opened for %.2f", ErrCheckoutPaymentFailed, payments.FromMinorUnits(details.Amount), payments.FromMinorUnits(session.AmountMinor))
	}

	quote, err := s.quote(ctx, cmd.UserID, cmd.AddressID, cmd.CouponCode)
	if err != nil {
		return Order{}, err
	}
	if due := payments.ToMinorUnits(quote.order.FinalAmount); due != session.AmountMinor || checkoutIdempotencyKey(quote) != session.CartFingerprint {
		s.logger(ctx, "checkout.payment.cart_changed", map[string]any{
			"userId":         quote.userID,
			"gatewayOrderId": gatewayOrderID,
			"paid":           session.AmountMinor,
			"due":            due,
		})
		return Order{}, fmt.Errorf("%w: cart changed after payment of %.2f was started", ErrCheckoutPaymentFailed, payments.FromMinorUnits(session.AmountMinor))
	}

	quote.order.ID = paidOrderID(session)
	quote.order.PaymentMethod = method
	quote.order.PaymentStatus = domain.PaymentStatusCompleted
	quote.order.GatewayOrderID = gatewayOrderID
	quote.order.PaymentReference = details.PaymentID
	if quote.order.PaymentReference == "" {
		quote.order.PaymentReference = paymentID
	}
	return s.place(ctx, quote, nil)
}

// PlaceOrder completes cash on delivery and wallet checkouts.
func (s *checkoutService) PlaceOrder(ctx context.Context, cmd PlaceOrderCommand) (Order, error) {
	switch cmd.PaymentMethod {
	case domain.PaymentMethodCOD, domain.PaymentMethodWallet:
	default:
		return Order{}, fmt.Errorf("%w: payment method %q must go through payment verification", ErrCheckoutInvalidInput, cmd.PaymentMethod)
	}
	quote, err := s.quote(ctx, cmd.UserID, cmd.AddressID, cmd.CouponCode)
	if err != nil {
		return Order{}, err
	}
	quote.order.PaymentMethod = cmd.PaymentMethod
	quote.order.PaymentStatus = domain.PaymentStatusPending

	var debit *domain.WalletPosting
	if cmd.PaymentMethod == domain.PaymentMethodWallet {
		quote.order.PaymentStatus = domain.PaymentStatusCompleted
		if quote.order.FinalAmount > 0 {
			debit = &domain.WalletPosting{
				UserID: quote.userID,
				Type:   domain.WalletDebit,
				Amount: quote.order.FinalAmount,
			}
		}
	}
	return s.place(ctx, quote, debit)
}

// quote prices the user's cart at current catalog prices and applies the coupon.
func (s *checkoutService) quote(ctx context.Context, userID, addressID, couponCode string) (checkoutQuote, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return checkoutQuote{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidInput)
	}
	addressID = strings.TrimSpace(addressID)
	if addressID == "" {
		return checkoutQuote{}, fmt.Errorf("%w: address id is required", ErrCheckoutInvalidInput)
	}

	address, err := s.addresses.FindByID(ctx, userID, addressID)
	if err != nil {
		if isNotFound(err) {
			return checkoutQuote{}, fmt.Errorf("%w: address %s not found", ErrCheckoutInvalidInput, addressID)
		}
		return checkoutQuote{}, fmt.Errorf("%w: load address: %v", ErrCheckoutUnavailable, err)
	}

	cart, err := s.carts.GetCart(ctx, userID)
	if err != nil {
		return checkoutQuote{}, fmt.Errorf("%w: load cart: %v", ErrCheckoutUnavailable, err)
	}
	if len(cart.Lines) == 0 {
		return checkoutQuote{}, fmt.Errorf("%w: cart is empty", ErrCheckoutCartNotReady)
	}

	items := make([]OrderItem, 0, len(cart.Lines))
	totals := make([]float64, 0, len(cart.Lines))
	for i, line := range cart.Lines {
		item, err := s.priceLine(ctx, i, line)
		if err != nil {
			return checkoutQuote{}, err
		}
		items = append(items, item)
		totals = append(totals, item.Total)
	}

	order := Order{
		UserID:        userID,
		Items:         items,
		TotalPrice:    domain.SumAmounts(totals...),
		Status:        domain.OrderStatusPlaced,
		Address:       address.Snapshot(),
		PaymentStatus: domain.PaymentStatusPending,
	}

	quote := checkoutQuote{userID: userID, address: address}
	if code := strings.TrimSpace(couponCode); code != "" {
		eval, err := s.coupons.Evaluate(ctx, code, order.TotalPrice, userID)
		if err != nil {
			return checkoutQuote{}, fmt.Errorf("%w: evaluate coupon: %v", ErrCheckoutUnavailable, err)
		}
		if !eval.Valid {
			return checkoutQuote{}, fmt.Errorf("%w: %s", ErrCouponRejected, couponRejectionMessage(eval.Reason))
		}
		coupon := eval.Coupon
		quote.coupon = &coupon
		order.Discount = eval.DiscountAmount
		order.CouponApplied = eval.DiscountAmount > 0
		appliedCode := coupon.Code
		order.CouponCode = &appliedCode

		all := make([]int, len(order.Items))
		for i := range all {
			all[i] = i
		}
		applyDiscountShares(&order, all, order.Discount)
	}
	order.RecalculateFinal()
	quote.order = order
	return quote, nil
}

func (s *checkoutService) priceLine(ctx context.Context, idx int, line domain.CartLine) (OrderItem, error) {
	if line.Quantity <= 0 {
		return OrderItem{}, fmt.Errorf("%w: cart line %d has quantity %d", ErrCheckoutCartNotReady, idx, line.Quantity)
	}
	product, err := s.products.FindByID(ctx, line.ProductID)
	if err != nil {
		if isNotFound(err) {
			return OrderItem{}, fmt.Errorf("%w: product %s is no longer available", ErrCheckoutCartNotReady, line.ProductID)
		}
		return OrderItem{}, fmt.Errorf("%w: load product %s: %v", ErrCheckoutUnavailable, line.ProductID, err)
	}
	if !product.Listed {
		return OrderItem{}, fmt.Errorf("%w: %s is no longer sold", ErrCheckoutCartNotReady, product.Name)
	}
	variant, ok := product.Variant(line.VariantSize)
	if !ok {
		return OrderItem{}, fmt.Errorf("%w: %s has no %sml variant", ErrCheckoutCartNotReady, product.Name, line.VariantSize)
	}
	if variant.Stock < line.Quantity {
		return OrderItem{}, fmt.Errorf("%w: only %d of %s %sml left", ErrCheckoutInsufficientStock, variant.Stock, product.Name, line.VariantSize)
	}
	price := domain.Round2(variant.UnitPrice())
	return OrderItem{
		ProductID:   product.ID,
		ProductName: product.Name,
		VariantSize: variant.Size,
		Quantity:    line.Quantity,
		Price:       price,
		Total:       domain.MultiplyAmount(price, line.Quantity),
		Status:      domain.OrderStatusPlaced,
	}, nil
}

// place takes stock line by line, then writes the order with its coupon redemption, wallet
// debit and cart clear in one transaction. Stock already taken is put back if anything fails.
func (s *checkoutService) place(ctx context.Context, quote checkoutQuote, debit *domain.WalletPosting) (Order, error) {
	now := s.now()
	order := quote.order
	if order.ID == "" {
		order.ID = orderIDPrefix + s.newID()
	}
	order.CreatedAt = now
	order.UpdatedAt = now

	number, err := s.generateOrderNumber(ctx, now)
	if err != nil {
		return Order{}, err
	}
	order.OrderNumber = number

	for i := range order.Items {
		AdvanceItem(&order.Items[i], domain.OrderStatusPlaced, order.Address, now, s.tracking)
	}
	order.Status = RollupStatus(order.Items)
	if err := order.CheckInvariants(); err != nil {
		return Order{}, fmt.Errorf("checkout: %w", err)
	}

	taken := make([]OrderItem, 0, len(order.Items))
	for _, item := range order.Items {
		if err := s.inventory.DecrementStock(ctx, item.ProductID, item.VariantSize, item.Quantity); err != nil {
			s.releaseStock(ctx, order.ID, taken)
			return Order{}, translateStockError(err)
		}
		taken = append(taken, item)
	}

	commit := repositories.PlacementCommit{Order: order, ClearCart: true}
	if quote.coupon != nil {
		commit.CouponCode = quote.coupon.Code
		commit.Redemption = &domain.CouponRedemption{UserID: quote.userID, OrderID: order.ID, AppliedAt: now}
	}
	if debit != nil {
		posting := *debit
		posting.OrderID = order.ID
		posting.Description = fmt.Sprintf("Payment for order %s", order.OrderNumber)
		posting.IdempotencyKey = domain.WalletKey(order.ID, -1, domain.WalletActionCheckout)
		commit.WalletDebit = &posting
	}

	placed, err := s.placements.Place(ctx, commit)
	if err != nil {
		s.releaseStock(ctx, order.ID, taken)
		if code, ok := repositories.LedgerCode(err); ok && code == repositories.OrderErrorAlreadyExists && order.GatewayOrderID != "" {
			return Order{}, fmt.Errorf("%w: gateway order %s already settled order %s", ErrCheckoutPaymentReused, order.GatewayOrderID, order.ID)
		}
		return Order{}, translatePlacementError(err)
	}

	s.logger(ctx, "checkout.order.placed", map[string]any{
		"orderId":       placed.ID,
		"orderNumber":   placed.OrderNumber,
		"userId":        placed.UserID,
		"paymentMethod": string(placed.PaymentMethod),
		"finalAmount":   placed.FinalAmount,
	})
	s.publishEvent(ctx, OrderEvent{
		Type:          orderEventPlaced,
		OrderID:       placed.ID,
		OrderNumber:   placed.OrderNumber,
		UserID:        placed.UserID,
		CurrentStatus: string(placed.Status),
		ActorID:       placed.UserID,
		OccurredAt:    now,
		Metadata: map[string]any{
			"paymentMethod": string(placed.PaymentMethod),
			"finalAmount":   placed.FinalAmount,
			"coupon":        derefString(placed.CouponCode),
		},
	})
	return placed, nil
}

func (s *checkoutService) releaseStock(ctx context.Context, orderID string, items []OrderItem) {
	for _, item := range items {
		if err := s.inventory.RestoreStock(ctx, item.ProductID, item.VariantSize, item.Quantity); err != nil {
			s.logger(ctx, "checkout.stock.release_failed", map[string]any{
				"orderId":   orderID,
				"productId": item.ProductID,
				"size":      item.VariantSize.Key(),
				"quantity":  item.Quantity,
				"error":     err.Error(),
			})
		}
	}
}

func (s *checkoutService) generateOrderNumber(ctx context.Context, now time.Time) (string, error) {
	seq, err := s.sequences.NextOrderSequence(ctx, now.Year())
	if err != nil {
		return "", fmt.Errorf("%w: allocate order number: %v", ErrCheckoutUnavailable, err)
	}
	return fmt.Sprintf("SC-%04d-%06d", now.Year(), seq), nil
}

func (s *checkoutService) paymentContext(provider string, method domain.PaymentMethod) payments.PaymentContext {
	preferred := strings.TrimSpace(provider)
	if preferred == "" && (method == domain.PaymentMethodRazorpay || method == domain.PaymentMethodUPI) {
		preferred = payments.ProviderRazorpay
	}
	return payments.PaymentContext{PreferredProvider: preferred, Currency: s.currency}
}

func (s *checkoutService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":  event.Type,
			"order": event.OrderID,
			"error": err.Error(),
		})
	}
}

func onlineMethod(method domain.PaymentMethod) (domain.PaymentMethod, error) {
	if method == "" {
		return domain.PaymentMethodOnline, nil
	}
	if !method.Prepaid() || method == domain.PaymentMethodWallet {
		return "", fmt.Errorf("%w: %q is not an online payment method", ErrCheckoutInvalidInput, method)
	}
	return method, nil
}

// paidOrderID names the order after the gateway order that paid for it.
func paidOrderID(session domain.PaymentSession) string {
	id := uuid.NewSHA1(paidOrderNamespace, []byte(session.Provider+"|"+session.GatewayOrderID))
	return orderIDPrefix + strings.ReplaceAll(id.String(), "-", "")
}

// checkoutIdempotencyKey fingerprints the priced cart so gateway retries reuse the same order.
func checkoutIdempotencyKey(quote checkoutQuote) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%.2f", quote.userID, quote.address.ID, derefString(quote.order.CouponCode), quote.order.FinalAmount)
	for _, item := range quote.order.Items {
		fmt.Fprintf(h, "|%s:%s:%d", item.ProductID, item.VariantSize.Key(), item.Quantity)
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

func translateStockError(err error) error {
	switch {
	case errors.Is(err, ErrInventoryInsufficientStock):
		return fmt.Errorf("%w: %v", ErrCheckoutInsufficientStock, err)
	case errors.Is(err, ErrInventoryNotFound):
		return fmt.Errorf("%w: %v", ErrCheckoutCartNotReady, err)
	case errors.Is(err, ErrInventoryInvalidInput):
		return fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}
	return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
}

func translatePlacementError(err error) error {
	if code, ok := repositories.LedgerCode(err); ok {
		switch code {
		case repositories.CouponErrorLimitReached:
			return fmt.Errorf("%w: %s", ErrCouponRejected, couponRejectionMessage(CouponRejectionLimitReached))
		case repositories.CouponErrorAlreadyUsed:
			return fmt.Errorf("%w: %s", ErrCouponRejected, couponRejectionMessage(CouponRejectionAlreadyUsed))
		case repositories.CouponErrorNotFound:
			return fmt.Errorf("%w: %s", ErrCouponRejected, couponRejectionMessage(CouponRejectionNotFound))
		case repositories.WalletErrorInsufficient:
			return fmt.Errorf("%w: %v", ErrWalletInsufficientBalance, err)
		case repositories.OrderErrorAlreadyExists:
			return fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
		}
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsConflict() {
		return fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
	}
	return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
}

func isNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}
