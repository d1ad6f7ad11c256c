package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"maps"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"

	domain "github.com/scentora/storefront/internal/domain"
	"github.com/scentora/storefront/internal/repositories"
)

const (
	orderEventItemCancelled   = "order.item.cancelled"
	orderEventCancelled       = "order.cancelled"
	orderEventReturnRequested = "order.return.requested"
	orderEventReturnWithdrawn = "order.return.withdrawn"
	orderEventReturnApproved  = "order.return.approved"
	orderEventReturnRejected  = "order.return.rejected"
	orderEventStatusChanged   = "order.status.changed"

	defaultReturnWindow = 7 * 24 * time.Hour
	maxReasonLength     = 500
	maxSanitizePasses   = 4
)

var (
	// ErrOrderInvalidInput signals the caller provided invalid data.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidState indicates the requested change is not allowed in the current status.
	ErrOrderInvalidState = errors.New("order: invalid status transition")
	// ErrOrderReturnWindowExpired indicates a return was requested too long after delivery.
	ErrOrderReturnWindowExpired = errors.New("order: return window expired")
	// ErrOrderConflict indicates the order changed since it was read.
	ErrOrderConflict = errors.New("order: conflict")
	// ErrOrderUnavailable indicates the order store could not be reached.
	ErrOrderUnavailable = errors.New("order: repository unavailable")
)

// OrderEventPublisher publishes order domain events for downstream consumers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, event OrderEvent) error
}

// OrderEvent captures metadata for emitted order domain events.
type OrderEvent struct {
	Type           string
	OrderID        string
	OrderNumber    string
	UserID         string
	PreviousStatus string
	CurrentStatus  string
	ActorID        string
	OccurredAt     time.Time
	Metadata       map[string]any
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Coupons   repositories.CouponRepository
	Inventory InventoryLedger
	Events    OrderEventPublisher
	Clock     func() time.Time
	Logger    Logger
	// Revocation defaults to DefaultCouponRevocationPolicy when nil.
	Revocation   *CouponRevocationPolicy
	Tracking     TrackingPolicy
	ReturnWindow time.Duration
	Sanitizer    *bluemonday.Policy
}

type orderService struct {
	orders       repositories.OrderRepository
	coupons      repositories.CouponRepository
	inventory    InventoryLedger
	events       OrderEventPublisher
	clock        func() time.Time
	logger       Logger
	revocation   CouponRevocationPolicy
	tracking     TrackingPolicy
	returnWindow time.Duration
	sanitizer    *bluemonday.Policy
}

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	revocation := DefaultCouponRevocationPolicy()
	if deps.Revocation != nil {
		revocation = *deps.Revocation
	}

	tracking := deps.Tracking
	defaults := DefaultTrackingPolicy()
	if tracking.DeliveryEstimate <= 0 {
		tracking.DeliveryEstimate = defaults.DeliveryEstimate
	}
	if strings.TrimSpace(tracking.TransitLocation) == "" {
		tracking.TransitLocation = defaults.TransitLocation
	}

	window := deps.ReturnWindow
	if window <= 0 {
		window = defaultReturnWindow
	}

	sanitizer := deps.Sanitizer
	if sanitizer == nil {
		sanitizer = bluemonday.StrictPolicy()
	}

	return &orderService{
		orders:    deps.Orders,
		coupons:   deps.Coupons,
		inventory: deps.Inventory,
		events:    deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger:       logger,
		revocation:   revocation,
		tracking:     tracking,
		returnWindow: window,
		sanitizer:    sanitizer,
	}, nil
}

// orderChange collects the side effects of one order mutation.
type orderChange struct {
	postings []domain.WalletPosting
	restocks []stockMove
	event    OrderEvent
	result   CancellationResult
}

type stockMove struct {
	index     int
	productID string
	size      VariantSize
	quantity  int
}

func (s *orderService) GetOrder(ctx context.Context, userID, orderID string) (Order, error) {
	if strings.TrimSpace(userID) == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	return s.load(ctx, orderID, userID)
}

func (s *orderService) GetOrderStatus(ctx context.Context, userID, orderID string) (OrderStatusView, error) {
	order, err := s.GetOrder(ctx, userID, orderID)
	if err != nil {
		return OrderStatusView{}, err
	}
	view := OrderStatusView{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		UpdatedAt:   order.UpdatedAt,
		Items:       make([]ItemStatusView, 0, len(order.Items)),
	}
	for i, item := range order.Items {
		view.Items = append(view.Items, ItemStatusView{
			Index:       i,
			ProductName: item.ProductName,
			VariantSize: item.VariantSize,
			Status:      item.Status,
			Tracking:    item.Tracking,
		})
	}
	return view, nil
}

func (s *orderService) ListOrders(ctx context.Context, userID string, pager Pagination) (domain.Page[Order], error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.Page[Order]{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	page, err := s.orders.ListByUser(ctx, userID, pager)
	if err != nil {
		return domain.Page[Order]{}, s.mapRepositoryError(err)
	}
	return page, nil
}

func (s *orderService) CancelItem(ctx context.Context, cmd CancelItemCommand) (CancellationResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CancellationResult{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	if cmd.VariantSize <= 0 {
		return CancellationResult{}, fmt.Errorf("%w: variant size is required", ErrOrderInvalidInput)
	}
	reason := s.sanitize(cmd.Reason)
	details := s.sanitize(cmd.Details)

	saved, change, err := s.mutate(ctx, cmd.OrderID, userID, func(order *Order, now time.Time) (orderChange, error) {
		if err := checkItemIndex(*order, cmd.ItemIndex); err != nil {
			return orderChange{}, err
		}
		if order.Items[cmd.ItemIndex].VariantSize != cmd.VariantSize {
			return orderChange{}, fmt.Errorf("%w: item %d is size %s, not %s", ErrOrderInvalidInput, cmd.ItemIndex, order.Items[cmd.ItemIndex].VariantSize, cmd.VariantSize)
		}
		return s.cancelLine(ctx, order, cmd.ItemIndex, now, reason, details, userID)
	})
	if err != nil {
		return CancellationResult{}, err
	}
	result := change.result
	result.Order = saved
	return result, nil
}

func (s *orderService) CancellationImpact(ctx context.Context, userID, orderID string, itemIndex int) (CancellationImpact, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return CancellationImpact{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	order, err := s.load(ctx, orderID, userID)
	if err != nil {
		return CancellationImpact{}, err
	}
	if err := checkItemIndex(order, itemIndex); err != nil {
		return CancellationImpact{}, err
	}
	draft := order.Clone()
	return s.planLineCancel(ctx, &draft, itemIndex)
}

func (s *orderService) CancelOrder(ctx context.Context, cmd CancelOrderCommand) (CancellationResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CancellationResult{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	reason := s.sanitize(cmd.Reason)
	details := s.sanitize(cmd.Details)

	saved, change, err := s.mutate(ctx, cmd.OrderID, userID, func(order *Order, now time.Time) (orderChange, error) {
		return s.cancelAllLines(ctx, order, now, reason, details, userID)
	})
	if err != nil {
		return CancellationResult{}, err
	}
	result := change.result
	result.Order = saved
	return result, nil
}

func (s *orderService) RequestReturn(ctx context.Context, cmd ReturnRequestCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	reason := s.sanitize(cmd.Reason)
	if reason == "" {
		return Order{}, fmt.Errorf("%w: return reason is required", ErrOrderInvalidInput)
	}
	details := s.sanitize(cmd.Details)

	saved, _, err := s.mutate(ctx, cmd.OrderID, userID, func(order *Order, now time.Time) (orderChange, error) {
		indexes, err := selectItems(*order, cmd.ItemIndexes, cmd.All, domain.OrderStatusDelivered)
		if err != nil {
			return orderChange{}, err
		}
		for _, idx := range indexes {
			item := &order.Items[idx]
			if item.Status != domain.OrderStatusDelivered {
				return orderChange{}, fmt.Errorf("%w: item %d is %s, only delivered items can be returned", ErrOrderInvalidState, idx, item.Status)
			}
			if !ReturnWindowOpen(*order, *item, now, s.returnWindow) {
				return orderChange{}, fmt.Errorf("%w: item %d was delivered on %s", ErrOrderReturnWindowExpired, idx, deliveredReference(*order, *item).Format(time.DateOnly))
			}
		}
		for _, idx := range indexes {
			item := &order.Items[idx]
			item.Status = domain.OrderStatusReturnRequest
			item.ReturnReason = reason
			item.ReturnDetails = details
			requested := now
			item.ReturnRequestedAt = &requested
			item.ReturnRejected = false
			item.ReturnRejectReason = ""
			item.ReturnRejectedAt = nil
		}
		return orderChange{event: OrderEvent{
			Type:     orderEventReturnRequested,
			ActorID:  userID,
			Metadata: map[string]any{"items": indexes, "reason": reason},
		}}, nil
	})
	return saved, err
}

func (s *orderService) CancelReturnRequest(ctx context.Context, cmd CancelReturnRequestCommand) (Order, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return Order{}, fmt.Errorf("%w: user id is required", ErrOrderInvalidInput)
	}
	saved, _, err := s.mutate(ctx, cmd.OrderID, userID, func(order *Order, now time.Time) (orderChange, error) {
		if err := checkItemIndex(*order, cmd.ItemIndex); err != nil {
			return orderChange{}, err
		}
		item := &order.Items[cmd.ItemIndex]
		if item.Status != domain.OrderStatusReturnRequest {
			return orderChange{}, fmt.Errorf("%w: item %d has no pending return request", ErrOrderInvalidState, cmd.ItemIndex)
		}
		clearReturnRequest(item)
		return orderChange{event: OrderEvent{
			Type:     orderEventReturnWithdrawn,
			ActorID:  userID,
			Metadata: map[string]any{"items": []int{cmd.ItemIndex}},
		}}, nil
	})
	return saved, err
}

func (s *orderService) ApproveReturn(ctx context.Context, cmd ReturnDecisionCommand) (CancellationResult, error) {
	saved, change, err := s.mutate(ctx, cmd.OrderID, "", func(order *Order, now time.Time) (orderChange, error) {
		indexes, err := selectItems(*order, cmd.ItemIndexes, cmd.All, domain.OrderStatusReturnRequest)
		if err != nil {
			return orderChange{}, err
		}
		for _, idx := range indexes {
			if order.Items[idx].Status != domain.OrderStatusReturnRequest {
				return orderChange{}, fmt.Errorf("%w: item %d has no pending return request", ErrOrderInvalidState, idx)
			}
		}

		shares := itemDiscountShares(order)
		change := orderChange{}
		total := 0.0
		for _, idx := range indexes {
			item := &order.Items[idx]
			refund := domain.SubtractAmounts(domain.MultiplyAmount(item.Price, item.Quantity), shares[idx])
			if refund < 0 {
				refund = 0
			}
			item.Status = domain.OrderStatusReturned
			returned := now
			item.ReturnedAt = &returned
			item.RefundAmount = refund
			change.restocks = append(change.restocks, stockMove{index: idx, productID: item.ProductID, size: item.VariantSize, quantity: item.Quantity})

			if refund > 0 && RefundDestinationFor(order.PaymentMethod, RefundTriggerReturn) == RefundDestinationWallet {
				change.postings = append(change.postings, domain.WalletPosting{
					UserID:         order.UserID,
					Type:           domain.WalletCredit,
					Amount:         refund,
					Description:    fmt.Sprintf("Refund for returned %s (order %s)", item.ProductName, orderLabel(*order)),
					OrderID:        order.ID,
					IdempotencyKey: domain.WalletKey(order.ID, idx, domain.WalletActionReturn),
				})
				change.result.RefundToWallet = true
			}
			total = domain.SumAmounts(total, refund)
		}
		change.result.RefundAmount = total
		change.event = OrderEvent{
			Type:     orderEventReturnApproved,
			ActorID:  strings.TrimSpace(cmd.ActorID),
			Metadata: map[string]any{"items": indexes, "refundAmount": total},
		}
		return change, nil
	})
	if err != nil {
		return CancellationResult{}, err
	}
	result := change.result
	result.Order = saved
	return result, nil
}

func (s *orderService) RejectReturn(ctx context.Context, cmd ReturnDecisionCommand) (Order, error) {
	reason := s.sanitize(cmd.Reason)
	if reason == "" {
		return Order{}, fmt.Errorf("%w: rejection reason is required", ErrOrderInvalidInput)
	}
	saved, _, err := s.mutate(ctx, cmd.OrderID, "", func(order *Order, now time.Time) (orderChange, error) {
		indexes, err := selectItems(*order, cmd.ItemIndexes, cmd.All, domain.OrderStatusReturnRequest)
		if err != nil {
			return orderChange{}, err
		}
		for _, idx := range indexes {
			if order.Items[idx].Status != domain.OrderStatusReturnRequest {
				return orderChange{}, fmt.Errorf("%w: item %d has no pending return request", ErrOrderInvalidState, idx)
			}
		}
		for _, idx := range indexes {
			item := &order.Items[idx]
			clearReturnRequest(item)
			item.ReturnRejected = true
			item.ReturnRejectReason = reason
			rejected := now
			item.ReturnRejectedAt = &rejected
		}
		return orderChange{event: OrderEvent{
			Type:     orderEventReturnRejected,
			ActorID:  strings.TrimSpace(cmd.ActorID),
			Metadata: map[string]any{"items": indexes, "reason": reason},
		}}, nil
	})
	return saved, err
}

func (s *orderService) UpdateItemStatus(ctx context.Context, cmd UpdateItemStatusCommand) (Order, error) {
	target := cmd.Status
	if target.Priority() == 0 {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, target)
	}
	if target == domain.OrderStatusReturnRequest || target == domain.OrderStatusReturned {
		return Order{}, fmt.Errorf("%w: returns are handled through the return endpoints", ErrOrderInvalidState)
	}
	actor := strings.TrimSpace(cmd.ActorID)

	saved, _, err := s.mutate(ctx, cmd.OrderID, "", func(order *Order, now time.Time) (orderChange, error) {
		if target == domain.OrderStatusCancelled {
			if cmd.All {
				return s.cancelAllLines(ctx, order, now, "Cancelled by store", "", actor)
			}
			if err := checkItemIndex(*order, cmd.ItemIndex); err != nil {
				return orderChange{}, err
			}
			return s.cancelLine(ctx, order, cmd.ItemIndex, now, "Cancelled by store", "", actor)
		}

		var indexes []int
		if cmd.All {
			for i, item := range order.Items {
				if item.Status.IsActivePath() {
					indexes = append(indexes, i)
				}
			}
			if len(indexes) == 0 {
				return orderChange{}, fmt.Errorf("%w: no items can change status", ErrOrderInvalidState)
			}
		} else {
			if err := checkItemIndex(*order, cmd.ItemIndex); err != nil {
				return orderChange{}, err
			}
			indexes = []int{cmd.ItemIndex}
		}
		for _, idx := range indexes {
			if err := ValidateAdvance(order.Items[idx].Status, target); err != nil {
				return orderChange{}, fmt.Errorf("item %d: %w", idx, err)
			}
		}
		for _, idx := range indexes {
			AdvanceItem(&order.Items[idx], target, order.Address, now, s.tracking)
		}
		return orderChange{event: OrderEvent{
			Type:     orderEventStatusChanged,
			ActorID:  actor,
			Metadata: map[string]any{"items": indexes, "itemStatus": string(target)},
		}}, nil
	})
	return saved, err
}

// planLineCancel applies the money side of cancelling one line to order: discount share,
// coupon re-check and refund. The line status itself is left untouched.
func (s *orderService) planLineCancel(ctx context.Context, order *Order, idx int) (CancellationImpact, error) {
	item := order.Items[idx]
	if !canCancelItem(item.Status) {
		switch item.Status {
		case domain.OrderStatusCancelled:
			return CancellationImpact{}, fmt.Errorf("%w: item %d is already cancelled", ErrOrderInvalidState, idx)
		case domain.OrderStatusDelivered:
			return CancellationImpact{}, fmt.Errorf("%w: item %d is delivered, request a return instead", ErrOrderInvalidState, idx)
		}
		return CancellationImpact{}, fmt.Errorf("%w: item %d in status %s cannot be cancelled", ErrOrderInvalidState, idx, item.Status)
	}

	shares := itemDiscountShares(order)
	share := shares[idx]
	userPaid := domain.SubtractAmounts(item.Total, share)
	if userPaid < 0 {
		userPaid = 0
	}
	impact := CancellationImpact{
		ItemIndex:    idx,
		ItemTotal:    item.Total,
		ItemDiscount: share,
		ItemUserPaid: userPaid,
		RefundAmount: userPaid,
	}

	revoked := false
	if s.revocation.ItemCancel {
		coupon, ok, err := s.activeCoupon(ctx, *order)
		if err != nil {
			return CancellationImpact{}, err
		}
		if ok {
			impact.CouponCode = coupon.Code
			impact.MinimumPrice = coupon.MinimumPrice
			outcome := RevokeCouponIfUnearned(order, coupon, idx, share)
			if outcome.Revoked {
				revoked = true
				impact.CouponRevoked = true
				impact.BalanceDue = outcome.BalanceDue
				impact.RefundAmount = domain.SubtractAmounts(userPaid, outcome.BalanceDue)
				if impact.RefundAmount < 0 {
					impact.RefundAmount = 0
				}
			}
		}
	}
	if !revoked {
		order.Discount = nonNegative(domain.SubtractAmounts(order.Discount, share))
		order.TotalPrice = nonNegative(domain.SubtractAmounts(order.TotalPrice, item.Total))
		order.RecalculateFinal()
	}

	impact.RemainingTotal = order.ActiveSubtotal(idx)
	impact.NewTotalPrice = order.TotalPrice
	impact.NewDiscount = order.Discount
	impact.NewFinalAmount = order.FinalAmount
	impact.RefundToWallet = impact.RefundAmount > 0 &&
		RefundDestinationFor(order.PaymentMethod, RefundTriggerCancellation) == RefundDestinationWallet
	return impact, nil
}

func (s *orderService) cancelLine(ctx context.Context, order *Order, idx int, now time.Time, reason, details, actor string) (orderChange, error) {
	couponCode := derefString(order.CouponCode)
	impact, err := s.planLineCancel(ctx, order, idx)
	if err != nil {
		return orderChange{}, err
	}

	item := &order.Items[idx]
	item.Status = domain.OrderStatusCancelled
	item.CancelReason = reason
	item.CancelDetails = details
	cancelled := now
	item.CancelledAt = &cancelled
	item.RefundAmount = impact.RefundAmount
	item.ClawbackAmount = impact.BalanceDue

	change := orderChange{
		restocks: []stockMove{{index: idx, productID: item.ProductID, size: item.VariantSize, quantity: item.Quantity}},
		result: CancellationResult{
			RefundAmount:   impact.RefundAmount,
			RefundToWallet: impact.RefundToWallet,
			CouponRevoked:  impact.CouponRevoked,
		},
	}
	if impact.RefundToWallet {
		description := fmt.Sprintf("Refund for cancelled %s (order %s)", item.ProductName, orderLabel(*order))
		if impact.CouponRevoked {
			description += fmt.Sprintf("; coupon %s revoked, %.2f discount recovered", couponCode, impact.BalanceDue)
		}
		change.postings = append(change.postings, domain.WalletPosting{
			UserID:         order.UserID,
			Type:           domain.WalletCredit,
			Amount:         impact.RefundAmount,
			Description:    description,
			OrderID:        order.ID,
			IdempotencyKey: domain.WalletKey(order.ID, idx, domain.WalletActionCancel),
		})
	}
	change.event = OrderEvent{
		Type:    orderEventItemCancelled,
		ActorID: actor,
		Metadata: map[string]any{
			"items":         []int{idx},
			"reason":        reason,
			"refundAmount":  impact.RefundAmount,
			"couponRevoked": impact.CouponRevoked,
		},
	}
	return change, nil
}

// cancelAllLines cancels every line that has not shipped yet. The refund is the sum of each line's
// total minus its discount share.
func (s *orderService) cancelAllLines(ctx context.Context, order *Order, now time.Time, reason, details, actor string) (orderChange, error) {
	if order.Status == domain.OrderStatusDelivered || order.Status == domain.OrderStatusCancelled {
		return orderChange{}, fmt.Errorf("%w: order is already %s", ErrOrderInvalidState, order.Status)
	}
	for i, item := range order.Items {
		if blocksOrderCancel(item.Status) {
			return orderChange{}, fmt.Errorf("%w: item %d is %s, cancel remaining items individually", ErrOrderInvalidState, i, item.Status)
		}
	}

	shares := itemDiscountShares(order)
	change := orderChange{}
	var cancelled []int
	refund, removedTotal, removedDiscount := 0.0, 0.0, 0.0
	for i := range order.Items {
		item := &order.Items[i]
		if !canCancelItem(item.Status) {
			continue
		}
		lineRefund := nonNegative(domain.SubtractAmounts(item.Total, shares[i]))
		item.Status = domain.OrderStatusCancelled
		item.CancelReason = reason
		item.CancelDetails = details
		at := now
		item.CancelledAt = &at
		item.RefundAmount = lineRefund

		refund = domain.SumAmounts(refund, lineRefund)
		removedTotal = domain.SumAmounts(removedTotal, item.Total)
		removedDiscount = domain.SumAmounts(removedDiscount, shares[i])
		cancelled = append(cancelled, i)
		change.restocks = append(change.restocks, stockMove{index: i, productID: item.ProductID, size: item.VariantSize, quantity: item.Quantity})
	}
	if len(cancelled) == 0 {
		return orderChange{}, fmt.Errorf("%w: no items can be cancelled", ErrOrderInvalidState)
	}

	// Re-check before totals shrink: BalanceDue is the share still held by returned lines.
	couponCode := derefString(order.CouponCode)
	revoked := false
	if s.revocation.OrderCancel {
		coupon, ok, err := s.activeCoupon(ctx, *order)
		if err != nil {
			return orderChange{}, err
		}
		if ok {
			outcome := RevokeCouponIfUnearned(order, coupon, -1, removedDiscount)
			if outcome.Revoked {
				revoked = true
				change.result.CouponRevoked = true
				refund = nonNegative(domain.SubtractAmounts(refund, outcome.BalanceDue))
			}
		}
	}
	if !revoked {
		order.TotalPrice = nonNegative(domain.SubtractAmounts(order.TotalPrice, removedTotal))
		order.Discount = nonNegative(domain.SubtractAmounts(order.Discount, removedDiscount))
		order.RecalculateFinal()
	}

	change.result.RefundAmount = refund
	if refund > 0 && RefundDestinationFor(order.PaymentMethod, RefundTriggerCancellation) == RefundDestinationWallet {
		description := fmt.Sprintf("Refund for cancelled order %s", orderLabel(*order))
		if change.result.CouponRevoked {
			description += fmt.Sprintf("; coupon %s revoked", couponCode)
		}
		change.postings = append(change.postings, domain.WalletPosting{
			UserID:         order.UserID,
			Type:           domain.WalletCredit,
			Amount:         refund,
			Description:    description,
			OrderID:        order.ID,
			IdempotencyKey: domain.WalletKey(order.ID, -1, domain.WalletActionCancelOrder),
		})
		change.result.RefundToWallet = true
	}
	change.event = OrderEvent{
		Type:    orderEventCancelled,
		ActorID: actor,
		Metadata: map[string]any{
			"items":         cancelled,
			"reason":        reason,
			"refundAmount":  refund,
			"couponRevoked": change.result.CouponRevoked,
		},
	}
	return change, nil
}

// activeCoupon loads the coupon still applied to order. A coupon that no longer exists cannot be
// re-checked and is left in place.
func (s *orderService) activeCoupon(ctx context.Context, order Order) (Coupon, bool, error) {
	if s.coupons == nil || !order.CouponApplied || order.CouponRevoked || order.Discount <= 0 || order.CouponCode == nil {
		return Coupon{}, false, nil
	}
	code := NormalizeCouponCode(*order.CouponCode)
	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			s.logger(ctx, "order.coupon.missing", map[string]any{
				"orderId": order.ID,
				"coupon":  code,
			})
			return Coupon{}, false, nil
		}
		return Coupon{}, false, fmt.Errorf("order: load coupon %s: %w", code, err)
	}
	return coupon, true, nil
}

// mutate runs the read, compute and compare-and-swap commit cycle for one order. Stock is
// restored and events are published only after the commit succeeds.
func (s *orderService) mutate(ctx context.Context, orderID, ownerID string, apply func(order *Order, now time.Time) (orderChange, error)) (Order, orderChange, error) {
	current, err := s.load(ctx, orderID, ownerID)
	if err != nil {
		return Order{}, orderChange{}, err
	}

	now := s.now()
	next := current.Clone()
	change, err := apply(&next, now)
	if err != nil {
		return Order{}, orderChange{}, err
	}
	refreshRollup(&next, now)
	settlePaymentStatus(&next)
	if err := next.CheckInvariants(); err != nil {
		return Order{}, orderChange{}, fmt.Errorf("order %s: %w", current.ID, err)
	}

	saved, err := s.orders.Commit(ctx, next, current.Version, change.postings)
	if err != nil {
		return Order{}, orderChange{}, s.mapRepositoryError(err)
	}

	s.restoreStock(ctx, saved, change.restocks)

	if change.event.Type != "" {
		event := change.event
		event.OrderID = saved.ID
		event.OrderNumber = saved.OrderNumber
		event.UserID = saved.UserID
		event.PreviousStatus = string(current.Status)
		event.CurrentStatus = string(saved.Status)
		event.OccurredAt = now
		s.publishEvent(ctx, event)
	}
	return saved, change, nil
}

func (s *orderService) load(ctx context.Context, orderID, ownerID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, s.mapRepositoryError(err)
	}
	if ownerID = strings.TrimSpace(ownerID); ownerID != "" && order.UserID != ownerID {
		return Order{}, fmt.Errorf("%w: order %s", ErrOrderNotFound, orderID)
	}
	return order, nil
}

// restoreStock puts cancelled or returned quantities back. Failures are logged and skipped so a
// deleted product never blocks the rest of the order.
func (s *orderService) restoreStock(ctx context.Context, order Order, moves []stockMove) {
	if s.inventory == nil {
		return
	}
	for _, move := range moves {
		if err := s.inventory.RestoreStock(ctx, move.productID, move.size, move.quantity); err != nil {
			s.logger(ctx, "order.stock.restore.failed", map[string]any{
				"orderId":   order.ID,
				"itemIndex": move.index,
				"productId": move.productID,
				"size":      move.size.Key(),
				"quantity":  move.quantity,
				"error":     err.Error(),
			})
		}
	}
}

func (s *orderService) mapRepositoryError(err error) error {
	if err == nil {
		return nil
	}

	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrOrderNotFound, err)
		case repoErr.IsConflict():
			return fmt.Errorf("%w: %v", ErrOrderConflict, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("%w: %v", ErrOrderUnavailable, err)
		}
	}
	if code, ok := repositories.LedgerCode(err); ok && code == repositories.WalletErrorInsufficient {
		return fmt.Errorf("%w: %v", ErrWalletInsufficientBalance, err)
	}

	return err
}

// sanitize strips markup and returns plain text. The policy escapes what it keeps, so the
// result is unescaped and stripped again until it settles; entity-encoded tags do not survive.
func (s *orderService) sanitize(text string) string {
	cleaned := strings.TrimSpace(text)
	for range maxSanitizePasses {
		next := html.UnescapeString(s.sanitizer.Sanitize(cleaned))
		if next == cleaned {
			break
		}
		cleaned = next
	}
	if stripped := s.sanitizer.Sanitize(cleaned); html.UnescapeString(stripped) != cleaned {
		cleaned = stripped
	}
	cleaned = strings.TrimSpace(cleaned)
	if utf8.RuneCountInString(cleaned) > maxReasonLength {
		cleaned = string([]rune(cleaned)[:maxReasonLength])
	}
	return cleaned
}

func (s *orderService) now() time.Time {
	return s.clock()
}

func (s *orderService) publishEvent(ctx context.Context, event OrderEvent) {
	if s.events == nil {
		return
	}
	if event.Metadata != nil {
		event.Metadata = maps.Clone(event.Metadata)
	}
	if err := s.events.PublishOrderEvent(ctx, event); err != nil {
		s.logger(ctx, "order.event.publish.failed", map[string]any{
			"type":   event.Type,
			"order":  event.OrderID,
			"error":  err.Error(),
			"status": event.CurrentStatus,
		})
	}
}

// settlePaymentStatus keeps the payment status in step with the order rollup.
func settlePaymentStatus(order *Order) {
	switch order.Status {
	case domain.OrderStatusCancelled, domain.OrderStatusReturned:
		if order.PaymentStatus == domain.PaymentStatusCompleted {
			order.PaymentStatus = domain.PaymentStatusRefunded
		}
	case domain.OrderStatusDelivered:
		if !order.PaymentMethod.Prepaid() && order.PaymentStatus == domain.PaymentStatusPending {
			order.PaymentStatus = domain.PaymentStatusCompleted
		}
	}
}

func checkItemIndex(order Order, idx int) error {
	if idx < 0 || idx >= len(order.Items) {
		return fmt.Errorf("%w: item index %d out of range", ErrOrderInvalidInput, idx)
	}
	return nil
}

// selectItems resolves explicit indexes or, with all set, every line currently in status.
func selectItems(order Order, indexes []int, all bool, status OrderStatus) ([]int, error) {
	if all {
		var selected []int
		for i, item := range order.Items {
			if item.Status == status {
				selected = append(selected, i)
			}
		}
		if len(selected) == 0 {
			return nil, fmt.Errorf("%w: no items are %s", ErrOrderInvalidState, status)
		}
		return selected, nil
	}
	if len(indexes) == 0 {
		return nil, fmt.Errorf("%w: at least one item index is required", ErrOrderInvalidInput)
	}
	selected := slices.Clone(indexes)
	slices.Sort(selected)
	selected = slices.Compact(selected)
	for _, idx := range selected {
		if err := checkItemIndex(order, idx); err != nil {
			return nil, err
		}
	}
	return selected, nil
}

func clearReturnRequest(item *OrderItem) {
	item.Status = domain.OrderStatusDelivered
	item.ReturnReason = ""
	item.ReturnDetails = ""
	item.ReturnRequestedAt = nil
}

func orderLabel(order Order) string {
	if order.OrderNumber != "" {
		return order.OrderNumber
	}
	return order.ID
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
