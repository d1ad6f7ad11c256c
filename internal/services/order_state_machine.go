package services

import (
	"fmt"
	"strings"
	"time"

	domain "github.com/scentora/storefront/internal/domain"
)

const (
	confirmedBackfill  = time.Hour
	processingBackfill = 2 * time.Hour
	shippedBackfill    = 3 * time.Hour
)

// TrackingPolicy holds the knobs used when stamping fulfilment milestones.
type TrackingPolicy struct {
	DeliveryEstimate time.Duration
	TransitLocation  string
}

// DefaultTrackingPolicy estimates delivery a week out and labels shipments without a city as in transit.
func DefaultTrackingPolicy() TrackingPolicy {
	return TrackingPolicy{
		DeliveryEstimate: 7 * 24 * time.Hour,
		TransitLocation:  "In transit",
	}
}

// ValidateAdvance checks an admin status update against the forward-only fulfilment path.
// Re-applying the current status is accepted and leaves the item unchanged.
func ValidateAdvance(current, target OrderStatus) error {
	if !target.IsActivePath() {
		return fmt.Errorf("%w: %q is not a fulfilment status", ErrOrderInvalidState, target)
	}
	if !current.IsActivePath() {
		return fmt.Errorf("%w: item in status %q cannot move to %q", ErrOrderInvalidState, current, target)
	}
	if target.Priority() < current.Priority() {
		return fmt.Errorf("%w: cannot move item back from %q to %q", ErrOrderInvalidState, current, target)
	}
	return nil
}

// canCancelItem reports whether a single line may still be cancelled.
func canCancelItem(status OrderStatus) bool {
	return status.IsActivePath() && status != domain.OrderStatusDelivered
}

// blocksOrderCancel reports whether the line has progressed too far for whole-order cancellation.
func blocksOrderCancel(status OrderStatus) bool {
	switch status {
	case domain.OrderStatusShipped, domain.OrderStatusOutForDelivery, domain.OrderStatusDelivered,
		domain.OrderStatusReturnRequest, domain.OrderStatusReturned:
		return true
	}
	return false
}

// AdvanceItem moves item to target and fills any tracking milestones that are still empty.
// Existing timestamps are never overwritten.
func AdvanceItem(item *OrderItem, target OrderStatus, address domain.AddressSnapshot, now time.Time, policy TrackingPolicy) {
	item.Status = target
	t := &item.Tracking

	switch target {
	case domain.OrderStatusPlaced:
		setOnce(&t.PlacedAt, now)
	case domain.OrderStatusConfirmed:
		setOnce(&t.ConfirmedAt, now)
	case domain.OrderStatusProcessing:
		setOnce(&t.ConfirmedAt, now.Add(-confirmedBackfill))
		setOnce(&t.ProcessingAt, now)
	case domain.OrderStatusShipped:
		setOnce(&t.ProcessingAt, now.Add(-processingBackfill))
		setOnce(&t.ShippedAt, now)
	case domain.OrderStatusOutForDelivery:
		setOnce(&t.ShippedAt, now.Add(-shippedBackfill))
		setOnce(&t.OutForDeliveryAt, now)
		if strings.TrimSpace(t.Location) == "" {
			t.Location = strings.TrimSpace(address.City)
			if t.Location == "" {
				t.Location = policy.TransitLocation
			}
		}
	case domain.OrderStatusDelivered:
		setOnce(&t.DeliveredAt, now)
		t.EstimatedDelivery = nil
	}

	if target.IsActivePath() && target != domain.OrderStatusDelivered && t.EstimatedDelivery == nil && policy.DeliveryEstimate > 0 {
		estimate := now.Add(policy.DeliveryEstimate)
		t.EstimatedDelivery = &estimate
	}
}

func setOnce(field **time.Time, value time.Time) {
	if *field != nil {
		return
	}
	v := value
	*field = &v
}

// RollupStatus derives the order status from its lines. Cancelled lines are ignored while at
// least one line is still live.
func RollupStatus(items []OrderItem) OrderStatus {
	if len(items) == 0 {
		return domain.OrderStatusPlaced
	}
	counts := make(map[OrderStatus]int, len(items))
	for _, item := range items {
		counts[item.Status]++
	}
	cancelled := counts[domain.OrderStatusCancelled]
	live := len(items) - cancelled

	switch {
	case cancelled == len(items):
		return domain.OrderStatusCancelled
	case counts[domain.OrderStatusDelivered] == live:
		return domain.OrderStatusDelivered
	case counts[domain.OrderStatusReturnRequest] > 0:
		return domain.OrderStatusReturnRequest
	case counts[domain.OrderStatusReturned] > 0 &&
		counts[domain.OrderStatusReturned]+counts[domain.OrderStatusDelivered] == live:
		return domain.OrderStatusReturned
	case counts[domain.OrderStatusOutForDelivery] > 0:
		return domain.OrderStatusOutForDelivery
	case counts[domain.OrderStatusShipped] > 0:
		return domain.OrderStatusShipped
	case counts[domain.OrderStatusProcessing] > 0:
		return domain.OrderStatusProcessing
	case counts[domain.OrderStatusConfirmed] > 0:
		return domain.OrderStatusConfirmed
	}
	return domain.OrderStatusPlaced
}

// refreshRollup recomputes the order status and stamps the order delivery time the first time
// the whole order is delivered.
func refreshRollup(order *Order, now time.Time) {
	order.Status = RollupStatus(order.Items)
	if order.Status == domain.OrderStatusDelivered && order.DeliveredAt == nil {
		delivered := now
		order.DeliveredAt = &delivered
	}
}

// deliveredReference picks the instant the return window is measured from.
func deliveredReference(order Order, item OrderItem) time.Time {
	if item.Tracking.DeliveredAt != nil {
		return *item.Tracking.DeliveredAt
	}
	if order.DeliveredAt != nil {
		return *order.DeliveredAt
	}
	return order.CreatedAt
}

// ReturnWindowOpen reports whether a delivered line can still be returned at now.
func ReturnWindowOpen(order Order, item OrderItem, now time.Time, window time.Duration) bool {
	deadline := deliveredReference(order, item).Add(window)
	return !now.After(deadline)
}
