package services

import domain "github.com/scentora/storefront/internal/domain"

// RefundDestination names where money owed back to a customer is sent.
type RefundDestination string

const (
	// RefundDestinationWallet credits the customer's wallet.
	RefundDestinationWallet RefundDestination = "wallet"
	// RefundDestinationNone means nothing was collected, so nothing is paid back.
	RefundDestinationNone RefundDestination = "none"
)

// RefundTrigger identifies the lifecycle event that produced a refund.
type RefundTrigger string

const (
	RefundTriggerCancellation RefundTrigger = "cancellation"
	RefundTriggerReturn       RefundTrigger = "return"
)

// RefundDestinationFor decides where a refund goes. Cancellations only pay back prepaid orders;
// approved returns always go to the wallet whatever the payment method was.
func RefundDestinationFor(method domain.PaymentMethod, trigger RefundTrigger) RefundDestination {
	if trigger == RefundTriggerReturn {
		return RefundDestinationWallet
	}
	if method.Prepaid() {
		return RefundDestinationWallet
	}
	return RefundDestinationNone
}
