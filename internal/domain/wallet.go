package domain

import (
	"fmt"
	"strings"
	"time"
)

// WalletTransactionType is the direction of a ledger entry.
type WalletTransactionType string

const (
	WalletCredit WalletTransactionType = "credit"
	WalletDebit  WalletTransactionType = "debit"
)

// Wallet is a user's stored-value balance.
type Wallet struct {
	UserID    string
	Balance   float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// WalletTransaction is an immutable ledger entry.
type WalletTransaction struct {
	ID             string
	UserID         string
	Type           WalletTransactionType
	Amount         float64
	Description    string
	OrderID        string
	IdempotencyKey string
	BalanceAfter   float64
	CreatedAt      time.Time
}

// Signed returns the entry's effect on the balance.
func (t WalletTransaction) Signed() float64 {
	if t.Type == WalletDebit {
		return -t.Amount
	}
	return t.Amount
}

// WalletPosting is a requested ledger movement that has not been applied yet.
type WalletPosting struct {
	UserID         string
	Type           WalletTransactionType
	Amount         float64
	Description    string
	OrderID        string
	IdempotencyKey string
}

// Wallet posting actions used to build idempotency keys.
const (
	WalletActionCancel       = "cancel"
	WalletActionCancelOrder  = "cancel-order"
	WalletActionReturn       = "return"
	WalletActionCheckout     = "checkout"
	walletKeyAllItemsSegment = "all"
)

// WalletKey builds the idempotency key for a posting tied to an order line.
// A negative itemIndex addresses the order as a whole.
func WalletKey(orderID string, itemIndex int, action string) string {
	segment := walletKeyAllItemsSegment
	if itemIndex >= 0 {
		segment = fmt.Sprintf("%d", itemIndex)
	}
	return strings.TrimSpace(orderID) + ":" + segment + ":" + strings.TrimSpace(action)
}
