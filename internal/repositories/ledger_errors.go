package repositories

import (
	"errors"
	"fmt"
)

// LedgerErrorCode enumerates business-rule failures detected inside storage transactions.
type LedgerErrorCode string

const (
	StockErrorInsufficient    LedgerErrorCode = "stock_insufficient"
	StockErrorProductNotFound LedgerErrorCode = "stock_product_not_found"
	StockErrorVariantNotFound LedgerErrorCode = "stock_variant_not_found"
	StockErrorInvalidQuantity LedgerErrorCode = "stock_invalid_quantity"
	WalletErrorInsufficient   LedgerErrorCode = "wallet_insufficient_balance"
	WalletErrorInvalidAmount  LedgerErrorCode = "wallet_invalid_amount"
	CouponErrorLimitReached   LedgerErrorCode = "coupon_limit_reached"
	CouponErrorAlreadyUsed    LedgerErrorCode = "coupon_already_used"
	CouponErrorNotFound       LedgerErrorCode = "coupon_not_found"
	OrderErrorVersionConflict LedgerErrorCode = "order_version_conflict"
	OrderErrorNotFound        LedgerErrorCode = "order_not_found"
	OrderErrorAlreadyExists   LedgerErrorCode = "order_already_exists"
	AddressErrorNotFound      LedgerErrorCode = "address_not_found"
	SequenceErrorInvalidYear  LedgerErrorCode = "sequence_invalid_year"
	PaymentSessionNotFound    LedgerErrorCode = "payment_session_not_found"
	LedgerErrorUnknown        LedgerErrorCode = "ledger_unknown"
)

// LedgerError carries a machine readable code so services can translate storage outcomes.
type LedgerError struct {
	Op      string
	Code    LedgerErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *LedgerError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *LedgerError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound implements RepositoryError.
func (e *LedgerError) IsNotFound() bool {
	if e == nil {
		return false
	}
	switch e.Code {
	case StockErrorProductNotFound, StockErrorVariantNotFound, CouponErrorNotFound, OrderErrorNotFound, AddressErrorNotFound, PaymentSessionNotFound:
		return true
	}
	return false
}

// IsConflict implements RepositoryError.
func (e *LedgerError) IsConflict() bool {
	if e == nil {
		return false
	}
	return e.Code == OrderErrorVersionConflict || e.Code == OrderErrorAlreadyExists
}

// IsUnavailable implements RepositoryError.
func (e *LedgerError) IsUnavailable() bool { return false }

// NewLedgerError constructs a typed ledger error.
func NewLedgerError(code LedgerErrorCode, message string, err error) *LedgerError {
	if message == "" {
		message = string(code)
	}
	return &LedgerError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// LedgerCode extracts the code of a LedgerError anywhere in err's chain.
func LedgerCode(err error) (LedgerErrorCode, bool) {
	var ledgerErr *LedgerError
	if errors.As(err, &ledgerErr) && ledgerErr != nil {
		return ledgerErr.Code, true
	}
	return "", false
}
