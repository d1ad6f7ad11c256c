package domain

import "time"

// PaymentSession remembers what a gateway order was opened for, so a verified payment can only
// settle that exact checkout.
type PaymentSession struct {
	GatewayOrderID  string
	Provider        string
	UserID          string
	AddressID       string
	CouponCode      string
	AmountMinor     int64
	Currency        string
	CartFingerprint string
	CreatedAt       time.Time
}
