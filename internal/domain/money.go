package domain

import "github.com/shopspring/decimal"

// Round2 rounds an amount to cents, half away from zero.
func Round2(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

// SumAmounts adds amounts using decimal arithmetic and rounds the result to cents.
func SumAmounts(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(decimal.NewFromFloat(v))
	}
	f, _ := total.Round(2).Float64()
	return f
}

// SubtractAmounts returns a-b rounded to cents.
func SubtractAmounts(a, b float64) float64 {
	f, _ := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Round(2).Float64()
	return f
}

// MultiplyAmount returns price*quantity rounded to cents.
func MultiplyAmount(price float64, quantity int) float64 {
	f, _ := decimal.NewFromFloat(price).Mul(decimal.NewFromInt(int64(quantity))).Round(2).Float64()
	return f
}

// FinalAmount computes max(0, total-discount) to the cent.
func FinalAmount(total, discount float64) float64 {
	v := SubtractAmounts(total, discount)
	if v < 0 {
		return 0
	}
	return v
}

// AmountsEqual reports whether a and b are equal to the cent.
func AmountsEqual(a, b float64) bool {
	return decimal.NewFromFloat(a).Round(2).Equal(decimal.NewFromFloat(b).Round(2))
}
