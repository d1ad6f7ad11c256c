package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidVariantSize reports a size value that cannot be coerced to a positive number.
var ErrInvalidVariantSize = errors.New("invalid variant size")

// VariantSize identifies a product variant by its numeric size (for example 50 for a 50ml bottle).
// Values are normalised to two decimal places so that "50", 50 and "50.00" compare equal.
type VariantSize float64

// ParseVariantSize coerces the loosely typed size values seen at the HTTP boundary.
func ParseVariantSize(value any) (VariantSize, error) {
	switch v := value.(type) {
	case VariantSize:
		return normaliseSize(float64(v))
	case float64:
		return normaliseSize(v)
	case float32:
		return normaliseSize(float64(v))
	case int:
		return normaliseSize(float64(v))
	case int64:
		return normaliseSize(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidVariantSize, v.String())
		}
		return normaliseSize(f)
	case string:
		trimmed := strings.TrimSpace(strings.ToLower(v))
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, "ml"))
		if trimmed == "" {
			return 0, fmt.Errorf("%w: empty", ErrInvalidVariantSize)
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidVariantSize, v)
		}
		return normaliseSize(f)
	default:
		return 0, fmt.Errorf("%w: unsupported type %T", ErrInvalidVariantSize, value)
	}
}

func normaliseSize(f float64) (VariantSize, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f <= 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidVariantSize, f)
	}
	return VariantSize(Round2(f)), nil
}

// Key renders the size as the canonical map key used in storage.
func (s VariantSize) Key() string {
	return strconv.FormatFloat(float64(s), 'f', -1, 64)
}

func (s VariantSize) String() string {
	return s.Key()
}

// ProductVariant holds stock and prices for one size of a product.
type ProductVariant struct {
	Size         VariantSize
	Stock        int
	RegularPrice float64
	SalePrice    float64
}

// UnitPrice returns the sale price when it undercuts the regular price.
func (v ProductVariant) UnitPrice() float64 {
	if v.SalePrice > 0 && v.SalePrice < v.RegularPrice {
		return v.SalePrice
	}
	return v.RegularPrice
}

// Product is the slice of the catalog the order core reads and writes.
type Product struct {
	ID        string
	Name      string
	Listed    bool
	Variants  map[VariantSize]ProductVariant
	Version   int64
	UpdatedAt time.Time
}

// Variant looks a variant up by normalised size.
func (p Product) Variant(size VariantSize) (ProductVariant, bool) {
	if p.Variants == nil {
		return ProductVariant{}, false
	}
	v, ok := p.Variants[size]
	return v, ok
}
