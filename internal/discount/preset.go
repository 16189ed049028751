package discount

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/noah-isme/backend-resto/internal/pricing"
)

var (
	// ErrInvalidDiscount is returned for negative manual amounts or percentages outside [0,100].
	ErrInvalidDiscount = errors.New("invalid discount")
	// ErrStaleCouponOrPreset indicates a referenced coupon code or preset id no longer exists.
	ErrStaleCouponOrPreset = errors.New("coupon or preset not found")
	// ErrDuplicateCoupon is returned when a coupon code is already used by another preset.
	ErrDuplicateCoupon = errors.New("coupon code already in use")
)

// Preset is a named, reusable percentage discount.
type Preset struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required,max=120"`
	Percentage  float64   `json:"percentage" validate:"gte=0,lte=100"`
	Description string    `json:"description,omitempty" validate:"max=500"`
	CouponCode  string    `json:"couponCode,omitempty" validate:"omitempty,max=32,printascii"`
	MenuItemIDs []string  `json:"menuItemIds,omitempty" validate:"dive,required"`
	CategoryIDs []string  `json:"categoryIds,omitempty" validate:"dive,required"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Rule returns the pricing view of the preset.
func (p Preset) Rule() pricing.Preset {
	return pricing.Preset{
		Percentage:  p.Percentage,
		MenuItemIDs: append([]string(nil), p.MenuItemIDs...),
		CategoryIDs: append([]string(nil), p.CategoryIDs...),
	}
}

// MatchesCode reports whether code selects this preset. Matching is case-insensitive.
func (p Preset) MatchesCode(code string) bool {
	normalized := NormalizeCode(code)
	return normalized != "" && NormalizeCode(p.CouponCode) == normalized
}

// Check enforces invariants the struct tags cannot express.
func (p Preset) Check() error {
	if math.IsNaN(p.Percentage) || p.Percentage < 0 || p.Percentage > 100 {
		return fmt.Errorf("%w: percentage must be within [0,100]", ErrInvalidDiscount)
	}
	if len(p.MenuItemIDs) > 0 && len(p.CategoryIDs) > 0 {
		return fmt.Errorf("%w: restrict to menu items or categories, not both", ErrInvalidDiscount)
	}
	if strings.ContainsAny(strings.TrimSpace(p.CouponCode), " \t") {
		return fmt.Errorf("%w: coupon code must not contain spaces", ErrInvalidDiscount)
	}
	return nil
}

// NormalizeCode canonicalises a coupon code for lookups and storage.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateManual rejects negative or non-finite manual discount amounts.
func ValidateManual(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return fmt.Errorf("%w: manual discount must be a non-negative amount", ErrInvalidDiscount)
	}
	return nil
}
