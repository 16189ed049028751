package pricing

// Line describes an order line as seen by the totals engine.
type Line struct {
	ID         string
	MenuItemID string
	Price      float64
	Quantity   int
	IsCourtesy bool
	Cancelled  bool
}

// LineTotal returns the chargeable amount for the line. Courtesy and cancelled
// lines are free.
func (l Line) LineTotal() float64 {
	if l.Cancelled || l.IsCourtesy || l.Quantity <= 0 || l.Price <= 0 {
		return 0
	}
	return l.Price * float64(l.Quantity)
}

// Preset is the pricing view of a percentage discount. When both scopes are
// empty the preset applies to the whole subtotal.
type Preset struct {
	Percentage  float64
	MenuItemIDs []string
	CategoryIDs []string
}

// Scoped reports whether the preset is restricted to items or categories.
func (p Preset) Scoped() bool {
	return len(p.MenuItemIDs) > 0 || len(p.CategoryIDs) > 0
}

// Input groups everything Calculate needs.
type Input struct {
	Items           []Line
	IsOrderCourtesy bool
	Preset          *Preset
	ManualDiscount  float64
	TipAmount       float64
	TaxRate         float64
	// Categories maps menu item ids to category ids for category scoped presets.
	Categories map[string]string
}

// Totals aggregates computed order amounts.
type Totals struct {
	Subtotal                   float64 `json:"subtotal"`
	DiscountAmount             float64 `json:"discountAmount"`
	TaxAmount                  float64 `json:"taxAmount"`
	TipAmount                  float64 `json:"tipAmount"`
	TotalAmount                float64 `json:"totalAmount"`
	AppliedPresetDiscountValue float64 `json:"appliedPresetDiscountValue"`
	AppliedManualDiscountValue float64 `json:"appliedManualDiscountValue"`
}

// Taxable returns the post-discount base tax and tips are computed from.
func (t Totals) Taxable() float64 {
	return t.Subtotal - t.DiscountAmount
}

// Calculate computes the totals breakdown for an order.
func Calculate(in Input) Totals {
	var (
		subtotal float64
		present  int
	)
	for _, it := range in.Items {
		if it.Cancelled {
			continue
		}
		present++
		subtotal += it.LineTotal()
	}
	if present == 0 {
		return Totals{}
	}
	if in.IsOrderCourtesy {
		return Totals{Subtotal: subtotal, DiscountAmount: subtotal}
	}

	var presetValue float64
	if in.Preset != nil {
		base := DiscountableBase(in.Items, *in.Preset, in.Categories)
		presetValue = base * clampPercent(in.Preset.Percentage) / 100
		if presetValue > subtotal {
			presetValue = subtotal
		}
	}

	manual := nonNegative(in.ManualDiscount)
	if room := subtotal - presetValue; manual > room {
		manual = nonNegative(room)
	}

	discount := presetValue + manual
	taxable := subtotal - discount
	tax := taxable * nonNegative(in.TaxRate)
	tip := nonNegative(in.TipAmount)
	return Totals{
		Subtotal:                   subtotal,
		DiscountAmount:             discount,
		TaxAmount:                  tax,
		TipAmount:                  tip,
		TotalAmount:                taxable + tax + tip,
		AppliedPresetDiscountValue: presetValue,
		AppliedManualDiscountValue: manual,
	}
}

// DiscountableBase sums the chargeable lines the preset applies to.
func DiscountableBase(items []Line, p Preset, categories map[string]string) float64 {
	var base float64
	for _, it := range items {
		amount := it.LineTotal()
		if amount <= 0 {
			continue
		}
		if !p.Scoped() || presetMatchesLine(p, it, categories) {
			base += amount
		}
	}
	return base
}

func presetMatchesLine(p Preset, it Line, categories map[string]string) bool {
	if len(p.MenuItemIDs) > 0 {
		for _, id := range p.MenuItemIDs {
			if id == it.MenuItemID {
				return true
			}
		}
		return false
	}
	category, ok := categories[it.MenuItemID]
	if !ok || category == "" {
		return false
	}
	for _, id := range p.CategoryIDs {
		if id == category {
			return true
		}
	}
	return false
}

func clampPercent(p float64) float64 {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

func nonNegative(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
