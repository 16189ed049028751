package pricing

// SplitInput describes an itemized split to be priced against the order.
type SplitInput struct {
	Selected []Line
	Overall  Totals
	// TipAmount is the tip of the whole order.
	TipAmount float64
	// UncoveredDiscountableSubtotal is the chargeable subtotal of every line not
	// yet covered by a paid split, the selected lines included.
	UncoveredDiscountableSubtotal float64
	// ConsumedDiscount is the discount already assigned to paid splits.
	ConsumedDiscount float64
	TaxRate          float64
}

// Share is the priced portion of an order covered by one split.
type Share struct {
	Subtotal float64 `json:"subtotal"`
	Discount float64 `json:"discount"`
	Tax      float64 `json:"tax"`
	Tip      float64 `json:"tip"`
	Total    float64 `json:"total"`
}

// AllocateSplit prices a subset of lines proportionally against the part of
// the order that is still unpaid.
func AllocateSplit(in SplitInput) Share {
	var subtotal float64
	for _, it := range in.Selected {
		subtotal += it.LineTotal()
	}

	var discount float64
	if in.UncoveredDiscountableSubtotal > 0 {
		remaining := nonNegative(in.Overall.DiscountAmount - in.ConsumedDiscount)
		discount = remaining * (subtotal / in.UncoveredDiscountableSubtotal)
	}
	if discount > subtotal {
		discount = subtotal
	}

	taxable := subtotal - discount
	tax := taxable * nonNegative(in.TaxRate)

	var tip float64
	if base := in.Overall.Taxable(); base > 0 {
		tip = nonNegative(in.TipAmount) * (taxable / base)
	}
	return Share{
		Subtotal: subtotal,
		Discount: discount,
		Tax:      tax,
		Tip:      tip,
		Total:    taxable + tax + tip,
	}
}

// UncoveredSubtotal sums the chargeable lines whose ids are not in covered.
func UncoveredSubtotal(items []Line, covered map[string]bool) float64 {
	var total float64
	for _, it := range items {
		if covered[it.ID] {
			continue
		}
		total += it.LineTotal()
	}
	return total
}

// EqualShare divides the unpaid balance evenly among the shares still unpaid.
func EqualShare(grandTotal, paid float64, remainingShares int) float64 {
	if remainingShares <= 0 {
		return 0
	}
	balance := grandTotal - paid
	if balance <= 0 {
		return 0
	}
	return balance / float64(remainingShares)
}
