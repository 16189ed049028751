package pricing

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const taxRate = 0.13

func sampleLines() []Line {
	return []Line{
		{ID: "l1", MenuItemID: "m-burger", Price: 18.00, Quantity: 1},
		{ID: "l2", MenuItemID: "m-soda", Price: 3.50, Quantity: 3},
	}
}

func TestCalculateNoDiscount(t *testing.T) {
	got := Calculate(Input{Items: sampleLines(), TaxRate: taxRate})
	require.InDelta(t, 28.50, got.Subtotal, 1e-9)
	require.InDelta(t, 3.705, got.TaxAmount, 1e-9)
	require.InDelta(t, 32.205, got.TotalAmount, 1e-9)
	require.InDelta(t, got.Subtotal*(1+taxRate), got.TotalAmount, 1e-9)
	require.Zero(t, got.DiscountAmount)
}

func TestCalculateUnrestrictedPreset(t *testing.T) {
	got := Calculate(Input{Items: sampleLines(), Preset: &Preset{Percentage: 15}, TaxRate: taxRate})
	require.InDelta(t, 4.275, got.AppliedPresetDiscountValue, 1e-9)
	require.InDelta(t, 24.225, got.Taxable(), 1e-9)
	require.InDelta(t, 3.14925, got.TaxAmount, 1e-9)
	require.InDelta(t, 27.37425, got.TotalAmount, 1e-9)

	withTip := Calculate(Input{Items: sampleLines(), Preset: &Preset{Percentage: 15}, TipAmount: 2, TaxRate: taxRate})
	require.InDelta(t, 29.37425, withTip.TotalAmount, 1e-9)
}

func TestCalculateCourtesyLine(t *testing.T) {
	lines := sampleLines()
	lines[0].IsCourtesy = true
	got := Calculate(Input{Items: lines, TaxRate: taxRate})
	require.InDelta(t, 10.50, got.Subtotal, 1e-9)
	require.Equal(t, 1, lines[0].Quantity)
	require.Equal(t, 18.00, lines[0].Price)
	require.Zero(t, lines[0].LineTotal())
}

func TestCalculateSkipsCancelled(t *testing.T) {
	lines := append(sampleLines(), Line{ID: "l3", Price: 100, Quantity: 2, Cancelled: true})
	got := Calculate(Input{Items: lines, TaxRate: taxRate})
	require.InDelta(t, 28.50, got.Subtotal, 1e-9)
}

func TestCalculateOrderCourtesy(t *testing.T) {
	got := Calculate(Input{
		Items:           sampleLines(),
		IsOrderCourtesy: true,
		Preset:          &Preset{Percentage: 50},
		ManualDiscount:  3,
		TipAmount:       4,
		TaxRate:         taxRate,
	})
	require.InDelta(t, 28.50, got.Subtotal, 1e-9)
	require.InDelta(t, got.Subtotal, got.DiscountAmount, 1e-9)
	require.Zero(t, got.TaxAmount)
	require.Zero(t, got.TipAmount)
	require.Zero(t, got.TotalAmount)
}

func TestCalculateManualClampedToBase(t *testing.T) {
	got := Calculate(Input{Items: sampleLines(), Preset: &Preset{Percentage: 15}, ManualDiscount: 1000, TaxRate: taxRate})
	require.InDelta(t, 28.50-4.275, got.AppliedManualDiscountValue, 1e-9)
	require.InDelta(t, got.Subtotal, got.DiscountAmount, 1e-9)
	require.Zero(t, got.TaxAmount)

	negative := Calculate(Input{Items: sampleLines(), ManualDiscount: -5, TaxRate: taxRate})
	require.Zero(t, negative.AppliedManualDiscountValue)
}

func TestCalculateDiscountNeverExceedsSubtotal(t *testing.T) {
	cases := []Input{
		{Items: sampleLines(), Preset: &Preset{Percentage: 100}, ManualDiscount: 10},
		{Items: sampleLines(), Preset: &Preset{Percentage: 250}},
		{Items: sampleLines(), ManualDiscount: 28.51},
		{Items: []Line{{ID: "x", Price: 5, Quantity: 1, IsCourtesy: true}}, ManualDiscount: 3},
	}
	for _, in := range cases {
		in.TaxRate = taxRate
		got := Calculate(in)
		require.LessOrEqual(t, got.DiscountAmount, got.Subtotal+Epsilon)
		require.GreaterOrEqual(t, got.Taxable(), -Epsilon)
	}
}

func TestCalculateScopedPresets(t *testing.T) {
	byItem := Calculate(Input{Items: sampleLines(), Preset: &Preset{Percentage: 10, MenuItemIDs: []string{"m-soda"}}, TaxRate: taxRate})
	require.InDelta(t, 1.05, byItem.AppliedPresetDiscountValue, 1e-9)

	categories := map[string]string{"m-burger": "c-mains", "m-soda": "c-drinks"}
	byCategory := Calculate(Input{
		Items:      sampleLines(),
		Preset:     &Preset{Percentage: 50, CategoryIDs: []string{"c-mains"}},
		TaxRate:    taxRate,
		Categories: categories,
	})
	require.InDelta(t, 9.0, byCategory.AppliedPresetDiscountValue, 1e-9)

	unknown := Calculate(Input{Items: sampleLines(), Preset: &Preset{Percentage: 50, CategoryIDs: []string{"c-mains"}}, TaxRate: taxRate})
	require.Zero(t, unknown.AppliedPresetDiscountValue)
}

func TestCalculateScopedPresetIgnoresCourtesyLines(t *testing.T) {
	lines := sampleLines()
	lines[1].IsCourtesy = true
	got := Calculate(Input{Items: lines, Preset: &Preset{Percentage: 10, MenuItemIDs: []string{"m-soda"}}, TaxRate: taxRate})
	require.Zero(t, got.AppliedPresetDiscountValue)
}

func TestCalculateEmpty(t *testing.T) {
	require.Equal(t, Totals{}, Calculate(Input{TaxRate: taxRate, TipAmount: 3}))
	require.Equal(t, Totals{}, Calculate(Input{Items: []Line{{ID: "c", Price: 4, Quantity: 1, Cancelled: true}}, TaxRate: taxRate}))
}

func TestCalculateIsIdempotent(t *testing.T) {
	in := Input{
		Items:          sampleLines(),
		Preset:         &Preset{Percentage: 12.5, CategoryIDs: []string{"c-drinks"}},
		ManualDiscount: 1.1,
		TipAmount:      2.25,
		TaxRate:        taxRate,
		Categories:     map[string]string{"m-soda": "c-drinks"},
	}
	require.Equal(t, Calculate(in), Calculate(in))
}
