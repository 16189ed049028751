package order

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		ok       bool
	}{
		{StatusOpen, StatusPendingPayment, true},
		{StatusOpen, StatusPaid, true},
		{StatusPendingPayment, StatusOpen, true},
		{StatusOnHold, StatusPaid, false},
		{StatusPaid, StatusCompleted, true},
		{StatusPaid, StatusOpen, false},
		{StatusCancelled, StatusOpen, false},
		{StatusCompleted, StatusPaid, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.ok, CanTransition(tc.from, tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestTransitionSetsHoldFlag(t *testing.T) {
	o := Order{Status: StatusOpen}
	now := time.Now()
	require.NoError(t, o.Transition(StatusOnHold, now))
	require.True(t, o.IsOnHold)
	require.NoError(t, o.Transition(StatusPendingPayment, now))
	require.False(t, o.IsOnHold)
	require.ErrorIs(t, o.Transition(StatusCompleted, now), ErrInvalidTransition)
}

func TestDTECompleteness(t *testing.T) {
	require.True(t, DTE{Type: DTEConsumidorFinal}.Complete())
	require.False(t, DTE{Type: DTECreditoFiscal, NIT: "0614", NRC: "1234"}.Complete())
	require.True(t, DTE{Type: DTECreditoFiscal, NIT: "0614", NRC: "1234", CustomerName: "ACME"}.Complete())
	require.False(t, DTE{Type: "factura"}.ValidType())
	require.True(t, DTE{}.ValidType())
}

func TestCloneIsDeep(t *testing.T) {
	tbl := "T1"
	o := Order{
		TableID:  &tbl,
		Items:    []Item{{ID: "a", Price: 1}},
		DTE:      &DTE{Type: DTECreditoFiscal},
		Payments: []Payment{{ID: "p", ItemIDs: []string{"a"}}},
	}
	c := o.Clone()
	c.Items[0].Price = 9
	*c.TableID = "T2"
	c.DTE.NIT = "x"
	c.Payments[0].ItemIDs[0] = "b"
	require.Equal(t, 1.0, o.Items[0].Price)
	require.Equal(t, "T1", *o.TableID)
	require.Empty(t, o.DTE.NIT)
	require.Equal(t, "a", o.Payments[0].ItemIDs[0])
}

func TestCancelledLinesDropOutOfTotals(t *testing.T) {
	o := Order{Items: []Item{
		{ID: "a", MenuItemID: "m1", Price: 10, Quantity: 1, Status: ItemCancelled},
		{ID: "b", MenuItemID: "m2", Price: 4, Quantity: 2, Status: ItemReady},
	}}
	o.Recalculate(0.1, nil)
	require.InDelta(t, 8.0, o.Totals.Subtotal, 1e-9)
	require.InDelta(t, 8.8, o.Totals.TotalAmount, 1e-9)
}
