package checkout_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/checkout"
	"github.com/noah-isme/backend-resto/internal/discount"
	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/pricing"
)

const taxRate = 0.13

var now = time.Date(2024, 5, 10, 20, 30, 0, 0, time.UTC)

func sampleOrder() order.Order {
	table := "T2"
	return order.Order{
		ID:      "order-1",
		Type:    order.TypeDineIn,
		TableID: &table,
		Status:  order.StatusPendingPayment,
		Items: []order.Item{
			{ID: "steak", MenuItemID: "m-steak", Name: "Steak", Price: 18, Quantity: 1, Status: order.ItemDelivered},
			{ID: "beer", MenuItemID: "m-beer", Name: "Beer", Price: 3.5, Quantity: 3, Status: order.ItemDelivered},
		},
	}
}

func newSession(t *testing.T) *checkout.Session {
	t.Helper()
	return checkout.NewSession("sess-1", sampleOrder(), map[string]string{"m-steak": "mains", "m-beer": "drinks"}, taxRate, checkout.Tip{}, now)
}

func TestNewSessionScenarioA(t *testing.T) {
	s := newSession(t)
	require.Equal(t, checkout.StepSummary, s.Step)
	require.Equal(t, checkout.StrategyFull, s.Strategy)
	require.InDelta(t, 28.5, s.Totals.Subtotal, 1e-9)
	require.InDelta(t, 3.705, s.Totals.TaxAmount, 1e-9)
	require.InDelta(t, 32.205, s.Totals.TotalAmount, 1e-9)
}

func TestStagedDiscountOnlyCountsOnceApplied(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.StagePreset(discount.Preset{ID: "p15", Name: "Fifteen", Percentage: 15}))
	require.InDelta(t, 32.205, s.Totals.TotalAmount, 1e-9)

	require.NoError(t, s.ApplyStagedDiscount())
	require.InDelta(t, 4.275, s.Totals.AppliedPresetDiscountValue, 1e-9)
	require.InDelta(t, 3.14925, s.Totals.TaxAmount, 1e-9)
	require.InDelta(t, 27.37425, s.Totals.TotalAmount, 1e-9)

	require.NoError(t, s.ClearDiscount())
	require.InDelta(t, 32.205, s.Totals.TotalAmount, 1e-9)
	require.Nil(t, s.Staged.Preset)
}

func TestManualDiscountValidationAndClamp(t *testing.T) {
	s := newSession(t)
	require.ErrorIs(t, s.StageManualDiscount(-1), discount.ErrInvalidDiscount)
	require.ErrorIs(t, s.StagePreset(discount.Preset{Name: "bad", Percentage: 120}), discount.ErrInvalidDiscount)

	require.NoError(t, s.StageManualDiscount(100))
	require.NoError(t, s.ApplyStagedDiscount())
	require.InDelta(t, 28.5, s.Totals.AppliedManualDiscountValue, 1e-9)
	require.InDelta(t, 0, s.Totals.TotalAmount, 1e-9)
}

func TestCategoryScopedPreset(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.StagePreset(discount.Preset{Name: "Happy hour", Percentage: 50, CategoryIDs: []string{"drinks"}}))
	require.NoError(t, s.ApplyStagedDiscount())
	require.InDelta(t, 5.25, s.Totals.DiscountAmount, 1e-9)
}

func TestTipModes(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.SetTip(checkout.TipPercent, 10))
	require.InDelta(t, 2.85, s.Totals.TipAmount, 1e-9)
	require.InDelta(t, 35.055, s.Totals.TotalAmount, 1e-9)

	require.NoError(t, s.SetTip(checkout.TipCustom, 5))
	require.InDelta(t, 5, s.Totals.TipAmount, 1e-9)

	require.NoError(t, s.SetTip(checkout.TipNone, 7))
	require.InDelta(t, 0, s.Totals.TipAmount, 1e-9)

	require.ErrorIs(t, s.SetTip(checkout.TipPercent, 150), checkout.ErrInvalidCommand)
	require.ErrorIs(t, s.SetTip(checkout.TipCustom, -1), checkout.ErrInvalidCommand)
	require.ErrorIs(t, s.SetTip("round_up", 1), checkout.ErrInvalidCommand)
}

func TestOrderCourtesyZeroesEverything(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.SetTip(checkout.TipCustom, 4))
	require.NoError(t, s.StagePreset(discount.Preset{Name: "Ten", Percentage: 10}))
	require.NoError(t, s.ApplyStagedDiscount())
	require.NoError(t, s.SetOrderCourtesy(true))

	require.InDelta(t, 28.5, s.Totals.DiscountAmount, 1e-9)
	require.Zero(t, s.Totals.TaxAmount)
	require.Zero(t, s.Totals.TipAmount)
	require.Zero(t, s.Totals.TotalAmount)

	o, err := s.Finalize(now)
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, o.Status)
	require.True(t, o.IsCourtesy)
	require.Empty(t, o.Payments)
}

func TestItemCourtesy(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.SetItemCourtesy("steak", true))
	require.InDelta(t, 10.5, s.Totals.Subtotal, 1e-9)
	require.Len(t, s.Order.Items, 2)
	require.ErrorIs(t, s.SetItemCourtesy("missing", true), checkout.ErrInvalidCommand)
}

func TestFullPaymentValidation(t *testing.T) {
	s := newSession(t)
	_, err := s.Finalize(now)
	require.ErrorIs(t, err, checkout.ErrMissingPaymentMethod)

	require.NoError(t, s.SetPaymentMethod("card"))
	require.NoError(t, s.SetDTE(&order.DTE{Type: order.DTECreditoFiscal, NIT: "0614-010190-101-1"}))
	_, err = s.Finalize(now)
	require.ErrorIs(t, err, checkout.ErrIncompleteFiscalInfo)

	require.ErrorIs(t, s.SetDTE(&order.DTE{Type: "ticket"}), checkout.ErrInvalidCommand)

	require.NoError(t, s.SetDTE(&order.DTE{Type: order.DTECreditoFiscal, NIT: "0614-010190-101-1", NRC: "123-4", CustomerName: "ACME"}))
	o, err := s.Finalize(now)
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, o.Status)
	require.NotNil(t, o.PaidAt)
	require.Len(t, o.Payments, 1)
	require.InDelta(t, 32.205, o.Payments[0].AmountPaid, 1e-9)
	require.Equal(t, "card", o.PaymentMethod)
}

func TestZeroTotalNeedsNoMethod(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.StageManualDiscount(1000))
	require.NoError(t, s.ApplyStagedDiscount())
	o, err := s.Finalize(now)
	require.NoError(t, err)
	require.Empty(t, o.Payments)
}

func TestOnHoldSkipsPaymentValidation(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.SetOnHold(true))
	o, err := s.Finalize(now)
	require.NoError(t, err)
	require.Equal(t, order.StatusOnHold, o.Status)
	require.True(t, o.IsOnHold)
	require.Nil(t, o.PaidAt)
}

func TestNavigation(t *testing.T) {
	s := newSession(t)
	require.ErrorIs(t, s.Back(), checkout.ErrInvalidStep)
	require.NoError(t, s.Next())
	require.Equal(t, checkout.StepDiscount, s.Step)
	require.NoError(t, s.Next())
	require.Equal(t, checkout.StepPayment, s.Step)
	require.ErrorIs(t, s.Next(), checkout.ErrInvalidStep)

	require.NoError(t, s.SetStrategy(checkout.StrategySplit))
	require.NoError(t, s.Next())
	require.Equal(t, checkout.StepSplits, s.Step)
	require.ErrorIs(t, s.Next(), checkout.ErrInvalidStep)

	require.NoError(t, s.SetStrategy(checkout.StrategyFull))
	require.Equal(t, checkout.StepPayment, s.Step)
	require.NoError(t, s.Back())
	require.Equal(t, checkout.StepDiscount, s.Step)
}

func TestEqualSplitRecomputesRemaining(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.SetStrategy(checkout.StrategySplit))
	require.NoError(t, s.ConfigureEqualSplit(2))
	require.Len(t, s.Splits, 2)
	first, second := s.Splits[0].ID, s.Splits[1].ID
	require.InDelta(t, 16.1025, s.Splits[0].AmountDue, 1e-9)
	require.InDelta(t, 16.1025, s.Splits[1].AmountDue, 1e-9)

	require.NoError(t, s.SetSplitMethod(first, "cash"))
	require.NoError(t, s.SetSplitAmount(first, 16.10))
	require.NoError(t, s.PaySplit(first, now))
	require.InDelta(t, 16.105, s.Splits[1].AmountDue, 1e-9)
	require.InDelta(t, 16.105, s.Splits[1].AmountToPay, 1e-9)

	_, err := s.Finalize(now)
	require.ErrorIs(t, err, checkout.ErrUnderfundedSplit)

	require.ErrorIs(t, s.SetSplitAmount(first, 1), checkout.ErrSplitFrozen)
	require.ErrorIs(t, s.PaySplit(second, now), checkout.ErrMissingPaymentMethod)
	require.NoError(t, s.SetSplitMethod(second, "card"))
	require.NoError(t, s.PaySplit(second, now))
	require.InDelta(t, 0, s.Balance, 1e-9)

	o, err := s.Finalize(now)
	require.NoError(t, err)
	require.Len(t, o.Payments, 2)
	require.InDelta(t, 32.205, o.Payments[0].AmountPaid+o.Payments[1].AmountPaid, pricing.Epsilon)
}

func TestSplitOverpaymentIsRejected(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.SetPaymentMethod("cash"))
	require.NoError(t, s.SetStrategy(checkout.StrategySplit))
	require.NoError(t, s.ConfigureEqualSplit(3))
	id := s.Splits[0].ID

	require.ErrorIs(t, s.SetSplitAmount(id, 20), checkout.ErrOverpayment)
	require.NoError(t, s.SetSplitAmount(id, s.Splits[0].AmountDue+0.0005))
	require.NoError(t, s.PaySplit(id, now))
	require.ErrorIs(t, s.ConfigureEqualSplit(2), checkout.ErrPaymentsStarted)
	require.ErrorIs(t, s.ApplyStagedDiscount(), checkout.ErrPaymentsStarted)
	require.ErrorIs(t, s.SetTip(checkout.TipCustom, 1), checkout.ErrPaymentsStarted)
	require.ErrorIs(t, s.SetStrategy(checkout.StrategyFull), checkout.ErrPaymentsStarted)
}

// paidEqualSplit returns a session split into n equal cash shares with the
// first one paid.
func paidEqualSplit(t *testing.T, n int) *checkout.Session {
	t.Helper()
	s := newSession(t)
	require.NoError(t, s.SetPaymentMethod("cash"))
	require.NoError(t, s.SetStrategy(checkout.StrategySplit))
	require.NoError(t, s.ConfigureEqualSplit(n))
	require.NoError(t, s.PaySplit(s.Splits[0].ID, now))
	return s
}

func TestAmountCommandsRejectedAfterFirstPayment(t *testing.T) {
	cases := []struct {
		name string
		run  func(s *checkout.Session) error
	}{
		{"on hold", func(s *checkout.Session) error { return s.SetOnHold(true) }},
		{"order courtesy", func(s *checkout.Session) error { return s.SetOrderCourtesy(true) }},
		{"item courtesy", func(s *checkout.Session) error { return s.SetItemCourtesy("steak", true) }},
		{"apply discount", func(s *checkout.Session) error { return s.ApplyStagedDiscount() }},
		{"clear discount", func(s *checkout.Session) error { return s.ClearDiscount() }},
		{"tip", func(s *checkout.Session) error { return s.SetTip(checkout.TipCustom, 2) }},
		{"full strategy", func(s *checkout.Session) error { return s.SetStrategy(checkout.StrategyFull) }},
		{"reconfigure shares", func(s *checkout.Session) error { return s.ConfigureEqualSplit(3) }},
		{"itemized split", func(s *checkout.Session) error {
			_, err := s.AddItemizedSplit([]string{"steak"})
			return err
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := paidEqualSplit(t, 2)
			total, paid := s.Totals.TotalAmount, s.PaidAmount

			require.ErrorIs(t, tc.run(s), checkout.ErrPaymentsStarted)
			require.False(t, s.IsOnHold)
			require.False(t, s.IsCourtesy)
			require.Len(t, s.Splits, 2)
			require.True(t, s.Splits[0].IsPaid)
			require.InDelta(t, total, s.Totals.TotalAmount, 1e-9)
			require.InDelta(t, paid, s.PaidAmount, 1e-9)
		})
	}
}

func TestLastEqualShareMustCoverBalance(t *testing.T) {
	s := paidEqualSplit(t, 2)
	last := s.Splits[1].ID

	require.NoError(t, s.SetSplitAmount(last, 10))
	require.ErrorIs(t, s.PaySplit(last, now), checkout.ErrUnderfundedSplit)
	require.False(t, s.Splits[1].IsPaid)

	require.NoError(t, s.SetSplitAmount(last, s.Splits[1].AmountDue))
	require.NoError(t, s.PaySplit(last, now))
	o, err := s.Finalize(now)
	require.NoError(t, err)
	require.Equal(t, order.StatusPaid, o.Status)
	require.Len(t, o.Payments, 2)
}

func TestEarlierEqualShareMayBePartial(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.SetPaymentMethod("cash"))
	require.NoError(t, s.SetStrategy(checkout.StrategySplit))
	require.NoError(t, s.ConfigureEqualSplit(3))

	require.NoError(t, s.SetSplitAmount(s.Splits[0].ID, 5))
	require.NoError(t, s.PaySplit(s.Splits[0].ID, now))
	require.InDelta(t, 13.6025, s.Splits[1].AmountDue, 1e-9)
}

func TestLastUnpaidEqualShareCannotBeRemoved(t *testing.T) {
	s := paidEqualSplit(t, 3)
	second, third := s.Splits[1].ID, s.Splits[2].ID

	require.NoError(t, s.RemoveSplit(second))
	require.Len(t, s.Splits, 2)
	require.InDelta(t, 32.205-s.PaidAmount, s.Splits[1].AmountDue, 1e-9)

	require.ErrorIs(t, s.RemoveSplit(third), checkout.ErrUnderfundedSplit)
	require.Len(t, s.Splits, 2)
	require.NoError(t, s.PaySplit(third, now))
	_, err := s.Finalize(now)
	require.NoError(t, err)
}

func TestSplitsCannotBePaidWhileOnHold(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.SetPaymentMethod("cash"))
	require.NoError(t, s.SetStrategy(checkout.StrategySplit))
	require.NoError(t, s.ConfigureEqualSplit(2))
	first := s.Splits[0].ID

	require.NoError(t, s.SetOnHold(true))
	require.ErrorIs(t, s.PaySplit(first, now), checkout.ErrInvalidCommand)
	require.False(t, s.PaymentsStarted())

	require.NoError(t, s.SetOnHold(false))
	require.NoError(t, s.PaySplit(first, now))
	require.ErrorIs(t, s.SetOnHold(true), checkout.ErrPaymentsStarted)
	require.NoError(t, s.SetOnHold(false))
}

func TestItemizedSplitsPartitionTheTotal(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.StagePreset(discount.Preset{Name: "Fifteen", Percentage: 15}))
	require.NoError(t, s.ApplyStagedDiscount())
	require.NoError(t, s.SetTip(checkout.TipPercent, 10))
	require.NoError(t, s.SetPaymentMethod("card"))
	require.NoError(t, s.SetStrategy(checkout.StrategySplit))

	steak, err := s.AddItemizedSplit([]string{"steak"})
	require.NoError(t, err)
	_, err = s.AddItemizedSplit([]string{"steak", "beer"})
	require.ErrorIs(t, err, checkout.ErrItemAlreadyCovered)
	beer, err := s.AddItemizedSplit([]string{"beer"})
	require.NoError(t, err)

	require.NoError(t, s.PaySplit(steak, now))
	require.ErrorIs(t, s.SetSplitItems(steak, []string{"beer"}), checkout.ErrSplitFrozen)
	require.ErrorIs(t, s.RemoveSplit(steak), checkout.ErrSplitFrozen)
	require.NoError(t, s.PaySplit(beer, now))

	require.InDelta(t, s.Totals.TotalAmount, s.PaidAmount, 0.01)
	o, err := s.Finalize(now)
	require.NoError(t, err)
	require.Equal(t, []string{"steak"}, o.Payments[0].ItemIDs)
}

func TestBalanceIgnoresSubCentResidue(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.SetPaymentMethod("card"))
	require.NoError(t, s.SetStrategy(checkout.StrategySplit))
	steak, err := s.AddItemizedSplit([]string{"steak"})
	require.NoError(t, err)
	beer, err := s.AddItemizedSplit([]string{"beer"})
	require.NoError(t, err)

	for i, id := range []string{steak, beer} {
		require.NoError(t, s.SetSplitAmount(id, s.Splits[i].AmountDue-0.0004))
		require.NoError(t, s.PaySplit(id, now))
	}
	require.Zero(t, s.Balance)
	_, err = s.Finalize(now)
	require.NoError(t, err)
}

func TestItemizedSplitMustBePaidInFull(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.SetPaymentMethod("cash"))
	require.NoError(t, s.SetStrategy(checkout.StrategySplit))
	id, err := s.AddItemizedSplit([]string{"beer"})
	require.NoError(t, err)
	require.NoError(t, s.SetSplitAmount(id, 5))
	require.ErrorIs(t, s.PaySplit(id, now), checkout.ErrUnderfundedSplit)
}

func TestItemizedSelectionRules(t *testing.T) {
	s := newSession(t)
	_, err := s.AddItemizedSplit([]string{"steak"})
	require.ErrorIs(t, err, checkout.ErrInvalidCommand)

	require.NoError(t, s.SetStrategy(checkout.StrategySplit))
	_, err = s.AddItemizedSplit(nil)
	require.ErrorIs(t, err, checkout.ErrInvalidCommand)
	_, err = s.AddItemizedSplit([]string{"ghost"})
	require.ErrorIs(t, err, checkout.ErrInvalidCommand)

	id, err := s.AddItemizedSplit([]string{"steak"})
	require.NoError(t, err)
	require.NoError(t, s.SetSplitItems(id, []string{"steak", "beer"}))
	require.InDelta(t, 32.205, s.Splits[0].AmountDue, 1e-9)
	require.NoError(t, s.RemoveSplit(id))
	require.Empty(t, s.Splits)
}

func TestPerSplitFiscalInfo(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.SetPaymentMethod("cash"))
	require.NoError(t, s.SetStrategy(checkout.StrategySplit))
	require.NoError(t, s.SetPerSplitDTE(true))
	require.NoError(t, s.ConfigureEqualSplit(2))
	first, second := s.Splits[0].ID, s.Splits[1].ID

	require.NoError(t, s.SetSplitDTE(first, &order.DTE{Type: order.DTECreditoFiscal, NIT: "1"}))
	require.ErrorIs(t, s.PaySplit(first, now), checkout.ErrIncompleteFiscalInfo)
	require.NoError(t, s.SetSplitDTE(first, &order.DTE{Type: order.DTECreditoFiscal, NIT: "1", NRC: "2", CustomerName: "ACME"}))
	require.NoError(t, s.PaySplit(first, now))
	require.NoError(t, s.SetSplitDTE(second, &order.DTE{Type: order.DTEConsumidorFinal}))
	require.NoError(t, s.PaySplit(second, now))

	o, err := s.Finalize(now)
	require.NoError(t, err)
	require.Equal(t, order.DTECreditoFiscal, o.Payments[0].DTE.Type)
	require.Equal(t, order.DTEConsumidorFinal, o.Payments[1].DTE.Type)
}

func TestGlobalFiscalInfoForSplits(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.SetPaymentMethod("cash"))
	require.NoError(t, s.SetDTE(&order.DTE{Type: order.DTECreditoFiscal}))
	require.NoError(t, s.SetStrategy(checkout.StrategySplit))
	require.NoError(t, s.ConfigureEqualSplit(2))
	for _, sp := range s.Splits {
		require.NoError(t, s.PaySplit(sp.ID, now))
	}
	_, err := s.Finalize(now)
	require.ErrorIs(t, err, checkout.ErrIncompleteFiscalInfo)
}

func TestApplyDispatch(t *testing.T) {
	s := newSession(t)
	require.NoError(t, s.Apply(checkout.Command{Type: checkout.CmdSetTip, TipMode: checkout.TipCustom, Amount: 3}, now))
	require.InDelta(t, 3, s.Totals.TipAmount, 1e-9)

	err := s.Apply(checkout.Command{Type: checkout.CmdStagePreset, PresetID: "p1"}, now)
	require.ErrorIs(t, err, discount.ErrStaleCouponOrPreset)

	cmd := checkout.Command{Type: checkout.CmdStageCoupon, CouponCode: "TEN"}.WithPreset(discount.Preset{Name: "Ten", Percentage: 10})
	require.NoError(t, s.Apply(cmd, now))
	require.NoError(t, s.Apply(checkout.Command{Type: checkout.CmdApplyStagedDiscount}, now))
	require.InDelta(t, 2.85, s.Totals.DiscountAmount, 1e-9)

	require.ErrorIs(t, s.Apply(checkout.Command{Type: "teleport"}, now), checkout.ErrInvalidCommand)
}
