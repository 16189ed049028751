package checkout

import (
	"fmt"
	"math"
	"time"

	"github.com/noah-isme/backend-resto/internal/discount"
	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/pricing"
)

// Step is a page of the checkout wizard.
type Step string

const (
	StepSummary  Step = "summary_and_courtesy"
	StepDiscount Step = "discounts_and_tip"
	StepPayment  Step = "payment_method_and_dte"
	StepSplits   Step = "split_payment_details"
)

// Strategy selects between a single payment and split payments.
type Strategy string

const (
	StrategyFull  Strategy = "full"
	StrategySplit Strategy = "split"
)

// SplitKind distinguishes equal shares from item based splits.
type SplitKind string

const (
	SplitEqual    SplitKind = "equal"
	SplitItemized SplitKind = "itemized"
)

// TipMode selects how the tip is derived.
type TipMode string

const (
	TipNone    TipMode = "none"
	TipPercent TipMode = "percent"
	TipCustom  TipMode = "custom"
)

const maxEqualShares = 20

// Tip is the tip configuration. Percent tips are taken from the post-discount subtotal.
type Tip struct {
	Mode  TipMode `json:"mode"`
	Value float64 `json:"value"`
}

// StagedDiscount holds a discount chosen but not yet applied.
type StagedDiscount struct {
	Preset       *discount.Preset `json:"preset,omitempty"`
	ManualAmount float64          `json:"manualAmount"`
}

// Split is one payment share of a split checkout.
type Split struct {
	ID          string         `json:"id"`
	Kind        SplitKind      `json:"kind"`
	ItemIDs     []string       `json:"itemIds,omitempty"`
	Share       *pricing.Share `json:"share,omitempty"`
	AmountDue   float64        `json:"amountDue"`
	AmountToPay float64        `json:"amountToPay"`
	// CustomAmount is set once the cashier edits AmountToPay; otherwise it follows AmountDue.
	CustomAmount bool       `json:"customAmount"`
	AmountPaid   float64    `json:"amountPaid"`
	Method       string     `json:"method,omitempty"`
	DTE          *order.DTE `json:"dte,omitempty"`
	IsPaid       bool       `json:"isPaid"`
	PaidAt       *time.Time `json:"paidAt,omitempty"`
}

// Session is the state of one checkout wizard. Every command mutates the
// session and ends with recompute, so Totals and split amounts always reflect
// the current inputs.
type Session struct {
	ID         string            `json:"id"`
	OrderID    string            `json:"orderId"`
	Order      order.Order       `json:"order"`
	Categories map[string]string `json:"categories,omitempty"`
	TaxRate    float64           `json:"taxRate"`

	Step          Step                  `json:"step"`
	IsCourtesy    bool                  `json:"isCourtesy"`
	IsOnHold      bool                  `json:"isOnHold"`
	Staged        StagedDiscount        `json:"staged"`
	Applied       order.AppliedDiscount `json:"applied"`
	Tip           Tip                   `json:"tip"`
	Strategy      Strategy              `json:"strategy"`
	SplitKind     SplitKind             `json:"splitKind,omitempty"`
	PaymentMethod string                `json:"paymentMethod,omitempty"`
	DTE           *order.DTE            `json:"dte,omitempty"`
	PerSplitDTE   bool                  `json:"perSplitDte"`
	Splits        []Split               `json:"splits,omitempty"`
	SplitSeq      int                   `json:"splitSeq"`

	Totals     pricing.Totals `json:"totals"`
	PaidAmount float64        `json:"paidAmount"`
	Balance    float64        `json:"balance"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewSession opens a checkout over a snapshot of the order.
func NewSession(id string, o order.Order, categories map[string]string, taxRate float64, tip Tip, now time.Time) *Session {
	s := &Session{
		ID:         id,
		OrderID:    o.ID,
		Order:      o.Clone(),
		Categories: categories,
		TaxRate:    taxRate,
		Step:       StepSummary,
		IsCourtesy: o.IsCourtesy,
		Applied:    o.Discount,
		Tip:        tip,
		Strategy:   StrategyFull,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if s.Tip.Mode == "" {
		s.Tip.Mode = TipNone
	}
	s.recompute()
	return s
}

// PaymentsStarted reports whether any split has been paid.
func (s *Session) PaymentsStarted() bool {
	for _, sp := range s.Splits {
		if sp.IsPaid {
			return true
		}
	}
	return false
}

func (s *Session) split(id string) (*Split, error) {
	for i := range s.Splits {
		if s.Splits[i].ID == id {
			return &s.Splits[i], nil
		}
	}
	return nil, fmt.Errorf("%w: unknown split %q", ErrInvalidCommand, id)
}

func (s *Session) editableSplit(id string) (*Split, error) {
	sp, err := s.split(id)
	if err != nil {
		return nil, err
	}
	if sp.IsPaid {
		return nil, fmt.Errorf("%w: %s", ErrSplitFrozen, id)
	}
	return sp, nil
}

func (s *Session) ensureAmountsOpen() error {
	if s.PaymentsStarted() {
		return ErrPaymentsStarted
	}
	return nil
}

// SetOrderCourtesy waives the whole order.
func (s *Session) SetOrderCourtesy(on bool) error {
	if err := s.ensureAmountsOpen(); err != nil {
		return err
	}
	s.IsCourtesy = on
	s.recompute()
	return nil
}

// SetOnHold marks the order to be parked instead of paid on finalize. An
// order with paid splits cannot be parked; it has to be settled or abandoned.
func (s *Session) SetOnHold(on bool) error {
	if on && s.PaymentsStarted() {
		return ErrPaymentsStarted
	}
	s.IsOnHold = on
	s.recompute()
	return nil
}

// SetItemCourtesy waives a single line.
func (s *Session) SetItemCourtesy(itemID string, on bool) error {
	if err := s.ensureAmountsOpen(); err != nil {
		return err
	}
	it, ok := s.Order.Item(itemID)
	if !ok {
		return fmt.Errorf("%w: unknown item %q", ErrInvalidCommand, itemID)
	}
	if it.Status == order.ItemCancelled {
		return fmt.Errorf("%w: item %q is cancelled", ErrInvalidCommand, itemID)
	}
	it.IsCourtesy = on
	s.recompute()
	return nil
}

// StagePreset selects a preset discount without applying it.
func (s *Session) StagePreset(p discount.Preset) error {
	if err := p.Check(); err != nil {
		return err
	}
	s.Staged.Preset = &p
	s.recompute()
	return nil
}

// StageManualDiscount selects a fixed manual discount without applying it.
func (s *Session) StageManualDiscount(amount float64) error {
	if err := discount.ValidateManual(amount); err != nil {
		return err
	}
	s.Staged.ManualAmount = amount
	s.recompute()
	return nil
}

// ApplyStagedDiscount commits the staged discount to the totals.
func (s *Session) ApplyStagedDiscount() error {
	if err := s.ensureAmountsOpen(); err != nil {
		return err
	}
	s.Applied = order.AppliedDiscount{Preset: s.Staged.Preset, ManualAmount: s.Staged.ManualAmount}
	s.recompute()
	return nil
}

// ClearDiscount drops both the staged and the applied discount.
func (s *Session) ClearDiscount() error {
	if err := s.ensureAmountsOpen(); err != nil {
		return err
	}
	s.Staged = StagedDiscount{}
	s.Applied = order.AppliedDiscount{}
	s.recompute()
	return nil
}

// SetTip configures the tip.
func (s *Session) SetTip(mode TipMode, value float64) error {
	if err := s.ensureAmountsOpen(); err != nil {
		return err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value < 0 {
		return fmt.Errorf("%w: tip must be a non-negative amount", ErrInvalidCommand)
	}
	switch mode {
	case TipNone:
		value = 0
	case TipPercent:
		if value > 100 {
			return fmt.Errorf("%w: tip percentage must be within [0,100]", ErrInvalidCommand)
		}
	case TipCustom:
	default:
		return fmt.Errorf("%w: unknown tip mode %q", ErrInvalidCommand, mode)
	}
	s.Tip = Tip{Mode: mode, Value: value}
	s.recompute()
	return nil
}

// SetStrategy chooses between a single payment and split payments.
func (s *Session) SetStrategy(strategy Strategy) error {
	switch strategy {
	case StrategyFull:
		if s.PaymentsStarted() {
			return ErrPaymentsStarted
		}
		s.Splits = nil
		s.SplitKind = ""
		if s.Step == StepSplits {
			s.Step = StepPayment
		}
	case StrategySplit:
	default:
		return fmt.Errorf("%w: unknown strategy %q", ErrInvalidCommand, strategy)
	}
	s.Strategy = strategy
	s.recompute()
	return nil
}

// SetPaymentMethod sets the method of a full payment and the default of new splits.
func (s *Session) SetPaymentMethod(method string) error {
	s.PaymentMethod = method
	s.recompute()
	return nil
}

// SetDTE sets the order level invoice. Nil clears it.
func (s *Session) SetDTE(dte *order.DTE) error {
	if dte != nil && !dte.ValidType() {
		return fmt.Errorf("%w: unknown invoice type %q", ErrInvalidCommand, dte.Type)
	}
	s.DTE = dte
	s.recompute()
	return nil
}

// SetPerSplitDTE toggles one invoice per split instead of one for the order.
func (s *Session) SetPerSplitDTE(on bool) error {
	s.PerSplitDTE = on
	s.recompute()
	return nil
}

func (s *Session) requireSplit() error {
	if s.Strategy != StrategySplit {
		return fmt.Errorf("%w: payment strategy is not split", ErrInvalidCommand)
	}
	return nil
}

func (s *Session) nextSplitID() string {
	s.SplitSeq++
	return fmt.Sprintf("split-%d", s.SplitSeq)
}

// ConfigureEqualSplit replaces the splits with n equal shares.
func (s *Session) ConfigureEqualSplit(n int) error {
	if err := s.requireSplit(); err != nil {
		return err
	}
	if err := s.ensureAmountsOpen(); err != nil {
		return err
	}
	if n < 2 || n > maxEqualShares {
		return fmt.Errorf("%w: equal split needs between 2 and %d shares", ErrInvalidCommand, maxEqualShares)
	}
	s.SplitKind = SplitEqual
	s.Splits = make([]Split, 0, n)
	for i := 0; i < n; i++ {
		s.Splits = append(s.Splits, Split{ID: s.nextSplitID(), Kind: SplitEqual, Method: s.PaymentMethod})
	}
	s.recompute()
	return nil
}

// AddItemizedSplit adds a split covering the given items.
func (s *Session) AddItemizedSplit(itemIDs []string) (string, error) {
	if err := s.requireSplit(); err != nil {
		return "", err
	}
	if s.SplitKind == SplitEqual {
		if s.PaymentsStarted() {
			return "", ErrPaymentsStarted
		}
		s.Splits = nil
	}
	if err := s.checkSelection("", itemIDs); err != nil {
		return "", err
	}
	s.SplitKind = SplitItemized
	id := s.nextSplitID()
	s.Splits = append(s.Splits, Split{
		ID:      id,
		Kind:    SplitItemized,
		ItemIDs: append([]string(nil), itemIDs...),
		Method:  s.PaymentMethod,
	})
	s.recompute()
	return id, nil
}

// SetSplitItems replaces the item selection of an unpaid itemized split.
func (s *Session) SetSplitItems(splitID string, itemIDs []string) error {
	sp, err := s.editableSplit(splitID)
	if err != nil {
		return err
	}
	if sp.Kind != SplitItemized {
		return fmt.Errorf("%w: split %q is not itemized", ErrInvalidCommand, splitID)
	}
	if err := s.checkSelection(splitID, itemIDs); err != nil {
		return err
	}
	sp.ItemIDs = append([]string(nil), itemIDs...)
	s.recompute()
	return nil
}

// checkSelection rejects empty selections, unknown or cancelled items, and
// items already held by a split other than self.
func (s *Session) checkSelection(self string, itemIDs []string) error {
	if len(itemIDs) == 0 {
		return fmt.Errorf("%w: select at least one item", ErrInvalidCommand)
	}
	seen := make(map[string]bool, len(itemIDs))
	for _, id := range itemIDs {
		it, ok := s.Order.Item(id)
		if !ok {
			return fmt.Errorf("%w: unknown item %q", ErrInvalidCommand, id)
		}
		if it.Status == order.ItemCancelled {
			return fmt.Errorf("%w: item %q is cancelled", ErrInvalidCommand, id)
		}
		if seen[id] {
			return fmt.Errorf("%w: item %q selected twice", ErrInvalidCommand, id)
		}
		seen[id] = true
	}
	for _, sp := range s.Splits {
		if sp.ID == self {
			continue
		}
		for _, id := range sp.ItemIDs {
			if seen[id] {
				return fmt.Errorf("%w: %s", ErrItemAlreadyCovered, id)
			}
		}
	}
	return nil
}

// RemoveSplit deletes an unpaid split. Once shares are paid, the last unpaid
// equal share carries the balance and cannot be removed.
func (s *Session) RemoveSplit(splitID string) error {
	sp, err := s.editableSplit(splitID)
	if err != nil {
		return err
	}
	if sp.Kind == SplitEqual && s.PaymentsStarted() && s.unpaidSplits() == 1 {
		return fmt.Errorf("%w: split %s carries the remaining balance", ErrUnderfundedSplit, splitID)
	}
	kept := s.Splits[:0]
	for _, sp := range s.Splits {
		if sp.ID != splitID {
			kept = append(kept, sp)
		}
	}
	s.Splits = kept
	if len(s.Splits) == 0 {
		s.SplitKind = ""
	}
	s.recompute()
	return nil
}

// SetSplitAmount sets the amount the guest hands over for a split.
func (s *Session) SetSplitAmount(splitID string, amount float64) error {
	sp, err := s.editableSplit(splitID)
	if err != nil {
		return err
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return fmt.Errorf("%w: amount must be non-negative", ErrInvalidCommand)
	}
	if pricing.Exceeds(amount, sp.AmountDue) {
		return fmt.Errorf("%w: %.2f > %.2f", ErrOverpayment, amount, sp.AmountDue)
	}
	sp.AmountToPay = amount
	sp.CustomAmount = true
	s.recompute()
	return nil
}

// SetSplitMethod sets the payment method of a split.
func (s *Session) SetSplitMethod(splitID, method string) error {
	sp, err := s.editableSplit(splitID)
	if err != nil {
		return err
	}
	sp.Method = method
	s.recompute()
	return nil
}

// SetSplitDTE sets the invoice of a split. Nil clears it.
func (s *Session) SetSplitDTE(splitID string, dte *order.DTE) error {
	sp, err := s.editableSplit(splitID)
	if err != nil {
		return err
	}
	if dte != nil && !dte.ValidType() {
		return fmt.Errorf("%w: unknown invoice type %q", ErrInvalidCommand, dte.Type)
	}
	sp.DTE = dte
	s.recompute()
	return nil
}

// PaySplit records the payment of a split and freezes it.
func (s *Session) PaySplit(splitID string, now time.Time) error {
	if err := s.requireSplit(); err != nil {
		return err
	}
	if s.IsOnHold {
		return fmt.Errorf("%w: order is on hold", ErrInvalidCommand)
	}
	sp, err := s.editableSplit(splitID)
	if err != nil {
		return err
	}
	if sp.Method == "" {
		return fmt.Errorf("%w: split %s", ErrMissingPaymentMethod, splitID)
	}
	if sp.AmountToPay <= 0 {
		return fmt.Errorf("%w: split %s has nothing to pay", ErrInvalidCommand, splitID)
	}
	if pricing.Exceeds(sp.AmountToPay, sp.AmountDue) {
		return fmt.Errorf("%w: %.2f > %.2f", ErrOverpayment, sp.AmountToPay, sp.AmountDue)
	}
	if sp.Kind == SplitItemized && !pricing.Covers(sp.AmountToPay, sp.AmountDue) {
		return fmt.Errorf("%w: itemized split %s must be paid in full", ErrUnderfundedSplit, splitID)
	}
	if sp.Kind == SplitEqual && s.unpaidSplits() == 1 && !pricing.Covers(sp.AmountToPay, sp.AmountDue) {
		return fmt.Errorf("%w: last share %s must cover the balance", ErrUnderfundedSplit, splitID)
	}
	if s.PerSplitDTE && sp.DTE != nil && !sp.DTE.Complete() {
		return fmt.Errorf("%w: split %s", ErrIncompleteFiscalInfo, splitID)
	}
	paidAt := now
	sp.IsPaid = true
	sp.AmountPaid = sp.AmountToPay
	sp.PaidAt = &paidAt
	s.recompute()
	return nil
}

func (s *Session) unpaidSplits() int {
	n := 0
	for _, sp := range s.Splits {
		if !sp.IsPaid {
			n++
		}
	}
	return n
}

// Next advances the wizard.
func (s *Session) Next() error {
	switch s.Step {
	case StepSummary:
		s.Step = StepDiscount
	case StepDiscount:
		s.Step = StepPayment
	case StepPayment:
		if s.Strategy != StrategySplit {
			return fmt.Errorf("%w: no step after %s", ErrInvalidStep, s.Step)
		}
		s.Step = StepSplits
	default:
		return fmt.Errorf("%w: no step after %s", ErrInvalidStep, s.Step)
	}
	s.recompute()
	return nil
}

// Back returns to the previous wizard page.
func (s *Session) Back() error {
	switch s.Step {
	case StepDiscount:
		s.Step = StepSummary
	case StepPayment:
		s.Step = StepDiscount
	case StepSplits:
		s.Step = StepPayment
	default:
		return fmt.Errorf("%w: no step before %s", ErrInvalidStep, s.Step)
	}
	s.recompute()
	return nil
}

// Validate reports the first reason the checkout cannot be finalized.
func (s *Session) Validate() error {
	if s.IsOnHold || s.IsCourtesy {
		return nil
	}
	if s.Strategy == StrategySplit {
		return s.validateSplits()
	}
	if s.PaymentMethod == "" && s.Totals.TotalAmount > pricing.Epsilon {
		return ErrMissingPaymentMethod
	}
	if s.DTE != nil && !s.DTE.Complete() {
		return ErrIncompleteFiscalInfo
	}
	return nil
}

func (s *Session) validateSplits() error {
	if !pricing.Covers(s.PaidAmount, s.Totals.TotalAmount) {
		return fmt.Errorf("%w: paid %.2f of %.2f", ErrUnderfundedSplit, s.PaidAmount, s.Totals.TotalAmount)
	}
	if !s.PerSplitDTE {
		if s.DTE != nil && !s.DTE.Complete() {
			return ErrIncompleteFiscalInfo
		}
		return nil
	}
	for _, sp := range s.Splits {
		if sp.IsPaid && sp.DTE != nil && !sp.DTE.Complete() {
			return fmt.Errorf("%w: split %s", ErrIncompleteFiscalInfo, sp.ID)
		}
	}
	return nil
}

// Finalize validates the session and returns the order to persist.
func (s *Session) Finalize(now time.Time) (order.Order, error) {
	if err := s.Validate(); err != nil {
		return order.Order{}, err
	}
	o := s.Order.Clone()
	o.IsCourtesy = s.IsCourtesy
	o.Discount = s.Applied
	o.TipAmount = s.Totals.TipAmount
	o.Totals = s.Totals
	o.UpdatedAt = now

	if s.IsOnHold {
		o.PaymentMethod = ""
		o.Payments = s.paidPayments(now)
		if o.Status != order.StatusOnHold {
			if err := o.Transition(order.StatusOnHold, now); err != nil {
				return order.Order{}, err
			}
		}
		return o, nil
	}

	o.PaymentMethod = s.PaymentMethod
	o.DTE = s.DTE
	o.Payments = nil
	switch {
	case s.Strategy == StrategySplit && !s.IsCourtesy:
		o.Payments = s.paidPayments(now)
	case s.Totals.TotalAmount > pricing.Epsilon:
		o.Payments = []order.Payment{{
			ID:         s.ID,
			AmountDue:  s.Totals.TotalAmount,
			AmountPaid: s.Totals.TotalAmount,
			Method:     s.PaymentMethod,
			DTE:        s.DTE,
			PaidAt:     now,
		}}
	}
	if err := o.Transition(order.StatusPaid, now); err != nil {
		return order.Order{}, err
	}
	paidAt := now
	o.PaidAt = &paidAt
	return o, nil
}

// paidPayments converts the paid splits into order payments.
func (s *Session) paidPayments(now time.Time) []order.Payment {
	var out []order.Payment
	for _, sp := range s.Splits {
		if !sp.IsPaid {
			continue
		}
		p := order.Payment{
			ID:         sp.ID,
			AmountDue:  sp.AmountDue,
			AmountPaid: sp.AmountPaid,
			Method:     sp.Method,
			ItemIDs:    append([]string(nil), sp.ItemIDs...),
			PaidAt:     now,
		}
		if sp.PaidAt != nil {
			p.PaidAt = *sp.PaidAt
		}
		if s.PerSplitDTE {
			p.DTE = sp.DTE
		}
		out = append(out, p)
	}
	return out
}

// recompute is the single transition that refreshes totals and split amounts
// from the session inputs.
func (s *Session) recompute() {
	in := pricing.Input{
		Items:           s.Order.Lines(),
		IsOrderCourtesy: s.IsCourtesy,
		ManualDiscount:  s.Applied.ManualAmount,
		TaxRate:         s.TaxRate,
		Categories:      s.Categories,
	}
	if s.Applied.Preset != nil {
		rule := s.Applied.Preset.Rule()
		in.Preset = &rule
	}
	switch s.Tip.Mode {
	case TipPercent:
		base := pricing.Calculate(in)
		in.TipAmount = base.Taxable() * s.Tip.Value / 100
	case TipCustom:
		in.TipAmount = s.Tip.Value
	}
	s.Totals = pricing.Calculate(in)

	switch s.SplitKind {
	case SplitEqual:
		s.recomputeEqual()
	case SplitItemized:
		s.recomputeItemized()
	}

	s.PaidAmount = 0
	for _, sp := range s.Splits {
		if sp.IsPaid {
			s.PaidAmount += sp.AmountPaid
		}
	}
	s.Balance = math.Max(0, s.Totals.TotalAmount-s.PaidAmount)
	if pricing.NearlyEqual(s.PaidAmount, s.Totals.TotalAmount) {
		s.Balance = 0
	}
}

func (s *Session) recomputeEqual() {
	var (
		paid   float64
		unpaid int
	)
	for _, sp := range s.Splits {
		if sp.IsPaid {
			paid += sp.AmountPaid
		} else {
			unpaid++
		}
	}
	due := pricing.EqualShare(s.Totals.TotalAmount, paid, unpaid)
	for i := range s.Splits {
		sp := &s.Splits[i]
		if sp.IsPaid {
			continue
		}
		sp.AmountDue = due
		if !sp.CustomAmount {
			sp.AmountToPay = due
		}
	}
}

func (s *Session) recomputeItemized() {
	lines := s.Order.Lines()
	covered := make(map[string]bool)
	var consumed float64
	for _, sp := range s.Splits {
		if !sp.IsPaid {
			continue
		}
		for _, id := range sp.ItemIDs {
			covered[id] = true
		}
		if sp.Share != nil {
			consumed += sp.Share.Discount
		}
	}
	pool := pricing.UncoveredSubtotal(lines, covered)
	for i := range s.Splits {
		sp := &s.Splits[i]
		if sp.IsPaid {
			continue
		}
		selected := make([]pricing.Line, 0, len(sp.ItemIDs))
		for _, id := range sp.ItemIDs {
			if it, ok := s.Order.Item(id); ok {
				selected = append(selected, it.Line())
			}
		}
		share := pricing.AllocateSplit(pricing.SplitInput{
			Selected:                      selected,
			Overall:                       s.Totals,
			TipAmount:                     s.Totals.TipAmount,
			UncoveredDiscountableSubtotal: pool,
			ConsumedDiscount:              consumed,
			TaxRate:                       s.TaxRate,
		})
		sp.Share = &share
		sp.AmountDue = share.Total
		if !sp.CustomAmount {
			sp.AmountToPay = share.Total
		}
	}
}
