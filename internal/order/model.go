package order

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/backend-resto/internal/discount"
	"github.com/noah-isme/backend-resto/internal/pricing"
)

var (
	// ErrNotFound is returned when an order or order item does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrInvalidTransition is returned for status changes the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidOrder is returned when an order payload is inconsistent.
	ErrInvalidOrder = errors.New("invalid order")
)

// Type is the service mode of an order.
type Type string

const (
	TypeDineIn   Type = "Dine-in"
	TypeTakeout  Type = "Takeout"
	TypeDelivery Type = "Delivery"
)

// Status is the lifecycle state of an order.
type Status string

const (
	StatusOpen           Status = "open"
	StatusPendingPayment Status = "pending_payment"
	StatusPaid           Status = "paid"
	StatusCompleted      Status = "completed"
	StatusCancelled      Status = "cancelled"
	StatusOnHold         Status = "on_hold"
)

// Terminal reports whether no further transitions are possible.
func (s Status) Terminal() bool {
	return s == StatusPaid || s == StatusCompleted || s == StatusCancelled
}

var transitions = map[Status][]Status{
	StatusOpen:           {StatusPendingPayment, StatusOnHold, StatusCancelled, StatusPaid},
	StatusPendingPayment: {StatusOpen, StatusPaid, StatusOnHold, StatusCancelled},
	StatusOnHold:         {StatusOpen, StatusPendingPayment, StatusCancelled},
	StatusPaid:           {StatusCompleted},
}

// CanTransition reports whether an order may move from one status to another.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// ItemStatus is the kitchen lifecycle of a single line.
type ItemStatus string

const (
	ItemPending   ItemStatus = "pending"
	ItemPreparing ItemStatus = "preparing"
	ItemReady     ItemStatus = "ready"
	ItemDelivered ItemStatus = "delivered"
	ItemCancelled ItemStatus = "cancelled"
)

var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemPending:   {ItemPreparing, ItemCancelled},
	ItemPreparing: {ItemReady, ItemCancelled},
	ItemReady:     {ItemDelivered, ItemCancelled},
}

// CanTransitionItem reports whether a line may move between kitchen states.
func CanTransitionItem(from, to ItemStatus) bool {
	for _, next := range itemTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Item is an order line.
type Item struct {
	ID         string     `json:"id"`
	MenuItemID string     `json:"menuItemId"`
	Name       string     `json:"name"`
	Price      float64    `json:"price"`
	Quantity   int        `json:"quantity"`
	IsCourtesy bool       `json:"isCourtesy"`
	Status     ItemStatus `json:"status"`
	Notes      string     `json:"notes,omitempty"`
}

// Line converts the item for the pricing engine.
func (i Item) Line() pricing.Line {
	return pricing.Line{
		ID:         i.ID,
		MenuItemID: i.MenuItemID,
		Price:      i.Price,
		Quantity:   i.Quantity,
		IsCourtesy: i.IsCourtesy,
		Cancelled:  i.Status == ItemCancelled,
	}
}

// Fiscal document types.
const (
	DTEConsumidorFinal = "consumidor_final"
	DTECreditoFiscal   = "credito_fiscal"
)

// DTE carries electronic tax invoice data.
type DTE struct {
	Type         string `json:"type"`
	NIT          string `json:"nit,omitempty"`
	NRC          string `json:"nrc,omitempty"`
	CustomerName string `json:"customerName,omitempty"`
}

// RequiresIdentification reports whether the invoice type needs NIT, NRC and name.
func (d DTE) RequiresIdentification() bool {
	return d.Type == DTECreditoFiscal
}

// Complete reports whether the identification fields required by the type are present.
func (d DTE) Complete() bool {
	if !d.RequiresIdentification() {
		return true
	}
	return strings.TrimSpace(d.NIT) != "" &&
		strings.TrimSpace(d.NRC) != "" &&
		strings.TrimSpace(d.CustomerName) != ""
}

// ValidType reports whether the invoice type is known. Empty means no invoice preference.
func (d DTE) ValidType() bool {
	switch d.Type {
	case "", DTEConsumidorFinal, DTECreditoFiscal:
		return true
	}
	return false
}

// Payment is a finalized payment split.
type Payment struct {
	ID         string    `json:"id"`
	AmountDue  float64   `json:"amountDue"`
	AmountPaid float64   `json:"amountPaid"`
	Method     string    `json:"method"`
	ItemIDs    []string  `json:"itemIds,omitempty"`
	DTE        *DTE      `json:"dte,omitempty"`
	PaidAt     time.Time `json:"paidAt"`
}

// AppliedDiscount is the discount committed at checkout.
type AppliedDiscount struct {
	Preset       *discount.Preset `json:"preset,omitempty"`
	ManualAmount float64          `json:"manualAmount"`
}

// Order is the order aggregate.
type Order struct {
	ID                  string          `json:"id"`
	Type                Type            `json:"type"`
	TableID             *string         `json:"tableId,omitempty"`
	Guests              *int            `json:"guests,omitempty"`
	WaiterID            string          `json:"waiterId"`
	Items               []Item          `json:"items"`
	IsCourtesy          bool            `json:"isCourtesy"`
	IsOnHold            bool            `json:"isOnHold"`
	DisableReceiptPrint bool            `json:"disableReceiptPrint"`
	Discount            AppliedDiscount `json:"discount"`
	TipAmount           float64         `json:"tipAmount"`
	Totals              pricing.Totals  `json:"totals"`
	Status              Status          `json:"status"`
	PaymentMethod       string          `json:"paymentMethod,omitempty"`
	DTE                 *DTE            `json:"dte,omitempty"`
	Payments            []Payment       `json:"payments,omitempty"`
	CancelReason        string          `json:"cancelReason,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
	PaidAt              *time.Time      `json:"paidAt,omitempty"`
}

// Lines converts every item for the pricing engine.
func (o Order) Lines() []pricing.Line {
	lines := make([]pricing.Line, 0, len(o.Items))
	for _, it := range o.Items {
		lines = append(lines, it.Line())
	}
	return lines
}

// Item returns a pointer to the item with the given id.
func (o *Order) Item(id string) (*Item, bool) {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i], true
		}
	}
	return nil, false
}

// Recalculate refreshes Totals from the items and the applied discount and tip.
func (o *Order) Recalculate(taxRate float64, categories map[string]string) {
	in := pricing.Input{
		Items:           o.Lines(),
		IsOrderCourtesy: o.IsCourtesy,
		ManualDiscount:  o.Discount.ManualAmount,
		TipAmount:       o.TipAmount,
		TaxRate:         taxRate,
		Categories:      categories,
	}
	if o.Discount.Preset != nil {
		rule := o.Discount.Preset.Rule()
		in.Preset = &rule
	}
	o.Totals = pricing.Calculate(in)
}

// Transition moves the order to the target status.
func (o *Order) Transition(to Status, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.IsOnHold = to == StatusOnHold
	o.UpdatedAt = now
	return nil
}

// Active reports whether the order is still being served.
func (o Order) Active() bool {
	return !o.Status.Terminal()
}

// Clone returns a deep copy of the order.
func (o Order) Clone() Order {
	c := o
	c.Items = append([]Item(nil), o.Items...)
	if o.TableID != nil {
		v := *o.TableID
		c.TableID = &v
	}
	if o.Guests != nil {
		v := *o.Guests
		c.Guests = &v
	}
	if o.Discount.Preset != nil {
		p := *o.Discount.Preset
		p.MenuItemIDs = append([]string(nil), p.MenuItemIDs...)
		p.CategoryIDs = append([]string(nil), p.CategoryIDs...)
		c.Discount.Preset = &p
	}
	if o.DTE != nil {
		d := *o.DTE
		c.DTE = &d
	}
	if o.Payments != nil {
		c.Payments = make([]Payment, len(o.Payments))
		for i, p := range o.Payments {
			p.ItemIDs = append([]string(nil), p.ItemIDs...)
			if p.DTE != nil {
				d := *p.DTE
				p.DTE = &d
			}
			c.Payments[i] = p
		}
	}
	if o.PaidAt != nil {
		t := *o.PaidAt
		c.PaidAt = &t
	}
	return c
}
