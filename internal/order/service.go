package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/events"
	"github.com/noah-isme/backend-resto/internal/lock"
	"github.com/noah-isme/backend-resto/internal/menu"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/store"
)

// Repository persists orders.
type Repository interface {
	CreateOrder(ctx context.Context, o Order) error
	GetOrder(ctx context.Context, id string) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	ListOrders(ctx context.Context, statuses []Status) ([]Order, error)
}

// MenuReader resolves menu items and their categories.
type MenuReader interface {
	Orderable(ctx context.Context, id string) (menu.Item, error)
	CategoryIndex(ctx context.Context) (map[string]string, error)
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Service implements order tracking: creation, kitchen progress, seating edits
// and settlement after checkout. Every read-modify-write of a stored order
// runs under Locker so kitchen updates and settlement cannot overwrite each other.
type Service struct {
	Repo    Repository
	Menu    MenuReader
	Events  Emitter
	Locker  lock.Locker
	LockTTL time.Duration
	TaxRate float64
	Logger  zerolog.Logger
	Now     func() time.Time
}

// ItemInput is a line requested when sending an order to the kitchen.
type ItemInput struct {
	MenuItemID string `json:"menuItemId" validate:"required"`
	Quantity   int    `json:"quantity" validate:"gte=1,lte=99"`
	IsCourtesy bool   `json:"isCourtesy"`
	Notes      string `json:"notes" validate:"max=200"`
}

// CreateInput is the payload for sending a new order to the kitchen.
type CreateInput struct {
	Type                Type        `json:"type" validate:"required,oneof=Dine-in Takeout Delivery"`
	TableID             *string     `json:"tableId"`
	Guests              *int        `json:"guests" validate:"omitempty,gte=1,lte=50"`
	WaiterID            string      `json:"waiterId" validate:"required"`
	DisableReceiptPrint bool        `json:"disableReceiptPrint"`
	Items               []ItemInput `json:"items" validate:"required,min=1,dive"`
}

// SeatingInput edits the table and guest count of a dine-in order.
type SeatingInput struct {
	TableID *string `json:"tableId"`
	Guests  *int    `json:"guests" validate:"omitempty,gte=1,lte=50"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Create sends a new order to the kitchen, snapshotting menu prices.
func (s *Service) Create(ctx context.Context, in CreateInput) (Order, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Order{}, err
	}
	if in.Type == TypeDineIn && (in.TableID == nil || *in.TableID == "") {
		return Order{}, fmt.Errorf("%w: dine-in orders need a table", ErrInvalidOrder)
	}
	now := s.now()
	o := Order{
		ID:                  uuid.NewString(),
		Type:                in.Type,
		TableID:             in.TableID,
		Guests:              in.Guests,
		WaiterID:            in.WaiterID,
		DisableReceiptPrint: in.DisableReceiptPrint,
		Status:              StatusOpen,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	for _, req := range in.Items {
		mi, err := s.Menu.Orderable(ctx, req.MenuItemID)
		if err != nil {
			return Order{}, err
		}
		o.Items = append(o.Items, Item{
			ID:         uuid.NewString(),
			MenuItemID: mi.ID,
			Name:       mi.Name,
			Price:      mi.Price,
			Quantity:   req.Quantity,
			IsCourtesy: req.IsCourtesy,
			Status:     ItemPending,
			Notes:      req.Notes,
		})
	}
	if err := s.recalculate(ctx, &o); err != nil {
		return Order{}, err
	}
	if err := s.Repo.CreateOrder(ctx, o); err != nil {
		return Order{}, err
	}
	obs.ObserveOrderCreated(string(o.Type))
	s.emit(ctx, events.TopicOrderCreated, o)
	s.Logger.Info().Str("order_id", o.ID).Str("type", string(o.Type)).Int("items", len(o.Items)).Msg("order sent to kitchen")
	return o, nil
}

// Get returns an order by id.
func (s *Service) Get(ctx context.Context, id string) (Order, error) {
	o, err := s.Repo.GetOrder(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Order{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return o, err
}

// List returns orders filtered by status, newest first. No statuses means every order.
func (s *Service) List(ctx context.Context, statuses []Status) ([]Order, error) {
	orders, err := s.Repo.ListOrders(ctx, statuses)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(orders, func(i, j int) bool { return orders[i].CreatedAt.After(orders[j].CreatedAt) })
	return orders, nil
}

// Active lists orders that are still being served.
func (s *Service) Active(ctx context.Context) ([]Order, error) {
	return s.List(ctx, []Status{StatusOpen, StatusPendingPayment, StatusOnHold})
}

// UpdateItemStatus moves one line through the kitchen lifecycle.
func (s *Service) UpdateItemStatus(ctx context.Context, orderID, itemID string, to ItemStatus) (Order, error) {
	var (
		o    Order
		from ItemStatus
	)
	err := s.withOrder(ctx, orderID, func(ctx context.Context) error {
		var err error
		o, err = s.mutable(ctx, orderID)
		if err != nil {
			return err
		}
		it, ok := o.Item(itemID)
		if !ok {
			return fmt.Errorf("%w: item %s", ErrNotFound, itemID)
		}
		if !CanTransitionItem(it.Status, to) {
			return fmt.Errorf("%w: item %s -> %s", ErrInvalidTransition, it.Status, to)
		}
		from = it.Status
		it.Status = to
		o.UpdatedAt = s.now()
		if to == ItemCancelled {
			if err := s.recalculate(ctx, &o); err != nil {
				return err
			}
		}
		return s.Repo.UpdateOrder(ctx, o)
	})
	if err != nil {
		return Order{}, err
	}
	s.emit(ctx, events.TopicOrderItemStatusChanged, map[string]any{
		"orderId": o.ID,
		"itemId":  itemID,
		"from":    from,
		"to":      to,
	})
	return o, nil
}

// UpdateSeating edits the table and guest count.
func (s *Service) UpdateSeating(ctx context.Context, orderID string, in SeatingInput) (Order, error) {
	if err := common.ValidateStruct(in); err != nil {
		return Order{}, err
	}
	var o Order
	err := s.withOrder(ctx, orderID, func(ctx context.Context) error {
		var err error
		o, err = s.mutable(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Type != TypeDineIn {
			return fmt.Errorf("%w: only dine-in orders have seating", ErrInvalidOrder)
		}
		if in.TableID != nil {
			if *in.TableID == "" {
				return fmt.Errorf("%w: dine-in orders need a table", ErrInvalidOrder)
			}
			o.TableID = in.TableID
		}
		if in.Guests != nil {
			o.Guests = in.Guests
		}
		o.UpdatedAt = s.now()
		return s.Repo.UpdateOrder(ctx, o)
	})
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// Hold parks an order.
func (s *Service) Hold(ctx context.Context, orderID string) (Order, error) {
	return s.transition(ctx, orderID, StatusOnHold, events.TopicOrderOnHold)
}

// Resume reopens a held order.
func (s *Service) Resume(ctx context.Context, orderID string) (Order, error) {
	return s.transition(ctx, orderID, StatusOpen, "")
}

// Complete closes a paid order.
func (s *Service) Complete(ctx context.Context, orderID string) (Order, error) {
	return s.transition(ctx, orderID, StatusCompleted, events.TopicOrderCompleted)
}

// Cancel voids an order that has not been paid.
func (s *Service) Cancel(ctx context.Context, orderID, reason string) (Order, error) {
	var o Order
	err := s.withOrder(ctx, orderID, func(ctx context.Context) error {
		var err error
		o, err = s.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if err := o.Transition(StatusCancelled, s.now()); err != nil {
			return err
		}
		o.CancelReason = reason
		return s.Repo.UpdateOrder(ctx, o)
	})
	if err != nil {
		return Order{}, err
	}
	s.emit(ctx, events.TopicOrderCancelled, o)
	return o, nil
}

// BeginCheckout moves an order into payment and returns it along with the
// category index used to price it.
func (s *Service) BeginCheckout(ctx context.Context, orderID string) (Order, map[string]string, error) {
	var o Order
	err := s.withOrder(ctx, orderID, func(ctx context.Context) error {
		var err error
		o, err = s.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status == StatusPendingPayment {
			return nil
		}
		if err := o.Transition(StatusPendingPayment, s.now()); err != nil {
			return err
		}
		return s.Repo.UpdateOrder(ctx, o)
	})
	if err != nil {
		return Order{}, nil, err
	}
	categories, err := s.Menu.CategoryIndex(ctx)
	if err != nil {
		return Order{}, nil, err
	}
	return o, categories, nil
}

// AbandonCheckout returns an order in payment to the open state.
func (s *Service) AbandonCheckout(ctx context.Context, orderID string) error {
	return s.withOrder(ctx, orderID, func(ctx context.Context) error {
		o, err := s.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if o.Status != StatusPendingPayment {
			return nil
		}
		if err := o.Transition(StatusOpen, s.now()); err != nil {
			return err
		}
		return s.Repo.UpdateOrder(ctx, o)
	})
}

// Settle stores the order produced by a finalized checkout.
func (s *Service) Settle(ctx context.Context, settled Order) (Order, error) {
	err := s.withOrder(ctx, settled.ID, func(ctx context.Context) error {
		current, err := s.Get(ctx, settled.ID)
		if err != nil {
			return err
		}
		if !CanTransition(current.Status, settled.Status) && current.Status != settled.Status {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, settled.Status)
		}
		if err := mergeKitchenProgress(current, &settled); err != nil {
			return err
		}
		settled.CreatedAt = current.CreatedAt
		settled.UpdatedAt = s.now()
		return s.Repo.UpdateOrder(ctx, settled)
	})
	if err != nil {
		return Order{}, err
	}
	switch settled.Status {
	case StatusPaid:
		s.emit(ctx, events.TopicOrderPaid, settled)
	case StatusOnHold:
		s.emit(ctx, events.TopicOrderOnHold, settled)
	}
	s.Logger.Info().
		Str("order_id", settled.ID).
		Str("status", string(settled.Status)).
		Float64("total", settled.Totals.TotalAmount).
		Msg("order settled")
	return settled, nil
}

// mergeKitchenProgress carries item statuses changed by the kitchen while the
// checkout was open. A line cancelled or added in the meantime changes the
// totals, so the checkout has to be restarted.
func mergeKitchenProgress(current Order, settled *Order) error {
	if len(current.Items) != len(settled.Items) {
		return fmt.Errorf("%w: order changed during checkout", ErrInvalidOrder)
	}
	for i := range settled.Items {
		cur, ok := current.Item(settled.Items[i].ID)
		if !ok || (cur.Status == ItemCancelled) != (settled.Items[i].Status == ItemCancelled) {
			return fmt.Errorf("%w: order changed during checkout", ErrInvalidOrder)
		}
		settled.Items[i].Status = cur.Status
	}
	return nil
}

func (s *Service) transition(ctx context.Context, orderID string, to Status, topic string) (Order, error) {
	var o Order
	err := s.withOrder(ctx, orderID, func(ctx context.Context) error {
		var err error
		o, err = s.Get(ctx, orderID)
		if err != nil {
			return err
		}
		if err := o.Transition(to, s.now()); err != nil {
			return err
		}
		return s.Repo.UpdateOrder(ctx, o)
	})
	if err != nil {
		return Order{}, err
	}
	if topic != "" {
		s.emit(ctx, topic, o)
	}
	return o, nil
}

func (s *Service) withOrder(ctx context.Context, orderID string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	return s.Locker.WithLock(ctx, "order:"+orderID, s.LockTTL, fn)
}

func (s *Service) mutable(ctx context.Context, orderID string) (Order, error) {
	o, err := s.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if o.Status.Terminal() {
		return Order{}, fmt.Errorf("%w: order is %s", ErrInvalidTransition, o.Status)
	}
	return o, nil
}

func (s *Service) recalculate(ctx context.Context, o *Order) error {
	categories, err := s.Menu.CategoryIndex(ctx)
	if err != nil {
		return err
	}
	o.Recalculate(s.TaxRate, categories)
	return nil
}

func (s *Service) emit(ctx context.Context, topic string, payload any) {
	if s.Events == nil {
		return
	}
	aggregate := ""
	switch v := payload.(type) {
	case Order:
		aggregate = v.ID
	case map[string]any:
		aggregate, _ = v["orderId"].(string)
	}
	if _, err := s.Events.Emit(ctx, topic, aggregate, payload); err != nil {
		s.Logger.Error().Err(err).Str("topic", topic).Str("order_id", aggregate).Msg("emit order event")
	}
}
