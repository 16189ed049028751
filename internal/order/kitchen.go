package order

import (
	"context"
	"sort"
	"time"
)

// Ticket is one line waiting in the kitchen.
type Ticket struct {
	OrderID   string     `json:"orderId"`
	OrderType Type       `json:"orderType"`
	TableID   *string    `json:"tableId,omitempty"`
	ItemID    string     `json:"itemId"`
	Name      string     `json:"name"`
	Quantity  int        `json:"quantity"`
	Notes     string     `json:"notes,omitempty"`
	Status    ItemStatus `json:"status"`
	PlacedAt  time.Time  `json:"placedAt"`
}

// KitchenQueue lists lines from active orders that have not been delivered,
// oldest first. Held orders stay out of the queue.
func (s *Service) KitchenQueue(ctx context.Context) ([]Ticket, error) {
	orders, err := s.Repo.ListOrders(ctx, []Status{StatusOpen, StatusPendingPayment})
	if err != nil {
		return nil, err
	}
	var tickets []Ticket
	for _, o := range orders {
		for _, it := range o.Items {
			if it.Status == ItemDelivered || it.Status == ItemCancelled {
				continue
			}
			tickets = append(tickets, Ticket{
				OrderID:   o.ID,
				OrderType: o.Type,
				TableID:   o.TableID,
				ItemID:    it.ID,
				Name:      it.Name,
				Quantity:  it.Quantity,
				Notes:     it.Notes,
				Status:    it.Status,
				PlacedAt:  o.CreatedAt,
			})
		}
	}
	sort.SliceStable(tickets, func(i, j int) bool { return tickets[i].PlacedAt.Before(tickets[j].PlacedAt) })
	return tickets, nil
}
