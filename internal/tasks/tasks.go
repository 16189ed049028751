// Package tasks defines the background jobs produced by order events and the
// asynq handlers that process them.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/events"
	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/receipt"
	"github.com/noah-isme/backend-resto/internal/resilience"
)

// Task types.
const (
	TypeKitchenTicket = "kitchen:ticket"
	TypeReceiptPrint  = "receipt:print"
)

// Queue names.
const (
	QueueKitchen  = "kitchen"
	QueueReceipts = "receipts"
)

const defaultMaxRetry = 5

// Client is the subset of *asynq.Client used to enqueue jobs.
type Client interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Enqueuer turns domain events into background jobs. It implements
// events.Notifier.
type Enqueuer struct {
	Client   Client
	Breaker  *resilience.Breaker
	MaxRetry int
	Timeout  time.Duration
	Logger   zerolog.Logger
}

// Notify schedules a kitchen ticket for new orders and a receipt for paid
// orders that did not opt out of printing.
func (e *Enqueuer) Notify(ctx context.Context, ev events.Event) error {
	if e == nil || e.Client == nil {
		return nil
	}
	switch ev.Topic {
	case events.TopicOrderCreated:
		return e.enqueue(ctx, TypeKitchenTicket, QueueKitchen, ev)
	case events.TopicOrderPaid:
		var o order.Order
		if err := json.Unmarshal(ev.Payload, &o); err != nil {
			return fmt.Errorf("decode paid order: %w", err)
		}
		if o.DisableReceiptPrint {
			return nil
		}
		return e.enqueue(ctx, TypeReceiptPrint, QueueReceipts, ev)
	}
	return nil
}

func (e *Enqueuer) enqueue(ctx context.Context, kind, queue string, ev events.Event) error {
	maxRetry := e.MaxRetry
	if maxRetry <= 0 {
		maxRetry = defaultMaxRetry
	}
	opts := []asynq.Option{
		asynq.Queue(queue),
		asynq.MaxRetry(maxRetry),
		asynq.TaskID(kind + ":" + ev.AggregateID),
	}
	if e.Timeout > 0 {
		opts = append(opts, asynq.Timeout(e.Timeout))
	}
	var info *asynq.TaskInfo
	err := e.Breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		info, err = e.Client.EnqueueContext(ctx, asynq.NewTask(kind, ev.Payload), opts...)
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			return nil
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", kind, err)
	}
	if info == nil {
		return nil
	}
	e.Logger.Debug().Str("task_id", info.ID).Str("type", kind).Str("order_id", ev.AggregateID).Msg("task enqueued")
	return nil
}

// Printer renders documents and stores them in Dir.
type Printer struct {
	Renderer receipt.Renderer
	Dir      string
	Logger   zerolog.Logger
}

// Register installs the handlers on mux.
func (p *Printer) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(TypeKitchenTicket, p.HandleKitchenTicket)
	mux.HandleFunc(TypeReceiptPrint, p.HandleReceipt)
}

// HandleKitchenTicket renders the kitchen ticket of a new order.
func (p *Printer) HandleKitchenTicket(_ context.Context, t *asynq.Task) error {
	o, err := decodeOrder(t)
	if err != nil {
		return err
	}
	data, err := p.Renderer.KitchenTicket(o)
	if err != nil {
		return err
	}
	return p.store(o.ID+"-ticket.pdf", t.Type(), o.ID, data)
}

// HandleReceipt renders the receipt of a paid order.
func (p *Printer) HandleReceipt(_ context.Context, t *asynq.Task) error {
	o, err := decodeOrder(t)
	if err != nil {
		return err
	}
	if o.DisableReceiptPrint {
		return nil
	}
	data, err := p.Renderer.Receipt(o)
	if err != nil {
		return err
	}
	return p.store(o.ID+"-receipt.pdf", t.Type(), o.ID, data)
}

func (p *Printer) store(name, kind, orderID string, data []byte) error {
	path, err := receipt.WriteFile(p.Dir, name, data)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	p.Logger.Info().Str("type", kind).Str("order_id", orderID).Str("path", path).Msg("document printed")
	return nil
}

func decodeOrder(t *asynq.Task) (order.Order, error) {
	var o order.Order
	if err := json.Unmarshal(t.Payload(), &o); err != nil {
		return order.Order{}, fmt.Errorf("%w: decode order: %v", asynq.SkipRetry, err)
	}
	if o.ID == "" {
		return order.Order{}, fmt.Errorf("%w: order id missing", asynq.SkipRetry)
	}
	return o, nil
}

// Queues returns the queue priorities for the worker server.
func Queues() map[string]int {
	return map[string]int{
		QueueKitchen:  6,
		QueueReceipts: 3,
	}
}
