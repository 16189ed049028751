package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/backend-resto/internal/discount"
	"github.com/noah-isme/backend-resto/internal/events"
	"github.com/noah-isme/backend-resto/internal/lock"
	"github.com/noah-isme/backend-resto/internal/obs"
	"github.com/noah-isme/backend-resto/internal/order"
)

// Orders is the part of the order service checkout drives.
type Orders interface {
	BeginCheckout(ctx context.Context, orderID string) (order.Order, map[string]string, error)
	AbandonCheckout(ctx context.Context, orderID string) error
	Settle(ctx context.Context, settled order.Order) (order.Order, error)
}

// Presets resolves discount presets by id or coupon code.
type Presets interface {
	Resolve(ctx context.Context, id string) (discount.Preset, error)
	ResolveCoupon(ctx context.Context, code string) (discount.Preset, error)
}

// Emitter publishes domain events.
type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

// Service owns checkout sessions. Mutations of one session are serialised
// through Locker and persisted as snapshots in Sessions.
type Service struct {
	Sessions          SessionStore
	Orders            Orders
	Presets           Presets
	Locker            lock.Locker
	Events            Emitter
	TaxRate           float64
	DefaultTipPercent float64
	LockTTL           time.Duration
	Logger            zerolog.Logger
	Now               func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) withLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if s.Locker == nil {
		return fn(ctx)
	}
	start := time.Now()
	return s.Locker.WithLock(ctx, "checkout:"+key, s.LockTTL, func(ctx context.Context) error {
		obs.ObserveLockWait(obs.DurationMillis(time.Since(start)))
		return fn(ctx)
	})
}

// Start opens a checkout for the order, or returns the one already open.
func (s *Service) Start(ctx context.Context, orderID string) (*Session, error) {
	var out *Session
	err := s.withLock(ctx, "order:"+orderID, func(ctx context.Context) error {
		existing, err := s.Sessions.ByOrder(ctx, orderID)
		switch {
		case err == nil:
			out = existing
			return nil
		case !errors.Is(err, ErrSessionNotFound):
			return err
		}
		o, categories, err := s.Orders.BeginCheckout(ctx, orderID)
		if err != nil {
			return err
		}
		tip := Tip{Mode: TipNone}
		if o.Type == order.TypeDineIn && s.DefaultTipPercent > 0 {
			tip = Tip{Mode: TipPercent, Value: s.DefaultTipPercent}
		}
		sess := NewSession(uuid.NewString(), o, categories, s.TaxRate, tip, s.now())
		if err := s.Sessions.Save(ctx, sess); err != nil {
			return err
		}
		s.Logger.Info().Str("session_id", sess.ID).Str("order_id", orderID).Msg("checkout started")
		out = sess
		return nil
	})
	return out, err
}

// Get returns a session.
func (s *Service) Get(ctx context.Context, id string) (*Session, error) {
	return s.Sessions.Get(ctx, id)
}

// Apply runs one command against a session and stores the result. A failed
// command leaves the stored session untouched.
func (s *Service) Apply(ctx context.Context, id string, cmd Command) (_ *Session, err error) {
	ctx, span := obs.StartSpan(ctx, "checkout.command", trace.WithAttributes(
		attribute.String("checkout.session_id", id),
		attribute.String("checkout.command", string(cmd.Type)),
	))
	defer func() { endSpan(span, err) }()

	var out *Session
	err = s.withLock(ctx, id, func(ctx context.Context) error {
		sess, err := s.Sessions.Get(ctx, id)
		if err != nil {
			return err
		}
		cmd, err := s.resolve(ctx, cmd)
		if err != nil {
			return err
		}
		if err := sess.Apply(cmd, s.now()); err != nil {
			return err
		}
		if err := s.Sessions.Save(ctx, sess); err != nil {
			return err
		}
		s.afterCommand(ctx, sess, cmd)
		out = sess
		return nil
	})
	return out, err
}

func (s *Service) resolve(ctx context.Context, cmd Command) (Command, error) {
	switch cmd.Type {
	case CmdStagePreset:
		if s.Presets == nil {
			return cmd, fmt.Errorf("%w: presets unavailable", discount.ErrStaleCouponOrPreset)
		}
		p, err := s.Presets.Resolve(ctx, cmd.PresetID)
		if err != nil {
			return cmd, err
		}
		return cmd.WithPreset(p), nil
	case CmdStageCoupon:
		if s.Presets == nil {
			return cmd, fmt.Errorf("%w: presets unavailable", discount.ErrStaleCouponOrPreset)
		}
		p, err := s.Presets.ResolveCoupon(ctx, cmd.CouponCode)
		if err != nil {
			return cmd, err
		}
		return cmd.WithPreset(p), nil
	}
	return cmd, nil
}

func (s *Service) afterCommand(ctx context.Context, sess *Session, cmd Command) {
	if cmd.Type != CmdPaySplit {
		return
	}
	sp, err := sess.split(cmd.SplitID)
	if err != nil {
		return
	}
	obs.ObserveSplitPayment(string(sp.Kind), sp.Method)
	s.emit(ctx, events.TopicSplitPaid, sess.OrderID, map[string]any{
		"sessionId":  sess.ID,
		"orderId":    sess.OrderID,
		"splitId":    sp.ID,
		"amountPaid": sp.AmountPaid,
		"method":     sp.Method,
		"balance":    sess.Balance,
	})
	s.Logger.Info().
		Str("session_id", sess.ID).
		Str("split_id", sp.ID).
		Float64("amount", sp.AmountPaid).
		Float64("balance", sess.Balance).
		Msg("split paid")
}

// Finalize validates the session, settles the order and closes the session.
func (s *Service) Finalize(ctx context.Context, id string) (_ order.Order, err error) {
	ctx, span := obs.StartSpan(ctx, "checkout.finalize", trace.WithAttributes(attribute.String("checkout.session_id", id)))
	defer func() { endSpan(span, err) }()

	var out order.Order
	err = s.withLock(ctx, id, func(ctx context.Context) error {
		sess, err := s.Sessions.Get(ctx, id)
		if err != nil {
			return err
		}
		settled, err := sess.Finalize(s.now())
		if err != nil {
			obs.ObserveCheckoutFinalize(string(sess.Strategy), "rejected")
			return err
		}
		out, err = s.Orders.Settle(ctx, settled)
		if err != nil {
			obs.ObserveCheckoutFinalize(string(sess.Strategy), "error")
			return err
		}
		if err := s.Sessions.Delete(ctx, sess); err != nil {
			s.Logger.Warn().Err(err).Str("session_id", sess.ID).Msg("delete finalized checkout session")
		}
		obs.ObserveCheckoutFinalize(string(sess.Strategy), string(out.Status))
		s.observeDiscounts(sess)
		s.Logger.Info().
			Str("session_id", sess.ID).
			Str("order_id", out.ID).
			Str("status", string(out.Status)).
			Float64("total", out.Totals.TotalAmount).
			Msg("checkout finalized")
		return nil
	})
	return out, err
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func (s *Service) observeDiscounts(sess *Session) {
	if sess.IsCourtesy {
		obs.ObserveDiscountApplied("courtesy")
		return
	}
	if sess.Totals.AppliedPresetDiscountValue > 0 {
		obs.ObserveDiscountApplied("preset")
	}
	if sess.Totals.AppliedManualDiscountValue > 0 {
		obs.ObserveDiscountApplied("manual")
	}
}

// Abandon closes a session without paying and reopens the order. A session
// with paid splits is only abandoned when refund is set; the paid splits are
// then published on TopicPaymentsRefunded so the till can return them.
func (s *Service) Abandon(ctx context.Context, id string, refund bool) error {
	return s.withLock(ctx, id, func(ctx context.Context) error {
		sess, err := s.Sessions.Get(ctx, id)
		if err != nil {
			return err
		}
		started := sess.PaymentsStarted()
		if started && !refund {
			return ErrPaymentsStarted
		}
		if err := s.Orders.AbandonCheckout(ctx, sess.OrderID); err != nil {
			return err
		}
		if started {
			payments := sess.paidPayments(s.now())
			s.emit(ctx, events.TopicPaymentsRefunded, sess.OrderID, map[string]any{
				"sessionId": sess.ID,
				"orderId":   sess.OrderID,
				"payments":  payments,
				"amount":    sess.PaidAmount,
			})
			s.Logger.Warn().
				Str("session_id", sess.ID).
				Str("order_id", sess.OrderID).
				Int("payments", len(payments)).
				Float64("amount", sess.PaidAmount).
				Msg("checkout abandoned with refund")
		}
		return s.Sessions.Delete(ctx, sess)
	})
}

func (s *Service) emit(ctx context.Context, topic, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.Logger.Error().Err(err).Str("topic", topic).Str("order_id", aggregateID).Msg("emit checkout event")
	}
}
