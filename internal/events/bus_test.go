package events_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/events"
)

type stubStore struct {
	events []events.Event
	err    error
}

func (s *stubStore) AppendEvent(_ context.Context, ev events.Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, ev)
	return nil
}

type captureNotifier struct {
	events []events.Event
}

func (c *captureNotifier) Notify(_ context.Context, ev events.Event) error {
	c.events = append(c.events, ev)
	return nil
}

func TestEmitPersistsEvent(t *testing.T) {
	store := &stubStore{}
	notifier := &captureNotifier{}
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	bus := events.Bus{
		Store:     store,
		Notifiers: []events.Notifier{notifier},
		Now:       func() time.Time { return fixed },
	}

	ev, err := bus.Emit(context.Background(), events.TopicOrderCreated, "order-1", map[string]any{"orderId": "order-1"})
	require.NoError(t, err)
	require.Len(t, store.events, 1)
	require.Len(t, notifier.events, 1)
	require.Equal(t, ev.ID, notifier.events[0].ID)
	require.Equal(t, fixed, ev.OccurredAt)
	require.JSONEq(t, `{"orderId":"order-1"}`, string(store.events[0].Payload))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(ev.Payload, &decoded))
	require.Equal(t, "order-1", decoded["orderId"])
}

func TestEmitValidatesInput(t *testing.T) {
	bus := events.Bus{}
	_, err := bus.Emit(context.Background(), " ", "a", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderPaid, "", nil)
	require.Error(t, err)
	_, err = bus.Emit(context.Background(), events.TopicOrderPaid, "a", "{not json")
	require.Error(t, err)

	ev, err := bus.Emit(context.Background(), events.TopicOrderPaid, "a", "")
	require.NoError(t, err)
	require.JSONEq(t, `{}`, string(ev.Payload))
}

func TestEmitJoinsNotifierErrors(t *testing.T) {
	boom := errors.New("boom")
	bus := events.Bus{Notifiers: []events.Notifier{
		events.NotifierFunc(func(context.Context, events.Event) error { return boom }),
		nil,
	}}
	_, err := bus.Emit(context.Background(), events.TopicOrderPaid, "a", nil)
	require.ErrorIs(t, err, boom)

	failing := events.Bus{Store: &stubStore{err: boom}}
	_, err = failing.Emit(context.Background(), events.TopicOrderPaid, "a", nil)
	require.ErrorIs(t, err, boom)
}

func TestNilBusIsNoop(t *testing.T) {
	var bus *events.Bus
	_, err := bus.Emit(context.Background(), events.TopicOrderPaid, "a", nil)
	require.NoError(t, err)
}
