// Package memstore keeps orders, presets, the menu and the event log in
// process memory. Every read returns a copy.
package memstore

import (
	"context"
	"sort"
	"sync"

	"github.com/noah-isme/backend-resto/internal/discount"
	"github.com/noah-isme/backend-resto/internal/events"
	"github.com/noah-isme/backend-resto/internal/menu"
	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/store"
)

// Store is a thread-safe in-memory repository.
type Store struct {
	mu         sync.RWMutex
	orders     map[string]order.Order
	presets    map[string]discount.Preset
	items      map[string]menu.Item
	categories map[string]menu.Category
	events     []events.Event
}

// New returns an empty store.
func New() *Store {
	return &Store{
		orders:     make(map[string]order.Order),
		presets:    make(map[string]discount.Preset),
		items:      make(map[string]menu.Item),
		categories: make(map[string]menu.Category),
	}
}

// CreateOrder inserts a new order.
func (s *Store) CreateOrder(_ context.Context, o order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; ok {
		return store.ErrConflict
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

// GetOrder returns the order with the given id.
func (s *Store) GetOrder(_ context.Context, id string) (order.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.orders[id]
	if !ok {
		return order.Order{}, store.ErrNotFound
	}
	return o.Clone(), nil
}

// UpdateOrder replaces an existing order.
func (s *Store) UpdateOrder(_ context.Context, o order.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.orders[o.ID]; !ok {
		return store.ErrNotFound
	}
	s.orders[o.ID] = o.Clone()
	return nil
}

// ListOrders returns orders in the given statuses, or every order when none are given.
func (s *Store) ListOrders(_ context.Context, statuses []order.Status) ([]order.Order, error) {
	want := make(map[order.Status]bool, len(statuses))
	for _, st := range statuses {
		want[st] = true
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]order.Order, 0, len(s.orders))
	for _, o := range s.orders {
		if len(want) > 0 && !want[o.Status] {
			continue
		}
		out = append(out, o.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// ListPresets returns every discount preset ordered by name.
func (s *Store) ListPresets(_ context.Context) ([]discount.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]discount.Preset, 0, len(s.presets))
	for _, p := range s.presets {
		out = append(out, clonePreset(p))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetPreset returns a preset by id.
func (s *Store) GetPreset(_ context.Context, id string) (discount.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presets[id]
	if !ok {
		return discount.Preset{}, store.ErrNotFound
	}
	return clonePreset(p), nil
}

// GetPresetByCoupon returns the preset whose coupon code matches code.
func (s *Store) GetPresetByCoupon(_ context.Context, code string) (discount.Preset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.presets {
		if p.MatchesCode(code) {
			return clonePreset(p), nil
		}
	}
	return discount.Preset{}, store.ErrNotFound
}

// CreatePreset inserts a preset. Coupon codes are unique.
func (s *Store) CreatePreset(_ context.Context, p discount.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presets[p.ID]; ok {
		return store.ErrConflict
	}
	if s.couponTaken(p) {
		return store.ErrConflict
	}
	s.presets[p.ID] = clonePreset(p)
	return nil
}

// UpdatePreset replaces a preset.
func (s *Store) UpdatePreset(_ context.Context, p discount.Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presets[p.ID]; !ok {
		return store.ErrNotFound
	}
	if s.couponTaken(p) {
		return store.ErrConflict
	}
	s.presets[p.ID] = clonePreset(p)
	return nil
}

// DeletePreset removes a preset.
func (s *Store) DeletePreset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presets[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.presets, id)
	return nil
}

func (s *Store) couponTaken(p discount.Preset) bool {
	if p.CouponCode == "" {
		return false
	}
	for id, other := range s.presets {
		if id != p.ID && other.MatchesCode(p.CouponCode) {
			return true
		}
	}
	return false
}

func clonePreset(p discount.Preset) discount.Preset {
	p.MenuItemIDs = append([]string(nil), p.MenuItemIDs...)
	p.CategoryIDs = append([]string(nil), p.CategoryIDs...)
	return p
}

// ListItems returns every menu item.
func (s *Store) ListItems(_ context.Context) ([]menu.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]menu.Item, 0, len(s.items))
	for _, it := range s.items {
		out = append(out, it)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// GetItem returns a menu item by id.
func (s *Store) GetItem(_ context.Context, id string) (menu.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return menu.Item{}, store.ErrNotFound
	}
	return it, nil
}

// SaveItem upserts a menu item.
func (s *Store) SaveItem(_ context.Context, it menu.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[it.ID] = it
	return nil
}

// DeleteItem removes a menu item.
func (s *Store) DeleteItem(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

// ListCategories returns every category.
func (s *Store) ListCategories(_ context.Context) ([]menu.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]menu.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	return out, nil
}

// GetCategory returns a category by id.
func (s *Store) GetCategory(_ context.Context, id string) (menu.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok {
		return menu.Category{}, store.ErrNotFound
	}
	return c, nil
}

// SaveCategory upserts a category.
func (s *Store) SaveCategory(_ context.Context, c menu.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.categories[c.ID] = c
	return nil
}

// AppendEvent records a domain event.
func (s *Store) AppendEvent(_ context.Context, ev events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
	return nil
}

// Events returns the recorded events, optionally filtered by topic.
func (s *Store) Events(topic string) []events.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []events.Event
	for _, ev := range s.events {
		if topic == "" || ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error { return nil }
