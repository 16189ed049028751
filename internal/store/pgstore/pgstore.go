// Package pgstore persists orders, discount presets, the menu and the event
// log in PostgreSQL.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/noah-isme/backend-resto/internal/discount"
	"github.com/noah-isme/backend-resto/internal/events"
	"github.com/noah-isme/backend-resto/internal/menu"
	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/store"
	"github.com/noah-isme/backend-resto/migrations"
)

// ErrStoreUnavailable indicates the pool was not configured.
var ErrStoreUnavailable = errors.New("pgstore: pool unavailable")

// Store implements the repositories on top of a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate applies the embedded schema migrations.
func Migrate(pool *pgxpool.Pool) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}
	db := stdlib.OpenDBFromPool(pool)
	defer db.Close()
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("init migrate: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return ErrStoreUnavailable
	}
	return s.pool.Ping(ctx)
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return store.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		return store.ErrConflict
	}
	return err
}

// CreateOrder inserts a new order.
func (s *Store) CreateOrder(ctx context.Context, o order.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `INSERT INTO orders (id, status, data, created_at, updated_at) VALUES ($1, $2, $3, $4, $5)`,
		o.ID, string(o.Status), data, o.CreatedAt, o.UpdatedAt)
	return translate(err)
}

// GetOrder returns the order with the given id.
func (s *Store) GetOrder(ctx context.Context, id string) (order.Order, error) {
	var data []byte
	if err := s.pool.QueryRow(ctx, `SELECT data FROM orders WHERE id = $1`, id).Scan(&data); err != nil {
		return order.Order{}, translate(err)
	}
	var o order.Order
	if err := json.Unmarshal(data, &o); err != nil {
		return order.Order{}, fmt.Errorf("decode order %s: %w", id, err)
	}
	return o, nil
}

// UpdateOrder replaces an existing order.
func (s *Store) UpdateOrder(ctx context.Context, o order.Order) error {
	data, err := json.Marshal(o)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `UPDATE orders SET status = $2, data = $3, updated_at = $4 WHERE id = $1`,
		o.ID, string(o.Status), data, o.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListOrders returns orders in the given statuses, or every order when none are given.
func (s *Store) ListOrders(ctx context.Context, statuses []order.Status) ([]order.Order, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if len(statuses) > 0 {
		names := make([]string, len(statuses))
		for i, st := range statuses {
			names[i] = string(st)
		}
		rows, err = s.pool.Query(ctx, `SELECT data FROM orders WHERE status = ANY($1) ORDER BY created_at`, names)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT data FROM orders ORDER BY created_at`)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []order.Order
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var o order.Order
		if err := json.Unmarshal(data, &o); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

const presetColumns = `id, name, percentage, description, COALESCE(coupon_code, ''), menu_item_ids, category_ids, created_at, updated_at`

func scanPreset(row pgx.Row) (discount.Preset, error) {
	var p discount.Preset
	err := row.Scan(&p.ID, &p.Name, &p.Percentage, &p.Description, &p.CouponCode, &p.MenuItemIDs, &p.CategoryIDs, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

// ListPresets returns every discount preset ordered by name.
func (s *Store) ListPresets(ctx context.Context) ([]discount.Preset, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+presetColumns+` FROM discount_presets ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []discount.Preset
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPreset returns a preset by id.
func (s *Store) GetPreset(ctx context.Context, id string) (discount.Preset, error) {
	p, err := scanPreset(s.pool.QueryRow(ctx, `SELECT `+presetColumns+` FROM discount_presets WHERE id = $1`, id))
	return p, translate(err)
}

// GetPresetByCoupon returns the preset whose coupon code matches code case-insensitively.
func (s *Store) GetPresetByCoupon(ctx context.Context, code string) (discount.Preset, error) {
	normalized := discount.NormalizeCode(code)
	if normalized == "" {
		return discount.Preset{}, store.ErrNotFound
	}
	p, err := scanPreset(s.pool.QueryRow(ctx, `SELECT `+presetColumns+` FROM discount_presets WHERE upper(coupon_code) = $1`, normalized))
	return p, translate(err)
}

// CreatePreset inserts a preset.
func (s *Store) CreatePreset(ctx context.Context, p discount.Preset) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO discount_presets (id, name, percentage, description, coupon_code, menu_item_ids, category_ids, created_at, updated_at)
VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9)`,
		p.ID, p.Name, p.Percentage, p.Description, p.CouponCode, nonNil(p.MenuItemIDs), nonNil(p.CategoryIDs), p.CreatedAt, p.UpdatedAt)
	return translate(err)
}

// UpdatePreset replaces a preset.
func (s *Store) UpdatePreset(ctx context.Context, p discount.Preset) error {
	tag, err := s.pool.Exec(ctx, `UPDATE discount_presets SET name = $2, percentage = $3, description = $4, coupon_code = NULLIF($5, ''),
menu_item_ids = $6, category_ids = $7, updated_at = $8 WHERE id = $1`,
		p.ID, p.Name, p.Percentage, p.Description, p.CouponCode, nonNil(p.MenuItemIDs), nonNil(p.CategoryIDs), p.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// DeletePreset removes a preset.
func (s *Store) DeletePreset(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM discount_presets WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

const itemColumns = `id, name, description, price, category_id, available, updated_at`

func scanItem(row pgx.Row) (menu.Item, error) {
	var it menu.Item
	err := row.Scan(&it.ID, &it.Name, &it.Description, &it.Price, &it.CategoryID, &it.Available, &it.UpdatedAt)
	return it, err
}

// ListItems returns every menu item.
func (s *Store) ListItems(ctx context.Context) ([]menu.Item, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+itemColumns+` FROM menu_items ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []menu.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// GetItem returns a menu item by id.
func (s *Store) GetItem(ctx context.Context, id string) (menu.Item, error) {
	it, err := scanItem(s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM menu_items WHERE id = $1`, id))
	return it, translate(err)
}

// SaveItem upserts a menu item.
func (s *Store) SaveItem(ctx context.Context, it menu.Item) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO menu_items (id, name, description, price, category_id, available, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description, price = EXCLUDED.price,
category_id = EXCLUDED.category_id, available = EXCLUDED.available, updated_at = EXCLUDED.updated_at`,
		it.ID, it.Name, it.Description, it.Price, it.CategoryID, it.Available, it.UpdatedAt)
	return translate(err)
}

// DeleteItem removes a menu item.
func (s *Store) DeleteItem(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM menu_items WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

// ListCategories returns every category.
func (s *Store) ListCategories(ctx context.Context) ([]menu.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []menu.Category
	for rows.Next() {
		var c menu.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetCategory returns a category by id.
func (s *Store) GetCategory(ctx context.Context, id string) (menu.Category, error) {
	var c menu.Category
	err := s.pool.QueryRow(ctx, `SELECT id, name FROM categories WHERE id = $1`, id).Scan(&c.ID, &c.Name)
	return c, translate(err)
}

// SaveCategory upserts a category.
func (s *Store) SaveCategory(ctx context.Context, c menu.Category) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO categories (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, c.ID, c.Name)
	return translate(err)
}

// AppendEvent records a domain event.
func (s *Store) AppendEvent(ctx context.Context, ev events.Event) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO domain_events (id, topic, aggregate_id, payload, occurred_at) VALUES ($1, $2, $3, $4, $5)`,
		ev.ID, ev.Topic, ev.AggregateID, []byte(ev.Payload), ev.OccurredAt)
	return translate(err)
}

func nonNil(ids []string) []string {
	if ids == nil {
		return []string{}
	}
	return ids
}
