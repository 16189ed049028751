package menu

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/cache"
	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/store"
)

var (
	// ErrItemNotFound is returned when a menu item does not exist.
	ErrItemNotFound = errors.New("menu item not found")
	// ErrCategoryNotFound is returned when a category does not exist.
	ErrCategoryNotFound = errors.New("category not found")
	// ErrItemUnavailable is returned when ordering an item that is switched off.
	ErrItemUnavailable = errors.New("menu item unavailable")
)

// Category groups menu items.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name" validate:"required,max=80"`
}

// Item is a sellable menu entry.
type Item struct {
	ID          string    `json:"id"`
	Name        string    `json:"name" validate:"required,max=120"`
	Description string    `json:"description,omitempty" validate:"max=500"`
	Price       float64   `json:"price" validate:"gte=0"`
	CategoryID  string    `json:"categoryId" validate:"required"`
	Available   bool      `json:"available"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Repository persists menu items and categories.
type Repository interface {
	ListItems(ctx context.Context) ([]Item, error)
	GetItem(ctx context.Context, id string) (Item, error)
	SaveItem(ctx context.Context, it Item) error
	DeleteItem(ctx context.Context, id string) error
	ListCategories(ctx context.Context) ([]Category, error)
	GetCategory(ctx context.Context, id string) (Category, error)
	SaveCategory(ctx context.Context, c Category) error
}

const categoryIndexKey = "category-index"

// Service manages the menu and answers category lookups for pricing.
type Service struct {
	Repo   Repository
	Cache  *cache.JSON
	Logger zerolog.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Items lists menu items, optionally filtered by category.
func (s *Service) Items(ctx context.Context, categoryID string) ([]Item, error) {
	items, err := s.Repo.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	out := items[:0]
	for _, it := range items {
		if categoryID == "" || it.CategoryID == categoryID {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out, nil
}

// Item returns a single menu item.
func (s *Service) Item(ctx context.Context, id string) (Item, error) {
	it, err := s.Repo.GetItem(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Item{}, fmt.Errorf("%w: %s", ErrItemNotFound, id)
	}
	return it, err
}

// Orderable returns the item if it exists and is available.
func (s *Service) Orderable(ctx context.Context, id string) (Item, error) {
	it, err := s.Item(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if !it.Available {
		return Item{}, fmt.Errorf("%w: %s", ErrItemUnavailable, it.Name)
	}
	return it, nil
}

// SaveItem creates or replaces a menu item. An empty id creates a new item.
func (s *Service) SaveItem(ctx context.Context, it Item) (Item, error) {
	it.Name = strings.TrimSpace(it.Name)
	if err := common.ValidateStruct(it); err != nil {
		return Item{}, err
	}
	if _, err := s.Repo.GetCategory(ctx, it.CategoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Item{}, fmt.Errorf("%w: %s", ErrCategoryNotFound, it.CategoryID)
		}
		return Item{}, err
	}
	if it.ID == "" {
		it.ID = uuid.NewString()
	} else if _, err := s.Item(ctx, it.ID); err != nil {
		return Item{}, err
	}
	it.UpdatedAt = s.now()
	if err := s.Repo.SaveItem(ctx, it); err != nil {
		return Item{}, err
	}
	s.invalidate(ctx)
	return it, nil
}

// DeleteItem removes a menu item.
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	if err := s.Repo.DeleteItem(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrItemNotFound, id)
		}
		return err
	}
	s.invalidate(ctx)
	return nil
}

// Categories lists categories by name.
func (s *Service) Categories(ctx context.Context) ([]Category, error) {
	cats, err := s.Repo.ListCategories(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(cats, func(i, j int) bool { return cats[i].Name < cats[j].Name })
	return cats, nil
}

// SaveCategory creates or renames a category.
func (s *Service) SaveCategory(ctx context.Context, c Category) (Category, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := common.ValidateStruct(c); err != nil {
		return Category{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if err := s.Repo.SaveCategory(ctx, c); err != nil {
		return Category{}, err
	}
	return c, nil
}

// CategoryIndex maps every menu item id to its category id. The index is
// cached until the menu changes.
func (s *Service) CategoryIndex(ctx context.Context) (map[string]string, error) {
	var index map[string]string
	if ok, err := s.Cache.Get(ctx, categoryIndexKey, &index); err != nil {
		s.Logger.Warn().Err(err).Msg("read category index cache")
	} else if ok {
		return index, nil
	}
	items, err := s.Repo.ListItems(ctx)
	if err != nil {
		return nil, err
	}
	index = make(map[string]string, len(items))
	for _, it := range items {
		index[it.ID] = it.CategoryID
	}
	if err := s.Cache.Set(ctx, categoryIndexKey, index); err != nil {
		s.Logger.Warn().Err(err).Msg("write category index cache")
	}
	return index, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.Cache.Delete(ctx, categoryIndexKey); err != nil {
		s.Logger.Warn().Err(err).Msg("invalidate category index cache")
	}
}
