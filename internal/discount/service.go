package discount

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/store"
)

// Repository persists discount presets.
type Repository interface {
	ListPresets(ctx context.Context) ([]Preset, error)
	GetPreset(ctx context.Context, id string) (Preset, error)
	GetPresetByCoupon(ctx context.Context, code string) (Preset, error)
	CreatePreset(ctx context.Context, p Preset) error
	UpdatePreset(ctx context.Context, p Preset) error
	DeletePreset(ctx context.Context, id string) error
}

// Service manages discount presets and resolves them for checkout.
type Service struct {
	Repo   Repository
	Logger zerolog.Logger
	Now    func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// List returns all presets ordered by name.
func (s *Service) List(ctx context.Context) ([]Preset, error) {
	presets, err := s.Repo.ListPresets(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(presets, func(i, j int) bool {
		return strings.ToLower(presets[i].Name) < strings.ToLower(presets[j].Name)
	})
	return presets, nil
}

// Get returns a preset by id.
func (s *Service) Get(ctx context.Context, id string) (Preset, error) {
	p, err := s.Repo.GetPreset(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return Preset{}, fmt.Errorf("%w: preset %q", ErrStaleCouponOrPreset, id)
	}
	return p, err
}

// Create validates and stores a new preset.
func (s *Service) Create(ctx context.Context, p Preset) (Preset, error) {
	p.ID = uuid.NewString()
	p.CouponCode = NormalizeCode(p.CouponCode)
	if err := validatePreset(p); err != nil {
		return Preset{}, err
	}
	if err := s.ensureCouponFree(ctx, p); err != nil {
		return Preset{}, err
	}
	now := s.now()
	p.CreatedAt, p.UpdatedAt = now, now
	if err := s.Repo.CreatePreset(ctx, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Preset{}, ErrDuplicateCoupon
		}
		return Preset{}, err
	}
	s.Logger.Info().Str("preset_id", p.ID).Float64("percentage", p.Percentage).Msg("discount preset created")
	return p, nil
}

// Update replaces an existing preset.
func (s *Service) Update(ctx context.Context, id string, p Preset) (Preset, error) {
	existing, err := s.Get(ctx, id)
	if err != nil {
		return Preset{}, err
	}
	p.ID = existing.ID
	p.CreatedAt = existing.CreatedAt
	p.CouponCode = NormalizeCode(p.CouponCode)
	if err := validatePreset(p); err != nil {
		return Preset{}, err
	}
	if err := s.ensureCouponFree(ctx, p); err != nil {
		return Preset{}, err
	}
	p.UpdatedAt = s.now()
	if err := s.Repo.UpdatePreset(ctx, p); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return Preset{}, ErrDuplicateCoupon
		}
		return Preset{}, err
	}
	return p, nil
}

// Delete removes a preset.
func (s *Service) Delete(ctx context.Context, id string) error {
	err := s.Repo.DeletePreset(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: preset %q", ErrStaleCouponOrPreset, id)
	}
	return err
}

// Resolve returns the preset referenced by id for use in a checkout.
func (s *Service) Resolve(ctx context.Context, id string) (Preset, error) {
	p, err := s.Get(ctx, strings.TrimSpace(id))
	if err != nil && errors.Is(err, ErrStaleCouponOrPreset) {
		s.Logger.Warn().Str("preset_id", id).Msg("stale discount preset lookup")
	}
	return p, err
}

// ResolveCoupon returns the preset keyed by the coupon code, case-insensitively.
func (s *Service) ResolveCoupon(ctx context.Context, code string) (Preset, error) {
	normalized := NormalizeCode(code)
	if normalized == "" {
		return Preset{}, fmt.Errorf("%w: empty coupon code", ErrStaleCouponOrPreset)
	}
	p, err := s.Repo.GetPresetByCoupon(ctx, normalized)
	if errors.Is(err, store.ErrNotFound) {
		s.Logger.Warn().Str("coupon", normalized).Msg("stale coupon lookup")
		return Preset{}, fmt.Errorf("%w: coupon %q", ErrStaleCouponOrPreset, normalized)
	}
	return p, err
}

func (s *Service) ensureCouponFree(ctx context.Context, p Preset) error {
	if p.CouponCode == "" {
		return nil
	}
	other, err := s.Repo.GetPresetByCoupon(ctx, p.CouponCode)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return err
	case other.ID != p.ID:
		return ErrDuplicateCoupon
	default:
		return nil
	}
}

func validatePreset(p Preset) error {
	if err := p.Check(); err != nil {
		return err
	}
	return common.ValidateStruct(p)
}
