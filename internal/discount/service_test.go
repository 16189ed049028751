package discount

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-resto/internal/store"
)

type stubRepo struct {
	mu      sync.Mutex
	presets map[string]Preset
}

func newStubRepo() *stubRepo { return &stubRepo{presets: map[string]Preset{}} }

func (s *stubRepo) ListPresets(context.Context) ([]Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Preset, 0, len(s.presets))
	for _, p := range s.presets {
		out = append(out, p)
	}
	return out, nil
}

func (s *stubRepo) GetPreset(_ context.Context, id string) (Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.presets[id]
	if !ok {
		return Preset{}, store.ErrNotFound
	}
	return p, nil
}

func (s *stubRepo) GetPresetByCoupon(_ context.Context, code string) (Preset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.presets {
		if p.MatchesCode(code) {
			return p, nil
		}
	}
	return Preset{}, store.ErrNotFound
}

func (s *stubRepo) CreatePreset(_ context.Context, p Preset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.presets[p.ID] = p
	return nil
}

func (s *stubRepo) UpdatePreset(ctx context.Context, p Preset) error {
	return s.CreatePreset(ctx, p)
}

func (s *stubRepo) DeletePreset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.presets[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.presets, id)
	return nil
}

func TestCreateAndResolveCoupon(t *testing.T) {
	svc := &Service{Repo: newStubRepo()}
	ctx := context.Background()
	created, err := svc.Create(ctx, Preset{Name: "Happy hour", Percentage: 15, CouponCode: " happy15 "})
	require.NoError(t, err)
	require.Equal(t, "HAPPY15", created.CouponCode)
	require.NotEmpty(t, created.ID)

	found, err := svc.ResolveCoupon(ctx, "Happy15")
	require.NoError(t, err)
	require.Equal(t, created.ID, found.ID)

	_, err = svc.ResolveCoupon(ctx, "nope")
	require.ErrorIs(t, err, ErrStaleCouponOrPreset)
}

func TestCreateRejectsInvalidPresets(t *testing.T) {
	svc := &Service{Repo: newStubRepo()}
	ctx := context.Background()

	_, err := svc.Create(ctx, Preset{Name: "Too much", Percentage: 120})
	require.ErrorIs(t, err, ErrInvalidDiscount)

	_, err = svc.Create(ctx, Preset{Name: "Both", Percentage: 10, MenuItemIDs: []string{"a"}, CategoryIDs: []string{"b"}})
	require.ErrorIs(t, err, ErrInvalidDiscount)

	_, err = svc.Create(ctx, Preset{Percentage: 10})
	require.Error(t, err)
}

func TestCouponCodesAreUnique(t *testing.T) {
	svc := &Service{Repo: newStubRepo()}
	ctx := context.Background()
	first, err := svc.Create(ctx, Preset{Name: "A", Percentage: 5, CouponCode: "LUNCH"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, Preset{Name: "B", Percentage: 5, CouponCode: "lunch"})
	require.ErrorIs(t, err, ErrDuplicateCoupon)

	updated, err := svc.Update(ctx, first.ID, Preset{Name: "A2", Percentage: 7, CouponCode: "lunch"})
	require.NoError(t, err)
	require.Equal(t, first.CreatedAt, updated.CreatedAt)
	require.Equal(t, "A2", updated.Name)
}

func TestResolveAndDeleteMissing(t *testing.T) {
	svc := &Service{Repo: newStubRepo()}
	_, err := svc.Resolve(context.Background(), "missing")
	require.True(t, errors.Is(err, ErrStaleCouponOrPreset))
	require.ErrorIs(t, svc.Delete(context.Background(), "missing"), ErrStaleCouponOrPreset)
}

func TestValidateManualAndRule(t *testing.T) {
	require.NoError(t, ValidateManual(0))
	require.NoError(t, ValidateManual(12.5))
	require.ErrorIs(t, ValidateManual(-0.01), ErrInvalidDiscount)

	rule := Preset{Percentage: 20, CategoryIDs: []string{"c1"}}.Rule()
	require.True(t, rule.Scoped())
	require.Equal(t, 20.0, rule.Percentage)
}
