package discount

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-resto/internal/common"
)

// Handler exposes discount preset management endpoints.
type Handler struct {
	Svc *Service
}

type presetPayload struct {
	Name        string   `json:"name"`
	Percentage  float64  `json:"percentage"`
	Description string   `json:"description"`
	CouponCode  string   `json:"couponCode"`
	MenuItemIDs []string `json:"menuItemIds"`
	CategoryIDs []string `json:"categoryIds"`
}

func (p presetPayload) preset() Preset {
	return Preset{
		Name:        strings.TrimSpace(p.Name),
		Percentage:  p.Percentage,
		Description: strings.TrimSpace(p.Description),
		CouponCode:  p.CouponCode,
		MenuItemIDs: p.MenuItemIDs,
		CategoryIDs: p.CategoryIDs,
	}
}

// Routes mounts the handler on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/", h.Create)
	r.Get("/coupon/{code}", h.LookupCoupon)
	r.Get("/{id}", h.Get)
	r.Put("/{id}", h.Update)
	r.Delete("/{id}", h.Delete)
}

// List returns every preset.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	presets, err := h.Svc.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": presets})
}

// Get returns a preset by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.Svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// Create inserts a new preset.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var payload presetPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	p, err := h.Svc.Create(r.Context(), payload.preset())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": p})
}

// Update replaces a preset.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var payload presetPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	p, err := h.Svc.Update(r.Context(), chi.URLParam(r, "id"), payload.preset())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// Delete removes a preset.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LookupCoupon resolves a coupon code to its preset.
func (h *Handler) LookupCoupon(w http.ResponseWriter, r *http.Request) {
	p, err := h.Svc.ResolveCoupon(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": p})
}

// ErrorMappings lists the API codes of the package's sentinel errors.
func ErrorMappings() []common.ErrorMapping {
	return []common.ErrorMapping{
		{Target: ErrInvalidDiscount, Code: "INVALID_DISCOUNT", Status: http.StatusUnprocessableEntity},
		{Target: ErrStaleCouponOrPreset, Code: "STALE_COUPON_OR_PRESET", Status: http.StatusNotFound},
		{Target: ErrDuplicateCoupon, Code: "CONFLICT", Status: http.StatusConflict},
	}
}

func writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, common.MapError(err, ErrorMappings()...))
}
