package checkout

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/discount"
	"github.com/noah-isme/backend-resto/internal/lock"
	"github.com/noah-isme/backend-resto/internal/order"
	"github.com/noah-isme/backend-resto/internal/pricing"
)

// Handler exposes the checkout wizard over HTTP.
type Handler struct {
	Svc *Service
}

// Routes mounts the session endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/{sessionID}", h.Get)
	r.Post("/{sessionID}/commands", h.Apply)
	r.Post("/{sessionID}/validate", h.Validate)
	r.Post("/{sessionID}/finalize", h.Finalize)
	r.Delete("/{sessionID}", h.Abandon)
}

// Start opens a checkout for the order in the URL. Mounted under /orders/{orderID}/checkout.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	sess, err := h.Svc.Start(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": sess})
}

// Get returns a session.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Svc.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sess})
}

// Apply runs one command.
func (h *Handler) Apply(w http.ResponseWriter, r *http.Request) {
	var cmd Command
	if err := common.DecodeJSON(r, &cmd); err != nil {
		common.WriteError(w, err)
		return
	}
	sess, err := h.Svc.Apply(r.Context(), chi.URLParam(r, "sessionID"), cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": sess})
}

// Validate reports whether the session can be finalized.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	sess, err := h.Svc.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	if err := sess.Validate(); err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]any{"ready": true, "totals": sess.Totals}})
}

// Finalize settles the order.
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.Finalize(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// Abandon drops the session and reopens the order. ?refund=true is required
// once splits have been paid.
func (h *Handler) Abandon(w http.ResponseWriter, r *http.Request) {
	refund := r.URL.Query().Get("refund") == "true"
	if err := h.Svc.Abandon(r.Context(), chi.URLParam(r, "sessionID"), refund); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type previewItem struct {
	ID         string  `json:"id"`
	MenuItemID string  `json:"menuItemId"`
	Price      float64 `json:"price" validate:"gte=0"`
	Quantity   int     `json:"quantity" validate:"gte=1"`
	IsCourtesy bool    `json:"isCourtesy"`
	Cancelled  bool    `json:"cancelled"`
}

type previewPayload struct {
	Items           []previewItem     `json:"items" validate:"dive"`
	IsOrderCourtesy bool              `json:"isOrderCourtesy"`
	Preset          *discount.Preset  `json:"preset" validate:"-"`
	ManualDiscount  float64           `json:"manualDiscount"`
	TipAmount       float64           `json:"tipAmount"`
	TaxRate         *float64          `json:"taxRate"`
	Categories      map[string]string `json:"categories"`
}

// Preview prices an ad hoc order without touching any state.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var payload previewPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := common.ValidateStruct(payload); err != nil {
		common.WriteError(w, err)
		return
	}
	if err := discount.ValidateManual(payload.ManualDiscount); err != nil {
		writeError(w, err)
		return
	}
	in := pricing.Input{
		IsOrderCourtesy: payload.IsOrderCourtesy,
		ManualDiscount:  payload.ManualDiscount,
		TipAmount:       payload.TipAmount,
		TaxRate:         h.Svc.TaxRate,
		Categories:      payload.Categories,
	}
	if payload.TaxRate != nil {
		in.TaxRate = *payload.TaxRate
	}
	if payload.Preset != nil {
		if err := payload.Preset.Check(); err != nil {
			writeError(w, err)
			return
		}
		rule := payload.Preset.Rule()
		in.Preset = &rule
	}
	for _, it := range payload.Items {
		in.Items = append(in.Items, pricing.Line{
			ID:         it.ID,
			MenuItemID: it.MenuItemID,
			Price:      it.Price,
			Quantity:   it.Quantity,
			IsCourtesy: it.IsCourtesy,
			Cancelled:  it.Cancelled,
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": pricing.Calculate(in)})
}

// ErrorMappings lists the API codes of the package's sentinel errors.
func ErrorMappings() []common.ErrorMapping {
	return []common.ErrorMapping{
		{Target: lock.ErrLockLost, Code: "CHECKOUT_BUSY", Status: http.StatusConflict},
		{Target: ErrOverpayment, Code: "OVERPAYMENT_ATTEMPT", Status: http.StatusUnprocessableEntity},
		{Target: ErrIncompleteFiscalInfo, Code: "INCOMPLETE_FISCAL_INFO", Status: http.StatusUnprocessableEntity},
		{Target: ErrUnderfundedSplit, Code: "UNDERFUNDED_SPLIT", Status: http.StatusUnprocessableEntity},
		{Target: ErrMissingPaymentMethod, Code: "MISSING_PAYMENT_METHOD", Status: http.StatusUnprocessableEntity},
		{Target: ErrItemAlreadyCovered, Code: "ITEM_ALREADY_COVERED", Status: http.StatusConflict},
		{Target: ErrSplitFrozen, Code: "SPLIT_FROZEN", Status: http.StatusConflict},
		{Target: ErrInvalidStep, Code: "INVALID_STEP", Status: http.StatusConflict},
		{Target: ErrPaymentsStarted, Code: "PAYMENTS_STARTED", Status: http.StatusConflict},
		{Target: ErrInvalidCommand, Code: "INVALID_COMMAND", Status: http.StatusBadRequest},
		{Target: ErrSessionNotFound, Code: "NOT_FOUND", Status: http.StatusNotFound},
	}
}

func writeError(w http.ResponseWriter, err error) {
	mappings := ErrorMappings()
	mappings = append(mappings, discount.ErrorMappings()...)
	mappings = append(mappings, order.ErrorMappings()...)
	common.WriteError(w, common.MapError(err, mappings...))
}
