package order

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-resto/internal/common"
	"github.com/noah-isme/backend-resto/internal/menu"
)

// Handler exposes order tracking endpoints.
type Handler struct {
	Svc *Service
	// Checkout, when set, is mounted at POST /{orderID}/checkout.
	Checkout http.HandlerFunc
}

type itemStatusPayload struct {
	Status ItemStatus `json:"status"`
}

type cancelPayload struct {
	Reason string `json:"reason"`
}

// Routes mounts the order endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/", h.Create)
	r.Get("/", h.List)
	r.Route("/{orderID}", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Patch("/items/{itemID}/status", h.UpdateItemStatus)
		r.Patch("/table", h.UpdateSeating)
		r.Post("/hold", h.Hold)
		r.Post("/resume", h.Resume)
		r.Post("/cancel", h.Cancel)
		r.Post("/complete", h.Complete)
		if h.Checkout != nil {
			r.Post("/checkout", h.Checkout)
		}
	})
}

// KitchenRoutes mounts the kitchen display endpoints on r.
func (h *Handler) KitchenRoutes(r chi.Router) {
	r.Get("/queue", h.KitchenQueue)
}

// Create sends a new order to the kitchen.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var payload CreateInput
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.Create(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": o})
}

// List returns orders, optionally filtered by a comma separated status list.
// status=active selects every order still being served.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	var statuses []Status
	for _, raw := range strings.Split(r.URL.Query().Get("status"), ",") {
		raw = strings.TrimSpace(raw)
		switch raw {
		case "":
		case "active":
			statuses = append(statuses, StatusOpen, StatusPendingPayment, StatusOnHold)
		default:
			statuses = append(statuses, Status(raw))
		}
	}
	orders, err := h.Svc.List(r.Context(), statuses)
	if err != nil {
		writeError(w, err)
		return
	}
	page, size := common.ParsePagination(r, 20, 100)
	items, meta := common.Paginate(orders, page, size)
	common.JSON(w, http.StatusOK, map[string]any{"data": items, "pagination": meta})
}

// Get returns one order.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// UpdateItemStatus advances a line through the kitchen.
func (h *Handler) UpdateItemStatus(w http.ResponseWriter, r *http.Request) {
	var payload itemStatusPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.UpdateItemStatus(r.Context(), chi.URLParam(r, "orderID"), chi.URLParam(r, "itemID"), payload.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// UpdateSeating edits table and guests.
func (h *Handler) UpdateSeating(w http.ResponseWriter, r *http.Request) {
	var payload SeatingInput
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	o, err := h.Svc.UpdateSeating(r.Context(), chi.URLParam(r, "orderID"), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// Hold parks the order.
func (h *Handler) Hold(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.Hold(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// Resume reopens a held order.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.Resume(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// Cancel voids the order.
func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	var payload cancelPayload
	if r.ContentLength != 0 {
		if err := common.DecodeJSON(r, &payload); err != nil {
			common.WriteError(w, err)
			return
		}
	}
	o, err := h.Svc.Cancel(r.Context(), chi.URLParam(r, "orderID"), strings.TrimSpace(payload.Reason))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// Complete closes a paid order.
func (h *Handler) Complete(w http.ResponseWriter, r *http.Request) {
	o, err := h.Svc.Complete(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": o})
}

// KitchenQueue lists lines waiting in the kitchen.
func (h *Handler) KitchenQueue(w http.ResponseWriter, r *http.Request) {
	tickets, err := h.Svc.KitchenQueue(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": tickets})
}

// ErrorMappings lists the API codes of the package's sentinel errors.
func ErrorMappings() []common.ErrorMapping {
	return []common.ErrorMapping{
		{Target: ErrNotFound, Code: "NOT_FOUND", Status: http.StatusNotFound},
		{Target: ErrInvalidTransition, Code: "INVALID_TRANSITION", Status: http.StatusConflict},
		{Target: ErrInvalidOrder, Code: "INVALID_ORDER", Status: http.StatusUnprocessableEntity},
	}
}

func writeError(w http.ResponseWriter, err error) {
	mappings := append(ErrorMappings(), menu.ErrorMappings()...)
	common.WriteError(w, common.MapError(err, mappings...))
}
