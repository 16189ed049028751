package menu

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-resto/internal/common"
)

// Handler exposes menu endpoints.
type Handler struct {
	Svc *Service
}

// Routes mounts the handler on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/items", h.ListItems)
	r.Post("/items", h.CreateItem)
	r.Get("/items/{id}", h.GetItem)
	r.Put("/items/{id}", h.UpdateItem)
	r.Delete("/items/{id}", h.DeleteItem)
	r.Get("/categories", h.ListCategories)
	r.Post("/categories", h.CreateCategory)
}

func (h *Handler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.Svc.Items(r.Context(), r.URL.Query().Get("category"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": items})
}

func (h *Handler) GetItem(w http.ResponseWriter, r *http.Request) {
	it, err := h.Svc.Item(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": it})
}

func (h *Handler) CreateItem(w http.ResponseWriter, r *http.Request) {
	var payload Item
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	payload.ID = ""
	it, err := h.Svc.SaveItem(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": it})
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var payload Item
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	payload.ID = chi.URLParam(r, "id")
	it, err := h.Svc.SaveItem(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": it})
}

func (h *Handler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.DeleteItem(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.Svc.Categories(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": cats})
}

func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var payload Category
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	payload.ID = ""
	c, err := h.Svc.SaveCategory(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": c})
}

// ErrorMappings lists the API codes of the package's sentinel errors.
func ErrorMappings() []common.ErrorMapping {
	return []common.ErrorMapping{
		{Target: ErrItemNotFound, Code: "NOT_FOUND", Status: http.StatusNotFound},
		{Target: ErrCategoryNotFound, Code: "NOT_FOUND", Status: http.StatusNotFound},
		{Target: ErrItemUnavailable, Code: "ITEM_UNAVAILABLE", Status: http.StatusConflict},
	}
}

func writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, common.MapError(err, ErrorMappings()...))
}
