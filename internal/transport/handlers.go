package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/shopdesk/internal/store"
	"github.com/pitabwire/shopdesk/model"
)

type ordersHandler struct{ orders *store.Orders }

func (h *ordersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status model.OrderStatus `json:"status"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.orders.UpdateStatus(r.Context(), id, req.Status); err != nil {
		WriteError(w, err)
		return
	}
	order, _ := h.orders.Find(id)
	WriteJSON(w, http.StatusOK, map[string]any{
		"order":       order,
		"nextOptions": store.NextStatusOptions(req.Status),
	})
}

func (h *ordersHandler) analytics(w http.ResponseWriter, r *http.Request) {
	a, err := h.orders.FetchAnalytics(r.Context(), r.URL.Query().Get("userId"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, a)
}

type productsHandler struct{ products *store.Products }

func (h *productsHandler) create(w http.ResponseWriter, r *http.Request) {
	var in model.Product
	if err := decodeBody(r, &in); err != nil {
		WriteError(w, err)
		return
	}
	created, err := h.products.CreateProduct(r.Context(), &in)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusCreated, created)
}

func (h *productsHandler) update(w http.ResponseWriter, r *http.Request) {
	var changes model.Patch
	if err := decodeBody(r, &changes); err != nil {
		WriteError(w, err)
		return
	}
	updated, err := h.products.UpdateProduct(r.Context(), chi.URLParam(r, "id"), changes)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, updated)
}

func (h *productsHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.products.DeleteProduct(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type customersHandler struct{ customers *store.Customers }

func (h *customersHandler) counts(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.customers.Counts())
}

func (h *customersHandler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.customers.RemoveCustomer(r.Context(), chi.URLParam(r, "id")); err != nil {
		WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type categoriesHandler struct{ categories *store.Categories }

func (h *categoriesHandler) create(w http.ResponseWriter, r *http.Request) {
	var in model.CategoryInput
	if err := decodeBody(r, &in); err != nil {
		WriteError(w, err)
		return
	}
	h.afterWrite(w, h.categories.CreateCategory(r.Context(), in))
}

func (h *categoriesHandler) update(w http.ResponseWriter, r *http.Request) {
	var in model.CategoryInput
	if err := decodeBody(r, &in); err != nil {
		WriteError(w, err)
		return
	}
	h.afterWrite(w, h.categories.UpdateCategory(r.Context(), chi.URLParam(r, "id"), in))
}

func (h *categoriesHandler) delete(w http.ResponseWriter, r *http.Request) {
	h.afterWrite(w, h.categories.DeleteCategory(r.Context(), chi.URLParam(r, "id")))
}

func (h *categoriesHandler) afterWrite(w http.ResponseWriter, err error) {
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.categories.Snapshot())
}

type dashboardHandler struct{ dashboard *store.Dashboard }

func (h *dashboardHandler) metrics(w http.ResponseWriter, r *http.Request) {
	data, err := h.dashboard.Fetch(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, data)
}

type settingsHandler struct{ settings *store.Settings }

func (h *settingsHandler) get(w http.ResponseWriter, r *http.Request) {
	s, err := h.settings.Fetch(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s)
}

func (h *settingsHandler) patch(w http.ResponseWriter, r *http.Request) {
	var p model.Patch
	if err := decodeBody(r, &p); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.settings.Apply(p); err != nil {
		WriteError(w, err)
		return
	}
	s, err := h.settings.Save(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, s)
}

type profileHandler struct{ profile *store.Profile }

func (h *profileHandler) get(w http.ResponseWriter, r *http.Request) {
	p, err := h.profile.Fetch(r.Context())
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (h *profileHandler) save(w http.ResponseWriter, r *http.Request) {
	var changes model.Patch
	if err := decodeBody(r, &changes); err != nil {
		WriteError(w, err)
		return
	}
	p, err := h.profile.Save(r.Context(), changes)
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, p)
}

func (h *profileHandler) updateImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Thumbnail string `json:"thumbnail"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.profile.UpdateImage(r.Context(), req.Thumbnail); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.profile.Current())
}

type storeConfigHandler struct{ cfg *store.StoreConfig }

func (h *storeConfigHandler) get(w http.ResponseWriter, r *http.Request) {
	if err := h.cfg.Load(r.Context()); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.cfg.Config())
}

func (h *storeConfigHandler) put(w http.ResponseWriter, r *http.Request) {
	var p model.Patch
	if err := decodeBody(r, &p); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.cfg.Update(p); err != nil {
		WriteError(w, err)
		return
	}
	if err := h.cfg.Save(r.Context()); err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.cfg.Config())
}
