package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pitabwire/shopdesk/internal/listing"
	"github.com/pitabwire/shopdesk/internal/query"
	"github.com/pitabwire/shopdesk/model"
)

// ListStore is the list surface shared by every paginated store.
type ListStore[T model.Resource] interface {
	Load(ctx context.Context, page int) error
	UpdateQuery(fn func(q *query.State))
	Snapshot() listing.Snapshot[T]
}

// listHandler serves the snapshot, paging, sorting, search and detail
// routes of one store.
type listHandler[T model.Resource] struct {
	store   ListStore[T]
	get     func(ctx context.Context, id string) (any, error)
	filters map[string]filterSpec
}

func mountList[T model.Resource](r chi.Router, store ListStore[T], get func(ctx context.Context, id string) (any, error), filters map[string]filterSpec) {
	h := &listHandler[T]{store: store, get: get, filters: filters}
	r.Get("/", h.snapshot)
	r.Post("/load", h.load)
	r.Post("/sort", h.sort)
	r.Post("/search", h.search)
	r.Post("/reset", h.reset)
	if len(filters) > 0 {
		r.Post("/filter", h.filter)
	}
	if get != nil {
		r.Get("/{id}", h.detail)
	}
}

func (h *listHandler[T]) snapshot(w http.ResponseWriter, _ *http.Request) {
	WriteJSON(w, http.StatusOK, h.store.Snapshot())
}

func (h *listHandler[T]) load(w http.ResponseWriter, r *http.Request) {
	page, err := pageParam(r)
	if err != nil {
		WriteError(w, err)
		return
	}
	h.respond(w, h.store.Load(r.Context(), page))
}

type sortRequest struct {
	Key       string `json:"key"`
	Direction string `json:"direction"`
}

func (h *listHandler[T]) sort(w http.ResponseWriter, r *http.Request) {
	var req sortRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	key := strings.TrimSpace(req.Key)
	if key == "" {
		WriteError(w, model.NewValidationRejectedError("Sort key is required", []model.FieldError{
			{Field: "key", Message: "required"},
		}))
		return
	}
	h.store.UpdateQuery(func(q *query.State) { q.SetSort(key, query.ParseDirection(req.Direction)) })
	h.respond(w, h.store.Load(r.Context(), 1))
}

func (h *listHandler[T]) search(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Query string `json:"query"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	h.store.UpdateQuery(func(q *query.State) { q.SetSearch(req.Query) })
	h.respond(w, h.store.Load(r.Context(), 1))
}

// filter sets or clears one named filter and reloads from page 1.
func (h *listHandler[T]) filter(w http.ResponseWriter, r *http.Request) {
	var req filterRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(w, err)
		return
	}
	name := strings.TrimSpace(req.Name)
	spec, ok := h.filters[name]
	if !ok {
		WriteError(w, model.NewValidationRejectedError("Unknown filter", []model.FieldError{
			{Field: "name", Message: fmt.Sprintf("%q is not a filter of this list", name)},
		}))
		return
	}
	v, err := spec.parse(req.Value)
	if err != nil {
		WriteError(w, model.NewValidationRejectedError("Invalid filter value", []model.FieldError{
			{Field: "value", Message: err.Error()},
		}))
		return
	}
	h.store.UpdateQuery(func(q *query.State) { q.SetFilter(name, v) })
	h.respond(w, h.store.Load(r.Context(), 1))
}

func (h *listHandler[T]) reset(w http.ResponseWriter, r *http.Request) {
	h.store.UpdateQuery(func(q *query.State) { q.Reset() })
	h.respond(w, h.store.Load(r.Context(), 1))
}

func (h *listHandler[T]) detail(w http.ResponseWriter, r *http.Request) {
	item, err := h.get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, item)
}

// respond writes the snapshot after a load. A load replaced by a newer one
// is not an error; the snapshot already reflects the newer request.
func (h *listHandler[T]) respond(w http.ResponseWriter, err error) {
	if err != nil && !errors.Is(err, listing.ErrSuperseded) {
		WriteError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.store.Snapshot())
}

// getter adapts a typed fetch to the detail route.
func getter[T any](fn func(ctx context.Context, id string) (T, error)) func(ctx context.Context, id string) (any, error) {
	return func(ctx context.Context, id string) (any, error) {
		return fn(ctx, id)
	}
}
