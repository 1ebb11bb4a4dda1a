package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/pitabwire/shopdesk/model"
)

// Operation names a resource's CRUD operations for route resolution.
type Operation string

const (
	OpList   Operation = "list"
	OpGet    Operation = "get"
	OpCreate Operation = "create"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// RouteResolver resolves an operationId to a method and path template such as
// "/orders/{id}".
type RouteResolver interface {
	Route(operationID string) (method, pathTemplate string, ok bool)
}

// ResourceConfig describes how a resource is exposed by the backend.
type ResourceConfig struct {
	// Path is the collection path, e.g. "/orders".
	Path string
	// ListPath overrides Path for list requests.
	ListPath string
	// ItemsKey is the member of data holding the list. Empty means data is
	// the list itself.
	ItemsKey string
	// TotalKey is the member of data holding the total item count. When
	// absent the count of returned items is used.
	TotalKey string
	// TotalPagesKey is the member of data holding the server's page count.
	TotalPagesKey string
	// ItemKey is the member of data holding a single item. Empty or absent
	// means data is the item.
	ItemKey string
	// UpdateMethod is PUT or PATCH; PATCH by default.
	UpdateMethod string
	// Operations maps operations to backend operationIds resolved through
	// the Resolver.
	Operations map[Operation]string
	Resolver   RouteResolver
}

// Resource is a typed CRUD client for one backend resource.
type Resource[T model.Resource] struct {
	client *Client
	cfg    ResourceConfig
}

// NewResource binds a Client to a resource.
func NewResource[T model.Resource](c *Client, cfg ResourceConfig) *Resource[T] {
	cfg.Path = "/" + strings.Trim(cfg.Path, "/")
	if cfg.ListPath == "" {
		cfg.ListPath = cfg.Path
	}
	if cfg.UpdateMethod == "" {
		cfg.UpdateMethod = http.MethodPatch
	}
	cfg.UpdateMethod = strings.ToUpper(cfg.UpdateMethod)
	return &Resource[T]{client: c, cfg: cfg}
}

// Client returns the underlying API client.
func (r *Resource[T]) Client() *Client { return r.client }

// List fetches one page.
func (r *Resource[T]) List(ctx context.Context, params url.Values) (model.Page[T], error) {
	method, path := r.route(OpList, http.MethodGet, r.cfg.ListPath, "")
	env, err := r.client.Do(ctx, Request{Method: method, Path: path, Query: params, Route: r.cfg.ListPath})
	if err != nil {
		return model.Page[T]{}, err
	}
	return decodePage[T](env.Data, r.cfg)
}

// Get fetches one item.
func (r *Resource[T]) Get(ctx context.Context, id string) (T, error) {
	method, path := r.route(OpGet, http.MethodGet, r.cfg.Path+"/{id}", id)
	env, err := r.client.Do(ctx, Request{Method: method, Path: path, Route: r.cfg.Path + "/{id}"})
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeItem[T](env.Data, r.cfg.ItemKey, true)
}

// Create posts a new item and returns the created item when the backend
// echoes it.
func (r *Resource[T]) Create(ctx context.Context, body any) (T, error) {
	method, path := r.route(OpCreate, http.MethodPost, r.cfg.Path, "")
	env, err := r.client.Do(ctx, Request{Method: method, Path: path, Body: body, Route: r.cfg.Path})
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeItem[T](env.Data, r.cfg.ItemKey, false)
}

// Update sends changes for an item and returns the updated item when the
// backend echoes it.
func (r *Resource[T]) Update(ctx context.Context, id string, body any) (T, error) {
	method, path := r.route(OpUpdate, r.cfg.UpdateMethod, r.cfg.Path+"/{id}", id)
	env, err := r.client.Do(ctx, Request{Method: method, Path: path, Body: body, Route: r.cfg.Path + "/{id}"})
	if err != nil {
		var zero T
		return zero, err
	}
	return decodeItem[T](env.Data, r.cfg.ItemKey, false)
}

// Delete removes an item.
func (r *Resource[T]) Delete(ctx context.Context, id string) error {
	method, path := r.route(OpDelete, http.MethodDelete, r.cfg.Path+"/{id}", id)
	_, err := r.client.Do(ctx, Request{Method: method, Path: path, Route: r.cfg.Path + "/{id}"})
	return err
}

// Action calls a sub-resource of an item, e.g. PATCH /orders/{id}/status.
func (r *Resource[T]) Action(ctx context.Context, method, id, action string, body any) (*Envelope, error) {
	tmpl := r.cfg.Path + "/{id}/" + strings.Trim(action, "/")
	return r.client.Do(ctx, Request{Method: method, Path: expand(tmpl, id), Body: body, Route: tmpl})
}

func (r *Resource[T]) route(op Operation, method, tmpl, id string) (string, string) {
	if r.cfg.Resolver != nil {
		if opID, ok := r.cfg.Operations[op]; ok {
			if m, p, ok := r.cfg.Resolver.Route(opID); ok {
				return m, expand(p, id)
			}
		}
	}
	return method, expand(tmpl, id)
}

// expand substitutes the single path parameter of a template.
func expand(tmpl, id string) string {
	start := strings.Index(tmpl, "{")
	end := strings.Index(tmpl, "}")
	if start < 0 || end < start {
		return tmpl
	}
	return tmpl[:start] + url.PathEscape(id) + tmpl[end+1:]
}

func decodePage[T model.Resource](data json.RawMessage, cfg ResourceConfig) (model.Page[T], error) {
	var page model.Page[T]
	if len(data) == 0 || string(data) == "null" {
		return page, nil
	}

	if cfg.ItemsKey == "" {
		if err := json.Unmarshal(data, &page.Items); err != nil {
			return page, unexpected(err)
		}
		page.TotalCount = len(page.Items)
		return page, nil
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return page, unexpected(err)
	}
	if raw, ok := obj[cfg.ItemsKey]; ok {
		if err := json.Unmarshal(raw, &page.Items); err != nil {
			return page, unexpected(err)
		}
	}
	page.TotalCount = len(page.Items)
	if raw, ok := obj[cfg.TotalKey]; ok && cfg.TotalKey != "" {
		n, err := decodeCount(raw)
		if err != nil {
			return page, unexpected(err)
		}
		page.TotalCount = n
	}
	if raw, ok := obj[cfg.TotalPagesKey]; ok && cfg.TotalPagesKey != "" {
		if n, err := decodeCount(raw); err == nil {
			page.TotalPages = n
		}
	}

	for k, v := range obj {
		if k == cfg.ItemsKey || k == cfg.TotalKey || k == cfg.TotalPagesKey {
			continue
		}
		if page.Meta == nil {
			page.Meta = make(map[string]json.RawMessage)
		}
		page.Meta[k] = v
	}
	return page, nil
}

// decodeItem decodes a single item. An absent or null item is a NotFound
// error when required and the zero value otherwise, for writes whose
// response does not echo the item.
func decodeItem[T model.Resource](data json.RawMessage, key string, required bool) (T, error) {
	var item T
	if key != "" && !isNull(data) {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(data, &obj); err == nil {
			if raw, ok := obj[key]; ok {
				data = raw
			}
		}
	}
	if isNull(data) {
		if required {
			return item, model.NewNotFoundError("The requested item does not exist")
		}
		return item, nil
	}
	if err := json.Unmarshal(data, &item); err != nil {
		return item, unexpected(err)
	}
	return item, nil
}

func isNull(data json.RawMessage) bool {
	d := bytes.TrimSpace(data)
	return len(d) == 0 || string(d) == "null"
}

// decodeCount accepts both JSON numbers and numeric strings.
func decodeCount(raw json.RawMessage) (int, error) {
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		var s string
		if err2 := json.Unmarshal(raw, &s); err2 != nil {
			return 0, err
		}
		n = json.Number(s)
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return 0, err
		}
		v = int(f)
	}
	return v, nil
}

func unexpected(err error) *model.ErrorEnvelope {
	return model.NewUnknownError(fmt.Sprintf("Unexpected response from server: %v", err))
}
