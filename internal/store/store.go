// Package store holds the per-resource state containers of the admin
// dashboard. Each store is built from explicit dependencies and exposes its
// state through snapshots; nothing in this package is a package-level
// singleton.
package store

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/internal/apiclient"
	"github.com/pitabwire/shopdesk/internal/listing"
	"github.com/pitabwire/shopdesk/model"
)

// Deps are the collaborators shared by every store.
type Deps struct {
	Client *apiclient.Client
	// Resolver optionally maps CRUD operations to routes from an OpenAPI
	// document.
	Resolver apiclient.RouteResolver
	Logger   *zap.Logger
	Recorder listing.Recorder
}

func (d Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// OpStatus is the loading flag and last error of a store's operations other
// than list loads.
type OpStatus struct {
	Loading bool                 `json:"loading"`
	Error   *model.ErrorEnvelope `json:"error,omitempty"`
}

// tracker records OpStatus for a sequence of operations.
type tracker struct {
	mu       sync.Mutex
	inFlight int
	err      *model.ErrorEnvelope
}

func (t *tracker) begin() {
	t.mu.Lock()
	t.inFlight++
	t.err = nil
	t.mu.Unlock()
}

// end finishes an operation. A non-nil err is classified and kept as the
// last error; the classified error is returned.
func (t *tracker) end(err error) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inFlight > 0 {
		t.inFlight--
	}
	if err == nil {
		return nil
	}
	t.err = model.AsEnvelope(err)
	return t.err
}

func (t *tracker) status() OpStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return OpStatus{Loading: t.inFlight > 0, Error: t.err}
}

// reload refreshes a list after a confirmed write. A reload superseded by a
// newer load is not an error.
func reload[T model.Resource](ctx context.Context, c *listing.Controller[T]) error {
	if err := c.Load(ctx, 0); err != nil && !errors.Is(err, listing.ErrSuperseded) {
		return err
	}
	return nil
}
