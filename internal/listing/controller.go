// Package listing coordinates list and detail fetches for one resource type
// and reconciles the results into an observable state.
package listing

import (
	"context"
	"encoding/json"
	"errors"
	"maps"
	"net/url"
	"reflect"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/internal/query"
	"github.com/pitabwire/shopdesk/model"
)

const tracerName = "github.com/pitabwire/shopdesk/internal/listing"

// ErrSuperseded is returned by a Load whose result was discarded because a
// newer Load started before it completed.
var ErrSuperseded = errors.New("listing: load superseded by a newer request")

// Fetcher is the HTTP collaborator of a controller.
type Fetcher[T model.Resource] interface {
	List(ctx context.Context, params url.Values) (model.Page[T], error)
	Get(ctx context.Context, id string) (T, error)
}

// Recorder receives controller metrics. A nil Recorder disables recording.
type Recorder interface {
	ObserveLoad(resource, outcome string, elapsed time.Duration)
	IncSuperseded(resource string)
	IncLocalPatch(resource, kind string)
}

// Load outcomes reported to the Recorder.
const (
	OutcomeSuccess    = "success"
	OutcomeError      = "error"
	OutcomeSuperseded = "superseded"
)

// Detail is the state of the single-item fetch.
type Detail[T model.Resource] struct {
	Item    T                    `json:"item"`
	Loaded  bool                 `json:"loaded"`
	Loading bool                 `json:"loading"`
	Error   *model.ErrorEnvelope `json:"error,omitempty"`
}

// Snapshot is a consistent copy of a controller's state. Items share element
// pointers with the controller; elements are never mutated after being
// published in a snapshot.
type Snapshot[T model.Resource] struct {
	Resource   string                     `json:"resource"`
	Items      []T                        `json:"items"`
	TotalCount int                        `json:"totalCount"`
	TotalPages int                        `json:"totalPages"`
	Page       int                        `json:"page"`
	PageSize   int                        `json:"pageSize"`
	Loading    bool                       `json:"loading"`
	Error      *model.ErrorEnvelope       `json:"error,omitempty"`
	Query      query.View                 `json:"query"`
	Meta       map[string]json.RawMessage `json:"meta,omitempty"`
	Detail     Detail[T]                  `json:"detail"`
}

// Options configures a Controller.
type Options struct {
	Policy   FailurePolicy
	Logger   *zap.Logger
	Recorder Recorder
	Tracer   trace.Tracer
}

// Controller owns the list, pagination and detail state of one resource
// type. All methods are safe for concurrent use. At most one list request is
// live at any time: a Load cancels the request of any Load still in flight
// and the older result is discarded.
type Controller[T model.Resource] struct {
	name    string
	fetcher Fetcher[T]
	policy  FailurePolicy
	logger  *zap.Logger
	rec     Recorder
	tracer  trace.Tracer

	mu         sync.Mutex
	query      *query.State
	items      []T
	total      int
	totalPages int
	page       int
	loading    bool
	err        *model.ErrorEnvelope
	meta       map[string]json.RawMessage
	seq        uint64
	cancel     context.CancelFunc

	detail    Detail[T]
	detailSeq uint64

	obsMu     sync.Mutex
	observers map[uint64]func(Snapshot[T])
	nextObs   uint64
}

// New creates a Controller for the named resource.
func New[T model.Resource](name string, fetcher Fetcher[T], q *query.State, opts Options) *Controller[T] {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Policy == "" {
		opts.Policy = PolicyPreserve
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	return &Controller[T]{
		name:      name,
		fetcher:   fetcher,
		policy:    opts.Policy,
		logger:    opts.Logger.With(zap.String("resource", name)),
		rec:       opts.Recorder,
		tracer:    opts.Tracer,
		query:     q,
		page:      q.Page(),
		observers: make(map[uint64]func(Snapshot[T])),
	}
}

// Name returns the resource name.
func (c *Controller[T]) Name() string { return c.name }

// Policy returns the failure policy in effect.
func (c *Controller[T]) Policy() FailurePolicy { return c.policy }

// Load fetches the current query. A page greater than zero is applied first.
// When the response shows the page lies beyond the last page, the last page
// is fetched instead within the same Load, so the reported page always
// matches the items. On success the list, totals and page are replaced
// together and the error is cleared. On failure the error is
// recorded and the list is kept or cleared according to the failure policy.
//
// If another Load starts before this one completes, this Load's request is
// cancelled, its result is discarded and ErrSuperseded is returned.
func (c *Controller[T]) Load(ctx context.Context, page int) error {
	c.mu.Lock()
	if page > 0 {
		c.query.SetPage(page)
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.seq++
	seq := c.seq
	reqCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	q := c.query.Clone()
	c.loading = true
	snap := c.snapshotLocked()
	c.mu.Unlock()
	defer cancel()

	c.notify(snap)

	reqCtx, span := c.tracer.Start(reqCtx, "listing.Load", trace.WithAttributes(
		attribute.String("shopdesk.resource", c.name),
		attribute.Int("shopdesk.page", q.Page()),
		attribute.Int64("shopdesk.load_seq", int64(seq)),
	))
	defer span.End()

	params := q.Params()
	c.logger.Debug("loading list", zap.Uint64("seq", seq), zap.String("params", params.Encode()))

	requested := q.Page()
	start := time.Now()
	result, err := c.fetcher.List(reqCtx, params)
	if last := TotalPages(result.TotalCount, q.PageSize()); err == nil && last > 0 && requested > last {
		c.logger.Debug("page beyond the last page, loading the last page",
			zap.Int("page", requested),
			zap.Int("last", last),
		)
		q.SetPage(last)
		span.SetAttributes(attribute.Int("shopdesk.page", last))
		result, err = c.fetcher.List(reqCtx, q.Params())
	}
	elapsed := time.Since(start)

	c.mu.Lock()
	if seq != c.seq {
		c.mu.Unlock()
		c.logger.Debug("discarding superseded load", zap.Uint64("seq", seq))
		span.SetAttributes(attribute.Bool("shopdesk.superseded", true))
		if c.rec != nil {
			c.rec.IncSuperseded(c.name)
			c.rec.ObserveLoad(c.name, OutcomeSuperseded, elapsed)
		}
		return ErrSuperseded
	}
	c.cancel = nil
	c.loading = false

	if err != nil {
		env := model.AsEnvelope(err)
		c.err = env
		cleared := c.policy.clears(env)
		if cleared {
			c.items = nil
			c.total = 0
			c.totalPages = 0
			c.meta = nil
		}
		snap = c.snapshotLocked()
		c.mu.Unlock()

		span.RecordError(env)
		span.SetStatus(codes.Error, env.Message)
		c.logger.Warn("list load failed",
			zap.String("code", env.Code),
			zap.String("message", env.Message),
			zap.Bool("cleared", cleared),
			zap.Duration("elapsed", elapsed),
		)
		if c.rec != nil {
			c.rec.ObserveLoad(c.name, OutcomeError, elapsed)
		}
		c.notify(snap)
		return env
	}

	pageSize := q.PageSize()
	c.items = slices.DeleteFunc(slices.Clone(result.Items), isNil[T])
	c.total = result.TotalCount
	c.totalPages = TotalPages(result.TotalCount, pageSize)
	c.page = q.Page()
	if c.page != requested && c.query.Page() == requested {
		c.query.SetPage(c.page)
	}
	c.err = nil
	c.meta = result.Meta
	snap = c.snapshotLocked()
	c.mu.Unlock()

	c.logger.Info("list loaded",
		zap.Int("page", snap.Page),
		zap.Int("items", len(snap.Items)),
		zap.Int("total", snap.TotalCount),
		zap.Duration("elapsed", elapsed),
	)
	if c.rec != nil {
		c.rec.ObserveLoad(c.name, OutcomeSuccess, elapsed)
	}
	c.notify(snap)
	return nil
}

// LoadOne fetches a single item. It never touches the list or pagination
// state and has its own loading and error fields. A LoadOne superseded by a
// newer LoadOne leaves the detail state to the newer call.
func (c *Controller[T]) LoadOne(ctx context.Context, id string) (T, error) {
	c.mu.Lock()
	c.detailSeq++
	seq := c.detailSeq
	c.detail.Loading = true
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)

	ctx, span := c.tracer.Start(ctx, "listing.LoadOne", trace.WithAttributes(
		attribute.String("shopdesk.resource", c.name),
		attribute.String("shopdesk.resource_id", id),
	))
	defer span.End()

	item, err := c.fetcher.Get(ctx, id)
	if err == nil && isNil(item) {
		err = model.NewNotFoundError("The requested item does not exist")
	}

	c.mu.Lock()
	if seq != c.detailSeq {
		c.mu.Unlock()
		var zero T
		return zero, ErrSuperseded
	}
	c.detail.Loading = false
	if err != nil {
		env := model.AsEnvelope(err)
		c.detail.Error = env
		snap = c.snapshotLocked()
		c.mu.Unlock()
		span.RecordError(env)
		span.SetStatus(codes.Error, env.Message)
		c.logger.Warn("item load failed", zap.String("id", id), zap.String("code", env.Code))
		c.notify(snap)
		var zero T
		return zero, env
	}
	c.detail.Item = item
	c.detail.Loaded = true
	c.detail.Error = nil
	snap = c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
	return item, nil
}

// ApplyLocalPatch merges p into the list entry with the given id, and into
// the detail item when it has the same id. It reports whether a list entry
// was patched; an id that is not on the current page is a no-op.
func (c *Controller[T]) ApplyLocalPatch(id string, p model.Patch) (bool, error) {
	if len(p) == 0 {
		return false, nil
	}
	c.mu.Lock()
	found := false
	for i, it := range c.items {
		if it.ResourceID() != id {
			continue
		}
		patched, err := patchCopy(it, p)
		if err != nil {
			c.mu.Unlock()
			return false, err
		}
		c.items = slices.Clone(c.items)
		c.items[i] = patched
		found = true
		break
	}
	detailPatched := false
	if c.detailIs(id) {
		if patched, err := patchCopy(c.detail.Item, p); err == nil {
			c.detail.Item = patched
			detailPatched = true
		}
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if !found {
		c.logger.Debug("patch target not on current page", zap.String("id", id))
	} else if c.rec != nil {
		c.rec.IncLocalPatch(c.name, "patch")
	}
	if found || detailPatched {
		c.notify(snap)
	}
	return found, nil
}

// ReplaceLocal swaps the list entry that has item's id for item. It reports
// whether an entry was replaced.
func (c *Controller[T]) ReplaceLocal(item T) bool {
	if isNil(item) {
		return false
	}
	id := item.ResourceID()
	c.mu.Lock()
	idx := slices.IndexFunc(c.items, func(it T) bool { return it.ResourceID() == id })
	if idx >= 0 {
		c.items = slices.Clone(c.items)
		c.items[idx] = item
	}
	if c.detailIs(id) {
		c.detail.Item = item
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if idx < 0 {
		return false
	}
	if c.rec != nil {
		c.rec.IncLocalPatch(c.name, "replace")
	}
	c.notify(snap)
	return true
}

// RemoveLocal drops the list entry with the given id and decrements the
// totals. It reports whether an entry was removed.
func (c *Controller[T]) RemoveLocal(id string) bool {
	c.mu.Lock()
	idx := slices.IndexFunc(c.items, func(it T) bool { return it.ResourceID() == id })
	if idx < 0 {
		c.mu.Unlock()
		return false
	}
	c.items = slices.Delete(slices.Clone(c.items), idx, idx+1)
	if c.total > 0 {
		c.total--
	}
	c.totalPages = TotalPages(c.total, c.query.PageSize())
	if c.detailIs(id) {
		c.detail = Detail[T]{}
	}
	snap := c.snapshotLocked()
	c.mu.Unlock()

	if c.rec != nil {
		c.rec.IncLocalPatch(c.name, "remove")
	}
	c.notify(snap)
	return true
}

// UpdateQuery mutates the query state. It does not fetch.
func (c *Controller[T]) UpdateQuery(fn func(q *query.State)) {
	c.mu.Lock()
	fn(c.query)
	snap := c.snapshotLocked()
	c.mu.Unlock()
	c.notify(snap)
}

// Query returns a copy of the current query state.
func (c *Controller[T]) Query() *query.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query.Clone()
}

// Find returns the list entry with the given id.
func (c *Controller[T]) Find(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, it := range c.items {
		if it.ResourceID() == id {
			return it, true
		}
	}
	var zero T
	return zero, false
}

// Snapshot returns a consistent copy of the current state.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn to receive a snapshot after every state change. The
// returned function removes the registration.
func (c *Controller[T]) Subscribe(fn func(Snapshot[T])) (unsubscribe func()) {
	c.obsMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.obsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.obsMu.Lock()
			delete(c.observers, id)
			c.obsMu.Unlock()
		})
	}
}

// detailIs reports whether the loaded detail item has the given id. Must be
// called with mu held.
func (c *Controller[T]) detailIs(id string) bool {
	return c.detail.Loaded && !isNil(c.detail.Item) && c.detail.Item.ResourceID() == id
}

func (c *Controller[T]) snapshotLocked() Snapshot[T] {
	items := make([]T, len(c.items))
	copy(items, c.items)
	return Snapshot[T]{
		Resource:   c.name,
		Items:      items,
		TotalCount: c.total,
		TotalPages: c.totalPages,
		Page:       c.page,
		PageSize:   c.query.PageSize(),
		Loading:    c.loading,
		Error:      c.err,
		Query:      c.query.View(),
		Meta:       maps.Clone(c.meta),
		Detail:     c.detail,
	}
}

func (c *Controller[T]) notify(snap Snapshot[T]) {
	c.obsMu.Lock()
	fns := make([]func(Snapshot[T]), 0, len(c.observers))
	for _, fn := range c.observers {
		fns = append(fns, fn)
	}
	c.obsMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// TotalPages returns ceil(total/pageSize), or zero when either is not
// positive.
func TotalPages(total, pageSize int) int {
	if total <= 0 || pageSize <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// isNil reports whether v is nil, including a nil pointer held in T.
func isNil[T any](v T) bool {
	rv := reflect.ValueOf(any(v))
	if !rv.IsValid() {
		return true
	}
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}

func patchCopy[T model.Resource](it T, p model.Patch) (T, error) {
	cp, ok := it.Clone().(T)
	if !ok {
		var zero T
		return zero, errors.New("listing: Clone returned a different type")
	}
	if err := cp.ApplyPatch(p); err != nil {
		var zero T
		return zero, err
	}
	return cp, nil
}
