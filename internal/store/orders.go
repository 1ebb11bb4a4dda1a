package store

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/internal/apiclient"
	"github.com/pitabwire/shopdesk/internal/listing"
	"github.com/pitabwire/shopdesk/internal/observability"
	"github.com/pitabwire/shopdesk/internal/query"
	"github.com/pitabwire/shopdesk/internal/syncrelay"
	"github.com/pitabwire/shopdesk/model"
)

// Filter names of the orders list.
const (
	OrderFilterStatus = "status"
	OrderFilterDate   = "date"
	OrderFilterAmount = "amount"
	OrderFilterUser   = "userId"
)

// OrdersConfig configures the orders store.
type OrdersConfig struct {
	PageSize int
	Policy   listing.FailurePolicy
	// UserID scopes the list to one customer's orders. It survives Reset.
	UserID string
}

// Orders is the orders list with status updates and order analytics.
type Orders struct {
	*listing.Controller[*model.Order]

	api        *apiclient.Resource[*model.Order]
	sync       *syncrelay.Channel
	stopSync   func()
	logger     *zap.Logger
	ops        tracker
	analyticMu sync.Mutex
	analytics  model.OrderAnalytics
}

// NewOrders creates the orders store. ch may be nil, in which case status
// changes are not relayed to other views.
func NewOrders(d Deps, ch *syncrelay.Channel, cfg OrdersConfig) *Orders {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.Policy == "" {
		cfg.Policy = listing.PolicyClear
	}
	defaults := query.Defaults{
		PageSize:      cfg.PageSize,
		SortKey:       "createdAt",
		SortDirection: query.Desc,
	}
	if cfg.UserID != "" {
		defaults.Filters = map[string]query.Value{OrderFilterUser: query.Scalar(cfg.UserID)}
	}

	api := apiclient.NewResource[*model.Order](d.Client, apiclient.ResourceConfig{
		Path:          "/orders",
		ListPath:      "/orders/all",
		ItemsKey:      "orders",
		TotalKey:      "totalOrders",
		TotalPagesKey: "totalPages",
		ItemKey:       "order",
		Resolver:      d.Resolver,
		Operations: map[apiclient.Operation]string{
			apiclient.OpList: "listOrders",
			apiclient.OpGet:  "getOrder",
		},
	})
	logger := d.logger().Named("orders")
	o := &Orders{
		Controller: listing.New[*model.Order]("orders", api, query.New(defaults), listing.Options{
			Policy:   cfg.Policy,
			Logger:   logger,
			Recorder: d.Recorder,
		}),
		api:    api,
		sync:   ch,
		logger: logger,
	}
	if ch != nil {
		o.stopSync = ch.Feed(o.Controller)
	}
	return o
}

// HandleSort applies a new sort and loads page 1.
func (o *Orders) HandleSort(ctx context.Context, key string, dir query.Direction) error {
	o.UpdateQuery(func(q *query.State) { q.SetSort(key, dir) })
	return o.Load(ctx, 1)
}

// Reset restores the default query and loads page 1.
func (o *Orders) Reset(ctx context.Context) error {
	o.UpdateQuery(func(q *query.State) { q.Reset() })
	return o.Load(ctx, 1)
}

// FilterStatus restricts the list to the given statuses. No statuses clears
// the filter.
func (o *Orders) FilterStatus(statuses ...model.OrderStatus) {
	set := make(query.Set, 0, len(statuses))
	for _, s := range statuses {
		set = append(set, string(s))
	}
	o.UpdateQuery(func(q *query.State) { q.SetFilter(OrderFilterStatus, set) })
}

// FilterDates restricts the list to orders created between start and end.
// Zero times leave that side open.
func (o *Orders) FilterDates(start, end time.Time) {
	o.UpdateQuery(func(q *query.State) {
		q.SetFilter(OrderFilterDate, query.DateRange{Start: start, End: end})
	})
}

// FilterAmount restricts the list by order total. Nil bounds are open.
func (o *Orders) FilterAmount(lo, hi *decimal.Decimal) {
	o.UpdateQuery(func(q *query.State) {
		q.SetFilter(OrderFilterAmount, query.NumberRange{Min: lo, Max: hi})
	})
}

// Search sets the free-text search.
func (o *Orders) Search(text string) {
	o.UpdateQuery(func(q *query.State) { q.SetSearch(text) })
}

// FetchOrder loads a single order into the detail state.
func (o *Orders) FetchOrder(ctx context.Context, id string) (*model.Order, error) {
	return o.LoadOne(ctx, id)
}

// UpdateStatus changes an order's status on the backend. Only after the
// backend confirms is the local entry patched and the change relayed.
func (o *Orders) UpdateStatus(ctx context.Context, id string, status model.OrderStatus) (err error) {
	ctx, span := observability.StartSpan(ctx, "orders.UpdateStatus",
		observability.AttrResource.String("orders"),
		observability.AttrResourceID.String(id),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	if !slices.Contains(model.AllOrderStatuses, status) {
		return model.NewValidationRejectedError(fmt.Sprintf("Unknown order status %q", status), []model.FieldError{
			{Field: "status", Message: "must be one of Pending, Processing, Shipped, Canceled, Delivered"},
		})
	}

	o.ops.begin()
	_, err = o.api.Action(ctx, http.MethodPatch, id, "status", map[string]string{"status": string(status)})
	if err != nil {
		o.logger.Warn("order status update rejected",
			zap.String("id", id),
			zap.String("status", string(status)),
			zap.Error(err),
		)
		return o.ops.end(err)
	}

	patch := model.Patch{"status": status}
	if _, err := o.ApplyLocalPatch(id, patch); err != nil {
		o.logger.Error("applying confirmed status locally failed", zap.String("id", id), zap.Error(err))
	}
	if o.sync != nil {
		if err := o.sync.Publish(ctx, id, patch); err != nil {
			o.logger.Warn("relaying status change failed", zap.String("id", id), zap.Error(err))
		}
	}
	o.logger.Info("order status updated", zap.String("id", id), zap.String("status", string(status)))
	return o.ops.end(nil)
}

// NextStatusOptions returns the statuses an order in status s may move to:
// the next fulfilment stage, if any, followed by Canceled. Terminal statuses
// have no options.
func NextStatusOptions(s model.OrderStatus) []model.OrderStatus {
	if s.Terminal() {
		return nil
	}
	var opts []model.OrderStatus
	if i := slices.Index(model.OrderStages, s); i >= 0 && i+1 < len(model.OrderStages) {
		opts = append(opts, model.OrderStages[i+1])
	}
	return append(opts, model.OrderCanceled)
}

// FetchAnalytics loads order totals, scoped to one customer when userID is
// set.
func (o *Orders) FetchAnalytics(ctx context.Context, userID string) (model.OrderAnalytics, error) {
	o.ops.begin()
	var params url.Values
	if userID != "" {
		params = url.Values{"userId": {userID}}
	}
	env, err := o.api.Client().Do(ctx, apiclient.Request{
		Method: http.MethodGet,
		Path:   "/orders/analytics",
		Query:  params,
	})
	if err != nil {
		return model.OrderAnalytics{}, o.ops.end(err)
	}
	var a model.OrderAnalytics
	if err := env.DecodeData(&a); err != nil {
		return model.OrderAnalytics{}, o.ops.end(err)
	}

	o.analyticMu.Lock()
	o.analytics = a
	o.analyticMu.Unlock()
	return a, o.ops.end(nil)
}

// Analytics returns the last loaded order totals.
func (o *Orders) Analytics() model.OrderAnalytics {
	o.analyticMu.Lock()
	defer o.analyticMu.Unlock()
	return o.analytics
}

// Status returns the state of status updates and analytics loads.
func (o *Orders) Status() OpStatus { return o.ops.status() }

// Close stops applying relayed status changes.
func (o *Orders) Close() {
	if o.stopSync != nil {
		o.stopSync()
	}
}
