package store

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/pitabwire/shopdesk/internal/apiclient"
	"github.com/pitabwire/shopdesk/internal/listing"
	"github.com/pitabwire/shopdesk/internal/observability"
	"github.com/pitabwire/shopdesk/internal/query"
	"github.com/pitabwire/shopdesk/model"
)

// CustomerFilterRole is the role filter of the customers list.
const CustomerFilterRole = "role"

const favouriteLookups = 4

// ProductLookup resolves a product by id.
type ProductLookup interface {
	Lookup(ctx context.Context, id string) (*model.Product, error)
}

// CustomersConfig configures the customers store.
type CustomersConfig struct {
	PageSize int
	Policy   listing.FailurePolicy
}

// CustomerCounts are the aggregate counters returned with the customer list.
type CustomerCounts struct {
	Total     int `json:"total"`
	New       int `json:"newCustomers"`
	Returning int `json:"returningCustomers"`
}

// Customers is the customer list with detail and delete.
type Customers struct {
	*listing.Controller[*model.Customer]

	api      *apiclient.Resource[*model.Customer]
	products ProductLookup
	logger   *zap.Logger
	ops      tracker
}

// NewCustomers creates the customers store. products resolves favourite
// product names for the detail view and may be nil.
func NewCustomers(d Deps, products ProductLookup, cfg CustomersConfig) *Customers {
	if cfg.Policy == "" {
		cfg.Policy = listing.PolicyPreserve
	}
	api := apiclient.NewResource[*model.Customer](d.Client, apiclient.ResourceConfig{
		Path:     "/users",
		ItemsKey: "users",
		TotalKey: "totalUsers",
		ItemKey:  "user",
		Resolver: d.Resolver,
		Operations: map[apiclient.Operation]string{
			apiclient.OpList:   "listUsers",
			apiclient.OpGet:    "getUser",
			apiclient.OpDelete: "deleteUser",
		},
	})
	logger := d.logger().Named("customers")
	q := query.New(query.Defaults{PageSize: cfg.PageSize, SortKey: "createdAt", SortDirection: query.Desc})
	return &Customers{
		Controller: listing.New[*model.Customer]("customers", api, q, listing.Options{
			Policy:   cfg.Policy,
			Logger:   logger,
			Recorder: d.Recorder,
		}),
		api:      api,
		products: products,
		logger:   logger,
	}
}

// FilterRoles restricts the list to the given roles.
func (c *Customers) FilterRoles(roles ...string) {
	c.UpdateQuery(func(q *query.State) { q.SetFilter(CustomerFilterRole, query.Set(roles)) })
}

// Search sets the free-text search.
func (c *Customers) Search(text string) {
	c.UpdateQuery(func(q *query.State) { q.SetSearch(text) })
}

// Counts returns the totals reported with the last successful list load.
func (c *Customers) Counts() CustomerCounts {
	snap := c.Snapshot()
	return CustomerCounts{
		Total:     snap.TotalCount,
		New:       metaInt(snap.Meta, "newCustomers"),
		Returning: metaInt(snap.Meta, "totalUsersWithOrders"),
	}
}

// FetchCustomer loads a customer and resolves the names of their favourite
// products concurrently. A favourite that cannot be resolved is reported
// as an empty name.
func (c *Customers) FetchCustomer(ctx context.Context, id string) (*model.CustomerDetail, error) {
	cust, err := c.LoadOne(ctx, id)
	if err != nil {
		return nil, err
	}
	if cust == nil {
		return nil, model.NewNotFoundError("Customer not found")
	}
	detail := &model.CustomerDetail{Customer: cust, FavouriteNames: make([]string, len(cust.Favourites))}
	if c.products == nil || len(cust.Favourites) == 0 {
		return detail, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(favouriteLookups)
	for i, pid := range cust.Favourites {
		g.Go(func() error {
			p, err := c.products.Lookup(gctx, pid)
			if err != nil {
				c.logger.Debug("favourite product not resolved", zap.String("product", pid), zap.Error(err))
				return nil
			}
			if p != nil {
				detail.FavouriteNames[i] = p.Name
			}
			return nil
		})
	}
	_ = g.Wait()
	return detail, nil
}

// RemoveCustomer deletes a customer and drops them from the current page.
func (c *Customers) RemoveCustomer(ctx context.Context, id string) (err error) {
	ctx, span := observability.StartSpan(ctx, "customers.RemoveCustomer",
		observability.AttrResource.String("customers"),
		observability.AttrResourceID.String(id),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	c.ops.begin()
	if err := c.api.Delete(ctx, id); err != nil {
		return c.ops.end(err)
	}
	c.RemoveLocal(id)
	c.logger.Info("customer deleted", zap.String("id", id))
	return c.ops.end(nil)
}

// Status returns the state of delete calls.
func (c *Customers) Status() OpStatus { return c.ops.status() }

func metaInt(meta map[string]json.RawMessage, key string) int {
	raw, ok := meta[key]
	if !ok {
		return 0
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	v, err := n.Int64()
	if err != nil {
		f, ferr := n.Float64()
		if ferr != nil {
			return 0
		}
		return int(f)
	}
	return int(v)
}
