package store

import (
	"context"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/internal/apiclient"
	"github.com/pitabwire/shopdesk/internal/listing"
	"github.com/pitabwire/shopdesk/internal/observability"
	"github.com/pitabwire/shopdesk/internal/query"
	"github.com/pitabwire/shopdesk/internal/syncrelay"
	"github.com/pitabwire/shopdesk/model"
)

// Filter names of the products list.
const (
	ProductFilterCategories = "categories"
	ProductFilterPrice      = "price"
)

// ProductsConfig configures the products store.
type ProductsConfig struct {
	PageSize int
	Policy   listing.FailurePolicy
}

// Products is the product catalogue list with create, update and delete.
type Products struct {
	*listing.Controller[*model.Product]

	api      *apiclient.Resource[*model.Product]
	sync     *syncrelay.Channel
	stopSync func()
	logger   *zap.Logger
	ops      tracker
}

// NewProducts creates the products store. ch may be nil.
func NewProducts(d Deps, ch *syncrelay.Channel, cfg ProductsConfig) *Products {
	if cfg.Policy == "" {
		cfg.Policy = listing.PolicyPreserve
	}
	api := apiclient.NewResource[*model.Product](d.Client, apiclient.ResourceConfig{
		Path:          "/products",
		ItemsKey:      "products",
		TotalKey:      "totalProducts",
		TotalPagesKey: "totalPages",
		ItemKey:       "product",
		Resolver:      d.Resolver,
		Operations: map[apiclient.Operation]string{
			apiclient.OpList:   "listProducts",
			apiclient.OpGet:    "getProduct",
			apiclient.OpCreate: "createProduct",
			apiclient.OpUpdate: "updateProduct",
			apiclient.OpDelete: "deleteProduct",
		},
	})
	logger := d.logger().Named("products")
	q := query.New(query.Defaults{PageSize: cfg.PageSize, SortKey: "createdAt", SortDirection: query.Desc})
	p := &Products{
		Controller: listing.New[*model.Product]("products", api, q, listing.Options{
			Policy:   cfg.Policy,
			Logger:   logger,
			Recorder: d.Recorder,
		}),
		api:    api,
		sync:   ch,
		logger: logger,
	}
	if ch != nil {
		p.stopSync = ch.Feed(p.Controller)
	}
	return p
}

// FilterCategories restricts the list to products in any of the given
// categories.
func (p *Products) FilterCategories(ids ...string) {
	p.UpdateQuery(func(q *query.State) { q.SetFilter(ProductFilterCategories, query.Set(ids)) })
}

// FilterPrice restricts the list by price. Nil bounds are open.
func (p *Products) FilterPrice(lo, hi *decimal.Decimal) {
	p.UpdateQuery(func(q *query.State) {
		q.SetFilter(ProductFilterPrice, query.NumberRange{Min: lo, Max: hi})
	})
}

// Search sets the free-text search.
func (p *Products) Search(text string) {
	p.UpdateQuery(func(q *query.State) { q.SetSearch(text) })
}

// GetProduct loads a single product into the detail state.
func (p *Products) GetProduct(ctx context.Context, id string) (*model.Product, error) {
	return p.LoadOne(ctx, id)
}

// CreateProduct creates a product and reloads the current page so the new
// entry appears in server order.
func (p *Products) CreateProduct(ctx context.Context, in *model.Product) (*model.Product, error) {
	p.ops.begin()
	created, err := p.api.Create(ctx, in)
	if err != nil {
		return nil, p.ops.end(err)
	}
	if created != nil {
		p.logger.Info("product created", zap.String("id", created.ID))
	}
	if err := reload(ctx, p.Controller); err != nil {
		p.logger.Warn("reload after create failed", zap.Error(err))
	}
	return created, p.ops.end(nil)
}

// UpdateProduct sends changes for a product. On success the local entry is
// replaced by the backend's copy, or patched when the backend does not echo
// the product, and syncable fields are relayed.
func (p *Products) UpdateProduct(ctx context.Context, id string, changes model.Patch) (_ *model.Product, err error) {
	ctx, span := observability.StartSpan(ctx, "products.UpdateProduct",
		observability.AttrResource.String("products"),
		observability.AttrResourceID.String(id),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	p.ops.begin()
	updated, err := p.api.Update(ctx, id, changes)
	if err != nil {
		return nil, p.ops.end(err)
	}
	if updated != nil && updated.ID == id {
		p.ReplaceLocal(updated)
	} else if _, err := p.ApplyLocalPatch(id, changes); err != nil {
		p.logger.Error("applying confirmed update locally failed", zap.String("id", id), zap.Error(err))
	}
	p.relay(ctx, id, changes)
	p.logger.Info("product updated", zap.String("id", id), zap.Strings("fields", changes.Fields()))
	return updated, p.ops.end(nil)
}

// DeleteProduct deletes a product and drops it from the current page. Other
// views are told the product is deleted.
func (p *Products) DeleteProduct(ctx context.Context, id string) (err error) {
	ctx, span := observability.StartSpan(ctx, "products.DeleteProduct",
		observability.AttrResource.String("products"),
		observability.AttrResourceID.String(id),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	p.ops.begin()
	if err := p.api.Delete(ctx, id); err != nil {
		return p.ops.end(err)
	}
	p.RemoveLocal(id)
	p.relay(ctx, id, model.Patch{"deleted": true})
	p.logger.Info("product deleted", zap.String("id", id))
	return p.ops.end(nil)
}

// Lookup fetches a product without touching the store's state.
func (p *Products) Lookup(ctx context.Context, id string) (*model.Product, error) {
	return p.api.Get(ctx, id)
}

// Status returns the state of create, update and delete calls.
func (p *Products) Status() OpStatus { return p.ops.status() }

// Close stops applying relayed changes.
func (p *Products) Close() {
	if p.stopSync != nil {
		p.stopSync()
	}
}

// relay publishes the syncable subset of changes.
func (p *Products) relay(ctx context.Context, id string, changes model.Patch) {
	if p.sync == nil {
		return
	}
	out := make(model.Patch)
	for _, f := range p.sync.Fields() {
		if v, ok := changes[f]; ok {
			out[f] = v
		}
	}
	if len(out) == 0 {
		return
	}
	if err := p.sync.Publish(ctx, id, out); err != nil {
		p.logger.Warn("relaying product change failed", zap.String("id", id), zap.Error(err))
	}
}
