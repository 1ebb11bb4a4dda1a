package store

import (
	"context"
	"net/url"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/internal/apiclient"
	"github.com/pitabwire/shopdesk/internal/listing"
	"github.com/pitabwire/shopdesk/internal/observability"
	"github.com/pitabwire/shopdesk/internal/query"
	"github.com/pitabwire/shopdesk/model"
)

// CategoriesConfig configures the categories store.
type CategoriesConfig struct {
	Policy listing.FailurePolicy
}

// Categories is the category list. The backend does not paginate
// categories, so every write is followed by a full reload.
type Categories struct {
	*listing.Controller[*model.Category]

	api    *apiclient.Resource[*model.Category]
	logger *zap.Logger
	ops    tracker
}

// NewCategories creates the categories store.
func NewCategories(d Deps, cfg CategoriesConfig) *Categories {
	if cfg.Policy == "" {
		cfg.Policy = listing.PolicyAdaptive
	}
	api := apiclient.NewResource[*model.Category](d.Client, apiclient.ResourceConfig{
		Path:     "/categories",
		ItemsKey: "categories",
		ItemKey:  "category",
		Resolver: d.Resolver,
		Operations: map[apiclient.Operation]string{
			apiclient.OpList:   "listCategories",
			apiclient.OpGet:    "getCategory",
			apiclient.OpCreate: "createCategory",
			apiclient.OpUpdate: "updateCategory",
			apiclient.OpDelete: "deleteCategory",
		},
	})
	logger := d.logger().Named("categories")
	q := query.New(query.Defaults{PageSize: 100, SortKey: "name", SortDirection: query.Asc})
	return &Categories{
		Controller: listing.New[*model.Category]("categories", displayNames{api}, q, listing.Options{
			Policy:   cfg.Policy,
			Logger:   logger,
			Recorder: d.Recorder,
		}),
		api:    api,
		logger: logger,
	}
}

// FetchCategory loads a single category into the detail state.
func (c *Categories) FetchCategory(ctx context.Context, id string) (*model.Category, error) {
	return c.LoadOne(ctx, id)
}

// CreateCategory creates a category and reloads the list.
func (c *Categories) CreateCategory(ctx context.Context, in model.CategoryInput) error {
	return c.write(ctx, "created", "", func() error {
		_, err := c.api.Create(ctx, in)
		return err
	})
}

// UpdateCategory updates a category and reloads the list.
func (c *Categories) UpdateCategory(ctx context.Context, id string, in model.CategoryInput) error {
	return c.write(ctx, "updated", id, func() error {
		_, err := c.api.Update(ctx, id, in)
		return err
	})
}

// DeleteCategory deletes a category and reloads the list.
func (c *Categories) DeleteCategory(ctx context.Context, id string) error {
	return c.write(ctx, "deleted", id, func() error {
		return c.api.Delete(ctx, id)
	})
}

// Status returns the state of create, update and delete calls.
func (c *Categories) Status() OpStatus { return c.ops.status() }

func (c *Categories) write(ctx context.Context, verb, id string, call func() error) (err error) {
	ctx, span := observability.StartSpan(ctx, "categories."+verb,
		observability.AttrResource.String("categories"),
		observability.AttrResourceID.String(id),
	)
	defer func() { observability.EndSpanWithError(span, err) }()

	c.ops.begin()
	if err := call(); err != nil {
		return c.ops.end(err)
	}
	c.logger.Info("category "+verb, zap.String("id", id))
	return c.ops.end(reload(ctx, c.Controller))
}

// displayNames capitalises category names as they are loaded.
type displayNames struct {
	*apiclient.Resource[*model.Category]
}

func (d displayNames) List(ctx context.Context, params url.Values) (model.Page[*model.Category], error) {
	page, err := d.Resource.List(ctx, params)
	for _, c := range page.Items {
		if c != nil {
			c.Name = capitalize(c.Name)
		}
	}
	return page, err
}

func capitalize(s string) string {
	r, n := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[n:]
}
