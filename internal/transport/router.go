package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/pitabwire/shopdesk/internal/config"
	"github.com/pitabwire/shopdesk/internal/observability"
	"github.com/pitabwire/shopdesk/internal/store"
)

// Dependencies holds everything the router serves. Nil stores leave their
// routes unregistered.
type Dependencies struct {
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Readiness observability.ReadinessChecks
	// MetricsHandler serves /metrics; the default Prometheus registry when nil.
	MetricsHandler http.Handler

	Auth        AuthService
	Orders      *store.Orders
	Products    *store.Products
	Customers   *store.Customers
	Categories  *store.Categories
	Dashboard   *store.Dashboard
	Settings    *store.Settings
	StoreConfig *store.StoreConfig
	Profile     *store.Profile
}

// NewRouter creates the chi router. Health, readiness, metrics and the
// sign-in routes bypass RequireSession.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = config.Defaults()
	}

	r := chi.NewRouter()
	r.Use(Recovery(logger))
	r.Use(CORS(cfg.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(observability.TracingMiddleware)
	if deps.Metrics != nil {
		r.Use(deps.Metrics.MetricsMiddleware)
	}
	r.Use(RequestLogging(logger))
	r.Use(HandlerTimeout(cfg.Server.HandlerTimeout))

	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if mc := cfg.Observability.Metrics; mc.Enabled {
		metrics := deps.MetricsHandler
		if metrics == nil {
			metrics = observability.Handler()
		}
		path := mc.Path
		if path == "" {
			path = "/metrics"
		}
		r.Method(http.MethodGet, path, metrics)
	}

	if deps.Auth == nil {
		return r
	}

	ah := &authHandler{auth: deps.Auth, logger: logger}
	r.Route("/api/auth", func(r chi.Router) {
		r.Post("/login", ah.login)
		r.Post("/register", ah.register)
		r.Post("/logout", ah.logout)
		r.Get("/session", ah.session)
		r.Post("/forgot-password", ah.forgotPassword)
		r.Post("/reset-password", ah.resetPassword)
	})

	r.Group(func(r chi.Router) {
		r.Use(RequireSession(deps.Auth))

		if o := deps.Orders; o != nil {
			oh := &ordersHandler{orders: o}
			r.Route("/api/orders", func(r chi.Router) {
				r.Get("/analytics", oh.analytics)
				r.Post("/{id}/status", oh.updateStatus)
				mountList(r, o, getter(o.FetchOrder), orderFilters)
			})
		}
		if p := deps.Products; p != nil {
			ph := &productsHandler{products: p}
			r.Route("/api/products", func(r chi.Router) {
				r.Post("/", ph.create)
				r.Patch("/{id}", ph.update)
				r.Delete("/{id}", ph.delete)
				mountList(r, p, getter(p.GetProduct), productFilters)
			})
		}
		if c := deps.Customers; c != nil {
			ch := &customersHandler{customers: c}
			r.Route("/api/customers", func(r chi.Router) {
				r.Get("/counts", ch.counts)
				r.Delete("/{id}", ch.delete)
				mountList(r, c, getter(c.FetchCustomer), customerFilters)
			})
		}
		if c := deps.Categories; c != nil {
			ch := &categoriesHandler{categories: c}
			r.Route("/api/categories", func(r chi.Router) {
				r.Post("/", ch.create)
				r.Patch("/{id}", ch.update)
				r.Delete("/{id}", ch.delete)
				mountList(r, c, getter(c.FetchCategory), nil)
			})
		}
		if d := deps.Dashboard; d != nil {
			r.Get("/api/dashboard/metrics", (&dashboardHandler{dashboard: d}).metrics)
		}
		if s := deps.Settings; s != nil {
			sh := &settingsHandler{settings: s}
			r.Get("/api/settings", sh.get)
			r.Patch("/api/settings", sh.patch)
		}
		if p := deps.Profile; p != nil {
			ph := &profileHandler{profile: p}
			r.Route("/api/profile", func(r chi.Router) {
				r.Get("/", ph.get)
				r.Put("/", ph.save)
				r.Put("/image", ph.updateImage)
			})
		}
		if s := deps.StoreConfig; s != nil {
			sh := &storeConfigHandler{cfg: s}
			r.Get("/api/store-config", sh.get)
			r.Put("/api/store-config", sh.put)
		}
	})

	return r
}
