package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/marketloop/storefront-backend/api/controllers"
	"github.com/marketloop/storefront-backend/api/middleware"
	cartsvc "github.com/marketloop/storefront-backend/internal/cart"
	"github.com/marketloop/storefront-backend/internal/catalog"
	paymentsvc "github.com/marketloop/storefront-backend/internal/payments"
	usersvc "github.com/marketloop/storefront-backend/internal/users"
	"github.com/marketloop/storefront-backend/pkg/config"
	"github.com/marketloop/storefront-backend/pkg/logger"
	"github.com/marketloop/storefront-backend/pkg/redis"
)

// Deps bundles everything the router wires into handlers.
type Deps struct {
	Config   *config.Config
	Logger   *logger.Logger
	DB       controllers.Pinger
	Redis    *redis.Client
	Registry *prometheus.Registry
	Catalog  catalog.Service
	Cart     cartsvc.Service
	Payments paymentsvc.Service
	Users    usersvc.Service
}

func New(deps Deps) http.Handler {
	cfg := deps.Config
	logg := deps.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.CORS),
	)

	loginPolicy := middleware.NewAuthRateLimitPolicy(
		"login",
		cfg.AuthRateLimit.LoginWindow,
		cfg.AuthRateLimit.LoginIPLimit,
		cfg.AuthRateLimit.LoginEmailLimit,
	)
	registerPolicy := middleware.NewAuthRateLimitPolicy(
		"register",
		cfg.AuthRateLimit.RegisterWindow,
		cfg.AuthRateLimit.RegisterIPLimit,
		cfg.AuthRateLimit.RegisterEmailLimit,
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessDeps(deps)))
	})

	if deps.Registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/auth", func(r chi.Router) {
		r.With(middleware.AuthRateLimit(registerPolicy, deps.Redis, logg)).Post("/register", controllers.AuthRegister(deps.Users, logg))
		r.With(middleware.AuthRateLimit(loginPolicy, deps.Redis, logg)).Post("/login", controllers.AuthLogin(deps.Users, logg))
	})

	r.Route("/api/v1/products", func(r chi.Router) {
		r.Get("/", controllers.ProductList(deps.Catalog, logg))
		r.Get("/{slug}", controllers.ProductDetail(deps.Catalog, logg))
	})

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.OptionalAuth(cfg.JWT, logg))
		r.Get("/", controllers.CartGet(deps.Cart, logg))
		r.Get("/stat", controllers.CartStat(deps.Cart, logg))
		r.Get("/items/exists", controllers.CartItemExists(deps.Cart, logg))
		r.Post("/items", controllers.CartAddItem(deps.Cart, logg))
		r.Patch("/items/{itemId}", controllers.CartSetItemQuantity(deps.Cart, logg))
		r.Delete("/items/{itemId}", controllers.CartRemoveItem(deps.Cart, logg))
	})

	r.Route("/api/v1/payments", func(r chi.Router) {
		r.With(middleware.Auth(cfg.JWT, logg)).Post("/initiate", controllers.PaymentInitiate(deps.Payments, logg))
		// the provider redirect may arrive with or without the shopper's session
		r.Group(func(r chi.Router) {
			r.Use(middleware.OptionalAuth(cfg.JWT, logg))
			r.Get("/callback", controllers.PaymentCallback(deps.Payments, logg))
			r.Post("/callback", controllers.PaymentCallback(deps.Payments, logg))
		})
	})

	r.Route("/api/v1/users/me", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Get("/", controllers.UserMe(deps.Users, logg))
		r.Get("/email", controllers.UserEmail(deps.Users, logg))
		r.Get("/profile", controllers.UserProfileGet(deps.Users, logg))
		r.Put("/profile", controllers.UserProfileUpdate(deps.Users, logg))
	})

	return r
}

func readinessDeps(deps Deps) map[string]controllers.Pinger {
	out := map[string]controllers.Pinger{}
	if deps.DB != nil {
		out["database"] = deps.DB
	}
	if deps.Redis != nil {
		out["redis"] = deps.Redis
	}
	return out
}
