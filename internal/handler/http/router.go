package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/naman3006/E-commerce-sub001/internal/access"
	"github.com/naman3006/E-commerce-sub001/internal/auth"
	"github.com/naman3006/E-commerce-sub001/pkg/health"
	"github.com/naman3006/E-commerce-sub001/pkg/middleware"
)

// RouterConfig carries the HTTP-edge settings that do not belong to the
// cart handlers themselves.
type RouterConfig struct {
	PprofCIDRs []string
	CORS       middleware.CORSConfig
	Metrics    *middleware.HTTPMetrics
}

// NewRouter creates a chi router with all cart service routes registered.
// Admin routes are only mounted when validateToken is non-nil.
func NewRouter(
	cartAccess *access.Service,
	validateToken middleware.TokenValidator,
	healthHandler *health.Handler,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.RequestLogging(logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Handler)
	}
	r.Use(middleware.Tracing("cart"))
	r.Use(middleware.RequestLogger(logger))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)

	cartHandler := NewCartHandler(cartAccess, logger)

	r.Route("/api/v1/cart", func(r chi.Router) {
		r.Use(middleware.NoStore)
		r.Use(ContentTypeJSON)
		r.Use(OwnerFromHeaders)

		r.Get("/", cartHandler.GetCart)
		r.Delete("/", cartHandler.ClearCart)
		r.Get("/validate", cartHandler.ValidateCart)
		r.Post("/merge", cartHandler.MergeCart)

		r.Post("/items", cartHandler.AddItem)
		r.Patch("/items/{productId}", cartHandler.UpdateItem)
		r.Put("/items/{productId}", cartHandler.UpdateItem)
		r.Delete("/items/{productId}", cartHandler.RemoveItem)
	})

	if validateToken != nil {
		adminHandler := NewAdminHandler(cartAccess, logger)

		r.Route("/api/v1/admin/carts/{ownerId}", func(r chi.Router) {
			r.Use(middleware.NoStore)
			r.Use(ContentTypeJSON)
			r.Use(middleware.Auth(validateToken))
			r.Use(middleware.RequireRole(auth.RoleAdmin))

			r.Get("/", adminHandler.GetCart)
			r.Delete("/", adminHandler.ClearCart)
			r.Post("/items", adminHandler.AddItem)
			r.Patch("/items/{productId}", adminHandler.UpdateItem)
			r.Delete("/items/{productId}", adminHandler.RemoveItem)
		})
	} else {
		logger.Warn("admin cart routes disabled: no token validator configured")
	}

	return r
}
