//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"net/http"

	"github.com/ashureev/worldlog/internal/metrics"
	"github.com/ashureev/worldlog/internal/middleware"
	"github.com/ashureev/worldlog/internal/store"
	"github.com/ashureev/worldlog/web"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterConfig collects everything the router serves. Archive and Metrics may be nil.
type RouterConfig struct {
	Handler        *Handler
	Archive        store.Archive
	Metrics        *metrics.Collector
	AllowedOrigins []string
}

// NewRouter builds the HTTP routes.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Pages.
	r.Get("/", web.PageHandler(web.StartPage))
	r.Get("/main", web.PageHandler(web.MainPage))

	cfg.Handler.RegisterRoutes(r)

	if cfg.Archive != nil {
		NewArchiveHandler(cfg.Archive).RegisterRoutes(r)
	}
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	return r
}
