package httpserver

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/albapepper/matchpipe/internal/config"
)

// NewRouter configures the chi router serving diagnose-server's read-only
// routes: pipeline-wide health, a single team's lineage, and staging
// backlog status. Grounded on internal/api/server.go's NewRouter.
func NewRouter(pool *pgxpool.Pool, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(TimingMiddleware)
	r.Use(middleware.Compress(5))

	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	h := newHandler(pool)

	r.Get("/", h.root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.healthCheck)
		r.Get("/db", h.healthCheckDB)
	})

	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	r.Route("/api/v1/diagnose", func(r chi.Router) {
		r.Get("/health-check", h.pipelineHealthCheck)
		r.Get("/staging-status", h.stagingStatus)
		r.Get("/team/{teamID}", h.teamByID)
		r.Get("/team", h.teamByName)
	})

	return r
}
