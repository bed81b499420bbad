package api

import (
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prgf87/socket-io-chat/internal/api/middleware"
	"github.com/prgf87/socket-io-chat/internal/fanout"
	"github.com/prgf87/socket-io-chat/internal/handlers"
	"github.com/prgf87/socket-io-chat/internal/session"
	"github.com/prgf87/socket-io-chat/internal/store"
)

// Options carries the router's tunables beyond its service dependencies.
type Options struct {
	// RedisClient enables the shared submit rate limiter; nil disables it.
	RedisClient *redis.Client
	RateLimit   int
	RateWindow  time.Duration
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, log store.MessageLog, fan fanout.Fanout, registry *session.Registry, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.RequireJSON)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// CORS - the chat page may be served from elsewhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(log, fan, registry, logger)
	limiter := middleware.NewRateLimiter(opts.RedisClient, logger, opts.RateLimit, opts.RateWindow)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Chat page and static assets
	r.Get("/", serveChatPage)
	r.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.Dir(staticDir()))))

	// Service endpoints
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/events", h.Events)
	r.Get("/messages", h.History)

	r.Group(func(r chi.Router) {
		r.Use(limiter.Middleware)
		r.Post("/messages", h.Submit)
	})

	return r
}

// staticDir returns the path to static files directory.
func staticDir() string {
	// Check if running from app directory (production container)
	if _, err := os.Stat("/app/web/static"); err == nil {
		return "/app/web/static"
	}
	return "web/static"
}

// serveChatPage serves the chat page.
func serveChatPage(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, staticDir()+"/index.html")
}
