package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/sechat/internal/api/middleware"
	"github.com/eldtechnologies/sechat/internal/config"
	"github.com/eldtechnologies/sechat/internal/handlers"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, d handlers.Deps) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(16 * 1024))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	limiter := middleware.NewRateLimiter(d.Redis.Client(), logger, middleware.RateLimiterConfig{
		Whitelist:        cfg.RateLimitWhitelist,
		AutoBlockEnabled: cfg.AutoBlockEnabled,
	})
	r.Use(limiter.Middleware)

	// Admin cookies require credentialed CORS, which forbids "*".
	allowCredentials := !(len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*")
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.SessionHeader},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: allowCredentials,
		MaxAge:           300,
	}))

	auth := middleware.NewAuthMiddleware(d.Auth.Tokens(), logger)
	r.Use(auth.Identify)

	h := handlers.NewHandler(d)

	r.Handle("/metrics", promhttp.Handler())

	// Public routes
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Post("/auth/login", h.Login)
	r.Post("/auth/logout", h.Logout)
	r.Post("/join", h.Join)

	r.Route("/rooms/{roomId}", func(r chi.Router) {
		r.Get("/info", h.RoomInfo)
		r.Get("/messages", h.ListMessages)
		r.Post("/messages", h.SubmitMessage)
		r.Post("/leave", h.Leave)
		r.Get("/ws", h.Realtime)

		r.With(auth.RequireAdmin).Patch("/", h.UpdateRoom)
	})

	// Admin routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAdmin)

		r.Get("/rooms", h.ListRooms)
		r.Post("/rooms", h.CreateRoom)
		r.Get("/admin/entry-message", h.GetEntryMessage)
		r.Put("/admin/entry-message", h.PutEntryMessage)
		r.Get("/admin/stats", h.Stats)
	})

	return r
}
