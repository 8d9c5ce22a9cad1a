package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Operations that call the blog API or the model get a longer budget than
// plain reads. Streams run without a timeout.
const (
	readTimeout      = 15 * time.Second
	operationTimeout = 2 * time.Minute
)

func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(m.Compress)
			r.Use(m.Timeout(readTimeout))

			r.Get("/posts", h.ListPosts)
			r.Post("/posts", h.CreatePost)
			r.Get("/posts/{id}", h.GetPost)
			r.Put("/posts/{id}", h.UpdatePost)
			r.Delete("/posts/{id}", h.DeletePost)

			r.Get("/trends", h.ListTrends)

			r.Get("/credentials", h.GetCredentials)
			r.Put("/credentials", h.UpdateCredentials)
			r.Get("/profile", h.GetProfile)
			r.Put("/profile", h.UpdateProfile)

			r.Get("/notifications/current", h.GetNotification)
			r.Delete("/notifications/current", h.ClearNotification)
			r.Get("/status", h.GetStatus)
		})

		// Gate-holding operations and generation
		r.Group(func(r chi.Router) {
			r.Use(m.Timeout(operationTimeout))

			r.Post("/posts/{id}/deploy", h.DeployPost)
			r.Post("/posts/{id}/rewrite", h.RewritePost)
			r.Post("/posts/{id}/variations/{index}/dispatch", h.DispatchVariation)
			r.Post("/sync", h.SyncPosts)

			r.Post("/trends/refresh", h.RefreshTrends)
			r.Post("/trends/quick-publish", h.QuickPublish)
			r.Post("/compose", h.Compose)
		})

		// Live updates
		r.Get("/stream", h.HandleSSE)
		r.Get("/ws", h.HandleWebSocket)
	})

	return r
}
