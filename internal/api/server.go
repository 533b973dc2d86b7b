// It defines the operational API server, sets up the routes (endpoints)
// using chi, and links them to the handler functions.

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/vrsandeep/litpush/internal/core"
	"github.com/vrsandeep/litpush/internal/logging"
)

// Server holds the dependencies for our API.
type Server struct {
	app *core.App
}

// NewServer creates a new Server instance.
func NewServer(app *core.App) *Server {
	return &Server{app: app}
}

// Router sets up and returns the main router for the application.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logging.OrDiscard(s.app.Logger()).With("component", "api")))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/version", s.handleGetVersion)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			// Subscription scheduling
			r.Post("/subscriptions/{subID}/schedule", s.handleScheduleSubscription)
			r.Delete("/subscriptions/{subID}/schedule", s.handleCancelSubscription)
			r.Post("/subscriptions/{subID}/run", s.handleRunSubscription)

			// Jobs
			r.Get("/jobs", s.handleListJobs)
			r.Get("/jobs/runs", s.handleListJobRuns)

			// Result cache
			r.Post("/cache/invalidate", s.handleInvalidateCache)
			r.Get("/cache/stats", s.handleCacheStats)

			// Delivery channels
			r.Get("/channels", s.handleListChannels)
		})
	})

	// WebSocket route
	r.Get("/ws/jobs", func(w http.ResponseWriter, r *http.Request) {
		s.app.WsHub().ServeWs(w, r)
	})

	return r
}
