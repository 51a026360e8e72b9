package api

import (
	"net/http"

	"github.com/Priya8975/subscription-event-pipeline/internal/store"
	ws "github.com/Priya8975/subscription-event-pipeline/internal/websocket"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates and configures the HTTP router.
func NewRouter(pgStore *store.PostgresStore, proc EventProcessor, hub *ws.Hub) http.Handler {
	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS for dashboard
	r.Use(corsMiddleware)

	// Handlers
	notifHandler := NewNotificationHandler(proc)
	eventHandler := NewEventHandler(pgStore)
	subHandler := NewSubscriptionHandler(pgStore)
	dlqHandler := NewDeadLetterHandler(pgStore)
	dashHandler := NewDashboardHandler(pgStore, hub)

	// WebSocket endpoint
	r.Get("/ws", hub.HandleWebSocket)

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", HealthHandler())

		r.Post("/notifications", notifHandler.Ingest)

		r.Route("/events", func(r chi.Router) {
			r.Get("/", eventHandler.List)
			r.Get("/{id}", eventHandler.Get)
		})

		r.Route("/subscriptions", func(r chi.Router) {
			r.Get("/", subHandler.List)
			r.Get("/{id}", subHandler.Get)
		})

		r.Route("/dead-letters", func(r chi.Router) {
			r.Get("/", dlqHandler.List)
			r.Get("/{id}", dlqHandler.Get)
			r.Post("/{id}/resolve", dlqHandler.Resolve)
		})

		r.Get("/metrics", dashHandler.Metrics)
		r.Get("/processing-errors", dashHandler.ProcessingErrors)
	})

	return r
}

// corsMiddleware adds CORS headers for dashboard development.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
