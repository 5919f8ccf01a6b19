package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hpeluzio/agentic-repo/internal/api/handlers"
	"github.com/hpeluzio/agentic-repo/internal/api/middleware"
	"github.com/hpeluzio/agentic-repo/internal/config"
	"github.com/hpeluzio/agentic-repo/internal/envelope"
)

// NewRouter creates the HTTP router with all gateway routes.
func NewRouter(cfg *config.Config, h *handlers.Handlers, authmw *middleware.Auth) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger)
	r.Use(middleware.Metrics)
	r.Use(middleware.Telemetry)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Gateway liveness & info
	r.Get("/", rootHandler(cfg))
	r.Get("/health", livenessHandler)
	r.Get("/version", versionHandler(cfg))
	r.Handle("/metrics", promhttp.Handler())

	// Chat routes — one per downstream capability
	r.Route("/chat", func(r chi.Router) {
		// Composite health is public: the UI polls it before login.
		r.Get("/health", h.CompositeHealth)

		r.Group(func(r chi.Router) {
			r.Use(authmw.Handler)
			r.Post("/database", h.Database)
			r.Post("/rag", h.RAG)
			r.Post("/smart", h.Smart)
			r.Post("/ocr", h.OCR)
		})
	})

	return r
}

func livenessHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"status":    "healthy",
		"service":   "agent-gateway",
		"timestamp": envelope.Now(),
	})
}

func versionHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"version": cfg.Version,
			"service": "agent-gateway",
		})
	}
}

func rootHandler(cfg *config.Config) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": "Agent Gateway API",
			"version": cfg.Version,
			"endpoints": map[string]string{
				"database": "/chat/database",
				"rag":      "/chat/rag",
				"smart":    "/chat/smart",
				"ocr":      "/chat/ocr",
				"health":   "/chat/health",
			},
		})
	}
}
