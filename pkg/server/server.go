// Package server provides the public entry point for initializing the
// agent gateway. It wires config, telemetry, the auth provider chain, the
// dispatch table, and the HTTP router into one ready-to-serve handler.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/hpeluzio/agentic-repo/internal/api"
	"github.com/hpeluzio/agentic-repo/internal/api/handlers"
	"github.com/hpeluzio/agentic-repo/internal/api/middleware"
	"github.com/hpeluzio/agentic-repo/internal/auth"
	"github.com/hpeluzio/agentic-repo/internal/config"
	"github.com/hpeluzio/agentic-repo/internal/dispatch"
	"github.com/hpeluzio/agentic-repo/internal/health"
	"github.com/hpeluzio/agentic-repo/internal/telemetry"
)

// Server holds the initialized gateway.
type Server struct {
	// Handler is the HTTP handler with all routes and middleware.
	Handler http.Handler

	// Config is the loaded configuration.
	Config *config.Config

	// Port is the port the server should listen on.
	Port int

	// ShutdownFunc should be called on graceful shutdown to flush telemetry.
	ShutdownFunc func(context.Context) error
}

// New loads configuration from the environment and builds the gateway.
func New(ctx context.Context) (*Server, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return NewWithConfig(ctx, cfg)
}

// NewWithConfig builds the gateway from an explicit configuration. The
// dispatch table is validated here: a missing or malformed target is fatal
// at startup, never a per-request condition.
func NewWithConfig(_ context.Context, cfg *config.Config) (*Server, error) {
	shutdown, err := telemetry.Init(cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	table, err := dispatch.NewTable(map[dispatch.Capability]dispatch.Target{
		dispatch.CapabilityDatabase: {URL: cfg.Agents.Database.URL, Timeout: cfg.Agents.Database.Timeout},
		dispatch.CapabilityRAG:      {URL: cfg.Agents.RAG.URL, Timeout: cfg.Agents.RAG.Timeout},
		dispatch.CapabilitySmart:    {URL: cfg.Agents.Smart.URL, Timeout: cfg.Agents.Smart.Timeout},
		dispatch.CapabilityOCR:      {URL: cfg.Agents.OCR.URL, Timeout: cfg.Agents.OCR.Timeout},
	})
	if err != nil {
		return nil, fmt.Errorf("build dispatch table: %w", err)
	}

	chain := auth.NewChain()
	if cfg.Auth.JWTSecret != "" {
		chain.Register(auth.NewJWTProvider([]byte(cfg.Auth.JWTSecret)))
	} else {
		chain.Register(auth.NewBearerProvider())
		log.Warn().Msg("placeholder bearer auth active: tokens are not verified; set GATEWAY_JWT_SECRET for signed tokens")
	}

	client := dispatch.NewClient(table)
	agg := health.New(cfg.Agents.HealthURL, cfg.Health.ProbeTimeout)
	h := handlers.New(client, agg, cfg.Logging.LogPayloads)
	router := api.NewRouter(cfg, h, middleware.NewAuth(chain))

	log.Info().
		Str("database", cfg.Agents.Database.URL).
		Str("rag", cfg.Agents.RAG.URL).
		Str("smart", cfg.Agents.Smart.URL).
		Str("ocr", cfg.Agents.OCR.URL).
		Msg("dispatch table initialized")

	return &Server{
		Handler:      router,
		Config:       cfg,
		Port:         cfg.Port,
		ShutdownFunc: shutdown,
	}, nil
}
