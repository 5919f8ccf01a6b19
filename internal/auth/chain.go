// Package auth provides the pluggable authentication layer for the gateway.
//
// Authentication is modeled as a chain of providers, each implementing one
// credential scheme. The default deployment registers the placeholder
// bearer provider (prefix presence only); setting a JWT secret swaps in
// signed-token verification without touching any dispatch logic.
package auth

import (
	"context"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"
)

// Principal is an authenticated caller. No handler knows which provider
// produced it.
type Principal struct {
	// Subject identifies the caller: a token subject claim, or a
	// credential fingerprint for the placeholder scheme.
	Subject string

	// Provider names the scheme that authenticated the request.
	Provider string
}

// Provider authenticates an HTTP request under one credential scheme.
//
// Contract:
//   - (*Principal, nil) → authenticated, stop the chain
//   - (nil, nil)        → this provider doesn't handle this request, try next
//   - (nil, error)      → authentication was attempted but failed, reject
type Provider interface {
	Name() string
	Enabled() bool
	Authenticate(ctx context.Context, r *http.Request) (*Principal, error)
}

// Chain walks registered providers in order until one returns a Principal.
type Chain struct {
	mu        sync.RWMutex
	providers []Provider
}

// NewChain creates an empty provider chain.
func NewChain() *Chain {
	return &Chain{providers: make([]Provider, 0)}
}

// Register adds a provider to the end of the chain. Providers are tried
// in registration order.
func (c *Chain) Register(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.providers = append(c.providers, p)
	log.Info().
		Str("provider", p.Name()).
		Bool("enabled", p.Enabled()).
		Msg("auth provider registered")
}

// Authenticate walks the chain. Returns (nil, nil) when no provider
// matched the request's credentials.
func (c *Chain) Authenticate(ctx context.Context, r *http.Request) (*Principal, error) {
	c.mu.RLock()
	providers := make([]Provider, len(c.providers))
	copy(providers, c.providers)
	c.mu.RUnlock()

	for _, p := range providers {
		if !p.Enabled() {
			continue
		}
		principal, err := p.Authenticate(ctx, r)
		if err != nil {
			log.Debug().
				Str("provider", p.Name()).
				Err(err).
				Msg("auth provider rejected request")
			return nil, err
		}
		if principal != nil {
			log.Debug().
				Str("provider", p.Name()).
				Str("subject", principal.Subject).
				Msg("request authenticated")
			return principal, nil
		}
	}

	return nil, nil
}
