package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hpeluzio/agentic-repo/internal/auth"
	"github.com/hpeluzio/agentic-repo/internal/envelope"
)

type contextKey string

const principalKey contextKey = "principal"

// Auth enforces authentication on the routes it wraps using the pluggable
// provider chain. Routes behind it always require a credential.
type Auth struct {
	chain *auth.Chain
}

// NewAuth creates the auth middleware.
func NewAuth(chain *auth.Chain) *Auth {
	return &Auth{chain: chain}
}

// Handler rejects requests with missing or malformed credentials and
// stores the resulting principal in the request context.
func (a *Auth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, err := a.chain.Authenticate(r.Context(), r)
		if err != nil {
			respondUnauthorized(w, err.Error())
			return
		}
		if principal == nil {
			respondUnauthorized(w, "Missing or invalid authorization header")
			return
		}

		ctx := context.WithValue(r.Context(), principalKey, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetPrincipal retrieves the authenticated principal from the context.
func GetPrincipal(ctx context.Context) *auth.Principal {
	if p, ok := ctx.Value(principalKey).(*auth.Principal); ok {
		return p
	}
	return nil
}

func respondUnauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="agent-gateway"`)
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(envelope.Failure(msg))
}
