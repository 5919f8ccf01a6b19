package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
)

// ErrMalformedHeader is returned when an Authorization header is present
// but does not carry the Bearer scheme.
var ErrMalformedHeader = errors.New("authorization header must use the Bearer scheme")

// BearerProvider is the placeholder authentication scheme: it checks only
// that a non-empty Bearer credential is present. Token content is not
// validated. Deployments that need real verification configure the JWT
// provider instead.
type BearerProvider struct{}

// NewBearerProvider creates the placeholder bearer provider.
func NewBearerProvider() *BearerProvider {
	return &BearerProvider{}
}

func (p *BearerProvider) Name() string  { return "bearer" }
func (p *BearerProvider) Enabled() bool { return true }

// Authenticate accepts any request with "Authorization: Bearer <token>".
// The principal subject is a fingerprint of the credential, never the
// credential itself, so it is safe to log.
func (p *BearerProvider) Authenticate(_ context.Context, r *http.Request) (*Principal, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, nil
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return nil, ErrMalformedHeader
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return nil, ErrMalformedHeader
	}
	return &Principal{Subject: fingerprint(token), Provider: p.Name()}, nil
}

func fingerprint(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:8])
}
