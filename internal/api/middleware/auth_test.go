package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hpeluzio/agentic-repo/internal/api/middleware"
	"github.com/hpeluzio/agentic-repo/internal/auth"
)

func newHandler() (*middleware.Auth, http.Handler) {
	chain := auth.NewChain()
	chain.Register(auth.NewBearerProvider())
	mw := middleware.NewAuth(chain)
	handler := mw.Handler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if middleware.GetPrincipal(r.Context()) == nil {
			http.Error(w, "no principal in context", http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	return mw, handler
}

func TestAuth_ValidBearer(t *testing.T) {
	_, handler := newHandler()

	req := httptest.NewRequest(http.MethodPost, "/chat/database", nil)
	req.Header.Set("Authorization", "Bearer any-token")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Valid bearer: status = %d, want %d", w.Code, http.StatusOK)
	}
}

func TestAuth_MissingHeader(t *testing.T) {
	_, handler := newHandler()

	req := httptest.NewRequest(http.MethodPost, "/chat/database", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Missing header: status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	if got := w.Header().Get("WWW-Authenticate"); got == "" {
		t.Error("401 response missing WWW-Authenticate header")
	}
}

func TestAuth_WrongScheme(t *testing.T) {
	_, handler := newHandler()

	for _, header := range []string{"Basic dXNlcjpwYXNz", "Token abc", "Bearer "} {
		req := httptest.NewRequest(http.MethodPost, "/chat/database", nil)
		req.Header.Set("Authorization", header)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("Header %q: status = %d, want %d", header, w.Code, http.StatusUnauthorized)
		}
	}
}

func TestAuth_ErrorBodyIsEnvelope(t *testing.T) {
	_, handler := newHandler()

	req := httptest.NewRequest(http.MethodPost, "/chat/database", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	body := w.Body.String()
	for _, want := range []string{`"success":false`, `"response"`, `"timestamp"`} {
		if !strings.Contains(body, want) {
			t.Errorf("401 body %s missing %s", body, want)
		}
	}
}
