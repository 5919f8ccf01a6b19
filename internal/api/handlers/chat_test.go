package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpeluzio/agentic-repo/internal/auth"
	"github.com/hpeluzio/agentic-repo/internal/config"
	"github.com/hpeluzio/agentic-repo/internal/envelope"
	"github.com/hpeluzio/agentic-repo/pkg/server"
)

// fakeAgent is a scriptable downstream agent service covering all four
// capability endpoints plus /health. calls counts downstream contacts so
// tests can assert the gateway never dispatched.
type fakeAgent struct {
	calls   atomic.Int64
	handler func(w http.ResponseWriter, r *http.Request)
	srv     *httptest.Server
}

func newFakeAgent(handler func(w http.ResponseWriter, r *http.Request)) *fakeAgent {
	a := &fakeAgent{handler: handler}
	a.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			w.Write([]byte(`{"status":"healthy"}`))
			return
		}
		a.calls.Add(1)
		a.handler(w, r)
	}))
	return a
}

func (a *fakeAgent) close() { a.srv.Close() }

func testConfig(agentURL string, timeout time.Duration) *config.Config {
	return &config.Config{
		Port:    0,
		Version: "test",
		Agents: config.AgentsConfig{
			Database:  config.AgentConfig{URL: agentURL + "/chat", Timeout: timeout},
			RAG:       config.AgentConfig{URL: agentURL + "/rag", Timeout: timeout},
			Smart:     config.AgentConfig{URL: agentURL + "/smart", Timeout: timeout},
			OCR:       config.AgentConfig{URL: agentURL + "/ocr", Timeout: timeout},
			HealthURL: agentURL + "/health",
		},
		Health:  config.HealthConfig{ProbeTimeout: 500 * time.Millisecond},
		Logging: config.LoggingConfig{Level: "info"},
	}
}

func newGateway(t *testing.T, cfg *config.Config) http.Handler {
	t.Helper()
	srv, err := server.NewWithConfig(context.Background(), cfg)
	require.NoError(t, err)
	return srv.Handler
}

func postJSON(handler http.Handler, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func decodeChat(t *testing.T, w *httptest.ResponseRecorder) envelope.Chat {
	t.Helper()
	var env envelope.Chat
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func TestChat_MissingAuthHeader(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	for _, path := range []string{"/chat/database", "/chat/rag", "/chat/smart"} {
		w := postJSON(gw, path, "", `{"message":"hello"}`)
		require.Equal(t, http.StatusUnauthorized, w.Code, path)
		env := decodeChat(t, w)
		require.False(t, env.Success)
		require.NotEmpty(t, env.Response)
	}
	require.Zero(t, agent.calls.Load(), "no downstream call may happen for unauthenticated requests")
}

func TestChat_MalformedAuthScheme(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	w := postJSON(gw, "/chat/database", "Basic dXNlcjpwYXNz", `{"message":"hello"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Zero(t, agent.calls.Load())
}

func TestChat_EmptyMessage(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	for _, body := range []string{`{"message":""}`, `{"message":"   "}`, `{}`} {
		w := postJSON(gw, "/chat/database", "Bearer t", body)
		require.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	require.Zero(t, agent.calls.Load(), "no downstream call may happen for invalid input")
}

func TestChat_InvalidRole(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	w := postJSON(gw, "/chat/smart", "Bearer t", `{"message":"hi","user_role":"root"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Zero(t, agent.calls.Load())
}

func TestChatDatabase_VerbatimRoundTrip(t *testing.T) {
	downstream := `{"success":true,"response":"42 orders","timestamp":"2025-09-07T00:00:00Z","sql_info":{"queries_executed":[],"total_execution_time":12,"queries_count":1}}`

	var relayedRole string
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		relayedRole = body["user_role"]
		w.Write([]byte(downstream))
	})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	w := postJSON(gw, "/chat/database", "Bearer t", `{"message":"How many orders in August 2025?","user_role":"admin"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "admin", relayedRole, "role hint must be forwarded downstream")

	env := decodeChat(t, w)
	require.True(t, env.Success)
	require.Equal(t, "42 orders", env.Response)
	require.Equal(t, "2025-09-07T00:00:00Z", env.Timestamp)
	require.NotNil(t, env.SQLInfo)
	require.Equal(t, 1, env.SQLInfo.QueriesCount)
	require.Equal(t, float64(12), env.SQLInfo.TotalExecutionTime)
}

func TestChatRAG_DefaultRoleNotForwarded(t *testing.T) {
	var gotBody map[string]any
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Write([]byte(`{"success":true,"response":"see handbook","sources":[{"title":"Handbook","category":"hr","relevance_score":0.9}]}`))
	})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	w := postJSON(gw, "/chat/rag", "Bearer t", `{"message":"vacation policy?"}`)
	require.Equal(t, http.StatusOK, w.Code)
	_, hasRole := gotBody["user_role"]
	require.False(t, hasRole, "retrieval agent receives no role hint")

	env := decodeChat(t, w)
	require.Len(t, env.Sources, 1)
	require.Equal(t, "Handbook", env.Sources[0].Title)
}

func TestChatSmart_BothMetadataBlocks(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{
			"success":true,"response":"combined","timestamp":"2025-09-07T00:00:00Z",
			"agent_used":"both",
			"routing_info":{"agent":"both","confidence":0.9,"reasoning":"needs both"},
			"sql_info":{"queries_executed":[],"total_execution_time":4,"queries_count":2},
			"sources":[{"title":"Doc","category":"ops","relevance_score":0.8}]
		}`))
	})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	w := postJSON(gw, "/chat/smart", "Bearer t", `{"message":"sales and policy","user_role":"manager"}`)
	require.Equal(t, http.StatusOK, w.Code)

	env := decodeChat(t, w)
	require.Equal(t, "both", env.AgentUsed)
	require.NotNil(t, env.RoutingInfo)
	require.NotNil(t, env.SQLInfo)
	require.Len(t, env.Sources, 1)
}

func TestChat_DownstreamUnavailable(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {})
	url := agent.srv.URL
	agent.close()
	gw := newGateway(t, testConfig(url, 2*time.Second))

	w := postJSON(gw, "/chat/database", "Bearer t", `{"message":"hi"}`)
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	env := decodeChat(t, w)
	require.False(t, env.Success)
	require.Contains(t, env.Response, "database", "failure message identifies the capability")
}

func TestChat_DownstreamTimeout(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 50*time.Millisecond))

	w := postJSON(gw, "/chat/rag", "Bearer t", `{"message":"hi"}`)
	require.Equal(t, http.StatusRequestTimeout, w.Code)
}

func TestChat_DownstreamMalformedResponse(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway error</html>`))
	})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	w := postJSON(gw, "/chat/database", "Bearer t", `{"message":"hi"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
}

func multipartBody(t *testing.T, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func postFile(gw http.Handler, body *bytes.Buffer, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/chat/ocr", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer t")
	w := httptest.NewRecorder()
	gw.ServeHTTP(w, req)
	return w
}

func TestChatOCR_Success(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {
		_, header, err := r.FormFile("file")
		if err != nil {
			t.Errorf("downstream FormFile: %v", err)
		} else if header.Filename != "exam.pdf" {
			t.Errorf("relayed filename = %q, want exam.pdf", header.Filename)
		}
		w.Write([]byte(`{"success":true,"extracted_text":"Glucose: 98","analysis":"normal","recommendations":[],"alerts":[]}`))
	})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	body, ct := multipartBody(t, "exam.pdf", "application/pdf", []byte("%PDF-1.4 data"))
	w := postFile(gw, body, ct)
	require.Equal(t, http.StatusOK, w.Code)

	var env envelope.OCR
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	require.True(t, env.Success)
	require.Equal(t, "Glucose: 98", env.ExtractedText)
	require.NotEmpty(t, env.Timestamp)
}

func TestChatOCR_FileTooLarge(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	big := bytes.Repeat([]byte("a"), 12<<20) // 12 MiB, over the 10 MiB cap
	body, ct := multipartBody(t, "big.pdf", "application/pdf", big)
	w := postFile(gw, body, ct)

	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decodeChat(t, w)
	require.Equal(t, "File too large. Maximum size is 10MB", env.Response)
	require.Zero(t, agent.calls.Load(), "oversized payloads must never be relayed")
}

func TestChatOCR_UnsupportedType(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	body, ct := multipartBody(t, "notes.txt", "text/plain", []byte("plain text"))
	w := postFile(gw, body, ct)

	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Zero(t, agent.calls.Load())
}

func TestChatOCR_MissingFile(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "no file here"))
	require.NoError(t, mw.Close())

	w := postFile(gw, &buf, mw.FormDataContentType())
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Zero(t, agent.calls.Load())
}

func TestChatOCR_RequiresAuth(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	body, ct := multipartBody(t, "exam.pdf", "application/pdf", []byte("%PDF"))
	req := httptest.NewRequest(http.MethodPost, "/chat/ocr", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	gw.ServeHTTP(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Zero(t, agent.calls.Load())
}

func TestChatHealth_PublicAndComposite(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	// No Authorization header: the health route is public.
	req := httptest.NewRequest(http.MethodGet, "/chat/health", nil)
	w := httptest.NewRecorder()
	gw.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var st struct {
		Status   string `json:"status"`
		Services struct {
			Gateway    string `json:"gateway"`
			Downstream string `json:"downstream"`
		} `json:"services"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	require.Equal(t, "healthy", st.Status)
	require.Equal(t, "up", st.Services.Gateway)
}

func TestChatHealth_DownstreamDown(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {})
	url := agent.srv.URL
	agent.close()
	gw := newGateway(t, testConfig(url, 5*time.Second))

	req := httptest.NewRequest(http.MethodGet, "/chat/health", nil)
	w := httptest.NewRecorder()
	gw.ServeHTTP(w, req)

	// Always 200: the status field carries the verdict.
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), `"status":"unhealthy"`)
	require.Contains(t, w.Body.String(), `"downstream":"down"`)
}

func TestGateway_JWTMode(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":true,"response":"ok"}`))
	})
	defer agent.close()

	cfg := testConfig(agent.srv.URL, 5*time.Second)
	cfg.Auth.JWTSecret = "gateway-secret"
	gw := newGateway(t, cfg)

	// Arbitrary bearer tokens are rejected once JWT verification is on.
	w := postJSON(gw, "/chat/database", "Bearer not-a-jwt", `{"message":"hi"}`)
	require.Equal(t, http.StatusUnauthorized, w.Code)

	token, err := auth.NewJWTProvider([]byte("gateway-secret")).Generate("user-1", time.Hour)
	require.NoError(t, err)
	w = postJSON(gw, "/chat/database", "Bearer "+token, `{"message":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestGateway_InfoRoutes(t *testing.T) {
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	for _, path := range []string{"/", "/health", "/version", "/metrics"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		gw.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code, path)
	}
}

// Guard against accidental reuse of request-scoped buffers: two
// back-to-back uploads must each relay their own bytes.
func TestChatOCR_NoBufferReuse(t *testing.T) {
	var seen []string
	agent := newFakeAgent(func(w http.ResponseWriter, r *http.Request) {
		f, _, err := r.FormFile("file")
		if err != nil {
			t.Errorf("downstream FormFile: %v", err)
			return
		}
		defer f.Close()
		data, _ := io.ReadAll(f)
		seen = append(seen, string(data))
		w.Write([]byte(`{"success":true,"extracted_text":"x"}`))
	})
	defer agent.close()
	gw := newGateway(t, testConfig(agent.srv.URL, 5*time.Second))

	for _, payload := range []string{"first document", "second document"} {
		body, ct := multipartBody(t, "doc.pdf", "application/pdf", []byte(payload))
		w := postFile(gw, body, ct)
		require.Equal(t, http.StatusOK, w.Code)
	}
	require.Equal(t, []string{"first document", "second document"}, seen)
}
