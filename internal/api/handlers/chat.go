// Package handlers implements the HTTP handlers for the agent gateway:
// one chat route per downstream capability, the OCR file relay, and the
// composite health report.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/hpeluzio/agentic-repo/internal/dispatch"
	"github.com/hpeluzio/agentic-repo/internal/envelope"
	"github.com/hpeluzio/agentic-repo/internal/health"
	"github.com/hpeluzio/agentic-repo/internal/upload"
)

// Handlers holds all handler dependencies.
type Handlers struct {
	Dispatch *dispatch.Client
	Health   *health.Aggregator

	// LogPayloads enables logging of message content. Off by default;
	// only message lengths are logged.
	LogPayloads bool
}

// New creates a Handlers instance.
func New(client *dispatch.Client, agg *health.Aggregator, logPayloads bool) *Handlers {
	return &Handlers{
		Dispatch:    client,
		Health:      agg,
		LogPayloads: logPayloads,
	}
}

// agentRequest is the JSON body relayed to the text-capability agents.
// The retrieval agent receives no role, so the field is omitted when empty.
type agentRequest struct {
	Message  string `json:"message"`
	UserRole string `json:"user_role,omitempty"`
}

// decodeChat validates the inbound body and returns the message and role.
// On failure it writes the 400 response itself and reports ok=false.
func (h *Handlers) decodeChat(w http.ResponseWriter, r *http.Request) (req envelope.ChatRequest, role envelope.Role, ok bool) {
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondFailure(w, http.StatusBadRequest, "Invalid request body")
		return req, "", false
	}
	role, err := req.Validate()
	if err != nil {
		respondFailure(w, http.StatusBadRequest, capitalize(err.Error()))
		return req, "", false
	}

	event := log.Debug().Str("path", r.URL.Path).Int("message_len", len(req.Message))
	if h.LogPayloads {
		event = event.Str("message", req.Message)
	}
	event.Msg("chat request accepted")

	return req, role, true
}

// Database relays the message to the structured-query agent with the role
// hint and returns the envelope with sql_info metadata.
func (h *Handlers) Database(w http.ResponseWriter, r *http.Request) {
	req, role, ok := h.decodeChat(w, r)
	if !ok {
		return
	}

	raw, err := h.Dispatch.CallJSON(r.Context(), dispatch.CapabilityDatabase, agentRequest{
		Message:  req.Message,
		UserRole: string(role),
	})
	if err != nil {
		respondDispatchError(w, err)
		return
	}

	env, err := envelope.NormalizeDatabase(raw)
	if err != nil {
		log.Error().Err(err).Str("capability", string(dispatch.CapabilityDatabase)).Msg("malformed downstream response")
		respondFailure(w, http.StatusInternalServerError, "database agent returned an invalid response")
		return
	}
	respondJSON(w, http.StatusOK, env)
}

// RAG relays the message to the knowledge-retrieval agent and returns the
// envelope with source metadata. No role is forwarded.
func (h *Handlers) RAG(w http.ResponseWriter, r *http.Request) {
	req, _, ok := h.decodeChat(w, r)
	if !ok {
		return
	}

	raw, err := h.Dispatch.CallJSON(r.Context(), dispatch.CapabilityRAG, agentRequest{
		Message: req.Message,
	})
	if err != nil {
		respondDispatchError(w, err)
		return
	}

	env, err := envelope.NormalizeRetrieval(raw)
	if err != nil {
		log.Error().Err(err).Str("capability", string(dispatch.CapabilityRAG)).Msg("malformed downstream response")
		respondFailure(w, http.StatusInternalServerError, "rag agent returned an invalid response")
		return
	}
	respondJSON(w, http.StatusOK, env)
}

// Smart relays the message to the combining router agent. The downstream
// decides whether to consult the database agent, the retrieval agent, or
// both; the envelope carries whichever metadata blocks it produced,
// alongside its routing rationale.
func (h *Handlers) Smart(w http.ResponseWriter, r *http.Request) {
	req, role, ok := h.decodeChat(w, r)
	if !ok {
		return
	}

	raw, err := h.Dispatch.CallJSON(r.Context(), dispatch.CapabilitySmart, agentRequest{
		Message:  req.Message,
		UserRole: string(role),
	})
	if err != nil {
		respondDispatchError(w, err)
		return
	}

	env, err := envelope.NormalizeSmart(raw)
	if err != nil {
		log.Error().Err(err).Str("capability", string(dispatch.CapabilitySmart)).Msg("malformed downstream response")
		respondFailure(w, http.StatusInternalServerError, "smart agent returned an invalid response")
		return
	}
	respondJSON(w, http.StatusOK, env)
}

// OCR validates the uploaded file and relays it to the document
// understanding agent. Validation failures never reach the downstream.
func (h *Handlers) OCR(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, upload.MaxFileSize+upload.FormOverhead)

	f, err := upload.FromRequest(r, "file")
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrNoFile):
			respondFailure(w, http.StatusBadRequest, "No file uploaded")
		case errors.Is(err, upload.ErrTooLarge):
			respondFailure(w, http.StatusBadRequest, "File too large. Maximum size is 10MB")
		case errors.Is(err, upload.ErrUnsupportedType):
			respondFailure(w, http.StatusBadRequest, "Unsupported file type. Only PDF, PNG, and JPEG are accepted")
		default:
			respondFailure(w, http.StatusBadRequest, "Could not read uploaded file")
		}
		return
	}

	log.Debug().
		Str("filename", f.Filename).
		Str("content_type", f.ContentType).
		Int64("size", f.Size).
		Msg("upload accepted")

	raw, err := h.Dispatch.RelayFile(r.Context(), dispatch.CapabilityOCR, f)
	if err != nil {
		respondDispatchError(w, err)
		return
	}

	env, err := envelope.NormalizeOCR(raw)
	if err != nil {
		log.Error().Err(err).Str("capability", string(dispatch.CapabilityOCR)).Msg("malformed downstream response")
		respondFailure(w, http.StatusInternalServerError, "ocr agent returned an invalid response")
		return
	}
	respondJSON(w, http.StatusOK, env)
}

// CompositeHealth reports the gateway plus downstream liveness. Always
// HTTP 200; the status field carries the verdict.
func (h *Handlers) CompositeHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Health.Check(r.Context()))
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if s[0] >= 'a' && s[0] <= 'z' {
		return string(s[0]-'a'+'A') + s[1:]
	}
	return s
}
