package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hpeluzio/agentic-repo/internal/dispatch"
	"github.com/hpeluzio/agentic-repo/internal/envelope"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondFailure writes an error envelope. The message must already be
// short and non-sensitive; diagnostic detail belongs in the logs.
func respondFailure(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, envelope.Failure(msg))
}

// respondDispatchError maps the error taxonomy onto HTTP statuses:
// timeout → 408, unavailable → 503, everything else downstream → 500.
func respondDispatchError(w http.ResponseWriter, err error) {
	var derr *dispatch.Error
	if errors.As(err, &derr) {
		switch derr.Kind {
		case dispatch.KindTimeout:
			respondFailure(w, http.StatusRequestTimeout, derr.Error())
			return
		case dispatch.KindUnavailable:
			respondFailure(w, http.StatusServiceUnavailable, derr.Error())
			return
		default:
			respondFailure(w, http.StatusInternalServerError, derr.Error())
			return
		}
	}
	respondFailure(w, http.StatusInternalServerError, "internal error")
}
