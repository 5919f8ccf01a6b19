// Package health composes the gateway's own liveness with a downstream
// agent probe into one composite status.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// Status is the composite health report. The HTTP status code is always
// 200; the status field carries the verdict.
type Status struct {
	Status   string   `json:"status"` // healthy | unhealthy
	Services Services `json:"services"`
}

// Services reports per-component liveness.
type Services struct {
	Gateway    string `json:"gateway"`    // always "up" when we can answer at all
	Downstream string `json:"downstream"` // observed downstream status, or "down"
}

// Aggregator probes the downstream health endpoint with its own short
// timeout so a hung probe can never stall the health route.
type Aggregator struct {
	probeURL string
	client   *http.Client
}

// New creates a health aggregator for the given probe URL.
func New(probeURL string, timeout time.Duration) *Aggregator {
	return &Aggregator{
		probeURL: probeURL,
		client:   &http.Client{Timeout: timeout},
	}
}

// Check probes the downstream and returns the composite status. Probe
// failures are not distinguished to the caller; the cause goes to the log.
func (a *Aggregator) Check(ctx context.Context) Status {
	observed, err := a.probe(ctx)
	if err != nil {
		log.Warn().Err(err).Str("url", a.probeURL).Msg("downstream health probe failed")
		return Status{
			Status:   "unhealthy",
			Services: Services{Gateway: "up", Downstream: "down"},
		}
	}

	composite := "healthy"
	if observed != "healthy" {
		composite = "unhealthy"
	}
	return Status{
		Status:   composite,
		Services: Services{Gateway: "up", Downstream: observed},
	}
}

func (a *Aggregator) probe(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.probeURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", &probeStatusError{code: resp.StatusCode}
	}

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	if body.Status == "" {
		body.Status = "unknown"
	}
	return body.Status, nil
}

type probeStatusError struct {
	code int
}

func (e *probeStatusError) Error() string {
	return "health probe returned status " + http.StatusText(e.code)
}
