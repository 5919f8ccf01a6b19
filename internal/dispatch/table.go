// Package dispatch maps logical capabilities to downstream agent endpoints
// and performs the bounded HTTP calls against them. The table is built once
// at startup and is read-only afterwards, so per-request lookups need no
// locking.
package dispatch

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Capability is the dispatch key for a downstream agent.
type Capability string

const (
	// CapabilityDatabase is the natural-language-to-SQL agent.
	CapabilityDatabase Capability = "database"
	// CapabilityRAG is the knowledge-retrieval agent.
	CapabilityRAG Capability = "rag"
	// CapabilitySmart is the combining router agent.
	CapabilitySmart Capability = "smart"
	// CapabilityOCR is the document/image understanding agent.
	CapabilityOCR Capability = "ocr"
)

// ErrUnknownCapability indicates a capability with no configured target.
// This is a configuration error: NewTable rejects incomplete tables at
// startup, so it never surfaces per-request in a correct deployment.
var ErrUnknownCapability = errors.New("unknown capability")

// Target is one downstream agent endpoint with its timeout budget.
type Target struct {
	URL     string
	Timeout time.Duration
}

// Table is the immutable capability → target mapping.
type Table struct {
	targets map[Capability]Target
}

// NewTable validates the configured targets and builds the dispatch table.
// Every capability must have an absolute URL and a positive timeout.
func NewTable(targets map[Capability]Target) (*Table, error) {
	required := []Capability{CapabilityDatabase, CapabilityRAG, CapabilitySmart, CapabilityOCR}
	for _, c := range required {
		t, ok := targets[c]
		if !ok {
			return nil, fmt.Errorf("%w: %s has no target", ErrUnknownCapability, c)
		}
		u, err := url.Parse(t.URL)
		if err != nil || !u.IsAbs() || u.Host == "" {
			return nil, fmt.Errorf("capability %s: invalid target URL %q", c, t.URL)
		}
		if t.Timeout <= 0 {
			return nil, fmt.Errorf("capability %s: timeout must be positive, got %s", c, t.Timeout)
		}
	}

	m := make(map[Capability]Target, len(targets))
	for c, t := range targets {
		m[c] = t
	}
	return &Table{targets: m}, nil
}

// Lookup returns the target for a capability.
func (t *Table) Lookup(c Capability) (Target, error) {
	target, ok := t.targets[c]
	if !ok {
		return Target{}, fmt.Errorf("%w: %s", ErrUnknownCapability, c)
	}
	return target, nil
}
