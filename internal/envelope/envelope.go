// Package envelope defines the request and response shapes the gateway
// guarantees to its callers, independent of which downstream agent served
// the request.
package envelope

import (
	"fmt"
	"strings"
	"time"
)

// Role is the coarse access-level hint forwarded to downstream agents.
// The gateway validates shape only; authorization semantics live downstream.
type Role string

const (
	RoleEmployee Role = "employee"
	RoleManager  Role = "manager"
	RoleAdmin    Role = "admin"
)

// ParseRole validates a caller-supplied role. An empty role defaults to
// employee, the least-privileged tier.
func ParseRole(s string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return RoleEmployee, nil
	case RoleEmployee:
		return RoleEmployee, nil
	case RoleManager:
		return RoleManager, nil
	case RoleAdmin:
		return RoleAdmin, nil
	default:
		return "", fmt.Errorf("invalid user_role %q: must be employee, manager, or admin", s)
	}
}

// ChatRequest is the inbound body for the text capabilities.
type ChatRequest struct {
	Message  string `json:"message"`
	UserRole string `json:"user_role,omitempty"`
}

// Validate checks the request shape. The message must be non-empty after
// trimming; the role, when present, must be a member of the closed enum.
func (r *ChatRequest) Validate() (Role, error) {
	if strings.TrimSpace(r.Message) == "" {
		return "", fmt.Errorf("message cannot be empty")
	}
	return ParseRole(r.UserRole)
}

// SQLQuery describes one query the structured-query agent executed.
type SQLQuery struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	SQLQuery    *string `json:"sql_query"`
}

// SQLInfo is the structured-query agent's execution metadata.
type SQLInfo struct {
	QueriesExecuted    []SQLQuery `json:"queries_executed"`
	TotalExecutionTime float64    `json:"total_execution_time"`
	QueriesCount       int        `json:"queries_count"`
}

// Source is one document the retrieval agent grounded its answer on.
type Source struct {
	Title          string  `json:"title"`
	Category       string  `json:"category"`
	RelevanceScore float64 `json:"relevance_score"`
}

// RoutingInfo explains the smart agent's routing decision.
type RoutingInfo struct {
	Agent      string  `json:"agent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// Chat is the response envelope for the text capabilities. The metadata
// fields form a union tagged by the capability that served the request:
// sql_info for structured-query, sources for retrieval, and agent_used +
// routing_info (plus whichever metadata blocks the downstream merged in)
// for smart routing.
type Chat struct {
	Success   bool   `json:"success"`
	Response  string `json:"response"`
	Timestamp string `json:"timestamp"`

	SQLInfo     *SQLInfo     `json:"sql_info,omitempty"`
	Sources     []Source     `json:"sources,omitempty"`
	AgentUsed   string       `json:"agent_used,omitempty"`
	RoutingInfo *RoutingInfo `json:"routing_info,omitempty"`
}

// OCR is the response envelope for document understanding.
type OCR struct {
	Success         bool     `json:"success"`
	ExtractedText   string   `json:"extracted_text"`
	Analysis        string   `json:"analysis"`
	Recommendations []string `json:"recommendations"`
	Alerts          []string `json:"alerts"`
	Timestamp       string   `json:"timestamp"`
}

// Failure builds an error envelope with a human-readable description.
func Failure(msg string) *Chat {
	return &Chat{
		Success:   false,
		Response:  msg,
		Timestamp: Now(),
	}
}

// Now returns the envelope timestamp format (RFC 3339, UTC).
func Now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
