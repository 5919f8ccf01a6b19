package dispatch

import "fmt"

// Kind classifies a failed downstream call for the gateway's error taxonomy.
type Kind string

const (
	// KindUnavailable covers connection refusal and unreachable hosts.
	KindUnavailable Kind = "unavailable"
	// KindTimeout covers calls that exceeded the capability's budget.
	KindTimeout Kind = "timeout"
	// KindDownstream covers every other failure: non-2xx statuses and
	// malformed downstream responses.
	KindDownstream Kind = "downstream_error"
)

// Error is a classified downstream failure. The wrapped cause carries the
// diagnostic detail for logs; Error() stays short and non-sensitive for
// callers.
type Error struct {
	Capability Capability
	Kind       Kind
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindUnavailable:
		return fmt.Sprintf("%s agent is unavailable", e.Capability)
	case KindTimeout:
		return fmt.Sprintf("%s agent did not respond in time", e.Capability)
	default:
		return fmt.Sprintf("%s agent request failed", e.Capability)
	}
}

func (e *Error) Unwrap() error { return e.Err }
