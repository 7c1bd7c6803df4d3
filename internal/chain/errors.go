package chain

import (
	"fmt"
	"strings"
)

// CircularInvocationError is raised when an invocation would revisit a
// component already on the call chain. Terminal for that call.
type CircularInvocationError struct {
	Cycle []string
}

func (e *CircularInvocationError) Error() string {
	return fmt.Sprintf("circular invocation detected: %s", strings.Join(e.Cycle, " -> "))
}

// AgentInvocationError is raised for unrecoverable invocation failures:
// depth exhausted or a missing collaborator.
type AgentInvocationError struct {
	Component string
	Reason    string
}

func (e *AgentInvocationError) Error() string {
	if e.Component == "" {
		return fmt.Sprintf("agent invocation failed: %s", e.Reason)
	}
	return fmt.Sprintf("agent invocation failed for %q: %s", e.Component, e.Reason)
}
