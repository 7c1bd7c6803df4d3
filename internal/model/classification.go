package model

// SuggestedAction is the dispatch the classification collaborator proposes
// for a unit of work.
type SuggestedAction string

const (
	ActionDirectResponse SuggestedAction = "direct_response"
	ActionClarification  SuggestedAction = "clarification"
	ActionRouteAgent     SuggestedAction = "route_agent"
	ActionSafeExecution  SuggestedAction = "safe_execution"
)

// Classification is the classification collaborator's verdict on a proposed
// unit of work against a governed-state snapshot.
type Classification struct {
	IsGreeting     bool
	IsNonsense     bool
	IsDevQuery     bool
	SafetyScore    float64 // [0,1]
	SafeToExecute  bool
	Action         SuggestedAction
	Response       string // prefilled response, used as the safe fallback text
	SuggestedRoles []Role // for ActionRouteAgent
}

// FallbackText returns a non-empty safe response for blocked work. The
// contract is that no path ever surfaces an empty message.
func (c *Classification) FallbackText() string {
	if c != nil && c.Response != "" {
		return c.Response
	}
	return "The request was not executed because a workflow safety limit was reached. Please rephrase or simplify the request and try again."
}
