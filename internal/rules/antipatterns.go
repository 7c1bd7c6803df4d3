// Package rules holds the fixed catalogue of anti-pattern detectors and hard
// invariants evaluated against governed workflow state.
package rules

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Dom110/KI-AutoAgent-sub003/internal/model"
)

const detectionLogLimit = 100

// predicate evaluates one anti-pattern; a non-empty reason means a match.
type predicate func(c *Catalogue, state *model.WorkflowState) (bool, string)

type patternDef struct {
	id          PatternID
	severity    Severity
	description string
	remediation string
	detect      predicate
}

// Thresholds are the soft limits the anti-pattern predicates compare against.
type Thresholds struct {
	MaxCollaborations int // unbounded_delegation / context_collapse trigger
	MessageSoftLimit  int // resource_exhaustion trigger
}

// DefaultThresholds returns the catalogue's built-in limits.
func DefaultThresholds() Thresholds {
	return Thresholds{MaxCollaborations: 10, MessageSoftLimit: 500}
}

// Catalogue is the fixed set of anti-pattern detectors. Patterns are
// registered in a table keyed by identifier so reports can always name which
// rule fired; the catalogue itself is never mutated at runtime apart from
// the bounded rolling detection log.
type Catalogue struct {
	thresholds Thresholds
	patterns   []patternDef
	byID       map[PatternID]*patternDef

	mu           sync.Mutex
	detectionLog []Detection
}

// NewCatalogue builds the catalogue with the given thresholds.
func NewCatalogue(thresholds Thresholds) *Catalogue {
	if thresholds.MaxCollaborations <= 0 {
		thresholds.MaxCollaborations = 10
	}
	if thresholds.MessageSoftLimit <= 0 {
		thresholds.MessageSoftLimit = 500
	}
	c := &Catalogue{
		thresholds: thresholds,
		byID:       make(map[PatternID]*patternDef),
	}
	c.register(patternDef{
		id:          PatternSelfRouting,
		severity:    SeverityCritical,
		description: "a step assigned to the orchestrating role is left pending",
		remediation: "mark the orchestrator step completed with a synthetic result; the orchestrator must self-resolve immediately",
		detect:      detectSelfRouting,
	})
	c.register(patternDef{
		id:          PatternCircularDependency,
		severity:    SeverityHigh,
		description: "the step dependency graph contains a cycle",
		remediation: "remove one dependency edge from a step on the cycle",
		detect:      detectCircularDependency,
	})
	c.register(patternDef{
		id:          PatternUnboundedDelegation,
		severity:    SeverityMedium,
		description: "cross-role delegation count exceeds the collaboration budget",
		remediation: "escalate to a human or collapse the delegation chain",
		detect:      detectUnboundedDelegation,
	})
	c.register(patternDef{
		id:          PatternContextCollapse,
		severity:    SeverityHigh,
		description: "delegation budget exhausted while escalation never engaged",
		remediation: "raise the escalation level so a human can intervene",
		detect:      detectContextCollapse,
	})
	c.register(patternDef{
		id:          PatternMissingErrorHandler,
		severity:    SeverityMedium,
		description: "a step has no retry budget",
		remediation: "give every step at least one retry",
		detect:      detectMissingErrorHandling,
	})
	c.register(patternDef{
		id:          PatternCyclicProcess,
		severity:    SeverityMedium,
		description: "the last four handoffs ping-pong between two roles",
		remediation: "break the handoff cycle by routing to a third role or a human",
		detect:      detectCyclicProcess,
	})
	c.register(patternDef{
		id:          PatternResourceExhaustion,
		severity:    SeverityHigh,
		description: "message log has outgrown the soft limit",
		remediation: "truncate the message log to the most recent entries",
		detect:      detectResourceExhaustion,
	})
	for i := range c.patterns {
		c.byID[c.patterns[i].id] = &c.patterns[i]
	}
	return c
}

func (c *Catalogue) register(def patternDef) {
	c.patterns = append(c.patterns, def)
}

// Detect evaluates every pattern against the snapshot and returns all
// matches. Matches are appended to the bounded rolling detection log.
func (c *Catalogue) Detect(state *model.WorkflowState) []Detection {
	var detections []Detection
	now := time.Now().UTC()
	for i := range c.patterns {
		def := &c.patterns[i]
		matched, reason := def.detect(c, state)
		if !matched {
			continue
		}
		detections = append(detections, Detection{
			Pattern:     def.id,
			Severity:    def.severity,
			Reason:      reason,
			Remediation: def.remediation,
			DetectedAt:  now,
		})
	}
	if len(detections) > 0 {
		c.appendLog(detections)
	}
	return detections
}

// Remediation returns the fixed remediation text for a pattern id.
func (c *Catalogue) Remediation(id PatternID) string {
	if def, ok := c.byID[id]; ok {
		return def.remediation
	}
	return ""
}

// DetectionLog returns a copy of the rolling detection log (newest last).
func (c *Catalogue) DetectionLog() []Detection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Detection(nil), c.detectionLog...)
}

func (c *Catalogue) appendLog(detections []Detection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.detectionLog = append(c.detectionLog, detections...)
	if overflow := len(c.detectionLog) - detectionLogLimit; overflow > 0 {
		c.detectionLog = append([]Detection(nil), c.detectionLog[overflow:]...)
	}
}

func detectSelfRouting(_ *Catalogue, state *model.WorkflowState) (bool, string) {
	for _, s := range state.Steps {
		if s.Role == model.RoleOrchestrator && s.Status == model.StepPending {
			return true, fmt.Sprintf("step %q routes work back to the orchestrator and was left pending", s.ID)
		}
	}
	return false, ""
}

func detectCircularDependency(_ *Catalogue, state *model.WorkflowState) (bool, string) {
	cycle := FindDependencyCycle(state.Steps)
	if cycle == nil {
		return false, ""
	}
	return true, fmt.Sprintf("dependency cycle: %s", strings.Join(cycle, " -> "))
}

func detectUnboundedDelegation(c *Catalogue, state *model.WorkflowState) (bool, string) {
	count := state.CollaborationCount()
	if count > c.thresholds.MaxCollaborations {
		return true, fmt.Sprintf("%d collaborations exceed the budget of %d", count, c.thresholds.MaxCollaborations)
	}
	return false, ""
}

func detectContextCollapse(c *Catalogue, state *model.WorkflowState) (bool, string) {
	count := state.CollaborationCount()
	if count > c.thresholds.MaxCollaborations && state.EscalationLevel == 0 {
		return true, fmt.Sprintf("%d collaborations without any escalation", count)
	}
	return false, ""
}

func detectMissingErrorHandling(_ *Catalogue, state *model.WorkflowState) (bool, string) {
	for _, s := range state.Steps {
		if s.MaxRetries == 0 {
			return true, fmt.Sprintf("step %q has no retry budget", s.ID)
		}
	}
	return false, ""
}

func detectCyclicProcess(_ *Catalogue, state *model.WorkflowState) (bool, string) {
	n := len(state.Collaborations)
	if n < 4 {
		return false, ""
	}
	last := state.Collaborations[n-4:]
	if last[0].To == last[2].To && last[1].To == last[3].To {
		return true, fmt.Sprintf("handoffs alternate between %q and %q", last[0].To, last[1].To)
	}
	return false, ""
}

func detectResourceExhaustion(c *Catalogue, state *model.WorkflowState) (bool, string) {
	if len(state.Messages) > c.thresholds.MessageSoftLimit {
		return true, fmt.Sprintf("%d messages exceed the soft limit of %d", len(state.Messages), c.thresholds.MessageSoftLimit)
	}
	return false, ""
}
