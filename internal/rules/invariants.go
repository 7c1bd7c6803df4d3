package rules

import (
	"fmt"

	"github.com/Dom110/KI-AutoAgent-sub003/internal/model"
)

// Limits are the hard resource bounds the invariant checker enforces.
type Limits struct {
	MaxMessages        int
	MaxSteps           int
	MaxEscalationLevel int
}

// DefaultLimits returns the hard bounds used when none are configured.
func DefaultLimits() Limits {
	return Limits{MaxMessages: 1000, MaxSteps: 50, MaxEscalationLevel: 7}
}

// Checker evaluates the hard invariants. Pure over its input: CheckAll on an
// unchanged snapshot always yields the same result.
type Checker struct {
	limits Limits
}

// NewChecker builds an invariant checker with the given limits.
func NewChecker(limits Limits) *Checker {
	if limits.MaxMessages <= 0 {
		limits.MaxMessages = 1000
	}
	if limits.MaxSteps <= 0 {
		limits.MaxSteps = 50
	}
	if limits.MaxEscalationLevel <= 0 {
		limits.MaxEscalationLevel = 7
	}
	return &Checker{limits: limits}
}

// CheckAll evaluates every hard invariant and returns overall validity with
// the full violation list.
func (c *Checker) CheckAll(state *model.WorkflowState) (bool, []Violation) {
	var violations []Violation
	add := func(invariant, fieldPath, message string) {
		violations = append(violations, Violation{
			Invariant: invariant,
			FieldPath: fieldPath,
			Message:   message,
		})
	}

	seen := make(map[string]bool, len(state.Steps))
	known := make(map[string]bool, len(state.Steps))
	for _, s := range state.Steps {
		known[s.ID] = true
	}

	for i, s := range state.Steps {
		path := fmt.Sprintf("steps[%d]", i)
		if s.ID == "" {
			add("unique_step_ids", path+".id", "step id is empty")
		} else if seen[s.ID] {
			add("unique_step_ids", path+".id", fmt.Sprintf("duplicate step id %q", s.ID))
		}
		seen[s.ID] = true

		for j, dep := range s.DependsOn {
			depPath := fmt.Sprintf("%s.depends_on[%d]", path, j)
			if dep == s.ID {
				add("no_self_dependency", depPath, fmt.Sprintf("step %q depends on itself", s.ID))
				continue
			}
			if !known[dep] {
				add("dependencies_resolve", depPath, fmt.Sprintf("references unknown step %q", dep))
			}
		}

		if !model.IsValidStepStatus(s.Status) {
			add("valid_status", path+".status", fmt.Sprintf("unknown status %q", s.Status))
		}
	}

	if len(state.Messages) >= c.limits.MaxMessages {
		add("message_count_bounded", "messages",
			fmt.Sprintf("%d messages reach the hard limit of %d", len(state.Messages), c.limits.MaxMessages))
	}
	if len(state.Steps) >= c.limits.MaxSteps {
		add("step_count_bounded", "steps",
			fmt.Sprintf("%d steps reach the hard limit of %d", len(state.Steps), c.limits.MaxSteps))
	}
	if state.EscalationLevel > c.limits.MaxEscalationLevel {
		add("escalation_bounded", "escalation_level",
			fmt.Sprintf("escalation level %d exceeds maximum %d", state.EscalationLevel, c.limits.MaxEscalationLevel))
	}

	return len(violations) == 0, violations
}

// Advisories returns the non-blocking role/task keyword suggestions: for each
// step whose task text matches another role's keywords better than its own
// assignment, the best match is reported. Advisory only, never a violation.
func (c *Checker) Advisories(state *model.WorkflowState) []Advisory {
	var out []Advisory
	for _, s := range state.Steps {
		best, score := model.BestRoleForTask(s.Task)
		if score > 0 && best != s.Role && s.Role != model.RoleOrchestrator {
			out = append(out, Advisory{
				StepID:        s.ID,
				AssignedRole:  string(s.Role),
				SuggestedRole: string(best),
				Score:         score,
			})
		}
	}
	return out
}
