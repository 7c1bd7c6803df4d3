package validate

import (
	"github.com/Dom110/KI-AutoAgent-sub003/internal/events"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/model"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/rules"
)

const syntheticResult = "Resolved by the orchestrator: routing steps must not wait on themselves."

// repair applies the automatic fixes to work in place. Only CRITICAL and
// HIGH findings are repairable, and only three of them have a known fix.
// Reports whether anything changed.
func (v *Validator) repair(work *model.WorkflowState, issues []ValidationIssue) bool {
	changed := false
	for _, issue := range issues {
		if issue.Severity != rules.SeverityCritical && issue.Severity != rules.SeverityHigh {
			continue
		}
		switch issue.Pattern {
		case rules.PatternSelfRouting:
			if v.repairSelfRouting(work) {
				changed = true
				v.publishRepair(work, issue.Pattern)
			}
		case rules.PatternCircularDependency:
			if v.repairCircularDependency(work) {
				changed = true
				v.publishRepair(work, issue.Pattern)
			}
		case rules.PatternResourceExhaustion:
			if v.repairResourceExhaustion(work) {
				changed = true
				v.publishRepair(work, issue.Pattern)
			}
		}
	}
	return changed
}

// repairSelfRouting resolves pending orchestrator steps with a synthetic
// result, advancing them through the legal pending → in_progress → completed
// path. Idempotent: an already-fixed state is untouched.
func (v *Validator) repairSelfRouting(work *model.WorkflowState) bool {
	changed := false
	for i := range work.Steps {
		s := &work.Steps[i]
		if s.Role != model.RoleOrchestrator || s.Status != model.StepPending {
			continue
		}
		if err := s.Advance(model.StepInProgress); err != nil {
			continue
		}
		if err := s.Advance(model.StepCompleted); err != nil {
			continue
		}
		s.Result = syntheticResult
		changed = true
	}
	return changed
}

// repairCircularDependency removes one dependency edge from a step on the
// detected cycle, breaking it.
func (v *Validator) repairCircularDependency(work *model.WorkflowState) bool {
	cycle := rules.FindDependencyCycle(work.Steps)
	if cycle == nil {
		return false
	}

	onCycle := make(map[string]bool, len(cycle))
	for _, id := range cycle {
		onCycle[id] = true
	}

	for i := range work.Steps {
		s := &work.Steps[i]
		if !onCycle[s.ID] {
			continue
		}
		for j, dep := range s.DependsOn {
			if onCycle[dep] {
				s.DependsOn = append(s.DependsOn[:j], s.DependsOn[j+1:]...)
				return true
			}
		}
	}
	return false
}

// repairResourceExhaustion truncates the message log to the most recent
// entries within the soft limit.
func (v *Validator) repairResourceExhaustion(work *model.WorkflowState) bool {
	if len(work.Messages) <= messageTruncateLimit {
		return false
	}
	work.Messages = append([]model.Message(nil), work.Messages[len(work.Messages)-messageTruncateLimit:]...)
	return true
}

func (v *Validator) publishRepair(work *model.WorkflowState, pattern rules.PatternID) {
	v.bus.Publish(events.EventPlanRepaired, map[string]interface{}{
		"session_id": work.SessionID,
		"pattern":    string(pattern),
	})
}
