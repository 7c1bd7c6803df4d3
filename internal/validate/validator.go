// Package validate runs the multi-pass pre-execution check over a proposed
// plan: invariants, anti-patterns, structural, semantic, and performance
// analysis, with bounded automatic repair of the critical findings.
package validate

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Dom110/KI-AutoAgent-sub003/internal/config"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/events"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/model"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/rules"
)

// IssueType classifies a validation finding.
type IssueType string

const (
	IssueInvariant   IssueType = "invariant_violation"
	IssueAntiPattern IssueType = "anti_pattern"
	IssueStructural  IssueType = "structural"
	IssueSemantic    IssueType = "semantic"
	IssuePerformance IssueType = "performance"
)

// ValidationIssue is one finding from one pass. Produced fresh per pass.
type ValidationIssue struct {
	Type         IssueType
	Severity     rules.Severity
	Pass         int
	Description  string
	SuggestedFix string
	Pattern      rules.PatternID
}

const (
	largePlanThreshold   = 20
	maxDependencyDepth   = 5
	totalTimeoutBudget   = 1800
	messageTruncateLimit = 500
)

// Validator composes the rule catalogue into a bounded repair loop.
type Validator struct {
	cfg       config.ValidatorConfig
	checker   *rules.Checker
	catalogue *rules.Catalogue
	bus       *events.Bus
}

// New creates a validator. The bus may be nil.
func New(cfg config.ValidatorConfig, checker *rules.Checker, catalogue *rules.Catalogue, bus *events.Bus) *Validator {
	return &Validator{cfg: cfg, checker: checker, catalogue: catalogue, bus: bus}
}

// Validate runs up to the configured number of passes, repairing between
// passes when enabled. It returns overall validity, every issue from every
// pass, and the best-effort repaired state — always, even when invalid.
func (v *Validator) Validate(state *model.WorkflowState) (bool, []ValidationIssue, *model.WorkflowState) {
	work := state.Clone()
	var all []ValidationIssue
	var remaining []ValidationIssue

	for pass := 1; pass <= v.cfg.MaxPasses; pass++ {
		issues := v.runPass(work, pass)
		all = append(all, issues...)
		remaining = issues

		if len(issues) == 0 {
			break
		}
		if !v.cfg.AutoRepairEnabled() {
			break
		}
		if !v.repair(work, issues) {
			// nothing repairable left, a further pass would find the same
			break
		}
	}

	valid := true
	for _, issue := range remaining {
		if issue.Severity.Blocking() {
			valid = false
			break
		}
	}
	return valid, all, work
}

func (v *Validator) runPass(state *model.WorkflowState, pass int) []ValidationIssue {
	var issues []ValidationIssue

	if _, violations := v.checker.CheckAll(state); len(violations) > 0 {
		for _, viol := range violations {
			issues = append(issues, ValidationIssue{
				Type:         IssueInvariant,
				Severity:     rules.SeverityError,
				Pass:         pass,
				Description:  fmt.Sprintf("%s: %s", viol.FieldPath, viol.Message),
				SuggestedFix: fmt.Sprintf("restore the %s invariant", viol.Invariant),
			})
		}
	}

	for _, d := range v.catalogue.Detect(state) {
		issues = append(issues, ValidationIssue{
			Type:         IssueAntiPattern,
			Severity:     d.Severity,
			Pass:         pass,
			Description:  d.Reason,
			SuggestedFix: d.Remediation,
			Pattern:      d.Pattern,
		})
	}

	issues = append(issues, v.structuralChecks(state, pass)...)
	issues = append(issues, v.semanticChecks(state, pass)...)
	issues = append(issues, v.performanceChecks(state, pass)...)
	return issues
}

func (v *Validator) structuralChecks(state *model.WorkflowState, pass int) []ValidationIssue {
	var issues []ValidationIssue

	if len(state.Steps) == 0 {
		issues = append(issues, ValidationIssue{
			Type:         IssueStructural,
			Severity:     rules.SeverityHigh,
			Pass:         pass,
			Description:  "plan contains no steps",
			SuggestedFix: "add at least one executable step",
		})
		return issues
	}

	if len(state.Steps) > largePlanThreshold {
		issues = append(issues, ValidationIssue{
			Type:         IssueStructural,
			Severity:     rules.SeverityMedium,
			Pass:         pass,
			Description:  fmt.Sprintf("plan has %d steps (more than %d)", len(state.Steps), largePlanThreshold),
			SuggestedFix: "split the plan into smaller sub-plans",
		})
	}

	if depth := dependencyChainDepth(state.Steps); depth > maxDependencyDepth {
		issues = append(issues, ValidationIssue{
			Type:         IssueStructural,
			Severity:     rules.SeverityMedium,
			Pass:         pass,
			Description:  fmt.Sprintf("dependency chain depth %d exceeds %d", depth, maxDependencyDepth),
			SuggestedFix: "flatten the dependency chain",
		})
	}

	if len(state.Steps) > 1 {
		dependedOn := make(map[string]bool)
		for _, s := range state.Steps {
			for _, d := range s.DependsOn {
				dependedOn[d] = true
			}
		}
		for _, s := range state.Steps {
			if len(s.DependsOn) == 0 && !dependedOn[s.ID] {
				issues = append(issues, ValidationIssue{
					Type:         IssueStructural,
					Severity:     rules.SeverityLow,
					Pass:         pass,
					Description:  fmt.Sprintf("step %q is connected to nothing", s.ID),
					SuggestedFix: "link the step into the plan or remove it",
				})
			}
		}
	}

	return issues
}

func (v *Validator) semanticChecks(state *model.WorkflowState, pass int) []ValidationIssue {
	var issues []ValidationIssue

	seen := make(map[string]string)
	for _, s := range state.Steps {
		sig := fmt.Sprintf("%s:%s", s.Role, taskPrefix(s.Task))
		if other, ok := seen[sig]; ok {
			issues = append(issues, ValidationIssue{
				Type:         IssueSemantic,
				Severity:     rules.SeverityMedium,
				Pass:         pass,
				Description:  fmt.Sprintf("steps %q and %q duplicate the same role and task", other, s.ID),
				SuggestedFix: "merge the duplicate steps",
			})
			continue
		}
		seen[sig] = s.ID
	}

	for i := 1; i < len(state.Steps); i++ {
		if state.Steps[i].Role == model.RoleReviewer && state.Steps[i-1].Role == model.RoleReviewer {
			issues = append(issues, ValidationIssue{
				Type:         IssueSemantic,
				Severity:     rules.SeverityLow,
				Pass:         pass,
				Description:  fmt.Sprintf("step %q reviews a review", state.Steps[i].ID),
				SuggestedFix: "insert productive work between review steps",
			})
		}
	}

	return issues
}

func (v *Validator) performanceChecks(state *model.WorkflowState, pass int) []ValidationIssue {
	var issues []ValidationIssue

	total := 0
	for _, s := range state.Steps {
		total += s.TimeoutSeconds
	}
	if total > totalTimeoutBudget {
		issues = append(issues, ValidationIssue{
			Type:         IssuePerformance,
			Severity:     rules.SeverityMedium,
			Pass:         pass,
			Description:  fmt.Sprintf("summed step timeouts of %ds exceed the %ds budget", total, totalTimeoutBudget),
			SuggestedFix: "reduce per-step timeout budgets or shorten the plan",
		})
	}

	pending := make([]model.PlanStep, 0, len(state.Steps))
	for _, s := range state.Steps {
		if s.Status == model.StepPending {
			pending = append(pending, s)
		}
	}
	for _, group := range parallelizableGroups(pending) {
		issues = append(issues, ValidationIssue{
			Type:         IssuePerformance,
			Severity:     rules.SeverityInfo,
			Pass:         pass,
			Description:  fmt.Sprintf("steps %s could run in parallel", strings.Join(group, ", ")),
			SuggestedFix: "dispatch the group concurrently",
		})
	}

	return issues
}

// dependencyChainDepth returns the longest dependency path length, counted
// in steps. Cycles are handled by the anti-pattern check; here a revisit
// simply terminates the walk.
func dependencyChainDepth(steps []model.PlanStep) int {
	byID := make(map[string]*model.PlanStep, len(steps))
	for i := range steps {
		byID[steps[i].ID] = &steps[i]
	}

	memo := make(map[string]int, len(steps))
	walking := make(map[string]bool)

	var depth func(id string) int
	depth = func(id string) int {
		if d, ok := memo[id]; ok {
			return d
		}
		if walking[id] {
			return 0
		}
		step, ok := byID[id]
		if !ok {
			return 0
		}
		walking[id] = true
		best := 0
		for _, dep := range step.DependsOn {
			if d := depth(dep); d > best {
				best = d
			}
		}
		walking[id] = false
		memo[id] = best + 1
		return best + 1
	}

	max := 0
	for _, s := range steps {
		if d := depth(s.ID); d > max {
			max = d
		}
	}
	return max
}

// parallelizableGroups partitions steps into groups of mutually
// non-conflicting steps. Two steps conflict iff one's id appears in the
// other's dependency list. Groups of one are not opportunities.
func parallelizableGroups(steps []model.PlanStep) [][]string {
	conflict := func(a, b *model.PlanStep) bool {
		for _, d := range a.DependsOn {
			if d == b.ID {
				return true
			}
		}
		for _, d := range b.DependsOn {
			if d == a.ID {
				return true
			}
		}
		return false
	}

	var groups [][]int
	for i := range steps {
		placed := false
		for gi, group := range groups {
			ok := true
			for _, j := range group {
				if conflict(&steps[i], &steps[j]) {
					ok = false
					break
				}
			}
			if ok {
				groups[gi] = append(groups[gi], i)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []int{i})
		}
	}

	var out [][]string
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		ids := make([]string, 0, len(group))
		for _, j := range group {
			ids = append(ids, steps[j].ID)
		}
		sort.Strings(ids)
		out = append(out, ids)
	}
	return out
}

func taskPrefix(task string) string {
	norm := strings.Join(strings.Fields(strings.ToLower(task)), " ")
	const max = 40
	if len(norm) > max {
		return norm[:max]
	}
	return norm
}
