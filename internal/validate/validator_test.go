package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dom110/KI-AutoAgent-sub003/internal/config"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/model"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/rules"
)

func newValidator(t *testing.T) *Validator {
	t.Helper()
	return New(
		config.Default().Validator,
		rules.NewChecker(rules.DefaultLimits()),
		rules.NewCatalogue(rules.DefaultThresholds()),
		nil,
	)
}

func cleanPlan() *model.WorkflowState {
	return &model.WorkflowState{
		SessionID: "s1",
		Steps: []model.PlanStep{
			{ID: "a", Role: model.RoleArchitect, Task: "design the layout", Status: model.StepCompleted, MaxRetries: 2, TimeoutSeconds: 120},
			{ID: "b", Role: model.RoleCodesmith, Task: "implement the layout", Status: model.StepPending, MaxRetries: 2, TimeoutSeconds: 120, DependsOn: []string{"a"}},
		},
	}
}

func hasIssue(issues []ValidationIssue, typ IssueType, sev rules.Severity) bool {
	for _, i := range issues {
		if i.Type == typ && i.Severity == sev {
			return true
		}
	}
	return false
}

func TestValidate_CleanPlan(t *testing.T) {
	valid, issues, repaired := newValidator(t).Validate(cleanPlan())
	assert.True(t, valid)
	assert.Empty(t, issues)
	assert.NotNil(t, repaired)
}

func TestValidate_EmptyPlanIsHigh(t *testing.T) {
	valid, issues, _ := newValidator(t).Validate(&model.WorkflowState{SessionID: "s1"})
	assert.False(t, valid)
	assert.True(t, hasIssue(issues, IssueStructural, rules.SeverityHigh))
}

func TestValidate_TerminatesWithinPassBudget(t *testing.T) {
	// an empty plan is HIGH but has no repair, so the loop must bail out
	_, issues, _ := newValidator(t).Validate(&model.WorkflowState{})
	for _, i := range issues {
		assert.LessOrEqual(t, i.Pass, 3)
	}
}

func TestValidate_SelfRoutingRepaired(t *testing.T) {
	state := cleanPlan()
	state.Steps = append(state.Steps, model.PlanStep{
		ID: "orch", Role: model.RoleOrchestrator, Task: "coordinate the work",
		Status: model.StepPending, MaxRetries: 1, TimeoutSeconds: 60,
		DependsOn: []string{"b"},
	})

	valid, issues, repaired := newValidator(t).Validate(state)
	assert.True(t, valid, "self-routing must be repaired away")
	assert.True(t, hasIssue(issues, IssueAntiPattern, rules.SeverityCritical))

	fixed := repaired.StepByID("orch")
	require.NotNil(t, fixed)
	assert.Equal(t, model.StepCompleted, fixed.Status)
	assert.NotEmpty(t, fixed.Result)

	// original input is never mutated
	assert.Equal(t, model.StepPending, state.StepByID("orch").Status)
}

func TestValidate_SelfRoutingRepairIdempotent(t *testing.T) {
	state := cleanPlan()
	state.Steps = append(state.Steps, model.PlanStep{
		ID: "orch", Role: model.RoleOrchestrator, Task: "coordinate",
		Status: model.StepPending, MaxRetries: 1, DependsOn: []string{"b"},
	})

	v := newValidator(t)
	_, _, repaired := v.Validate(state)

	valid, issues, again := v.Validate(repaired)
	assert.True(t, valid)
	assert.Empty(t, issues, "re-validating a repaired state is a no-op")
	assert.Equal(t, repaired.StepByID("orch").Status, again.StepByID("orch").Status)
}

func TestValidate_CircularDependencyRepaired(t *testing.T) {
	state := &model.WorkflowState{
		SessionID: "s1",
		Steps: []model.PlanStep{
			{ID: "a", Role: model.RoleCodesmith, Task: "implement part one", Status: model.StepPending, MaxRetries: 2, TimeoutSeconds: 120, DependsOn: []string{"b"}},
			{ID: "b", Role: model.RoleReviewer, Task: "review part one", Status: model.StepPending, MaxRetries: 2, TimeoutSeconds: 120, DependsOn: []string{"a"}},
		},
	}

	valid, issues, repaired := newValidator(t).Validate(state)
	assert.True(t, valid)
	assert.True(t, hasIssue(issues, IssueAntiPattern, rules.SeverityHigh))
	assert.Nil(t, rules.FindDependencyCycle(repaired.Steps), "cycle must be broken")
}

func TestValidate_MessageTruncationRepaired(t *testing.T) {
	state := cleanPlan()
	state.Messages = make([]model.Message, 700)

	valid, _, repaired := newValidator(t).Validate(state)
	assert.True(t, valid)
	assert.Len(t, repaired.Messages, messageTruncateLimit)
	assert.Len(t, state.Messages, 700, "input untouched")
}

func TestValidate_AutoRepairDisabled(t *testing.T) {
	cfg := config.Default().Validator
	off := false
	cfg.AutoRepair = &off
	v := New(cfg, rules.NewChecker(rules.DefaultLimits()), rules.NewCatalogue(rules.DefaultThresholds()), nil)

	state := cleanPlan()
	state.Steps = append(state.Steps, model.PlanStep{
		ID: "orch", Role: model.RoleOrchestrator, Task: "coordinate",
		Status: model.StepPending, MaxRetries: 1, DependsOn: []string{"b"},
	})

	valid, _, repaired := v.Validate(state)
	assert.False(t, valid)
	assert.Equal(t, model.StepPending, repaired.StepByID("orch").Status)
}

func TestValidate_MediumFindingsDoNotInvalidate(t *testing.T) {
	state := cleanPlan()
	state.Steps[0].TimeoutSeconds = 1000
	state.Steps[1].TimeoutSeconds = 1000

	valid, issues, _ := newValidator(t).Validate(state)
	assert.True(t, valid)
	assert.True(t, hasIssue(issues, IssuePerformance, rules.SeverityMedium))
}

func TestValidate_SemanticDuplicate(t *testing.T) {
	state := cleanPlan()
	state.Steps = append(state.Steps, model.PlanStep{
		ID: "c", Role: model.RoleCodesmith, Task: "Implement   the LAYOUT",
		Status: model.StepPending, MaxRetries: 2, TimeoutSeconds: 120, DependsOn: []string{"a"},
	})

	_, issues, _ := newValidator(t).Validate(state)
	assert.True(t, hasIssue(issues, IssueSemantic, rules.SeverityMedium))
}

func TestValidate_ReviewerAfterReviewer(t *testing.T) {
	state := cleanPlan()
	state.Steps = append(state.Steps,
		model.PlanStep{ID: "r1", Role: model.RoleReviewer, Task: "review the change", Status: model.StepPending, MaxRetries: 2, TimeoutSeconds: 60, DependsOn: []string{"b"}},
		model.PlanStep{ID: "r2", Role: model.RoleReviewer, Task: "audit the review", Status: model.StepPending, MaxRetries: 2, TimeoutSeconds: 60, DependsOn: []string{"r1"}},
	)

	_, issues, _ := newValidator(t).Validate(state)
	assert.True(t, hasIssue(issues, IssueSemantic, rules.SeverityLow))
}

func TestValidate_OrphanStep(t *testing.T) {
	state := cleanPlan()
	state.Steps = append(state.Steps, model.PlanStep{
		ID: "loose", Role: model.RoleDocubot, Task: "write the changelog",
		Status: model.StepPending, MaxRetries: 2, TimeoutSeconds: 60,
	})

	_, issues, _ := newValidator(t).Validate(state)
	assert.True(t, hasIssue(issues, IssueStructural, rules.SeverityLow))
}

func TestDependencyChainDepth(t *testing.T) {
	steps := []model.PlanStep{
		{ID: "a"},
		{ID: "b", DependsOn: []string{"a"}},
		{ID: "c", DependsOn: []string{"b"}},
		{ID: "d"},
	}
	assert.Equal(t, 3, dependencyChainDepth(steps))
}

func TestParallelizableGroups(t *testing.T) {
	steps := []model.PlanStep{
		{ID: "a"},
		{ID: "b"},
		{ID: "c", DependsOn: []string{"a", "b"}},
	}
	groups := parallelizableGroups(steps)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a", "b"}, groups[0])
}
