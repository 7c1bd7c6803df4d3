package model

import "testing"

func TestBestRoleForTask(t *testing.T) {
	tests := []struct {
		task string
		want Role
	}{
		{"implement the parser function", RoleCodesmith},
		{"review and verify the change", RoleReviewer},
		{"research the best vector search library", RoleResearch},
		{"fix the bug in the patch pipeline", RoleFixer},
		{"design the module architecture", RoleArchitect},
	}
	for _, tt := range tests {
		got, score := BestRoleForTask(tt.task)
		if got != tt.want {
			t.Errorf("BestRoleForTask(%q) = %q, want %q", tt.task, got, tt.want)
		}
		if score == 0 {
			t.Errorf("BestRoleForTask(%q) score = 0, want > 0", tt.task)
		}
	}
}

func TestBestRoleForTask_TieIsDeterministic(t *testing.T) {
	// "plan" votes architect, "check" votes reviewer: a 1-1 tie that must
	// resolve the same way on every run
	want, wantScore := BestRoleForTask("check the plan")
	if wantScore != 1 {
		t.Fatalf("expected a 1-1 tie, got score %d", wantScore)
	}
	if want != RoleArchitect {
		t.Errorf("tie resolved to %q, want %q", want, RoleArchitect)
	}
	for i := 0; i < 50; i++ {
		got, _ := BestRoleForTask("check the plan")
		if got != want {
			t.Fatalf("run %d: BestRoleForTask tie resolved to %q, previously %q", i, got, want)
		}
	}
}

func TestBestRoleForTask_NoMatch(t *testing.T) {
	_, score := BestRoleForTask("zzz qqq")
	if score != 0 {
		t.Errorf("expected score 0 for unmatched task, got %d", score)
	}
}

func TestCloneIsDeep(t *testing.T) {
	st := &WorkflowState{
		SessionID: "s1",
		Steps: []PlanStep{
			{ID: "a", Role: RoleCodesmith, Status: StepPending, DependsOn: []string{"b"}},
		},
		Messages:       []Message{{From: "user", Content: "hi"}},
		Collaborations: []CollaborationRecord{{From: RoleOrchestrator, To: RoleCodesmith}},
	}

	clone := st.Clone()
	clone.Steps[0].Status = StepCompleted
	clone.Steps[0].DependsOn[0] = "c"
	clone.Messages[0].Content = "changed"

	if st.Steps[0].Status != StepPending {
		t.Error("clone mutated original step status")
	}
	if st.Steps[0].DependsOn[0] != "b" {
		t.Error("clone shares dependency slice with original")
	}
	if st.Messages[0].Content != "hi" {
		t.Error("clone mutated original messages")
	}
}

func TestStepByID(t *testing.T) {
	st := &WorkflowState{Steps: []PlanStep{{ID: "a"}, {ID: "b"}}}
	if got := st.StepByID("b"); got == nil || got.ID != "b" {
		t.Errorf("StepByID(b) = %v", got)
	}
	if got := st.StepByID("missing"); got != nil {
		t.Errorf("StepByID(missing) = %v, want nil", got)
	}
}
