package model

import "testing"

func TestIsStepTerminal(t *testing.T) {
	tests := []struct {
		status   StepStatus
		terminal bool
	}{
		{StepPending, false},
		{StepInProgress, false},
		{StepCompleted, true},
		{StepFailed, false},
		{StepBlocked, false},
		{StepTimeout, false},
		{StepCancelled, true},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := IsStepTerminal(tt.status); got != tt.terminal {
				t.Errorf("IsStepTerminal(%q) = %v, want %v", tt.status, got, tt.terminal)
			}
		})
	}
}

func TestValidateStepTransition(t *testing.T) {
	valid := []struct {
		from, to StepStatus
	}{
		{StepPending, StepInProgress},
		{StepPending, StepBlocked},
		{StepPending, StepCancelled},
		{StepInProgress, StepCompleted},
		{StepInProgress, StepFailed},
		{StepInProgress, StepTimeout},
		{StepFailed, StepPending},
		{StepBlocked, StepPending},
		{StepBlocked, StepCancelled},
		{StepTimeout, StepPending},
		{StepTimeout, StepFailed},
	}
	for _, tt := range valid {
		if err := ValidateStepTransition(tt.from, tt.to); err != nil {
			t.Errorf("expected %q → %q to be valid, got %v", tt.from, tt.to, err)
		}
	}

	invalid := []struct {
		from, to StepStatus
	}{
		{StepPending, StepCompleted},
		{StepPending, StepFailed},
		{StepInProgress, StepPending},
		{StepCompleted, StepPending},
		{StepCompleted, StepInProgress},
		{StepCancelled, StepPending},
		{StepFailed, StepCompleted},
		{StepTimeout, StepCompleted},
	}
	for _, tt := range invalid {
		if err := ValidateStepTransition(tt.from, tt.to); err == nil {
			t.Errorf("expected %q → %q to be rejected", tt.from, tt.to)
		}
	}
}

func TestValidateStepTransition_UnknownStatus(t *testing.T) {
	if err := ValidateStepTransition("paused", StepPending); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestStepAdvance(t *testing.T) {
	step := PlanStep{ID: "step_1", Status: StepPending}

	if err := step.Advance(StepInProgress); err != nil {
		t.Fatalf("pending → in_progress: %v", err)
	}
	if err := step.Advance(StepCompleted); err != nil {
		t.Fatalf("in_progress → completed: %v", err)
	}
	if step.Status != StepCompleted {
		t.Errorf("status = %q, want %q", step.Status, StepCompleted)
	}
}

func TestStepAdvance_RejectsIllegalTransition(t *testing.T) {
	step := PlanStep{ID: "step_1", Status: StepPending}

	if err := step.Advance(StepCompleted); err == nil {
		t.Fatal("expected pending → completed to be rejected")
	}
	if step.Status != StepPending {
		t.Errorf("rejected advance mutated status to %q", step.Status)
	}

	done := PlanStep{ID: "step_2", Status: StepCompleted}
	if err := done.Advance(StepInProgress); err == nil {
		t.Fatal("expected advance out of a terminal status to be rejected")
	}
}
