package model

import "fmt"

type StepStatus string

const (
	StepPending    StepStatus = "pending"
	StepInProgress StepStatus = "in_progress"
	StepCompleted  StepStatus = "completed"
	StepFailed     StepStatus = "failed"
	StepBlocked    StepStatus = "blocked"
	StepTimeout    StepStatus = "timeout"
	StepCancelled  StepStatus = "cancelled"
)

var validStepStatuses = map[StepStatus]bool{
	StepPending:    true,
	StepInProgress: true,
	StepCompleted:  true,
	StepFailed:     true,
	StepBlocked:    true,
	StepTimeout:    true,
	StepCancelled:  true,
}

var terminalStepStatuses = map[StepStatus]bool{
	StepCompleted: true,
	StepCancelled: true,
}

// Step status transitions: failed/blocked/timeout can reopen to pending,
// completed and cancelled are terminal.
var validStepTransitions = map[StepStatus]map[StepStatus]bool{
	StepPending: {
		StepInProgress: true,
		StepBlocked:    true,
		StepCancelled:  true,
	},
	StepInProgress: {
		StepCompleted: true,
		StepFailed:    true,
		StepTimeout:   true,
	},
	StepFailed: {
		StepPending: true,
	},
	StepBlocked: {
		StepPending:   true,
		StepCancelled: true,
	},
	StepTimeout: {
		StepPending: true,
		StepFailed:  true,
	},
}

func IsValidStepStatus(s StepStatus) bool {
	return validStepStatuses[s]
}

func IsStepTerminal(s StepStatus) bool {
	return terminalStepStatuses[s]
}

func ValidateStepTransition(from, to StepStatus) error {
	if IsStepTerminal(from) {
		return fmt.Errorf("cannot transition from terminal status %q", from)
	}
	allowed, ok := validStepTransitions[from]
	if !ok {
		return fmt.Errorf("unknown status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid step transition: %q → %q", from, to)
	}
	return nil
}
