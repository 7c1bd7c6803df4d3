// Package model defines the governed-state data structures shared by the
// guard, rule catalogue, validator, and health monitor.
package model

import "fmt"

type PlanStep struct {
	ID             string     `yaml:"id"`
	Role           Role       `yaml:"role"`
	Task           string     `yaml:"task"`
	DependsOn      []string   `yaml:"depends_on"`
	Status         StepStatus `yaml:"status"`
	MaxRetries     int        `yaml:"max_retries"`
	TimeoutSeconds int        `yaml:"timeout_seconds"`
	Result         string     `yaml:"result,omitempty"`
}

// Advance moves the step to a new status, enforcing the transition table.
// Callers that need to skip states advance through the intermediate ones.
func (p *PlanStep) Advance(to StepStatus) error {
	if err := ValidateStepTransition(p.Status, to); err != nil {
		return fmt.Errorf("step %s: %w", p.ID, err)
	}
	p.Status = to
	return nil
}

type Message struct {
	From      string `yaml:"from"`
	Content   string `yaml:"content"`
	Timestamp string `yaml:"timestamp"`
}

// CollaborationRecord is one cross-role handoff in the workflow history.
type CollaborationRecord struct {
	From      Role   `yaml:"from"`
	To        Role   `yaml:"to"`
	Reason    string `yaml:"reason"`
	Timestamp string `yaml:"timestamp"`
}

// WorkflowState is the governed-state snapshot every check reads. It is
// passed in and returned as plain data; the control plane holds no durable
// storage of its own.
type WorkflowState struct {
	SessionID       string                `yaml:"session_id"`
	Steps           []PlanStep            `yaml:"steps"`
	Messages        []Message             `yaml:"messages"`
	Collaborations  []CollaborationRecord `yaml:"collaborations"`
	EscalationLevel int                   `yaml:"escalation_level"`
	CreatedAt       string                `yaml:"created_at"`
	UpdatedAt       string                `yaml:"updated_at"`
}

// CollaborationCount reports how many cross-role handoffs have occurred.
func (s *WorkflowState) CollaborationCount() int {
	return len(s.Collaborations)
}

// StepByID returns a pointer into Steps, or nil when absent.
func (s *WorkflowState) StepByID(id string) *PlanStep {
	for i := range s.Steps {
		if s.Steps[i].ID == id {
			return &s.Steps[i]
		}
	}
	return nil
}

// Clone returns a deep copy so repairs never mutate the caller's snapshot.
func (s *WorkflowState) Clone() *WorkflowState {
	out := &WorkflowState{
		SessionID:       s.SessionID,
		EscalationLevel: s.EscalationLevel,
		CreatedAt:       s.CreatedAt,
		UpdatedAt:       s.UpdatedAt,
	}
	if s.Steps != nil {
		out.Steps = make([]PlanStep, len(s.Steps))
		copy(out.Steps, s.Steps)
		for i := range out.Steps {
			if s.Steps[i].DependsOn != nil {
				out.Steps[i].DependsOn = append([]string(nil), s.Steps[i].DependsOn...)
			}
		}
	}
	if s.Messages != nil {
		out.Messages = append([]Message(nil), s.Messages...)
	}
	if s.Collaborations != nil {
		out.Collaborations = append([]CollaborationRecord(nil), s.Collaborations...)
	}
	return out
}
