// Package iterate bounds the refinement loop: it tracks why each extra
// iteration was needed and, when the budget is exhausted, summarizes the run
// and offers a fixed menu of remediation options.
package iterate

import (
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/Dom110/KI-AutoAgent-sub003/internal/events"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/model"
)

// QualityResult is the reviewer's verdict on one iteration.
type QualityResult struct {
	Score          float64
	NeedsIteration bool
	Reason         string
	Role           model.Role
	CriticalIssues []string
}

// IterationReason records why one extra iteration was required.
type IterationReason struct {
	Iteration      int
	Reason         string
	Role           model.Role
	Quality        float64
	CriticalIssues []string
	Timestamp      time.Time
}

// RemediationChoice identifies one option from the fixed menu.
type RemediationChoice string

const (
	ChoiceExtendBy5         RemediationChoice = "extend_by_5"
	ChoiceExtendBy3         RemediationChoice = "extend_by_3"
	ChoiceAcceptCurrent     RemediationChoice = "accept_current"
	ChoiceRestartSimplified RemediationChoice = "restart_simplified"
	ChoiceDecompose         RemediationChoice = "decompose"
	ChoiceEscalateToHuman   RemediationChoice = "escalate_to_human"
)

// RemediationOption is one entry in the menu shown when the budget runs out.
type RemediationOption struct {
	Choice      RemediationChoice
	Severity    int // 1 = mildest intervention
	Description string
}

// remediationMenu is fixed and severity-ranked; Check returns it verbatim.
var remediationMenu = []RemediationOption{
	{ChoiceExtendBy5, 1, "extend the budget by 5 iterations and continue"},
	{ChoiceExtendBy3, 2, "extend the budget by 3 iterations and continue"},
	{ChoiceAcceptCurrent, 3, "accept the current result with quality warnings"},
	{ChoiceRestartSimplified, 4, "restart with a simplified plan, discarding progress"},
	{ChoiceDecompose, 5, "decompose the task into smaller units and suspend"},
	{ChoiceEscalateToHuman, 6, "suspend and escalate to a human operator"},
}

// CheckResult is the controller's answer for one iteration boundary.
type CheckResult struct {
	LimitReached bool
	Remaining    int
	Summary      *Summary
	Options      []RemediationOption
	Primary      RemediationChoice
}

// Signal tells the caller how to continue after a decision.
type Signal string

const (
	SignalContinue         Signal = "continue"
	SignalStopWithWarnings Signal = "stop_with_warnings"
	SignalRestartDiscard   Signal = "restart_discard"
	SignalDecomposeSuspend Signal = "decompose_suspend"
	SignalSuspendForHuman  Signal = "suspend_for_human"
)

// Decision is the deterministic mapping of a remediation choice.
type Decision struct {
	Choice   RemediationChoice
	Signal   Signal
	ExtendBy int
	Warning  string
}

// Controller enforces the iteration budget for one workflow session.
type Controller struct {
	maxIterations int
	bus           *events.Bus
	logger        *log.Logger

	mu      sync.Mutex
	reasons []IterationReason
	started time.Time
}

// NewController builds a controller. The bus may be nil.
func NewController(maxIterations int, bus *events.Bus, logWriter io.Writer) *Controller {
	if maxIterations <= 0 {
		maxIterations = 10
	}
	if logWriter == nil {
		logWriter = io.Discard
	}
	return &Controller{
		maxIterations: maxIterations,
		bus:           bus,
		logger:        log.New(logWriter, "", 0),
		started:       time.Now(),
	}
}

// MaxIterations returns the configured budget.
func (c *Controller) MaxIterations() int { return c.maxIterations }

// Reasons returns a copy of the recorded iteration reasons.
func (c *Controller) Reasons() []IterationReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]IterationReason, len(c.reasons))
	copy(out, c.reasons)
	return out
}

// Record adds an iteration reason directly, for callers that track quality
// outside Check.
func (c *Controller) Record(reason IterationReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if reason.Timestamp.IsZero() {
		reason.Timestamp = time.Now()
	}
	c.reasons = append(c.reasons, reason)
}

// Check decides whether another iteration may run. At the budget it builds a
// summary and returns the remediation menu; below it, a quality result that
// demands another round is recorded against the remaining budget.
func (c *Controller) Check(currentIteration int, quality QualityResult) CheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if currentIteration >= c.maxIterations {
		summary := c.buildSummary(currentIteration)
		primary := primaryRecommendation(summary)
		c.logger.Printf("iteration_limit iteration=%d max=%d primary=%s", currentIteration, c.maxIterations, primary)
		c.bus.Publish(events.EventIterationLimit, map[string]interface{}{
			"iteration":      currentIteration,
			"max_iterations": c.maxIterations,
			"primary":        string(primary),
		})
		return CheckResult{
			LimitReached: true,
			Remaining:    0,
			Summary:      summary,
			Options:      remediationMenu,
			Primary:      primary,
		}
	}

	if quality.NeedsIteration {
		c.reasons = append(c.reasons, IterationReason{
			Iteration:      currentIteration,
			Reason:         quality.Reason,
			Role:           quality.Role,
			Quality:        quality.Score,
			CriticalIssues: quality.CriticalIssues,
			Timestamp:      time.Now(),
		})
		c.logger.Printf("iteration_recorded iteration=%d role=%s quality=%.2f remaining=%d",
			currentIteration, quality.Role, quality.Score, c.maxIterations-currentIteration)
	}
	return CheckResult{Remaining: c.maxIterations - currentIteration}
}

// ExecuteDecision maps a remediation choice to its continuation signal. An
// unknown choice yields an error and the accept-current fallback.
func (c *Controller) ExecuteDecision(choice RemediationChoice) (Decision, error) {
	switch choice {
	case ChoiceExtendBy5:
		return Decision{Choice: choice, Signal: SignalContinue, ExtendBy: 5}, nil
	case ChoiceExtendBy3:
		return Decision{Choice: choice, Signal: SignalContinue, ExtendBy: 3}, nil
	case ChoiceAcceptCurrent:
		return Decision{
			Choice:  choice,
			Signal:  SignalStopWithWarnings,
			Warning: "result accepted below the quality bar",
		}, nil
	case ChoiceRestartSimplified:
		return Decision{Choice: choice, Signal: SignalRestartDiscard}, nil
	case ChoiceDecompose:
		return Decision{Choice: choice, Signal: SignalDecomposeSuspend}, nil
	case ChoiceEscalateToHuman:
		return Decision{Choice: choice, Signal: SignalSuspendForHuman}, nil
	default:
		return Decision{
			Choice:  ChoiceAcceptCurrent,
			Signal:  SignalStopWithWarnings,
			Warning: "result accepted below the quality bar",
		}, fmt.Errorf("unknown remediation choice %q, defaulting to %s", choice, ChoiceAcceptCurrent)
	}
}
