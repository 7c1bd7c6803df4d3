// Package guard gates a single proposed unit of work: fingerprinting,
// duplicate and loop detection, depth limiting, classification-gated
// dispatch, and timeout-bounded delegated execution with a safe fallback.
package guard

import (
	"context"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Dom110/KI-AutoAgent-sub003/internal/collab"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/config"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/events"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/model"
)

const (
	defaultStepRetries    = 3
	defaultStepTimeoutSec = 120
)

// OrchestrateFunc is the delegated orchestrator entry point the guard wraps
// with a wall-clock timeout.
type OrchestrateFunc func(ctx context.Context, work string, state *model.WorkflowState) (string, error)

// Guard is the gatekeeper for proposed units of work. One guard governs one
// workflow session; it holds no locks, so concurrent calls against the same
// instance are the caller's responsibility to avoid.
type Guard struct {
	cfg         config.GuardConfig
	classifier  collab.Classifier
	orchestrate OrchestrateFunc
	history     *ExecutionHistory
	bus         *events.Bus
	logger      *log.Logger
}

// New creates a guard. The bus may be nil when no observer is wired.
func New(cfg config.GuardConfig, classifier collab.Classifier, orchestrate OrchestrateFunc, bus *events.Bus, logWriter io.Writer) *Guard {
	if logWriter == nil {
		logWriter = io.Discard
	}
	return &Guard{
		cfg:         cfg,
		classifier:  classifier,
		orchestrate: orchestrate,
		history:     NewExecutionHistory(),
		bus:         bus,
		logger:      log.New(logWriter, "", 0),
	}
}

// History exposes the guard's execution history for inspection.
func (g *Guard) History() *ExecutionHistory { return g.history }

// Stats returns the cumulative guard statistics.
func (g *Guard) Stats() Stats { return g.history.Stats() }

// Reset clears the history at a session boundary.
func (g *Guard) Reset() { g.history.Reset() }

// Execute runs one guarded unit of work. Blocks are expected results, never
// errors, and always carry a non-empty safe fallback text.
func (g *Guard) Execute(ctx context.Context, work string, state *model.WorkflowState) Outcome {
	now := time.Now().UTC()
	fp := Fingerprint(work)
	depth := g.history.Depth()

	cls, err := g.classifier.Classify(ctx, work, state)
	if err != nil {
		fallback := (&model.Classification{}).FallbackText()
		g.history.Record(ExecutionAttempt{Fingerprint: fp, Timestamp: now, Depth: depth, Err: err})
		g.logger.Printf("classify_failed fingerprint=%s error=%v", fp, err)
		return failed(fmt.Errorf("classify work: %w", err), fallback)
	}

	block := func(reason BlockReason) Outcome {
		g.history.Record(ExecutionAttempt{
			Fingerprint: fp,
			Timestamp:   now,
			Depth:       depth,
			Blocked:     true,
			BlockReason: reason,
		})
		g.bus.Publish(events.EventExecutionBlocked, map[string]interface{}{
			"session_id":  state.SessionID,
			"reason":      string(reason),
			"fingerprint": fp,
			"depth":       depth,
		})
		g.logger.Printf("execution_blocked fingerprint=%s depth=%d reason=%s", fp, depth, reason)
		return blocked(reason, cls.FallbackText())
	}

	if depth >= g.cfg.MaxDepth {
		return block(BlockDepthExceeded)
	}
	if g.history.Count(fp) >= g.cfg.MaxDuplicates {
		return block(BlockDuplicateExceeded)
	}
	window := append(g.history.RecentFingerprints(g.cfg.LoopWindow), fp)
	if HasLoopPattern(window) {
		return block(BlockLoopDetected)
	}
	if !cls.SafeToExecute {
		return block(BlockClassifiedUnsafe)
	}

	g.history.Push(fp)
	defer g.history.Pop()

	out := g.dispatch(ctx, work, state, cls)
	g.history.Record(ExecutionAttempt{
		Fingerprint: fp,
		Timestamp:   now,
		Depth:       depth,
		Result:      out.Result,
		Err:         out.Err,
	})
	return out
}

func (g *Guard) dispatch(ctx context.Context, work string, state *model.WorkflowState, cls *model.Classification) Outcome {
	switch cls.Action {
	case model.ActionDirectResponse:
		return succeeded(cls.FallbackText())

	case model.ActionClarification:
		if cls.Response != "" {
			return succeeded(cls.Response)
		}
		return succeeded("The request is ambiguous. Please clarify what should be done before the workflow continues.")

	case model.ActionRouteAgent:
		return g.routeToRoles(work, cls)

	case model.ActionSafeExecution:
		return g.runBounded(ctx, work, state, cls.FallbackText())

	default:
		return failed(fmt.Errorf("unknown suggested action %q", cls.Action), cls.FallbackText())
	}
}

// routeToRoles builds pending plan steps for the classification's suggested
// roles. The steps carry default retry and timeout budgets; the caller folds
// them into the governed plan.
func (g *Guard) routeToRoles(work string, cls *model.Classification) Outcome {
	roles := cls.SuggestedRoles
	if len(roles) == 0 {
		best, score := model.BestRoleForTask(work)
		if score == 0 {
			best = model.RoleCodesmith
		}
		roles = []model.Role{best}
	}

	steps := make([]model.PlanStep, 0, len(roles))
	names := make([]string, 0, len(roles))
	var prev string
	for _, role := range roles {
		step := model.PlanStep{
			ID:             "step_" + uuid.NewString()[:8],
			Role:           role,
			Task:           work,
			Status:         model.StepPending,
			MaxRetries:     defaultStepRetries,
			TimeoutSeconds: defaultStepTimeoutSec,
		}
		if prev != "" {
			step.DependsOn = []string{prev}
		}
		prev = step.ID
		steps = append(steps, step)
		names = append(names, string(role))
	}

	out := succeeded(fmt.Sprintf("Routed the request to: %s.", strings.Join(names, ", ")))
	out.RoutedSteps = steps
	return out
}

// runBounded executes the delegated orchestrator function under the
// configured wall-clock timeout. Timeout, cancellation, panic, and error are
// all normalized to the same failed outcome; the specific cause stays in the
// history, not the contract.
func (g *Guard) runBounded(ctx context.Context, work string, state *model.WorkflowState, fallback string) Outcome {
	if g.orchestrate == nil {
		return failed(fmt.Errorf("no delegated orchestrator configured"), fallback)
	}

	timeout := time.Duration(g.cfg.ExecutionTimeoutSec) * time.Second
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type execResult struct {
		result string
		err    error
	}
	ch := make(chan execResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- execResult{err: fmt.Errorf("delegated execution panicked: %v", r)}
			}
		}()
		result, err := g.orchestrate(runCtx, work, state)
		ch <- execResult{result: result, err: err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			g.logger.Printf("delegated_execution_failed error=%v", r.err)
			return failed(r.err, fallback)
		}
		if r.result == "" {
			r.result = fallback
		}
		return succeeded(r.result)
	case <-runCtx.Done():
		g.logger.Printf("delegated_execution_timeout timeout=%s", timeout)
		return failed(runCtx.Err(), fallback)
	}
}

// ShouldGuard is the heuristic deciding whether a request needs the full
// guard path: recursion already occurred, a low safety score, an oversized
// plan, or a run of same-role steps.
func ShouldGuard(cfg config.GuardConfig, state *model.WorkflowState, cls *model.Classification) bool {
	for _, s := range state.Steps {
		if s.Role == model.RoleOrchestrator && s.Status == model.StepCompleted {
			return true
		}
	}
	if cls != nil && cls.SafetyScore < cfg.SafetyScoreThreshold {
		return true
	}
	if len(state.Steps) > cfg.PlanLengthThreshold {
		return true
	}
	if n := len(state.Steps); n >= 3 {
		role := state.Steps[n-1].Role
		if state.Steps[n-2].Role == role && state.Steps[n-3].Role == role {
			return true
		}
	}
	return false
}
