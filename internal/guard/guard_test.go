package guard

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Dom110/KI-AutoAgent-sub003/internal/collab"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/config"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/model"
)

type stubClassifier struct {
	cls *model.Classification
	err error
}

func (s stubClassifier) Classify(context.Context, string, *model.WorkflowState) (*model.Classification, error) {
	return s.cls, s.err
}

var _ collab.Classifier = stubClassifier{}

func safeCls(action model.SuggestedAction) *model.Classification {
	return &model.Classification{
		SafetyScore:   0.9,
		SafeToExecute: true,
		Action:        action,
		Response:      "all good",
	}
}

func guardCfg() config.GuardConfig {
	return config.Default().Guard
}

func newTestGuard(cls *model.Classification, fn OrchestrateFunc) *Guard {
	return New(guardCfg(), stubClassifier{cls: cls}, fn, nil, nil)
}

func TestExecute_DirectResponse(t *testing.T) {
	g := newTestGuard(safeCls(model.ActionDirectResponse), nil)

	out := g.Execute(context.Background(), "hello there", &model.WorkflowState{})
	require.True(t, out.Succeeded())
	assert.Equal(t, "all good", out.Result)
	assert.Equal(t, 0, g.History().Depth(), "stack must unwind after execution")
}

func TestExecute_DepthLimitBlocksRegardlessOfClassification(t *testing.T) {
	g := newTestGuard(safeCls(model.ActionDirectResponse), nil)
	for i := 0; i < guardCfg().MaxDepth; i++ {
		g.History().Push(fmt.Sprintf("fp%d", i))
	}

	out := g.Execute(context.Background(), "more work", &model.WorkflowState{})
	require.True(t, out.Blocked())
	assert.Equal(t, BlockDepthExceeded, out.BlockReason)
	assert.NotEmpty(t, out.Result)
}

func TestExecute_AdjacentRepeatIsLoopBlocked(t *testing.T) {
	g := newTestGuard(safeCls(model.ActionDirectResponse), nil)
	state := &model.WorkflowState{}

	first := g.Execute(context.Background(), "same request", state)
	second := g.Execute(context.Background(), "Same   Request", state)

	assert.True(t, first.Succeeded())
	require.True(t, second.Blocked())
	assert.Equal(t, BlockLoopDetected, second.BlockReason)
}

func TestExecute_DuplicateBlocked(t *testing.T) {
	g := newTestGuard(safeCls(model.ActionDirectResponse), nil)
	state := &model.WorkflowState{}

	// interleave so no window ends in a repeating cycle before the
	// duplicate budget is exhausted
	assert.True(t, g.Execute(context.Background(), "task alpha", state).Succeeded())
	assert.True(t, g.Execute(context.Background(), "task beta", state).Succeeded())
	assert.True(t, g.Execute(context.Background(), "Task  Alpha", state).Succeeded())
	assert.True(t, g.Execute(context.Background(), "task gamma", state).Succeeded())

	third := g.Execute(context.Background(), "task alpha", state)
	require.True(t, third.Blocked())
	assert.Equal(t, BlockDuplicateExceeded, third.BlockReason)
	assert.NotEmpty(t, third.Result)
}

func TestExecute_LoopBlocked(t *testing.T) {
	g := newTestGuard(safeCls(model.ActionDirectResponse), nil)
	fpA, fpB := Fingerprint("request a"), Fingerprint("request b")
	// seed an a,b,a history; the next "b" completes an a,b,a,b cycle
	g.History().Record(ExecutionAttempt{Fingerprint: fpA})
	g.History().Record(ExecutionAttempt{Fingerprint: fpB})
	g.History().Record(ExecutionAttempt{Fingerprint: fpA})

	out := g.Execute(context.Background(), "request b", &model.WorkflowState{})
	require.True(t, out.Blocked())
	assert.Equal(t, BlockLoopDetected, out.BlockReason)
}

func TestExecute_ClassifiedUnsafe(t *testing.T) {
	cls := &model.Classification{
		SafetyScore:   0.2,
		SafeToExecute: false,
		Action:        model.ActionSafeExecution,
		Response:      "cannot run this safely",
	}
	g := newTestGuard(cls, nil)

	out := g.Execute(context.Background(), "rm everything", &model.WorkflowState{})
	require.True(t, out.Blocked())
	assert.Equal(t, BlockClassifiedUnsafe, out.BlockReason)
	assert.Equal(t, "cannot run this safely", out.Result)
}

func TestExecute_ClassifierErrorIsFailedNotBlocked(t *testing.T) {
	g := New(guardCfg(), stubClassifier{err: errors.New("backend down")}, nil, nil, nil)

	out := g.Execute(context.Background(), "anything", &model.WorkflowState{})
	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.Error(t, out.Err)
	assert.NotEmpty(t, out.Result, "failed outcomes still carry a safe message")
}

func TestExecute_RouteAgentBuildsChainedSteps(t *testing.T) {
	cls := safeCls(model.ActionRouteAgent)
	cls.SuggestedRoles = []model.Role{model.RoleArchitect, model.RoleCodesmith, model.RoleReviewer}
	g := newTestGuard(cls, nil)

	out := g.Execute(context.Background(), "build a parser", &model.WorkflowState{})
	require.True(t, out.Succeeded())
	require.Len(t, out.RoutedSteps, 3)

	for i, step := range out.RoutedSteps {
		assert.Equal(t, model.StepPending, step.Status)
		assert.Greater(t, step.MaxRetries, 0)
		if i == 0 {
			assert.Empty(t, step.DependsOn)
		} else {
			assert.Equal(t, []string{out.RoutedSteps[i-1].ID}, step.DependsOn)
		}
	}
	assert.Equal(t, model.RoleArchitect, out.RoutedSteps[0].Role)
}

func TestExecute_SafeExecutionSuccess(t *testing.T) {
	fn := func(ctx context.Context, work string, state *model.WorkflowState) (string, error) {
		return "done: " + work, nil
	}
	g := newTestGuard(safeCls(model.ActionSafeExecution), fn)

	out := g.Execute(context.Background(), "compile things", &model.WorkflowState{})
	require.True(t, out.Succeeded())
	assert.Equal(t, "done: compile things", out.Result)
}

func TestExecute_SafeExecutionErrorNormalized(t *testing.T) {
	fn := func(context.Context, string, *model.WorkflowState) (string, error) {
		return "", errors.New("worker exploded")
	}
	g := newTestGuard(safeCls(model.ActionSafeExecution), fn)

	out := g.Execute(context.Background(), "risky", &model.WorkflowState{})
	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.NotEmpty(t, out.Result)
	assert.Equal(t, 0, g.History().Depth(), "stack must unwind after failure")
}

func TestExecute_SafeExecutionPanicNormalized(t *testing.T) {
	fn := func(context.Context, string, *model.WorkflowState) (string, error) {
		panic("boom")
	}
	g := newTestGuard(safeCls(model.ActionSafeExecution), fn)

	out := g.Execute(context.Background(), "explodes", &model.WorkflowState{})
	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.NotEmpty(t, out.Result)
	assert.Equal(t, 0, g.History().Depth())
}

func TestExecute_SafeExecutionTimeout(t *testing.T) {
	cfg := guardCfg()
	cfg.ExecutionTimeoutSec = 1
	fn := func(ctx context.Context, _ string, _ *model.WorkflowState) (string, error) {
		select {
		case <-time.After(5 * time.Second):
			return "too late", nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	g := New(cfg, stubClassifier{cls: safeCls(model.ActionSafeExecution)}, fn, nil, nil)

	out := g.Execute(context.Background(), "slow work", &model.WorkflowState{})
	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.NotEmpty(t, out.Result)
	assert.Equal(t, 0, g.History().Depth())
}

func TestExecute_CancellationUnwindsStack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fn := func(runCtx context.Context, _ string, _ *model.WorkflowState) (string, error) {
		cancel()
		<-runCtx.Done()
		return "", runCtx.Err()
	}
	g := newTestGuard(safeCls(model.ActionSafeExecution), fn)

	out := g.Execute(ctx, "cancelled work", &model.WorkflowState{})
	assert.Equal(t, OutcomeFailed, out.Kind)
	assert.Equal(t, 0, g.History().Depth())
	assert.Len(t, g.History().RecentFingerprints(10), 1, "attempt still recorded after cancellation")
}

func TestShouldGuard(t *testing.T) {
	cfg := guardCfg()
	safe := safeCls(model.ActionSafeExecution)

	t.Run("clean state", func(t *testing.T) {
		assert.False(t, ShouldGuard(cfg, &model.WorkflowState{}, safe))
	})

	t.Run("orchestrator recursion occurred", func(t *testing.T) {
		state := &model.WorkflowState{Steps: []model.PlanStep{
			{ID: "a", Role: model.RoleOrchestrator, Status: model.StepCompleted, MaxRetries: 1},
		}}
		assert.True(t, ShouldGuard(cfg, state, safe))
	})

	t.Run("low safety score", func(t *testing.T) {
		cls := &model.Classification{SafetyScore: 0.5, SafeToExecute: true}
		assert.True(t, ShouldGuard(cfg, &model.WorkflowState{}, cls))
	})

	t.Run("oversized plan", func(t *testing.T) {
		state := &model.WorkflowState{Steps: make([]model.PlanStep, 11)}
		for i := range state.Steps {
			state.Steps[i] = model.PlanStep{ID: fmt.Sprintf("s%d", i), Role: model.RoleCodesmith, Status: model.StepPending, MaxRetries: 1}
		}
		// 11 steps also trip the same-role run; plan length alone is enough
		assert.True(t, ShouldGuard(cfg, state, safe))
	})

	t.Run("same role run", func(t *testing.T) {
		state := &model.WorkflowState{Steps: []model.PlanStep{
			{ID: "a", Role: model.RoleCodesmith, Status: model.StepCompleted, MaxRetries: 1},
			{ID: "b", Role: model.RoleCodesmith, Status: model.StepCompleted, MaxRetries: 1},
			{ID: "c", Role: model.RoleCodesmith, Status: model.StepPending, MaxRetries: 1},
		}}
		assert.True(t, ShouldGuard(cfg, state, safe))
	})
}

func TestStats(t *testing.T) {
	g := newTestGuard(safeCls(model.ActionDirectResponse), nil)
	state := &model.WorkflowState{}

	g.Execute(context.Background(), "alpha", state)
	g.Execute(context.Background(), "alpha", state) // adjacent repeat: loop
	g.Execute(context.Background(), "alpha", state) // duplicate budget spent
	g.Execute(context.Background(), "beta", state)

	s := g.Stats()
	assert.Equal(t, 4, s.Attempts)
	assert.Equal(t, 2, s.Blocked)
	assert.InDelta(t, 50.0, s.BlockedPercent, 1e-9)
	assert.Equal(t, 2, s.UniqueFingerprints)
	assert.Equal(t, 1, s.BlockReasons[BlockLoopDetected])
	assert.Equal(t, 1, s.BlockReasons[BlockDuplicateExceeded])
	require.NotEmpty(t, s.TopFingerprints)
	assert.Equal(t, Fingerprint("alpha"), s.TopFingerprints[0].Fingerprint)
	assert.Equal(t, 3, s.TopFingerprints[0].Count)
}

func TestReset(t *testing.T) {
	g := newTestGuard(safeCls(model.ActionDirectResponse), nil)
	g.Execute(context.Background(), "alpha", &model.WorkflowState{})
	g.Reset()

	s := g.Stats()
	assert.Equal(t, 0, s.Attempts)
	assert.Equal(t, 0, s.UniqueFingerprints)
	assert.Equal(t, 0, g.History().Depth())
}
