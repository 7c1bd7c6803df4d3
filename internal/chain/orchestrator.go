// Package chain tracks dynamic cross-component invocation: cycle detection
// over the live call chain, depth limiting, and shared cross-call context.
package chain

import (
	"context"
	"fmt"
	"time"

	"github.com/Dom110/KI-AutoAgent-sub003/internal/collab"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/config"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/model"
)

// CallChainEntry is one frame of the live invocation stack. Pushed on entry,
// popped on every exit path; strict LIFO.
type CallChainEntry struct {
	Component    string
	Caller       string
	ParamSummary string
	Timestamp    time.Time
	Depth        int
}

// Metrics is the orchestrator's observable state.
type Metrics struct {
	InvocationCounts map[string]int
	CurrentDepth     int
	ResultCount      int
	ContextKeys      int
}

// Orchestrator owns one workflow's invocation stack. Not safe for concurrent
// use; one instance per governed workflow.
type Orchestrator struct {
	maxDepth int
	timeout  time.Duration
	workers  map[string]collab.Worker
	approver collab.Approver

	stack   []CallChainEntry
	results map[string]*collab.WorkerResult
	shared  map[string]interface{}
	counts  map[string]int
}

// NewOrchestrator creates an orchestrator with the configured depth limit and
// per-invocation timeout. The approver may be nil; approval requests then
// fail explicitly.
func NewOrchestrator(cfg config.ChainConfig, approver collab.Approver) *Orchestrator {
	maxDepth := cfg.MaxDepth
	if maxDepth <= 0 {
		maxDepth = 5
	}
	timeout := time.Duration(cfg.InvocationTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Orchestrator{
		maxDepth: maxDepth,
		timeout:  timeout,
		workers:  make(map[string]collab.Worker),
		approver: approver,
		results:  make(map[string]*collab.WorkerResult),
		shared:   make(map[string]interface{}),
		counts:   make(map[string]int),
	}
}

// RegisterWorker wires the collaborator that serves a component name.
func (o *Orchestrator) RegisterWorker(component string, w collab.Worker) {
	o.workers[component] = w
}

// Invoke delegates a task to the named component after cycle and depth
// checks. The chain entry is popped on every exit including delegate failure.
func (o *Orchestrator) Invoke(ctx context.Context, component, mode, task string, caller string) (*collab.WorkerResult, error) {
	chain := make([]string, 0, len(o.stack)+1)
	for _, e := range o.stack {
		chain = append(chain, e.Component)
	}
	chain = append(chain, component)

	n := len(chain)
	if n >= 2 && chain[n-1] == chain[n-2] {
		start := n - 3
		if start < 0 {
			start = 0
		}
		return nil, &CircularInvocationError{Cycle: append([]string(nil), chain[start:]...)}
	}
	if n >= 3 {
		for i, c := range chain[:n-1] {
			if c == chain[n-1] {
				return nil, &CircularInvocationError{Cycle: append([]string(nil), chain[i:]...)}
			}
		}
	}
	if len(o.stack) >= o.maxDepth {
		return nil, &AgentInvocationError{
			Component: component,
			Reason:    fmt.Sprintf("call depth %d reached the limit of %d", len(o.stack), o.maxDepth),
		}
	}

	worker, ok := o.workers[component]
	if !ok {
		return nil, &AgentInvocationError{Component: component, Reason: "no collaborator registered"}
	}

	depth := len(o.stack)
	o.stack = append(o.stack, CallChainEntry{
		Component:    component,
		Caller:       caller,
		ParamSummary: summarize(task),
		Timestamp:    time.Now().UTC(),
		Depth:        depth,
	})
	o.counts[component]++
	defer func() {
		o.stack = o.stack[:len(o.stack)-1]
	}()

	result, err := o.runBounded(ctx, component, worker, collab.WorkerRequest{
		Role: model.Role(component),
		Mode: mode,
		Task: task,
	})
	if err != nil {
		if _, ok := err.(*AgentInvocationError); ok {
			return nil, err
		}
		return nil, fmt.Errorf("invoke %s (%s): %w", component, mode, err)
	}

	o.results[fmt.Sprintf("%s_%s_%d", component, mode, depth)] = result
	o.shared[fmt.Sprintf("last_%s_%s", component, mode)] = result
	return result, nil
}

// runBounded runs the delegated call under the invocation timeout. A hung
// collaborator or a panic inside one surfaces as AgentInvocationError instead
// of blocking or crashing the chain.
func (o *Orchestrator) runBounded(ctx context.Context, component string, worker collab.Worker, req collab.WorkerRequest) (*collab.WorkerResult, error) {
	runCtx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	type invokeResult struct {
		result *collab.WorkerResult
		err    error
	}
	ch := make(chan invokeResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- invokeResult{err: &AgentInvocationError{
					Component: component,
					Reason:    fmt.Sprintf("collaborator panicked: %v", r),
				}}
			}
		}()
		result, err := worker.Invoke(runCtx, req)
		ch <- invokeResult{result: result, err: err}
	}()

	select {
	case r := <-ch:
		return r.result, r.err
	case <-runCtx.Done():
		return nil, &AgentInvocationError{
			Component: component,
			Reason:    fmt.Sprintf("no response within %s: %v", o.timeout, runCtx.Err()),
		}
	}
}

// InvokeResearch delegates a research query.
func (o *Orchestrator) InvokeResearch(ctx context.Context, query, caller string) (*collab.WorkerResult, error) {
	return o.Invoke(ctx, string(model.RoleResearch), "research", query, caller)
}

// InvokeDesign delegates a design task to the architect.
func (o *Orchestrator) InvokeDesign(ctx context.Context, task, caller string) (*collab.WorkerResult, error) {
	return o.Invoke(ctx, string(model.RoleArchitect), "design", task, caller)
}

// InvokeIndex delegates a codebase indexing pass to the architect.
func (o *Orchestrator) InvokeIndex(ctx context.Context, scope, caller string) (*collab.WorkerResult, error) {
	return o.Invoke(ctx, string(model.RoleArchitect), "index", scope, caller)
}

// RequestHumanApproval asks the human-in-the-loop collaborator for a
// decision. Fails immediately, without consulting the stack, when no
// approver is configured: absence must never read as silent approval.
func (o *Orchestrator) RequestHumanApproval(ctx context.Context, req collab.ApprovalRequest) (*collab.ApprovalResult, error) {
	if o.approver == nil {
		return nil, &AgentInvocationError{Reason: "no human-in-the-loop collaborator configured"}
	}
	return o.approver.RequestApproval(ctx, req)
}

// SharedContext returns a cross-call context value by key.
func (o *Orchestrator) SharedContext(key string) (interface{}, bool) {
	v, ok := o.shared[key]
	return v, ok
}

// Result returns a stored invocation result by component, mode, and depth.
func (o *Orchestrator) Result(component, mode string, depth int) (*collab.WorkerResult, bool) {
	r, ok := o.results[fmt.Sprintf("%s_%s_%d", component, mode, depth)]
	return r, ok
}

// Metrics reports per-component invocation counts and bookkeeping sizes.
func (o *Orchestrator) Metrics() Metrics {
	counts := make(map[string]int, len(o.counts))
	for k, v := range o.counts {
		counts[k] = v
	}
	return Metrics{
		InvocationCounts: counts,
		CurrentDepth:     len(o.stack),
		ResultCount:      len(o.results),
		ContextKeys:      len(o.shared),
	}
}

// Reset clears the stack, stored results, shared context, and counters.
func (o *Orchestrator) Reset() {
	o.stack = nil
	o.results = make(map[string]*collab.WorkerResult)
	o.shared = make(map[string]interface{})
	o.counts = make(map[string]int)
}

func summarize(task string) string {
	const max = 80
	if len(task) <= max {
		return task
	}
	return task[:max] + "..."
}
