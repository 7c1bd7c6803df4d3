// Package pattern detects runaway behaviour in workflow history: rule-based
// routing patterns and statistical anomalies, folded into a risk score.
package pattern

import (
	"fmt"

	"github.com/Dom110/KI-AutoAgent-sub003/internal/events"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/model"
)

const (
	patternRiskWeight = 0.30
	anomalyRiskWeight = 0.10

	spikeWindow        = 20
	spikeMinMessages   = 100
	spikeFactor        = 2.0
	failureRateLimit   = 0.4
	failureMinSteps    = 5
	escalationRiskBar  = 0.5
	collaborationLimit = 10
)

// FindingKind names a detected pattern or anomaly.
type FindingKind string

const (
	FindingRoutingLoop        FindingKind = "routing_loop"
	FindingCollabSpiral       FindingKind = "collaboration_spiral"
	FindingMessageGrowthSpike FindingKind = "message_growth_spike"
	FindingHighFailureRate    FindingKind = "high_failure_rate"
)

// Finding is one detected pattern or anomaly with its evidence.
type Finding struct {
	Kind   FindingKind
	Detail string
}

// Report is the engine's full answer for one snapshot.
type Report struct {
	Patterns        []Finding
	Anomalies       []Finding
	RiskScore       float64
	Recommendations []string
}

// Engine analyzes governed state. Stateless between calls.
type Engine struct {
	bus *events.Bus
}

// NewEngine creates an engine. The bus may be nil.
func NewEngine(bus *events.Bus) *Engine {
	return &Engine{bus: bus}
}

// Analyze evaluates every rule and statistic against the snapshot.
func (e *Engine) Analyze(state *model.WorkflowState) Report {
	var r Report

	if f, ok := detectRoutingLoop(state); ok {
		r.Patterns = append(r.Patterns, f)
	}
	if f, ok := detectCollabSpiral(state); ok {
		r.Patterns = append(r.Patterns, f)
	}
	if f, ok := detectMessageGrowthSpike(state); ok {
		r.Anomalies = append(r.Anomalies, f)
	}
	if f, ok := detectHighFailureRate(state); ok {
		r.Anomalies = append(r.Anomalies, f)
	}

	risk := float64(len(r.Patterns))*patternRiskWeight + float64(len(r.Anomalies))*anomalyRiskWeight
	if risk > 1 {
		risk = 1
	}
	if risk < 0 {
		risk = 0
	}
	r.RiskScore = risk

	if risk > escalationRiskBar {
		r.Recommendations = append(r.Recommendations, "halt the workflow for review: risk score is elevated")
	}
	if state.CollaborationCount() > collaborationLimit {
		r.Recommendations = append(r.Recommendations, "consider escalation: collaboration budget exceeded")
	}

	for _, f := range append(append([]Finding(nil), r.Patterns...), r.Anomalies...) {
		e.bus.Publish(events.EventPatternDetected, map[string]interface{}{
			"session_id": state.SessionID,
			"kind":       string(f.Kind),
			"detail":     f.Detail,
		})
	}
	return r
}

// detectRoutingLoop fires when the last three handoffs target one role.
func detectRoutingLoop(state *model.WorkflowState) (Finding, bool) {
	n := len(state.Collaborations)
	if n < 3 {
		return Finding{}, false
	}
	last := state.Collaborations[n-3:]
	if last[0].To == last[1].To && last[1].To == last[2].To {
		return Finding{
			Kind:   FindingRoutingLoop,
			Detail: fmt.Sprintf("last 3 handoffs all target %q", last[0].To),
		}, true
	}
	return Finding{}, false
}

// detectCollabSpiral fires when the last four handoffs strictly alternate
// between two roles.
func detectCollabSpiral(state *model.WorkflowState) (Finding, bool) {
	n := len(state.Collaborations)
	if n < 4 {
		return Finding{}, false
	}
	last := state.Collaborations[n-4:]
	if last[0].To == last[2].To && last[1].To == last[3].To {
		return Finding{
			Kind:   FindingCollabSpiral,
			Detail: fmt.Sprintf("handoffs spiral between %q and %q", last[0].To, last[1].To),
		}, true
	}
	return Finding{}, false
}

// detectMessageGrowthSpike compares the message rate of the most recent
// window against the lifetime average rate, both measured per step.
func detectMessageGrowthSpike(state *model.WorkflowState) (Finding, bool) {
	total := len(state.Messages)
	if total <= spikeMinMessages {
		return Finding{}, false
	}

	steps := len(state.Steps)
	if steps == 0 {
		steps = 1
	}
	avgRate := float64(total) / float64(steps)

	active := 0
	for _, s := range state.Steps {
		if !model.IsStepTerminal(s.Status) && s.Status != model.StepFailed {
			active++
		}
	}
	if active == 0 {
		active = 1
	}
	recentRate := float64(spikeWindow) / float64(active)

	if recentRate > spikeFactor*avgRate {
		return Finding{
			Kind:   FindingMessageGrowthSpike,
			Detail: fmt.Sprintf("recent message rate %.1f/step exceeds 2x the lifetime average %.1f/step", recentRate, avgRate),
		}, true
	}
	return Finding{}, false
}

// detectHighFailureRate fires when more than 40% of a non-trivial plan has
// failed.
func detectHighFailureRate(state *model.WorkflowState) (Finding, bool) {
	total := len(state.Steps)
	if total <= failureMinSteps {
		return Finding{}, false
	}
	failed := 0
	for _, s := range state.Steps {
		if s.Status == model.StepFailed {
			failed++
		}
	}
	rate := float64(failed) / float64(total)
	if rate > failureRateLimit {
		return Finding{
			Kind:   FindingHighFailureRate,
			Detail: fmt.Sprintf("%d of %d steps failed (%.0f%%)", failed, total, rate*100),
		}, true
	}
	return Finding{}, false
}
