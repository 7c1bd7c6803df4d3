// Package health computes composite workflow health: five category scores
// folded into an overall score and label, with a rolling report history.
package health

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"github.com/Dom110/KI-AutoAgent-sub003/internal/events"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/model"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/pattern"
	"github.com/Dom110/KI-AutoAgent-sub003/internal/rules"
)

// Label classifies an overall health score.
type Label string

const (
	LabelHealthy   Label = "HEALTHY"
	LabelAtRisk    Label = "AT_RISK"
	LabelUnhealthy Label = "UNHEALTHY"
	LabelCritical  Label = "CRITICAL"
)

var labelRank = map[Label]int{
	LabelHealthy:   0,
	LabelAtRisk:    1,
	LabelUnhealthy: 2,
	LabelCritical:  3,
}

// worstOf returns the more severe of two labels.
func worstOf(a, b Label) Label {
	if labelRank[b] > labelRank[a] {
		return b
	}
	return a
}

// Category names one scored health dimension.
type Category string

const (
	CategoryInvariants  Category = "invariants"
	CategoryPatterns    Category = "patterns"
	CategoryResources   Category = "resources"
	CategoryPerformance Category = "performance"
	CategoryStructure   Category = "structure"
)

const (
	historyLimit = 100
	cacheSize    = 128
	cacheTTL     = 30 * time.Second

	timeoutHealthyAvg = 300.0
	retryBudget       = 3.0
	lowScoreBar       = 0.7
	riskAtRiskBar     = 0.5
)

// Metrics carries the raw numbers behind a report's scores.
type Metrics struct {
	MessageCount        int     `yaml:"message_count"`
	StepCount           int     `yaml:"step_count"`
	CompletionRate      float64 `yaml:"completion_rate"`
	FailureRate         float64 `yaml:"failure_rate"`
	RiskScore           float64 `yaml:"risk_score"`
	InvariantViolations int     `yaml:"invariant_violations"`
}

// Report is one health check result.
type Report struct {
	ID              string               `yaml:"id"`
	SessionID       string               `yaml:"session_id"`
	Timestamp       time.Time            `yaml:"timestamp"`
	Categories      map[Category]float64 `yaml:"categories"`
	Overall         float64              `yaml:"overall"`
	Label           Label                `yaml:"label"`
	Metrics         Metrics              `yaml:"metrics"`
	Recommendations []string             `yaml:"recommendations,omitempty"`
	CacheHit        bool                 `yaml:"-"`
}

// Monitor scores workflow snapshots. Identical snapshots within the cache TTL
// reuse the previous report; concurrent checks of the same snapshot are
// collapsed into one computation.
type Monitor struct {
	checker *rules.Checker
	engine  *pattern.Engine
	limits  rules.Limits
	bus     *events.Bus
	cache   *reportCache
	flight  singleflight.Group
	logger  *log.Logger

	mu      sync.Mutex
	history []Report
}

// NewMonitor builds a monitor. The bus may be nil.
func NewMonitor(limits rules.Limits, bus *events.Bus, logWriter io.Writer) *Monitor {
	if logWriter == nil {
		logWriter = io.Discard
	}
	if limits.MaxMessages <= 0 || limits.MaxSteps <= 0 {
		limits = rules.DefaultLimits()
	}
	return &Monitor{
		checker: rules.NewChecker(limits),
		engine:  pattern.NewEngine(bus),
		limits:  limits,
		bus:     bus,
		cache:   newReportCache(cacheSize, cacheTTL),
		logger:  log.New(logWriter, "", 0),
	}
}

// Check scores the snapshot across all five categories and records the report
// in the rolling history.
func (m *Monitor) Check(state *model.WorkflowState) *Report {
	fp := fingerprint(state)

	if cached := m.cache.get(fp); cached != nil {
		cached.CacheHit = true
		return cached
	}

	result, _, _ := m.flight.Do(fp, func() (interface{}, error) {
		report := m.compute(state)
		m.cache.set(fp, report)
		m.record(report)
		return report, nil
	})

	report := *result.(*Report)
	return &report
}

func (m *Monitor) compute(state *model.WorkflowState) *Report {
	invValid, violations := m.checker.CheckAll(state)
	analysis := m.engine.Analyze(state)

	scores := map[Category]float64{
		CategoryInvariants:  scoreInvariants(invValid),
		CategoryPatterns:    1.0 - analysis.RiskScore,
		CategoryResources:   m.scoreResources(state),
		CategoryPerformance: scorePerformance(state),
		CategoryStructure:   scoreStructure(state),
	}

	overall := 0.0
	for _, s := range scores {
		overall += s
	}
	overall /= float64(len(scores))

	label := labelForScore(overall)
	if !invValid {
		label = worstOf(label, LabelUnhealthy)
	}
	if analysis.RiskScore > riskAtRiskBar {
		label = worstOf(label, LabelAtRisk)
	}

	completed, failed := 0, 0
	for _, step := range state.Steps {
		switch step.Status {
		case model.StepCompleted:
			completed++
		case model.StepFailed:
			failed++
		}
	}
	metrics := Metrics{
		MessageCount:        len(state.Messages),
		StepCount:           len(state.Steps),
		RiskScore:           analysis.RiskScore,
		InvariantViolations: len(violations),
	}
	if len(state.Steps) > 0 {
		metrics.CompletionRate = float64(completed) / float64(len(state.Steps))
		metrics.FailureRate = float64(failed) / float64(len(state.Steps))
	}

	report := &Report{
		ID:              "health_" + uuid.NewString()[:8],
		SessionID:       state.SessionID,
		Timestamp:       time.Now(),
		Categories:      scores,
		Overall:         overall,
		Label:           label,
		Metrics:         metrics,
		Recommendations: recommendations(scores),
	}

	if label != LabelHealthy {
		m.logger.Printf("health_degraded session=%s label=%s overall=%.2f", state.SessionID, label, overall)
		m.bus.Publish(events.EventHealthDegraded, map[string]interface{}{
			"session_id": state.SessionID,
			"report_id":  report.ID,
			"label":      string(label),
			"overall":    overall,
		})
	}
	return report
}

func (m *Monitor) record(report *Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = append(m.history, *report)
	if len(m.history) > historyLimit {
		m.history = m.history[len(m.history)-historyLimit:]
	}
}

// History returns a copy of the retained reports, oldest first.
func (m *Monitor) History() []Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Report, len(m.history))
	copy(out, m.history)
	return out
}

// CacheSize reports the number of cached reports, for inspection.
func (m *Monitor) CacheSize() int { return m.cache.size() }

// ResetCache drops all cached reports.
func (m *Monitor) ResetCache() { m.cache.clear() }

func scoreInvariants(valid bool) float64 {
	if valid {
		return 1.0
	}
	return 0.0
}

func (m *Monitor) scoreResources(state *model.WorkflowState) float64 {
	messageFill := minFloat(1.0, float64(len(state.Messages))/float64(m.limits.MaxMessages))
	stepFill := minFloat(1.0, float64(len(state.Steps))/float64(m.limits.MaxSteps))
	return ((1.0 - messageFill) + (1.0 - stepFill)) / 2.0
}

func scorePerformance(state *model.WorkflowState) float64 {
	if len(state.Steps) == 0 {
		return 1.0
	}
	totalTimeout, totalRetries := 0, 0
	for _, step := range state.Steps {
		totalTimeout += step.TimeoutSeconds
		totalRetries += step.MaxRetries
	}
	avgTimeout := float64(totalTimeout) / float64(len(state.Steps))
	avgRetries := float64(totalRetries) / float64(len(state.Steps))

	timeoutScore := 1.0
	if avgTimeout >= timeoutHealthyAvg {
		timeoutScore = 0.5
	}
	retryScore := 1.0 - minFloat(1.0, avgRetries/retryBudget)
	return (timeoutScore + retryScore) / 2.0
}

func scoreStructure(state *model.WorkflowState) float64 {
	if len(state.Steps) == 0 {
		return 0.0
	}
	completed, failed := 0, 0
	for _, step := range state.Steps {
		switch step.Status {
		case model.StepCompleted:
			completed++
		case model.StepFailed:
			failed++
		}
	}
	total := float64(len(state.Steps))
	completionRate := float64(completed) / total
	failureRate := float64(failed) / total
	return completionRate * (1.0 - failureRate)
}

func labelForScore(score float64) Label {
	switch {
	case score < 0.5:
		return LabelCritical
	case score < 0.7:
		return LabelUnhealthy
	case score < 0.9:
		return LabelAtRisk
	default:
		return LabelHealthy
	}
}

var categoryAdvice = map[Category]string{
	CategoryInvariants:  "resolve invariant violations before executing further steps",
	CategoryPatterns:    "investigate detected routing patterns and anomalies",
	CategoryResources:   "trim the message history or split the plan before resource limits are reached",
	CategoryPerformance: "reduce per-step timeout budgets and retry pressure",
	CategoryStructure:   "review the plan: too many steps are failing relative to completions",
}

func recommendations(scores map[Category]float64) []string {
	var out []string
	for _, cat := range []Category{CategoryInvariants, CategoryPatterns, CategoryResources, CategoryPerformance, CategoryStructure} {
		if scores[cat] < lowScoreBar {
			out = append(out, fmt.Sprintf("%s: %s", cat, categoryAdvice[cat]))
		}
	}
	return out
}

func fingerprint(state *model.WorkflowState) string {
	data, err := yaml.Marshal(state)
	if err != nil {
		data = []byte(state.SessionID)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func minFloat(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
