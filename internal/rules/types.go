package rules

import "time"

// Severity ranks findings. CRITICAL/ERROR/HIGH flip overall validity in the
// validator; MEDIUM and below are advisory.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityError    Severity = "error"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
	SeverityInfo     Severity = "info"
)

var severityRank = map[Severity]int{
	SeverityCritical: 5,
	SeverityError:    4,
	SeverityHigh:     3,
	SeverityMedium:   2,
	SeverityLow:      1,
	SeverityInfo:     0,
}

// Blocking reports whether a finding of this severity invalidates a plan.
func (s Severity) Blocking() bool {
	return severityRank[s] >= severityRank[SeverityHigh]
}

// MoreSevere reports whether s outranks other.
func (s Severity) MoreSevere(other Severity) bool {
	return severityRank[s] > severityRank[other]
}

// PatternID names an anti-pattern in the fixed catalogue.
type PatternID string

const (
	PatternSelfRouting         PatternID = "self_routing"
	PatternCircularDependency  PatternID = "circular_dependency"
	PatternUnboundedDelegation PatternID = "unbounded_delegation"
	PatternContextCollapse     PatternID = "context_collapse"
	PatternMissingErrorHandler PatternID = "missing_error_handling"
	PatternCyclicProcess       PatternID = "cyclic_process"
	PatternResourceExhaustion  PatternID = "resource_exhaustion"
)

// Detection is one anti-pattern match against a state snapshot.
type Detection struct {
	Pattern     PatternID
	Severity    Severity
	Reason      string
	Remediation string
	DetectedAt  time.Time
}

// Violation is one hard invariant breach.
type Violation struct {
	Invariant string
	FieldPath string
	Message   string
}

// Advisory is a non-blocking suggestion (role/task keyword mismatch).
type Advisory struct {
	StepID        string
	AssignedRole  string
	SuggestedRole string
	Score         int
}
