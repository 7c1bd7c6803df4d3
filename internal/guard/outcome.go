package guard

import "github.com/Dom110/KI-AutoAgent-sub003/internal/model"

// BlockReason names why the guard refused a unit of work.
type BlockReason string

const (
	BlockDepthExceeded     BlockReason = "depth_exceeded"
	BlockDuplicateExceeded BlockReason = "duplicate_exceeded"
	BlockLoopDetected      BlockReason = "loop_detected"
	BlockClassifiedUnsafe  BlockReason = "classified_unsafe"
)

// OutcomeKind discriminates the guard result sum type.
type OutcomeKind string

const (
	OutcomeSucceeded OutcomeKind = "succeeded"
	OutcomeBlocked   OutcomeKind = "blocked"
	OutcomeFailed    OutcomeKind = "failed"
)

// Outcome is the result of a guarded execution. A block is an expected,
// non-error result and always carries a non-empty fallback text; a failure
// wraps the underlying error but still carries a safe user-facing message.
type Outcome struct {
	Kind        OutcomeKind
	Result      string
	BlockReason BlockReason
	Err         error
	RoutedSteps []model.PlanStep
}

func succeeded(result string) Outcome {
	return Outcome{Kind: OutcomeSucceeded, Result: result}
}

func blocked(reason BlockReason, fallback string) Outcome {
	return Outcome{Kind: OutcomeBlocked, Result: fallback, BlockReason: reason}
}

func failed(err error, fallback string) Outcome {
	return Outcome{Kind: OutcomeFailed, Result: fallback, Err: err}
}

// Blocked reports whether the work was refused by a safety rule.
func (o Outcome) Blocked() bool { return o.Kind == OutcomeBlocked }

// Succeeded reports whether the work ran to completion.
func (o Outcome) Succeeded() bool { return o.Kind == OutcomeSucceeded }
