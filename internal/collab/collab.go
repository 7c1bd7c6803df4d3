// Package collab declares the external collaborator contracts the control
// plane delegates to. The control plane never produces content itself; these
// interfaces are implemented by the transport layer outside this module.
package collab

import (
	"context"

	"github.com/Dom110/KI-AutoAgent-sub003/internal/model"
)

// WorkerRequest carries a task to a named role/mode worker.
type WorkerRequest struct {
	Role    model.Role
	Mode    string
	Task    string
	Context map[string]interface{}
}

// WorkerResult is a worker's structured answer.
type WorkerResult struct {
	Success       bool
	Content       string
	Design        string
	Files         []string
	NeedsResearch bool
	ResearchQuery string
}

// Worker produces content for a role/mode. The control plane never
// auto-retries beyond its own duplicate/depth/loop rules.
type Worker interface {
	Invoke(ctx context.Context, req WorkerRequest) (*WorkerResult, error)
}

// Classifier judges a raw request against a governed-state snapshot.
type Classifier interface {
	Classify(ctx context.Context, request string, state *model.WorkflowState) (*model.Classification, error)
}

// ApprovalRequest asks a human to decide something.
type ApprovalRequest struct {
	Requester  string
	Decision   string
	Context    map[string]interface{}
	TimeoutSec int
}

// ApprovalResult is the human's (or auto-approver's) answer.
type ApprovalResult struct {
	Approved     bool
	Feedback     string
	AutoApproved bool
}

// Approver is the human-in-the-loop collaborator. Its absence must surface
// as an explicit error, never a silent approval or denial.
type Approver interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) (*ApprovalResult, error)
}
