package generation

import (
	"context"
	"time"
)

// SubmitRequest describes one pipeline step's job submission to the
// external generation service.
type SubmitRequest struct {
	// Prompt is the natural-language instruction for the step.
	Prompt string

	// ImageRefs are the input artifact URLs, in the order the prompt refers
	// to them.
	ImageRefs []string

	// ImageSize selects the output geometry ("auto" keeps the input's).
	ImageSize string
}

// Client is the boundary between the orchestrator and the external
// generative job service. Submissions are synchronous; results arrive
// minutes later and are observed by polling.
type Client interface {
	// Submit sends the job to the external service and returns its opaque
	// job id. Transport faults and 4xx/5xx responses surface as a
	// *SubmissionError, which the caller treats as immediately fatal for
	// the attempt.
	Submit(ctx context.Context, req SubmitRequest) (string, error)

	// AwaitResult polls the job until it reaches a terminal state or the
	// wall-clock budget elapses. The budget is enforced here, by the
	// caller's side, because the external job may never terminate. Returns
	// the result artifact reference on success, a *JobFailedError when the
	// service reports failure, or a *TimeoutError when the budget runs out.
	AwaitResult(ctx context.Context, jobID string, budget time.Duration) (string, error)
}
