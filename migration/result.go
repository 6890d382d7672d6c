package migration

import "time"

// AttemptOutcome classifies a single backend attempt.
type AttemptOutcome string

const (
	// AttemptSucceeded means the backend produced a result.
	AttemptSucceeded AttemptOutcome = "succeeded"
	// AttemptFailed means the backend was invoked and returned an error or
	// timed out.
	AttemptFailed AttemptOutcome = "failed"
	// AttemptSkipped means the backend's circuit breaker short-circuited and
	// the backend was never invoked.
	AttemptSkipped AttemptOutcome = "skipped"
)

// Attempt records one entry of a request's walk through the fallback chain.
type Attempt struct {
	Backend BackendType    `json:"backend"`
	Outcome AttemptOutcome `json:"outcome"`
	Latency time.Duration  `json:"latency"`
	Error   string         `json:"error,omitempty"`
}

// ExecutionResult is the caller-visible outcome of a routed workflow
// execution.
type ExecutionResult struct {
	WorkflowID   string         `json:"workflow_id"`
	BackendUsed  BackendType    `json:"backend_used"`
	Status       string         `json:"status"`
	FallbackUsed bool           `json:"fallback_used"`
	Attempts     []Attempt      `json:"attempts"`
	Output       map[string]any `json:"output,omitempty"`
}
