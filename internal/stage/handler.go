package stage

import (
	"context"

	"dubcast/internal/queue"
)

// Handler describes the contract the executor needs from each pipeline stage.
// Execute reads its input from the accumulated run state, writes its output
// back onto it, and returns a short summary for the step log. Errors abort
// the run; the collaborator's message survives verbatim via services.Details.
type Handler interface {
	Step() queue.Step
	Execute(ctx context.Context, run *Run) (Summary, error)
}

// Summary is the step log payload a stage reports on success.
type Summary struct {
	Message string
	Detail  string
}

// HealthChecker is implemented by stages backed by a remote collaborator.
type HealthChecker interface {
	HealthCheck(ctx context.Context) Health
}

// Health reports one collaborator's readiness.
type Health struct {
	Name   string
	Ready  bool
	Detail string
}

// Healthy builds a passing health result.
func Healthy(name string) Health {
	return Health{Name: name, Ready: true}
}

// Unhealthy builds a failing health result with detail.
func Unhealthy(name, detail string) Health {
	return Health{Name: name, Ready: false, Detail: detail}
}
