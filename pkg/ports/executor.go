package ports

import (
	"context"

	"github.com/aretw0/cadloop/pkg/domain"
)

// Executor runs modeling code. prior is nil for create, or the current
// geometry of the model for modify. Execution failures are reported inside
// the result, never as a Go error, so the store can treat them uniformly.
type Executor interface {
	Run(ctx context.Context, code string, prior Solid) domain.ExecutionResult
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, code string, prior Solid) domain.ExecutionResult

// Run calls f.
func (f ExecutorFunc) Run(ctx context.Context, code string, prior Solid) domain.ExecutionResult {
	return f(ctx, code, prior)
}
