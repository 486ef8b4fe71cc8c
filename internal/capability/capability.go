// Package capability defines the contract every interchangeable strategy
// implements. A strategy family instantiates Executor with its own payload
// and result types; the dispatcher only ever calls Execute.
package capability

import "context"

// Executor performs one operation on a payload and returns its result.
type Executor[P, R any] interface {
	// Execute runs the strategy. Side effects are documented per strategy.
	Execute(ctx context.Context, payload P) (R, error)
}

// ExecutorFunc adapts an ordinary function to the Executor interface.
type ExecutorFunc[P, R any] func(ctx context.Context, payload P) (R, error)

// Execute calls f(ctx, payload).
func (f ExecutorFunc[P, R]) Execute(ctx context.Context, payload P) (R, error) {
	return f(ctx, payload)
}

// Describer is optionally implemented by strategies that can describe
// themselves for listings. The dispatcher never requires it.
type Describer interface {
	Describe() string
}
