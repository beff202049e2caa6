package resolver

import "context"

// Resolver computes a pinned installation Plan for a given Input.
type Resolver interface {
	Resolve(ctx context.Context, in Input) (Plan, error)
}
