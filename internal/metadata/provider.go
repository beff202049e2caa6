// Package metadata answers the question "what does this pinned package
// depend on?" from a static index, the PyPI JSON API or a remote gRPC server.
package metadata

import (
	"context"
	"errors"

	"github.com/bayleafwalker/pinresolve/internal/requirement"
	"github.com/bayleafwalker/pinresolve/internal/version"
)

// ErrNotFound is returned when a provider knows nothing about the queried package.
var ErrNotFound = errors.New("package metadata not found")

// Query identifies one pinned package. Exactly one of Version and Locator is set.
type Query struct {
	Name    string
	Version string
	Locator string
	Extras  []string
}

// Provider returns the dependency lines (requirement text, markers included)
// declared by a package.
type Provider interface {
	FetchDependencies(ctx context.Context, q Query) ([]string, error)
}

// QueryFor builds the query for a pinned requirement.
func QueryFor(req requirement.Requirement) Query {
	q := Query{Name: req.Name, Locator: req.Locator, Extras: req.ExtrasList()}
	if q.Locator != "" {
		return q
	}
	for _, spec := range req.Specifiers {
		if spec.Op == version.OpEqual || spec.Op == version.OpArbitrary {
			q.Version = spec.Version
		}
	}
	return q
}

// Key renders the query as "name==version" or "name @ locator".
func (q Query) Key() string {
	if q.Locator != "" {
		return q.Name + " @ " + q.Locator
	}
	return q.Name + "==" + q.Version
}

// Chain asks each provider in turn and returns the first answer that is not ErrNotFound.
type Chain []Provider

func (c Chain) FetchDependencies(ctx context.Context, q Query) ([]string, error) {
	for _, p := range c {
		deps, err := p.FetchDependencies(ctx, q)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		return deps, err
	}
	return nil, ErrNotFound
}
