package resolver

import (
	"github.com/bayleafwalker/pinresolve/internal/graph"
	"github.com/bayleafwalker/pinresolve/internal/requirement"
)

// Input is the collected, ordered list of items from every requirement source.
type Input struct {
	Items []requirement.Item
}

// Plan is the resolved installation set.
type Plan struct {
	// Options are passthrough lines in input order.
	Options []string
	// Packages holds one requirement per package, sorted by name. Each has
	// either a locator or a single exact pin.
	Packages []requirement.Requirement
	// Graph records which package pulled in which requirement.
	Graph graph.DependencyGraph
}

// Lines renders the plan as installer input: options first, then packages.
func (p Plan) Lines() []string {
	out := make([]string, 0, len(p.Options)+len(p.Packages))
	out = append(out, p.Options...)
	for _, pkg := range p.Packages {
		out = append(out, pkg.String())
	}
	return out
}
