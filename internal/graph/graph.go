// Package graph records the dependency edges discovered while expanding a
// requirement set, so a pinned package can be traced back to whatever pulled
// it in.
package graph

import "sort"

// Root is the From value of edges declared directly by the user.
const Root = ""

// Edge records that From declared Requirement, a requirement on package To.
type Edge struct {
	From        string
	To          string
	Requirement string
}

type DependencyGraph struct {
	Edges []Edge
}

func (g *DependencyGraph) Add(from, to, requirement string) {
	g.Edges = append(g.Edges, Edge{From: from, To: to, Requirement: requirement})
}

// RequiredBy returns the sorted, distinct packages that depend on name.
// Root is included when name was requested directly.
func (g DependencyGraph) RequiredBy(name string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, e := range g.Edges {
		if e.To != name {
			continue
		}
		if _, ok := seen[e.From]; ok {
			continue
		}
		seen[e.From] = struct{}{}
		out = append(out, e.From)
	}
	sort.Strings(out)
	return out
}

// Sorted returns the edges ordered by From, To, then requirement text.
func (g DependencyGraph) Sorted() []Edge {
	out := append([]Edge(nil), g.Edges...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.From != b.From {
			return a.From < b.From
		}
		if a.To != b.To {
			return a.To < b.To
		}
		return a.Requirement < b.Requirement
	})
	return out
}
