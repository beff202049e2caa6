package graph

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDependencyGraph(t *testing.T) {
	var g DependencyGraph
	g.Add(Root, "alpha", "alpha==0.10")
	g.Add("alpha", "beta", "beta")
	g.Add("gamma", "beta", "beta>=1.0")
	g.Add("alpha", "beta", "beta")

	if diff := cmp.Diff([]string{"alpha", "gamma"}, g.RequiredBy("beta")); diff != "" {
		t.Fatalf("RequiredBy mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{Root}, g.RequiredBy("alpha")); diff != "" {
		t.Fatalf("RequiredBy mismatch (-want +got):\n%s", diff)
	}

	sorted := g.Sorted()
	if sorted[0].To != "alpha" || sorted[len(sorted)-1].From != "gamma" {
		t.Fatalf("unexpected order: %+v", sorted)
	}
}
