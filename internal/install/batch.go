// Package install feeds a resolved plan to pip in ordered batches.
package install

import (
	"sort"

	"github.com/bayleafwalker/pinresolve/internal/resolver"
)

// DefaultEpochs lists packages that must be installed before (negative) or
// after (positive) everything else. Packages not listed are in epoch 0.
func DefaultEpochs() map[string]int {
	return map[string]int{
		// Up-to-date installers early allow wheel caching.
		"pip":        -100,
		"setuptools": -100,
		"wheel":      -100,
		// Setup dependencies of numerous other packages.
		"numpy":      -50,
		"cython":     -50,
		"cffi":       -50,
		"enum34":     -50,
		"katversion": -50,
		"pkginfo":    -51,
		// Undeclared setup dependencies.
		"mplh5canvas":  50,
		"astro-tigger": 50,
	}
}

// Batch is the input of a single pip install command.
type Batch struct {
	Epoch int
	Lines []string
}

// Batches groups the plan's packages by epoch, in ascending epoch order. Each
// package is looked up by name and then by locator. Plan options are repeated
// at the top of every batch.
func Batches(plan resolver.Plan, epochs map[string]int) []Batch {
	byEpoch := map[int][]string{}
	for _, pkg := range plan.Packages {
		epoch, ok := epochs[pkg.Name]
		if !ok && pkg.Locator != "" {
			epoch = epochs[pkg.Locator]
		}
		byEpoch[epoch] = append(byEpoch[epoch], pkg.String())
	}
	if len(byEpoch) == 0 && len(plan.Options) > 0 {
		byEpoch[0] = nil
	}

	keys := make([]int, 0, len(byEpoch))
	for k := range byEpoch {
		keys = append(keys, k)
	}
	sort.Ints(keys)

	out := make([]Batch, 0, len(keys))
	for _, k := range keys {
		lines := append(append([]string(nil), plan.Options...), byEpoch[k]...)
		out = append(out, Batch{Epoch: k, Lines: lines})
	}
	return out
}
