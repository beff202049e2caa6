package resolver

import (
	"github.com/bayleafwalker/pinresolve/internal/marker"
	"github.com/bayleafwalker/pinresolve/internal/requirement"
	"github.com/bayleafwalker/pinresolve/internal/version"
)

// Merge combines two entries for the same package into one that satisfies
// both. A non-weak entry leads a weak one; a weak side's specifiers are only
// kept when the leading entry has no exact pin of its own.
//
// Every error returned by Merge is fatal to a resolution.
func Merge(a, b requirement.Entry, ev marker.Evaluator) (requirement.Entry, error) {
	if a.Weak && !b.Weak {
		a, b = b, a
	}
	ra, rb := a.Requirement, b.Requirement
	if ra.Name != rb.Name {
		return requirement.Entry{}, conflict(ErrNameMismatch, ra.Name,
			"cannot merge requirements with different names: %s vs %s", ra, rb)
	}

	if ok, err := ev.Applies(ra.Marker, nil); err != nil {
		return requirement.Entry{}, err
	} else if !ok {
		return b, nil
	}
	if ok, err := ev.Applies(rb.Marker, nil); err != nil {
		return requirement.Entry{}, err
	} else if !ok {
		return a, nil
	}

	if ra.Locator != "" && rb.Locator != "" && ra.Locator != rb.Locator && a.Weak == b.Weak {
		return requirement.Entry{}, conflict(ErrInconsistentLocator, ra.Name,
			"cannot merge requirements with inconsistent locators: %s vs %s", ra, rb)
	}

	out := ra.Clone()
	out.Extras = out.Extras.Union(rb.Extras)
	if a.Weak == b.Weak || !ra.Specifiers.HasExact() {
		out.Specifiers = out.Specifiers.Intersect(rb.Specifiers)
	}
	if out.Locator == "" && rb.Locator != "" {
		out.Locator = rb.Locator
	}
	if out.Locator != "" {
		for _, spec := range out.Specifiers {
			if ok, err := spec.Contains(version.LocatorVersion); err != nil || !ok {
				return requirement.Entry{}, conflict(ErrLocatorConstraint, ra.Name,
					"cannot combine locator %q with specifier %s", out.Locator, spec)
			}
		}
		out.Specifiers = nil
	}

	return requirement.Entry{
		Requirement: out,
		Constraint:  a.Constraint && b.Constraint,
		Weak:        a.Weak && b.Weak,
	}, nil
}
