// Package requirement models a single dependency declaration and parses it
// from requirement text.
package requirement

import (
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/bayleafwalker/pinresolve/internal/marker"
	"github.com/bayleafwalker/pinresolve/internal/version"
)

// Requirement is one dependency declaration. It is treated as an immutable
// value: operations that change it return a copy made with Clone.
type Requirement struct {
	// Name is the canonical package name (see CanonicalName).
	Name       string
	Extras     sets.Set[string]
	Specifiers version.SpecifierSet
	// Locator is an opaque source reference such as a VCS or archive URL.
	Locator string
	Marker  *marker.Marker
}

// Clone returns a copy that shares no mutable state with r.
func (r Requirement) Clone() Requirement {
	out := r
	out.Extras = sets.New[string]()
	if r.Extras != nil {
		out.Extras = r.Extras.Clone()
	}
	out.Specifiers = r.Specifiers.Clone()
	return out
}

// ExtrasList returns the extras in sorted order.
func (r Requirement) ExtrasList() []string {
	return sets.List(r.Extras)
}

func (r Requirement) Equal(other Requirement) bool {
	return r.Name == other.Name &&
		r.Extras.Equal(other.Extras) &&
		r.Specifiers.Equal(other.Specifiers) &&
		r.Locator == other.Locator &&
		r.Marker.String() == other.Marker.String()
}

// String renders r in the requirement text grammar understood by installers.
func (r Requirement) String() string {
	var b strings.Builder
	b.WriteString(r.Name)
	if r.Extras.Len() > 0 {
		b.WriteString("[")
		b.WriteString(strings.Join(r.ExtrasList(), ","))
		b.WriteString("]")
	}
	if r.Locator != "" {
		b.WriteString(" @ ")
		b.WriteString(r.Locator)
		if r.Marker != nil {
			b.WriteString(" ; ")
			b.WriteString(r.Marker.String())
		}
		return b.String()
	}
	b.WriteString(r.Specifiers.String())
	if r.Marker != nil {
		b.WriteString("; ")
		b.WriteString(r.Marker.String())
	}
	return b.String()
}
