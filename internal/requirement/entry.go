package requirement

import "fmt"

// Item is one parsed input line: either an Entry or a Passthrough token.
type Item interface {
	isItem()
}

// Passthrough is an input line that is not a requirement (typically an
// installer option such as "--no-binary :all:"). It is forwarded verbatim.
type Passthrough string

func (Passthrough) isItem() {}

// Entry is a Requirement together with its strength flags.
type Entry struct {
	Requirement Requirement
	// Constraint entries narrow versions but never cause installation on their own.
	Constraint bool
	// Weak entries are defaults that any non-weak entry may override.
	Weak bool
}

func (Entry) isItem() {}

func (e Entry) Equal(other Entry) bool {
	return e.Constraint == other.Constraint && e.Weak == other.Weak && e.Requirement.Equal(other.Requirement)
}

func (e Entry) String() string {
	return fmt.Sprintf("Entry(%q, constraint=%t, weak=%t)", e.Requirement.String(), e.Constraint, e.Weak)
}
