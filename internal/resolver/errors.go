package resolver

import (
	"errors"
	"fmt"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

var (
	// ErrNameMismatch is returned when merging entries for different packages.
	ErrNameMismatch = errors.New("cannot merge requirements with different names")
	// ErrInconsistentLocator is returned when two equally strong entries name different locators.
	ErrInconsistentLocator = errors.New("cannot merge requirements with inconsistent locators")
	// ErrLocatorConstraint is returned when a locator survives alongside a specifier it cannot satisfy.
	ErrLocatorConstraint = errors.New("cannot combine locator with specifier")
	// ErrUnpinned is returned when a requirement has no exact version.
	ErrUnpinned = errors.New("no version pinned")
	// ErrInconsistentPin is returned when the exact version fails another specifier.
	ErrInconsistentPin = errors.New("pinned version does not satisfy specifier")
	// ErrLocatorVersion is returned when asking for the exact version of a locator requirement.
	ErrLocatorVersion = errors.New("cannot get version from a locator requirement")
)

// ConflictError is a single failure tied to a package.
type ConflictError struct {
	// Kind is one of the sentinel errors above.
	Kind error
	Name string
	Msg  string
	// RequiredBy is the package whose metadata introduced the requirement,
	// empty for top-level input.
	RequiredBy string
}

func (e *ConflictError) Error() string {
	if e.RequiredBy != "" {
		return fmt.Sprintf("%s (required by %s)", e.Msg, e.RequiredBy)
	}
	return e.Msg
}

func (e *ConflictError) Unwrap() error { return e.Kind }

func conflict(kind error, name, format string, args ...any) *ConflictError {
	return &ConflictError{Kind: kind, Name: name, Msg: fmt.Sprintf(format, args...)}
}

// ResolutionError carries every error recorded during a resolution.
type ResolutionError struct {
	Errors []error
}

func (e *ResolutionError) Error() string {
	return utilerrors.NewAggregate(e.Errors).Error()
}

func (e *ResolutionError) Unwrap() []error { return e.Errors }

// Messages returns one line per recorded error.
func (e *ResolutionError) Messages() []string {
	out := make([]string, len(e.Errors))
	for i, err := range e.Errors {
		out[i] = err.Error()
	}
	return out
}
