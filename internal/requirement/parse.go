package requirement

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/bayleafwalker/pinresolve/internal/marker"
	"github.com/bayleafwalker/pinresolve/internal/version"
)

var ErrInvalidRequirement = errors.New("invalid requirement")

var (
	nameRE      = regexp.MustCompile(`^[A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?`)
	separatorRE = regexp.MustCompile(`[-_.]+`)
)

// CanonicalName normalizes case and separators so that "Foo_Bar", "foo.bar"
// and "foo-bar" compare equal.
func CanonicalName(name string) string {
	return strings.ToLower(separatorRE.ReplaceAllString(name, "-"))
}

// Parse parses one requirement:
//
//	name[extras] specifiers ; marker
//	name[extras] @ locator ; marker
func Parse(line string) (Requirement, error) {
	s := strings.TrimSpace(line)
	name := nameRE.FindString(s)
	if name == "" {
		return Requirement{}, invalidf(line, "missing package name")
	}
	req := Requirement{Name: CanonicalName(name), Extras: sets.New[string]()}
	rest := trimLeft(s[len(name):])

	if strings.HasPrefix(rest, "[") {
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Requirement{}, invalidf(line, "unterminated extras")
		}
		extras, err := parseExtras(rest[1:end])
		if err != nil {
			return Requirement{}, invalidf(line, "%v", err)
		}
		req.Extras = extras
		rest = trimLeft(rest[end+1:])
	}

	var markerText string
	hasMarker := false
	if strings.HasPrefix(rest, "@") {
		rest = trimLeft(rest[1:])
		locator, tail := rest, ""
		if i := strings.IndexFunc(rest, unicode.IsSpace); i >= 0 {
			locator, tail = rest[:i], strings.TrimSpace(rest[i:])
		}
		if locator == "" {
			return Requirement{}, invalidf(line, "empty locator")
		}
		req.Locator = locator
		if tail != "" {
			if !strings.HasPrefix(tail, ";") {
				return Requirement{}, invalidf(line, "unexpected %q after locator", tail)
			}
			markerText, hasMarker = tail[1:], true
		}
	} else {
		specText := rest
		if i := strings.IndexByte(rest, ';'); i >= 0 {
			specText, markerText, hasMarker = rest[:i], rest[i+1:], true
		}
		specText = strings.TrimSpace(specText)
		if strings.HasPrefix(specText, "(") {
			if !strings.HasSuffix(specText, ")") {
				return Requirement{}, invalidf(line, "unbalanced parentheses")
			}
			specText = specText[1 : len(specText)-1]
		}
		specs, err := version.ParseSpecifierSet(specText)
		if err != nil {
			return Requirement{}, invalidf(line, "%v", err)
		}
		req.Specifiers = specs
	}

	if hasMarker {
		m, err := marker.Parse(markerText)
		if err != nil {
			return Requirement{}, invalidf(line, "%v", err)
		}
		req.Marker = m
	}
	return req, nil
}

func MustParse(line string) Requirement {
	req, err := Parse(line)
	if err != nil {
		panic(err)
	}
	return req
}

// ParseItem parses line into an Entry with the given flags. Lines that are not
// requirements become a Passthrough; unless the line looks like an option a
// warning is logged.
func ParseItem(ctx context.Context, line string, constraint, weak bool) Item {
	req, err := Parse(line)
	if err != nil {
		if !strings.HasPrefix(line, "-") {
			log.FromContext(ctx).Info("requirement could not be parsed and is not an option; passing it through",
				"line", line, "reason", err.Error())
		}
		return Passthrough(line)
	}
	return Entry{Requirement: req, Constraint: constraint, Weak: weak}
}

func parseExtras(raw string) (sets.Set[string], error) {
	extras := sets.New[string]()
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if nameRE.FindString(part) != part {
			return nil, fmt.Errorf("invalid extra %q", part)
		}
		extras.Insert(CanonicalName(part))
	}
	return extras, nil
}

func trimLeft(s string) string {
	return strings.TrimLeftFunc(s, unicode.IsSpace)
}

func invalidf(line, format string, args ...any) error {
	return fmt.Errorf("%w %q: %s", ErrInvalidRequirement, line, fmt.Sprintf(format, args...))
}
