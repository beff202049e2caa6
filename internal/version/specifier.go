package version

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// Operator is a version comparison operator.
type Operator string

const (
	OpEqual        Operator = "=="
	OpArbitrary    Operator = "==="
	OpNotEqual     Operator = "!="
	OpLess         Operator = "<"
	OpLessEqual    Operator = "<="
	OpGreater      Operator = ">"
	OpGreaterEqual Operator = ">="
	OpCompatible   Operator = "~="
)

var ErrInvalidSpecifier = errors.New("invalid version specifier")

var specifierRE = regexp.MustCompile(`^\s*(===|==|!=|~=|<=|>=|<|>)\s*([^\s,;()]+)\s*$`)

// Specifier is a single (operator, version) clause such as ">=1.0" or "==2.8.*".
type Specifier struct {
	Op      Operator
	Version string
}

func ParseSpecifier(raw string) (Specifier, error) {
	m := specifierRE.FindStringSubmatch(raw)
	if m == nil {
		return Specifier{}, fmt.Errorf("%w: %q", ErrInvalidSpecifier, raw)
	}
	s := Specifier{Op: Operator(m[1]), Version: m[2]}
	if s.IsWildcard() {
		prefix := strings.TrimSuffix(s.Version, ".*")
		if s.Op != OpEqual && s.Op != OpNotEqual {
			return Specifier{}, fmt.Errorf("%w: %q: wildcard only allowed with == and !=", ErrInvalidSpecifier, raw)
		}
		if prefix == "" || strings.Contains(prefix, "*") {
			return Specifier{}, fmt.Errorf("%w: %q", ErrInvalidSpecifier, raw)
		}
	} else if strings.Contains(s.Version, "*") {
		return Specifier{}, fmt.Errorf("%w: %q", ErrInvalidSpecifier, raw)
	}
	if s.Op == OpCompatible && !strings.Contains(s.Version, ".") {
		return Specifier{}, fmt.Errorf("%w: %q: ~= needs at least two release segments", ErrInvalidSpecifier, raw)
	}
	return s, nil
}

func MustParseSpecifier(raw string) Specifier {
	s, err := ParseSpecifier(raw)
	if err != nil {
		panic(err)
	}
	return s
}

func (s Specifier) String() string {
	return string(s.Op) + s.Version
}

// IsWildcard reports whether the clause is a prefix match like "==2.8.*".
func (s Specifier) IsWildcard() bool {
	return strings.HasSuffix(s.Version, ".*")
}

// IsExact reports whether the clause pins a single version.
func (s Specifier) IsExact() bool {
	return (s.Op == OpEqual || s.Op == OpArbitrary) && !s.IsWildcard()
}

// Contains reports whether the version raw satisfies the clause.
func (s Specifier) Contains(raw string) (bool, error) {
	candidate := strings.TrimSpace(raw)
	switch s.Op {
	case OpArbitrary:
		return strings.EqualFold(candidate, s.Version), nil
	case OpEqual, OpNotEqual:
		eq, err := s.equals(candidate)
		if err != nil {
			return false, err
		}
		if s.Op == OpNotEqual {
			return !eq, nil
		}
		return eq, nil
	}

	v, err := ParseVersion(candidate)
	if err != nil {
		return false, err
	}
	bound, err := ParseVersion(s.Version)
	if err != nil {
		return false, err
	}
	c := Compare(v, bound)
	switch s.Op {
	case OpLess:
		return c < 0, nil
	case OpLessEqual:
		return c <= 0, nil
	case OpGreater:
		return c > 0, nil
	case OpGreaterEqual:
		return c >= 0, nil
	case OpCompatible:
		if c < 0 {
			return false, nil
		}
		parts := strings.Split(s.Version, ".")
		return prefixMatch(v, parts[:len(parts)-1])
	}
	return false, fmt.Errorf("%w: unknown operator %q", ErrInvalidSpecifier, s.Op)
}

func (s Specifier) equals(candidate string) (bool, error) {
	if s.IsWildcard() {
		v, err := ParseVersion(candidate)
		if err != nil {
			return false, err
		}
		return prefixMatch(v, strings.Split(strings.TrimSuffix(s.Version, ".*"), "."))
	}
	v, errV := ParseVersion(candidate)
	bound, errB := ParseVersion(s.Version)
	if errV != nil || errB != nil {
		return strings.EqualFold(candidate, s.Version), nil
	}
	return Compare(v, bound) == 0, nil
}

// prefixMatch compares the leading release segments of v against parts.
// Segments beyond the third must be zero since Version only carries three.
func prefixMatch(v Version, parts []string) (bool, error) {
	segs := v.segments()
	for i, p := range parts {
		n, err := strconv.ParseUint(p, 10, 64)
		if err != nil {
			return false, fmt.Errorf("%w: release segment %q", ErrInvalidSpecifier, p)
		}
		if i >= len(segs) {
			if n != 0 {
				return false, nil
			}
			continue
		}
		if segs[i] != n {
			return false, nil
		}
	}
	return true, nil
}

// SpecifierSet is the conjunction of its clauses. It is kept deduplicated and
// sorted by rendered text so equal sets compare and print identically.
type SpecifierSet []Specifier

func NewSpecifierSet(specs ...Specifier) SpecifierSet {
	if len(specs) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(specs))
	out := make(SpecifierSet, 0, len(specs))
	for _, s := range specs {
		key := s.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// ParseSpecifierSet parses a comma separated list such as ">=1.0, <2.0".
func ParseSpecifierSet(raw string) (SpecifierSet, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	specs := make([]Specifier, 0, len(parts))
	for _, p := range parts {
		s, err := ParseSpecifier(p)
		if err != nil {
			return nil, err
		}
		specs = append(specs, s)
	}
	return NewSpecifierSet(specs...), nil
}

func MustParseSpecifierSet(raw string) SpecifierSet {
	s, err := ParseSpecifierSet(raw)
	if err != nil {
		panic(err)
	}
	return s
}

// Intersect returns a new set requiring both s and other.
func (s SpecifierSet) Intersect(other SpecifierSet) SpecifierSet {
	all := make([]Specifier, 0, len(s)+len(other))
	all = append(all, s...)
	all = append(all, other...)
	return NewSpecifierSet(all...)
}

func (s SpecifierSet) Clone() SpecifierSet {
	if s == nil {
		return nil
	}
	return append(SpecifierSet(nil), s...)
}

func (s SpecifierSet) Equal(other SpecifierSet) bool {
	return s.String() == other.String()
}

func (s SpecifierSet) String() string {
	parts := make([]string, len(s))
	for i, spec := range s {
		parts[i] = spec.String()
	}
	return strings.Join(parts, ",")
}

// HasExact reports whether any clause pins an exact version.
func (s SpecifierSet) HasExact() bool {
	for _, spec := range s {
		if spec.IsExact() {
			return true
		}
	}
	return false
}

// Contains reports whether raw satisfies every clause.
func (s SpecifierSet) Contains(raw string) (bool, error) {
	for _, spec := range s {
		ok, err := spec.Contains(raw)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}
