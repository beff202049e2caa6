package version

import (
	"fmt"
	"strings"

	mm "github.com/Masterminds/semver/v3"
)

// LocatorVersion is the version a locator (URL) requirement is deemed to have.
//
// It is larger than any real release, so a locator satisfies ">=" style
// clauses and nothing that caps or pins the version.
const LocatorVersion = "999999999"

// Version is a package version.
//
// This is a thin wrapper around github.com/Masterminds/semver/v3, which coerces
// short forms such as "0.10" into "0.10.0".
type Version struct {
	v *mm.Version
}

func ParseVersion(raw string) (Version, error) {
	v, err := mm.NewVersion(strings.TrimSpace(raw))
	if err != nil {
		return Version{}, fmt.Errorf("version: parse %q: %w", raw, err)
	}
	return Version{v: v}, nil
}

func MustParseVersion(raw string) Version {
	v, err := ParseVersion(raw)
	if err != nil {
		panic(err)
	}
	return v
}

// String returns the version as originally written.
func (v Version) String() string {
	if v.v == nil {
		return ""
	}
	return v.v.Original()
}

// segments returns the release segments major, minor and patch.
func (v Version) segments() [3]uint64 {
	if v.v == nil {
		return [3]uint64{}
	}
	return [3]uint64{v.v.Major(), v.v.Minor(), v.v.Patch()}
}

// Compare returns -1, 0 or 1 as a is less than, equal to or greater than b.
func Compare(a, b Version) int {
	if a.v == nil && b.v == nil {
		return 0
	}
	if a.v == nil {
		return -1
	}
	if b.v == nil {
		return 1
	}
	return a.v.Compare(b.v)
}
