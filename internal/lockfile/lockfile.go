// Package lockfile reads and writes pinresolve.lock, a TOML record of the
// last successful resolution.
package lockfile

import (
	"errors"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/bayleafwalker/pinresolve/internal/requirement"
	"github.com/bayleafwalker/pinresolve/internal/resolver"
	"github.com/bayleafwalker/pinresolve/internal/version"
)

const SchemaVersion = "1"

type File struct {
	SchemaVersion string    `toml:"schema_version"`
	Options       []string  `toml:"options,omitempty"`
	Packages      []Package `toml:"package"`
}

type Package struct {
	Name    string   `toml:"name"`
	Version string   `toml:"version,omitempty"`
	Locator string   `toml:"locator,omitempty"`
	Extras  []string `toml:"extras,omitempty"`
}

// FromPlan records plan. Packages keep the plan's name order.
func FromPlan(plan resolver.Plan) *File {
	f := &File{SchemaVersion: SchemaVersion, Options: append([]string(nil), plan.Options...)}
	for _, req := range plan.Packages {
		p := Package{Name: req.Name, Locator: req.Locator}
		if req.Extras.Len() > 0 {
			p.Extras = req.ExtrasList()
		}
		if p.Locator == "" {
			if pin, err := resolver.ExactVersion(req); err == nil {
				p.Version = pin
			}
		}
		f.Packages = append(f.Packages, p)
	}
	return f
}

// Load reads path. A missing file yields nil, nil.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read lock file: %w", err)
	}
	var f File
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse lock file %s: %w", path, err)
	}
	if f.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("lock file %s: unsupported schema_version %q", path, f.SchemaVersion)
	}
	return &f, nil
}

func Save(path string, f *File) error {
	if f == nil {
		return errors.New("lock file is nil")
	}
	if f.SchemaVersion == "" {
		f.SchemaVersion = SchemaVersion
	}
	data, err := toml.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to marshal lock file: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

// Entries returns the locked versions as weak constraints, so earlier pins
// persist until an explicit pin overrides them. Names in pinned already carry
// such a pin and are skipped, as are locator packages: a weak locator would
// still propagate into a pinned requirement.
func (f *File) Entries(pinned sets.Set[string]) []requirement.Item {
	if f == nil {
		return nil
	}
	out := make([]requirement.Item, 0, len(f.Packages))
	for _, p := range f.Packages {
		name := requirement.CanonicalName(p.Name)
		if p.Version == "" || pinned.Has(name) {
			continue
		}
		req := requirement.Requirement{
			Name:       name,
			Specifiers: version.NewSpecifierSet(version.Specifier{Op: version.OpEqual, Version: p.Version}),
		}
		out = append(out, requirement.Entry{Requirement: req, Constraint: true, Weak: true})
	}
	return out
}
