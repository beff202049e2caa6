package metadata

import (
	"context"
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/bayleafwalker/pinresolve/internal/requirement"
)

// Index is a static provider. Packages maps a canonical name to a map keyed
// by version, or by "@" followed by a locator, to dependency lines.
//
//	packages:
//	  requests:
//	    "2.31.0":
//	      - urllib3<3,>=1.21.1
//	      - PySocks!=1.5.7,>=1.5.6; extra == "socks"
type Index struct {
	Packages map[string]map[string][]string `json:"packages"`
}

// LoadIndex reads an Index from a YAML file.
func LoadIndex(path string) (*Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read metadata index: %w", err)
	}
	return ParseIndex(data)
}

func ParseIndex(data []byte) (*Index, error) {
	var raw Index
	if err := yaml.UnmarshalStrict(data, &raw); err != nil {
		return nil, fmt.Errorf("parse metadata index: %w", err)
	}
	idx := &Index{Packages: make(map[string]map[string][]string, len(raw.Packages))}
	for name, versions := range raw.Packages {
		canonical := requirement.CanonicalName(name)
		if idx.Packages[canonical] == nil {
			idx.Packages[canonical] = map[string][]string{}
		}
		for v, deps := range versions {
			idx.Packages[canonical][v] = deps
		}
	}
	return idx, nil
}

func (idx *Index) FetchDependencies(_ context.Context, q Query) ([]string, error) {
	key := q.Version
	if q.Locator != "" {
		key = "@" + q.Locator
	}
	deps, ok := idx.Packages[q.Name][key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, q.Key())
	}
	return append([]string(nil), deps...), nil
}
