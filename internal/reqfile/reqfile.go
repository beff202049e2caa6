// Package reqfile reads requirement files, following -r, -c and -d include
// directives relative to the including file.
package reqfile

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/bayleafwalker/pinresolve/internal/fetch"
	"github.com/bayleafwalker/pinresolve/internal/requirement"
)

// Kind selects how the entries of a file are flagged.
type Kind int

const (
	// KindRequirement entries are installed.
	KindRequirement Kind = iota
	// KindConstraint entries only narrow versions.
	KindConstraint
	// KindDefault entries are weak constraints: default versions that any
	// other pin overrides.
	KindDefault
)

func (k Kind) String() string {
	switch k {
	case KindConstraint:
		return "constraint"
	case KindDefault:
		return "default"
	default:
		return "requirement"
	}
}

var ErrIncludeCycle = errors.New("requirement file include cycle")

var (
	commentRE   = regexp.MustCompile(`(^|\s)+#.*$`)
	directiveRE = regexp.MustCompile(`^\s*-([rcd])\s+(.*)`)
)

var directiveKinds = map[string]Kind{
	"r": KindRequirement,
	"c": KindConstraint,
	"d": KindDefault,
}

// Parser reads local and remote requirement files.
type Parser struct {
	// Fetcher retrieves http(s) sources.
	Fetcher *fetch.Client
}

func NewParser(fetcher *fetch.Client) *Parser {
	return &Parser{Fetcher: fetcher}
}

// ParseFile returns the items of the file at origin (a path or http(s) URL),
// with included files expanded in place.
func (p *Parser) ParseFile(ctx context.Context, origin string, kind Kind) ([]requirement.Item, error) {
	if !isURL(origin) {
		origin = filepath.Clean(origin)
	}
	return p.parseFile(ctx, origin, kind, nil)
}

func (p *Parser) parseFile(ctx context.Context, origin string, kind Kind, chain []string) ([]requirement.Item, error) {
	for _, seen := range chain {
		if seen == origin {
			return nil, fmt.Errorf("%w: %s", ErrIncludeCycle, strings.Join(append(chain, origin), " -> "))
		}
	}
	chain = append(chain, origin)

	log.FromContext(ctx).V(1).Info("reading requirement file", "origin", origin, "kind", kind.String())
	data, err := p.read(ctx, origin)
	if err != nil {
		return nil, err
	}

	var items []requirement.Item
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(commentRE.ReplaceAllString(scanner.Text(), ""))
		if line == "" {
			continue
		}
		if m := directiveRE.FindStringSubmatch(line); m != nil {
			included, err := p.parseFile(ctx, join(origin, strings.TrimSpace(m[2])), directiveKinds[m[1]], chain)
			if err != nil {
				return nil, err
			}
			items = append(items, included...)
			continue
		}
		items = append(items, requirement.ParseItem(ctx, line, kind != KindRequirement, kind == KindDefault))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", origin, err)
	}
	return items, nil
}

func (p *Parser) read(ctx context.Context, origin string) ([]byte, error) {
	if isURL(origin) {
		if p.Fetcher == nil {
			return nil, fmt.Errorf("read %s: remote requirement files are disabled", origin)
		}
		return p.Fetcher.Get(ctx, origin)
	}
	data, err := os.ReadFile(origin)
	if err != nil {
		return nil, fmt.Errorf("read requirement file: %w", err)
	}
	return data, nil
}

func isURL(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// join resolves path relative to the file it was included from.
func join(origin, path string) string {
	switch {
	case isURL(path):
		return path
	case isURL(origin):
		base, err := url.Parse(origin)
		if err != nil {
			return path
		}
		ref, err := url.Parse(path)
		if err != nil {
			return path
		}
		return base.ResolveReference(ref).String()
	case filepath.IsAbs(path):
		return path
	default:
		return filepath.Join(filepath.Dir(origin), path)
	}
}
