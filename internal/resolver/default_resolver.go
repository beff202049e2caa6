package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/bayleafwalker/pinresolve/internal/graph"
	"github.com/bayleafwalker/pinresolve/internal/marker"
	"github.com/bayleafwalker/pinresolve/internal/metadata"
	"github.com/bayleafwalker/pinresolve/internal/metrics"
	"github.com/bayleafwalker/pinresolve/internal/requirement"
	"github.com/bayleafwalker/pinresolve/internal/version"
)

// DefaultBootstrapPackages are always present in the target environment and
// are never resolved.
var DefaultBootstrapPackages = []string{"pip", "setuptools"}

// DefaultResolver expands the input breadth first, pinning every package it
// reaches. It never searches for versions: each package must already carry,
// or be given by a constraint, an exact pin or a locator.
type DefaultResolver struct {
	provider  metadata.Provider
	evaluator marker.Evaluator
	bootstrap sets.Set[string]
}

type Option func(*DefaultResolver)

func WithEvaluator(ev marker.Evaluator) Option {
	return func(r *DefaultResolver) { r.evaluator = ev }
}

func WithBootstrapPackages(names ...string) Option {
	return func(r *DefaultResolver) {
		r.bootstrap = sets.New[string]()
		for _, n := range names {
			r.bootstrap.Insert(requirement.CanonicalName(n))
		}
	}
}

func NewDefault(provider metadata.Provider, opts ...Option) *DefaultResolver {
	r := &DefaultResolver{
		provider:  provider,
		evaluator: marker.NewEvaluator(marker.DefaultEnvironment(marker.DefaultPythonVersion)),
		bootstrap: sets.New(DefaultBootstrapPackages...),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type pending struct {
	req requirement.Requirement
	// parent is the package whose metadata declared req, graph.Root for input.
	parent string
}

// resolution is the state of a single Resolve call.
type resolution struct {
	*DefaultResolver
	constraints map[string]requirement.Entry
	install     map[string]requirement.Requirement
	queue       []pending
	errs        []error
	plan        Plan
}

func (r *DefaultResolver) Resolve(ctx context.Context, in Input) (Plan, error) {
	start := time.Now()
	defer func() { metrics.ResolutionDuration.Observe(time.Since(start).Seconds()) }()

	plan, err := r.resolve(ctx, in)
	if err != nil {
		metrics.ResolutionTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		return Plan{}, err
	}
	metrics.ResolutionTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	metrics.ResolvedPackages.Set(float64(len(plan.Packages)))
	return plan, nil
}

func (r *DefaultResolver) resolve(ctx context.Context, in Input) (Plan, error) {
	logger := log.FromContext(ctx).WithName("resolver")
	s := &resolution{
		DefaultResolver: r,
		constraints:     map[string]requirement.Entry{},
		install:         map[string]requirement.Requirement{},
	}

	for _, item := range in.Items {
		switch v := item.(type) {
		case requirement.Passthrough:
			s.plan.Options = append(s.plan.Options, string(v))
		case requirement.Entry:
			if v.Constraint {
				if _, err := s.addConstraint(v); err != nil {
					return Plan{}, err
				}
				continue
			}
			s.queue = append(s.queue, pending{req: v.Requirement, parent: graph.Root})
			s.plan.Graph.Add(graph.Root, v.Requirement.Name, v.Requirement.String())
		default:
			return Plan{}, fmt.Errorf("unexpected input item %T", item)
		}
	}

	for len(s.queue) > 0 {
		if err := ctx.Err(); err != nil {
			return Plan{}, err
		}
		next := s.queue[0]
		s.queue = s.queue[1:]
		if err := s.process(ctx, next); err != nil {
			return Plan{}, err
		}
	}

	if len(s.errs) > 0 {
		logger.V(1).Info("resolution failed", "errors", len(s.errs))
		return Plan{}, &ResolutionError{Errors: s.errs}
	}

	names := make([]string, 0, len(s.install))
	for name := range s.install {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		s.plan.Packages = append(s.plan.Packages, s.install[name])
	}
	logger.V(1).Info("resolution complete", "packages", len(s.plan.Packages), "options", len(s.plan.Options))
	return s.plan, nil
}

func (s *resolution) addConstraint(e requirement.Entry) (requirement.Entry, error) {
	name := e.Requirement.Name
	if existing, ok := s.constraints[name]; ok {
		merged, err := Merge(existing, e, s.evaluator)
		if err != nil {
			return requirement.Entry{}, err
		}
		e = merged
	}
	s.constraints[name] = e
	return e, nil
}

// process handles one queue item. Only fatal errors are returned; anything
// else is recorded and abandons the branch.
func (s *resolution) process(ctx context.Context, p pending) error {
	logger := log.FromContext(ctx).WithName("resolver").WithValues("package", p.req.Name)
	if p.parent != graph.Root {
		logger = logger.WithValues("requiredBy", p.parent)
	}

	ok, err := s.evaluator.Applies(p.req.Marker, nil)
	if err != nil {
		s.record(p, err, "marker")
		return nil
	}
	if !ok {
		logger.V(1).Info("skipping requirement, marker does not apply", "requirement", p.req.String())
		return nil
	}
	if s.bootstrap.Has(p.req.Name) {
		return nil
	}

	entry, err := s.addConstraint(requirement.Entry{Requirement: p.req})
	if err != nil {
		return err
	}
	req := entry.Requirement
	if req.Locator == "" {
		pin, err := ExactVersion(req)
		if err != nil {
			s.record(p, err, "")
			return nil
		}
		req = req.Clone()
		req.Specifiers = version.NewSpecifierSet(version.Specifier{Op: version.OpEqual, Version: pin})
	}

	if existing, ok := s.install[req.Name]; ok {
		if existing.Extras.Equal(req.Extras) {
			return nil
		}
	} else {
		s.install[req.Name] = req
	}
	logger.V(1).Info("pinned", "requirement", req.String())

	q := metadata.QueryFor(req)
	metrics.MetadataLookupsTotal.Inc()
	lines, err := s.provider.FetchDependencies(ctx, q)
	if errors.Is(err, metadata.ErrNotFound) {
		s.record(p, err, "not_found")
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch dependencies of %s: %w", q.Key(), err)
	}

	extras := req.ExtrasList()
	for _, line := range lines {
		line = strings.TrimSpace(line)
		dep, err := requirement.Parse(line)
		if err != nil {
			s.record(pending{parent: req.Name}, err, "invalid_dependency")
			continue
		}
		applies, err := s.evaluator.Applies(dep.Marker, extras)
		if err != nil {
			s.record(pending{req: dep, parent: req.Name}, err, "marker")
			continue
		}
		if !applies {
			continue
		}
		dep.Marker = nil
		s.plan.Graph.Add(req.Name, dep.Name, line)
		s.queue = append(s.queue, pending{req: dep, parent: req.Name})
	}
	return nil
}

// record keeps a non-fatal error, attributing it to the package that
// introduced p.
func (s *resolution) record(p pending, err error, kind string) {
	var ce *ConflictError
	if !errors.As(err, &ce) {
		ce = &ConflictError{Kind: err, Name: p.req.Name, Msg: err.Error()}
	}
	if ce.RequiredBy == "" {
		ce.RequiredBy = p.parent
	}
	if kind == "" {
		kind = conflictKind(ce.Kind)
	}
	metrics.ConflictsTotal.WithLabelValues(kind).Inc()
	s.errs = append(s.errs, ce)
}

func conflictKind(err error) string {
	switch {
	case errors.Is(err, ErrUnpinned):
		return "unpinned"
	case errors.Is(err, ErrInconsistentPin):
		return "inconsistent_pin"
	case errors.Is(err, ErrLocatorVersion):
		return "locator_version"
	default:
		return "other"
	}
}
