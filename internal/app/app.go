// Package app wires the pinresolve command together: it collects requirement
// sources, resolves them against the configured metadata providers and hands
// the result to the installer.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/bayleafwalker/pinresolve/internal/config"
	"github.com/bayleafwalker/pinresolve/internal/fetch"
	"github.com/bayleafwalker/pinresolve/internal/graph"
	"github.com/bayleafwalker/pinresolve/internal/install"
	"github.com/bayleafwalker/pinresolve/internal/lockfile"
	"github.com/bayleafwalker/pinresolve/internal/marker"
	"github.com/bayleafwalker/pinresolve/internal/metadata"
	"github.com/bayleafwalker/pinresolve/internal/metrics"
	"github.com/bayleafwalker/pinresolve/internal/reqfile"
	"github.com/bayleafwalker/pinresolve/internal/requirement"
	"github.com/bayleafwalker/pinresolve/internal/resolver"
)

// ErrConfig marks errors caused by invalid flags or configuration.
var ErrConfig = errors.New("invalid configuration")

type Options struct {
	Requirements []string
	Constraints  []string
	Defaults     []string
	// Packages are requirement lines given on the command line.
	Packages []string
	// PipArgs are passed to every pip install command.
	PipArgs []string

	ConfigPath     string
	IndexURL       string
	MetadataIndex  string
	MetadataServer string
	PythonVersion  string

	LockPath        string
	MetricsTextfile string
	DryRun          bool
	Print           bool
	Graph           bool

	Stdout io.Writer
	Stderr io.Writer
}

func Run(ctx context.Context, opts Options) error {
	logger := log.FromContext(ctx)
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.MetricsTextfile != "" {
		defer func() {
			if werr := metrics.WriteTextfile(opts.MetricsTextfile); werr != nil {
				logger.Error(werr, "failed to write metrics textfile", "path", opts.MetricsTextfile)
			}
		}()
	}

	cfg, err := loadConfig(ctx, opts)
	if err != nil {
		return err
	}

	fetcher := fetch.New(fetch.WithRetries(cfg.Retries), fetch.WithTimeout(cfg.Timeout))
	items, err := collect(ctx, reqfile.NewParser(fetcher), opts)
	if err != nil {
		return err
	}

	provider, closeProvider, err := newProvider(ctx, cfg, fetcher)
	if err != nil {
		return err
	}
	defer closeProvider()

	r := resolver.NewDefault(provider,
		resolver.WithEvaluator(marker.NewEvaluator(cfg.MarkerEnvironment())),
		resolver.WithBootstrapPackages(cfg.BootstrapPackages...),
	)
	plan, err := r.Resolve(ctx, resolver.Input{Items: items})
	if err != nil {
		return err
	}
	logger.Info("resolved requirements", "packages", len(plan.Packages), "options", len(plan.Options))

	if opts.LockPath != "" && !opts.DryRun {
		if err := lockfile.Save(opts.LockPath, lockfile.FromPlan(plan)); err != nil {
			return err
		}
	}
	if opts.Graph {
		writeGraph(opts.Stdout, plan.Graph)
	}
	if opts.Print {
		for _, line := range plan.Lines() {
			fmt.Fprintln(opts.Stdout, line)
		}
		return nil
	}

	installer := &install.Installer{
		Pip:       cfg.Pip,
		Retries:   cfg.Retries,
		Timeout:   cfg.Timeout,
		ExtraArgs: opts.PipArgs,
		DryRun:    opts.DryRun,
		Stdout:    opts.Stdout,
		Stderr:    opts.Stderr,
	}
	return installer.Install(ctx, install.Batches(plan, cfg.Epochs))
}

func loadConfig(ctx context.Context, opts Options) (config.Config, error) {
	cfg := config.Default()
	if opts.ConfigPath != "" {
		var err error
		if cfg, err = config.Load(ctx, opts.ConfigPath); err != nil {
			return config.Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
		}
	}
	if opts.IndexURL != "" {
		cfg.IndexURL = opts.IndexURL
	}
	if opts.MetadataIndex != "" {
		cfg.MetadataIndex = opts.MetadataIndex
	}
	if opts.MetadataServer != "" {
		cfg.MetadataServer = opts.MetadataServer
	}
	if opts.PythonVersion != "" {
		cfg.PythonVersion = opts.PythonVersion
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("%w: %w", ErrConfig, err)
	}
	return cfg, nil
}

// collect gathers input items in a fixed order: requirement files,
// constraint files, default-version files, packages named on the command
// line, then the lock file. Failures across files are reported together.
func collect(ctx context.Context, parser *reqfile.Parser, opts Options) ([]requirement.Item, error) {
	var items []requirement.Item
	var errs []error
	sources := []struct {
		kind  reqfile.Kind
		files []string
	}{
		{reqfile.KindRequirement, opts.Requirements},
		{reqfile.KindConstraint, opts.Constraints},
		{reqfile.KindDefault, opts.Defaults},
	}
	for _, src := range sources {
		for _, file := range src.files {
			parsed, err := parser.ParseFile(ctx, file, src.kind)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			items = append(items, parsed...)
		}
	}
	if err := utilerrors.NewAggregate(errs); err != nil {
		return nil, err
	}

	for _, pkg := range opts.Packages {
		items = append(items, requirement.ParseItem(ctx, pkg, false, false))
	}
	if opts.LockPath != "" {
		lock, err := lockfile.Load(opts.LockPath)
		if err != nil {
			return nil, err
		}
		items = append(items, lock.Entries(pinnedNames(items))...)
	}
	return items, nil
}

// pinnedNames returns the packages that some input pins exactly or ties to a
// locator. Locked versions of these are stale and must not be merged in.
func pinnedNames(items []requirement.Item) sets.Set[string] {
	names := sets.New[string]()
	for _, item := range items {
		e, ok := item.(requirement.Entry)
		if !ok {
			continue
		}
		if e.Requirement.Locator != "" || e.Requirement.Specifiers.HasExact() {
			names.Insert(e.Requirement.Name)
		}
	}
	return names
}

// newProvider chains the configured metadata sources, most local first.
func newProvider(ctx context.Context, cfg config.Config, fetcher *fetch.Client) (metadata.Provider, func(), error) {
	var chain metadata.Chain
	closers := []func(){}
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if cfg.MetadataIndex != "" {
		idx, err := metadata.LoadIndex(cfg.MetadataIndex)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		chain = append(chain, idx)
	}
	if cfg.MetadataServer != "" {
		conn, err := metadata.Dial(cfg.MetadataServer)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrConfig, err)
		}
		closers = append(closers, func() { _ = conn.Close() })
		chain = append(chain, metadata.NewGRPCClient(conn))
	}
	if cfg.IndexURL != "" {
		chain = append(chain, metadata.NewPyPI(cfg.IndexURL, fetcher))
	}
	log.FromContext(ctx).V(1).Info("metadata providers configured", "count", len(chain))
	return chain, closeAll, nil
}

func writeGraph(w io.Writer, g graph.DependencyGraph) {
	for _, e := range g.Sorted() {
		from := e.From
		if from == graph.Root {
			from = "<input>"
		}
		fmt.Fprintf(w, "%s -> %s (%s)\n", from, e.To, e.Requirement)
	}
}
