package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"

	"github.com/bayleafwalker/pinresolve/internal/app"
	"github.com/bayleafwalker/pinresolve/internal/resolver"
)

const (
	exitFailure = 1
	exitUsage   = 2
)

// stringList collects a repeatable flag.
type stringList []string

func (s *stringList) String() string { return strings.Join(*s, ",") }

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	// Everything after "--" is handed to pip untouched.
	var pipArgs []string
	for i, a := range args {
		if a == "--" {
			args, pipArgs = args[:i], args[i+1:]
			break
		}
	}

	fs := flag.NewFlagSet("pinresolve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: pinresolve [flags] [packages...] [-- pip-args...]\n\n")
		fs.PrintDefaults()
	}

	var opts app.Options
	var requirements, constraints, defaults stringList
	fs.Var(&requirements, "r", "Install from the given requirements file (repeatable).")
	fs.Var(&constraints, "c", "Constrain versions using the given constraints file (repeatable).")
	fs.Var(&defaults, "d", "Default versions that explicit pins may override (repeatable).")
	fs.BoolVar(&opts.DryRun, "n", false, "Shorthand for --dry-run.")
	fs.BoolVar(&opts.DryRun, "dry-run", false, "Report what would be installed without running pip.")
	fs.StringVar(&opts.ConfigPath, "config", "", "Path to an HCL config file.")
	fs.StringVar(&opts.IndexURL, "index-url", "", "Base URL of the PyPI JSON API used for metadata.")
	fs.StringVar(&opts.MetadataIndex, "metadata-index", "", "YAML file of package dependencies consulted first.")
	fs.StringVar(&opts.MetadataServer, "metadata-server", "", "Address of a pinresolve metadata gRPC server.")
	fs.StringVar(&opts.PythonVersion, "python-version", "", "Interpreter version markers are evaluated against.")
	fs.StringVar(&opts.LockPath, "lock", "", "Lock file to seed default versions from and rewrite on success.")
	fs.BoolVar(&opts.Print, "print", false, "Print the resolved requirements instead of installing them.")
	fs.BoolVar(&opts.Graph, "graph", false, "Print the discovered dependency edges.")
	fs.StringVar(&opts.MetricsTextfile, "metrics-textfile", "", "Write Prometheus metrics to this file on exit.")

	zapOpts := zap.Options{Development: true}
	zapOpts.BindFlags(fs)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return exitUsage
	}

	log.SetLogger(zap.New(zap.UseFlagOptions(&zapOpts)))
	logger := log.Log.WithName("pinresolve")

	opts.Requirements = requirements
	opts.Constraints = constraints
	opts.Defaults = defaults
	opts.Packages = fs.Args()
	opts.PipArgs = pipArgs

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	err := app.Run(log.IntoContext(ctx, logger), opts)

	var rerr *resolver.ResolutionError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &rerr):
		for _, msg := range rerr.Messages() {
			fmt.Fprintln(os.Stderr, msg)
		}
		return exitFailure
	case errors.Is(err, app.ErrConfig):
		logger.Error(err, "invalid configuration")
		return exitUsage
	default:
		logger.Error(err, "pinresolve failed")
		return exitFailure
	}
}
