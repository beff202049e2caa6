package app

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/bayleafwalker/pinresolve/internal/lockfile"
	"github.com/bayleafwalker/pinresolve/internal/resolver"
)

const indexYAML = `
packages:
  katsdptelstate:
    "0.10":
      - redis>=3.3
      - six
  redis:
    "3.5.3": []
    "4.0.0": []
  six:
    "1.15.0": []
`

type fixture struct {
	dir  string
	pypi *httptest.Server
	hits int
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{dir: t.TempDir()}
	f.pypi = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.hits++
		if r.URL.Path == "/pypi/extra/1.0/json" {
			_, _ = w.Write([]byte(`{"info": {"requires_dist": ["six"]}}`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(f.pypi.Close)
	f.write(t, "deps.yaml", indexYAML)
	return f
}

func (f *fixture) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func (f *fixture) options(stdout *bytes.Buffer) Options {
	return Options{
		IndexURL:      f.pypi.URL,
		MetadataIndex: filepath.Join(f.dir, "deps.yaml"),
		Print:         true,
		Stdout:        stdout,
		Stderr:        &bytes.Buffer{},
	}
}

func outputLines(b *bytes.Buffer) []string {
	return strings.Split(strings.TrimSpace(b.String()), "\n")
}

func TestRun_Print(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer
	opts := f.options(&out)
	opts.Requirements = []string{f.write(t, "requirements.txt", "katsdptelstate==0.10  # telstate\n--no-binary redis\n")}
	opts.Constraints = []string{f.write(t, "constraints.txt", "redis==3.5.3\n")}
	opts.Defaults = []string{f.write(t, "defaults.txt", "six==1.15.0\nredis==4.0.0\n")}

	if err := Run(context.Background(), opts); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	want := []string{"--no-binary redis", "katsdptelstate==0.10", "redis==3.5.3", "six==1.15.0"}
	if diff := cmp.Diff(want, outputLines(&out)); diff != "" {
		t.Fatalf("unexpected output (-want +got):\n%s", diff)
	}
}

func TestRun_FallsBackToPyPI(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer
	opts := f.options(&out)
	opts.Packages = []string{"extra==1.0", "six==1.15.0"}

	if err := Run(context.Background(), opts); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	if diff := cmp.Diff([]string{"extra==1.0", "six==1.15.0"}, outputLines(&out)); diff != "" {
		t.Fatalf("unexpected output (-want +got):\n%s", diff)
	}
	if f.hits != 1 {
		t.Fatalf("expected a single PyPI lookup, got %d", f.hits)
	}
}

func TestRun_ResolutionError(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer
	opts := f.options(&out)
	opts.Packages = []string{"katsdptelstate==0.10"}

	err := Run(context.Background(), opts)
	var rerr *resolver.ResolutionError
	if !errors.As(err, &rerr) {
		t.Fatalf("expected ResolutionError, got %v", err)
	}
	want := []string{
		"no version pinned for redis (required by katsdptelstate)",
		"no version pinned for six (required by katsdptelstate)",
	}
	if diff := cmp.Diff(want, rerr.Messages()); diff != "" {
		t.Fatalf("unexpected errors (-want +got):\n%s", diff)
	}
}

func TestRun_ConfigErrors(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer

	opts := f.options(&out)
	opts.ConfigPath = f.write(t, "bad.hcl", "retries = -1\n")
	if err := Run(context.Background(), opts); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig, got %v", err)
	}

	opts = f.options(&out)
	opts.MetadataIndex = filepath.Join(f.dir, "missing.yaml")
	if err := Run(context.Background(), opts); !errors.Is(err, ErrConfig) {
		t.Fatalf("expected ErrConfig for a missing index, got %v", err)
	}
}

func TestRun_MissingInputFilesAreAggregated(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer
	opts := f.options(&out)
	opts.Requirements = []string{filepath.Join(f.dir, "a.txt")}
	opts.Constraints = []string{filepath.Join(f.dir, "b.txt")}

	err := Run(context.Background(), opts)
	if err == nil || !strings.Contains(err.Error(), "a.txt") || !strings.Contains(err.Error(), "b.txt") {
		t.Fatalf("expected both missing files reported, got %v", err)
	}
}

func TestRun_LockFile(t *testing.T) {
	f := newFixture(t)
	lockPath := filepath.Join(f.dir, "pinresolve.lock")

	var out bytes.Buffer
	opts := f.options(&out)
	opts.LockPath = lockPath
	opts.Packages = []string{"katsdptelstate==0.10", "redis==4.0.0", "six==1.15.0"}
	if err := Run(context.Background(), opts); err != nil {
		t.Fatalf("first Run error: %v", err)
	}

	lock, err := lockfile.Load(lockPath)
	if err != nil || lock == nil {
		t.Fatalf("expected lock file, got %v, %v", lock, err)
	}

	// The locked pins act as defaults for an otherwise unpinned request.
	out.Reset()
	opts.Packages = []string{"katsdptelstate"}
	if err := Run(context.Background(), opts); err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	want := []string{"katsdptelstate==0.10", "redis==4.0.0", "six==1.15.0"}
	if diff := cmp.Diff(want, outputLines(&out)); diff != "" {
		t.Fatalf("unexpected output (-want +got):\n%s", diff)
	}

	// An explicit pin overrides the locked one.
	out.Reset()
	opts.Packages = []string{"katsdptelstate", "redis==3.5.3"}
	if err := Run(context.Background(), opts); err != nil {
		t.Fatalf("third Run error: %v", err)
	}
	want = []string{"katsdptelstate==0.10", "redis==3.5.3", "six==1.15.0"}
	if diff := cmp.Diff(want, outputLines(&out)); diff != "" {
		t.Fatalf("unexpected output (-want +got):\n%s", diff)
	}
}

func TestRun_LockFileYieldsToUpdatedDefaults(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer
	opts := f.options(&out)
	opts.LockPath = filepath.Join(f.dir, "pinresolve.lock")
	opts.Packages = []string{"katsdptelstate==0.10", "six==1.15.0"}
	opts.Defaults = []string{f.write(t, "defaults.txt", "redis==3.5.3\n")}
	if err := Run(context.Background(), opts); err != nil {
		t.Fatalf("first Run error: %v", err)
	}

	f.write(t, "defaults.txt", "redis==4.0.0\n")
	out.Reset()
	if err := Run(context.Background(), opts); err != nil {
		t.Fatalf("second Run error: %v", err)
	}
	want := []string{"katsdptelstate==0.10", "redis==4.0.0", "six==1.15.0"}
	if diff := cmp.Diff(want, outputLines(&out)); diff != "" {
		t.Fatalf("unexpected output (-want +got):\n%s", diff)
	}

	lock, err := lockfile.Load(opts.LockPath)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	var locked []string
	for _, p := range lock.Packages {
		locked = append(locked, p.Name+"=="+p.Version)
	}
	if diff := cmp.Diff(want, locked); diff != "" {
		t.Fatalf("unexpected lock contents (-want +got):\n%s", diff)
	}
}

func TestRun_GraphAndMetrics(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer
	opts := f.options(&out)
	opts.Print = false
	opts.DryRun = true
	opts.Graph = true
	opts.MetricsTextfile = filepath.Join(f.dir, "pinresolve.prom")
	opts.Packages = []string{"katsdptelstate==0.10", "redis==3.5.3", "six==1.15.0"}

	if err := Run(context.Background(), opts); err != nil {
		t.Fatalf("Run error: %v", err)
	}
	text := out.String()
	for _, want := range []string{
		"<input> -> katsdptelstate (katsdptelstate==0.10)",
		"katsdptelstate -> redis (redis>=3.3)",
		"pip install --retries 10 --timeout 30 --no-deps -r ",
		"pip check",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in output:\n%s", want, text)
		}
	}

	data, err := os.ReadFile(opts.MetricsTextfile)
	if err != nil {
		t.Fatalf("expected metrics textfile: %v", err)
	}
	if !strings.Contains(string(data), "pinresolve_resolution_total") {
		t.Fatalf("unexpected metrics textfile:\n%s", data)
	}
}
