package e2e

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"testing"
	"time"
)

func skipUnlessEnabled(t *testing.T) {
	t.Helper()
	if os.Getenv("PINRESOLVE_E2E") == "" {
		t.Skip("set PINRESOLVE_E2E=1 to run tests against PyPI")
	}
	if _, err := exec.LookPath("go"); err != nil {
		t.Skip("go not found in PATH")
	}
}

func TestE2E_ResolveAgainstPyPI(t *testing.T) {
	skipUnlessEnabled(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	bin := buildBinary(t, ctx, ".")
	dir := t.TempDir()
	constraints := writeFile(t, dir, "constraints.txt", strings.Join([]string{
		"redis == 3.5.3",
		"msgpack == 1.0.1",
		"six == 1.15.0",
		"netifaces == 0.10.9",
		"numpy == 1.20.1",
		"pycuda == 2020.0  # not required, so not installed",
	}, "\n"))
	defaults := writeFile(t, dir, "defaults.txt", "numpy == 1.17.1\n")

	out := runOrFail(t, ctx, dir, nil, bin,
		"--print", "--zap-log-level=error", "--python-version", "3.8",
		"-c", constraints, "-d", defaults,
		"katsdptelstate == 0.10", "--no-binary=pycuda")
	got := nonEmptyLines(out)
	sort.Strings(got)
	want := []string{
		"--no-binary=pycuda",
		"katsdptelstate==0.10",
		"msgpack==1.0.1",
		"netifaces==0.10.9",
		"numpy==1.20.1",
		"redis==3.5.3",
		"six==1.15.0",
	}
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Fatalf("unexpected resolution:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestE2E_ResolveFailsWithoutPins(t *testing.T) {
	skipUnlessEnabled(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	bin := buildBinary(t, ctx, ".")
	dir := t.TempDir()
	constraints := writeFile(t, dir, "constraints.txt", "redis == 3.5.3\nmsgpack == 1.0.1\nsix == 1.15.0\n")

	out, err := runOut(ctx, dir, nil, bin, "--print", "--python-version", "3.8", "-c", constraints, "katsdptelstate == 0.10")
	if err == nil {
		t.Fatalf("expected failure, got output:\n%s", out)
	}
	for _, want := range []string{"no version pinned for netifaces", "no version pinned for numpy"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output:\n%s", want, out)
		}
	}
}

func TestE2E_MetadataServer(t *testing.T) {
	skipUnlessEnabled(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cli := buildBinary(t, ctx, ".")
	server := buildBinary(t, ctx, "./cmd/pinresolve-metadata-server")
	client := buildBinary(t, ctx, "./cmd/pinresolve-metadata-client")

	dir := t.TempDir()
	index := writeFile(t, dir, "deps.yaml", "packages:\n  app:\n    \"1.0\":\n      - lib>=2\n  lib:\n    \"2.1\": []\n")
	addr := fmt.Sprintf("127.0.0.1:%d", pickFreePort(t))

	srv := exec.CommandContext(ctx, server, "-listen", addr, "-metrics-bind-address", "", "-index", index)
	var srvOut bytes.Buffer
	srv.Stdout = &srvOut
	srv.Stderr = &srvOut
	if err := srv.Start(); err != nil {
		t.Fatalf("start metadata server: %v", err)
	}
	t.Cleanup(func() {
		_ = srv.Process.Kill()
		_ = srv.Wait()
	})
	waitForPort(t, addr)

	out := runOrFail(t, ctx, dir, nil, client, "-target", addr, "app==1.0")
	if strings.TrimSpace(out) != "lib>=2" {
		t.Fatalf("unexpected client output %q (server log:\n%s)", out, srvOut.String())
	}

	out = runOrFail(t, ctx, dir, nil, cli, "--print", "--zap-log-level=error", "--metadata-server", addr, "app==1.0", "lib==2.1")
	if got := nonEmptyLines(out); strings.Join(got, ",") != "app==1.0,lib==2.1" {
		t.Fatalf("unexpected resolution %q", got)
	}
}

func buildBinary(t *testing.T, ctx context.Context, pkg string) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), filepath.Base(pkg))
	if pkg == "." {
		out = filepath.Join(filepath.Dir(out), "pinresolve")
	}
	runOrFail(t, ctx, findRepoRoot(t), nil, "go", "build", "-o", out, pkg)
	return out
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func nonEmptyLines(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func waitForPort(t *testing.T, addr string) {
	t.Helper()
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, time.Second)
		if err == nil {
			conn.Close()
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", addr)
}

func pickFreePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen free port: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func findRepoRoot(t *testing.T) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	// e2e/smoke_test.go -> repo root
	return filepath.Clean(filepath.Join(filepath.Dir(file), ".."))
}

func runOrFail(t *testing.T, ctx context.Context, dir string, env []string, name string, args ...string) string {
	t.Helper()

	out, err := runOut(ctx, dir, env, name, args...)
	if err != nil {
		t.Fatalf("%s %s failed: %v\n%s", name, strings.Join(args, " "), err, out)
	}
	return out
}

func runOut(ctx context.Context, dir string, env []string, name string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if env != nil {
		cmd.Env = env
	}
	var buf bytes.Buffer
	cmd.Stdout = &buf
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.String(), err
}
