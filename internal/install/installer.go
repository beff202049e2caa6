package install

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"sigs.k8s.io/controller-runtime/pkg/log"
)

// Installer runs pip once per batch with dependency resolution disabled, then
// runs pip check to confirm nothing is missing.
type Installer struct {
	// Pip is the command used to invoke pip, e.g. "pip" or "python -m pip".
	Pip     string
	Retries int
	Timeout time.Duration
	// ExtraArgs are appended to every install command.
	ExtraArgs []string
	// DryRun prints each command and requirements file instead of running it.
	DryRun bool
	Stdout io.Writer
	Stderr io.Writer
	// TempDir holds the requirements files; empty means os.TempDir.
	TempDir string
}

func (i *Installer) Install(ctx context.Context, batches []Batch) error {
	logger := log.FromContext(ctx).WithName("install")
	for _, b := range batches {
		logger.V(1).Info("installing batch", "epoch", b.Epoch, "lines", len(b.Lines))
		if err := i.installBatch(ctx, b); err != nil {
			return fmt.Errorf("install epoch %d: %w", b.Epoch, err)
		}
	}
	return i.run(ctx, []string{"check"}, "")
}

func (i *Installer) installBatch(ctx context.Context, b Batch) error {
	f, err := os.CreateTemp(i.TempDir, "pinresolve-*.txt")
	if err != nil {
		return err
	}
	defer os.Remove(f.Name())

	content := strings.Join(b.Lines, "\n") + "\n"
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	args := []string{
		"install",
		"--retries", strconv.Itoa(i.Retries),
		"--timeout", strconv.Itoa(int(i.Timeout / time.Second)),
		"--no-deps",
	}
	args = append(args, i.ExtraArgs...)
	args = append(args, "-r", f.Name())
	return i.run(ctx, args, content)
}

func (i *Installer) run(ctx context.Context, args []string, content string) error {
	command := strings.Fields(i.Pip)
	if len(command) == 0 {
		command = []string{"pip"}
	}
	command = append(command, args...)

	if i.DryRun {
		fmt.Fprintln(i.stdout(), strings.Join(command, " "))
		if content != "" {
			fmt.Fprintf(i.stdout(), "Contents of %s:\n", args[len(args)-1])
			io.WriteString(i.stdout(), content)
		}
		return nil
	}

	log.FromContext(ctx).V(1).Info("running pip", "args", command)
	cmd := exec.CommandContext(ctx, command[0], command[1:]...)
	cmd.Stdout = i.stdout()
	cmd.Stderr = i.stderr()
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w", strings.Join(command[:2], " "), err)
	}
	return nil
}

func (i *Installer) stdout() io.Writer {
	if i.Stdout == nil {
		return os.Stdout
	}
	return i.Stdout
}

func (i *Installer) stderr() io.Writer {
	if i.Stderr == nil {
		return os.Stderr
	}
	return i.Stderr
}
