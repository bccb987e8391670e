package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrDiffUnavailable reports that the repository state could not be read
var ErrDiffUnavailable = errors.New("diff unavailable")

// Runner executes git commands inside a repository directory
type Runner interface {
	// Run executes git with args in dir and returns its standard output.
	// A nonzero exit status is returned as an error.
	Run(ctx context.Context, dir string, args ...string) (string, error)
}

// ShellRunner implements Runner by shelling out to the git command
type ShellRunner struct {
	logger *slog.Logger
}

// NewShellRunner creates a runner that uses the git binary on PATH
func NewShellRunner(logger *slog.Logger) *ShellRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &ShellRunner{logger: logger}
}

// Run executes a git command and returns stdout, or an error with stderr on failure
func (r *ShellRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	r.logger.Debug("running git", "dir", dir, "args", args)

	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
