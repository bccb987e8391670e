//go:build integration

package shallow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/schaermu/typesgate/internal/testutil"
)

const defaultTimeout = 3 * time.Minute

// Harness builds the typesgate binary once and runs it against checkouts
type Harness struct {
	t      *testing.T
	binary string
}

// NewHarness creates a new test harness
func NewHarness(t *testing.T) *Harness {
	t.Helper()
	return &Harness{t: t}
}

// BuildBinary compiles cmd/typesgate into a temporary directory
func (h *Harness) BuildBinary(ctx context.Context) error {
	h.t.Helper()

	projectRoot, err := testutil.FindProjectRoot()
	if err != nil {
		return fmt.Errorf("get project root: %w", err)
	}

	h.binary = filepath.Join(h.t.TempDir(), "typesgate")
	h.t.Logf("Building %s", h.binary)

	cmd := exec.CommandContext(ctx, "go", "build", "-o", h.binary, "./cmd/typesgate")
	cmd.Dir = projectRoot
	cmd.Stdout = &testWriter{t: h.t, prefix: "[build] "}
	cmd.Stderr = &testWriter{t: h.t, prefix: "[build] "}

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	return nil
}

// Run executes the binary in dir and returns stdout, stderr and the exit code
func (h *Harness) Run(ctx context.Context, dir string, args ...string) (string, string, int, error) {
	h.t.Helper()

	cmd := exec.CommandContext(ctx, h.binary, args...)
	cmd.Dir = dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = io.MultiWriter(&stderr, &testWriter{t: h.t, prefix: "[typesgate] "})

	err := cmd.Run()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), exitErr.ExitCode(), nil
	}
	if err != nil {
		return "", "", -1, fmt.Errorf("run typesgate: %w", err)
	}
	return stdout.String(), stderr.String(), 0, nil
}

// MustRun executes the binary and fails t on a non-zero exit
func (h *Harness) MustRun(ctx context.Context, t *testing.T, dir string, args ...string) string {
	t.Helper()
	stdout, stderr, code, err := h.Run(ctx, dir, args...)
	if err != nil {
		t.Fatalf("typesgate %s: %v", strings.Join(args, " "), err)
	}
	if code != 0 {
		t.Fatalf("typesgate %s exited %d: %s", strings.Join(args, " "), code, stderr)
	}
	return stdout
}

// ShallowClone clones branch of upstream with a depth of one, the way CI
// checks out pull requests
func ShallowClone(t *testing.T, upstream, branch string) string {
	t.Helper()
	clone := filepath.Join(t.TempDir(), "clone")
	testutil.Git(t, t.TempDir(), "clone", "--depth", "1", "--single-branch", "--branch", branch, "file://"+upstream, clone)
	return clone
}

// testWriter wraps test logging for command output
type testWriter struct {
	t      *testing.T
	prefix string
}

func (w *testWriter) Write(p []byte) (n int, err error) {
	lines := strings.Split(string(p), "\n")
	for _, line := range lines {
		if line != "" {
			w.t.Log(w.prefix + line)
		}
	}
	return len(p), nil
}

var _ io.Writer = (*testWriter)(nil)
