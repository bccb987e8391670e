package git

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// Status is the kind of change git reported for a file
type Status int

const (
	Modified Status = iota
	Added
	Deleted
)

func (s Status) String() string {
	switch s {
	case Added:
		return "added"
	case Deleted:
		return "deleted"
	default:
		return "modified"
	}
}

// Change is one line of `git diff --name-status`
type Change struct {
	Status Status
	Raw    string // status token as printed by git, e.g. "M" or "R100"
	File   string // repository-relative, slash separated
}

// Resolver computes the changes between the working tree and a baseline branch
type Resolver struct {
	runner Runner
	remote string
}

// NewResolver creates a Resolver that fetches missing baselines from remote
func NewResolver(runner Runner, remote string) *Resolver {
	if remote == "" {
		remote = "origin"
	}
	return &Resolver{runner: runner, remote: remote}
}

// ChangedFiles returns every change between the working tree in repoDir and base.
//
// Shallow CI checkouts often lack base; it is then fetched from the remote and
// aliased to a local branch. When the working tree is identical to base (for
// example a build of the default branch itself) the diff is taken against
// base~1 instead, so the last commit is always reported.
func (r *Resolver) ChangedFiles(ctx context.Context, repoDir, base string) ([]Change, error) {
	if err := r.ensureBase(ctx, repoDir, base); err != nil {
		return nil, err
	}

	out, err := r.diff(ctx, repoDir, base)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(out) == "" {
		out, err = r.diff(ctx, repoDir, base+"~1")
		if err != nil {
			return nil, err
		}
	}

	return parseNameStatus(out)
}

// ensureBase makes base resolvable locally, fetching it when the clone is shallow
func (r *Resolver) ensureBase(ctx context.Context, repoDir, base string) error {
	if _, err := r.runner.Run(ctx, repoDir, "rev-parse", "--verify", base); err == nil {
		return nil
	}

	if _, err := r.runner.Run(ctx, repoDir, "fetch", r.remote, base); err != nil {
		return fmt.Errorf("%w: fetching %s from %s: %w", ErrDiffUnavailable, base, r.remote, err)
	}
	if _, err := r.runner.Run(ctx, repoDir, "branch", base, "FETCH_HEAD"); err != nil {
		return fmt.Errorf("%w: creating branch %s from FETCH_HEAD: %w", ErrDiffUnavailable, base, err)
	}
	return nil
}

func (r *Resolver) diff(ctx context.Context, repoDir, ref string) (string, error) {
	out, err := r.runner.Run(ctx, repoDir, "diff", ref, "--name-status")
	if err != nil {
		return "", fmt.Errorf("%w: diff against %s: %w", ErrDiffUnavailable, ref, err)
	}
	return out, nil
}

// parseNameStatus parses git diff --name-status output.
// Only the first two whitespace separated tokens of a line are used, so
// rename and copy lines (R100 old new) report their source path.
func parseNameStatus(output string) ([]Change, error) {
	var result []Change

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("%w: malformed diff line %q", ErrDiffUnavailable, line)
		}

		raw := strings.TrimSpace(fields[0])
		result = append(result, Change{
			Status: parseStatus(raw),
			Raw:    raw,
			File:   strings.TrimSpace(fields[1]),
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: parsing git output: %w", ErrDiffUnavailable, err)
	}

	return result, nil
}

func parseStatus(raw string) Status {
	switch {
	case strings.HasPrefix(raw, "A"):
		return Added
	case strings.HasPrefix(raw, "D"):
		return Deleted
	default:
		return Modified
	}
}
