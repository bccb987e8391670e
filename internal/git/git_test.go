package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/schaermu/typesgate/internal/testutil"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedRunner answers git invocations from a table keyed by the joined args.
type scriptedRunner struct {
	responses map[string]scriptedResponse
	calls     []string
}

type scriptedResponse struct {
	out string
	err error
}

func (r *scriptedRunner) Run(_ context.Context, _ string, args ...string) (string, error) {
	key := strings.Join(args, " ")
	r.calls = append(r.calls, key)
	resp, ok := r.responses[key]
	if !ok {
		return "", fmt.Errorf("unexpected git call: %s", key)
	}
	return resp.out, resp.err
}

func TestParseNameStatus(t *testing.T) {
	tests := []struct {
		name   string
		output string
		want   []Change
	}{
		{
			name:   "basic statuses",
			output: "A\ttypes/foo/index.d.ts\nD\ttypes/bar/index.d.ts\nM\tnotNeededPackages.json\n",
			want: []Change{
				{Status: Added, Raw: "A", File: "types/foo/index.d.ts"},
				{Status: Deleted, Raw: "D", File: "types/bar/index.d.ts"},
				{Status: Modified, Raw: "M", File: "notNeededPackages.json"},
			},
		},
		{
			name:   "rename keeps first path",
			output: "R100\ttypes/old/index.d.ts\ttypes/new/index.d.ts\n",
			want: []Change{
				{Status: Modified, Raw: "R100", File: "types/old/index.d.ts"},
			},
		},
		{
			name:   "blank lines and padding",
			output: "\n  D   types/baz/v1/index.d.ts  \n\n",
			want: []Change{
				{Status: Deleted, Raw: "D", File: "types/baz/v1/index.d.ts"},
			},
		},
		{
			name:   "empty output",
			output: "",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseNameStatus(tt.output)
			if err != nil {
				t.Fatalf("parseNameStatus() error = %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseNameStatus() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseNameStatus_Malformed(t *testing.T) {
	_, err := parseNameStatus("D\n")
	if !errors.Is(err, ErrDiffUnavailable) {
		t.Fatalf("expected ErrDiffUnavailable, got %v", err)
	}
}

func TestChangedFiles_FetchesMissingBase(t *testing.T) {
	runner := &scriptedRunner{responses: map[string]scriptedResponse{
		"rev-parse --verify master": {err: errors.New("fatal: Needed a single revision")},
		"fetch origin master":       {},
		"branch master FETCH_HEAD":  {},
		"diff master --name-status": {out: "D\ttypes/foo/index.d.ts\n"},
	}}

	changes, err := NewResolver(runner, "").ChangedFiles(context.Background(), "/repo", "master")
	if err != nil {
		t.Fatalf("ChangedFiles() error = %v", err)
	}
	if len(changes) != 1 || changes[0].Status != Deleted {
		t.Fatalf("unexpected changes: %+v", changes)
	}

	wantCalls := []string{
		"rev-parse --verify master",
		"fetch origin master",
		"branch master FETCH_HEAD",
		"diff master --name-status",
	}
	if !reflect.DeepEqual(runner.calls, wantCalls) {
		t.Errorf("calls = %v, want %v", runner.calls, wantCalls)
	}
}

func TestChangedFiles_FallsBackToParent(t *testing.T) {
	runner := &scriptedRunner{responses: map[string]scriptedResponse{
		"rev-parse --verify master":   {out: "abc\n"},
		"diff master --name-status":   {out: "\n"},
		"diff master~1 --name-status": {out: "M\tREADME.md\n"},
	}}

	changes, err := NewResolver(runner, "origin").ChangedFiles(context.Background(), "/repo", "master")
	if err != nil {
		t.Fatalf("ChangedFiles() error = %v", err)
	}
	want := []Change{{Status: Modified, Raw: "M", File: "README.md"}}
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("changes = %+v, want %+v", changes, want)
	}
}

func TestChangedFiles_FailuresAreFatal(t *testing.T) {
	tests := []struct {
		name      string
		responses map[string]scriptedResponse
	}{
		{
			name: "fetch fails",
			responses: map[string]scriptedResponse{
				"rev-parse --verify master": {err: errors.New("missing")},
				"fetch origin master":       {err: errors.New("network down")},
			},
		},
		{
			name: "alias fails",
			responses: map[string]scriptedResponse{
				"rev-parse --verify master": {err: errors.New("missing")},
				"fetch origin master":       {},
				"branch master FETCH_HEAD":  {err: errors.New("exists")},
			},
		},
		{
			name: "diff fails",
			responses: map[string]scriptedResponse{
				"rev-parse --verify master": {},
				"diff master --name-status": {err: errors.New("bad revision")},
			},
		},
		{
			name: "fallback diff fails",
			responses: map[string]scriptedResponse{
				"rev-parse --verify master":   {},
				"diff master --name-status":   {},
				"diff master~1 --name-status": {err: errors.New("no parent")},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &scriptedRunner{responses: tt.responses}
			_, err := NewResolver(runner, "origin").ChangedFiles(context.Background(), "/repo", "master")
			if !errors.Is(err, ErrDiffUnavailable) {
				t.Fatalf("expected ErrDiffUnavailable, got %v", err)
			}
		})
	}
}

func TestShellRunner_Error(t *testing.T) {
	dir := t.TempDir()
	_, err := NewShellRunner(testLogger()).Run(context.Background(), dir, "rev-parse", "--verify", "nope")
	if err == nil {
		t.Fatal("expected error outside a repository")
	}
	if !strings.Contains(err.Error(), "git rev-parse --verify nope") {
		t.Errorf("error should name the command, got %v", err)
	}
}

func TestChangedFiles_RealRepository(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	testutil.InitRepo(t, dir, "master")
	testutil.WriteFiles(t, dir, map[string]string{
		"types/foo/index.d.ts": "export declare const foo: number;\n",
		"types/bar/index.d.ts": "export declare const bar: string;\n",
	})
	testutil.CommitAll(t, dir, "initial")

	testutil.Git(t, dir, "checkout", "-b", "feature")
	testutil.RemoveFiles(t, dir, "types/foo")
	testutil.WriteFiles(t, dir, map[string]string{"types/baz/index.d.ts": "export {};\n"})
	testutil.CommitAll(t, dir, "remove foo, add baz")

	resolver := NewResolver(NewShellRunner(testLogger()), "origin")
	changes, err := resolver.ChangedFiles(ctx, dir, "master")
	if err != nil {
		t.Fatalf("ChangedFiles() error = %v", err)
	}

	got := map[string]Status{}
	for _, c := range changes {
		got[c.File] = c.Status
	}
	want := map[string]Status{
		"types/foo/index.d.ts": Deleted,
		"types/baz/index.d.ts": Added,
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("changes = %v, want %v", got, want)
	}
}

func TestChangedFiles_OnBaseUsesLastCommit(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	testutil.InitRepo(t, dir, "master")
	testutil.WriteFiles(t, dir, map[string]string{"types/foo/index.d.ts": "export {};\n"})
	testutil.CommitAll(t, dir, "initial")
	testutil.WriteFiles(t, dir, map[string]string{"types/foo/index.d.ts": "export declare const x: 1;\n"})
	testutil.CommitAll(t, dir, "edit foo")

	changes, err := NewResolver(NewShellRunner(testLogger()), "origin").ChangedFiles(ctx, dir, "master")
	if err != nil {
		t.Fatalf("ChangedFiles() error = %v", err)
	}
	want := []Change{{Status: Modified, Raw: "M", File: "types/foo/index.d.ts"}}
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("changes = %+v, want %+v", changes, want)
	}
}

func TestChangedFiles_ShallowClone(t *testing.T) {
	ctx := context.Background()

	upstream := t.TempDir()
	testutil.InitRepo(t, upstream, "master")
	testutil.WriteFiles(t, upstream, map[string]string{
		"types/foo/index.d.ts": "export {};\n",
		"types/bar/index.d.ts": "export {};\n",
	})
	testutil.CommitAll(t, upstream, "initial")
	testutil.Git(t, upstream, "checkout", "-b", "pr")
	testutil.RemoveFiles(t, upstream, "types/bar")
	testutil.CommitAll(t, upstream, "remove bar")

	// Clone only the PR branch with truncated history, as CI does.
	clone := filepath.Join(t.TempDir(), "clone")
	testutil.Git(t, t.TempDir(), "clone", "--depth", "1", "--single-branch", "--branch", "pr", "file://"+upstream, clone)

	changes, err := NewResolver(NewShellRunner(testLogger()), "origin").ChangedFiles(ctx, clone, "master")
	if err != nil {
		t.Fatalf("ChangedFiles() error = %v", err)
	}
	want := []Change{{Status: Deleted, Raw: "D", File: "types/bar/index.d.ts"}}
	if !reflect.DeepEqual(changes, want) {
		t.Errorf("changes = %+v, want %+v", changes, want)
	}

	// The baseline is now available as a local branch.
	testutil.Git(t, clone, "rev-parse", "--verify", "master")
}
