package gate

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/schaermu/typesgate/internal/config"
	"github.com/schaermu/typesgate/internal/depgraph"
	"github.com/schaermu/typesgate/internal/deprecation"
	"github.com/schaermu/typesgate/internal/git"
	"github.com/schaermu/typesgate/internal/registry"
	"github.com/schaermu/typesgate/internal/testutil"
	"github.com/schaermu/typesgate/internal/typings"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockDiff implements DiffSource for testing.
type mockDiff struct {
	entries []git.Change
	err     error
	calls   int
}

func (m *mockDiff) ChangedFiles(_ context.Context, _, _ string) ([]git.Change, error) {
	m.calls++
	return m.entries, m.err
}

// mockValidator implements Validator for testing.
type mockValidator struct {
	err    error
	called bool
}

func (m *mockValidator) Validate(_ context.Context, _ []git.Change) error {
	m.called = true
	return m.err
}

// mockClosure implements Closure for testing.
type mockClosure struct {
	result  depgraph.Result
	changed []string
	deleted []typings.PackageID
}

func (m *mockClosure) Affected(_ context.Context, changed []string, deleted []typings.PackageID) (depgraph.Result, error) {
	m.changed = changed
	m.deleted = deleted
	return m.result, nil
}

func testCatalog() *typings.Catalog {
	mk := func(path, name string, v typings.Version) typings.Package {
		return typings.Package{ID: typings.PackageID{Name: name, Version: v}, Path: path}
	}
	return typings.NewCatalog([]typings.Package{
		mk("express", "express", typings.Wildcard),
		mk("express/v4", "express", typings.Version{Major: 4}),
		mk("node", "node", typings.Wildcard),
		mk("react", "react", typings.Wildcard),
		mk("react-dom", "react-dom", typings.Wildcard),
	}, nil)
}

func newTestEngine(diff DiffSource, closure Closure, validator Validator) *Engine {
	return NewEngine(config.Default(), diff, testCatalog(), typings.NewLayoutResolver("types"), closure, validator, testLogger())
}

func TestSelect_All(t *testing.T) {
	validator := &mockValidator{}
	e := newTestEngine(&mockDiff{}, &mockClosure{}, validator)

	sel, err := e.Select(context.Background(), All())
	require.NoError(t, err)
	assert.Len(t, sel.PackageNames, testCatalog().Len())
	assert.Empty(t, sel.Dependents)
	assert.False(t, validator.called)
}

func TestSelect_Match(t *testing.T) {
	e := newTestEngine(&mockDiff{}, &mockClosure{}, &mockValidator{})

	sel, err := e.Select(context.Background(), Match(regexp.MustCompile(`^react`)))
	require.NoError(t, err)
	assert.Equal(t, []string{"react", "react-dom"}, sel.Names())
	assert.Empty(t, sel.Dependents)

	sel, err = e.Select(context.Background(), Match(regexp.MustCompile(`^express$`)))
	require.NoError(t, err)
	assert.Equal(t, []string{"express", "express/v4"}, sel.Names())
}

func TestSelect_Affected(t *testing.T) {
	diff := &mockDiff{entries: []git.Change{
		{Status: git.Modified, Raw: "M", File: "types/node/index.d.ts"},
		{Status: git.Modified, Raw: "M", File: "types/node/globals.d.ts"},
		{Status: git.Deleted, Raw: "D", File: "types/gone/index.d.ts"},
		{Status: git.Added, Raw: "A", File: "types/express/v4/extra.d.ts"},
		{Status: git.Modified, Raw: "M", File: "README.md"},
	}}
	closure := &mockClosure{result: depgraph.Result{
		PackageNames: []string{"express/v4", "node"},
		Dependents:   []string{"express", "react"},
	}}

	sel, err := newTestEngine(diff, closure, &mockValidator{}).Select(context.Background(), Affected())
	require.NoError(t, err)

	assert.Equal(t, []string{"node", "express/v4"}, closure.changed)
	assert.Equal(t, []typings.PackageID{{Name: "gone", Version: typings.Wildcard}}, closure.deleted)
	assert.Equal(t, []string{"express/v4", "node"}, sel.Names())
	assert.Equal(t, []string{"express", "react"}, sel.Dependents)
}

func TestSelect_ManifestTouchedRunsValidation(t *testing.T) {
	diff := &mockDiff{entries: []git.Change{
		{Status: git.Modified, Raw: "M", File: "notNeededPackages.json"},
		{Status: git.Deleted, Raw: "D", File: "types/gone/index.d.ts"},
	}}
	validator := &mockValidator{}

	sel, err := newTestEngine(diff, &mockClosure{}, validator).Select(context.Background(), All())
	require.NoError(t, err)
	assert.NotNil(t, sel)
	assert.True(t, validator.called)
}

func TestSelect_ValidationFailureReturnsNoSelection(t *testing.T) {
	diff := &mockDiff{entries: []git.Change{
		{Status: git.Modified, Raw: "M", File: "notNeededPackages.json"},
	}}
	validator := &mockValidator{err: deprecation.ErrConflictingDeprecationState}

	sel, err := newTestEngine(diff, &mockClosure{}, validator).Select(context.Background(), All())
	require.ErrorIs(t, err, deprecation.ErrConflictingDeprecationState)
	assert.Nil(t, sel)
}

func TestSelect_DiffFailure(t *testing.T) {
	diff := &mockDiff{err: git.ErrDiffUnavailable}
	sel, err := newTestEngine(diff, &mockClosure{}, &mockValidator{}).Select(context.Background(), All())
	require.ErrorIs(t, err, git.ErrDiffUnavailable)
	assert.Nil(t, sel)
}

func TestCheckDeprecations(t *testing.T) {
	validator := &mockValidator{}
	e := newTestEngine(&mockDiff{}, &mockClosure{}, validator)
	require.NoError(t, e.CheckDeprecations(context.Background()))
	assert.True(t, validator.called)

	failing := &mockValidator{err: errors.New("nope")}
	e = newTestEngine(&mockDiff{}, &mockClosure{}, failing)
	assert.Error(t, e.CheckDeprecations(context.Background()))
}

func TestParseMode(t *testing.T) {
	tests := []struct {
		selection, match string
		want             string
		wantErr          bool
	}{
		{selection: "", want: "all"},
		{selection: "all", want: "all"},
		{selection: "affected", want: "affected"},
		{selection: "affected", match: "^foo", want: "match:^foo"},
		{selection: "bogus", wantErr: true},
		{match: "(", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.selection+"/"+tt.match, func(t *testing.T) {
			m, err := ParseMode(tt.selection, tt.match)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, m.String())
		})
	}
}

func TestSelectionJSON(t *testing.T) {
	data, err := json.Marshal(newSelection([]string{"b", "a"}, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"packageNames": ["a", "b"], "dependents": []}`, string(data))
}

// fixedRegistry implements registry.Client with a single published version per name.
type fixedRegistry map[string]string

func (f fixedRegistry) Manifest(_ context.Context, name, versionOrTag string) (*registry.Manifest, error) {
	v, ok := f[name]
	if !ok {
		return nil, &registry.LookupError{Kind: registry.KindNotFound, Name: name}
	}
	if versionOrTag != "latest" && versionOrTag != v {
		return nil, &registry.LookupError{Kind: registry.KindNotTarget, Name: name, Version: versionOrTag}
	}
	return &registry.Manifest{Name: name, Version: v}, nil
}

// buildRepo creates a repository on master and a feature branch that removes
// foo in favour of its bundled types.
func buildRepo(t *testing.T, manifest string) string {
	t.Helper()
	dir := t.TempDir()
	testutil.InitRepo(t, dir, "master")
	testutil.WriteFiles(t, dir, map[string]string{
		"types/foo/index.d.ts":   "export {};\n",
		"types/foo/package.json": `{"version": "1.5.9999"}`,
		"types/bar/index.d.ts":   "export {};\n",
		"types/bar/package.json": `{"version": "1.0.9999", "dependencies": {"@types/foo": "*"}}`,
		"types/baz/index.d.ts":   "export {};\n",
		"types/baz/package.json": `{"version": "3.0.9999", "dependencies": {"@types/bar": "*"}}`,
		"types/other/index.d.ts": "export {};\n",
		"notNeededPackages.json": `{"packages": {}}`,
	})
	testutil.CommitAll(t, dir, "initial")

	testutil.Git(t, dir, "checkout", "-b", "feature")
	testutil.RemoveFiles(t, dir, "types/foo")
	testutil.WriteFiles(t, dir, map[string]string{"notNeededPackages.json": manifest})
	testutil.CommitAll(t, dir, "foo ships its own types")
	return dir
}

func newRepoEngine(t *testing.T, dir string, reg registry.Client) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.Repo.Path = dir

	catalog, err := typings.LoadCatalog(cfg.TypesDir(), cfg.NotNeededPath(), cfg.Registry.TypesScope)
	require.NoError(t, err)

	resolver := typings.NewLayoutResolver(cfg.Layout.TypesDir)
	logger := testLogger()
	validator := deprecation.NewValidator(catalog, resolver, reg, cfg.Registry.Concurrency, logger)
	diff := git.NewResolver(git.NewShellRunner(logger), cfg.Repo.Remote)

	return NewEngine(cfg, diff, catalog, resolver, depgraph.New(catalog.All()), validator, logger)
}

func TestSelect_RealRepository(t *testing.T) {
	dir := buildRepo(t, `{"packages": {"foo": {"libraryName": "foo", "asOfVersion": "2.0.1"}}}`)
	reg := fixedRegistry{"foo": "2.0.1", "@types/foo": "1.5.0"}
	e := newRepoEngine(t, dir, reg)

	sel, err := e.Select(context.Background(), Affected())
	require.NoError(t, err)
	assert.Empty(t, sel.Names())
	assert.Equal(t, []string{"bar", "baz"}, sel.Dependents)

	// Identical inputs give identical results.
	again, err := e.Select(context.Background(), Affected())
	require.NoError(t, err)
	assert.Equal(t, sel, again)

	all, err := e.Select(context.Background(), All())
	require.NoError(t, err)
	assert.Equal(t, []string{"bar", "baz", "other"}, all.Names())
	assert.Empty(t, all.Dependents)
}

func TestSelect_RealRepositoryRejectsStaleReplacement(t *testing.T) {
	dir := buildRepo(t, `{"packages": {"foo": {"libraryName": "foo", "asOfVersion": "1.0.0"}}}`)
	reg := fixedRegistry{"foo": "1.0.0", "@types/foo": "1.5.0"}

	sel, err := newRepoEngine(t, dir, reg).Select(context.Background(), All())
	require.ErrorIs(t, err, deprecation.ErrVersionNotNewer)
	assert.Nil(t, sel)
	assert.Contains(t, err.Error(), "1.5.0")
}
