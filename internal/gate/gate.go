// Package gate decides which typings packages a pending change affects and
// blocks changes whose not-needed records do not hold up.
package gate

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/schaermu/typesgate/internal/changes"
	"github.com/schaermu/typesgate/internal/config"
	"github.com/schaermu/typesgate/internal/depgraph"
	"github.com/schaermu/typesgate/internal/git"
	"github.com/schaermu/typesgate/internal/typings"
)

// DiffSource lists the changes between the working tree and a baseline
type DiffSource interface {
	ChangedFiles(ctx context.Context, repoDir, base string) ([]git.Change, error)
}

// Catalog enumerates the surviving typings packages
type Catalog interface {
	All() []typings.Package
	Len() int
	ByPath(path string) (typings.Package, bool)
}

// Closure expands changed and deleted packages into their dependents
type Closure interface {
	Affected(ctx context.Context, changed []string, deleted []typings.PackageID) (depgraph.Result, error)
}

// Validator checks the not-needed records touched by a diff
type Validator interface {
	Validate(ctx context.Context, entries []git.Change) error
}

// Engine orchestrates one gate run
type Engine struct {
	cfg       *config.Config
	diff      DiffSource
	catalog   Catalog
	resolver  typings.FileResolver
	closure   Closure
	validator Validator
	logger    *slog.Logger
}

// NewEngine creates a new gate engine
func NewEngine(cfg *config.Config, diff DiffSource, catalog Catalog, resolver typings.FileResolver, closure Closure, validator Validator, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:       cfg,
		diff:      diff,
		catalog:   catalog,
		resolver:  resolver,
		closure:   closure,
		validator: validator,
		logger:    logger,
	}
}

// Select computes the packages to process for mode. When the diff touches the
// not-needed manifest, its records must validate before any selection is
// returned.
func (e *Engine) Select(ctx context.Context, mode Mode) (*Selection, error) {
	e.logger.Info("selecting packages",
		"mode", mode.String(),
		"repo", e.cfg.RepoDir(),
		"base", e.cfg.Repo.BaseBranch)

	entries, err := e.changedFiles(ctx)
	if err != nil {
		return nil, err
	}

	if changes.Touches(entries, e.manifestFile()) {
		e.logger.Info("diff touches the not-needed manifest", "file", e.manifestFile())
		if err := e.validator.Validate(ctx, entries); err != nil {
			return nil, fmt.Errorf("not-needed validation failed: %w", err)
		}
	}

	var sel *Selection
	switch mode.kind {
	case modeAll:
		sel = e.selectAll()
	case modeAffected:
		sel, err = e.selectAffected(ctx, entries)
		if err != nil {
			return nil, err
		}
	case modeMatch:
		sel = e.selectMatching(mode)
	default:
		return nil, fmt.Errorf("unknown selection mode: %s", mode)
	}

	e.logger.Info("selection complete",
		"selected", len(sel.PackageNames),
		"dependents", len(sel.Dependents))
	return sel, nil
}

// CheckDeprecations validates every not-needed record implied by the diff,
// whether or not the manifest itself changed
func (e *Engine) CheckDeprecations(ctx context.Context) error {
	entries, err := e.changedFiles(ctx)
	if err != nil {
		return err
	}
	if err := e.validator.Validate(ctx, entries); err != nil {
		return fmt.Errorf("not-needed validation failed: %w", err)
	}
	e.logger.Info("not-needed validation passed")
	return nil
}

func (e *Engine) changedFiles(ctx context.Context) ([]git.Change, error) {
	entries, err := e.diff.ChangedFiles(ctx, e.cfg.RepoDir(), e.cfg.Repo.BaseBranch)
	if err != nil {
		return nil, fmt.Errorf("failed to compute diff: %w", err)
	}
	e.logger.Debug("diff computed", "changes", len(entries))
	return entries, nil
}

func (e *Engine) manifestFile() string {
	return filepath.ToSlash(filepath.Clean(e.cfg.Layout.NotNeededFile))
}

func (e *Engine) selectAll() *Selection {
	paths := make([]string, 0, e.catalog.Len())
	for _, p := range e.catalog.All() {
		paths = append(paths, p.Path)
	}
	return newSelection(paths, nil)
}

func (e *Engine) selectMatching(mode Mode) *Selection {
	var paths []string
	for _, p := range e.catalog.All() {
		if mode.pattern.MatchString(p.ID.Name) {
			paths = append(paths, p.Path)
		}
	}
	return newSelection(paths, nil)
}

// selectAffected hands deleted packages and changed surviving packages to
// the closure collaborator
func (e *Engine) selectAffected(ctx context.Context, entries []git.Change) (*Selection, error) {
	deleted := changes.GroupDeletions(entries, e.resolver)

	var changed []string
	seen := make(map[string]bool)
	for _, entry := range entries {
		id, ok := e.resolver.Resolve(entry.File)
		if !ok {
			continue
		}
		path := id.Path()
		if seen[path] {
			continue
		}
		seen[path] = true
		if _, exists := e.catalog.ByPath(path); exists {
			changed = append(changed, path)
		}
	}

	e.logger.Debug("affected seeds", "changed", len(changed), "deleted", len(deleted))

	res, err := e.closure.Affected(ctx, changed, deleted)
	if err != nil {
		return nil, fmt.Errorf("failed to compute affected packages: %w", err)
	}
	return newSelection(res.PackageNames, res.Dependents), nil
}
