// Package depgraph computes which typings packages depend, directly or
// transitively, on a set of changed or removed packages.
package depgraph

import (
	"context"
	"sort"

	"github.com/schaermu/typesgate/internal/typings"
)

// Result is the affected set of a change
type Result struct {
	// PackageNames are the changed packages that still exist
	PackageNames []string
	// Dependents are the packages depending on a changed or deleted package,
	// excluding PackageNames, sorted by path
	Dependents []string
}

// Graph holds reverse dependency edges between typings packages
type Graph struct {
	// dependents maps a typings name to the paths of packages depending on it
	dependents map[string][]string
	names      map[string]string // path -> name
}

// New builds the reverse dependency graph of packages
func New(packages []typings.Package) *Graph {
	g := &Graph{
		dependents: make(map[string][]string),
		names:      make(map[string]string, len(packages)),
	}
	for _, p := range packages {
		g.names[p.Path] = p.ID.Name
		for _, dep := range p.Dependencies {
			g.dependents[dep] = append(g.dependents[dep], p.Path)
		}
	}
	return g
}

// Affected walks the reverse edges from every changed package path and every
// deleted package name
func (g *Graph) Affected(ctx context.Context, changed []string, deleted []typings.PackageID) (Result, error) {
	seeds := make(map[string]bool, len(changed))
	var queue []string

	changedNames := make([]string, 0, len(changed))
	for _, p := range changed {
		if seeds[p] {
			continue
		}
		seeds[p] = true
		changedNames = append(changedNames, p)
		if name, ok := g.names[p]; ok {
			queue = append(queue, name)
		}
	}
	for _, id := range deleted {
		queue = append(queue, id.Name)
	}

	visitedNames := make(map[string]bool)
	found := make(map[string]bool)
	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		name := queue[0]
		queue = queue[1:]
		if visitedNames[name] {
			continue
		}
		visitedNames[name] = true

		for _, path := range g.dependents[name] {
			if found[path] {
				continue
			}
			found[path] = true
			queue = append(queue, g.names[path])
		}
	}

	var dependents []string
	for path := range found {
		if !seeds[path] {
			dependents = append(dependents, path)
		}
	}
	sort.Strings(dependents)
	sort.Strings(changedNames)

	return Result{PackageNames: changedNames, Dependents: dependents}, nil
}
