// Package changes reduces a repository diff to the typings packages it deletes.
package changes

import (
	"github.com/schaermu/typesgate/internal/git"
	"github.com/schaermu/typesgate/internal/typings"
)

// Grouping collects package identities, collapsing repeats of the same
// (name, formatted version) pair while keeping first-seen order of names and
// of versions within a name.
type Grouping struct {
	names    []string
	versions map[string][]string
	ids      map[string]map[string]typings.PackageID
}

// NewGrouping returns an empty grouping
func NewGrouping() *Grouping {
	return &Grouping{
		versions: make(map[string][]string),
		ids:      make(map[string]map[string]typings.PackageID),
	}
}

// Add records id unless an identity with the same name and version string
// was already added
func (g *Grouping) Add(id typings.PackageID) {
	byVersion, ok := g.ids[id.Name]
	if !ok {
		byVersion = make(map[string]typings.PackageID)
		g.ids[id.Name] = byVersion
		g.names = append(g.names, id.Name)
	}

	key := id.Version.String()
	if _, seen := byVersion[key]; seen {
		return
	}
	byVersion[key] = id
	g.versions[id.Name] = append(g.versions[id.Name], key)
}

// IDs flattens the grouping, grouped by name
func (g *Grouping) IDs() []typings.PackageID {
	var result []typings.PackageID
	for _, name := range g.names {
		for _, key := range g.versions[name] {
			result = append(result, g.ids[name][key])
		}
	}
	return result
}

// GroupDeletions returns the unique package identities of every deleted file
// in entries. Files that resolve to no package are skipped here; the
// deprecation validator applies the strict rule.
func GroupDeletions(entries []git.Change, resolver typings.FileResolver) []typings.PackageID {
	g := NewGrouping()
	for _, entry := range entries {
		if entry.Status != git.Deleted {
			continue
		}
		id, ok := resolver.Resolve(entry.File)
		if !ok {
			continue
		}
		g.Add(id)
	}
	return g.IDs()
}

// Touches reports whether any entry changes file
func Touches(entries []git.Change, file string) bool {
	for _, entry := range entries {
		if entry.File == file {
			return true
		}
	}
	return false
}
