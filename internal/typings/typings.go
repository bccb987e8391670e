// Package typings models the directory-per-package layout of a type
// definitions repository: package identities, the file to package resolver,
// the catalog of surviving packages and the not-needed manifest.
package typings

import (
	"path"
	"strings"
)

// PackageID identifies a typings package, optionally at a specific version
type PackageID struct {
	Name    string
	Version Version
}

// String formats id as name@version
func (id PackageID) String() string {
	return id.Name + "@" + id.Version.String()
}

// Path is the directory of id relative to the types directory
func (id PackageID) Path() string {
	if id.Version.IsWildcard() {
		return id.Name
	}
	return path.Join(id.Name, id.Version.DirName())
}

// FileResolver maps a repository-relative file to the package owning it
type FileResolver interface {
	Resolve(file string) (PackageID, bool)
}

// LayoutResolver resolves files purely from the directory layout:
// <types>/<name>/... belongs to name at the wildcard version and
// <types>/<name>/vN[.M]/... belongs to name at N[.M].
type LayoutResolver struct {
	typesDir string
}

// NewLayoutResolver creates a resolver for the given repository-relative types directory
func NewLayoutResolver(typesDir string) *LayoutResolver {
	return &LayoutResolver{typesDir: strings.Trim(path.Clean(toSlash(typesDir)), "/")}
}

// Resolve returns the package owning file, or false when file is not inside a
// package directory
func (r *LayoutResolver) Resolve(file string) (PackageID, bool) {
	rel, ok := strings.CutPrefix(path.Clean(toSlash(file)), r.typesDir+"/")
	if !ok {
		return PackageID{}, false
	}

	parts := strings.Split(rel, "/")
	// A file directly inside the types directory belongs to no package
	if len(parts) < 2 || parts[0] == "" || strings.HasPrefix(parts[0], ".") {
		return PackageID{}, false
	}

	id := PackageID{Name: parts[0], Version: Wildcard}
	if len(parts) >= 3 {
		if v, ok := parseVersionDir(parts[1]); ok {
			id.Version = v
		}
	}
	return id, true
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
