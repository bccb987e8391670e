package typings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DeclarationFile marks a directory as a typings package
const DeclarationFile = "index.d.ts"

const packageJSONFile = "package.json"

// Package is a typings package that still exists in the repository
type Package struct {
	ID PackageID
	// Path is the package directory relative to the types directory,
	// e.g. "foo" or "foo/v1"
	Path string
	// Dependencies are the typings names this package depends on
	Dependencies []string
}

// Catalog answers questions about the surviving typings packages and the
// not-needed manifest of one repository snapshot
type Catalog struct {
	packages  []Package
	byName    map[string][]int
	notNeeded map[string]NotNeededPackage
}

// NewCatalog builds a catalog from already discovered packages
func NewCatalog(packages []Package, notNeeded []NotNeededPackage) *Catalog {
	c := &Catalog{
		packages:  packages,
		byName:    make(map[string][]int),
		notNeeded: make(map[string]NotNeededPackage, len(notNeeded)),
	}
	for i, p := range packages {
		c.byName[p.ID.Name] = append(c.byName[p.ID.Name], i)
	}
	for _, nn := range notNeeded {
		c.notNeeded[nn.TypesName] = nn
	}
	return c
}

// All returns every typings package in discovery order
func (c *Catalog) All() []Package {
	return c.packages
}

// Len returns the number of typings packages
func (c *Catalog) Len() int {
	return len(c.packages)
}

// HasTyping reports whether a package named id.Name survives at a version
// matching id.Version; the wildcard matches any version
func (c *Catalog) HasTyping(id PackageID) bool {
	for _, i := range c.byName[id.Name] {
		if c.packages[i].ID.Version.Matches(id.Version) {
			return true
		}
	}
	return false
}

// ByPath returns the package stored at the given types-relative path
func (c *Catalog) ByPath(p string) (Package, bool) {
	name, _, _ := strings.Cut(p, "/")
	for _, i := range c.byName[name] {
		if c.packages[i].Path == p {
			return c.packages[i], true
		}
	}
	return Package{}, false
}

// NotNeeded returns the deprecation record for a typings name, if any
func (c *Catalog) NotNeeded(name string) (NotNeededPackage, bool) {
	nn, ok := c.notNeeded[name]
	return nn, ok
}

// LoadCatalog discovers every typings package under typesDir and reads the
// not-needed manifest at notNeededPath. scope is the registry scope typings
// are published under, e.g. "@types".
func LoadCatalog(typesDir, notNeededPath, scope string) (*Catalog, error) {
	packages, err := DiscoverPackages(typesDir, scope)
	if err != nil {
		return nil, err
	}

	notNeeded, err := LoadNotNeeded(notNeededPath, scope)
	if err != nil {
		return nil, err
	}

	return NewCatalog(packages, notNeeded), nil
}

// DiscoverPackages finds all typings packages in typesDir. A directory is a
// package when it holds an index.d.ts or a package.json; vN[.M]
// subdirectories of a package are its older versions. Hidden entries are
// skipped.
func DiscoverPackages(typesDir, scope string) ([]Package, error) {
	entries, err := os.ReadDir(typesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read types directory: %w", err)
	}

	var packages []Package
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		name := entry.Name()
		dir := filepath.Join(typesDir, name)

		latest, ok, err := readPackage(dir, name, scope)
		if err != nil {
			return nil, err
		}
		if ok {
			latest.Path = name
			packages = append(packages, latest)
		}

		subdirs, err := os.ReadDir(dir)
		if err != nil {
			return nil, fmt.Errorf("failed to read package directory %s: %w", dir, err)
		}
		for _, sub := range subdirs {
			if !sub.IsDir() {
				continue
			}
			v, isVersion := parseVersionDir(sub.Name())
			if !isVersion {
				continue
			}
			old, ok, err := readPackage(filepath.Join(dir, sub.Name()), name, scope)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			old.ID.Version = v
			old.Path = name + "/" + sub.Name()
			packages = append(packages, old)
		}
	}

	return packages, nil
}

type packageJSON struct {
	Version          string            `json:"version"`
	Dependencies     map[string]string `json:"dependencies"`
	DevDependencies  map[string]string `json:"devDependencies"`
	PeerDependencies map[string]string `json:"peerDependencies"`
}

// readPackage reads the package in dir. It reports false when dir is not a
// typings package.
func readPackage(dir, name, scope string) (Package, bool, error) {
	hasDecl := fileExists(filepath.Join(dir, DeclarationFile))

	data, err := os.ReadFile(filepath.Join(dir, packageJSONFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if !hasDecl {
				return Package{}, false, nil
			}
			return Package{ID: PackageID{Name: name, Version: Wildcard}}, true, nil
		}
		return Package{}, false, fmt.Errorf("failed to read %s: %w", filepath.Join(dir, packageJSONFile), err)
	}

	var pj packageJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return Package{}, false, fmt.Errorf("failed to parse %s: %w", filepath.Join(dir, packageJSONFile), err)
	}

	pkg := Package{
		ID: PackageID{Name: name, Version: versionFromPackageJSON(pj.Version)},
	}

	deps := make(map[string]bool)
	for _, group := range []map[string]string{pj.Dependencies, pj.DevDependencies, pj.PeerDependencies} {
		for dep := range group {
			typesName, ok := strings.CutPrefix(dep, scope+"/")
			if !ok || typesName == name {
				continue
			}
			deps[typesName] = true
		}
	}
	for dep := range deps {
		pkg.Dependencies = append(pkg.Dependencies, dep)
	}
	sort.Strings(pkg.Dependencies)

	return pkg, true, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
