package typings

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
)

// NotNeededPackage records that the typings package TypesName was removed
// because LibraryName ships its own types starting at Version.
type NotNeededPackage struct {
	TypesName   string
	LibraryName string
	// Version is the first release of LibraryName that includes types
	Version string
	// FullRegistryName is the name the removed typings were published under,
	// e.g. "@types/foo"
	FullRegistryName string
}

type notNeededFile struct {
	Packages map[string]notNeededEntry `json:"packages"`
}

type notNeededEntry struct {
	LibraryName string `json:"libraryName"`
	AsOfVersion string `json:"asOfVersion"`
}

// LoadNotNeeded reads the not-needed manifest at path. A missing manifest is
// treated as empty. Records are returned sorted by typings name.
func LoadNotNeeded(path, scope string) ([]NotNeededPackage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read not-needed manifest: %w", err)
	}

	return ParseNotNeeded(data, scope)
}

// ParseNotNeeded decodes a not-needed manifest
func ParseNotNeeded(data []byte, scope string) ([]NotNeededPackage, error) {
	var f notNeededFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse not-needed manifest: %w", err)
	}

	result := make([]NotNeededPackage, 0, len(f.Packages))
	for name, entry := range f.Packages {
		if entry.LibraryName == "" {
			return nil, fmt.Errorf("not-needed manifest: %s has no libraryName", name)
		}
		if entry.AsOfVersion == "" {
			return nil, fmt.Errorf("not-needed manifest: %s has no asOfVersion", name)
		}
		result = append(result, NotNeededPackage{
			TypesName:        name,
			LibraryName:      entry.LibraryName,
			Version:          entry.AsOfVersion,
			FullRegistryName: scope + "/" + name,
		})
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TypesName < result[j].TypesName })

	return result, nil
}
