package gate

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
)

type modeKind int

const (
	modeAll modeKind = iota
	modeAffected
	modeMatch
)

// Mode selects which packages a run processes
type Mode struct {
	kind    modeKind
	pattern *regexp.Regexp
}

// All selects every typings package
func All() Mode {
	return Mode{kind: modeAll}
}

// Affected selects packages changed by the diff and their dependents
func Affected() Mode {
	return Mode{kind: modeAffected}
}

// Match selects packages whose name matches pattern
func Match(pattern *regexp.Regexp) Mode {
	return Mode{kind: modeMatch, pattern: pattern}
}

func (m Mode) String() string {
	switch m.kind {
	case modeAffected:
		return "affected"
	case modeMatch:
		return "match:" + m.pattern.String()
	default:
		return "all"
	}
}

// ParseMode builds a Mode from the --selection and --match flags. A non-empty
// match pattern takes precedence over selection.
func ParseMode(selection, match string) (Mode, error) {
	if match != "" {
		re, err := regexp.Compile(match)
		if err != nil {
			return Mode{}, fmt.Errorf("invalid match pattern %q: %w", match, err)
		}
		return Match(re), nil
	}

	switch selection {
	case "", "all":
		return All(), nil
	case "affected":
		return Affected(), nil
	default:
		return Mode{}, fmt.Errorf("invalid selection: %s (must be all or affected)", selection)
	}
}

// Selection is the set of packages to test plus the ordered dependents of
// the changed ones
type Selection struct {
	PackageNames map[string]struct{}
	Dependents   []string
}

func newSelection(names []string, dependents []string) *Selection {
	s := &Selection{
		PackageNames: make(map[string]struct{}, len(names)),
		Dependents:   dependents,
	}
	if s.Dependents == nil {
		s.Dependents = []string{}
	}
	for _, n := range names {
		s.PackageNames[n] = struct{}{}
	}
	return s
}

// Names returns the package paths in sorted order
func (s *Selection) Names() []string {
	names := make([]string, 0, len(s.PackageNames))
	for n := range s.PackageNames {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// MarshalJSON encodes the selection with package names sorted
func (s *Selection) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		PackageNames []string `json:"packageNames"`
		Dependents   []string `json:"dependents"`
	}{
		PackageNames: s.Names(),
		Dependents:   s.Dependents,
	})
}
