package typings

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// WildcardMarker is the formatted form of the Wildcard version
const WildcardMarker = "*"

// Version is either a (major, minor) pair parsed from a versioned directory
// such as v1 or v2.3, or the Wildcard meaning "any / unversioned".
type Version struct {
	Major    int
	Minor    int
	HasMinor bool
	wildcard bool
}

// Wildcard matches every version of a package
var Wildcard = Version{wildcard: true}

var versionDirPattern = regexp.MustCompile(`^v(\d+)(?:\.(\d+))?$`)

// IsWildcard reports whether v is the Wildcard
func (v Version) IsWildcard() bool {
	return v.wildcard
}

// String formats v canonically: "*" for the wildcard, otherwise "N" or "N.M".
// ParseVersion(v.String()) yields a version equal to v.
func (v Version) String() string {
	if v.wildcard {
		return WildcardMarker
	}
	if v.HasMinor {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return strconv.Itoa(v.Major)
}

// DirName is the directory a non-wildcard version lives in, e.g. "v2.3"
func (v Version) DirName() string {
	if v.wildcard {
		return ""
	}
	return "v" + v.String()
}

// Matches reports whether v satisfies the query q. The wildcard matches
// everything, a major-only query matches any minor of that major.
func (v Version) Matches(q Version) bool {
	if q.wildcard || v.wildcard {
		return q.wildcard
	}
	if v.Major != q.Major {
		return false
	}
	return !q.HasMinor || (v.HasMinor && v.Minor == q.Minor)
}

// ParseVersion parses "*", "N", "N.M" or their v-prefixed directory forms
func ParseVersion(s string) (Version, error) {
	s = strings.TrimSpace(s)
	if s == WildcardMarker {
		return Wildcard, nil
	}
	if !strings.HasPrefix(s, "v") {
		s = "v" + s
	}
	v, ok := parseVersionDir(s)
	if !ok {
		return Version{}, fmt.Errorf("invalid typings version %q", s)
	}
	return v, nil
}

// parseVersionDir parses a versioned directory name such as v1 or v0.12
func parseVersionDir(name string) (Version, bool) {
	m := versionDirPattern.FindStringSubmatch(name)
	if m == nil {
		return Version{}, false
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, false
	}
	v := Version{Major: major}
	if m[2] != "" {
		minor, err := strconv.Atoi(m[2])
		if err != nil {
			return Version{}, false
		}
		v.Minor = minor
		v.HasMinor = true
	}
	return v, true
}

// versionFromPackageJSON derives the typings version of a package from the
// "version" field of its package.json, e.g. "2.3.9999" -> 2.3.
func versionFromPackageJSON(s string) Version {
	parts := strings.SplitN(strings.TrimPrefix(s, "v"), ".", 3)
	if len(parts) < 2 {
		return Wildcard
	}
	v, ok := parseVersionDir("v" + parts[0] + "." + parts[1])
	if !ok {
		return Wildcard
	}
	return v
}
