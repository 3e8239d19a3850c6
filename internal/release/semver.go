// Package release implements ReleaseNaming: parsing, comparing and
// formatting semantic versions and release filenames, and classifying a
// version's current phase. It is a pure value package with no I/O.
package release

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Version is the (major, minor, patch) triple of spec.md §3, with a total
// order. It is a thin wrapper around Masterminds/semver so formatting and
// comparison are battle-tested, while hop's own filename/phase rules stay
// local to this package.
type Version struct {
	Major, Minor, Patch uint64
}

// String formats the version as X.Y.Z.
func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Compare returns -1, 0, or 1 the way semver.Version.Compare does.
func (v Version) Compare(o Version) int {
	return v.semver().Compare(o.semver())
}

func (v Version) semver() *semver.Version {
	return semver.MustParse(v.String())
}

// Level is a bump level for Version.Next.
type Level int

const (
	LevelPatch Level = iota
	LevelMinor
	LevelMajor
)

// ParseLevel maps a lowercase level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "patch":
		return LevelPatch, nil
	case "minor":
		return LevelMinor, nil
	case "major":
		return LevelMajor, nil
	default:
		return 0, fmt.Errorf("unknown release level %q", s)
	}
}

// Next bumps the given level and zeros the lower fields.
func (v Version) Next(level Level) Version {
	switch level {
	case LevelMajor:
		return Version{Major: v.Major + 1}
	case LevelMinor:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	default:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	}
}

// IsZero reports whether v is the sentinel 0.0.0 used for "no production yet".
func (v Version) IsZero() bool { return v.Major == 0 && v.Minor == 0 && v.Patch == 0 }

var versionRe = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)$`)

// ParseVersion parses "X.Y.Z" into a Version.
func ParseVersion(s string) (Version, error) {
	m := versionRe.FindStringSubmatch(s)
	if m == nil {
		return Version{}, fmt.Errorf("invalid version %q: want X.Y.Z", s)
	}
	major, _ := strconv.ParseUint(m[1], 10, 64)
	minor, _ := strconv.ParseUint(m[2], 10, 64)
	patch, _ := strconv.ParseUint(m[3], 10, 64)
	return Version{Major: major, Minor: minor, Patch: patch}, nil
}
