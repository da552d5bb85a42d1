// Package version parses plugin versions and evaluates dependency version
// constraints against them.
//
// Versions are strict semantic versions (MAJOR.MINOR.PATCH with optional
// pre-release and build metadata). Constraints are predicates over the
// version order, so a pre-release such as 2.0.0-rc.1 satisfies >=1.0.0.
// The grammar accepted:
//
//	1.2.3               exact match, also =1.2.3 or ==1.2.3
//	>=1.0.0 <2.0.0      comparators; whitespace, "," "&" or "&&" mean AND
//	^1.2 | ~2.0         alternatives, "|" or "||" means OR
//	1, 1.2, 1.x, 1.*    partial versions and wildcards match a whole range
//	1.0.0 - 2.0.0       inclusive hyphen range
//	!(1.5.0)            negation of a term
//	(>=1 & <2) | >=3    grouping
//
// AND binds tighter than OR and "!" binds tightest.
package version

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var (
	// ErrInvalidVersion is returned when a version string is not strict semver.
	ErrInvalidVersion = errors.New("invalid version")
	// ErrInvalidConstraint is returned when a constraint expression cannot be parsed.
	ErrInvalidConstraint = errors.New("invalid version constraint")
)

// Version is an immutable, totally ordered semantic version.
type Version struct {
	v *semver.Version
}

// Parse parses a strict semantic version.
func Parse(s string) (Version, error) {
	v, err := semver.StrictNewVersion(strings.TrimSpace(s))
	if err != nil {
		return Version{}, fmt.Errorf("%w %q: %w", ErrInvalidVersion, s, err)
	}
	return Version{v: v}, nil
}

// MustParse is like Parse but panics on error. Intended for tests and
// package-level literals.
func MustParse(s string) Version {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

// IsZero reports whether v was never parsed.
func (v Version) IsZero() bool { return v.v == nil }

// String returns the canonical form of the version.
func (v Version) String() string {
	if v.v == nil {
		return "0.0.0"
	}
	return v.v.String()
}

// Compare returns -1, 0 or 1 when v is lower than, equal to or greater than o.
func (v Version) Compare(o Version) int {
	return v.semver().Compare(o.semver())
}

// Equal reports whether both versions have the same precedence.
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// Satisfies evaluates expr against v. It returns an error only when expr is
// syntactically invalid.
func (v Version) Satisfies(expr string) (bool, error) {
	c, err := ParseConstraint(expr)
	if err != nil {
		return false, err
	}
	return c.Check(v), nil
}

// MarshalText implements encoding.TextMarshaler.
func (v Version) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (v *Version) UnmarshalText(b []byte) error {
	parsed, err := Parse(string(b))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func (v Version) semver() *semver.Version {
	if v.v == nil {
		return semver.New(0, 0, 0, "", "")
	}
	return v.v
}
