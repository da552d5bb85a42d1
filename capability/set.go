package capability

import "strings"

// Set is an immutable collection of capabilities. A set implies a
// capability when any member implies it.
type Set struct {
	caps []Capability
}

// NewSet returns a set of the given capabilities with structural duplicates
// removed. Nil entries are skipped.
func NewSet(caps ...Capability) Set {
	out := make([]Capability, 0, len(caps))
	for _, c := range caps {
		if c == nil {
			continue
		}
		dup := false
		for _, existing := range out {
			if Equal(existing, c) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, c)
		}
	}
	return Set{caps: out}
}

// Union returns a new set containing the members of s and caps.
func (s Set) Union(caps ...Capability) Set {
	all := make([]Capability, 0, len(s.caps)+len(caps))
	all = append(all, s.caps...)
	all = append(all, caps...)
	return NewSet(all...)
}

// Implies reports whether any member implies c.
func (s Set) Implies(c Capability) bool {
	for _, granted := range s.caps {
		if granted.Implies(c) {
			return true
		}
	}
	return false
}

// HasAll reports whether the set contains the unrestricted capability.
func (s Set) HasAll() bool {
	for _, c := range s.caps {
		if IsAll(c) {
			return true
		}
	}
	return false
}

// Len returns the number of members.
func (s Set) Len() int { return len(s.caps) }

// Slice returns a copy of the members.
func (s Set) Slice() []Capability {
	return append([]Capability(nil), s.caps...)
}

func (s Set) String() string {
	names := make([]string, len(s.caps))
	for i, c := range s.caps {
		names[i] = c.String()
	}
	return strings.Join(names, ", ")
}
