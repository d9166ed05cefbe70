// Package manifest tracks the relative paths a sync run expects to exist
// under a single root. Anything on disk that is not a member gets pruned
// after export.
package manifest

// Set is a collection of slash-separated paths relative to one root.
// Each of the four export roots carries its own Set.
type Set map[string]struct{}

// New returns an empty Set.
func New() Set {
	return make(Set)
}

// Add records rel as expected under the root this set is scoped to.
func (s Set) Add(rel string) {
	s[rel] = struct{}{}
}

// Contains reports whether rel is a member.
func (s Set) Contains(rel string) bool {
	_, ok := s[rel]
	return ok
}

// Merge adds every member of other into s.
func (s Set) Merge(other Set) {
	for rel := range other {
		s[rel] = struct{}{}
	}
}

// Len returns the number of members.
func (s Set) Len() int {
	return len(s)
}
