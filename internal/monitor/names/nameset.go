// Package names holds the watch-list of process names.  Names are compared
// case-insensitively but keep the casing they were first added with.
package names

import (
	"strings"
)

// ErrNoNames is returned by Merge when the input did not contain a single
// usable name and at least one was required.
type ErrNoNames struct{}

func (ErrNoNames) Error() string {
	return "empty names"
}

// ErrBlankName is returned by Remove when the name is empty after trimming.
type ErrBlankName struct{}

func (ErrBlankName) Error() string {
	return "missing name"
}

// Set is an ordered, case-insensitively de-duplicated list of process names.
// It is not safe for concurrent use; the monitor guards it.
type Set struct {
	names []string
	index map[string]struct{}
}

// NewSet creates a set from the given names, applying the usual trimming and
// de-duplication.
func NewSet(initial ...string) *Set {
	s := &Set{index: make(map[string]struct{})}
	s.appendAll(initial)
	return s
}

func key(name string) string {
	return strings.ToLower(name)
}

func (s *Set) appendAll(candidates []string) int {
	added := 0
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		k := key(c)
		if _, ok := s.index[k]; ok {
			continue
		}
		s.index[k] = struct{}{}
		s.names = append(s.names, c)
		added++
	}
	return added
}

// Merge appends the names in the input that are not already present.  If
// requireOne is set and the input yields no usable names at all, the set is
// left unchanged and ErrNoNames is returned.  Names that are already present
// count as usable; merging them is a no-op.
func (s *Set) Merge(in Input, requireOne bool) error {
	candidates := in.Candidates()
	if len(candidates) == 0 {
		if requireOne {
			return ErrNoNames{}
		}
		return nil
	}
	s.appendAll(candidates)
	return nil
}

// Replace swaps the whole set for the names in the input.  Absent input, or
// input that parses to nothing, leaves the set untouched.  It returns whether
// the set was replaced.
func (s *Set) Replace(in Input) bool {
	candidates := in.Candidates()
	if len(candidates) == 0 {
		return false
	}
	s.names = nil
	s.index = make(map[string]struct{}, len(candidates))
	s.appendAll(candidates)
	return true
}

// Remove deletes the entry equal to name ignoring case.  A name that is not
// present is not an error.
func (s *Set) Remove(name string) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, ErrBlankName{}
	}

	k := key(name)
	if _, ok := s.index[k]; !ok {
		return false, nil
	}
	delete(s.index, k)
	for i := range s.names {
		if key(s.names[i]) == k {
			s.names = append(s.names[:i], s.names[i+1:]...)
			break
		}
	}
	return true, nil
}

// Contains tests membership ignoring case.
func (s *Set) Contains(name string) bool {
	_, ok := s.index[key(strings.TrimSpace(name))]
	return ok
}

// Len is the number of names in the set.
func (s *Set) Len() int {
	return len(s.names)
}

// List returns a copy of the names in insertion order.
func (s *Set) List() []string {
	return append([]string(nil), s.names...)
}
