package cache

import (
	"sort"

	"github.com/albinvass/git-toprepo/internal/gitid"
)

// PathSet is an immutable, reference-counted-by-convention set of GitPaths.
// Two commits that did not touch any submodule share the exact same PathSet
// value; a bump produces a fresh copy-on-write PathSet, matching the
// Rc<HashSet> behaviour described in spec §9.
type PathSet struct {
	m map[gitid.GitPath]struct{}
}

var emptyPathSet = &PathSet{}

// EmptyPathSet returns the shared empty PathSet.
func EmptyPathSet() *PathSet { return emptyPathSet }

// Contains reports whether p is a member.
func (s *PathSet) Contains(p gitid.GitPath) bool {
	if s == nil {
		return false
	}
	_, ok := s.m[p]
	return ok
}

// WithInsert returns a new PathSet equal to s plus p.
func (s *PathSet) WithInsert(p gitid.GitPath) *PathSet {
	if s.Contains(p) {
		return s
	}
	out := make(map[gitid.GitPath]struct{}, len(s.m)+1)
	for k := range s.m {
		out[k] = struct{}{}
	}
	out[p] = struct{}{}
	return &PathSet{m: out}
}

// WithRemove returns a new PathSet equal to s minus p.
func (s *PathSet) WithRemove(p gitid.GitPath) *PathSet {
	if !s.Contains(p) {
		return s
	}
	out := make(map[gitid.GitPath]struct{}, len(s.m))
	for k := range s.m {
		if k != p {
			out[k] = struct{}{}
		}
	}
	if len(out) == 0 {
		return emptyPathSet
	}
	return &PathSet{m: out}
}

// Paths returns the set's members in sorted order.
func (s *PathSet) Paths() []gitid.GitPath {
	out := make([]gitid.GitPath, 0, len(s.m))
	for k := range s.m {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of members.
func (s *PathSet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.m)
}
