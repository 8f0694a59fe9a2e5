package cache

import "github.com/albinvass/git-toprepo/internal/gitid"

// ExpandedSubmoduleKind tags the outcome of resolving one gitlink bump
// during expansion (spec §3/§4.3).
type ExpandedSubmoduleKind int

const (
	// Expanded: known submodule, known commit - fully inlined.
	Expanded ExpandedSubmoduleKind = iota
	// KeptAsSubmodule: the tool chose not to expand this gitlink.
	KeptAsSubmodule
	// CommitMissingInSubRepo: repo resolved but the commit is absent locally.
	CommitMissingInSubRepo
	// UnknownSubmodule: .gitmodules has no mapping for the path.
	UnknownSubmodule
	// RegressedNotFullyImplemented: the gitlink moved backwards or sideways;
	// see spec §3 and §9 for the accepted reset-node pattern.
	RegressedNotFullyImplemented
)

// ExpandedSubmodule is the resolved state of one submodule mount at a mono
// commit.
type ExpandedSubmodule struct {
	Kind     ExpandedSubmoduleKind
	RepoName gitid.RepoName // zero value for Unknown/KeptAsSubmodule
	CommitId gitid.CommitId
}

// OrigCommitId returns the original (sub-repo-local) commit id regardless of
// resolution kind, matching ExpandedSubmodule::get_orig_commit_id.
func (e ExpandedSubmodule) OrigCommitId() gitid.CommitId { return e.CommitId }

// KnownSubmodule reports whether .gitmodules resolution succeeded, i.e.
// get_known_submod() would return Some.
func (e ExpandedSubmodule) KnownSubmodule() bool {
	switch e.Kind {
	case Expanded, CommitMissingInSubRepo, RegressedNotFullyImplemented:
		return true
	default:
		return false
	}
}

// ExpandedOrRemoved is either a resolved submodule bump or a removal.
type ExpandedOrRemoved struct {
	Removed bool
	Submod  ExpandedSubmodule
}

// MonoRepoParentKind tags a mono commit's parent edge.
type MonoRepoParentKind int

const (
	// ParentMono: an ordinary mono-to-mono parent edge.
	ParentMono MonoRepoParentKind = iota
	// ParentOriginalSubmod: a submodule's original commit grafted in as a
	// parent (spec §3, the recursive-bump interleaving of §4.3).
	ParentOriginalSubmod
)

// MonoRepoParent is one parent edge of a MonoRepoCommit.
type MonoRepoParent struct {
	Kind MonoRepoParentKind
	Mono *MonoRepoCommit // set iff Kind == ParentMono

	// Set iff Kind == ParentOriginalSubmod.
	SubmodPath     gitid.GitPath
	SubmodCommitId gitid.CommitId
}

// MonoRepoCommit is a node of the synthetic unified history.
type MonoRepoCommit struct {
	Parents []MonoRepoParent
	Depth   uint32
	// TopBump is set when this mono commit corresponds to a real update of
	// the top repo's own content (as opposed to a pure submodule-only
	// graft).
	TopBump *gitid.CommitId
	// SubmoduleBumps is ordered by path, mirroring ThinCommit.
	SubmoduleBumps []MonoPathBump
	SubmodulePaths *PathSet
}

// MonoPathBump pairs a path with its resolved-or-removed bump.
type MonoPathBump struct {
	Path gitid.GitPath
	Bump ExpandedOrRemoved
}

// NewMonoRepoCommit folds submoduleBumps onto the first Mono parent's
// SubmodulePaths, matching MonoRepoCommit::new_rc.
func NewMonoRepoCommit(parents []MonoRepoParent, topBump *gitid.CommitId, submoduleBumps []MonoPathBump) *MonoRepoCommit {
	var depth uint32
	for _, p := range parents {
		if p.Kind == ParentMono && p.Mono.Depth+1 > depth {
			depth = p.Mono.Depth + 1
		}
	}
	paths := EmptyPathSet()
	if len(parents) > 0 && parents[0].Kind == ParentMono {
		paths = parents[0].Mono.SubmodulePaths
	}
	for _, pb := range submoduleBumps {
		if pb.Bump.Removed {
			paths = paths.WithRemove(pb.Path)
		} else {
			paths = paths.WithInsert(pb.Path)
		}
	}
	return &MonoRepoCommit{
		Parents:        parents,
		Depth:          depth,
		TopBump:        topBump,
		SubmoduleBumps: submoduleBumps,
		SubmodulePaths: paths,
	}
}

// GetTopBump returns the commit id of the bumped top tree, if any.
func (m *MonoRepoCommit) GetTopBump() (gitid.CommitId, bool) {
	if m.TopBump == nil {
		return gitid.CommitId{}, false
	}
	return *m.TopBump, true
}

// GetSubmoduleBump returns the resolved bump at path in this commit only
// (not walking parents - callers that need the effective bump across
// history use GetSubmodule).
func (m *MonoRepoCommit) GetSubmoduleBump(path gitid.GitPath) (ExpandedOrRemoved, bool) {
	for _, pb := range m.SubmoduleBumps {
		if pb.Path == path {
			return pb.Bump, true
		}
	}
	return ExpandedOrRemoved{}, false
}

// GetSubmodule walks the first-parent chain to find the most recent bump at
// path, the mono-commit analogue of ThinCommit.GetSubmodule. Used by the
// expander to detect whether a submodule's new bump regresses relative to
// what is already live in the mono history (spec §3's "regressed" case).
func (m *MonoRepoCommit) GetSubmodule(path gitid.GitPath) (ExpandedOrRemoved, bool) {
	for node := m; node != nil; {
		if bump, ok := node.GetSubmoduleBump(path); ok {
			return bump, true
		}
		if len(node.Parents) == 0 || node.Parents[0].Kind != ParentMono {
			return ExpandedOrRemoved{}, false
		}
		node = node.Parents[0].Mono
	}
	return ExpandedOrRemoved{}, false
}
