// Package cache implements the commit-graph cache (component A of spec §4.1):
// an in-memory DAG of "thin" commits per repo, the derived monorepo commits,
// and the top<->mono memo maps.
package cache

import (
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/albinvass/git-toprepo/internal/config"
	"github.com/albinvass/git-toprepo/internal/gitid"
	"github.com/albinvass/git-toprepo/internal/gitmodules"
	"github.com/albinvass/git-toprepo/internal/giturl"
	"github.com/albinvass/git-toprepo/internal/gitstore"
)

// ThinSubmodule records a single-path submodule bump relative to the first
// parent: either the path now points at a (possibly unresolved) commit, or
// it was removed.
type ThinSubmodule struct {
	Removed bool
	// RepoName is nil when .gitmodules has no entry for the path at this
	// commit; the gitlink still carries CommitId so later resolution
	// against a corrected .gitmodules can recover it.
	RepoName *gitid.RepoName
	CommitId gitid.CommitId
}

// ThinCommit is a per-repo DAG node: a real commit plus its submodule bumps
// relative to its first parent. Immutable once constructed; shared by
// pointer between all commits that reference it as a parent.
type ThinCommit struct {
	CommitId gitid.CommitId
	TreeId   gitid.TreeId
	// Depth is 1 + max(parents.Depth), or 0 for a root commit. It strictly
	// increases away from roots, which is what makes IsDescendantOf's
	// depth-pruned walk correct and bounded.
	Depth         uint32
	Parents       []*ThinCommit
	DotGitmodules *gitid.BlobId
	// SubmoduleBumps is ordered by path for deterministic iteration.
	SubmoduleBumps []PathBump
	SubmodulePaths *PathSet
}

// PathBump pairs a path with its bump, kept as a slice (not a map) so
// iteration order is deterministic without needing a second sort at every
// call site.
type PathBump struct {
	Path gitid.GitPath
	Bump ThinSubmodule
}

// NewThinCommit constructs a ThinCommit, folding submoduleBumps onto the
// first parent's SubmodulePaths/Depth per spec invariants 2 and 4.
func NewThinCommit(commitId gitid.CommitId, treeId gitid.TreeId, parents []*ThinCommit, dotGitmodules *gitid.BlobId, submoduleBumps []PathBump) *ThinCommit {
	sort.Slice(submoduleBumps, func(i, j int) bool { return submoduleBumps[i].Path < submoduleBumps[j].Path })
	var depth uint32
	for _, p := range parents {
		if p.Depth+1 > depth {
			depth = p.Depth + 1
		}
	}
	paths := EmptyPathSet()
	if len(parents) > 0 {
		paths = parents[0].SubmodulePaths
	}
	for _, pb := range submoduleBumps {
		if pb.Bump.Removed {
			paths = paths.WithRemove(pb.Path)
		} else {
			paths = paths.WithInsert(pb.Path)
		}
	}
	return &ThinCommit{
		CommitId:       commitId,
		TreeId:         treeId,
		Depth:          depth,
		Parents:        parents,
		DotGitmodules:  dotGitmodules,
		SubmoduleBumps: submoduleBumps,
		SubmodulePaths: paths,
	}
}

// IsDescendantOf reports whether ancestor is reachable from c by following
// parents, the sole ancestry primitive used by the splitter (spec §4.1). The
// walk prunes any node whose depth is below ancestor's depth, which
// terminates because depth strictly decreases along every edge.
func (c *ThinCommit) IsDescendantOf(ancestor *ThinCommit) bool {
	visited := map[gitid.CommitId]struct{}{c.CommitId: {}}
	queue := []*ThinCommit{c}
	for len(queue) > 0 {
		cur := queue[len(queue)-1]
		queue = queue[:len(queue)-1]
		if cur.CommitId == ancestor.CommitId {
			return true
		}
		for _, p := range cur.Parents {
			if p.Depth < ancestor.Depth {
				continue
			}
			if _, seen := visited[p.CommitId]; seen {
				continue
			}
			visited[p.CommitId] = struct{}{}
			queue = append(queue, p)
		}
	}
	return false
}

// GetSubmodule walks the first-parent chain to find the most recent bump at
// path, matching repo.rs's ThinCommit::get_submodule.
func (c *ThinCommit) GetSubmodule(path gitid.GitPath) (ThinSubmodule, bool) {
	for node := c; node != nil; {
		for _, pb := range node.SubmoduleBumps {
			if pb.Path == path {
				return pb.Bump, true
			}
		}
		if len(node.Parents) == 0 {
			return ThinSubmodule{}, false
		}
		node = node.Parents[0]
	}
	return ThinSubmodule{}, false
}

// BuildThinCommit constructs the ThinCommit for a freshly-seen real git
// commit, given its already-built same-repo parents (parents before
// children, per §5's ordering guarantee). repoURL is this repo's own
// fetch/push URL, used to resolve relative submodule URLs found in this
// commit's own .gitmodules (spec §6).
func BuildThinCommit(store *gitstore.Store, cfg *config.Store, repoURL string, commit *object.Commit, parents []*ThinCommit) (*ThinCommit, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("read tree of %s: %w", commit.Hash, err)
	}
	treeId := gitid.NewTreeId(tree.Hash)
	commitId := gitid.NewCommitId(commit.Hash)

	var dotGitmodulesId *gitid.BlobId
	modulesData, ok, err := store.LookupBlobByPath(tree, gitid.NewGitPath(".gitmodules"))
	if err != nil {
		return nil, fmt.Errorf("read .gitmodules at %s: %w", commit.Hash, err)
	}
	modulesInfo := gitmodules.Empty()
	if ok {
		entry, lerr := tree.FindEntry(".gitmodules")
		if lerr == nil {
			id := gitid.NewBlobId(entry.Hash)
			dotGitmodulesId = &id
		}
		modulesInfo, err = gitmodules.Parse(modulesData)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", commit.Hash, err)
		}
	}

	var parentTree *object.Tree
	if len(parents) > 0 {
		parentTree, err = store.Tree(parents[0].TreeId)
		if err != nil {
			return nil, fmt.Errorf("read parent tree of %s: %w", commit.Hash, err)
		}
	} else {
		parentTree = &object.Tree{}
	}

	changes, err := parentTree.Diff(tree)
	if err != nil {
		return nil, fmt.Errorf("diff tree at %s: %w", commit.Hash, err)
	}

	var bumps []PathBump
	for _, change := range changes {
		fromIsSub := change.From.TreeEntry.Mode == filemode.Submodule
		toIsSub := change.To.TreeEntry.Mode == filemode.Submodule
		if !fromIsSub && !toIsSub {
			continue
		}
		if toIsSub {
			path := gitid.NewGitPath(change.To.Name)
			var repoNamePtr *gitid.RepoName
			if entry, found := modulesInfo.Lookup(path); found && entry.URL != "" {
				absURL := giturl.Join(repoURL, entry.URL)
				name := cfg.GetOrInsert(absURL)
				repoNamePtr = &name
			}
			bumps = append(bumps, PathBump{
				Path: path,
				Bump: ThinSubmodule{
					RepoName: repoNamePtr,
					CommitId: gitid.NewCommitId(change.To.TreeEntry.Hash),
				},
			})
		} else {
			path := gitid.NewGitPath(change.From.Name)
			bumps = append(bumps, PathBump{Path: path, Bump: ThinSubmodule{Removed: true}})
		}
	}

	return NewThinCommit(commitId, treeId, parents, dotGitmodulesId, bumps), nil
}
