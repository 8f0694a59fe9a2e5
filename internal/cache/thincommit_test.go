package cache

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/albinvass/git-toprepo/internal/gitid"
)

func commitId(b byte) gitid.CommitId {
	var h plumbing.Hash
	h[0] = b
	return gitid.NewCommitId(h)
}

func TestThinCommitDepth(t *testing.T) {
	root := NewThinCommit(commitId(1), gitid.TreeId{}, nil, nil, nil)
	if root.Depth != 0 {
		t.Errorf("root depth = %d, want 0", root.Depth)
	}
	child := NewThinCommit(commitId(2), gitid.TreeId{}, []*ThinCommit{root}, nil, nil)
	if child.Depth != 1 {
		t.Errorf("child depth = %d, want 1", child.Depth)
	}
	merge := NewThinCommit(commitId(3), gitid.TreeId{}, []*ThinCommit{child, root}, nil, nil)
	if merge.Depth != 2 {
		t.Errorf("merge depth = %d, want 2 (1 + max(parent depths))", merge.Depth)
	}
}

func TestIsDescendantOf(t *testing.T) {
	root := NewThinCommit(commitId(1), gitid.TreeId{}, nil, nil, nil)
	mid := NewThinCommit(commitId(2), gitid.TreeId{}, []*ThinCommit{root}, nil, nil)
	tip := NewThinCommit(commitId(3), gitid.TreeId{}, []*ThinCommit{mid}, nil, nil)

	if !tip.IsDescendantOf(root) {
		t.Errorf("tip should be a descendant of root")
	}
	if !tip.IsDescendantOf(tip) {
		t.Errorf("a commit should be considered a descendant of itself")
	}
	if root.IsDescendantOf(tip) {
		t.Errorf("root must not be a descendant of tip")
	}

	unrelated := NewThinCommit(commitId(4), gitid.TreeId{}, nil, nil, nil)
	if tip.IsDescendantOf(unrelated) {
		t.Errorf("tip must not be a descendant of an unrelated root commit")
	}
}

func TestSubmodulePathsFoldedFromFirstParent(t *testing.T) {
	root := NewThinCommit(commitId(1), gitid.TreeId{}, nil, nil, []PathBump{
		{Path: gitid.NewGitPath("libs/a"), Bump: ThinSubmodule{CommitId: commitId(10)}},
	})
	if !root.SubmodulePaths.Contains(gitid.NewGitPath("libs/a")) {
		t.Fatalf("root should record libs/a as a submodule path")
	}

	removed := NewThinCommit(commitId(2), gitid.TreeId{}, []*ThinCommit{root}, nil, []PathBump{
		{Path: gitid.NewGitPath("libs/a"), Bump: ThinSubmodule{Removed: true}},
	})
	if removed.SubmodulePaths.Contains(gitid.NewGitPath("libs/a")) {
		t.Errorf("libs/a should no longer be a submodule path after removal")
	}

	unrelatedChild := NewThinCommit(commitId(3), gitid.TreeId{}, []*ThinCommit{root}, nil, nil)
	if !unrelatedChild.SubmodulePaths.Contains(gitid.NewGitPath("libs/a")) {
		t.Errorf("a commit with no bumps of its own should inherit its parent's submodule paths")
	}
}

func TestGetSubmoduleWalksFirstParentChain(t *testing.T) {
	root := NewThinCommit(commitId(1), gitid.TreeId{}, nil, nil, []PathBump{
		{Path: gitid.NewGitPath("libs/a"), Bump: ThinSubmodule{CommitId: commitId(10)}},
	})
	child := NewThinCommit(commitId(2), gitid.TreeId{}, []*ThinCommit{root}, nil, nil)

	bump, ok := child.GetSubmodule(gitid.NewGitPath("libs/a"))
	if !ok {
		t.Fatalf("expected to find libs/a via first-parent walk")
	}
	if bump.CommitId != commitId(10) {
		t.Errorf("got commit %v, want %v", bump.CommitId, commitId(10))
	}

	if _, ok := child.GetSubmodule(gitid.NewGitPath("libs/missing")); ok {
		t.Errorf("did not expect to find a bump for an untouched path")
	}
}
