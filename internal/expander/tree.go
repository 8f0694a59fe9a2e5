package expander

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/albinvass/git-toprepo/internal/cache"
	"github.com/albinvass/git-toprepo/internal/gitid"
	"github.com/albinvass/git-toprepo/internal/gitstore"
	"github.com/albinvass/git-toprepo/internal/treeutil"
)

// buildMonoTree rebuilds repo's tree at thin, inlining every submodule mount
// still resolvable at this commit, recursively. This is the tree half of
// spec invariant 3: "the tree of t joined with inlined sub-trees equals the
// logical mono tree at m". Submodule entries that could not be resolved
// (Unknown/CommitMissingInSubRepo/KeptAsSubmodule) are left as plain
// gitlinks, which is the documented fallback in spec §3.
func buildMonoTree(store *gitstore.Store, repos *cache.TopRepoCache, repo gitid.RepoName, thin *cache.ThinCommit) (plumbing.Hash, error) {
	tree, err := store.Tree(thin.TreeId)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("buildMonoTree: %w", err)
	}
	return rewriteTree(store, repos, thin, tree, gitid.GitPath(""))
}

func rewriteTree(store *gitstore.Store, repos *cache.TopRepoCache, thin *cache.ThinCommit, tree *object.Tree, prefix gitid.GitPath) (plumbing.Hash, error) {
	entries := make([]object.TreeEntry, 0, len(tree.Entries))
	for _, e := range tree.Entries {
		full := prefix.Join(gitid.NewGitPath(e.Name))
		switch e.Mode {
		case filemode.Submodule:
			newEntry, err := rewriteSubmoduleEntry(store, repos, thin, full, e)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			entries = append(entries, newEntry)
		case filemode.Dir:
			subTree, err := store.Repo.TreeObject(e.Hash)
			if err != nil {
				return plumbing.ZeroHash, fmt.Errorf("buildMonoTree: read subtree %s: %w", full, err)
			}
			h, err := rewriteTree(store, repos, thin, subTree, full)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			entries = append(entries, object.TreeEntry{Name: e.Name, Mode: filemode.Dir, Hash: h})
		default:
			entries = append(entries, e)
		}
	}
	built, err := treeutil.Write(store, entries)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return built.Hash, nil
}

// spliceSubtree rewrites base, replacing (and creating, if necessary, the
// intermediate directories of) whatever lives at path with a single entry of
// the given mode/hash. Used by ExpandSubmoduleRefOntoHead to graft one
// submodule commit's tree onto an already-written mono tree without
// re-running the bump-resolution walk; the same single-path-patch idiom as
// the splitter's applyChanges, specialised to one path instead of a batch.
func spliceSubtree(store *gitstore.Store, base *object.Tree, path gitid.GitPath, mode filemode.FileMode, hash plumbing.Hash) (plumbing.Hash, error) {
	head, rest, nested := splitFirstPathSegment(path)
	entries := make([]object.TreeEntry, 0, len(base.Entries)+1)
	replaced := false
	for _, e := range base.Entries {
		if e.Name != head {
			entries = append(entries, e)
			continue
		}
		replaced = true
		if !nested {
			entries = append(entries, object.TreeEntry{Name: head, Mode: mode, Hash: hash})
			continue
		}
		childBase := &object.Tree{}
		if e.Mode == filemode.Dir {
			t, err := store.Repo.TreeObject(e.Hash)
			if err != nil {
				return plumbing.ZeroHash, fmt.Errorf("splice %s: read %s: %w", path, head, err)
			}
			childBase = t
		}
		h, err := spliceSubtree(store, childBase, rest, mode, hash)
		if err != nil {
			return plumbing.ZeroHash, err
		}
		entries = append(entries, object.TreeEntry{Name: head, Mode: filemode.Dir, Hash: h})
	}
	if !replaced {
		if !nested {
			entries = append(entries, object.TreeEntry{Name: head, Mode: mode, Hash: hash})
		} else {
			h, err := spliceSubtree(store, &object.Tree{}, rest, mode, hash)
			if err != nil {
				return plumbing.ZeroHash, err
			}
			entries = append(entries, object.TreeEntry{Name: head, Mode: filemode.Dir, Hash: h})
		}
	}
	built, err := treeutil.Write(store, entries)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return built.Hash, nil
}

// splitFirstPathSegment splits a git path into its first component and the
// remainder; nested is false when p has no '/' and is already a leaf name.
func splitFirstPathSegment(p gitid.GitPath) (head string, rest gitid.GitPath, nested bool) {
	s := p.String()
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return s[:i], gitid.GitPath(s[i+1:]), true
		}
	}
	return s, "", false
}

func rewriteSubmoduleEntry(store *gitstore.Store, repos *cache.TopRepoCache, thin *cache.ThinCommit, full gitid.GitPath, e object.TreeEntry) (object.TreeEntry, error) {
	bump, ok := thin.GetSubmodule(full)
	if !ok || bump.Removed || bump.RepoName == nil {
		return e, nil
	}
	subRepo := *bump.RepoName
	rd, ok := repos.Repos[subRepo]
	if !ok {
		return e, nil
	}
	subThin, ok := rd.ThinCommits[bump.CommitId]
	if !ok {
		// CommitMissingInSubRepo: leave the gitlink in place.
		return e, nil
	}
	h, err := buildMonoTree(store, repos, subRepo, subThin)
	if err != nil {
		return object.TreeEntry{}, fmt.Errorf("inline %s: %w", full, err)
	}
	return object.TreeEntry{Name: e.Name, Mode: filemode.Dir, Hash: h}, nil
}
