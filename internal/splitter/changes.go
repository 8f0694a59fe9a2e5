package splitter

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/albinvass/git-toprepo/internal/gitid"
	"github.com/albinvass/git-toprepo/internal/gitstore"
	"github.com/albinvass/git-toprepo/internal/treeutil"
)

// emptyTreeHash is git's well-known hash of a tree with zero entries.
var emptyTreeHash = plumbing.NewHash("4b825dc642cb6eb9a060e54bf8d69288fbee4904")

// fileChange is one file-level edit destined for a single owning repo, path
// already relative to that repo's own root.
type fileChange struct {
	Path    gitid.GitPath
	Deleted bool
	Mode    filemode.FileMode
	Hash    plumbing.Hash
}

// applyChanges rebuilds base (nil means an empty tree) with every change
// applied at its relative path, writing any intermediate tree objects that
// change. This is the split-direction counterpart of the expander's
// buildMonoTree: there it inlines subtrees, here it patches a handful of
// leaf paths onto an existing per-repo tree.
func applyChanges(store *gitstore.Store, base *object.Tree, changes []fileChange) (plumbing.Hash, error) {
	entries := map[string]object.TreeEntry{}
	if base != nil {
		for _, e := range base.Entries {
			entries[e.Name] = e
		}
	}
	byDir := map[string][]fileChange{}
	for _, c := range changes {
		head, rest, nested := splitFirst(c.Path)
		if !nested {
			if c.Deleted {
				delete(entries, head)
			} else {
				entries[head] = object.TreeEntry{Name: head, Mode: c.Mode, Hash: c.Hash}
			}
			continue
		}
		c.Path = rest
		byDir[head] = append(byDir[head], c)
	}
	for dir, sub := range byDir {
		var childBase *object.Tree
		if e, ok := entries[dir]; ok && e.Mode == filemode.Dir {
			t, err := store.Repo.TreeObject(e.Hash)
			if err == nil {
				childBase = t
			}
		}
		h, err := applyChanges(store, childBase, sub)
		if err != nil {
			return plumbing.ZeroHash, fmt.Errorf("apply changes under %s: %w", dir, err)
		}
		if h == emptyTreeHash {
			// every entry under dir was deleted; git trees never carry an
			// empty directory, so drop the entry rather than re-adding it.
			delete(entries, dir)
			continue
		}
		entries[dir] = object.TreeEntry{Name: dir, Mode: filemode.Dir, Hash: h}
	}
	out := make([]object.TreeEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	tree, err := treeutil.Write(store, out)
	if err != nil {
		return plumbing.ZeroHash, err
	}
	return tree.Hash, nil
}

// splitFirst splits a git path into its first component and the remainder.
// nested is false when p has no '/' (it is already a leaf name).
func splitFirst(p gitid.GitPath) (head string, rest gitid.GitPath, nested bool) {
	s := p.String()
	for i := 0; i < len(s); i++ {
		if s[i] == '/' {
			return s[:i], gitid.GitPath(s[i+1:]), true
		}
	}
	return s, "", false
}
