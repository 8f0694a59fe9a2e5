// Package treeutil holds the small amount of git-tree plumbing shared by the
// expander and splitter: sorting entries the way git requires, and writing a
// tree object back to the store.
package treeutil

import (
	"sort"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/albinvass/git-toprepo/internal/gitstore"
)

// SortEntries orders tree entries the way git's tree object format requires:
// byte-wise by name, except that directory names sort as if they had a
// trailing slash (gitlinks sort by their plain name, like files), so "foo" sorts after "foo-bar" but before
// "foo/anything".
func SortEntries(entries []object.TreeEntry) {
	sort.Slice(entries, func(i, j int) bool {
		return sortKey(entries[i]) < sortKey(entries[j])
	})
}

func sortKey(e object.TreeEntry) string {
	if e.Mode == filemode.Dir {
		return e.Name + "/"
	}
	return e.Name
}

// Write sorts entries and stores the resulting tree object.
func Write(store *gitstore.Store, entries []object.TreeEntry) (object.Tree, error) {
	cp := append([]object.TreeEntry(nil), entries...)
	SortEntries(cp)
	tree := object.Tree{Entries: cp}
	hash, err := store.StoreTree(&tree)
	if err != nil {
		return object.Tree{}, err
	}
	tree.Hash = hash
	return tree, nil
}
