package splitter

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/albinvass/git-toprepo/internal/gitid"
	"github.com/albinvass/git-toprepo/internal/gitstore"
)

func TestApplyChangesOnEmptyBase(t *testing.T) {
	store, err := gitstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	blobHash, err := store.StoreBlob([]byte("hello\n"))
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}

	h, err := applyChanges(store, nil, []fileChange{
		{Path: gitid.NewGitPath("a.txt"), Mode: filemode.Regular, Hash: blobHash},
	})
	if err != nil {
		t.Fatalf("applyChanges: %v", err)
	}
	tree, err := store.Repo.TreeObject(h)
	if err != nil {
		t.Fatalf("TreeObject: %v", err)
	}
	entry, err := tree.FindEntry("a.txt")
	if err != nil {
		t.Fatalf("FindEntry(a.txt): %v", err)
	}
	if entry.Hash != blobHash {
		t.Errorf("a.txt hash = %v, want %v", entry.Hash, blobHash)
	}
}

func TestApplyChangesNestedAndDelete(t *testing.T) {
	store, err := gitstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	keepHash, err := store.StoreBlob([]byte("keep me\n"))
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}
	removeHash, err := store.StoreBlob([]byte("remove me\n"))
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}
	baseTreeHash, err := store.StoreTree(&object.Tree{Entries: []object.TreeEntry{
		{Name: "keep.txt", Mode: filemode.Regular, Hash: keepHash},
		{Name: "gone.txt", Mode: filemode.Regular, Hash: removeHash},
	}})
	if err != nil {
		t.Fatalf("StoreTree: %v", err)
	}
	baseTree, err := store.Repo.TreeObject(baseTreeHash)
	if err != nil {
		t.Fatalf("TreeObject: %v", err)
	}

	newFileHash, err := store.StoreBlob([]byte("nested content\n"))
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}

	h, err := applyChanges(store, baseTree, []fileChange{
		{Path: gitid.NewGitPath("gone.txt"), Deleted: true},
		{Path: gitid.NewGitPath("sub/dir/new.txt"), Mode: filemode.Regular, Hash: newFileHash},
	})
	if err != nil {
		t.Fatalf("applyChanges: %v", err)
	}
	tree, err := store.Repo.TreeObject(h)
	if err != nil {
		t.Fatalf("TreeObject: %v", err)
	}

	if _, err := tree.FindEntry("gone.txt"); err == nil {
		t.Errorf("gone.txt should have been deleted")
	}
	if entry, err := tree.FindEntry("keep.txt"); err != nil || entry.Hash != keepHash {
		t.Errorf("keep.txt should be untouched, err=%v", err)
	}
	entry, err := tree.FindEntry("sub/dir/new.txt")
	if err != nil {
		t.Fatalf("FindEntry(sub/dir/new.txt): %v", err)
	}
	if entry.Hash != newFileHash {
		t.Errorf("sub/dir/new.txt hash = %v, want %v", entry.Hash, newFileHash)
	}
}

func TestApplyChangesPrunesEmptyDirectory(t *testing.T) {
	store, err := gitstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	onlyFileHash, err := store.StoreBlob([]byte("only file in dir\n"))
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}
	subTreeHash, err := store.StoreTree(&object.Tree{Entries: []object.TreeEntry{
		{Name: "only.txt", Mode: filemode.Regular, Hash: onlyFileHash},
	}})
	if err != nil {
		t.Fatalf("StoreTree: %v", err)
	}
	baseTreeHash, err := store.StoreTree(&object.Tree{Entries: []object.TreeEntry{
		{Name: "dir", Mode: filemode.Dir, Hash: subTreeHash},
		{Name: "keep.txt", Mode: filemode.Regular, Hash: onlyFileHash},
	}})
	if err != nil {
		t.Fatalf("StoreTree: %v", err)
	}
	baseTree, err := store.Repo.TreeObject(baseTreeHash)
	if err != nil {
		t.Fatalf("TreeObject: %v", err)
	}

	h, err := applyChanges(store, baseTree, []fileChange{
		{Path: gitid.NewGitPath("dir/only.txt"), Deleted: true},
	})
	if err != nil {
		t.Fatalf("applyChanges: %v", err)
	}
	tree, err := store.Repo.TreeObject(h)
	if err != nil {
		t.Fatalf("TreeObject: %v", err)
	}
	if _, err := tree.FindEntry("dir"); err == nil {
		t.Errorf("dir should have been pruned once its only entry was deleted, not left as a dangling empty tree")
	}
	if _, err := tree.FindEntry("keep.txt"); err != nil {
		t.Errorf("keep.txt should be untouched: %v", err)
	}
}

func TestSplitFirst(t *testing.T) {
	head, rest, nested := splitFirst(gitid.NewGitPath("a/b/c"))
	if head != "a" || rest != gitid.NewGitPath("b/c") || !nested {
		t.Errorf("splitFirst(a/b/c) = %q, %q, %v", head, rest, nested)
	}
	head, rest, nested = splitFirst(gitid.NewGitPath("leaf"))
	if head != "leaf" || rest != gitid.GitPath("") || nested {
		t.Errorf("splitFirst(leaf) = %q, %q, %v", head, rest, nested)
	}
}
