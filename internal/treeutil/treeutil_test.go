package treeutil

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/albinvass/git-toprepo/internal/gitstore"
)

func TestSortEntriesDirectorySortsAfterDashedSibling(t *testing.T) {
	entries := []object.TreeEntry{
		{Name: "foo", Mode: filemode.Dir},
		{Name: "foo-bar", Mode: filemode.Regular},
	}
	SortEntries(entries)
	if entries[0].Name != "foo-bar" || entries[1].Name != "foo" {
		t.Errorf("got order %q, %q; want foo-bar before foo (git tree sort treats dirs as name+\"/\")", entries[0].Name, entries[1].Name)
	}
}

func TestSortEntriesByteWise(t *testing.T) {
	entries := []object.TreeEntry{
		{Name: "zeta", Mode: filemode.Regular},
		{Name: "alpha", Mode: filemode.Regular},
		{Name: "mid", Mode: filemode.Regular},
	}
	SortEntries(entries)
	want := []string{"alpha", "mid", "zeta"}
	for i, w := range want {
		if entries[i].Name != w {
			t.Errorf("entries[%d].Name = %q, want %q", i, entries[i].Name, w)
		}
	}
}

func TestWriteStoresSortedTree(t *testing.T) {
	store, err := gitstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	h, err := store.StoreBlob([]byte("content\n"))
	if err != nil {
		t.Fatalf("StoreBlob: %v", err)
	}
	tree, err := Write(store, []object.TreeEntry{
		{Name: "b.txt", Mode: filemode.Regular, Hash: h},
		{Name: "a.txt", Mode: filemode.Regular, Hash: h},
	})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}
	if tree.Hash.IsZero() {
		t.Fatalf("Write should set a non-zero tree hash")
	}
	if tree.Entries[0].Name != "a.txt" || tree.Entries[1].Name != "b.txt" {
		t.Errorf("Write should sort entries before storing, got %q, %q", tree.Entries[0].Name, tree.Entries[1].Name)
	}
	readBack, err := store.Repo.TreeObject(tree.Hash)
	if err != nil {
		t.Fatalf("TreeObject: %v", err)
	}
	if len(readBack.Entries) != 2 {
		t.Errorf("len(readBack.Entries) = %d, want 2", len(readBack.Entries))
	}
}
