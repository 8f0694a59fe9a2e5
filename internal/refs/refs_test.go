package refs

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/albinvass/git-toprepo/internal/gitid"
	"github.com/albinvass/git-toprepo/internal/gitstore"
	"github.com/albinvass/git-toprepo/internal/tlog"
)

func testHash(b byte) plumbing.Hash {
	var h plumbing.Hash
	h[0] = b
	return h
}

func TestReconcileCreatesBranchTagAndHead(t *testing.T) {
	store, err := gitstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	r := New(store, tlog.New())

	mainId := gitid.NewCommitId(testHash(1))
	tagId := gitid.NewCommitId(testHash(2))
	tips := []MonoTip{
		{Name: "refs/namespaces/top/refs/heads/main", MonoCommit: mainId},
		{Name: "refs/namespaces/top/refs/tags/v1", MonoCommit: tagId},
		{Name: "refs/namespaces/top/HEAD", Symbolic: true, Target: "refs/namespaces/top/refs/heads/main"},
	}
	if err := r.Reconcile(tips); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	branchRef, err := store.Repo.Storer.Reference(plumbing.ReferenceName("refs/remotes/origin/main"))
	if err != nil {
		t.Fatalf("expected refs/remotes/origin/main to exist: %v", err)
	}
	if branchRef.Hash() != mainId.Hash() {
		t.Errorf("origin/main = %v, want %v", branchRef.Hash(), mainId.Hash())
	}

	tagRef, err := store.Repo.Storer.Reference(plumbing.ReferenceName("refs/tags/v1"))
	if err != nil {
		t.Fatalf("expected refs/tags/v1 to exist: %v", err)
	}
	if tagRef.Hash() != tagId.Hash() {
		t.Errorf("refs/tags/v1 = %v, want %v", tagRef.Hash(), tagId.Hash())
	}

	headRef, err := store.Repo.Storer.Reference(plumbing.ReferenceName("refs/remotes/origin/HEAD"))
	if err != nil {
		t.Fatalf("expected refs/remotes/origin/HEAD to exist: %v", err)
	}
	if headRef.Type() != plumbing.SymbolicReference || headRef.Target() != plumbing.ReferenceName("refs/remotes/origin/main") {
		t.Errorf("origin/HEAD = %+v, want a symbolic ref to refs/remotes/origin/main", headRef)
	}
}

func TestReconcileSkipsSymbolicRefOutsideTopNamespace(t *testing.T) {
	store, err := gitstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	r := New(store, tlog.New())

	tips := []MonoTip{
		{Name: "refs/namespaces/top/HEAD", Symbolic: true, Target: "refs/namespaces/other/refs/heads/main"},
	}
	if err := r.Reconcile(tips); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if _, err := store.Repo.Storer.Reference(plumbing.ReferenceName("refs/remotes/origin/HEAD")); err == nil {
		t.Errorf("origin/HEAD should not have been created for an out-of-namespace symbolic target")
	}
}

func TestReconcileDeletesStaleRef(t *testing.T) {
	store, err := gitstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	stale := plumbing.NewHashReference(plumbing.ReferenceName("refs/remotes/origin/removed-branch"), testHash(9))
	if err := store.Repo.Storer.SetReference(stale); err != nil {
		t.Fatalf("seed stale ref: %v", err)
	}

	r := New(store, tlog.New())
	mainId := gitid.NewCommitId(testHash(1))
	tips := []MonoTip{
		{Name: "refs/namespaces/top/refs/heads/main", MonoCommit: mainId},
	}
	if err := r.Reconcile(tips); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if _, err := store.Repo.Storer.Reference(plumbing.ReferenceName("refs/remotes/origin/removed-branch")); err == nil {
		t.Errorf("stale ref should have been deleted")
	}
}

func TestReconcileUpdatesExistingRefWithCAS(t *testing.T) {
	store, err := gitstore.OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	existing := plumbing.NewHashReference(plumbing.ReferenceName("refs/remotes/origin/main"), testHash(1))
	if err := store.Repo.Storer.SetReference(existing); err != nil {
		t.Fatalf("seed existing ref: %v", err)
	}

	r := New(store, tlog.New())
	newId := gitid.NewCommitId(testHash(2))
	tips := []MonoTip{
		{Name: "refs/namespaces/top/refs/heads/main", MonoCommit: newId},
	}
	if err := r.Reconcile(tips); err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	ref, err := store.Repo.Storer.Reference(plumbing.ReferenceName("refs/remotes/origin/main"))
	if err != nil {
		t.Fatalf("Reference: %v", err)
	}
	if ref.Hash() != newId.Hash() {
		t.Errorf("origin/main = %v, want updated %v", ref.Hash(), newId.Hash())
	}
}
