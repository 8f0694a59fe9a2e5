// Package gitstore is the thin wrapper around go-git/v5 that stands in for
// the "git object store" collaborator from spec §1: read commits/trees/blobs,
// write commits into the object database, and apply ref updates
// transactionally with compare-and-swap semantics.
package gitstore

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-git/go-billy/v5/osfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/cache"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/filesystem"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/albinvass/git-toprepo/internal/gitid"
)

// Store wraps an open repository's object database and reference store.
type Store struct {
	Repo *git.Repository
}

// Open opens an existing repository on disk at dir.
func Open(dir string) (*Store, error) {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return nil, fmt.Errorf("open repo %s: %w", dir, err)
	}
	return &Store{Repo: repo}, nil
}

// OpenInMemory opens an in-memory, bare repository. Used by tests.
func OpenInMemory() (*Store, error) {
	repo, err := git.Init(memory.NewStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("init in-memory repo: %w", err)
	}
	return &Store{Repo: repo}, nil
}

// OpenBare opens a bare repository (no worktree) rooted at gitDir, the shape
// used for the single object store, shared by the top repo and every
// sub-repo, that the expander and splitter write into directly.
func OpenBare(gitDir string) (*Store, error) {
	fs := osfs.New(gitDir)
	st := filesystem.NewStorage(fs, cache.NewObjectLRUDefault())
	repo, err := git.Open(st, nil)
	if err != nil {
		return nil, fmt.Errorf("open bare repo %s: %w", gitDir, err)
	}
	return &Store{Repo: repo}, nil
}

// InitBare creates and opens a new bare repository at gitDir.
func InitBare(gitDir string) (*Store, error) {
	fs := osfs.New(gitDir)
	st := filesystem.NewStorage(fs, cache.NewObjectLRUDefault())
	repo, err := git.Init(st, nil)
	if err != nil {
		return nil, fmt.Errorf("init bare repo %s: %w", gitDir, err)
	}
	return &Store{Repo: repo}, nil
}

// Commit reads a commit object by id.
func (s *Store) Commit(id gitid.CommitId) (*object.Commit, error) {
	c, err := s.Repo.CommitObject(id.Hash())
	if err != nil {
		return nil, fmt.Errorf("read commit %s: %w", id, err)
	}
	return c, nil
}

// Tree reads a tree object by id.
func (s *Store) Tree(id gitid.TreeId) (*object.Tree, error) {
	t, err := s.Repo.TreeObject(id.Hash())
	if err != nil {
		return nil, fmt.Errorf("read tree %s: %w", id, err)
	}
	return t, nil
}

// Blob reads raw blob bytes by id.
func (s *Store) Blob(id gitid.BlobId) ([]byte, error) {
	b, err := s.Repo.BlobObject(id.Hash())
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	r, err := b.Reader()
	if err != nil {
		return nil, fmt.Errorf("open blob %s: %w", id, err)
	}
	defer r.Close()
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read blob %s: %w", id, err)
	}
	return buf, nil
}

// LookupBlobByPath reads a named file out of a tree, returning ok=false if
// absent (matching git's treatment of a missing .gitmodules as "no
// submodules configured" rather than an error).
func (s *Store) LookupBlobByPath(tree *object.Tree, path gitid.GitPath) ([]byte, bool, error) {
	entry, err := tree.FindEntry(string(path))
	if err != nil {
		return nil, false, nil
	}
	data, err := s.Blob(gitid.NewBlobId(entry.Hash))
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

// RefEdit describes one ref-transaction entry: a CAS-guarded update or
// delete, or a create that requires the ref not to exist yet.
type RefEdit struct {
	Name     plumbing.ReferenceName
	New      *plumbing.Reference // nil means delete
	Old      *plumbing.Reference // nil means MustNotExist
	Message  string
}

// ApplyRefTransaction applies all edits as a single logical transaction: it
// first verifies every CAS expectation, then performs every write. The
// underlying go-git storer does not expose true multi-ref atomicity, so this
// does the verify-then-apply ourselves; a mismatch anywhere aborts before any
// write, but a storer error part-way through the writes leaves the edits
// already written in place.
func (s *Store) ApplyRefTransaction(edits []RefEdit) error {
	storer := s.Repo.Storer
	for _, e := range edits {
		current, err := storer.Reference(e.Name)
		if err != nil && err != plumbing.ErrReferenceNotFound {
			return fmt.Errorf("ref transaction: read %s: %w", e.Name, err)
		}
		if e.Old == nil {
			if err == nil {
				return fmt.Errorf("ref transaction: %s must not exist, but already points to %s", e.Name, current.Hash())
			}
		} else {
			if err != nil {
				return fmt.Errorf("ref transaction: %s expected to exist matching %s, but is absent", e.Name, e.Old.Hash())
			}
			if current.Hash() != e.Old.Hash() || current.Target() != e.Old.Target() {
				return fmt.Errorf("ref transaction: %s changed concurrently, expected %s", e.Name, e.Old.Hash())
			}
		}
	}
	for _, e := range edits {
		if e.New == nil {
			if err := storer.RemoveReference(e.Name); err != nil {
				return fmt.Errorf("ref transaction: delete %s: %w", e.Name, err)
			}
			continue
		}
		if err := storer.SetReference(e.New); err != nil {
			return fmt.Errorf("ref transaction: set %s: %w", e.Name, err)
		}
	}
	return nil
}

// ReferencesWithPrefix returns every reference whose name starts with
// prefix, e.g. "refs/remotes/origin/".
func (s *Store) ReferencesWithPrefix(prefix string) ([]*plumbing.Reference, error) {
	iter, err := s.Repo.Storer.IterReferences()
	if err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}
	var out []*plumbing.Reference
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if strings.HasPrefix(string(ref.Name()), prefix) {
			out = append(out, ref)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("iterate references: %w", err)
	}
	return out, nil
}

// StoreCommit encodes and writes a commit object, mirroring git-subtrac's
// own newTracCommit: NewEncodedObject, Encode, SetEncodedObject.
func (s *Store) StoreCommit(c *object.Commit) (plumbing.Hash, error) {
	enc := s.Repo.Storer.NewEncodedObject()
	if err := c.Encode(enc); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode commit: %w", err)
	}
	h, err := s.Repo.Storer.SetEncodedObject(enc)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store commit: %w", err)
	}
	return h, nil
}

// StoreTree encodes and writes a tree object.
func (s *Store) StoreTree(t *object.Tree) (plumbing.Hash, error) {
	enc := s.Repo.Storer.NewEncodedObject()
	if err := t.Encode(enc); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("encode tree: %w", err)
	}
	h, err := s.Repo.Storer.SetEncodedObject(enc)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store tree: %w", err)
	}
	return h, nil
}

// StoreBlob writes raw bytes as a blob object.
func (s *Store) StoreBlob(data []byte) (plumbing.Hash, error) {
	enc := s.Repo.Storer.NewEncodedObject()
	enc.SetType(plumbing.BlobObject)
	w, err := enc.Writer()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("open blob writer: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("write blob: %w", err)
	}
	if err := w.Close(); err != nil {
		return plumbing.ZeroHash, fmt.Errorf("close blob writer: %w", err)
	}
	h, err := s.Repo.Storer.SetEncodedObject(enc)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("store blob: %w", err)
	}
	return h, nil
}
