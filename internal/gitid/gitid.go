// Package gitid defines the opaque object identifiers and path/name types
// shared by every other package: commit/tree/blob ids, in-tree paths and the
// top/sub repo name tag.
package gitid

import (
	"fmt"
	"path"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
)

// CommitId is an opaque identifier for a git commit object.
type CommitId struct{ hash plumbing.Hash }

// TreeId is an opaque identifier for a git tree object.
type TreeId struct{ hash plumbing.Hash }

// BlobId is an opaque identifier for a git blob object.
type BlobId struct{ hash plumbing.Hash }

func NewCommitId(h plumbing.Hash) CommitId { return CommitId{h} }
func NewTreeId(h plumbing.Hash) TreeId     { return TreeId{h} }
func NewBlobId(h plumbing.Hash) BlobId     { return BlobId{h} }

func (c CommitId) Hash() plumbing.Hash { return c.hash }
func (t TreeId) Hash() plumbing.Hash   { return t.hash }
func (b BlobId) Hash() plumbing.Hash   { return b.hash }

func (c CommitId) String() string { return c.hash.String() }
func (t TreeId) String() string   { return t.hash.String() }
func (b BlobId) String() string   { return b.hash.String() }

func (c CommitId) IsZero() bool { return c.hash.IsZero() }

// GitPath is a byte-exact path inside a git tree. It is never OS-normalised;
// git trees always use '/' regardless of host platform.
type GitPath string

func NewGitPath(p string) GitPath {
	return GitPath(strings.Trim(p, "/"))
}

// Join appends a child path component, git-style (no OS path handling).
func (p GitPath) Join(child GitPath) GitPath {
	if p == "" {
		return child
	}
	if child == "" {
		return p
	}
	return GitPath(path.Join(string(p), string(child)))
}

// StripPrefix removes a leading directory prefix, returning ok=false if p is
// not inside prefix.
func (p GitPath) StripPrefix(prefix GitPath) (rest GitPath, ok bool) {
	if prefix == "" {
		return p, true
	}
	s := string(p)
	pre := string(prefix)
	if s == pre {
		return "", true
	}
	if strings.HasPrefix(s, pre+"/") {
		return GitPath(s[len(pre)+1:]), true
	}
	return "", false
}

func (p GitPath) String() string { return string(p) }

// RepoName is a tagged union: either the top repo, or a named sub repo.
type RepoName struct {
	isSub bool
	sub   string
}

// Top is the RepoName value denoting the top repository.
var Top = RepoName{}

// SubRepo constructs a RepoName for a named submodule repository.
func SubRepo(name string) RepoName { return RepoName{isSub: true, sub: name} }

func (r RepoName) IsTop() bool { return !r.isSub }
func (r RepoName) SubName() (string, bool) {
	return r.sub, r.isSub
}

func (r RepoName) String() string {
	if !r.isSub {
		return "top"
	}
	return r.sub
}

// RefPrefix returns the ref namespace prefix for this repo, e.g.
// "refs/namespaces/top/" or "refs/namespaces/sub/<name>/".
func (r RepoName) RefPrefix() string {
	if !r.isSub {
		return "refs/namespaces/top/"
	}
	return fmt.Sprintf("refs/namespaces/sub/%s/", r.sub)
}
