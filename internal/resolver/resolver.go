// Package resolver implements the submodule resolver (component B of spec
// §4.2): given a path inside a mono commit's logical tree, find which repo
// owns it, the path relative to that repo, and the push URL to use.
package resolver

import (
	"fmt"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/albinvass/git-toprepo/internal/config"
	"github.com/albinvass/git-toprepo/internal/gitid"
	"github.com/albinvass/git-toprepo/internal/gitmodules"
	"github.com/albinvass/git-toprepo/internal/giturl"
	"github.com/albinvass/git-toprepo/internal/gitstore"
)

// genericBaseURL is the sentinel root used to build a stable, deployment
// independent identity for a sub-repo, separate from whatever push URL the
// caller happened to supply for the top repo (spec §4.2).
const genericBaseURL = "generic:///toprepo"

// Resolution is the output of resolving one path: the repo that owns it,
// the absolute path (inside the mono tree) at which that repo is mounted,
// the path relative to that repo's own root, and the push URL to use for it.
type Resolution struct {
	RepoName   gitid.RepoName
	AbsSubPath gitid.GitPath
	RelPath    gitid.GitPath
	PushURL    string
}

// Resolve performs the iterative-descent algorithm of spec §4.2 against the
// tree of a mono commit.
func Resolve(store *gitstore.Store, cfg *config.Store, tree *object.Tree, path gitid.GitPath, baseURL string) (Resolution, error) {
	repoName := gitid.Top
	repoPath := gitid.GitPath("")
	rel := path
	pushURL := baseURL
	genericURL := genericBaseURL

	for {
		gitmodulesPath := repoPath.Join(gitid.NewGitPath(".gitmodules"))
		data, ok, err := store.LookupBlobByPath(tree, gitmodulesPath)
		if err != nil {
			return Resolution{}, fmt.Errorf("resolve %s: read %s: %w", path, gitmodulesPath, err)
		}
		info := gitmodules.Empty()
		if ok {
			info, err = gitmodules.Parse(data)
			if err != nil {
				return Resolution{}, fmt.Errorf("resolve %s: %w", path, err)
			}
		}
		entry, found := info.ContainingSubmodule(rel)
		if !found {
			return Resolution{
				RepoName:   repoName,
				AbsSubPath: repoPath,
				RelPath:    rel,
				PushURL:    pushURL,
			}, nil
		}
		stripped, ok := rel.StripPrefix(entry.Path)
		if !ok {
			// ContainingSubmodule only returns entries that are genuine
			// prefixes of rel, so this would indicate a resolver bug.
			return Resolution{}, fmt.Errorf("resolve %s: %s does not contain %s", path, entry.Path, rel)
		}
		rel = stripped
		repoPath = repoPath.Join(entry.Path)
		genericURL = giturl.Join(genericURL, entry.URL)
		pushURL = giturl.Join(pushURL, entry.URL)
		repoName = cfg.GetOrInsert(genericURL)
	}
}
