// Command git-toprepo stitches a top repository together with its
// submodules into a single synthetic monorepo history, and splits commits
// authored against that history back into per-submodule commits for
// pushing.
package main

import (
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pborman/getopt"

	"github.com/albinvass/git-toprepo/internal/cache"
	"github.com/albinvass/git-toprepo/internal/config"
	"github.com/albinvass/git-toprepo/internal/expander"
	"github.com/albinvass/git-toprepo/internal/gitid"
	"github.com/albinvass/git-toprepo/internal/gitstore"
	"github.com/albinvass/git-toprepo/internal/refs"
	"github.com/albinvass/git-toprepo/internal/splitter"
	"github.com/albinvass/git-toprepo/internal/tlog"
)

func fatalf(format string, args ...interface{}) {
	log.Fatalf("git-toprepo: "+format, args...)
}

var usageStr = `
Commands:
    init <url>         Configure a top repo clone at --git-dir to fetch/expand the given url
    fetch               Expand the branches under refs/namespaces/top/refs/heads and reconcile
                         refs/remotes/origin to them; does not contact the remote
    push <ref>          Split commits on ref back to their owning repos and push them
    expand-submodule <path> <ref>
                         Expand ref onto refs/remotes/origin/HEAD at the given submodule path
`

func usage() {
	fmt.Fprintf(os.Stderr, "\n")
	getopt.PrintUsage(os.Stderr)
	fmt.Fprintf(os.Stderr, usageStr)
}

func usagef(format string, args ...interface{}) {
	usage()
	fmt.Fprintf(os.Stderr, "\nfatal: "+format+"\n", args...)
	os.Exit(99)
}

func main() {
	log.SetFlags(0)

	getopt.SetUsage(usage)
	gitDir := getopt.StringLong("git-dir", 'd', ".", "path to the top repo's git dir", "GIT_DIR")
	dryRun := getopt.BoolLong("dry-run", 'n', "print push commands instead of running them")
	verbose := getopt.BoolLong("verbose", 'v', "verbose mode")
	getopt.Parse()

	args := getopt.Args()
	if len(args) < 1 {
		usagef("no command specified.")
	}

	logger := tlog.New()
	if *verbose {
		logger.Info("starting up")
	}

	store, err := gitstore.OpenBare(*gitDir)
	if err != nil {
		fatalf("open %s: %v", *gitDir, err)
	}
	cfg, err := loadConfig(store)
	if err != nil {
		fatalf("load config: %v", err)
	}

	cachePath := filepath.Join(*gitDir, "toprepo-cache.toml")
	topCache, err := loadTopRepoCache(cachePath)
	if err != nil {
		fatalf("load cache: %v", err)
	}

	switch args[0] {
	case "init":
		if len(args) != 2 {
			usagef("command 'init' takes exactly one argument, the top repo URL")
		}
		if err := runInit(store, cfg, args[1]); err != nil {
			fatalf("init: %v", err)
		}
	case "fetch":
		if len(args) != 1 {
			usagef("command 'fetch' takes no arguments")
		}
		if err := runFetch(store, cfg, topCache, logger); err != nil {
			fatalf("fetch: %v", err)
		}
		if err := saveTopRepoCache(cachePath, topCache); err != nil {
			fatalf("save cache: %v", err)
		}
	case "push":
		if len(args) != 2 {
			usagef("command 'push' takes exactly one argument, the local ref to split")
		}
		if err := runPush(store, cfg, topCache, logger, args[1], *dryRun); err != nil {
			fatalf("push: %v", err)
		}
		if err := saveTopRepoCache(cachePath, topCache); err != nil {
			fatalf("save cache: %v", err)
		}
	case "expand-submodule":
		if len(args) != 3 {
			usagef("command 'expand-submodule' takes exactly two arguments: <path> <ref>")
		}
		if err := runExpandSubmodule(store, cfg, topCache, logger, args[1], args[2]); err != nil {
			fatalf("expand-submodule: %v", err)
		}
		if err := saveTopRepoCache(cachePath, topCache); err != nil {
			fatalf("save cache: %v", err)
		}
	default:
		usagef("unknown command %q", args[0])
	}
}

// loadTopRepoCache rehydrates the persisted commit-graph cache (spec §3's
// Lifecycle), yielding a fresh empty cache on first run.
func loadTopRepoCache(path string) (*cache.TopRepoCache, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cache.NewTopRepoCache(), nil
		}
		return nil, err
	}
	return cache.LoadTopRepoCache(data)
}

// saveTopRepoCache serialises the cache back to path on process exit,
// the other half of the same Lifecycle requirement.
func saveTopRepoCache(path string, c *cache.TopRepoCache) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func loadConfig(store *gitstore.Store) (*config.Store, error) {
	data, ok, err := readConfigBlob(store)
	if err != nil {
		return nil, err
	}
	if !ok {
		return config.Load(nil)
	}
	return config.Load(data)
}

// readConfigBlob reads .gittoprepo.toml from the tip of refs/remotes/origin/HEAD,
// matching toprepo.config = repo:refs/remotes/origin/HEAD:.gittoprepo.toml.
func readConfigBlob(store *gitstore.Store) ([]byte, bool, error) {
	ref, err := store.Repo.Reference("refs/remotes/origin/HEAD", true)
	if err != nil {
		return nil, false, nil
	}
	commit, err := store.Repo.CommitObject(ref.Hash())
	if err != nil {
		return nil, false, nil
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, false, nil
	}
	return store.LookupBlobByPath(tree, gitid.NewGitPath(".gittoprepo.toml"))
}

func runInit(store *gitstore.Store, cfg *config.Store, url string) error {
	gitConfig, err := store.Repo.Config()
	if err != nil {
		return err
	}
	section := gitConfig.Raw.Section("remote").Subsection("origin")
	section.SetOption("url", url)
	section.SetOption("pushUrl", "https://ERROR.invalid/set-a-submodule-specific-push-url")
	section.SetOption("fetch", "+refs/heads/*:refs/namespaces/top/refs/heads/*")
	section.AddOption("fetch", "+refs/tags/*:refs/namespaces/top/refs/tags/*")
	section.AddOption("fetch", "+HEAD:refs/namespaces/top/HEAD")
	section.SetOption("tagOpt", "--no-tags")
	gitConfig.Raw.Section("toprepo").SetOption("config", "repo:refs/remotes/origin/HEAD:.gittoprepo.toml")
	if err := store.Repo.SetConfig(gitConfig); err != nil {
		return err
	}
	head := plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.ReferenceName("refs/remotes/origin/HEAD"))
	return store.Repo.Storer.SetReference(head)
}

func runFetch(store *gitstore.Store, cfg *config.Store, topCache *cache.TopRepoCache, logger tlog.Logger) error {
	topURL, err := originURL(store)
	if err != nil {
		return err
	}
	topCache.RepoDataFor(gitid.Top, topURL)

	exp := expander.New(store, cfg, topCache, logger)
	tipRefs, err := store.ReferencesWithPrefix("refs/namespaces/top/refs/heads/")
	if err != nil {
		return err
	}
	var tips []refs.MonoTip
	for _, ref := range tipRefs {
		if ref.Type() == plumbing.SymbolicReference {
			tips = append(tips, refs.MonoTip{Name: ref.Name(), Symbolic: true, Target: ref.Target()})
			continue
		}
		monoId, err := exp.ExpandTopRef(gitid.NewCommitId(ref.Hash()))
		if err != nil {
			return fmt.Errorf("expand %s: %w", ref.Name(), err)
		}
		tips = append(tips, refs.MonoTip{Name: ref.Name(), MonoCommit: monoId})
	}

	reconciler := refs.New(store, logger)
	return reconciler.Reconcile(tips)
}

func runPush(store *gitstore.Store, cfg *config.Store, topCache *cache.TopRepoCache, logger tlog.Logger, refName string, dryRun bool) error {
	ref, err := store.Repo.Reference(qualifyRefName(refName), true)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", refName, err)
	}
	topURL, err := originURL(store)
	if err != nil {
		return err
	}

	sp := splitter.New(store, cfg, topCache, logger)
	stop := map[gitid.CommitId]bool{}
	originRefs, err := store.ReferencesWithPrefix("refs/remotes/origin/")
	if err != nil {
		return err
	}
	for _, r := range originRefs {
		stop[gitid.NewCommitId(r.Hash())] = true
	}
	tips := map[gitid.RepoName]gitid.CommitId{}
	queue, err := sp.Split(gitid.NewCommitId(ref.Hash()), stop, tips, topURL)
	if err != nil {
		return err
	}

	var failures int
	for _, entry := range queue {
		remoteRef := "refs/heads/" + refName
		args := []string{"push"}
		if entry.Topic != "" {
			args = append(args, "-o", "topic="+entry.Topic)
		}
		args = append(args, entry.PushURL, fmt.Sprintf("%s:%s", entry.NewCommitId, remoteRef))

		if dryRun {
			fmt.Println("git " + strings.Join(args, " "))
			continue
		}
		logger.Info(fmt.Sprintf("pushing %s to %s", entry.NewCommitId, entry.PushURL))
		out, err := exec.Command("git", args...).CombinedOutput()
		if err != nil {
			logger.Error(fmt.Sprintf("push to %s failed: %v: %s", entry.PushURL, err, out))
			failures++
		}
	}
	if failures > 0 {
		return fmt.Errorf("%d push(es) failed", failures)
	}
	return nil
}

// runExpandSubmodule implements the "expand-submodule" subcommand: spec's
// expand_submodule_ref_onto_head special mode. ref may be a raw commit hash
// or a fully-qualified ref already present in the store (e.g. one fetched
// directly into the sub-repo's own namespace ahead of time); unlike push's
// bare branch names, it is not auto-prefixed under refs/heads/, since the
// sub-repo owning path is only discovered inside ExpandSubmoduleRefOntoHead
// itself.
func runExpandSubmodule(store *gitstore.Store, cfg *config.Store, topCache *cache.TopRepoCache, logger tlog.Logger, path string, ref string) error {
	hash, err := resolveCommitish(store, ref)
	if err != nil {
		return err
	}

	topURL, err := originURL(store)
	if err != nil {
		return err
	}
	topCache.RepoDataFor(gitid.Top, topURL)

	exp := expander.New(store, cfg, topCache, logger)
	id, err := exp.ExpandSubmoduleRefOntoHead(gitid.NewGitPath(path), gitid.NewCommitId(hash))
	if err != nil {
		return err
	}
	logger.Info(fmt.Sprintf("expanded %s onto %s at %s", ref, id, path))
	fmt.Println(id)
	return nil
}

// resolveCommitish accepts either a raw hex object id or a fully-qualified
// ref name and returns the hash it points at.
func resolveCommitish(store *gitstore.Store, ref string) (plumbing.Hash, error) {
	if h := plumbing.NewHash(ref); !h.IsZero() {
		return h, nil
	}
	r, err := store.Repo.Reference(plumbing.ReferenceName(ref), true)
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("resolve %s: %w", ref, err)
	}
	return r.Hash(), nil
}

// qualifyRefName accepts either a fully-qualified ref ("refs/heads/main") or
// a bare branch name ("main") the way a human would type it on the command
// line, and returns the fully-qualified form.
func qualifyRefName(name string) plumbing.ReferenceName {
	if strings.HasPrefix(name, "refs/") {
		return plumbing.ReferenceName(name)
	}
	return plumbing.ReferenceName("refs/heads/" + name)
}

func originURL(store *gitstore.Store) (string, error) {
	gitConfig, err := store.Repo.Config()
	if err != nil {
		return "", err
	}
	remote, ok := gitConfig.Remotes["origin"]
	if !ok || len(remote.URLs) == 0 {
		return "", fmt.Errorf("remote.origin.url is not configured")
	}
	return remote.URLs[0], nil
}
