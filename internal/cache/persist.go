package cache

import (
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing"
	"github.com/pelletier/go-toml/v2"

	"github.com/albinvass/git-toprepo/internal/gitid"
)

// The persisted* types are the on-disk shape of TopRepoCache (spec §3's
// "durable, serialisable" requirement, §6's "Persisted cache"): stable
// field names, commit ids as hex strings, and tagged unions represented as
// named string variants so that adding a new variant later is a
// backward-compatible, append-only change rather than an int renumbering.
// Depth and submodule_paths are never stored: both are pure functions of
// parents, recomputed by NewThinCommit/NewMonoRepoCommit on load exactly as
// they were on first construction.

type persistedFile struct {
	Repo      []persistedRepo      `toml:"repo"`
	Mono      []persistedMono      `toml:"mono"`
	TopToMono []persistedTopToMono `toml:"top_to_mono"`
}

type persistedRepo struct {
	Name        string           `toml:"name"`
	URL         string           `toml:"url"`
	ThinCommits []persistedThin  `toml:"thin_commits"`
	Dedup       []persistedDedup `toml:"dedup"`
}

type persistedThin struct {
	CommitId      string          `toml:"commit_id"`
	TreeId        string          `toml:"tree_id"`
	Parents       []string        `toml:"parents"`
	DotGitmodules string          `toml:"dot_gitmodules,omitempty"`
	Bumps         []persistedBump `toml:"bumps"`
}

type persistedBump struct {
	Path     string `toml:"path"`
	Removed  bool   `toml:"removed,omitempty"`
	RepoName string `toml:"repo_name,omitempty"`
	CommitId string `toml:"commit_id,omitempty"`
}

type persistedDedup struct {
	Key      string `toml:"key"`
	CommitId string `toml:"commit_id"`
}

type persistedMono struct {
	Id      string                `toml:"id"`
	TopBump string                `toml:"top_bump,omitempty"`
	Parents []persistedMonoParent `toml:"parents"`
	Bumps   []persistedMonoBump   `toml:"bumps"`
}

// persistedMonoParent.Kind is "mono" or "submod", matching MonoRepoParentKind.
type persistedMonoParent struct {
	Kind           string `toml:"kind"`
	MonoId         string `toml:"mono_id,omitempty"`
	SubmodPath     string `toml:"submod_path,omitempty"`
	SubmodCommitId string `toml:"submod_commit_id,omitempty"`
}

type persistedMonoBump struct {
	Path     string `toml:"path"`
	Removed  bool   `toml:"removed,omitempty"`
	Kind     string `toml:"kind,omitempty"`
	RepoName string `toml:"repo_name,omitempty"`
	CommitId string `toml:"commit_id,omitempty"`
}

type persistedTopToMono struct {
	TopCommitId string `toml:"top_commit_id"`
	MonoId      string `toml:"mono_id"`
}

func repoNameString(r gitid.RepoName) string { return r.String() }

func parseRepoName(s string) gitid.RepoName {
	if s == "" || s == "top" {
		return gitid.Top
	}
	return gitid.SubRepo(s)
}

func kindName(k ExpandedSubmoduleKind) string {
	switch k {
	case KeptAsSubmodule:
		return "kept_as_submodule"
	case CommitMissingInSubRepo:
		return "commit_missing_in_sub_repo"
	case UnknownSubmodule:
		return "unknown_submodule"
	case RegressedNotFullyImplemented:
		return "regressed_not_fully_implemented"
	default:
		return "expanded"
	}
}

func parseKind(s string) ExpandedSubmoduleKind {
	switch s {
	case "kept_as_submodule":
		return KeptAsSubmodule
	case "commit_missing_in_sub_repo":
		return CommitMissingInSubRepo
	case "unknown_submodule":
		return UnknownSubmodule
	case "regressed_not_fully_implemented":
		return RegressedNotFullyImplemented
	default:
		return Expanded
	}
}

// Marshal serialises the cache to its on-disk TOML form for a stable diff
// between runs: repos, dedup entries and top_to_mono entries sorted by id,
// thin and mono commits sorted by depth and then id, so every parent is
// written before its children.
func (c *TopRepoCache) Marshal() ([]byte, error) {
	f := persistedFile{}

	repoNames := make([]gitid.RepoName, 0, len(c.Repos))
	for name := range c.Repos {
		repoNames = append(repoNames, name)
	}
	sort.Slice(repoNames, func(i, j int) bool { return repoNames[i].String() < repoNames[j].String() })

	for _, name := range repoNames {
		rd := c.Repos[name]
		pr := persistedRepo{Name: repoNameString(name), URL: rd.URL}

		thins := make([]*ThinCommit, 0, len(rd.ThinCommits))
		for _, tc := range rd.ThinCommits {
			thins = append(thins, tc)
		}
		sort.Slice(thins, func(i, j int) bool {
			if thins[i].Depth != thins[j].Depth {
				return thins[i].Depth < thins[j].Depth
			}
			return thins[i].CommitId.String() < thins[j].CommitId.String()
		})
		for _, tc := range thins {
			pt := persistedThin{CommitId: tc.CommitId.String(), TreeId: tc.TreeId.String()}
			for _, p := range tc.Parents {
				pt.Parents = append(pt.Parents, p.CommitId.String())
			}
			if tc.DotGitmodules != nil {
				pt.DotGitmodules = tc.DotGitmodules.String()
			}
			for _, pb := range tc.SubmoduleBumps {
				b := persistedBump{Path: pb.Path.String(), Removed: pb.Bump.Removed}
				if pb.Bump.RepoName != nil {
					b.RepoName = repoNameString(*pb.Bump.RepoName)
				}
				if !pb.Bump.Removed {
					b.CommitId = pb.Bump.CommitId.String()
				}
				pt.Bumps = append(pt.Bumps, b)
			}
			pr.ThinCommits = append(pr.ThinCommits, pt)
		}

		dedupKeys := make([]DedupKey, 0, len(rd.DedupCache))
		for k := range rd.DedupCache {
			dedupKeys = append(dedupKeys, k)
		}
		sort.Slice(dedupKeys, func(i, j int) bool { return dedupKeys[i] < dedupKeys[j] })
		for _, k := range dedupKeys {
			pr.Dedup = append(pr.Dedup, persistedDedup{Key: string(k), CommitId: rd.DedupCache[k].String()})
		}

		f.Repo = append(f.Repo, pr)
	}

	monos := make([]*MonoRepoCommit, 0, len(c.MonorepoCommits))
	for _, m := range c.MonorepoCommits {
		monos = append(monos, m)
	}
	sort.Slice(monos, func(i, j int) bool {
		if monos[i].Depth != monos[j].Depth {
			return monos[i].Depth < monos[j].Depth
		}
		return c.MonorepoCommitIds[monos[i]].String() < c.MonorepoCommitIds[monos[j]].String()
	})
	for _, m := range monos {
		id := c.MonorepoCommitIds[m]
		pm := persistedMono{Id: id.String()}
		if m.TopBump != nil {
			pm.TopBump = m.TopBump.String()
		}
		for _, p := range m.Parents {
			switch p.Kind {
			case ParentMono:
				parentId, ok := c.MonorepoCommitIds[p.Mono]
				if !ok {
					return nil, fmt.Errorf("marshal cache: mono parent of %s has no written id", id)
				}
				pm.Parents = append(pm.Parents, persistedMonoParent{Kind: "mono", MonoId: parentId.String()})
			case ParentOriginalSubmod:
				pm.Parents = append(pm.Parents, persistedMonoParent{
					Kind:           "submod",
					SubmodPath:     p.SubmodPath.String(),
					SubmodCommitId: p.SubmodCommitId.String(),
				})
			}
		}
		for _, pb := range m.SubmoduleBumps {
			mb := persistedMonoBump{Path: pb.Path.String(), Removed: pb.Bump.Removed}
			if !pb.Bump.Removed {
				mb.Kind = kindName(pb.Bump.Submod.Kind)
				mb.RepoName = repoNameString(pb.Bump.Submod.RepoName)
				mb.CommitId = pb.Bump.Submod.CommitId.String()
			}
			pm.Bumps = append(pm.Bumps, mb)
		}
		f.Mono = append(f.Mono, pm)
	}

	topIds := make([]gitid.CommitId, 0, len(c.TopToMono))
	for id := range c.TopToMono {
		topIds = append(topIds, id)
	}
	sort.Slice(topIds, func(i, j int) bool { return topIds[i].String() < topIds[j].String() })
	for _, topId := range topIds {
		mono := c.TopToMono[topId]
		monoId, ok := c.MonorepoCommitIds[mono]
		if !ok {
			return nil, fmt.Errorf("marshal cache: top_to_mono entry for %s has no written mono id", topId)
		}
		f.TopToMono = append(f.TopToMono, persistedTopToMono{TopCommitId: topId.String(), MonoId: monoId.String()})
	}

	out, err := toml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal cache: %w", err)
	}
	return out, nil
}

// LoadTopRepoCache rehydrates a cache previously written by Marshal, empty
// or nil data yielding a fresh empty cache. Parent links are reconstructed
// purely from the ids recorded alongside each node, per spec §3's Lifecycle.
func LoadTopRepoCache(data []byte) (*TopRepoCache, error) {
	c := NewTopRepoCache()
	if len(data) == 0 {
		return c, nil
	}
	var f persistedFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse cache: %w", err)
	}

	for _, pr := range f.Repo {
		name := parseRepoName(pr.Name)
		rd := c.RepoDataFor(name, pr.URL)
		built := make(map[gitid.CommitId]*ThinCommit, len(pr.ThinCommits))
		for _, pt := range pr.ThinCommits {
			commitId := gitid.NewCommitId(plumbing.NewHash(pt.CommitId))
			treeId := gitid.NewTreeId(plumbing.NewHash(pt.TreeId))

			parents := make([]*ThinCommit, 0, len(pt.Parents))
			for _, pid := range pt.Parents {
				parent, ok := built[gitid.NewCommitId(plumbing.NewHash(pid))]
				if !ok {
					return nil, fmt.Errorf("load cache: %s references unbuilt parent %s", pt.CommitId, pid)
				}
				parents = append(parents, parent)
			}

			var dotGitmodules *gitid.BlobId
			if pt.DotGitmodules != "" {
				id := gitid.NewBlobId(plumbing.NewHash(pt.DotGitmodules))
				dotGitmodules = &id
			}

			bumps := make([]PathBump, 0, len(pt.Bumps))
			for _, b := range pt.Bumps {
				bump := ThinSubmodule{Removed: b.Removed}
				if b.RepoName != "" {
					name := parseRepoName(b.RepoName)
					bump.RepoName = &name
				}
				if !b.Removed {
					bump.CommitId = gitid.NewCommitId(plumbing.NewHash(b.CommitId))
				}
				bumps = append(bumps, PathBump{Path: gitid.NewGitPath(b.Path), Bump: bump})
			}

			tc := NewThinCommit(commitId, treeId, parents, dotGitmodules, bumps)
			built[commitId] = tc
			rd.ThinCommits[commitId] = tc
		}

		for _, pd := range pr.Dedup {
			rd.DedupCache[DedupKey(pd.Key)] = gitid.NewCommitId(plumbing.NewHash(pd.CommitId))
		}
	}

	builtMono := make(map[string]*MonoRepoCommit, len(f.Mono))
	for _, pm := range f.Mono {
		var topBump *gitid.CommitId
		if pm.TopBump != "" {
			id := gitid.NewCommitId(plumbing.NewHash(pm.TopBump))
			topBump = &id
		}

		parents := make([]MonoRepoParent, 0, len(pm.Parents))
		for _, pp := range pm.Parents {
			switch pp.Kind {
			case "mono":
				parentMono, ok := builtMono[pp.MonoId]
				if !ok {
					return nil, fmt.Errorf("load cache: mono %s references unbuilt parent %s", pm.Id, pp.MonoId)
				}
				parents = append(parents, MonoRepoParent{Kind: ParentMono, Mono: parentMono})
			case "submod":
				parents = append(parents, MonoRepoParent{
					Kind:           ParentOriginalSubmod,
					SubmodPath:     gitid.NewGitPath(pp.SubmodPath),
					SubmodCommitId: gitid.NewCommitId(plumbing.NewHash(pp.SubmodCommitId)),
				})
			default:
				return nil, fmt.Errorf("load cache: mono %s has unknown parent kind %q", pm.Id, pp.Kind)
			}
		}

		bumps := make([]MonoPathBump, 0, len(pm.Bumps))
		for _, b := range pm.Bumps {
			eor := ExpandedOrRemoved{Removed: b.Removed}
			if !b.Removed {
				eor.Submod = ExpandedSubmodule{
					Kind:     parseKind(b.Kind),
					RepoName: parseRepoName(b.RepoName),
					CommitId: gitid.NewCommitId(plumbing.NewHash(b.CommitId)),
				}
			}
			bumps = append(bumps, MonoPathBump{Path: gitid.NewGitPath(b.Path), Bump: eor})
		}

		mono := NewMonoRepoCommit(parents, topBump, bumps)
		builtMono[pm.Id] = mono
		c.InsertMono(gitid.NewCommitId(plumbing.NewHash(pm.Id)), mono)
	}

	for _, entry := range f.TopToMono {
		mono, ok := builtMono[entry.MonoId]
		if !ok {
			return nil, fmt.Errorf("load cache: top_to_mono entry %s references unbuilt mono %s", entry.TopCommitId, entry.MonoId)
		}
		c.RecordTopToMono(gitid.NewCommitId(plumbing.NewHash(entry.TopCommitId)), mono)
	}

	return c, nil
}
