package cache

import "github.com/albinvass/git-toprepo/internal/gitid"

// RepoData holds one repo's (top or sub) thin-commit table plus its
// fast-import dedup cache (spec §3's RepoData, §9's "committer-independent
// dedup").
type RepoData struct {
	URL         string
	ThinCommits map[gitid.CommitId]*ThinCommit
	// DedupCache maps a commit's dedup key (everything but the committer
	// block) to the most recently imported/exported commit id for that key.
	DedupCache map[DedupKey]gitid.CommitId
}

// NewRepoData creates an empty RepoData for a freshly configured repo URL.
func NewRepoData(url string) *RepoData {
	return &RepoData{
		URL:         url,
		ThinCommits: make(map[gitid.CommitId]*ThinCommit),
		DedupCache:  make(map[DedupKey]gitid.CommitId),
	}
}

// DedupKey identifies a commit's content ignoring committer identity: author,
// tree, parents and message all participate (spec §9).
type DedupKey string

// TopRepoCache is the durable, serialisable commit-graph cache: component A
// of spec §4.1. It is the sole mutator's exclusive state for the duration of
// a run (spec §5: no locks required, no concurrent mutator).
type TopRepoCache struct {
	Repos map[gitid.RepoName]*RepoData

	// MonorepoCommits and MonorepoCommitIds form the Rc<->id bijection of
	// spec §3. Go pointers are already comparable and hashable as map keys,
	// so the identity-keyed reverse lookup is a plain
	// map[*MonoRepoCommit]gitid.CommitId - no RcKey wrapper is needed the
	// way the Rust original required one.
	MonorepoCommits   map[gitid.CommitId]*MonoRepoCommit
	MonorepoCommitIds map[*MonoRepoCommit]gitid.CommitId

	// TopToMono is the expansion memo: top_to_mono_map[c] exists iff c's
	// entire ancestry has been expanded (spec invariant 1).
	TopToMono map[gitid.CommitId]*MonoRepoCommit
}

// NewTopRepoCache builds an empty cache.
func NewTopRepoCache() *TopRepoCache {
	return &TopRepoCache{
		Repos:             make(map[gitid.RepoName]*RepoData),
		MonorepoCommits:   make(map[gitid.CommitId]*MonoRepoCommit),
		MonorepoCommitIds: make(map[*MonoRepoCommit]gitid.CommitId),
		TopToMono:         make(map[gitid.CommitId]*MonoRepoCommit),
	}
}

// RepoDataFor returns (creating if absent) the per-repo state for name.
func (c *TopRepoCache) RepoDataFor(name gitid.RepoName, url string) *RepoData {
	rd, ok := c.Repos[name]
	if !ok {
		rd = NewRepoData(url)
		c.Repos[name] = rd
	}
	return rd
}

// ContainsTop reports whether a top commit has already been expanded.
func (c *TopRepoCache) ContainsTop(id gitid.CommitId) bool {
	_, ok := c.TopToMono[id]
	return ok
}

// GetMono looks up an already-imported mono commit by its written id.
func (c *TopRepoCache) GetMono(id gitid.CommitId) (*MonoRepoCommit, bool) {
	m, ok := c.MonorepoCommits[id]
	return m, ok
}

// InsertThin registers a newly built ThinCommit for repo.
func (c *TopRepoCache) InsertThin(repo gitid.RepoName, url string, commit *ThinCommit) {
	rd := c.RepoDataFor(repo, url)
	rd.ThinCommits[commit.CommitId] = commit
}

// InsertMono registers a freshly imported mono commit under its written id,
// and records the identity->id reverse mapping.
func (c *TopRepoCache) InsertMono(id gitid.CommitId, commit *MonoRepoCommit) {
	c.MonorepoCommits[id] = commit
	c.MonorepoCommitIds[commit] = id
}

// RecordTopToMono memoises the expansion result for a top commit.
func (c *TopRepoCache) RecordTopToMono(topId gitid.CommitId, mono *MonoRepoCommit) {
	c.TopToMono[topId] = mono
}

// IdOf returns the written id of a mono commit node, if it has been
// imported yet.
func (c *TopRepoCache) IdOf(m *MonoRepoCommit) (gitid.CommitId, bool) {
	id, ok := c.MonorepoCommitIds[m]
	return id, ok
}
