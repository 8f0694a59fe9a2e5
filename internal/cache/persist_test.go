package cache

import (
	"testing"

	"github.com/albinvass/git-toprepo/internal/gitid"
)

func TestMarshalLoadRoundTripsThinCommitsWithParentAndDedup(t *testing.T) {
	c := NewTopRepoCache()
	subName := gitid.SubRepo("sub-a")
	rd := c.RepoDataFor(subName, "https://example.com/sub-a.git")

	root := NewThinCommit(commitId(1), gitid.TreeId{}, nil, nil, nil)
	rd.ThinCommits[root.CommitId] = root
	child := NewThinCommit(commitId(2), gitid.TreeId{}, []*ThinCommit{root}, nil, nil)
	rd.ThinCommits[child.CommitId] = child
	rd.DedupCache[DedupKey("some-dedup-key")] = child.CommitId

	data, err := c.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	loaded, err := LoadTopRepoCache(data)
	if err != nil {
		t.Fatalf("LoadTopRepoCache: %v", err)
	}

	loadedRd, ok := loaded.Repos[subName]
	if !ok {
		t.Fatalf("expected repo %v to survive round trip", subName)
	}
	loadedRoot, ok := loadedRd.ThinCommits[root.CommitId]
	if !ok {
		t.Fatalf("expected root commit to survive round trip")
	}
	if loadedRoot.Depth != 0 {
		t.Errorf("loaded root Depth = %d, want 0 (recomputed, not persisted)", loadedRoot.Depth)
	}
	loadedChild, ok := loadedRd.ThinCommits[child.CommitId]
	if !ok {
		t.Fatalf("expected child commit to survive round trip")
	}
	if loadedChild.Depth != 1 {
		t.Errorf("loaded child Depth = %d, want 1", loadedChild.Depth)
	}
	if len(loadedChild.Parents) != 1 || loadedChild.Parents[0] != loadedRoot {
		t.Errorf("loaded child's parent should be the same reconstructed root instance")
	}
	if got, ok := loadedRd.DedupCache[DedupKey("some-dedup-key")]; !ok || got != child.CommitId {
		t.Errorf("DedupCache[some-dedup-key] = %v, %v; want %v, true", got, ok, child.CommitId)
	}
}

func TestMarshalLoadRoundTripsMonoCommitsWithMixedParentsAndTopToMono(t *testing.T) {
	c := NewTopRepoCache()
	c.RepoDataFor(gitid.Top, "https://example.com/top.git")

	topId := commitId(10)
	subCommitId := commitId(20)
	path := gitid.NewGitPath("libs/a")
	subRepo := gitid.SubRepo("sub-a")

	root := NewMonoRepoCommit(nil, &topId, []MonoPathBump{{
		Path: path,
		Bump: ExpandedOrRemoved{Submod: ExpandedSubmodule{Kind: Expanded, RepoName: subRepo, CommitId: subCommitId}},
	}})
	rootId := commitId(11)
	c.InsertMono(rootId, root)
	c.RecordTopToMono(topId, root)

	graftTopId := commitId(30)
	grafted := NewMonoRepoCommit([]MonoRepoParent{
		{Kind: ParentMono, Mono: root},
		{Kind: ParentOriginalSubmod, SubmodPath: path, SubmodCommitId: subCommitId},
	}, &graftTopId, nil)
	graftedId := commitId(31)
	c.InsertMono(graftedId, grafted)
	c.RecordTopToMono(graftTopId, grafted)

	data, err := c.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	loaded, err := LoadTopRepoCache(data)
	if err != nil {
		t.Fatalf("LoadTopRepoCache: %v", err)
	}

	loadedRoot, ok := loaded.GetMono(rootId)
	if !ok {
		t.Fatalf("expected root mono commit to survive round trip")
	}
	if loadedRoot.Depth != 0 {
		t.Errorf("loaded root Depth = %d, want 0", loadedRoot.Depth)
	}
	if !loadedRoot.SubmodulePaths.Contains(path) {
		t.Errorf("expected SubmodulePaths to be recomputed to include %v", path)
	}

	loadedGrafted, ok := loaded.GetMono(graftedId)
	if !ok {
		t.Fatalf("expected grafted mono commit to survive round trip")
	}
	if len(loadedGrafted.Parents) != 2 {
		t.Fatalf("loaded grafted commit should have 2 parents, got %d", len(loadedGrafted.Parents))
	}
	if loadedGrafted.Parents[0].Kind != ParentMono || loadedGrafted.Parents[0].Mono != loadedRoot {
		t.Errorf("loaded grafted commit's first parent should be the reconstructed root instance")
	}
	if loadedGrafted.Parents[1].Kind != ParentOriginalSubmod ||
		loadedGrafted.Parents[1].SubmodPath != path ||
		loadedGrafted.Parents[1].SubmodCommitId != subCommitId {
		t.Errorf("loaded grafted commit's second parent = %+v, want the original submodule graft edge", loadedGrafted.Parents[1])
	}

	if mono, ok := loaded.TopToMono[topId]; !ok || mono != loadedRoot {
		t.Errorf("TopToMono[topId] should resolve to the reconstructed root instance")
	}
	if mono, ok := loaded.TopToMono[graftTopId]; !ok || mono != loadedGrafted {
		t.Errorf("TopToMono[graftTopId] should resolve to the reconstructed grafted instance")
	}
}

func TestLoadTopRepoCacheOnEmptyDataReturnsFreshCache(t *testing.T) {
	c, err := LoadTopRepoCache(nil)
	if err != nil {
		t.Fatalf("LoadTopRepoCache(nil): %v", err)
	}
	if len(c.Repos) != 0 || len(c.MonorepoCommits) != 0 || len(c.TopToMono) != 0 {
		t.Errorf("expected a fresh, empty cache for nil input, got %+v", c)
	}
}
