// Package splitter implements component D of spec §4.4: walking newly
// authored mono commits, grouping their file changes by owning repo via the
// resolver package, and emitting one commit per repo ready to push.
package splitter

import (
	"fmt"
	"sort"

	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/utils/merkletrie"

	"github.com/albinvass/git-toprepo/internal/cache"
	"github.com/albinvass/git-toprepo/internal/config"
	"github.com/albinvass/git-toprepo/internal/gitid"
	"github.com/albinvass/git-toprepo/internal/gitstore"
	"github.com/albinvass/git-toprepo/internal/resolver"
	"github.com/albinvass/git-toprepo/internal/tlog"
)

// Splitter holds the collaborators needed to split mono commits back into
// per-repo commits: the shared store, the URL->name config, the dedup
// cache, and a logger.
type Splitter struct {
	Store *gitstore.Store
	Cfg   *config.Store
	Cache *cache.TopRepoCache
	Log   tlog.Logger
}

func New(store *gitstore.Store, cfg *config.Store, c *cache.TopRepoCache, log tlog.Logger) *Splitter {
	return &Splitter{Store: store, Cfg: cfg, Cache: c, Log: log}
}

// QueueEntry is one pending push: a commit newly built for PushURL, with its
// topic (possibly empty) and the parent ids it was built on top of.
type QueueEntry struct {
	RepoName    gitid.RepoName
	PushURL     string
	Topic       string
	NewCommitId gitid.CommitId
	ParentIds   []gitid.CommitId
}

type groupKey struct {
	repo gitid.RepoName
	url  string
}

// Split walks every mono commit reachable from tip but not from any id in
// stop, oldest first, and emits a push-queue entry per (commit, repo) group.
// tips holds the last known pushed commit id per repo, consulted for parent
// linkage and updated in place as new per-repo commits are built, so a run
// that splits several commits in a row chains them correctly.
func (s *Splitter) Split(tip gitid.CommitId, stop map[gitid.CommitId]bool, tips map[gitid.RepoName]gitid.CommitId, baseURL string) ([]QueueEntry, error) {
	commits, err := s.collectRange(tip, stop)
	if err != nil {
		return nil, err
	}
	var queue []QueueEntry
	for _, commit := range commits {
		entries, err := s.splitCommit(commit, tips, baseURL)
		if err != nil {
			return nil, fmt.Errorf("split %s: %w", commit.Hash, err)
		}
		queue = append(queue, entries...)
	}
	return collapseRedundant(queue), nil
}

// collectRange performs the same iterative, stack-based DFS postorder walk
// as the expander's frontier, but over real, already-written commits rather
// than ThinCommits, since split operates on commits a human authored
// directly against the mono history.
func (s *Splitter) collectRange(tip gitid.CommitId, stop map[gitid.CommitId]bool) ([]*object.Commit, error) {
	type frame struct {
		id       gitid.CommitId
		visiting bool
	}
	visited := map[gitid.CommitId]bool{}
	var order []*object.Commit
	stack := []frame{{id: tip}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		if visited[top.id] || stop[top.id] {
			stack = stack[:len(stack)-1]
			continue
		}
		commit, err := s.Store.Commit(top.id)
		if err != nil {
			return nil, fmt.Errorf("read commit %s: %w", top.id, err)
		}
		if top.visiting {
			visited[top.id] = true
			order = append(order, commit)
			stack = stack[:len(stack)-1]
			continue
		}
		stack[len(stack)-1].visiting = true
		for _, ph := range commit.ParentHashes {
			pid := gitid.NewCommitId(ph)
			if !visited[pid] && !stop[pid] {
				stack = append(stack, frame{id: pid})
			}
		}
	}
	return order, nil
}

func (s *Splitter) splitCommit(commit *object.Commit, tips map[gitid.RepoName]gitid.CommitId, baseURL string) ([]QueueEntry, error) {
	tree, err := commit.Tree()
	if err != nil {
		return nil, err
	}
	var parentTree *object.Tree
	if len(commit.ParentHashes) > 0 {
		pc, err := s.Store.Commit(gitid.NewCommitId(commit.ParentHashes[0]))
		if err != nil {
			return nil, fmt.Errorf("read parent %s: %w", commit.ParentHashes[0], err)
		}
		parentTree, err = pc.Tree()
		if err != nil {
			return nil, err
		}
	} else {
		parentTree = &object.Tree{}
	}

	changes, err := parentTree.Diff(tree)
	if err != nil {
		return nil, fmt.Errorf("diff: %w", err)
	}

	groups := map[groupKey][]fileChange{}
	var keys []groupKey
	for _, change := range changes {
		action, err := change.Action()
		if err != nil {
			return nil, err
		}
		var path gitid.GitPath
		if change.To.Name != "" {
			path = gitid.NewGitPath(change.To.Name)
		} else {
			path = gitid.NewGitPath(change.From.Name)
		}
		res, err := resolver.Resolve(s.Store, s.Cfg, tree, path, baseURL)
		if err != nil {
			return nil, err
		}
		key := groupKey{repo: res.RepoName, url: res.PushURL}
		fc := fileChange{Path: res.RelPath}
		switch action {
		case merkletrie.Delete:
			fc.Deleted = true
		default:
			fc.Mode = change.To.TreeEntry.Mode
			fc.Hash = change.To.TreeEntry.Hash
		}
		if _, seen := groups[key]; !seen {
			keys = append(keys, key)
		}
		groups[key] = append(groups[key], fc)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].repo.String() != keys[j].repo.String() {
			return keys[i].repo.String() < keys[j].repo.String()
		}
		return keys[i].url < keys[j].url
	})

	topic, body := ParseMessage(commit.Message)
	if len(keys) > 1 && topic == "" {
		return nil, fmt.Errorf("multiple submodules changed but no topic in commit %s", commit.Hash)
	}

	var out []QueueEntry
	for _, key := range keys {
		entry, err := s.emitGroup(commit, key, groups[key], tips, topic, body)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

func (s *Splitter) emitGroup(commit *object.Commit, key groupKey, changes []fileChange, tips map[gitid.RepoName]gitid.CommitId, topic, body string) (QueueEntry, error) {
	var base *object.Tree
	var parentIds []gitid.CommitId
	if prevId, ok := tips[key.repo]; ok {
		prev, err := s.Store.Commit(prevId)
		if err != nil {
			return QueueEntry{}, fmt.Errorf("read previous tip %s: %w", prevId, err)
		}
		base, err = prev.Tree()
		if err != nil {
			return QueueEntry{}, err
		}
		parentIds = []gitid.CommitId{prevId}
	}

	treeHash, err := applyChanges(s.Store, base, changes)
	if err != nil {
		return QueueEntry{}, err
	}

	rd := s.Cache.RepoDataFor(key.repo, key.url)
	dedupKey := cache.DedupKey(fmt.Sprintf("%s\x00%s\x00%v\x00%s", commit.Author.String(), treeHash.String(), parentIds, body))
	if existing, ok := rd.DedupCache[dedupKey]; ok {
		tips[key.repo] = existing
		return QueueEntry{RepoName: key.repo, PushURL: key.url, Topic: topic, NewCommitId: existing, ParentIds: parentIds}, nil
	}

	out := &object.Commit{
		Author:       commit.Author,
		Committer:    commit.Committer,
		Message:      body,
		TreeHash:     treeHash,
	}
	for _, p := range parentIds {
		out.ParentHashes = append(out.ParentHashes, p.Hash())
	}
	h, err := s.Store.StoreCommit(out)
	if err != nil {
		return QueueEntry{}, err
	}
	newId := gitid.NewCommitId(h)
	rd.DedupCache[dedupKey] = newId
	tips[key.repo] = newId

	return QueueEntry{RepoName: key.repo, PushURL: key.url, Topic: topic, NewCommitId: newId, ParentIds: parentIds}, nil
}

// collapseRedundant implements spec §4.4's reverse-iterate-and-retain
// collapse: walking the queue from newest to oldest, an entry is dropped
// once a later (already kept) push for the same (url, topic) has the
// entry's commit as one of its ancestors, since that later push already
// carries this one's content.
func collapseRedundant(queue []QueueEntry) []QueueEntry {
	type urlTopic struct {
		url, topic string
	}
	coveredAncestors := map[urlTopic]map[gitid.CommitId]bool{}
	var kept []QueueEntry
	for i := len(queue) - 1; i >= 0; i-- {
		e := queue[i]
		key := urlTopic{e.PushURL, e.Topic}
		covered := coveredAncestors[key]
		if covered != nil && covered[e.NewCommitId] {
			for _, p := range e.ParentIds {
				covered[p] = true
			}
			continue
		}
		kept = append(kept, e)
		if covered == nil {
			covered = map[gitid.CommitId]bool{}
			coveredAncestors[key] = covered
		}
		covered[e.NewCommitId] = true
		for _, p := range e.ParentIds {
			covered[p] = true
		}
	}
	// reverse back into original (oldest-first) order
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return kept
}
