// Package config implements the URL -> canonical sub-repo name table backing
// .gittoprepo.toml, the "config store" collaborator of spec §1: callers
// resolve a submodule URL to a stable RepoName, registering a fresh name the
// first time a URL is seen.
package config

import (
	"fmt"
	"sort"
	"sync"

	"github.com/pelletier/go-toml/v2"

	"github.com/albinvass/git-toprepo/internal/gitid"
)

// Repo is one [repo.<name>] table: the canonical name plus every URL that
// has been observed to refer to it.
type Repo struct {
	URLs []string `toml:"urls"`
}

// fileFormat is the on-disk .gittoprepo.toml shape.
type fileFormat struct {
	Repo map[string]Repo `toml:"repo"`
}

// Store is the in-memory, mutable config: URL -> canonical sub-repo name.
// Every method after Load takes the mutex that guards its maps, so a Store
// may be read and mutated from more than one goroutine.
type Store struct {
	mu       sync.Mutex
	urlToRepo map[string]string
	repoURLs  map[string][]string
}

// Load parses .gittoprepo.toml content. Missing/empty content yields an
// empty store.
func Load(data []byte) (*Store, error) {
	s := &Store{
		urlToRepo: make(map[string]string),
		repoURLs:  make(map[string][]string),
	}
	if len(data) == 0 {
		return s, nil
	}
	var f fileFormat
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse .gittoprepo.toml: %w", err)
	}
	for name, repo := range f.Repo {
		s.repoURLs[name] = append([]string(nil), repo.URLs...)
		for _, u := range repo.URLs {
			s.urlToRepo[u] = name
		}
	}
	return s, nil
}

// Marshal serialises the store back to .gittoprepo.toml bytes, with repos
// and their URLs sorted for a stable diff.
func (s *Store) Marshal() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := fileFormat{Repo: make(map[string]Repo, len(s.repoURLs))}
	for name, urls := range s.repoURLs {
		sorted := append([]string(nil), urls...)
		sort.Strings(sorted)
		f.Repo[name] = Repo{URLs: sorted}
	}
	out, err := toml.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("marshal .gittoprepo.toml: %w", err)
	}
	return out, nil
}

// Lookup returns the canonical sub-repo name for url, without inserting.
func (s *Store) Lookup(url string) (gitid.RepoName, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.urlToRepo[url]
	if !ok {
		return gitid.RepoName{}, false
	}
	return gitid.SubRepo(name), true
}

// CanonicalURL returns one registered URL for a given RepoName - the one it
// was first seen under - suitable as the fetch URL when a commit needs to be
// (re-)read for that repo. Returns ok=false if the repo is unknown.
func (s *Store) CanonicalURL(name gitid.RepoName) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, _ := name.SubName()
	urls, ok := s.repoURLs[sub]
	if !ok || len(urls) == 0 {
		return "", false
	}
	return urls[0], true
}

// GetOrInsert returns the canonical sub-repo name for url, registering url
// under a freshly derived name on first sight. The derivation mirrors what a
// human would type by hand: the last non-empty path segment of the URL,
// disambiguated with a numeric suffix on collision.
func (s *Store) GetOrInsert(url string) gitid.RepoName {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name, ok := s.urlToRepo[url]; ok {
		return gitid.SubRepo(name)
	}
	name := s.freshName(deriveName(url))
	s.urlToRepo[url] = name
	s.repoURLs[name] = append(s.repoURLs[name], url)
	return gitid.SubRepo(name)
}

func (s *Store) freshName(base string) string {
	if _, exists := s.repoURLs[base]; !exists {
		return base
	}
	for i := 2; ; i++ {
		candidate := fmt.Sprintf("%s-%d", base, i)
		if _, exists := s.repoURLs[candidate]; !exists {
			return candidate
		}
	}
}

func deriveName(url string) string {
	end := len(url)
	for end > 0 && url[end-1] == '/' {
		end--
	}
	start := end
	for start > 0 && url[start-1] != '/' && url[start-1] != ':' {
		start--
	}
	name := url[start:end]
	name = trimSuffix(name, ".git")
	if name == "" {
		return "repo"
	}
	return name
}

func trimSuffix(s, suffix string) string {
	if len(s) > len(suffix) && s[len(s)-len(suffix):] == suffix {
		return s[:len(s)-len(suffix)]
	}
	return s
}
