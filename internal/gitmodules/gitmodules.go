// Package gitmodules parses the content of a .gitmodules blob into a
// path -> URL mapping and answers submodule-containment queries.
package gitmodules

import (
	"bytes"
	"fmt"
	"sort"
	"strings"

	gitcfg "github.com/go-git/go-git/v5/plumbing/format/config"

	"github.com/albinvass/git-toprepo/internal/gitid"
)

// Entry is one [submodule "name"] stanza.
type Entry struct {
	Name string
	Path gitid.GitPath
	URL  string
}

// Info is the parsed content of a single .gitmodules file, sorted by path so
// that containment queries are deterministic.
type Info struct {
	entries []Entry
}

// Parse decodes the raw bytes of a .gitmodules blob. An empty/missing file
// parses to an Info with no entries.
func Parse(data []byte) (*Info, error) {
	cfg := gitcfg.New()
	if len(data) > 0 {
		if err := gitcfg.NewDecoder(bytes.NewReader(data)).Decode(cfg); err != nil {
			return nil, fmt.Errorf("parse .gitmodules: %w", err)
		}
	}
	sec := cfg.Section("submodule")
	entries := make([]Entry, 0, len(sec.Subsections))
	for _, sub := range sec.Subsections {
		p := sub.Option("path")
		url := sub.Option("url")
		if p == "" {
			// A submodule stanza without a path cannot be resolved against a
			// tree; skip it rather than guessing.
			continue
		}
		entries = append(entries, Entry{
			Name: sub.Name,
			Path: gitid.NewGitPath(p),
			URL:  url,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Path < entries[j].Path
	})
	return &Info{entries: entries}, nil
}

// Empty returns a parsed Info with no submodule entries.
func Empty() *Info { return &Info{} }

// Lookup returns the entry mounted exactly at path, if any.
func (i *Info) Lookup(p gitid.GitPath) (Entry, bool) {
	for _, e := range i.entries {
		if e.Path == p {
			return e, true
		}
	}
	return Entry{}, false
}

// ContainingSubmodule returns the submodule entry whose mount path is a
// prefix of (or equal to) rel, i.e. the configured submodule that owns rel.
// Git does not support nesting two submodules at overlapping paths in a
// single .gitmodules file, so at most one entry can match.
func (i *Info) ContainingSubmodule(rel gitid.GitPath) (Entry, bool) {
	for _, e := range i.entries {
		s := string(e.Path)
		r := string(rel)
		if r == s || strings.HasPrefix(r, s+"/") {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries returns all parsed entries, sorted by path.
func (i *Info) Entries() []Entry {
	return i.entries
}
