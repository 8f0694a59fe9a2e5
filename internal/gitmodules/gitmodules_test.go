package gitmodules

import (
	"testing"

	"github.com/albinvass/git-toprepo/internal/gitid"
)

const sample = `[submodule "libs/a"]
	path = libs/a
	url = ../a.git
[submodule "libs/b"]
	path = libs/b
	url = https://example.com/b.git
`

func TestParse(t *testing.T) {
	info, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	entries := info.Entries()
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].Path != gitid.NewGitPath("libs/a") || entries[0].URL != "../a.git" {
		t.Errorf("entries[0] = %+v", entries[0])
	}
	if entries[1].Path != gitid.NewGitPath("libs/b") || entries[1].URL != "https://example.com/b.git" {
		t.Errorf("entries[1] = %+v", entries[1])
	}
}

func TestEmpty(t *testing.T) {
	info, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse(nil): %v", err)
	}
	if len(info.Entries()) != 0 {
		t.Errorf("expected no entries for empty input")
	}
	if _, ok := info.Lookup(gitid.NewGitPath("anything")); ok {
		t.Errorf("Lookup on empty Info should not find anything")
	}
}

func TestContainingSubmodule(t *testing.T) {
	info, err := Parse([]byte(sample))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	entry, ok := info.ContainingSubmodule(gitid.NewGitPath("libs/a/file.txt"))
	if !ok {
		t.Fatalf("expected libs/a/file.txt to resolve inside libs/a")
	}
	if entry.Name != "libs/a" {
		t.Errorf("got entry %+v", entry)
	}
	if _, ok := info.ContainingSubmodule(gitid.NewGitPath("libs/ax")); ok {
		t.Errorf("libs/ax must not match the libs/a submodule")
	}
	if _, ok := info.ContainingSubmodule(gitid.NewGitPath("other/file.txt")); ok {
		t.Errorf("unrelated path should not resolve to a submodule")
	}
}
