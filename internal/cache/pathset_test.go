package cache

import (
	"reflect"
	"testing"

	"github.com/albinvass/git-toprepo/internal/gitid"
)

func TestPathSetCopyOnWrite(t *testing.T) {
	base := EmptyPathSet()
	withA := base.WithInsert(gitid.NewGitPath("libs/a"))
	withAB := withA.WithInsert(gitid.NewGitPath("libs/b"))

	if base.Len() != 0 {
		t.Errorf("original empty set mutated, len=%d", base.Len())
	}
	if withA.Len() != 1 || !withA.Contains(gitid.NewGitPath("libs/a")) {
		t.Errorf("withA = %+v", withA.Paths())
	}
	if withAB.Len() != 2 {
		t.Errorf("withAB.Len() = %d, want 2", withAB.Len())
	}
	// withA must be untouched by the later insert building withAB.
	if withA.Len() != 1 {
		t.Errorf("withA mutated after deriving withAB, len=%d", withA.Len())
	}

	withoutA := withAB.WithRemove(gitid.NewGitPath("libs/a"))
	if withoutA.Len() != 1 || withoutA.Contains(gitid.NewGitPath("libs/a")) {
		t.Errorf("withoutA = %+v", withoutA.Paths())
	}
	if withAB.Len() != 2 {
		t.Errorf("withAB mutated by WithRemove, len=%d", withAB.Len())
	}

	got := withoutA.WithRemove(gitid.NewGitPath("libs/b"))
	if got != emptyPathSet {
		t.Errorf("removing the last member should collapse to the shared empty set")
	}
}

func TestPathSetPathsSorted(t *testing.T) {
	s := EmptyPathSet().WithInsert(gitid.NewGitPath("z")).WithInsert(gitid.NewGitPath("a")).WithInsert(gitid.NewGitPath("m"))
	want := []gitid.GitPath{gitid.NewGitPath("a"), gitid.NewGitPath("m"), gitid.NewGitPath("z")}
	if got := s.Paths(); !reflect.DeepEqual(got, want) {
		t.Errorf("Paths() = %v, want %v", got, want)
	}
}
