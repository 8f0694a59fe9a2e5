// Package refs implements component E of spec §4.5: after expansion,
// materialise the mono view as ordinary refs (under refs/remotes/origin/
// for branches, refs/tags/ for tags), keep symbolic refs like HEAD in sync,
// and prune any origin ref that lost its top-namespace counterpart.
package refs

import (
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5/plumbing"

	"github.com/albinvass/git-toprepo/internal/gitid"
	"github.com/albinvass/git-toprepo/internal/gitstore"
	"github.com/albinvass/git-toprepo/internal/tlog"
)

const topNamespace = "refs/namespaces/top/"

// Reconciler applies the ref-reconciliation step over a store, translating
// top-namespace tips (already rewritten to mono commit ids by the caller)
// into the externally visible origin namespace.
type Reconciler struct {
	Store *gitstore.Store
	Log   tlog.Logger
}

func New(store *gitstore.Store, log tlog.Logger) *Reconciler {
	return &Reconciler{Store: store, Log: log}
}

// stripNamespace removes the top-repo ref namespace prefix, returning the
// bare upstream-shaped name (e.g. "refs/heads/main", "HEAD",
// "refs/tags/v1"), or ok=false if name is not under the top namespace.
func stripNamespace(name plumbing.ReferenceName) (string, bool) {
	s := string(name)
	if s == strings.TrimSuffix(topNamespace, "/")+"/HEAD" {
		return "HEAD", true
	}
	if strings.HasPrefix(s, topNamespace) {
		return strings.TrimPrefix(s, topNamespace), true
	}
	return "", false
}

// originName maps a stripped upstream ref name to the local origin-facing
// name: branches become remote-tracking refs under refs/remotes/origin/,
// HEAD maps to refs/remotes/origin/HEAD, and tags are kept under their own
// shared refs/tags/ namespace, mirroring ordinary git fetch behaviour.
func originName(stripped string) plumbing.ReferenceName {
	switch {
	case stripped == "HEAD":
		return plumbing.ReferenceName("refs/remotes/origin/HEAD")
	case strings.HasPrefix(stripped, "refs/heads/"):
		return plumbing.ReferenceName("refs/remotes/origin/" + strings.TrimPrefix(stripped, "refs/heads/"))
	default:
		return plumbing.ReferenceName(stripped)
	}
}

// MonoTip is one resolved top-namespace reference carrying a new mono
// commit id for the given original reference target (Object kind) or the
// raw symbolic target (Symbolic kind), as produced by the expander.
type MonoTip struct {
	Name       plumbing.ReferenceName
	Symbolic   bool
	MonoCommit gitid.CommitId      // valid iff !Symbolic
	Target     plumbing.ReferenceName // valid iff Symbolic
}

// Reconcile applies tips to the origin namespace: creates/updates the
// mapped origin ref for every concrete tip, creates/updates symbolic refs
// whose target is itself inside the top namespace (warning and skipping
// ones that point outside it), and deletes any origin ref under
// refs/remotes/origin/ or refs/tags/ that no longer corresponds to a tip.
func (r *Reconciler) Reconcile(tips []MonoTip) error {
	wanted := make(map[plumbing.ReferenceName]*plumbing.Reference, len(tips))
	for _, tip := range tips {
		stripped, ok := stripNamespace(tip.Name)
		if !ok {
			continue
		}
		origin := originName(stripped)
		if tip.Symbolic {
			targetStripped, ok := stripNamespace(tip.Target)
			if !ok {
				r.Log.Warning(fmt.Sprintf("symbolic ref %s points outside the top namespace (%s), skipping", tip.Name, tip.Target))
				continue
			}
			wanted[origin] = plumbing.NewSymbolicReference(origin, originName(targetStripped))
			continue
		}
		wanted[origin] = plumbing.NewHashReference(origin, tip.MonoCommit.Hash())
	}

	existing := map[plumbing.ReferenceName]*plumbing.Reference{}
	for _, prefix := range []string{"refs/remotes/origin/", "refs/tags/"} {
		refs, err := r.Store.ReferencesWithPrefix(prefix)
		if err != nil {
			return fmt.Errorf("reconcile: list %s: %w", prefix, err)
		}
		for _, ref := range refs {
			existing[ref.Name()] = ref
		}
	}

	var edits []gitstore.RefEdit
	for name, ref := range wanted {
		old := existing[name]
		edits = append(edits, gitstore.RefEdit{Name: name, New: ref, Old: old})
	}
	for name, old := range existing {
		if _, ok := wanted[name]; !ok {
			r.Log.Warning(fmt.Sprintf("deleting stale ref %s (no longer present upstream)", name))
			edits = append(edits, gitstore.RefEdit{Name: name, New: nil, Old: old})
		}
	}

	return r.Store.ApplyRefTransaction(edits)
}
