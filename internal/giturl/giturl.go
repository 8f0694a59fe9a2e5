// Package giturl implements git's relative-submodule-url join semantics:
// a submodule URL starting with "./" or "../" is resolved against its
// containing repository's URL, each "../" removing one trailing path
// component of that URL, the same way `git submodule` resolves relative URLs
// recursively for nested submodules.
package giturl

import (
	"path"
	"strings"
)

// Join resolves sub against base. If sub is not relative (does not start
// with "./" or "../"), sub is returned unchanged - it is already absolute
// (a full URL or an absolute local path).
func Join(base, sub string) string {
	if !isRelative(sub) {
		return sub
	}
	scheme, rest, hasScheme := splitScheme(base)
	joined := path.Join(strings.TrimSuffix(rest, "/"), sub)
	if !hasScheme {
		return joined
	}
	if strings.HasSuffix(scheme, ":") && !strings.HasSuffix(scheme, "://") {
		// scp-like syntax carries no leading slash in its path component.
		return scheme + strings.TrimPrefix(joined, "/")
	}
	return scheme + joined
}

func isRelative(u string) bool {
	return strings.HasPrefix(u, "./") || strings.HasPrefix(u, "../") || u == "." || u == ".."
}

// splitScheme splits off a "scheme://host" or "user@host:" style prefix so
// that path.Join only ever operates on the path component. Returns
// hasScheme=false for plain local paths.
func splitScheme(u string) (scheme, rest string, hasScheme bool) {
	if i := strings.Index(u, "://"); i >= 0 {
		// scheme://host/path -> split after the first '/' following the host.
		afterScheme := u[i+3:]
		if j := strings.Index(afterScheme, "/"); j >= 0 {
			return u[:i+3] + afterScheme[:j], afterScheme[j:], true
		}
		return u[:i+3] + afterScheme, "/", true
	}
	if i := strings.Index(u, ":"); i >= 0 && !strings.HasPrefix(u, "/") {
		// scp-like syntax, e.g. git@host:path/to/repo.git
		host := u[:i]
		p := u[i+1:]
		if !strings.HasPrefix(p, "/") {
			p = "/" + p
		}
		return host + ":", p, true
	}
	return "", u, false
}
