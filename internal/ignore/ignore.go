// Package ignore implements gitignore-style path exclusion for the initial
// scan and the event pipeline, so entries a replica's owner never wants
// replicated (build output, VCS metadata, editor swap files) are never
// materialized into the replicated tree in the first place.
//
// Grounded on the teacher's
// pkg/synchronization/core/ignore/mutagen/ignore.go: the same pattern
// grammar (an optional "!" negation prefix, an optional leading "/" to
// anchor a pattern to the scan root, an optional trailing "/" to restrict a
// pattern to directories, doublestar glob matching otherwise), trimmed down
// to the single default syntax — this spec has no Git/Docker ignore-syntax
// selection surface to support the others.
package ignore

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/pkg/errors"
)

// pattern is a single parsed ignore rule.
type pattern struct {
	negated       bool
	directoryOnly bool
	matchLeaf     bool
	glob          string
}

// cleanPreservingTrailingSlash runs path.Clean while keeping a trailing
// slash, since that slash is meaningful (directory-only) ignore syntax.
func cleanPreservingTrailingSlash(p string) string {
	trailing := len(p) > 1 && p[len(p)-1] == '/'
	cleaned := path.Clean(p)
	if trailing {
		return cleaned + "/"
	}
	return cleaned
}

func newPattern(raw string) (*pattern, error) {
	if raw == "" {
		return nil, errors.New("empty pattern")
	}

	negated := false
	if raw[0] == '!' {
		negated = true
		raw = raw[1:]
	}
	if raw == "" {
		return nil, errors.New("negated empty pattern")
	}

	raw = cleanPreservingTrailingSlash(raw)
	if raw == "/" || raw == "//" {
		return nil, errors.New("pattern cannot target the replica root")
	}

	absolute := false
	if raw[0] == '/' {
		absolute = true
		raw = raw[1:]
	}

	directoryOnly := false
	if raw[len(raw)-1] == '/' {
		directoryOnly = true
		raw = raw[:len(raw)-1]
	}

	containsSlash := strings.IndexByte(raw, '/') >= 0

	if _, err := doublestar.Match(raw, "a"); err != nil {
		return nil, errors.Wrap(err, "invalid glob")
	}

	return &pattern{
		negated:       negated,
		directoryOnly: directoryOnly,
		matchLeaf:     !absolute && !containsSlash,
		glob:          raw,
	}, nil
}

// matches reports whether relPath (slash-separated, relative to the
// replica's home) is matched by this pattern.
func (p *pattern) matches(relPath string, isDir bool) bool {
	if p.directoryOnly && !isDir {
		return false
	}
	if ok, _ := doublestar.Match(p.glob, relPath); ok {
		return true
	}
	if p.matchLeaf && relPath != "" {
		if ok, _ := doublestar.Match(p.glob, path.Base(relPath)); ok {
			return true
		}
	}
	return false
}

// Matcher decides whether a replica-relative path should be excluded from
// the replicated tree. Later patterns take precedence over earlier ones, so
// a negated pattern can carve an exception out of an earlier broad rule.
type Matcher struct {
	patterns []*pattern
}

// New parses patterns into a Matcher. A Matcher built from a nil or empty
// slice never ignores anything; so does a nil *Matcher, so callers with no
// configured patterns can pass one around without a special case.
func New(patterns []string) (*Matcher, error) {
	parsed := make([]*pattern, 0, len(patterns))
	for _, raw := range patterns {
		p, err := newPattern(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid ignore pattern %q", raw)
		}
		parsed = append(parsed, p)
	}
	return &Matcher{patterns: parsed}, nil
}

// Ignored reports whether relPath should be excluded from scanning.
func (m *Matcher) Ignored(relPath string, isDir bool) bool {
	if m == nil {
		return false
	}
	ignored := false
	for _, p := range m.patterns {
		if p.matches(relPath, isDir) {
			ignored = !p.negated
		}
	}
	return ignored
}
