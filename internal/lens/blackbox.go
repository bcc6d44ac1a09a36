package lens

import (
	"log/slog"
	"net/url"
	"strings"

	"github.com/gobwas/glob"

	lenserrors "typelens/internal/errors"
)

// Blackbox matches reference locations against the configured path globs.
type Blackbox struct {
	patterns []string
	globs    []glob.Glob
	invalid  []*lenserrors.LensError
}

// CompileBlackbox compiles patterns with '/' as the separator. Patterns that
// fail to compile are logged and skipped.
func CompileBlackbox(patterns []string, logger *slog.Logger) *Blackbox {
	b := &Blackbox{patterns: patterns}
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			lerr := lenserrors.NewLensError(lenserrors.InvalidPattern, "blackbox pattern does not compile", err, nil).
				WithDetails(map[string]string{"pattern": p})
			b.invalid = append(b.invalid, lerr)
			if logger != nil {
				logger.Warn("skipping blackbox pattern",
					"pattern", p,
					"code", lerr.Code,
					"error", err,
				)
			}
			continue
		}
		b.globs = append(b.globs, g)
	}
	return b
}

// Len returns the number of usable patterns.
func (b *Blackbox) Len() int {
	return len(b.globs)
}

// Invalid returns the patterns that were skipped.
func (b *Blackbox) Invalid() []*lenserrors.LensError {
	return b.invalid
}

// Match reports whether the path of uri matches any pattern.
func (b *Blackbox) Match(uri string) bool {
	if len(b.globs) == 0 {
		return false
	}
	path := uriPath(uri)
	for _, g := range b.globs {
		if g.Match(path) {
			return true
		}
	}
	return false
}

// uriPath returns the path component of uri, or uri itself when it is a
// bare path.
func uriPath(uri string) string {
	if !strings.Contains(uri, "://") && !strings.HasPrefix(uri, "file:") {
		return uri
	}
	u, err := url.Parse(uri)
	if err != nil || u.Path == "" {
		return uri
	}
	return u.Path
}
