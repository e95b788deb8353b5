package vcs

import (
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIgnoreGlobs excludes dependency locks, VCS metadata, build output and media.
var DefaultIgnoreGlobs = []string{
	"node_modules",
	".git",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/bun.lockb",
	"**/go.sum",
	"**/dist",
	"**/*.png",
	"**/*.jpg",
	"**/*.jpeg",
	"**/*.svg",
	"**/*.gif",
	"**/*.ico",
	"**/*.pdf",
	"**/*.zip",
	"**/*.mp4",
	"**/*.mp3",
	"**/*.avi",
	"**/*.mov",
}

// IgnoreMatcher decides which repository paths are skipped during loading.
type IgnoreMatcher struct {
	patterns []string
}

// NewIgnoreMatcher builds a matcher from doublestar patterns. As in
// .gitignore, a pattern without a slash matches at any depth. Invalid
// patterns are dropped.
func NewIgnoreMatcher(patterns []string) *IgnoreMatcher {
	valid := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.Trim(strings.TrimSpace(p), "/")
		if p == "" || !doublestar.ValidatePattern(p) {
			continue
		}
		if !strings.Contains(p, "/") {
			p = "**/" + p
		}
		valid = append(valid, p)
	}
	return &IgnoreMatcher{patterns: valid}
}

// Match reports whether the path, or any directory containing it, matches a pattern.
// A pattern naming a directory therefore excludes everything beneath it.
func (m *IgnoreMatcher) Match(filePath string) bool {
	p := strings.Trim(path.Clean(filePath), "/")
	for p != "." && p != "" {
		for _, pattern := range m.patterns {
			if ok, _ := doublestar.Match(pattern, p); ok {
				return true
			}
		}
		p = path.Dir(p)
	}
	return false
}
