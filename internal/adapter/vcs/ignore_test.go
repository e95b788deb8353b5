package vcs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultIgnoreGlobs(t *testing.T) {
	m := NewIgnoreMatcher(DefaultIgnoreGlobs)

	ignored := []string{
		"package-lock.json",
		"web/package-lock.json",
		"yarn.lock",
		"apps/site/pnpm-lock.yaml",
		"bun.lockb",
		".git/config",
		"node_modules/react/index.js",
		"packages/web/node_modules/react/index.js",
		"vendor/sub/.git/config",
		"dist/bundle.js",
		"packages/ui/dist/index.js",
		"public/logo.png",
		"docs/manual.pdf",
		"assets/intro.mp4",
		"favicon.ico",
	}
	for _, p := range ignored {
		assert.True(t, m.Match(p), "expected %s to be ignored", p)
	}

	kept := []string{
		"main.go",
		"src/auth/login.ts",
		"README.md",
		"distribution/notes.md",
		"lock.go",
	}
	for _, p := range kept {
		assert.False(t, m.Match(p), "expected %s to be kept", p)
	}
}

func TestIgnoreMatcherBarePatternsMatchAtAnyDepth(t *testing.T) {
	m := NewIgnoreMatcher([]string{"coverage", "*.log"})

	assert.True(t, m.Match("coverage/index.html"))
	assert.True(t, m.Match("apps/api/coverage/lcov.info"))
	assert.True(t, m.Match("debug.log"))
	assert.True(t, m.Match("server/logs/debug.log"))
	assert.False(t, m.Match("src/coverage.go"))
}

func TestIgnoreMatcherDropsInvalidPatterns(t *testing.T) {
	m := NewIgnoreMatcher([]string{"[", "", "  ", "docs/**"})

	assert.True(t, m.Match("docs/guide/intro.md"))
	assert.False(t, m.Match("src/main.go"))
}
