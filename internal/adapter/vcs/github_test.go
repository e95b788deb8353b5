package vcs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourpie/gitknow/internal/port"
)

func writeJSON(t *testing.T, w http.ResponseWriter, v any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}

func blobBody(content []byte) map[string]string {
	return map[string]string{"content": base64.StdEncoding.EncodeToString(content), "encoding": "base64"}
}

func newGitHubServer(t *testing.T) *httptest.Server {
	t.Helper()
	blobs := map[string][]byte{
		"s1": []byte("package main\n\nfunc main() {}\n"),
		"s2": []byte("export const login = () => true\n"),
		"s3": {0x89, 'P', 'N', 'G', 0x00, 0x01},
		"s4": []byte("{}"),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/demo/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("recursive"))
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		writeJSON(t, w, map[string]any{
			"tree": []map[string]any{
				{"path": "main.go", "type": "blob", "sha": "s1"},
				{"path": "src", "type": "tree", "sha": "t1"},
				{"path": "src/auth.ts", "type": "blob", "sha": "s2"},
				{"path": "logo.bin", "type": "blob", "sha": "s3"},
				{"path": "web/package-lock.json", "type": "blob", "sha": "s4"},
			},
			"truncated": false,
		})
	})
	mux.HandleFunc("GET /repos/acme/demo/git/blobs/{sha}", func(w http.ResponseWriter, r *http.Request) {
		content, ok := blobs[r.PathValue("sha")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		writeJSON(t, w, blobBody(content))
	})
	mux.HandleFunc("GET /repos/acme/empty/git/trees/main", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"message":"Git Repository is empty."}`))
	})
	mux.HandleFunc("GET /repos/acme/demo/commits", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[
			{"sha":"c2","commit":{"message":"second","author":{"name":"Ada","date":"2024-05-02T10:00:00Z"}},"author":{"avatar_url":"https://avatars/ada"}},
			{"sha":"c1","commit":{"message":"first","author":{"name":"Bob","date":"2024-05-01T10:00:00Z"}},"author":null}
		]`))
	})
	mux.HandleFunc("GET /repos/acme/demo/commits/{sha}", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/vnd.github.v3.diff", r.Header.Get("Accept"))
		_, _ = w.Write([]byte("diff --git a/main.go b/main.go\n+added\n"))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGitHubLoadRepository(t *testing.T) {
	srv := newGitHubServer(t)
	gh := NewGitHubProvider(srv.URL, "", nil)

	files, err := gh.LoadRepository(context.Background(), port.LoadOptions{
		URL:    "https://github.com/acme/demo",
		Token:  "secret",
		Ignore: DefaultIgnoreGlobs,
	})
	require.NoError(t, err)

	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	sort.Strings(paths)
	assert.Equal(t, []string{"main.go", "src/auth.ts"}, paths)

	for _, f := range files {
		if f.Path == "main.go" {
			assert.Contains(t, f.Content, "func main()")
		}
	}
}

func TestGitHubLoadRepositoryEmpty(t *testing.T) {
	srv := newGitHubServer(t)
	gh := NewGitHubProvider(srv.URL, "", nil)

	_, err := gh.LoadRepository(context.Background(), port.LoadOptions{URL: "https://github.com/acme/empty"})
	assert.ErrorIs(t, err, port.ErrEmptyRepository)
}

func TestGitHubLoadRepositoryMissingBranch(t *testing.T) {
	srv := newGitHubServer(t)
	gh := NewGitHubProvider(srv.URL, "", nil)

	_, err := gh.LoadRepository(context.Background(), port.LoadOptions{URL: "https://github.com/acme/demo", Branch: "develop"})
	assert.ErrorIs(t, err, port.ErrFetchFailed)
}

func TestGitHubLoadRepositoryInvalidURL(t *testing.T) {
	gh := NewGitHubProvider("http://unused", "", nil)

	_, err := gh.LoadRepository(context.Background(), port.LoadOptions{URL: "not a url"})
	assert.ErrorIs(t, err, port.ErrInvalidRepoURL)
}

func TestGitHubListCommits(t *testing.T) {
	srv := newGitHubServer(t)
	gh := NewGitHubProvider(srv.URL, "", nil)

	commits, err := gh.ListCommits(context.Background(), "https://github.com/acme/demo")
	require.NoError(t, err)
	require.Len(t, commits, 2)

	assert.Equal(t, "c2", commits[0].Hash)
	assert.Equal(t, "Ada", commits[0].AuthorName)
	assert.Equal(t, "https://avatars/ada", commits[0].AuthorAvatar)
	assert.Equal(t, 2024, commits[0].Date.Year())

	assert.Equal(t, "c1", commits[1].Hash)
	assert.Empty(t, commits[1].AuthorAvatar)
}

func TestGitHubListCommitsFailure(t *testing.T) {
	srv := newGitHubServer(t)
	gh := NewGitHubProvider(srv.URL, "", nil)

	_, err := gh.ListCommits(context.Background(), "https://github.com/acme/missing")
	assert.ErrorIs(t, err, port.ErrFetchFailed)
}

func TestGitHubDiff(t *testing.T) {
	srv := newGitHubServer(t)
	gh := NewGitHubProvider(srv.URL, "", nil)

	diff, err := gh.Diff(context.Background(), "https://github.com/acme/demo", "c2")
	require.NoError(t, err)
	assert.Contains(t, diff, "+added")
}

func TestIsLikelyBinary(t *testing.T) {
	assert.False(t, isLikelyBinary(nil))
	assert.False(t, isLikelyBinary([]byte("plain text")))
	assert.True(t, isLikelyBinary([]byte{'a', 0, 'b'}))
	assert.True(t, isLikelyBinary([]byte{0xff, 0xfe}))
}
