package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourpie/gitknow/internal/adapter/store"
	"github.com/sourpie/gitknow/internal/adapter/vcs"
	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/internal/port"
)

func newTestProject(t *testing.T, s *store.MemoryStore, repoURL string) *domain.Project {
	t.Helper()
	p, err := s.CreateProject(context.Background(), &domain.Project{Name: "demo", RepoURL: repoURL})
	require.NoError(t, err)
	return p
}

func newTestIngestor(s port.Store, ai port.AIProvider, host port.RepoHost) *Ingestor {
	return NewIngestor(s, ai, host, IngestOptions{Ignore: vcs.DefaultIgnoreGlobs, Dimension: testDim})
}

func storedNames(t *testing.T, s *store.MemoryStore, projectID string) []string {
	t.Helper()
	rows, err := s.ListFileEmbeddings(context.Background(), projectID)
	require.NoError(t, err)
	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.FileName)
	}
	sort.Strings(names)
	return names
}

func TestIndexRepositoryExcludesIgnoredFiles(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestProject(t, s, "https://github.com/acme/demo")
	host := &fakeHost{files: []domain.SourceFile{
		{Path: "main.go", Content: "package main"},
		{Path: "package-lock.json", Content: "{}"},
		{Path: "web/yarn.lock", Content: "lock"},
		{Path: ".git/HEAD", Content: "ref"},
		{Path: "assets/logo.png", Content: "png"},
		{Path: "docs/guide.md", Content: "# guide"},
	}}

	report, err := newTestIngestor(s, &fakeAI{}, host).IndexRepository(ctx, p.ID, p.RepoURL, "", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"docs/guide.md", "main.go"}, storedNames(t, s, p.ID))
	assert.Equal(t, IndexReport{Loaded: 2, Indexed: 2}, report)
	assert.Equal(t, domain.DefaultBranch, host.loadOpts.Branch)
	assert.Equal(t, 5, host.loadOpts.MaxConcurrency)
}

func TestIndexRepositoryOneFailureDoesNotStopOthers(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestProject(t, s, "https://github.com/acme/demo")

	var files []domain.SourceFile
	for i := 1; i <= 5; i++ {
		files = append(files, domain.SourceFile{Path: fmt.Sprintf("file%d.go", i), Content: "package x"})
	}
	ai := &fakeAI{
		// The summary echoes the prompt so embedding can fail for one path.
		chat: func(_, user string) (string, error) { return user, nil },
		embed: func(text string) ([]float32, error) {
			if strings.Contains(text, "file3.go") {
				return nil, errBoom
			}
			return hashEmbed(text), nil
		},
	}

	report, err := newTestIngestor(s, ai, &fakeHost{files: files}).IndexRepository(ctx, p.ID, p.RepoURL, "main", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"file1.go", "file2.go", "file4.go", "file5.go"}, storedNames(t, s, p.ID))
	assert.Equal(t, 5, report.Loaded)
	assert.Equal(t, 4, report.Indexed)
	assert.Equal(t, 1, report.Failed)
}

func TestIndexRepositoryDegradesFailedSummary(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestProject(t, s, "https://github.com/acme/demo")
	ai := &fakeAI{chat: func(_, user string) (string, error) {
		if strings.Contains(user, "flaky.go") {
			return "", errBoom
		}
		return "fine", nil
	}}
	host := &fakeHost{files: []domain.SourceFile{{Path: "flaky.go", Content: "x"}, {Path: "ok.go", Content: "y"}}}

	report, err := newTestIngestor(s, ai, host).IndexRepository(ctx, p.ID, p.RepoURL, "", "")
	require.NoError(t, err)
	assert.Equal(t, IndexReport{Loaded: 2, Indexed: 2, Degraded: 1}, report)

	rows, err := s.ListFileEmbeddings(ctx, p.ID)
	require.NoError(t, err)
	summaries := map[string]string{}
	for _, r := range rows {
		summaries[r.FileName] = r.Summary
	}
	assert.Equal(t, SummaryPlaceholder, summaries["flaky.go"])
	assert.Equal(t, "fine", summaries["ok.go"])
}

func TestIndexRepositorySkipsWrongDimension(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestProject(t, s, "https://github.com/acme/demo")
	ai := &fakeAI{embed: func(string) ([]float32, error) { return []float32{1, 2, 3}, nil }}
	host := &fakeHost{files: []domain.SourceFile{{Path: "a.go", Content: "x"}}}

	report, err := newTestIngestor(s, ai, host).IndexRepository(ctx, p.ID, p.RepoURL, "", "")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Empty(t, storedNames(t, s, p.ID))
}

func TestIndexRepositoryRejectsReindex(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestProject(t, s, "https://github.com/acme/demo")
	host := &fakeHost{files: []domain.SourceFile{{Path: "a.go", Content: "x"}, {Path: "b.go", Content: "y"}}}
	ing := newTestIngestor(s, &fakeAI{}, host)

	_, err := ing.IndexRepository(ctx, p.ID, p.RepoURL, "", "")
	require.NoError(t, err)

	host.files = append(host.files, domain.SourceFile{Path: "c.go", Content: "z"})
	_, err = ing.IndexRepository(ctx, p.ID, p.RepoURL, "", "")
	assert.ErrorIs(t, err, port.ErrAlreadyIndexed)
	assert.Equal(t, []string{"a.go", "b.go"}, storedNames(t, s, p.ID))

	require.NoError(t, ing.ClearIndex(ctx, p.ID))
	_, err = ing.IndexRepository(ctx, p.ID, p.RepoURL, "", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go", "c.go"}, storedNames(t, s, p.ID))
}

func TestIndexRepositoryLoadFailure(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestProject(t, s, "https://github.com/acme/demo")
	host := &fakeHost{loadErr: fmt.Errorf("%w: nope", port.ErrEmptyRepository)}

	_, err := newTestIngestor(s, &fakeAI{}, host).IndexRepository(ctx, p.ID, p.RepoURL, "", "")
	assert.ErrorIs(t, err, port.ErrEmptyRepository)
}

func commitAt(hash string, hoursAgo int, base time.Time) domain.RemoteCommit {
	return domain.RemoteCommit{Hash: hash, Message: "msg " + hash, AuthorName: "Ada", Date: base.Add(-time.Duration(hoursAgo) * time.Hour)}
}

func TestPollCommitsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestProject(t, s, "https://github.com/acme/demo")
	now := time.Now()
	host := &fakeHost{commits: []domain.RemoteCommit{commitAt("a", 1, now), commitAt("b", 2, now), commitAt("c", 3, now)}}
	ing := newTestIngestor(s, &fakeAI{}, host)

	first, err := ing.PollCommits(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	second, err := ing.PollCommits(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, second)

	hashes, err := s.ListCommitHashes(ctx, p.ID)
	require.NoError(t, err)
	sort.Strings(hashes)
	assert.Equal(t, []string{"a", "b", "c"}, hashes)
}

func TestPollCommitsKeepsNewestWithinLimit(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestProject(t, s, "https://github.com/acme/demo")
	now := time.Now()

	var remote []domain.RemoteCommit
	for i := 0; i < 15; i++ {
		remote = append(remote, commitAt(fmt.Sprintf("c%02d", i), 15-i, now)) // oldest first
	}
	ing := NewIngestor(s, &fakeAI{}, &fakeHost{commits: remote}, IngestOptions{CommitLimit: 10, Dimension: testDim})

	got, err := ing.PollCommits(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 10)
	assert.Equal(t, "c14", got[0].Hash)
	assert.Equal(t, "c05", got[9].Hash)
	assert.Equal(t, "a short summary", got[0].Summary)
}

func TestLatestCommitsStableForEqualDates(t *testing.T) {
	now := time.Now()
	in := []domain.RemoteCommit{
		{Hash: "x", Date: now},
		{Hash: "old"},
		{Hash: "y", Date: now},
		{Hash: "new", Date: now.Add(time.Hour)},
	}
	got := latestCommits(in, 3)

	var hashes []string
	for _, c := range got {
		hashes = append(hashes, c.Hash)
	}
	assert.Equal(t, []string{"new", "x", "y"}, hashes)
	assert.Equal(t, "x", in[0].Hash, "input must not be reordered")
}

func TestPollCommitsSummaryFailuresBecomeEmpty(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestProject(t, s, "https://github.com/acme/demo")
	now := time.Now()
	host := &fakeHost{
		commits: []domain.RemoteCommit{commitAt("a", 1, now), commitAt("b", 2, now)},
		diffErr: map[string]error{"a": errBoom},
	}

	got, err := newTestIngestor(s, &fakeAI{}, host).PollCommits(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Empty(t, got[0].Summary)
	assert.NotEmpty(t, got[1].Summary)

	stored, err := s.ListCommits(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestPollCommitsMissingRepoURL(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestProject(t, s, "")
	host := &fakeHost{}

	_, err := newTestIngestor(s, &fakeAI{}, host).PollCommits(ctx, p.ID)
	assert.ErrorIs(t, err, port.ErrMissingRepoURL)
	assert.Zero(t, host.listCall)
}

func TestPollCommitsListFailure(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemoryStore()
	p := newTestProject(t, s, "https://github.com/acme/demo")

	_, err := newTestIngestor(s, &fakeAI{}, &fakeHost{listErr: errBoom}).PollCommits(ctx, p.ID)
	assert.ErrorIs(t, err, port.ErrFetchFailed)
	assert.ErrorIs(t, err, errBoom)
}
