package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/internal/port"
)

// IngestOptions tunes the ingestion pipeline. Zero values pick the defaults.
type IngestOptions struct {
	Ignore             []string // doublestar globs, already merged with the defaults
	LoaderConcurrency  int
	SummaryConcurrency int
	MaxSummaryInput    int
	CommitLimit        int
	Dimension          int
	Logger             *slog.Logger
}

func (o IngestOptions) withDefaults() IngestOptions {
	if o.LoaderConcurrency <= 0 {
		o.LoaderConcurrency = 5
	}
	if o.SummaryConcurrency <= 0 {
		o.SummaryConcurrency = 5
	}
	if o.MaxSummaryInput <= 0 {
		o.MaxSummaryInput = 10000
	}
	if o.CommitLimit <= 0 {
		o.CommitLimit = 10
	}
	if o.Dimension <= 0 {
		o.Dimension = 768
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// IndexReport counts what happened to each loaded file.
type IndexReport struct {
	Loaded   int `json:"loaded"`
	Indexed  int `json:"indexed"`
	Degraded int `json:"degraded"` // indexed with the placeholder summary
	Failed   int `json:"failed"`
}

// Ingestor loads repositories into the embedding store and summarizes new commits.
type Ingestor struct {
	store      port.Store
	ai         port.AIProvider
	host       port.RepoHost
	summarizer *Summarizer
	opts       IngestOptions
	log        *slog.Logger
}

// NewIngestor creates an ingestion pipeline.
func NewIngestor(store port.Store, ai port.AIProvider, host port.RepoHost, opts IngestOptions) *Ingestor {
	opts = opts.withDefaults()
	return &Ingestor{
		store:      store,
		ai:         ai,
		host:       host,
		summarizer: NewSummarizer(ai, opts.MaxSummaryInput),
		opts:       opts,
		log:        opts.Logger,
	}
}

// IndexRepository loads every non-ignored file of the repository, summarizes
// and embeds it, and stores one row per file. It refuses a project that
// already has rows; call ClearIndex first to rebuild.
func (i *Ingestor) IndexRepository(ctx context.Context, projectID, repoURL, branch, token string) (IndexReport, error) {
	var report IndexReport

	existing, err := i.store.CountFileEmbeddings(ctx, projectID)
	if err != nil {
		return report, fmt.Errorf("count embeddings: %w", err)
	}
	if existing > 0 {
		return report, fmt.Errorf("%w: %d files stored", port.ErrAlreadyIndexed, existing)
	}

	if branch == "" {
		branch = domain.DefaultBranch
	}
	files, err := i.host.LoadRepository(ctx, port.LoadOptions{
		URL:            repoURL,
		Branch:         branch,
		Token:          token,
		Ignore:         i.opts.Ignore,
		MaxConcurrency: i.opts.LoaderConcurrency,
	})
	if err != nil {
		return report, fmt.Errorf("load repository: %w", err)
	}
	report.Loaded = len(files)
	i.log.Info("indexing repository", "project_id", projectID, "url", repoURL, "branch", branch, "files", len(files))

	var mu sync.Mutex
	record := func(status string) {
		mu.Lock()
		defer mu.Unlock()
		switch status {
		case statusOK:
			report.Indexed++
		case statusDegraded:
			report.Indexed++
			report.Degraded++
		default:
			report.Failed++
		}
		filesIndexed.WithLabelValues(status).Inc()
	}

	var g errgroup.Group
	g.SetLimit(i.opts.SummaryConcurrency)
	for _, f := range files {
		g.Go(func() error {
			record(i.indexFile(ctx, projectID, f))
			return nil
		})
	}
	_ = g.Wait()

	i.log.Info("repository indexed", "project_id", projectID,
		"loaded", report.Loaded, "indexed", report.Indexed, "degraded", report.Degraded, "failed", report.Failed)
	return report, nil
}

// indexFile processes one file and reports its outcome. It never fails the batch.
func (i *Ingestor) indexFile(ctx context.Context, projectID string, f domain.SourceFile) string {
	status := statusOK
	summary, err := i.summarizer.SummarizeCode(ctx, f.Path, f.Content)
	if err != nil || summary == "" {
		i.log.Warn("file summary failed, using placeholder", "project_id", projectID, "file", f.Path, "error", err)
		summary = SummaryPlaceholder
		status = statusDegraded
	}

	vector, err := i.ai.Embed(ctx, summary)
	if err != nil {
		i.log.Error("embedding failed, skipping file", "project_id", projectID, "file", f.Path, "error", err)
		return statusFailed
	}
	if len(vector) != i.opts.Dimension {
		i.log.Error("embedding has wrong dimension, skipping file", "project_id", projectID, "file", f.Path,
			"got", len(vector), "want", i.opts.Dimension)
		return statusFailed
	}

	row := &domain.FileEmbedding{
		ProjectID:  projectID,
		FileName:   f.Path,
		SourceCode: f.Content,
		Summary:    summary,
		Vector:     vector,
	}
	if err := i.store.InsertFileEmbedding(ctx, row); err != nil {
		i.log.Error("storing file failed", "project_id", projectID, "file", f.Path, "error", err)
		return statusFailed
	}
	return status
}

// ClearIndex removes every indexed file of the project.
func (i *Ingestor) ClearIndex(ctx context.Context, projectID string) error {
	if err := i.store.DeleteFileEmbeddings(ctx, projectID); err != nil {
		return fmt.Errorf("clear index: %w", err)
	}
	i.log.Info("index cleared", "project_id", projectID)
	return nil
}

// PollCommits fetches the most recent commits of the project's repository,
// summarizes the ones not stored yet and stores them in one batch.
// It returns the commits that were new at the time of the poll.
func (i *Ingestor) PollCommits(ctx context.Context, projectID string) ([]domain.Commit, error) {
	project, err := i.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.RepoURL == "" {
		return nil, fmt.Errorf("poll %s: %w", projectID, port.ErrMissingRepoURL)
	}

	remote, err := i.host.ListCommits(ctx, project.RepoURL)
	if err != nil {
		if errors.Is(err, port.ErrFetchFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: list commits: %w", port.ErrFetchFailed, err)
	}
	remote = latestCommits(remote, i.opts.CommitLimit)

	known, err := i.store.ListCommitHashes(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("list stored commits: %w", err)
	}
	seen := make(map[string]struct{}, len(known))
	for _, h := range known {
		seen[h] = struct{}{}
	}
	var fresh []domain.RemoteCommit
	for _, c := range remote {
		if _, ok := seen[c.Hash]; !ok {
			fresh = append(fresh, c)
		}
	}
	if len(fresh) == 0 {
		i.log.Debug("no new commits", "project_id", projectID)
		return []domain.Commit{}, nil
	}

	commits := make([]domain.Commit, len(fresh))
	var g errgroup.Group
	g.SetLimit(i.opts.SummaryConcurrency)
	for idx, rc := range fresh {
		g.Go(func() error {
			commits[idx] = domain.Commit{
				ProjectID:    projectID,
				Hash:         rc.Hash,
				Message:      rc.Message,
				AuthorName:   rc.AuthorName,
				AuthorAvatar: rc.AuthorAvatar,
				Date:         rc.Date,
				Summary:      i.summarizeCommit(ctx, project.RepoURL, rc.Hash),
			}
			return nil
		})
	}
	_ = g.Wait()

	inserted, err := i.store.InsertCommits(ctx, commits)
	if err != nil {
		return nil, fmt.Errorf("store commits: %w", err)
	}
	i.log.Info("commits polled", "project_id", projectID, "new", len(commits), "inserted", inserted)
	return commits, nil
}

// summarizeCommit returns "" when either the diff or the summary is unavailable.
func (i *Ingestor) summarizeCommit(ctx context.Context, repoURL, hash string) string {
	diff, err := i.host.Diff(ctx, repoURL, hash)
	if err != nil {
		i.log.Warn("commit diff failed", "commit", hash, "error", err)
		commitsSummarized.WithLabelValues(statusFailed).Inc()
		return ""
	}
	summary, err := i.summarizer.SummarizeDiff(ctx, diff)
	if err != nil {
		i.log.Warn("commit summary failed", "commit", hash, "error", err)
		commitsSummarized.WithLabelValues(statusFailed).Inc()
		return ""
	}
	commitsSummarized.WithLabelValues(statusOK).Inc()
	return summary
}

// latestCommits orders commits newest first, keeping provider order for
// equal dates, and keeps at most limit of them.
func latestCommits(commits []domain.RemoteCommit, limit int) []domain.RemoteCommit {
	sorted := slices.Clone(commits)
	slices.SortStableFunc(sorted, func(a, b domain.RemoteCommit) int {
		return b.Date.Compare(a.Date)
	})
	if limit > 0 && len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}
