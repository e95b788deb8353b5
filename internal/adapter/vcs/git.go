package vcs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/internal/port"
)

// historyDepth bounds how much history is fetched for commit polling.
const historyDepth = 50

// GitProvider implements port.RepoHost by cloning into memory with go-git.
// It works with any git remote, not only GitHub.
type GitProvider struct {
	token  string
	logger *slog.Logger
	clone  func(ctx context.Context, url string) (*git.Repository, error)

	mu    sync.Mutex
	cache map[string]*cachedRepo // history clones, keyed by URL
	ttl   time.Duration
}

// cachedRepo is guarded by its own lock so a slow remote only blocks
// callers of the same URL.
type cachedRepo struct {
	mu      sync.Mutex
	repo    *git.Repository
	fetched time.Time
}

// NewGitProvider creates a go-git backed repository host.
func NewGitProvider(token string, logger *slog.Logger) *GitProvider {
	if logger == nil {
		logger = slog.Default()
	}
	g := &GitProvider{
		token:  token,
		logger: logger,
		cache:  make(map[string]*cachedRepo),
		ttl:    10 * time.Minute,
	}
	g.clone = g.cloneHistory
	return g
}

func (g *GitProvider) auth(token string) transport.AuthMethod {
	if token == "" {
		token = g.token
	}
	if token == "" {
		return nil
	}
	return &githttp.BasicAuth{Username: "x-access-token", Password: token}
}

func cloneURL(raw string) string {
	if ref, err := ParseRepoURL(raw); err == nil {
		return ref.CloneURL()
	}
	return raw
}

func classifyCloneError(url string, err error) error {
	if errors.Is(err, transport.ErrEmptyRemoteRepository) {
		return fmt.Errorf("%w: %s", port.ErrEmptyRepository, url)
	}
	return fmt.Errorf("%w: clone %s: %w", port.ErrFetchFailed, url, err)
}

// history returns a recent-history clone of the default branch, reusing a
// cached one while it is fresh so Diff calls after ListCommits stay cheap.
func (g *GitProvider) history(ctx context.Context, repoURL string) (*git.Repository, error) {
	g.mu.Lock()
	entry, ok := g.cache[repoURL]
	if !ok {
		entry = &cachedRepo{}
		g.cache[repoURL] = entry
	}
	for key, c := range g.cache {
		if c != entry && c.mu.TryLock() {
			if !c.fetched.IsZero() && time.Since(c.fetched) >= g.ttl {
				delete(g.cache, key)
			}
			c.mu.Unlock()
		}
	}
	g.mu.Unlock()

	entry.mu.Lock()
	defer entry.mu.Unlock()
	if entry.repo != nil && time.Since(entry.fetched) < g.ttl {
		return entry.repo, nil
	}

	repo, err := g.clone(ctx, repoURL)
	if err != nil {
		return nil, err
	}
	entry.repo, entry.fetched = repo, time.Now()
	return repo, nil
}

func (g *GitProvider) cloneHistory(ctx context.Context, repoURL string) (*git.Repository, error) {
	url := cloneURL(repoURL)
	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, &git.CloneOptions{
		URL:          url,
		Auth:         g.auth(""),
		SingleBranch: true,
		Depth:        historyDepth,
		Tags:         git.NoTags,
	})
	if err != nil {
		return nil, classifyCloneError(url, err)
	}
	return repo, nil
}

// ListCommits returns recent commits of the default branch, newest first.
// go-git has no notion of avatars, so AuthorAvatar is always empty.
func (g *GitProvider) ListCommits(ctx context.Context, repoURL string) ([]domain.RemoteCommit, error) {
	repo, err := g.history(ctx, repoURL)
	if err != nil {
		return nil, err
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("%w: resolve HEAD: %w", port.ErrFetchFailed, err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("%w: git log: %w", port.ErrFetchFailed, err)
	}
	defer iter.Close()

	var commits []domain.RemoteCommit
	err = iter.ForEach(func(c *object.Commit) error {
		commits = append(commits, domain.RemoteCommit{
			Hash:       c.Hash.String(),
			Message:    c.Message,
			AuthorName: c.Author.Name,
			Date:       c.Author.When,
		})
		if len(commits) >= historyDepth {
			return storer.ErrStop
		}
		return nil
	})
	if err != nil && !errors.Is(err, storer.ErrStop) {
		// A shallow clone ends in a missing parent; keep what was read.
		g.logger.Debug("git log stopped early", "repo", repoURL, "error", err)
	}
	return commits, nil
}

// Diff returns the unified diff between a commit and its first parent.
func (g *GitProvider) Diff(ctx context.Context, repoURL, commitHash string) (string, error) {
	repo, err := g.history(ctx, repoURL)
	if err != nil {
		return "", err
	}

	commit, err := repo.CommitObject(plumbing.NewHash(commitHash))
	if err != nil {
		return "", fmt.Errorf("%w: commit %s: %w", port.ErrFetchFailed, commitHash, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return "", fmt.Errorf("commit tree: %w", err)
	}

	var parentTree *object.Tree
	if commit.NumParents() > 0 {
		if parent, err := commit.Parent(0); err == nil {
			parentTree, _ = parent.Tree()
		}
	}

	changes, err := object.DiffTreeContext(ctx, parentTree, tree)
	if err != nil {
		return "", fmt.Errorf("diff tree: %w", err)
	}
	patch, err := changes.PatchContext(ctx)
	if err != nil {
		return "", fmt.Errorf("patch: %w", err)
	}
	return patch.String(), nil
}

// LoadRepository shallow-clones the branch and reads every non-ignored text file.
func (g *GitProvider) LoadRepository(ctx context.Context, opts port.LoadOptions) ([]domain.SourceFile, error) {
	branch := opts.Branch
	if branch == "" {
		branch = domain.DefaultBranch
	}

	url := cloneURL(opts.URL)
	repo, err := git.CloneContext(ctx, memory.NewStorage(), nil, &git.CloneOptions{
		URL:           url,
		Auth:          g.auth(opts.Token),
		ReferenceName: plumbing.NewBranchReferenceName(branch),
		SingleBranch:  true,
		Depth:         1,
		Tags:          git.NoTags,
	})
	if err != nil {
		return nil, classifyCloneError(url, err)
	}

	head, err := repo.Head()
	if err != nil {
		return nil, fmt.Errorf("%w: resolve HEAD: %w", port.ErrFetchFailed, err)
	}
	commit, err := repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("%w: head commit: %w", port.ErrFetchFailed, err)
	}
	iter, err := commit.Files()
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}

	ignore := NewIgnoreMatcher(opts.Ignore)
	var files []domain.SourceFile
	err = iter.ForEach(func(f *object.File) error {
		if ignore.Match(f.Name) {
			return nil
		}
		if bin, err := f.IsBinary(); err != nil || bin {
			return nil
		}
		content, err := f.Contents()
		if err != nil {
			return fmt.Errorf("read %s: %w", f.Name, err)
		}
		files = append(files, domain.SourceFile{Path: f.Name, Content: content})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", port.ErrFetchFailed, err)
	}

	g.logger.Info("loaded repository", "url", url, "branch", branch, "files", len(files))
	return files, nil
}
