package vcs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/internal/port"
)

// GitHubProvider implements port.RepoHost over the GitHub REST API.
type GitHubProvider struct {
	baseURL    string
	token      string // default token, overridden per load by LoadOptions.Token
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGitHubProvider creates a GitHub REST client. baseURL is normally https://api.github.com.
func NewGitHubProvider(baseURL, token string, logger *slog.Logger) *GitHubProvider {
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHubProvider{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		logger:     logger,
	}
}

// statusError is a non-2xx answer from the API.
type statusError struct {
	status int
	body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("github API error (%d): %s", e.status, e.body)
}

func (g *GitHubProvider) get(ctx context.Context, path, token, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if accept == "" {
		accept = "application/vnd.github+json"
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{status: resp.StatusCode, body: strings.TrimSpace(string(body))}
	}
	return body, nil
}

// ListCommits returns the most recent commits of the default branch, in API order.
func (g *GitHubProvider) ListCommits(ctx context.Context, repoURL string) ([]domain.RemoteCommit, error) {
	ref, err := ParseRepoURL(repoURL)
	if err != nil {
		return nil, err
	}

	body, err := g.get(ctx, fmt.Sprintf("/repos/%s/%s/commits", ref.Owner, ref.Name), g.token, "")
	if err != nil {
		return nil, fmt.Errorf("%w: list commits %s/%s: %w", port.ErrFetchFailed, ref.Owner, ref.Name, err)
	}

	var raw []struct {
		SHA    string `json:"sha"`
		Commit struct {
			Message string `json:"message"`
			Author  *struct {
				Name string `json:"name"`
				Date string `json:"date"`
			} `json:"author"`
		} `json:"commit"`
		Author *struct {
			AvatarURL string `json:"avatar_url"`
		} `json:"author"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode commits: %w", port.ErrFetchFailed, err)
	}

	commits := make([]domain.RemoteCommit, 0, len(raw))
	for _, c := range raw {
		rc := domain.RemoteCommit{Hash: c.SHA, Message: c.Commit.Message}
		if c.Commit.Author != nil {
			rc.AuthorName = c.Commit.Author.Name
			if t, err := time.Parse(time.RFC3339, c.Commit.Author.Date); err == nil {
				rc.Date = t
			}
		}
		if c.Author != nil {
			rc.AuthorAvatar = c.Author.AvatarURL
		}
		commits = append(commits, rc)
	}
	return commits, nil
}

// Diff returns the unified diff of a single commit.
func (g *GitHubProvider) Diff(ctx context.Context, repoURL, commitHash string) (string, error) {
	ref, err := ParseRepoURL(repoURL)
	if err != nil {
		return "", err
	}

	path := fmt.Sprintf("/repos/%s/%s/commits/%s", ref.Owner, ref.Name, commitHash)
	body, err := g.get(ctx, path, g.token, "application/vnd.github.v3.diff")
	if err != nil {
		return "", fmt.Errorf("%w: diff %s: %w", port.ErrFetchFailed, commitHash, err)
	}
	return string(body), nil
}

type treeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"` // blob, tree, commit
	SHA  string `json:"sha"`
	Size int    `json:"size"`
}

// LoadRepository lists the branch tree recursively and fetches every
// non-ignored text blob, at most MaxConcurrency at a time.
func (g *GitHubProvider) LoadRepository(ctx context.Context, opts port.LoadOptions) ([]domain.SourceFile, error) {
	ref, err := ParseRepoURL(opts.URL)
	if err != nil {
		return nil, err
	}
	branch := opts.Branch
	if branch == "" {
		branch = domain.DefaultBranch
	}
	token := opts.Token
	if token == "" {
		token = g.token
	}

	treePath := fmt.Sprintf("/repos/%s/%s/git/trees/%s?recursive=1", ref.Owner, ref.Name, branch)
	body, err := g.get(ctx, treePath, token, "")
	if err != nil {
		var se *statusError
		if errors.As(err, &se) && se.status == http.StatusConflict {
			return nil, fmt.Errorf("%w: %s/%s", port.ErrEmptyRepository, ref.Owner, ref.Name)
		}
		return nil, fmt.Errorf("%w: tree %s/%s@%s: %w", port.ErrFetchFailed, ref.Owner, ref.Name, branch, err)
	}

	var tree struct {
		Tree      []treeEntry `json:"tree"`
		Truncated bool        `json:"truncated"`
	}
	if err := json.Unmarshal(body, &tree); err != nil {
		return nil, fmt.Errorf("%w: decode tree: %w", port.ErrFetchFailed, err)
	}
	if tree.Truncated {
		g.logger.Warn("github tree listing truncated", "repo", ref.Owner+"/"+ref.Name, "entries", len(tree.Tree))
	}

	ignore := NewIgnoreMatcher(opts.Ignore)
	var blobs []treeEntry
	for _, e := range tree.Tree {
		if e.Type == "blob" && !ignore.Match(e.Path) {
			blobs = append(blobs, e)
		}
	}

	limit := opts.MaxConcurrency
	if limit <= 0 {
		limit = 5
	}

	var (
		mu    sync.Mutex
		files = make([]domain.SourceFile, 0, len(blobs))
	)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(limit)
	for _, blob := range blobs {
		eg.Go(func() error {
			content, err := g.blob(egCtx, ref, blob.SHA, token)
			if err != nil {
				return fmt.Errorf("%w: blob %s: %w", port.ErrFetchFailed, blob.Path, err)
			}
			if isLikelyBinary(content) {
				g.logger.Debug("skipping binary file", "path", blob.Path)
				return nil
			}
			mu.Lock()
			files = append(files, domain.SourceFile{Path: blob.Path, Content: string(content)})
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	g.logger.Info("loaded repository", "repo", ref.Owner+"/"+ref.Name, "branch", branch, "files", len(files))
	return files, nil
}

func (g *GitHubProvider) blob(ctx context.Context, ref RepoRef, sha, token string) ([]byte, error) {
	body, err := g.get(ctx, fmt.Sprintf("/repos/%s/%s/git/blobs/%s", ref.Owner, ref.Name, sha), token, "")
	if err != nil {
		return nil, err
	}
	var blob struct {
		Content  string `json:"content"`
		Encoding string `json:"encoding"`
	}
	if err := json.Unmarshal(body, &blob); err != nil {
		return nil, fmt.Errorf("decode blob: %w", err)
	}
	if blob.Encoding != "base64" {
		return []byte(blob.Content), nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(blob.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return data, nil
}

// isLikelyBinary treats invalid UTF-8 or any NUL byte as binary.
func isLikelyBinary(data []byte) bool {
	if len(data) == 0 {
		return false
	}
	if !utf8.Valid(data) {
		return true
	}
	for _, b := range data {
		if b == 0 {
			return true
		}
	}
	return false
}
