package port

import (
	"context"

	"github.com/sourpie/gitknow/internal/domain"
)

// LoadOptions describes which repository snapshot to load and how politely.
type LoadOptions struct {
	URL            string
	Branch         string
	Token          string   // optional, for private repositories
	Ignore         []string // doublestar globs matched against repo-relative paths
	MaxConcurrency int
}

// RepoHost abstracts the repository hosting provider.
// Implementations talk to the GitHub REST API or clone with go-git.
type RepoHost interface {
	// ListCommits returns recent commits in provider order.
	ListCommits(ctx context.Context, repoURL string) ([]domain.RemoteCommit, error)

	// Diff returns the unified diff introduced by a commit.
	Diff(ctx context.Context, repoURL, commitHash string) (string, error)

	// LoadRepository returns every non-ignored text file at the given branch.
	LoadRepository(ctx context.Context, opts LoadOptions) ([]domain.SourceFile, error)
}
