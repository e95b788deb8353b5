package port

import (
	"context"

	"github.com/sourpie/gitknow/internal/domain"
)

// ProjectStore persists projects, users and memberships.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *domain.Project) (*domain.Project, error)
	// GetProject returns ErrProjectNotFound when no row matches. Archived
	// projects are returned; callers decide what to do with them.
	GetProject(ctx context.Context, id string) (*domain.Project, error)
	ListProjectsByUser(ctx context.Context, userID string) ([]domain.Project, error)
	ListActiveProjects(ctx context.Context) ([]domain.Project, error)
	ArchiveProject(ctx context.Context, id string) error
	DeleteProject(ctx context.Context, id string) error

	UpsertUser(ctx context.Context, u *domain.User) error
	AddMember(ctx context.Context, projectID, userID string) error
	IsMember(ctx context.Context, projectID, userID string) (bool, error)
	ListMembers(ctx context.Context, projectID string) ([]domain.User, error)
}

// EmbeddingStore persists file embeddings and answers similarity queries.
type EmbeddingStore interface {
	InsertFileEmbedding(ctx context.Context, e *domain.FileEmbedding) error
	CountFileEmbeddings(ctx context.Context, projectID string) (int, error)
	ListFileEmbeddings(ctx context.Context, projectID string) ([]domain.FileEmbedding, error)
	// SearchSimilar returns at most limit rows whose similarity is strictly
	// greater than threshold, most similar first.
	SearchSimilar(ctx context.Context, projectID string, query []float32, threshold float64, limit int) ([]domain.ScoredFile, error)
	DeleteFileEmbeddings(ctx context.Context, projectID string) error
}

// CommitStore persists summarized commits.
type CommitStore interface {
	ListCommitHashes(ctx context.Context, projectID string) ([]string, error)
	// InsertCommits stores all commits in one batch, skipping hashes that
	// already exist for the project. It returns the number of rows written.
	InsertCommits(ctx context.Context, commits []domain.Commit) (int, error)
	// ListCommits returns commits ordered by commit date, newest first.
	ListCommits(ctx context.Context, projectID string) ([]domain.Commit, error)
}

// QuestionStore persists saved answers.
type QuestionStore interface {
	SaveQuestion(ctx context.Context, q *domain.Question) (*domain.Question, error)
	ListQuestions(ctx context.Context, projectID string) ([]domain.Question, error)
}

// Store is the full persistence surface used by the services.
type Store interface {
	ProjectStore
	EmbeddingStore
	CommitStore
	QuestionStore
	Close() error
}
