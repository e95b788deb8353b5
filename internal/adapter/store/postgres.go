package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sourpie/gitknow/internal/adapter/store/migrations"
	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/internal/port"
)

// PostgresStore handles all relational database operations.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore opens a connection, applies pending migrations and returns a store instance.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := migrations.MigrateUp(db.DB); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &PostgresStore{db: db}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying handle for use in transactions.
func (s *PostgresStore) DB() *sqlx.DB {
	return s.db
}

// notFound maps "no rows" and malformed UUIDs to ErrProjectNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return port.ErrProjectNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "22P02" { // invalid_text_representation
		return port.ErrProjectNotFound
	}
	return err
}

// --- Projects ---

const projectColumns = `id, name, repo_url, branch, created_at, updated_at, deleted_at`

// CreateProject inserts a new project record.
func (s *PostgresStore) CreateProject(ctx context.Context, p *domain.Project) (*domain.Project, error) {
	query := `INSERT INTO projects (name, repo_url, branch)
	          VALUES ($1, $2, $3)
	          RETURNING ` + projectColumns

	var project domain.Project
	if err := s.db.GetContext(ctx, &project, query, p.Name, p.RepoURL, p.Branch); err != nil {
		return nil, fmt.Errorf("create project: %w", err)
	}
	return &project, nil
}

// GetProject returns a project by its ID, archived or not.
func (s *PostgresStore) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE id = $1`

	var project domain.Project
	if err := s.db.GetContext(ctx, &project, query, id); err != nil {
		return nil, fmt.Errorf("get project: %w", notFound(err))
	}
	return &project, nil
}

// ListProjectsByUser returns the non-archived projects a user is a member of.
func (s *PostgresStore) ListProjectsByUser(ctx context.Context, userID string) ([]domain.Project, error) {
	query := `SELECT p.id, p.name, p.repo_url, p.branch, p.created_at, p.updated_at, p.deleted_at
	          FROM projects p
	          JOIN project_members m ON m.project_id = p.id
	          WHERE m.user_id = $1 AND p.deleted_at IS NULL
	          ORDER BY p.created_at DESC`

	projects := []domain.Project{}
	if err := s.db.SelectContext(ctx, &projects, query, userID); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return projects, nil
}

// ListActiveProjects returns every non-archived project.
func (s *PostgresStore) ListActiveProjects(ctx context.Context) ([]domain.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE deleted_at IS NULL ORDER BY created_at`

	projects := []domain.Project{}
	if err := s.db.SelectContext(ctx, &projects, query); err != nil {
		return nil, fmt.Errorf("list active projects: %w", err)
	}
	return projects, nil
}

// ArchiveProject soft-deletes a project.
func (s *PostgresStore) ArchiveProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET deleted_at = NOW(), updated_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("archive project: %w", notFound(err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("archive project: %w", port.ErrProjectNotFound)
	}
	return nil
}

// DeleteProject physically removes a project and, by cascade, everything it owns.
func (s *PostgresStore) DeleteProject(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	return nil
}

// --- Users & membership ---

// UpsertUser inserts or refreshes a user by ID.
func (s *PostgresStore) UpsertUser(ctx context.Context, u *domain.User) error {
	query := `
		INSERT INTO users (id, email, name, avatar_url)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			email = COALESCE(NULLIF(EXCLUDED.email, ''), users.email),
			name = COALESCE(NULLIF(EXCLUDED.name, ''), users.name),
			avatar_url = COALESCE(NULLIF(EXCLUDED.avatar_url, ''), users.avatar_url),
			updated_at = NOW()`

	if _, err := s.db.ExecContext(ctx, query, u.ID, u.Email, u.Name, u.AvatarURL); err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// AddMember links a user to a project. Adding an existing member is a no-op.
func (s *PostgresStore) AddMember(ctx context.Context, projectID, userID string) error {
	query := `INSERT INTO project_members (project_id, user_id) VALUES ($1, $2)
	          ON CONFLICT (project_id, user_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, query, projectID, userID); err != nil {
		return fmt.Errorf("add member: %w", notFound(err))
	}
	return nil
}

// IsMember reports whether the user belongs to the project.
func (s *PostgresStore) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM project_members WHERE project_id = $1 AND user_id = $2)`
	if err := s.db.GetContext(ctx, &exists, query, projectID, userID); err != nil {
		if errors.Is(notFound(err), port.ErrProjectNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("check membership: %w", err)
	}
	return exists, nil
}

// ListMembers returns the users that belong to a project.
func (s *PostgresStore) ListMembers(ctx context.Context, projectID string) ([]domain.User, error) {
	query := `SELECT u.id, u.email, u.name, u.avatar_url, u.created_at, u.updated_at
	          FROM users u
	          JOIN project_members m ON m.user_id = u.id
	          WHERE m.project_id = $1
	          ORDER BY m.created_at`

	users := []domain.User{}
	if err := s.db.SelectContext(ctx, &users, query, projectID); err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	return users, nil
}

// --- Commits ---

// ListCommitHashes returns every stored commit hash for a project.
func (s *PostgresStore) ListCommitHashes(ctx context.Context, projectID string) ([]string, error) {
	hashes := []string{}
	if err := s.db.SelectContext(ctx, &hashes,
		`SELECT commit_hash FROM commits WHERE project_id = $1`, projectID); err != nil {
		return nil, fmt.Errorf("list commit hashes: %w", err)
	}
	return hashes, nil
}

// InsertCommits stores a batch of commits in a single statement.
func (s *PostgresStore) InsertCommits(ctx context.Context, commits []domain.Commit) (int, error) {
	if len(commits) == 0 {
		return 0, nil
	}

	query := `INSERT INTO commits (project_id, commit_hash, commit_message, commit_author_name,
	                               commit_author_avatar, commit_date, summary)
	          VALUES (:project_id, :commit_hash, :commit_message, :commit_author_name,
	                  :commit_author_avatar, :commit_date, :summary)
	          ON CONFLICT (project_id, commit_hash) DO NOTHING`

	res, err := s.db.NamedExecContext(ctx, query, commits)
	if err != nil {
		return 0, fmt.Errorf("insert commits: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("insert commits: %w", err)
	}
	return int(n), nil
}

// ListCommits returns a project's commits, newest first.
func (s *PostgresStore) ListCommits(ctx context.Context, projectID string) ([]domain.Commit, error) {
	query := `SELECT id, project_id, commit_hash, commit_message, commit_author_name,
	                 commit_author_avatar, commit_date, summary, created_at
	          FROM commits WHERE project_id = $1
	          ORDER BY commit_date DESC`

	commits := []domain.Commit{}
	if err := s.db.SelectContext(ctx, &commits, query, projectID); err != nil {
		return nil, fmt.Errorf("list commits: %w", err)
	}
	return commits, nil
}

// --- Questions ---

type questionRow struct {
	domain.Question
	References []byte `db:"file_references"`
}

// SaveQuestion stores an answered question with its file references snapshot.
func (s *PostgresStore) SaveQuestion(ctx context.Context, q *domain.Question) (*domain.Question, error) {
	refs := q.FileReferences
	if refs == nil {
		refs = []domain.FileReference{}
	}
	refsJSON, err := json.Marshal(refs)
	if err != nil {
		return nil, fmt.Errorf("encode file references: %w", err)
	}

	query := `INSERT INTO questions (project_id, user_id, question, answer, file_references)
	          VALUES ($1, $2, $3, $4, $5)
	          RETURNING id, project_id, user_id, question, answer, file_references, created_at`

	var row questionRow
	if err := s.db.GetContext(ctx, &row, query, q.ProjectID, q.UserID, q.Question, q.Answer, refsJSON); err != nil {
		return nil, fmt.Errorf("save question: %w", err)
	}
	return row.decode()
}

// ListQuestions returns a project's saved questions, newest first.
func (s *PostgresStore) ListQuestions(ctx context.Context, projectID string) ([]domain.Question, error) {
	query := `SELECT id, project_id, user_id, question, answer, file_references, created_at
	          FROM questions WHERE project_id = $1
	          ORDER BY created_at DESC`

	var rows []questionRow
	if err := s.db.SelectContext(ctx, &rows, query, projectID); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}

	questions := make([]domain.Question, 0, len(rows))
	for _, r := range rows {
		q, err := r.decode()
		if err != nil {
			return nil, err
		}
		questions = append(questions, *q)
	}
	return questions, nil
}

func (r questionRow) decode() (*domain.Question, error) {
	q := r.Question
	q.FileReferences = []domain.FileReference{}
	if len(r.References) > 0 {
		if err := json.Unmarshal(r.References, &q.FileReferences); err != nil {
			return nil, fmt.Errorf("decode file references: %w", err)
		}
	}
	return &q, nil
}
