package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sourpie/gitknow/internal/adapter/vcs"
	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/internal/port"
)

// User-facing messages for project creation failures.
const (
	MsgBadRepository = "The repository URL or branch is incorrect, or the repository is empty. Please check the repository URL and ensure the default branch is called 'main'."
	MsgIndexFailed   = "Something went wrong while indexing the repository. Please try again later."
)

// CreateProjectInput is what a user submits to link a repository.
type CreateProjectInput struct {
	Name        string `json:"name"`
	RepoURL     string `json:"repo_url"`
	Branch      string `json:"branch"`
	GitHubToken string `json:"github_token"`
}

// CreatedProject is the result of a successful CreateProject.
type CreatedProject struct {
	Project *domain.Project `json:"project"`
	Report  IndexReport     `json:"report"`
	Commits int             `json:"commits"`
}

// SaveAnswerInput is a finished answer the user wants to keep.
type SaveAnswerInput struct {
	ProjectID      string                 `json:"project_id"`
	Question       string                 `json:"question"`
	Answer         string                 `json:"answer"`
	FileReferences []domain.FileReference `json:"file_references"`
}

// ProjectService is the entry point for everything a user does with a project.
// Every operation except CreateProject and JoinProject requires membership.
type ProjectService struct {
	store     port.Store
	ingestor  *Ingestor
	retriever *Retriever
	log       *slog.Logger
}

// NewProjectService creates a project service.
func NewProjectService(store port.Store, ingestor *Ingestor, retriever *Retriever, logger *slog.Logger) *ProjectService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProjectService{store: store, ingestor: ingestor, retriever: retriever, log: logger}
}

// CreateProject links a repository, stores its recent commits and indexes it.
// Any failure removes the project again and returns a *port.UserError.
func (s *ProjectService) CreateProject(ctx context.Context, user *domain.User, in CreateProjectInput) (*CreatedProject, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.RepoURL = strings.TrimSpace(in.RepoURL)
	in.Branch = strings.TrimSpace(in.Branch)
	if in.Name == "" {
		return nil, port.NewBadInput("Project name is required.", port.ErrInvalidInput)
	}
	if _, err := vcs.ParseRepoURL(in.RepoURL); err != nil {
		return nil, port.NewBadInput(MsgBadRepository, err)
	}

	if err := s.store.UpsertUser(ctx, user); err != nil {
		return nil, port.NewInternal(MsgIndexFailed, fmt.Errorf("upsert user: %w", err))
	}
	project, err := s.store.CreateProject(ctx, &domain.Project{Name: in.Name, RepoURL: in.RepoURL, Branch: in.Branch})
	if err != nil {
		return nil, port.NewInternal(MsgIndexFailed, fmt.Errorf("create project: %w", err))
	}
	s.log.Info("project created", "project_id", project.ID, "user_id", user.ID, "url", project.RepoURL)

	result, err := s.populate(ctx, user, project, in.GitHubToken)
	if err != nil {
		if delErr := s.store.DeleteProject(context.WithoutCancel(ctx), project.ID); delErr != nil {
			s.log.Error("rollback of failed project failed", "project_id", project.ID, "error", delErr)
		}
		s.log.Error("project creation failed", "project_id", project.ID, "error", err)
		return nil, classifyCreateError(err)
	}
	return result, nil
}

func (s *ProjectService) populate(ctx context.Context, user *domain.User, project *domain.Project, token string) (*CreatedProject, error) {
	if err := s.store.AddMember(ctx, project.ID, user.ID); err != nil {
		return nil, fmt.Errorf("add member: %w", err)
	}
	commits, err := s.ingestor.PollCommits(ctx, project.ID)
	if err != nil {
		return nil, fmt.Errorf("poll commits: %w", err)
	}
	report, err := s.ingestor.IndexRepository(ctx, project.ID, project.RepoURL, project.BranchOrDefault(), token)
	if err != nil {
		return nil, fmt.Errorf("index repository: %w", err)
	}
	return &CreatedProject{Project: project, Report: report, Commits: len(commits)}, nil
}

func classifyCreateError(err error) *port.UserError {
	switch {
	case errors.Is(err, port.ErrFetchFailed),
		errors.Is(err, port.ErrEmptyRepository),
		errors.Is(err, port.ErrInvalidRepoURL),
		errors.Is(err, port.ErrMissingRepoURL):
		return port.NewBadInput(MsgBadRepository, err)
	default:
		return port.NewInternal(MsgIndexFailed, err)
	}
}

// authorize loads a live project the user is a member of.
func (s *ProjectService) authorize(ctx context.Context, user *domain.User, projectID string) (*domain.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Archived() {
		return nil, fmt.Errorf("project %s: %w", projectID, port.ErrProjectNotFound)
	}
	ok, err := s.store.IsMember(ctx, projectID, user.ID)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("project %s: %w", projectID, port.ErrForbidden)
	}
	return project, nil
}

// ListProjects returns the user's non-archived projects, newest first.
func (s *ProjectService) ListProjects(ctx context.Context, user *domain.User) ([]domain.Project, error) {
	return s.store.ListProjectsByUser(ctx, user.ID)
}

// GetProject returns a project the user belongs to.
func (s *ProjectService) GetProject(ctx context.Context, user *domain.User, projectID string) (*domain.Project, error) {
	return s.authorize(ctx, user, projectID)
}

// ArchiveProject soft-deletes a project. Its rows stay in place.
func (s *ProjectService) ArchiveProject(ctx context.Context, user *domain.User, projectID string) error {
	if _, err := s.authorize(ctx, user, projectID); err != nil {
		return err
	}
	if err := s.store.ArchiveProject(ctx, projectID); err != nil {
		return err
	}
	s.log.Info("project archived", "project_id", projectID, "user_id", user.ID)
	return nil
}

// JoinProject adds the user to a project. Joining twice is a no-op.
func (s *ProjectService) JoinProject(ctx context.Context, user *domain.User, projectID string) (*domain.Project, error) {
	project, err := s.store.GetProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if project.Archived() {
		return nil, fmt.Errorf("join %s: %w", projectID, port.ErrProjectArchived)
	}
	if err := s.store.UpsertUser(ctx, user); err != nil {
		return nil, fmt.Errorf("upsert user: %w", err)
	}
	if err := s.store.AddMember(ctx, projectID, user.ID); err != nil {
		return nil, fmt.Errorf("join %s: %w", projectID, err)
	}
	s.log.Info("user joined project", "project_id", projectID, "user_id", user.ID)
	return project, nil
}

// TeamMembers lists the users of a project.
func (s *ProjectService) TeamMembers(ctx context.Context, user *domain.User, projectID string) ([]domain.User, error) {
	if _, err := s.authorize(ctx, user, projectID); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, projectID)
}

// Commits returns stored commits, most recent first. It never contacts the repository host.
func (s *ProjectService) Commits(ctx context.Context, user *domain.User, projectID string) ([]domain.Commit, error) {
	if _, err := s.authorize(ctx, user, projectID); err != nil {
		return nil, err
	}
	return s.store.ListCommits(ctx, projectID)
}

// RefreshCommits polls the repository host for new commits.
func (s *ProjectService) RefreshCommits(ctx context.Context, user *domain.User, projectID string) ([]domain.Commit, error) {
	if _, err := s.authorize(ctx, user, projectID); err != nil {
		return nil, err
	}
	return s.ingestor.PollCommits(ctx, projectID)
}

// ReindexInput controls a rebuild of the file index. Tokens are never
// stored, so a private repository needs GitHubToken again unless the
// server-wide token grants access.
type ReindexInput struct {
	Clear       bool   `json:"clear"`
	GitHubToken string `json:"github_token"`
}

// Reindex rebuilds the file index. A project that already has files is only
// rebuilt when Clear is set.
func (s *ProjectService) Reindex(ctx context.Context, user *domain.User, projectID string, in ReindexInput) (IndexReport, error) {
	project, err := s.authorize(ctx, user, projectID)
	if err != nil {
		return IndexReport{}, err
	}
	if in.Clear {
		if err := s.ingestor.ClearIndex(ctx, projectID); err != nil {
			return IndexReport{}, err
		}
	}
	return s.ingestor.IndexRepository(ctx, projectID, project.RepoURL, project.BranchOrDefault(), strings.TrimSpace(in.GitHubToken))
}

// Ask streams an answer to a question about the project.
func (s *ProjectService) Ask(ctx context.Context, user *domain.User, projectID, question string) (*Answer, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("empty question: %w", port.ErrInvalidInput)
	}
	if _, err := s.authorize(ctx, user, projectID); err != nil {
		return nil, err
	}
	return s.retriever.AnswerQuestion(ctx, projectID, question)
}

// SaveAnswer keeps a question, its answer and the files that grounded it.
func (s *ProjectService) SaveAnswer(ctx context.Context, user *domain.User, in SaveAnswerInput) (*domain.Question, error) {
	if strings.TrimSpace(in.Question) == "" || strings.TrimSpace(in.Answer) == "" {
		return nil, fmt.Errorf("question and answer are required: %w", port.ErrInvalidInput)
	}
	if _, err := s.authorize(ctx, user, in.ProjectID); err != nil {
		return nil, err
	}
	refs := in.FileReferences
	if refs == nil {
		refs = []domain.FileReference{}
	}
	return s.store.SaveQuestion(ctx, &domain.Question{
		ProjectID:      in.ProjectID,
		UserID:         user.ID,
		Question:       in.Question,
		Answer:         in.Answer,
		FileReferences: refs,
	})
}

// Questions returns saved answers of a project, newest first.
func (s *ProjectService) Questions(ctx context.Context, user *domain.User, projectID string) ([]domain.Question, error) {
	if _, err := s.authorize(ctx, user, projectID); err != nil {
		return nil, err
	}
	return s.store.ListQuestions(ctx, projectID)
}
