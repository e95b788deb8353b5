package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sourpie/gitknow/internal/adapter/store"
	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/internal/port"
)

var (
	alice = &domain.User{ID: "u-alice", Email: "alice@example.com", Name: "Alice"}
	bob   = &domain.User{ID: "u-bob", Email: "bob@example.com", Name: "Bob"}
)

type serviceFixture struct {
	store *store.MemoryStore
	host  *fakeHost
	ai    *fakeAI
	svc   *ProjectService
}

func newServiceFixture() *serviceFixture {
	s := store.NewMemoryStore()
	host := &fakeHost{
		files:   []domain.SourceFile{{Path: "auth/login.go", Content: "package auth"}, {Path: "README.md", Content: "# demo"}},
		commits: []domain.RemoteCommit{commitAt("a", 1, time.Now())},
	}
	ai := &fakeAI{}
	ing := newTestIngestor(s, ai, host)
	ret := NewRetriever(s, ai, RetrievalOptions{Threshold: 0.04})
	return &serviceFixture{store: s, host: host, ai: ai, svc: NewProjectService(s, ing, ret, nil)}
}

func (f *serviceFixture) create(t *testing.T) *domain.Project {
	t.Helper()
	created, err := f.svc.CreateProject(context.Background(), alice, CreateProjectInput{Name: "demo", RepoURL: "https://github.com/acme/demo"})
	require.NoError(t, err)
	return created.Project
}

func TestCreateProjectIndexesAndPolls(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()

	created, err := f.svc.CreateProject(ctx, alice, CreateProjectInput{Name: " demo ", RepoURL: "https://github.com/acme/demo"})
	require.NoError(t, err)
	assert.Equal(t, "demo", created.Project.Name)
	assert.Equal(t, 1, created.Commits)
	assert.Equal(t, 2, created.Report.Indexed)

	projects, err := f.svc.ListProjects(ctx, alice)
	require.NoError(t, err)
	require.Len(t, projects, 1)

	members, err := f.svc.TeamMembers(ctx, alice, created.Project.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "Alice", members[0].Name)
}

func TestCreateProjectRollsBackOnBadRepository(t *testing.T) {
	tests := []struct {
		name     string
		loadErr  error
		listErr  error
		wantKind port.UserErrorKind
		wantMsg  string
	}{
		{name: "empty repository", loadErr: fmt.Errorf("%w: demo", port.ErrEmptyRepository), wantKind: port.KindBadInput, wantMsg: MsgBadRepository},
		{name: "wrong branch", loadErr: fmt.Errorf("%w: 404", port.ErrFetchFailed), wantKind: port.KindBadInput, wantMsg: MsgBadRepository},
		{name: "commit listing", listErr: errBoom, wantKind: port.KindBadInput, wantMsg: MsgBadRepository},
		{name: "unexpected", loadErr: errBoom, wantKind: port.KindInternal, wantMsg: MsgIndexFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			f := newServiceFixture()
			f.host.loadErr = tt.loadErr
			f.host.listErr = tt.listErr

			_, err := f.svc.CreateProject(ctx, alice, CreateProjectInput{Name: "demo", RepoURL: "https://github.com/acme/demo"})
			var ue *port.UserError
			require.True(t, errors.As(err, &ue))
			assert.Equal(t, tt.wantKind, ue.Kind)
			assert.Equal(t, tt.wantMsg, ue.Message)

			projects, err := f.store.ListActiveProjects(ctx)
			require.NoError(t, err)
			assert.Empty(t, projects)
		})
	}
}

func TestCreateProjectValidatesInput(t *testing.T) {
	f := newServiceFixture()

	_, err := f.svc.CreateProject(context.Background(), alice, CreateProjectInput{Name: "", RepoURL: "https://github.com/acme/demo"})
	assert.ErrorIs(t, err, port.ErrInvalidInput)

	_, err = f.svc.CreateProject(context.Background(), alice, CreateProjectInput{Name: "demo", RepoURL: "acme/demo"})
	assert.ErrorIs(t, err, port.ErrInvalidRepoURL)
	var ue *port.UserError
	require.True(t, errors.As(err, &ue))
	assert.Equal(t, port.KindBadInput, ue.Kind)
	assert.Zero(t, f.host.listCall)
}

func TestMembershipIsRequired(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	p := f.create(t)

	_, err := f.svc.GetProject(ctx, bob, p.ID)
	assert.ErrorIs(t, err, port.ErrForbidden)
	_, err = f.svc.Commits(ctx, bob, p.ID)
	assert.ErrorIs(t, err, port.ErrForbidden)
	_, err = f.svc.Ask(ctx, bob, p.ID, "what?")
	assert.ErrorIs(t, err, port.ErrForbidden)

	joined, err := f.svc.JoinProject(ctx, bob, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, joined.ID)
	_, err = f.svc.JoinProject(ctx, bob, p.ID)
	require.NoError(t, err)

	members, err := f.svc.TeamMembers(ctx, bob, p.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	_, err = f.svc.GetProject(ctx, bob, "does-not-exist")
	assert.ErrorIs(t, err, port.ErrProjectNotFound)
}

func TestArchivedProjectsAreHidden(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	p := f.create(t)

	require.NoError(t, f.svc.ArchiveProject(ctx, alice, p.ID))

	projects, err := f.svc.ListProjects(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, projects)

	_, err = f.svc.GetProject(ctx, alice, p.ID)
	assert.ErrorIs(t, err, port.ErrProjectNotFound)

	_, err = f.svc.JoinProject(ctx, bob, p.ID)
	assert.ErrorIs(t, err, port.ErrProjectArchived)
}

func TestCommitsReadDoesNotPoll(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	p := f.create(t)
	calls := f.host.listCall

	commits, err := f.svc.Commits(ctx, alice, p.ID)
	require.NoError(t, err)
	assert.Len(t, commits, 1)
	assert.Equal(t, calls, f.host.listCall)

	f.host.commits = append(f.host.commits, commitAt("b", 0, time.Now()))
	fresh, err := f.svc.RefreshCommits(ctx, alice, p.ID)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "b", fresh[0].Hash)
}

func TestReindexRequiresClear(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	p := f.create(t)

	_, err := f.svc.Reindex(ctx, alice, p.ID, ReindexInput{})
	assert.ErrorIs(t, err, port.ErrAlreadyIndexed)

	f.host.files = f.host.files[:1]
	report, err := f.svc.Reindex(ctx, alice, p.ID, ReindexInput{Clear: true, GitHubToken: " ghp_private "})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, "ghp_private", f.host.loadOpts.Token)

	n, err := f.store.CountFileEmbeddings(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestAskAndSaveAnswer(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	p := f.create(t)

	_, err := f.svc.Ask(ctx, alice, p.ID, "   ")
	assert.ErrorIs(t, err, port.ErrInvalidInput)

	answer, err := f.svc.Ask(ctx, alice, p.ID, "what does this do?")
	require.NoError(t, err)
	text := collect(t, answer.Fragments)
	assert.Equal(t, "hello world", text)

	saved, err := f.svc.SaveAnswer(ctx, alice, SaveAnswerInput{
		ProjectID:      p.ID,
		Question:       "what does this do?",
		Answer:         text,
		FileReferences: answer.FileReferences,
	})
	require.NoError(t, err)
	assert.Equal(t, alice.ID, saved.UserID)

	_, err = f.svc.SaveAnswer(ctx, bob, SaveAnswerInput{ProjectID: p.ID, Question: "q", Answer: "a"})
	assert.ErrorIs(t, err, port.ErrForbidden)

	questions, err := f.svc.Questions(ctx, alice, p.ID)
	require.NoError(t, err)
	require.Len(t, questions, 1)
	assert.Equal(t, "hello world", questions[0].Answer)
}
