package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sourpie/gitknow/internal/domain"
	"github.com/sourpie/gitknow/internal/port"
)

// MemoryStore is an in-process port.Store. It backs tests and the
// STORE_BACKEND=memory development mode; nothing survives a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	now       func() time.Time
	projects  map[string]*domain.Project
	users     map[string]*domain.User
	members   map[string][]domain.Membership // by project
	files     map[string][]domain.FileEmbedding
	commits   map[string][]domain.Commit
	questions map[string][]domain.Question
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:       time.Now,
		projects:  make(map[string]*domain.Project),
		users:     make(map[string]*domain.User),
		members:   make(map[string][]domain.Membership),
		files:     make(map[string][]domain.FileEmbedding),
		commits:   make(map[string][]domain.Commit),
		questions: make(map[string][]domain.Question),
	}
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

// --- Projects ---

func (m *MemoryStore) CreateProject(ctx context.Context, p *domain.Project) (*domain.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	project := domain.Project{
		ID:        uuid.NewString(),
		Name:      p.Name,
		RepoURL:   p.RepoURL,
		Branch:    p.Branch,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.projects[project.ID] = &project
	out := project
	return &out, nil
}

func (m *MemoryStore) GetProject(ctx context.Context, id string) (*domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.projects[id]
	if !ok {
		return nil, fmt.Errorf("get project: %w", port.ErrProjectNotFound)
	}
	out := *p
	return &out, nil
}

func (m *MemoryStore) ListProjectsByUser(ctx context.Context, userID string) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	projects := []domain.Project{}
	for id, p := range m.projects {
		if p.Archived() || !m.isMemberLocked(id, userID) {
			continue
		}
		projects = append(projects, *p)
	}
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].CreatedAt.After(projects[j].CreatedAt)
	})
	return projects, nil
}

func (m *MemoryStore) ListActiveProjects(ctx context.Context) ([]domain.Project, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	projects := []domain.Project{}
	for _, p := range m.projects {
		if !p.Archived() {
			projects = append(projects, *p)
		}
	}
	sort.SliceStable(projects, func(i, j int) bool {
		return projects[i].CreatedAt.Before(projects[j].CreatedAt)
	})
	return projects, nil
}

func (m *MemoryStore) ArchiveProject(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.projects[id]
	if !ok || p.Archived() {
		return fmt.Errorf("archive project: %w", port.ErrProjectNotFound)
	}
	now := m.now()
	p.DeletedAt = &now
	p.UpdatedAt = now
	return nil
}

func (m *MemoryStore) DeleteProject(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.projects, id)
	delete(m.members, id)
	delete(m.files, id)
	delete(m.commits, id)
	delete(m.questions, id)
	return nil
}

// --- Users & membership ---

func (m *MemoryStore) UpsertUser(ctx context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	existing, ok := m.users[u.ID]
	if !ok {
		user := *u
		user.CreatedAt, user.UpdatedAt = now, now
		m.users[u.ID] = &user
		return nil
	}
	if u.Email != "" {
		existing.Email = u.Email
	}
	if u.Name != "" {
		existing.Name = u.Name
	}
	if u.AvatarURL != "" {
		existing.AvatarURL = u.AvatarURL
	}
	existing.UpdatedAt = now
	return nil
}

func (m *MemoryStore) AddMember(ctx context.Context, projectID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[projectID]; !ok {
		return fmt.Errorf("add member: %w", port.ErrProjectNotFound)
	}
	if m.isMemberLocked(projectID, userID) {
		return nil
	}
	m.members[projectID] = append(m.members[projectID], domain.Membership{
		ProjectID: projectID,
		UserID:    userID,
		CreatedAt: m.now(),
	})
	return nil
}

func (m *MemoryStore) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.isMemberLocked(projectID, userID), nil
}

func (m *MemoryStore) isMemberLocked(projectID, userID string) bool {
	for _, mem := range m.members[projectID] {
		if mem.UserID == userID {
			return true
		}
	}
	return false
}

func (m *MemoryStore) ListMembers(ctx context.Context, projectID string) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := []domain.User{}
	for _, mem := range m.members[projectID] {
		if u, ok := m.users[mem.UserID]; ok {
			users = append(users, *u)
		} else {
			users = append(users, domain.User{ID: mem.UserID})
		}
	}
	return users, nil
}

// --- File embeddings ---

func (m *MemoryStore) InsertFileEmbedding(ctx context.Context, e *domain.FileEmbedding) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[e.ProjectID]; !ok {
		return fmt.Errorf("store embedding: %w", port.ErrProjectNotFound)
	}
	e.ID = uuid.NewString()
	e.CreatedAt = m.now()
	row := *e
	row.Vector = append([]float32(nil), e.Vector...)
	m.files[e.ProjectID] = append(m.files[e.ProjectID], row)
	return nil
}

func (m *MemoryStore) CountFileEmbeddings(ctx context.Context, projectID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.files[projectID]), nil
}

func (m *MemoryStore) ListFileEmbeddings(ctx context.Context, projectID string) ([]domain.FileEmbedding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.FileEmbedding, len(m.files[projectID]))
	copy(out, m.files[projectID])
	return out, nil
}

func (m *MemoryStore) SearchSimilar(ctx context.Context, projectID string, query []float32, threshold float64, limit int) ([]domain.ScoredFile, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := []domain.ScoredFile{}
	for _, f := range m.files[projectID] {
		sim := CosineSimilarity(query, f.Vector)
		if sim > threshold {
			results = append(results, domain.ScoredFile{FileEmbedding: f, Similarity: sim})
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (m *MemoryStore) DeleteFileEmbeddings(ctx context.Context, projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, projectID)
	return nil
}

// CosineSimilarity returns 1 - cosine distance, the same score pgvector's <=> yields.
// Mismatched or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// --- Commits ---

func (m *MemoryStore) ListCommitHashes(ctx context.Context, projectID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	hashes := make([]string, 0, len(m.commits[projectID]))
	for _, c := range m.commits[projectID] {
		hashes = append(hashes, c.Hash)
	}
	return hashes, nil
}

func (m *MemoryStore) InsertCommits(ctx context.Context, commits []domain.Commit) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	inserted := 0
	for _, c := range commits {
		if _, ok := m.projects[c.ProjectID]; !ok {
			return inserted, fmt.Errorf("insert commits: %w", port.ErrProjectNotFound)
		}
		if m.hasCommitLocked(c.ProjectID, c.Hash) {
			continue
		}
		c.ID = uuid.NewString()
		c.CreatedAt = m.now()
		m.commits[c.ProjectID] = append(m.commits[c.ProjectID], c)
		inserted++
	}
	return inserted, nil
}

func (m *MemoryStore) hasCommitLocked(projectID, hash string) bool {
	for _, c := range m.commits[projectID] {
		if c.Hash == hash {
			return true
		}
	}
	return false
}

func (m *MemoryStore) ListCommits(ctx context.Context, projectID string) ([]domain.Commit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.Commit, len(m.commits[projectID]))
	copy(out, m.commits[projectID])
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Date.After(out[j].Date)
	})
	return out, nil
}

// --- Questions ---

func (m *MemoryStore) SaveQuestion(ctx context.Context, q *domain.Question) (*domain.Question, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.projects[q.ProjectID]; !ok {
		return nil, fmt.Errorf("save question: %w", port.ErrProjectNotFound)
	}
	saved := *q
	saved.ID = uuid.NewString()
	saved.CreatedAt = m.now()
	saved.FileReferences = append([]domain.FileReference{}, q.FileReferences...)
	m.questions[q.ProjectID] = append(m.questions[q.ProjectID], saved)
	out := saved
	return &out, nil
}

func (m *MemoryStore) ListQuestions(ctx context.Context, projectID string) ([]domain.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.questions[projectID]
	out := make([]domain.Question, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

var _ port.Store = (*MemoryStore)(nil)
var _ port.Store = (*SQLStore)(nil)
