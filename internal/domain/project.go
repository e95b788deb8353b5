package domain

import "time"

// Project is a linked GitHub repository and the root of everything indexed for it.
type Project struct {
	ID        string     `json:"id"         db:"id"`
	Name      string     `json:"name"       db:"name"`
	RepoURL   string     `json:"repo_url"   db:"repo_url"`
	Branch    string     `json:"branch"     db:"branch"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"` // soft delete
}

// Archived reports whether the project has been soft deleted.
func (p *Project) Archived() bool {
	return p.DeletedAt != nil
}

// DefaultBranch is used when a project does not name one.
const DefaultBranch = "main"

// BranchOrDefault returns the configured branch, falling back to DefaultBranch.
func (p *Project) BranchOrDefault() string {
	if p.Branch == "" {
		return DefaultBranch
	}
	return p.Branch
}

// Membership grants a user access to a project.
type Membership struct {
	ProjectID string    `json:"project_id" db:"project_id"`
	UserID    string    `json:"user_id"    db:"user_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
