package domain

import "time"

// Commit is a stored, summarized commit of a project's repository.
type Commit struct {
	ID           string    `json:"id"                   db:"id"`
	ProjectID    string    `json:"project_id"           db:"project_id"`
	Hash         string    `json:"commit_hash"          db:"commit_hash"`
	Message      string    `json:"commit_message"       db:"commit_message"`
	AuthorName   string    `json:"commit_author_name"   db:"commit_author_name"`
	AuthorAvatar string    `json:"commit_author_avatar" db:"commit_author_avatar"`
	Date         time.Time `json:"commit_date"          db:"commit_date"`
	Summary      string    `json:"summary"              db:"summary"`
	CreatedAt    time.Time `json:"created_at"           db:"created_at"`
}

// RemoteCommit is commit metadata as reported by the repository host.
// Missing fields are empty strings, never nil.
type RemoteCommit struct {
	Hash         string    `json:"hash"`
	Message      string    `json:"message"`
	AuthorName   string    `json:"author_name"`
	AuthorAvatar string    `json:"author_avatar"`
	Date         time.Time `json:"date"`
}
