package domain

import "time"

// Question is a saved question/answer pair together with the files that grounded it.
type Question struct {
	ID             string          `json:"id"              db:"id"`
	ProjectID      string          `json:"project_id"      db:"project_id"`
	UserID         string          `json:"user_id"         db:"user_id"`
	Question       string          `json:"question"        db:"question"`
	Answer         string          `json:"answer"          db:"answer"`
	FileReferences []FileReference `json:"file_references" db:"-"`
	CreatedAt      time.Time       `json:"created_at"      db:"created_at"`
}
