package domain

import "time"

// FileEmbedding is one indexed file: its source, LLM summary and the summary's vector.
type FileEmbedding struct {
	ID         string    `json:"id"          db:"id"`
	ProjectID  string    `json:"project_id"  db:"project_id"`
	FileName   string    `json:"file_name"   db:"file_name"`
	SourceCode string    `json:"source_code" db:"source_code"`
	Summary    string    `json:"summary"     db:"summary"`
	Vector     []float32 `json:"-"           db:"-"`
	CreatedAt  time.Time `json:"created_at"  db:"created_at"`
}

// ScoredFile is a FileEmbedding returned by similarity search.
type ScoredFile struct {
	FileEmbedding
	Similarity float64 `json:"similarity" db:"similarity"`
}

// FileReference is the (file, source, summary) triple used to ground an answer.
type FileReference struct {
	FileName   string `json:"file_name"`
	SourceCode string `json:"source_code"`
	Summary    string `json:"summary"`
}

// Reference converts a stored file into the reference shown to users.
func (f FileEmbedding) Reference() FileReference {
	return FileReference{FileName: f.FileName, SourceCode: f.SourceCode, Summary: f.Summary}
}

// SourceFile is a file fetched from a repository host before indexing.
type SourceFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}
