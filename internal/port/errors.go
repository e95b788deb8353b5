package port

import "errors"

// Sentinel errors used across ports.
var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrTokenExpired    = errors.New("token expired")
	ErrTokenInvalid    = errors.New("token invalid")
	ErrInvalidInput    = errors.New("invalid input")
	ErrProjectNotFound = errors.New("project not found")
	ErrProjectArchived = errors.New("project archived")
	ErrMissingRepoURL  = errors.New("project has no repository url")
	ErrInvalidRepoURL  = errors.New("invalid repository url")
	ErrFetchFailed     = errors.New("fetch failed")
	ErrEmptyRepository = errors.New("repository is empty")
	ErrAlreadyIndexed  = errors.New("project already indexed")
)

// UserErrorKind separates problems the user can fix from our own failures.
type UserErrorKind string

const (
	KindBadInput UserErrorKind = "bad_input"
	KindInternal UserErrorKind = "internal"
)

// UserError carries a single human-readable sentence for the user while
// keeping the underlying cause for logs.
type UserError struct {
	Kind    UserErrorKind
	Message string
	Err     error
}

func (e *UserError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Err
}

// NewBadInput wraps err as a user-fixable failure.
func NewBadInput(message string, err error) *UserError {
	return &UserError{Kind: KindBadInput, Message: message, Err: err}
}

// NewInternal wraps err as a failure on our side.
func NewInternal(message string, err error) *UserError {
	return &UserError{Kind: KindInternal, Message: message, Err: err}
}
