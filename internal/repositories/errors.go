package repositories

// Error is a categorised repository failure for backends without their own error type.
type Error struct {
	Op          string
	Err         error
	NotFound    bool
	Conflict    bool
	Unavailable bool
}

var _ RepositoryError = (*Error)(nil)

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op == "" {
		return e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func (e *Error) IsNotFound() bool    { return e != nil && e.NotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.Conflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.Unavailable }

// NewNotFoundError constructs a not-found repository error.
func NewNotFoundError(op string, err error) *Error {
	return &Error{Op: op, Err: err, NotFound: true}
}
