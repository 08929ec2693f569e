package clierr

import "errors"

// Type categorizes a CLI-facing error for consistent messaging & exit codes.
type Type string

const (
	Validation Type = "validation"
	Config     Type = "config"
	Auth       Type = "auth"
	Fetch      Type = "fetch"
	Export     Type = "export"
	NotFound   Type = "not_found"
	Internal   Type = "internal"
)

// Error is a structured user-facing error.
type Error struct {
	Type    Type
	Message string
	Err     error // optional underlying error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// New constructs a new CLI Error.
func New(t Type, msg string, err error) *Error { return &Error{Type: t, Message: msg, Err: err} }

var exitCodes = map[Type]int{
	Validation: 2,
	Config:     3,
	Auth:       4,
	Fetch:      5,
	Export:     6,
	NotFound:   7,
	Internal:   1,
}

// ExitCode returns the process exit status for err. Untyped errors exit with 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ce *Error
	if errors.As(err, &ce) {
		if code, ok := exitCodes[ce.Type]; ok {
			return code
		}
	}
	return 1
}
