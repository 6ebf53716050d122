package placeholder

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingParam reports a placeholder used without its required [param].
	ErrMissingParam = errors.New("missing placeholder parameter")
	// ErrInvalidParam reports a [param] that does not match the placeholder grammar.
	ErrInvalidParam = errors.New("invalid placeholder parameter")
)

// Error identifies the placeholder that failed to resolve.
type Error struct {
	Token string
	Name  string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("placeholder %s: %v", e.Token, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func invalidParam(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidParam, fmt.Sprintf(format, args...))
}
