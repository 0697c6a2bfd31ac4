package pagefault

import (
	"errors"
	"fmt"
)

var (
	// ErrFileTooSmall is returned when the page-aligned file is below MinWorkingSet.
	ErrFileTooSmall = errors.New("file too small")
	// ErrFileTooLarge is returned when the page-aligned file does not fit the address space.
	ErrFileTooLarge = errors.New("file too large to map")
	// ErrNotRegular is returned when the fault source is not a regular file.
	ErrNotRegular = errors.New("not a regular file")
	// ErrCacheDrop is returned when an advertised cache drop fails.
	ErrCacheDrop = errors.New("cache drop failed")
	// ErrNegativeDelta is returned when the combined time is below the baseline.
	ErrNegativeDelta = errors.New("combined time below mapping baseline")
	// ErrNotSetUp is returned when a body runs before Setup.
	ErrNotSetUp = errors.New("state is not set up")
	// ErrUnknownBody is returned by ParseBody for an unknown name.
	ErrUnknownBody = errors.New("unknown benchmark body")
)

// SetupError reports a failed resource operation while preparing or
// driving a State.
//
// The underlying OS error can be accessed via errors.Unwrap.
type SetupError struct {
	Op    string
	Path  string
	cause error
}

func (e *SetupError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.cause)
}

func (e *SetupError) Unwrap() error { return e.cause }

func setupError(op, path string, err error) error {
	return &SetupError{Op: op, Path: path, cause: err}
}
