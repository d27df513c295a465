package core

import (
	"errors"
	"fmt"
)

// Error taxonomy of a build. Every error escaping the builder wraps exactly
// one of these kinds, so callers can branch with errors.Is.
var (
	ErrValidation   = errors.New("validation error")
	ErrMacro        = errors.New("macro resolution error")
	ErrLocation     = errors.New("location error")
	ErrSchema       = errors.New("schema error")
	ErrFieldBuilder = errors.New("field builder error")
	ErrRepository   = errors.New("repository error")
)

// ErrNotFound is returned by repositories when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// ErrReadOnly is returned by repositories opened without write access.
var ErrReadOnly = errors.New("repository is in read-only mode")

// PathError attaches the execution path at the time of failure to an error.
type PathError struct {
	Path string
	Err  error
}

func (e *PathError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (at %s)", e.Err, e.Path)
}

func (e *PathError) Unwrap() error {
	return e.Err
}

// PathOf returns the execution path recorded on err, if any.
func PathOf(err error) string {
	var pe *PathError
	if errors.As(err, &pe) {
		return pe.Path
	}
	return ""
}

// RepositoryFailure wraps a collaborator failure into ErrRepository unless it
// already carries a kind of the taxonomy.
func RepositoryFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, kind := range []error{ErrValidation, ErrMacro, ErrLocation, ErrSchema, ErrFieldBuilder, ErrRepository} {
		if errors.Is(err, kind) {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrRepository, op, err)
}
