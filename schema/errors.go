package schema

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrTypeNotFound is returned by registry lookups for a name no loaded
	// file declares.
	ErrTypeNotFound = errors.New("type not found")
)

// BuildError reports that a message, enum or feature set could not be
// built from its declarations. It is fatal and not retryable; the Err
// field may aggregate several problems found in one pass.
type BuildError struct {
	// Name is the full name of the type the build failed for, when known.
	Name string
	Err  error
}

func (e *BuildError) Error() string {
	if e.Name == "" {
		return fmt.Sprintf("failed to build schema: %s", e.Err)
	}
	return fmt.Sprintf("failed to build %s: %s", e.Name, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

func buildErrorf(name, format string, args ...interface{}) error {
	return &BuildError{Name: name, Err: errors.Errorf(format, args...)}
}
