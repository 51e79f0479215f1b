package tracker

import (
	"errors"
	"fmt"
)

var (
	// ErrUnresolved is matched by every ResolutionError.
	ErrUnresolved = errors.New("snapshot reference could not be resolved")
	// ErrSnapshotExists is returned when taking a snapshot under a taken name without force.
	ErrSnapshotExists = errors.New("snapshot already exists")
	// ErrEnvironmentNotConfigured is returned for an environment missing from the configuration.
	ErrEnvironmentNotConfigured = errors.New("environment not configured")
	// ErrEnvironmentDisabled is returned for a configured environment with enabled: false.
	ErrEnvironmentDisabled = errors.New("environment disabled")
)

// ResolutionError reports a snapshot reference that maps to no stored snapshot
type ResolutionError struct {
	Ref string
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("snapshot not found: %s", e.Ref)
}

func (e *ResolutionError) Is(target error) bool {
	return target == ErrUnresolved
}

// WriteError reports a failed write of a snapshot or rendered output
type WriteError struct {
	Target string
	Err    error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Target, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// ExtractionError reports a failed schema introspection
type ExtractionError struct {
	Driver string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("failed to extract schema (%s): %v", e.Driver, e.Err)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}
