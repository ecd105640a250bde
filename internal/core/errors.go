package core

import (
	"errors"
	"fmt"
)

var (
	// ErrFileAccess is matched by every *FileAccessError.
	ErrFileAccess = errors.New("file access error")

	// ErrStaleReference is returned when a cached entity belongs to a
	// persistence session that has since been reset.
	ErrStaleReference = errors.New("stale reference: entity belongs to a cleared session")

	// ErrImportInProgress is returned when another import holds the run slot.
	ErrImportInProgress = errors.New("import in progress")
)

// FileAccessError reports an input file that is missing, a directory, or
// cannot be opened for reading. It is fatal for the whole run.
type FileAccessError struct {
	Path string
	Op   string
	Err  error
}

func (e *FileAccessError) Error() string {
	return fmt.Sprintf("cannot %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *FileAccessError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrFileAccess) match any FileAccessError.
func (e *FileAccessError) Is(target error) bool { return target == ErrFileAccess }

// RowError is a recoverable problem with one input row.
type RowError struct {
	Line   int
	Reason string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Reason)
}

func rowErrorf(line int, format string, args ...any) *RowError {
	return &RowError{Line: line, Reason: fmt.Sprintf(format, args...)}
}
