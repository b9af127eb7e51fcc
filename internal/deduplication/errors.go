package deduplication

import (
	"errors"
	"fmt"
)

// Kind classifies a deduplication failure.
type Kind string

const (
	// KindRead: a file could not be opened or read.
	KindRead Kind = "read"
	// KindPrecondition: a member changed between grouping and relocation.
	KindPrecondition Kind = "precondition"
	// KindFilesystem: a move, link or directory operation failed.
	KindFilesystem Kind = "filesystem"
	// KindFatalConfig: the run cannot start. Nothing has been mutated.
	KindFatalConfig Kind = "fatal-config"
)

// Error is a classified failure tied to a path.
type Error struct {
	Kind Kind
	Op   string
	Path string
	Err  error
}

// Sentinels for errors.Is matching on kind.
var (
	ErrRead         = &Error{Kind: KindRead}
	ErrPrecondition = &Error{Kind: KindPrecondition}
	ErrFilesystem   = &Error{Kind: KindFilesystem}
	ErrFatalConfig  = &Error{Kind: KindFatalConfig}
)

func (e *Error) Error() string {
	msg := string(e.Kind) + " error"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Kind == t.Kind
	}
	return false
}

func newError(kind Kind, op, path string, err error) *Error {
	return &Error{Kind: kind, Op: op, Path: path, Err: err}
}

func readError(op, path string, err error) *Error {
	return newError(KindRead, op, path, err)
}

func preconditionError(path, format string, args ...any) *Error {
	return newError(KindPrecondition, "verify", path, fmt.Errorf(format, args...))
}

func filesystemError(op, path string, err error) *Error {
	return newError(KindFilesystem, op, path, err)
}

func fatalConfigError(format string, args ...any) *Error {
	return newError(KindFatalConfig, "preflight", "", fmt.Errorf(format, args...))
}

// KindOf returns the kind of err, or "" if it is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
