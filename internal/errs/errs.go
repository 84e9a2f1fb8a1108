// Package errs defines the failure taxonomy shared across the ingestion
// pipeline. Components tag errors with a kind; callers test with errors.Is.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrIO covers disk and network failures while staging or mirroring files.
	ErrIO = errors.New("i/o failure")
	// ErrFormat covers unrecognized extensions, corrupt archives, and missing
	// required archive members.
	ErrFormat = errors.New("unsupported or corrupt format")
	// ErrDigest is returned when the configured hash algorithm is unknown.
	ErrDigest = errors.New("digest algorithm unavailable")
	// ErrAuthorization is returned before any file I/O when the caller lacks
	// the required role.
	ErrAuthorization = errors.New("authorization denied")
	// ErrCatalog covers any collaborator-store failure.
	ErrCatalog = errors.New("catalog failure")
	// ErrNotification marks publish failures; always non-fatal.
	ErrNotification = errors.New("notification failure")
)

type tagged struct {
	kind error
	err  error
}

func (t *tagged) Error() string { return t.kind.Error() + ": " + t.err.Error() }

func (t *tagged) Is(target error) bool { return target == t.kind }

func (t *tagged) Unwrap() error { return t.err }

// Tag attaches a taxonomy kind to err, preserving the wrapped chain.
// Returns nil when err is nil.
func Tag(kind, err error) error {
	if err == nil {
		return nil
	}
	return &tagged{kind: kind, err: err}
}

// Tagf tags a freshly formatted error with the given kind.
func Tagf(kind error, format string, args ...any) error {
	return Tag(kind, fmt.Errorf(format, args...))
}
