package domain

import (
	"errors"
)

// Common domain errors
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidKey        = errors.New("invalid asset key")
	ErrInvalidResolution = errors.New("invalid resolution")
	ErrNotReady          = errors.New("asset not ready")
	ErrCancelled         = errors.New("acquisition cancelled")

	// Archive errors
	ErrEmptyArchive  = errors.New("archive contains no files")
	ErrNotZipArchive = errors.New("not a zip archive")
	ErrUnsafePath    = errors.New("archive entry escapes destination")

	// Download errors
	ErrTruncated         = errors.New("download ended before expected size")
	ErrInsufficientSpace = errors.New("insufficient cache space")
)

// ErrorKind classifies acquisition failures
type ErrorKind string

// Error kinds surfaced by the cache manager
const (
	KindNetwork    ErrorKind = "network"
	KindArchive    ErrorKind = "archive"
	KindFilesystem ErrorKind = "filesystem"
)

// AcquireError is a classified failure of one acquisition step.
// All kinds are recoverable by the caller.
type AcquireError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Error returns the error message
func (e *AcquireError) Error() string {
	msg := string(e.Kind) + " error"
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying error
func (e *AcquireError) Unwrap() error {
	return e.Err
}

// NewNetworkError creates a network error
func NewNetworkError(op string, err error) *AcquireError {
	return &AcquireError{Kind: KindNetwork, Op: op, Err: err}
}

// NewArchiveError creates an archive error
func NewArchiveError(op string, err error) *AcquireError {
	return &AcquireError{Kind: KindArchive, Op: op, Err: err}
}

// NewFilesystemError creates a filesystem error
func NewFilesystemError(op string, err error) *AcquireError {
	return &AcquireError{Kind: KindFilesystem, Op: op, Err: err}
}

// KindOf returns the kind of an AcquireError in err's chain
func KindOf(err error) (ErrorKind, bool) {
	var ae *AcquireError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return "", false
}

// IsNetwork returns true if err is a network error
func IsNetwork(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNetwork
}

// IsArchive returns true if err is an archive error
func IsArchive(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindArchive
}

// IsFilesystem returns true if err is a filesystem error
func IsFilesystem(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindFilesystem
}
