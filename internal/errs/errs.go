// Package errs defines the failure taxonomy shared across the indexing
// pipeline: transport/rate-limit/permanent errors from external
// collaborators, and the invariant-level errors the orchestrator reacts to.
package errs

import "errors"

// TransientError wraps a retryable transport failure (HTTP to the vector
// store or the embedding provider). Callers retry with exponential backoff.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *TransientError) Unwrap() error { return e.Err }

// RateLimitedError signals the embedding provider asked the caller to slow
// down. RetryAfter is zero when the provider gave no explicit hint, in
// which case the caller falls back to its own backoff schedule.
type RateLimitedError struct {
	Op         string
	Err        error
	RetryAfter int64 // seconds; 0 = no hint
}

func (e *RateLimitedError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *RateLimitedError) Unwrap() error { return e.Err }

// PermanentError signals a non-retryable failure (auth, schema, malformed
// request). The operation that produced it must abort immediately.
type PermanentError struct {
	Op  string
	Err error
}

func (e *PermanentError) Error() string { return e.Op + ": " + e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// ErrConcurrentIndexing is returned when the exclusive indexing lock for a
// project is already held by another process.
var ErrConcurrentIndexing = errors.New("another indexing operation is already running for this project")

// ErrNotAGitRepo is returned by GitTopology methods on a non-git project.
var ErrNotAGitRepo = errors.New("not a git repository")

// IsRetryable reports whether err should be retried by the caller
// (TransientError or RateLimitedError, directly or wrapped).
func IsRetryable(err error) bool {
	var t *TransientError
	var r *RateLimitedError
	return errors.As(err, &t) || errors.As(err, &r)
}
