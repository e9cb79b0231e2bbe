// Package embedding defines the embedding provider contract and the
// decorators (retry, caching) that wrap a concrete provider.
package embedding

import (
	"context"
)

// Provider turns text into vectors. Implementations must classify their own
// failures into errs.TransientError, errs.RateLimitedError or
// errs.PermanentError so callers know whether to retry.
type Provider interface {
	// EmbedBatch embeds a batch of texts in a single request where the
	// underlying API supports it. The returned slice has exactly
	// len(texts) entries, in the same order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of vectors this provider emits.
	Dimensions() int

	// ModelName returns the embedding model identifier, used in the
	// collection name so switching models forces a fresh collection.
	ModelName() string

	// DefaultThreadCount hints how many goroutines should call EmbedBatch
	// concurrently. Remote HTTP providers suggest a small number to stay
	// under rate limits; local providers may suggest the CPU count.
	DefaultThreadCount() int
}
