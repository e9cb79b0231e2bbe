package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/codelens/indexcore/internal/errs"
)

// RetryConfig controls RetryingProvider's backoff schedule.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryConfig backs off 1s, 2s, 4s, capped at 30s, for up to 5 tries.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: 30 * time.Second}
}

// RetryingProvider wraps a Provider and retries EmbedBatch calls that fail
// with a transient or rate-limited error, honoring RateLimitedError's
// RetryAfter hint when present. It is a plain wrapper, not a method on the
// wrapped type, so any Provider implementation gets retry behavior for free
// without needing to know about it.
type RetryingProvider struct {
	inner  Provider
	cfg    RetryConfig
	logger zerolog.Logger
}

// NewRetryingProvider wraps inner with cfg's backoff schedule.
func NewRetryingProvider(inner Provider, cfg RetryConfig, logger zerolog.Logger) *RetryingProvider {
	if cfg.MaxAttempts <= 0 {
		cfg = DefaultRetryConfig()
	}
	return &RetryingProvider{inner: inner, cfg: cfg, logger: logger}
}

func (r *RetryingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	delay := r.cfg.BaseDelay

	for attempt := 1; attempt <= r.cfg.MaxAttempts; attempt++ {
		vectors, err := r.inner.EmbedBatch(ctx, texts)
		if err == nil {
			return vectors, nil
		}
		lastErr = err

		var perm *errs.PermanentError
		if errors.As(err, &perm) {
			return nil, err
		}
		if !errs.IsRetryable(err) {
			return nil, err
		}
		if attempt == r.cfg.MaxAttempts {
			break
		}

		wait := delay
		var rl *errs.RateLimitedError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			wait = time.Duration(rl.RetryAfter) * time.Second
		}

		r.logger.Warn().
			Int("attempt", attempt).
			Dur("wait", wait).
			Err(err).
			Msg("embedding call failed, retrying")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		delay *= 2
		if delay > r.cfg.MaxDelay {
			delay = r.cfg.MaxDelay
		}
	}

	return nil, lastErr
}

func (r *RetryingProvider) Dimensions() int          { return r.inner.Dimensions() }
func (r *RetryingProvider) ModelName() string        { return r.inner.ModelName() }
func (r *RetryingProvider) DefaultThreadCount() int  { return r.inner.DefaultThreadCount() }
