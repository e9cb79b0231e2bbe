package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/codelens/indexcore/internal/errs"
)

type fakeProvider struct {
	calls   int
	fail    []error // fail[i] is returned on the (i+1)th call; nil means succeed
	vectors [][]float32
}

func (f *fakeProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	idx := f.calls
	f.calls++
	if idx < len(f.fail) && f.fail[idx] != nil {
		return nil, f.fail[idx]
	}
	return f.vectors, nil
}

func (f *fakeProvider) Dimensions() int         { return 3 }
func (f *fakeProvider) ModelName() string       { return "fake" }
func (f *fakeProvider) DefaultThreadCount() int { return 1 }

func TestRetryingProvider_SucceedsAfterTransientFailures(t *testing.T) {
	fp := &fakeProvider{
		fail:    []error{&errs.TransientError{Op: "x", Err: errors.New("boom")}, &errs.TransientError{Op: "x", Err: errors.New("boom")}},
		vectors: [][]float32{{1, 2, 3}},
	}
	rp := NewRetryingProvider(fp, RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}, zerolog.Nop())

	vectors, err := rp.EmbedBatch(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if fp.calls != 3 {
		t.Errorf("expected 3 calls (2 failures + 1 success), got %d", fp.calls)
	}
	if len(vectors) != 1 {
		t.Errorf("expected 1 vector, got %d", len(vectors))
	}
}

func TestRetryingProvider_PermanentErrorNotRetried(t *testing.T) {
	fp := &fakeProvider{fail: []error{&errs.PermanentError{Op: "x", Err: errors.New("bad key")}}}
	rp := NewRetryingProvider(fp, RetryConfig{MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, zerolog.Nop())

	_, err := rp.EmbedBatch(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatal("expected permanent error to propagate")
	}
	if fp.calls != 1 {
		t.Errorf("expected exactly 1 call for a permanent error, got %d", fp.calls)
	}
}

func TestRetryingProvider_GivesUpAfterMaxAttempts(t *testing.T) {
	persistentErr := &errs.TransientError{Op: "x", Err: errors.New("still down")}
	fp := &fakeProvider{fail: []error{persistentErr, persistentErr, persistentErr}}
	rp := NewRetryingProvider(fp, RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, zerolog.Nop())

	_, err := rp.EmbedBatch(context.Background(), []string{"hello"})
	if err == nil {
		t.Fatal("expected failure after exhausting retries")
	}
	if fp.calls != 3 {
		t.Errorf("expected exactly MaxAttempts=3 calls, got %d", fp.calls)
	}
}

func TestRetryingProvider_RetriesRateLimitedWithoutHint(t *testing.T) {
	fp := &fakeProvider{
		fail:    []error{&errs.RateLimitedError{Op: "x", Err: errors.New("slow down"), RetryAfter: 0}},
		vectors: [][]float32{{1}},
	}
	// RetryAfter=0 means fall back to BaseDelay; just confirm it still retries and succeeds.
	rp := NewRetryingProvider(fp, RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}, zerolog.Nop())

	_, err := rp.EmbedBatch(context.Background(), []string{"hello"})
	if err != nil {
		t.Fatalf("expected success after rate limit retry, got %v", err)
	}
}

func TestRetryingProvider_CancelledContextStopsRetry(t *testing.T) {
	fp := &fakeProvider{fail: []error{&errs.TransientError{Op: "x", Err: errors.New("boom")}}}
	rp := NewRetryingProvider(fp, RetryConfig{MaxAttempts: 5, BaseDelay: time.Second, MaxDelay: time.Second}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := rp.EmbedBatch(ctx, []string{"hello"})
	if err == nil {
		t.Fatal("expected cancellation to stop the retry loop")
	}
}
