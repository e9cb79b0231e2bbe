package embedding

import (
	"context"
	"testing"
)

type countingProvider struct {
	calls int
}

func (c *countingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls++
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t))}
	}
	return out, nil
}

func (c *countingProvider) Dimensions() int         { return 1 }
func (c *countingProvider) ModelName() string       { return "counting" }
func (c *countingProvider) DefaultThreadCount() int { return 1 }

func TestCachingProvider_SkipsCachedHashes(t *testing.T) {
	inner := &countingProvider{}
	cp, err := NewCachingProvider(inner, 10)
	if err != nil {
		t.Fatalf("NewCachingProvider failed: %v", err)
	}

	texts := []string{"aaa", "bb"}
	hashes := []string{"hash-a", "hash-b"}

	if _, err := cp.EmbedBatchHashed(context.Background(), texts, hashes); err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if inner.calls != 1 {
		t.Fatalf("expected 1 underlying call, got %d", inner.calls)
	}

	if _, err := cp.EmbedBatchHashed(context.Background(), texts, hashes); err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if inner.calls != 1 {
		t.Errorf("expected cache hit to avoid a second underlying call, got %d calls", inner.calls)
	}
}

func TestCachingProvider_PartialHitOnlyEmbedsMisses(t *testing.T) {
	inner := &countingProvider{}
	cp, _ := NewCachingProvider(inner, 10)

	_, err := cp.EmbedBatchHashed(context.Background(), []string{"a"}, []string{"hash-a"})
	if err != nil {
		t.Fatal(err)
	}

	vectors, err := cp.EmbedBatchHashed(context.Background(), []string{"a", "bb"}, []string{"hash-a", "hash-b"})
	if err != nil {
		t.Fatal(err)
	}
	if len(vectors) != 2 {
		t.Fatalf("expected 2 vectors, got %d", len(vectors))
	}
	if inner.calls != 2 {
		t.Errorf("expected second underlying call to embed only the miss, got %d total calls", inner.calls)
	}
}

// switchableModelProvider is a countingProvider whose model name can be
// changed between calls.
type switchableModelProvider struct {
	countingProvider
	model string
}

func (s *switchableModelProvider) ModelName() string { return s.model }

func TestCachingProvider_DifferentModelsDontShareCache(t *testing.T) {
	innerA := &switchableModelProvider{model: "model-a"}
	cpA, _ := NewCachingProvider(innerA, 10)
	cpA.EmbedBatchHashed(context.Background(), []string{"a"}, []string{"hash-a"})

	if cpA.Len() != 1 {
		t.Errorf("expected 1 cached entry, got %d", cpA.Len())
	}

	innerA.model = "model-b"
	cpA.EmbedBatchHashed(context.Background(), []string{"a"}, []string{"hash-a"})
	if innerA.calls != 2 {
		t.Errorf("expected the same hash under a different model to miss the cache, got %d underlying calls", innerA.calls)
	}
}
