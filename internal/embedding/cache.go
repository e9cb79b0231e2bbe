package embedding

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
)

// cacheKey ties a cached vector to both its content hash and the model that
// produced it, so switching embedding models can't serve stale vectors.
type cacheKey struct {
	contentHash string
	model       string
}

// CachingProvider wraps a Provider with an in-memory LRU cache keyed by
// content hash, so re-indexing runs over unchanged file content skip the
// embedding call entirely.
type CachingProvider struct {
	inner Provider
	cache *lru.Cache[cacheKey, []float32]
}

// NewCachingProvider builds a cache holding up to size entries. A size of
// zero or less falls back to 10000 entries.
func NewCachingProvider(inner Provider, size int) (*CachingProvider, error) {
	if size <= 0 {
		size = 10000
	}
	c, err := lru.New[cacheKey, []float32](size)
	if err != nil {
		return nil, err
	}
	return &CachingProvider{inner: inner, cache: c}, nil
}

// EmbedBatchHashed embeds texts, skipping any whose contentHash is already
// cached. hashes must be parallel to texts. Callers that don't have
// pre-computed content hashes should use EmbedBatch instead, which bypasses
// the cache.
func (c *CachingProvider) EmbedBatchHashed(ctx context.Context, texts []string, hashes []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, h := range hashes {
		key := cacheKey{contentHash: h, model: c.inner.ModelName()}
		if v, ok := c.cache.Get(key); ok {
			vectors[i] = v
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, texts[i])
	}

	if len(missTexts) == 0 {
		return vectors, nil
	}

	fresh, err := c.inner.EmbedBatch(ctx, missTexts)
	if err != nil {
		return nil, err
	}

	for j, idx := range missIdx {
		vectors[idx] = fresh[j]
		key := cacheKey{contentHash: hashes[idx], model: c.inner.ModelName()}
		c.cache.Add(key, fresh[j])
	}

	return vectors, nil
}

func (c *CachingProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return c.inner.EmbedBatch(ctx, texts)
}

func (c *CachingProvider) Dimensions() int         { return c.inner.Dimensions() }
func (c *CachingProvider) ModelName() string       { return c.inner.ModelName() }
func (c *CachingProvider) DefaultThreadCount() int { return c.inner.DefaultThreadCount() }

// Len returns the number of cached vectors, for metrics/tests.
func (c *CachingProvider) Len() int { return c.cache.Len() }
