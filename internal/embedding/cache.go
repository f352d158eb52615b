package embedding

import (
	"context"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

// Cache is a content-addressed vector store. Get returns one entry per key,
// nil for misses.
type Cache interface {
	Get(ctx context.Context, keys []string) ([][]float32, error)
	Set(ctx context.Context, keys []string, vecs [][]float32) error
}

// CacheKey addresses a vector by model and exact text.
func CacheKey(model, text string) string {
	return strconv.FormatUint(xxhash.Sum64String(model+"\n"+text), 16)
}

// CachedProvider serves repeated texts from a Cache and embeds only the misses,
// in a single batch. Cache failures degrade to a plain pass-through.
type CachedProvider struct {
	inner Provider
	cache Cache
	log   *logger.Logger
}

func NewCachedProvider(inner Provider, cache Cache, log *logger.Logger) *CachedProvider {
	return &CachedProvider{inner: inner, cache: cache, log: log.With("component", "EmbeddingCache")}
}

func (c *CachedProvider) Name() string        { return c.inner.Name() }
func (c *CachedProvider) Dims() int           { return c.inner.Dims() }
func (c *CachedProvider) Deterministic() bool { return c.inner.Deterministic() }

func (c *CachedProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	keys := make([]string, len(texts))
	for i, t := range texts {
		keys[i] = CacheKey(c.inner.Name(), t)
	}

	out, err := c.cache.Get(ctx, keys)
	if err != nil || len(out) != len(texts) {
		if err != nil {
			c.log.Warn("embedding cache read failed", "error", err)
		}
		out = make([][]float32, len(texts))
	}

	var missTexts, missKeys []string
	var missIdx []int
	for i := range texts {
		if out[i] == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
			missKeys = append(missKeys, keys[i])
		}
	}
	if len(missIdx) == 0 {
		return out, nil
	}

	vecs, err := c.inner.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missTexts) {
		return nil, checkShape(c.inner.Name(), missTexts, vecs, c.inner.Dims())
	}
	for j, i := range missIdx {
		out[i] = vecs[j]
	}
	if err := c.cache.Set(ctx, missKeys, vecs); err != nil {
		c.log.Warn("embedding cache write failed", "error", err)
	}
	return out, nil
}
