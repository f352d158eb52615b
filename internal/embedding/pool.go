package embedding

import (
	"context"
	"fmt"

	"golang.org/x/sync/semaphore"
)

// PooledProvider bounds the number of in-flight Embed calls across all sessions.
type PooledProvider struct {
	inner Provider
	sem   *semaphore.Weighted
}

func NewPooledProvider(inner Provider, width int) *PooledProvider {
	if width <= 0 {
		width = 1
	}
	return &PooledProvider{inner: inner, sem: semaphore.NewWeighted(int64(width))}
}

func (p *PooledProvider) Name() string        { return p.inner.Name() }
func (p *PooledProvider) Dims() int           { return p.inner.Dims() }
func (p *PooledProvider) Deterministic() bool { return p.inner.Deterministic() }

func (p *PooledProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer p.sem.Release(1)
	return p.inner.Embed(ctx, texts)
}
