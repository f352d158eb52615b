package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

type Config struct {
	Model          string
	BaseURL        string
	APIKey         string
	Dims           int
	Timeout        time.Duration
	MaxConcurrency int
	MaxRetries     int
	// Cache is optional; nil disables content-addressed caching of primary vectors.
	Cache Cache
}

// Select picks the provider once: the primary when BaseURL is set and a probe
// embed succeeds, otherwise the deterministic fallback. The result is wrapped
// with a worker pool and, for the primary, a cache and circuit breaker.
func Select(ctx context.Context, log *logger.Logger, cfg Config) Provider {
	slog := log.With("component", "EmbeddingSelect")
	width := cfg.MaxConcurrency

	if cfg.BaseURL == "" {
		slog.Warn("no embedding server configured, using deterministic fallback", "dims", fallbackDims(cfg))
		return NewPooledProvider(NewFallback(fallbackDims(cfg)), width)
	}

	primary, err := NewHTTPProvider(HTTPConfig{
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Model:      cfg.Model,
		Timeout:    cfg.Timeout,
		MaxRetries: cfg.MaxRetries,
	})
	if err == nil {
		err = probe(ctx, primary, cfg.Timeout)
	}
	if err != nil {
		slog.Warn("primary embedding model unavailable, using deterministic fallback",
			"model", cfg.Model, "error", err, "dims", fallbackDims(cfg))
		return NewPooledProvider(NewFallback(fallbackDims(cfg)), width)
	}
	if cfg.Dims > 0 && primary.Dims() != cfg.Dims {
		slog.Warn("primary embedding dims differ from configuration", "configured", cfg.Dims, "actual", primary.Dims())
	}
	slog.Info("primary embedding model selected", "model", cfg.Model, "dims", primary.Dims())

	var p Provider = primary
	if cfg.Cache != nil {
		p = NewCachedProvider(p, cfg.Cache, log)
	}
	p = NewBreakerProvider(p, DefaultBreakerConfig("embedding:"+cfg.Model), log)
	return NewPooledProvider(p, width)
}

func probe(ctx context.Context, p Provider, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	pctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	vecs, err := p.Embed(pctx, []string{"mindmesh probe"})
	if err != nil {
		return err
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return fmt.Errorf("probe returned no vector")
	}
	return nil
}

func fallbackDims(cfg Config) int {
	if cfg.Dims > 0 {
		return cfg.Dims
	}
	return DefaultDims
}
