package app

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/mindmesh-backend/internal/embedding"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
	"github.com/yungbote/mindmesh-backend/internal/platform/neo4jdb"
)

type Clients struct {
	Embedder embedding.Provider
	// Optional; nil when unconfigured.
	EmbeddingCache *embedding.RedisCache
	Neo4j          *neo4jdb.Client
}

// wireClients connects the optional backends concurrently, then selects the
// embedding provider once the cache is known.
func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (Clients, error) {
	log.Info("Wiring clients...")
	var out Clients

	g, gctx := errgroup.WithContext(ctx)
	if cfg.RedisAddr != "" {
		g.Go(func() error {
			rc, err := embedding.NewRedisCache(gctx, cfg.RedisAddr, cfg.RedisEmbeddingTTL)
			if err != nil {
				// The cache is an optimization; run without it.
				log.Warn("Embedding cache unavailable, continuing without it", "error", err)
				return nil
			}
			out.EmbeddingCache = rc
			return nil
		})
	}
	if cfg.Neo4jURI != "" {
		g.Go(func() error {
			c, err := neo4jdb.New(gctx, log, neo4jdb.Config{
				URI:      cfg.Neo4jURI,
				User:     cfg.Neo4jUser,
				Password: cfg.Neo4jPassword,
				Database: cfg.Neo4jDatabase,
			})
			if err != nil {
				return fmt.Errorf("init neo4j: %w", err)
			}
			out.Neo4j = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		out.close(context.Background())
		return Clients{}, err
	}

	ecfg := embedding.Config{
		Model:          cfg.SentenceModel,
		BaseURL:        cfg.EmbeddingBaseURL,
		APIKey:         cfg.EmbeddingAPIKey,
		Dims:           cfg.EmbeddingDims,
		Timeout:        cfg.EmbeddingTimeout,
		MaxConcurrency: cfg.EmbeddingMaxConcurrency,
		MaxRetries:     cfg.EmbeddingMaxRetries,
	}
	if out.EmbeddingCache != nil {
		ecfg.Cache = out.EmbeddingCache
	}
	out.Embedder = embedding.Select(ctx, log, ecfg)
	return out, nil
}

func (c Clients) close(ctx context.Context) {
	if c.EmbeddingCache != nil {
		_ = c.EmbeddingCache.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(ctx)
	}
}
