package app

import (
	"github.com/yungbote/mindmesh-backend/internal/data/graph"
	"github.com/yungbote/mindmesh-backend/internal/mindmap"
	"github.com/yungbote/mindmesh-backend/internal/observability"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
	"github.com/yungbote/mindmesh-backend/internal/realtime"
)

const projectionBuffer = 1024

type Services struct {
	Hub       *realtime.Hub
	Sessions  *mindmap.SessionManager
	Projector *graph.Neo4jProjector
}

func wireServices(log *logger.Logger, cfg Config, repos Repos, clients Clients, metrics *observability.Metrics) (Services, error) {
	log.Info("Wiring services...")
	hub := realtime.NewHub(log, metrics)

	deps := mindmap.Deps{
		Log:      log,
		Store:    repos.Graph,
		Provider: clients.Embedder,
		Hub:      hub,
		Metrics:  metrics,
	}
	var projector *graph.Neo4jProjector
	if clients.Neo4j != nil {
		projector = graph.NewNeo4jProjector(clients.Neo4j, log, projectionBuffer)
		deps.Projector = projector
	}

	sessions, err := mindmap.NewSessionManager(mindmap.Config{
		Threshold: cfg.SimilarityThreshold,
		TopK:      cfg.TopK,
		Reembed:   cfg.EmbeddingReembed,
	}, deps)
	if err != nil {
		return Services{}, err
	}
	return Services{Hub: hub, Sessions: sessions, Projector: projector}, nil
}
