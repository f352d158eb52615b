package graph

import (
	"context"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	domain "github.com/yungbote/mindmesh-backend/internal/domain/mindmap"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
	"github.com/yungbote/mindmesh-backend/internal/platform/neo4jdb"
)

var schemaOnce sync.Once

// UpsertUtterance merges one committed node and its links into neo4j.
// A nil client is a no-op.
func UpsertUtterance(ctx context.Context, client *neo4jdb.Client, log *logger.Logger, node *domain.Node, links []*domain.Link) error {
	if client == nil || client.Driver == nil || node == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	nodeProps := map[string]any{
		"id":         node.ID.String(),
		"session_id": node.SessionID,
		"seq":        node.Seq,
		"user":       node.User,
		"text":       node.Text,
		"created_at": node.CreatedAt.UTC().Format(time.RFC3339Nano),
		"synced_at":  now,
	}
	linkRels := make([]map[string]any, 0, len(links))
	for _, l := range links {
		if l == nil {
			continue
		}
		linkRels = append(linkRels, map[string]any{
			"id":         l.ID.String(),
			"source_id":  l.SourceID.String(),
			"target_id":  l.TargetID.String(),
			"similarity": l.Similarity,
			"synced_at":  now,
		})
	}

	session := client.Driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: client.Database,
	})
	defer session.Close(ctx)

	schemaOnce.Do(func() {
		stmts := []string{
			`CREATE CONSTRAINT mm_session_id_unique IF NOT EXISTS FOR (s:MindSession) REQUIRE s.id IS UNIQUE`,
			`CREATE CONSTRAINT mm_thought_id_unique IF NOT EXISTS FOR (n:Thought) REQUIRE n.id IS UNIQUE`,
		}
		for _, q := range stmts {
			if res, err := session.Run(ctx, q, nil); err != nil {
				if log != nil {
					log.Warn("neo4j schema init failed (continuing)", "error", err)
				}
			} else {
				_, _ = res.Consume(ctx)
			}
		}
	})

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, `
MERGE (s:MindSession {id: $node.session_id})
SET s.synced_at = $synced_at
WITH s
MERGE (n:Thought {id: $node.id})
SET n += $node
MERGE (s)-[e:HAS_THOUGHT]->(n)
SET e.synced_at = $synced_at
`, map[string]any{"node": nodeProps, "synced_at": now})
		if err != nil {
			return nil, err
		}
		if _, err := res.Consume(ctx); err != nil {
			return nil, err
		}

		if len(linkRels) == 0 {
			return nil, nil
		}
		res, err = tx.Run(ctx, `
UNWIND $links AS l
MATCH (src:Thought {id: l.source_id})
MATCH (dst:Thought {id: l.target_id})
MERGE (src)-[r:SIMILAR_TO {id: l.id}]->(dst)
SET r.similarity = l.similarity, r.synced_at = l.synced_at
`, map[string]any{"links": linkRels})
		if err != nil {
			return nil, err
		}
		_, err = res.Consume(ctx)
		return nil, err
	})
	return err
}
