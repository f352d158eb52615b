package graph

import (
	"context"
	"sync"
	"time"

	domain "github.com/yungbote/mindmesh-backend/internal/domain/mindmap"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
	"github.com/yungbote/mindmesh-backend/internal/platform/neo4jdb"
)

type projection struct {
	node  *domain.Node
	links []*domain.Link
}

// Neo4jProjector mirrors committed utterances into neo4j on a single worker so
// nodes land before the links that reference them. Full queues drop work.
type Neo4jProjector struct {
	client  *neo4jdb.Client
	log     *logger.Logger
	queue   chan projection
	timeout time.Duration

	mu      sync.RWMutex
	closed  bool
	started bool
	done    chan struct{}
}

func NewNeo4jProjector(client *neo4jdb.Client, log *logger.Logger, buffer int) *Neo4jProjector {
	if buffer <= 0 {
		buffer = 256
	}
	return &Neo4jProjector{
		client:  client,
		log:     log.With("component", "Neo4jProjector"),
		queue:   make(chan projection, buffer),
		timeout: 10 * time.Second,
		done:    make(chan struct{}),
	}
}

// Start runs the worker until ctx is cancelled or Close is called.
func (p *Neo4jProjector) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.closed {
		return
	}
	p.started = true
	go func() {
		defer close(p.done)
		for {
			select {
			case <-ctx.Done():
				return
			case job, ok := <-p.queue:
				if !ok {
					return
				}
				p.write(ctx, job)
			}
		}
	}()
}

func (p *Neo4jProjector) write(ctx context.Context, job projection) {
	wctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if err := UpsertUtterance(wctx, p.client, p.log, job.node, job.links); err != nil {
		p.log.Warn("neo4j projection failed", "session_id", job.node.SessionID, "node_id", job.node.ID, "error", err)
	}
}

func (p *Neo4jProjector) Project(node *domain.Node, links []*domain.Link) {
	if p == nil || node == nil {
		return
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- projection{node: node, links: links}:
	default:
		p.log.Warn("neo4j projection queue full, dropping", "session_id", node.SessionID, "node_id", node.ID)
	}
}

// Close stops accepting work and waits for the worker to drain.
func (p *Neo4jProjector) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	started := p.started
	p.mu.Unlock()
	if started {
		<-p.done
	}
}
