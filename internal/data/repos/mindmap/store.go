package mindmap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/mindmesh-backend/internal/domain/mindmap"
	"github.com/yungbote/mindmesh-backend/internal/pkg/dbctx"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

// GraphStore is the transactional write path for one utterance plus the read
// paths used for cache hydration and graph snapshots.
type GraphStore struct {
	db       *gorm.DB
	log      *logger.Logger
	sessions SessionRepo
	nodes    NodeRepo
	links    LinkRepo
}

func NewGraphStore(db *gorm.DB, log *logger.Logger) *GraphStore {
	return &GraphStore{
		db:       db,
		log:      log.With("repo", "GraphStore"),
		sessions: NewSessionRepo(db, log),
		nodes:    NewNodeRepo(db, log),
		links:    NewLinkRepo(db, log),
	}
}

// UtteranceTx is one open utterance transaction. Nothing is visible until Commit.
type UtteranceTx interface {
	InsertNode(n *domain.Node) (uuid.UUID, error)
	InsertLink(l *domain.Link) error
	Commit() error
	Rollback() error
}

// GraphTx is the gorm-backed UtteranceTx.
type GraphTx struct {
	dbc       dbctx.Context
	store     *GraphStore
	sessionOK map[string]bool
	done      bool
	now       time.Time
}

func (s *GraphStore) Begin(ctx context.Context) (UtteranceTx, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, fmt.Errorf("begin tx: %w", tx.Error)
	}
	return &GraphTx{
		dbc:       dbctx.Context{Ctx: ctx, Tx: tx},
		store:     s,
		sessionOK: map[string]bool{},
		now:       time.Now().UTC(),
	}, nil
}

// InsertNode upserts the session row, assigns the next seq and an id when unset,
// and inserts n. It returns the node id.
func (t *GraphTx) InsertNode(n *domain.Node) (uuid.UUID, error) {
	if n == nil {
		return uuid.Nil, fmt.Errorf("nil node")
	}
	if strings.TrimSpace(n.Text) == "" {
		return uuid.Nil, fmt.Errorf("empty node text")
	}
	if !t.sessionOK[n.SessionID] {
		if err := t.store.sessions.Ensure(t.dbc, n.SessionID); err != nil {
			return uuid.Nil, fmt.Errorf("ensure session: %w", err)
		}
		t.sessionOK[n.SessionID] = true
	}
	maxSeq, err := t.store.nodes.GetMaxSeq(t.dbc, n.SessionID)
	if err != nil {
		return uuid.Nil, fmt.Errorf("next seq: %w", err)
	}
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	n.Seq = maxSeq + 1
	if n.CreatedAt.IsZero() {
		n.CreatedAt = t.now
	}
	if err := t.store.nodes.Create(t.dbc, n); err != nil {
		return uuid.Nil, fmt.Errorf("insert node: %w", err)
	}
	return n.ID, nil
}

func (t *GraphTx) InsertLink(l *domain.Link) error {
	if l == nil {
		return fmt.Errorf("nil link")
	}
	if l.SourceID == l.TargetID {
		return fmt.Errorf("self link %s", l.SourceID)
	}
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = t.now
	}
	if err := t.store.links.Create(t.dbc, []*domain.Link{l}); err != nil {
		return fmt.Errorf("insert link: %w", err)
	}
	return nil
}

func (t *GraphTx) Commit() error {
	if t.done {
		return fmt.Errorf("transaction already finished")
	}
	t.done = true
	return t.dbc.Tx.Commit().Error
}

// Rollback is a no-op after Commit, so it is safe to defer.
func (t *GraphTx) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.dbc.Tx.Rollback().Error
}

func (s *GraphStore) ListNodes(ctx context.Context, sessionID string) ([]*domain.Node, error) {
	return s.nodes.ListBySession(dbctx.Context{Ctx: ctx}, sessionID)
}

func (s *GraphStore) ListLinks(ctx context.Context, sessionID string) ([]*domain.Link, error) {
	return s.links.ListBySession(dbctx.Context{Ctx: ctx}, sessionID)
}

func (s *GraphStore) Session(ctx context.Context, sessionID string) (*domain.Session, error) {
	return s.sessions.Get(dbctx.Context{Ctx: ctx}, sessionID)
}
