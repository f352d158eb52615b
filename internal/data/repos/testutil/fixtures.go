package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	domain "github.com/yungbote/mindmesh-backend/internal/domain/mindmap"
)

func SeedSession(tb testing.TB, ctx context.Context, tx *gorm.DB, id string) *domain.Session {
	tb.Helper()
	s := &domain.Session{ID: id, CreatedAt: time.Now().UTC()}
	if err := tx.WithContext(ctx).Create(s).Error; err != nil {
		tb.Fatalf("seed session: %v", err)
	}
	return s
}

// SeedNode inserts a node at the given position in its session.
func SeedNode(tb testing.TB, ctx context.Context, tx *gorm.DB, sessionID string, seq int64, text string) *domain.Node {
	tb.Helper()
	n := &domain.Node{
		ID:        uuid.New(),
		SessionID: sessionID,
		Seq:       seq,
		User:      "seed",
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(n).Error; err != nil {
		tb.Fatalf("seed node: %v", err)
	}
	return n
}

func SeedLink(tb testing.TB, ctx context.Context, tx *gorm.DB, source, target *domain.Node, sim float64, at time.Time) *domain.Link {
	tb.Helper()
	l := &domain.Link{
		ID:         uuid.New(),
		SessionID:  target.SessionID,
		SourceID:   source.ID,
		TargetID:   target.ID,
		Similarity: sim,
		CreatedAt:  at,
	}
	if err := tx.WithContext(ctx).Create(l).Error; err != nil {
		tb.Fatalf("seed link: %v", err)
	}
	return l
}
