package mindmap

import (
	"fmt"

	"gorm.io/gorm"

	domain "github.com/yungbote/mindmesh-backend/internal/domain/mindmap"
	"github.com/yungbote/mindmesh-backend/internal/pkg/dbctx"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

type NodeRepo interface {
	Create(dbc dbctx.Context, row *domain.Node) error
	GetMaxSeq(dbc dbctx.Context, sessionID string) (int64, error)
	// ListBySession returns nodes in insertion order.
	ListBySession(dbc dbctx.Context, sessionID string) ([]*domain.Node, error)
	Count(dbc dbctx.Context, sessionID string) (int64, error)
}

type nodeRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewNodeRepo(db *gorm.DB, log *logger.Logger) NodeRepo {
	return &nodeRepo{db: db, log: log.With("repo", "NodeRepo")}
}

func (r *nodeRepo) Create(dbc dbctx.Context, row *domain.Node) error {
	if row == nil {
		return fmt.Errorf("nil node")
	}
	if row.SessionID == "" {
		return fmt.Errorf("missing session_id")
	}
	return dbc.DB(r.db).Create(row).Error
}

func (r *nodeRepo) GetMaxSeq(dbc dbctx.Context, sessionID string) (int64, error) {
	var maxSeq int64
	if err := dbc.DB(r.db).
		Model(&domain.Node{}).
		Select("COALESCE(MAX(seq), 0)").
		Where("session_id = ?", sessionID).
		Scan(&maxSeq).Error; err != nil {
		return 0, err
	}
	return maxSeq, nil
}

func (r *nodeRepo) ListBySession(dbc dbctx.Context, sessionID string) ([]*domain.Node, error) {
	var out []*domain.Node
	if err := dbc.DB(r.db).
		Model(&domain.Node{}).
		Where("session_id = ?", sessionID).
		Order("seq ASC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *nodeRepo) Count(dbc dbctx.Context, sessionID string) (int64, error) {
	var n int64
	err := dbc.DB(r.db).Model(&domain.Node{}).Where("session_id = ?", sessionID).Count(&n).Error
	return n, err
}
