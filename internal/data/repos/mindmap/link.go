package mindmap

import (
	"gorm.io/gorm"

	domain "github.com/yungbote/mindmesh-backend/internal/domain/mindmap"
	"github.com/yungbote/mindmesh-backend/internal/pkg/dbctx"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

type LinkRepo interface {
	Create(dbc dbctx.Context, rows []*domain.Link) error
	ListBySession(dbc dbctx.Context, sessionID string) ([]*domain.Link, error)
}

type linkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewLinkRepo(db *gorm.DB, log *logger.Logger) LinkRepo {
	return &linkRepo{db: db, log: log.With("repo", "LinkRepo")}
}

func (r *linkRepo) Create(dbc dbctx.Context, rows []*domain.Link) error {
	if len(rows) == 0 {
		return nil
	}
	return dbc.DB(r.db).Create(&rows).Error
}

func (r *linkRepo) ListBySession(dbc dbctx.Context, sessionID string) ([]*domain.Link, error) {
	var out []*domain.Link
	if err := dbc.DB(r.db).
		Model(&domain.Link{}).
		Where("session_id = ?", sessionID).
		Order("created_at ASC, similarity DESC").
		Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}
