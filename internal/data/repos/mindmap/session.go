package mindmap

import (
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	domain "github.com/yungbote/mindmesh-backend/internal/domain/mindmap"
	"github.com/yungbote/mindmesh-backend/internal/pkg/dbctx"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

type SessionRepo interface {
	// Ensure inserts the session row if it does not exist yet.
	Ensure(dbc dbctx.Context, sessionID string) error
	Get(dbc dbctx.Context, sessionID string) (*domain.Session, error)
}

type sessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSessionRepo(db *gorm.DB, log *logger.Logger) SessionRepo {
	return &sessionRepo{db: db, log: log.With("repo", "SessionRepo")}
}

func (r *sessionRepo) Ensure(dbc dbctx.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return fmt.Errorf("missing session_id")
	}
	row := &domain.Session{ID: sessionID, CreatedAt: time.Now().UTC()}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).
		Create(row).Error
}

func (r *sessionRepo) Get(dbc dbctx.Context, sessionID string) (*domain.Session, error) {
	var out domain.Session
	err := dbc.DB(r.db).Where("id = ?", sessionID).Limit(1).Find(&out).Error
	if err != nil {
		return nil, err
	}
	if out.ID == "" {
		return nil, nil
	}
	return &out, nil
}
