package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/mindmesh-backend/internal/domain/mindmap"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&mindmap.Session{},
		&mindmap.Node{},
		&mindmap.Link{},
	)
}
