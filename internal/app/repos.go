package app

import (
	"gorm.io/gorm"

	mmrepo "github.com/yungbote/mindmesh-backend/internal/data/repos/mindmap"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

type Repos struct {
	Graph *mmrepo.GraphStore
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Graph: mmrepo.NewGraphStore(db, log),
	}
}
