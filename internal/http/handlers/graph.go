package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mindmesh-backend/internal/http/response"
	"github.com/yungbote/mindmesh-backend/internal/mindmap"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

// GraphHandler serves the committed graph of a session for clients that
// (re)connect and need the current canvas.
type GraphHandler struct {
	log     *logger.Logger
	manager *mindmap.SessionManager
}

func NewGraphHandler(log *logger.Logger, manager *mindmap.SessionManager) *GraphHandler {
	return &GraphHandler{log: log.With("handler", "GraphHandler"), manager: manager}
}

// GET /api/sessions/:session_id/graph
func (h *GraphHandler) GetGraph(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		response.RespondBadRequest(c, "missing session id")
		return
	}
	snap, err := h.manager.Snapshot(c.Request.Context(), sessionID)
	if err != nil {
		h.log.Error("Graph snapshot failed", "session_id", sessionID, "error", err)
		response.RespondError(c, err)
		return
	}
	response.RespondOK(c, snap)
}
