package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/mindmesh-backend/internal/platform/apierr"
	"github.com/yungbote/mindmesh-backend/internal/platform/ctxutil"
)

// ErrorBody is the REST error shape. Socket clients get realtime error frames.
type ErrorBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	TraceID string `json:"trace_id,omitempty"`
}

type ErrorEnvelope struct {
	Error ErrorBody `json:"error"`
}

// StatusFor maps an error kind to an HTTP status.
func StatusFor(err error) int {
	switch apierr.KindOf(err) {
	case apierr.BadFrame, apierr.EmptyText:
		return http.StatusBadRequest
	case apierr.EmbedError:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// RespondError writes err with the status its kind maps to. Server-side causes
// stay in the request log and never reach the client.
func RespondError(c *gin.Context, err error) {
	status := StatusFor(err)
	kind := string(apierr.KindOf(err))
	if kind == "" {
		kind = "internal"
	}
	msg := "internal error"
	if status < http.StatusInternalServerError && err != nil {
		msg = err.Error()
	}
	if err != nil {
		_ = c.Error(err)
	}
	write(c, status, ErrorBody{Kind: kind, Message: msg})
}

func RespondBadRequest(c *gin.Context, message string) {
	write(c, http.StatusBadRequest, ErrorBody{Kind: "bad_request", Message: message})
}

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func write(c *gin.Context, status int, body ErrorBody) {
	if td := ctxutil.GetTraceData(c.Request.Context()); td != nil {
		body.TraceID = td.TraceID
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{Error: body})
}
