package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yungbote/mindmesh-backend/internal/platform/ctxutil"
)

const (
	headerTraceID   = "X-Trace-Id"
	headerRequestID = "X-Request-Id"
	headerSessionID = "X-Session-Id"
)

// AttachTraceContext puts trace, request and session ids on the request
// context. A socket keeps that context for its lifetime, so every utterance
// logged from it carries the ids of the upgrade request.
func AttachTraceContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		td := &ctxutil.TraceData{
			TraceID:   incomingTraceID(c),
			RequestID: strings.TrimSpace(c.GetHeader(headerRequestID)),
			SessionID: strings.TrimSpace(c.Param("session_id")),
		}
		if td.RequestID == "" {
			td.RequestID = uuid.New().String()
		}

		h := c.Writer.Header()
		h.Set(headerTraceID, td.TraceID)
		h.Set(headerRequestID, td.RequestID)
		if td.SessionID != "" {
			// Upgrade responses drop these headers; the span still records the room.
			h.Set(headerSessionID, td.SessionID)
			trace.SpanFromContext(ctx).SetAttributes(attribute.String("mindmesh.session_id", td.SessionID))
		}

		c.Request = c.Request.WithContext(ctxutil.WithTraceData(ctx, td))
		c.Set("trace_id", td.TraceID)
		c.Set("request_id", td.RequestID)
		c.Next()
	}
}

// incomingTraceID prefers the caller's header, then the active span.
func incomingTraceID(c *gin.Context) string {
	if id := strings.TrimSpace(c.GetHeader(headerTraceID)); id != "" {
		return id
	}
	if sc := trace.SpanContextFromContext(c.Request.Context()); sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return uuid.New().String()
}
