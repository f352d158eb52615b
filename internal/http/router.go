package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/mindmesh-backend/internal/http/handlers"
	httpMW "github.com/yungbote/mindmesh-backend/internal/http/middleware"
	"github.com/yungbote/mindmesh-backend/internal/observability"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger
	// Metrics is optional; nil disables /metrics and request instrumentation.
	Metrics *observability.Metrics
	// TracingService names otelgin spans. Empty disables the tracing middleware.
	TracingService string
	CORSOrigins    []string

	HealthHandler  *httpH.HealthHandler
	SessionHandler *httpH.SessionSocketHandler
	GraphHandler   *httpH.GraphHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingService != "" {
		r.Use(otelgin.Middleware(cfg.TracingService))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/", cfg.HealthHandler.Root)
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	// Ingress channel
	if cfg.SessionHandler != nil {
		r.GET("/ws/session/:session_id", cfg.SessionHandler.Serve)
	}

	api := r.Group("/api")
	{
		if cfg.GraphHandler != nil {
			api.GET("/sessions/:session_id/graph", cfg.GraphHandler.GetGraph)
		}
	}

	return r
}
