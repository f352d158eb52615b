package app

import (
	"github.com/yungbote/mindmesh-backend/internal/http"
	httpH "github.com/yungbote/mindmesh-backend/internal/http/handlers"
	httpMW "github.com/yungbote/mindmesh-backend/internal/http/middleware"
	"github.com/yungbote/mindmesh-backend/internal/observability"
	"github.com/yungbote/mindmesh-backend/internal/platform/logger"
)

type Handlers struct {
	Health  *httpH.HealthHandler
	Session *httpH.SessionSocketHandler
	Graph   *httpH.GraphHandler
}

func wireHandlers(log *logger.Logger, cfg Config, services Services) Handlers {
	log.Info("Wiring handlers...")
	socketCfg := httpH.SocketConfig{
		MaxMessageSize: cfg.WSMaxMessageBytes,
		SendBuffer:     cfg.WSSendBuffer,
		AllowedOrigins: httpMW.ParseOrigins(cfg.CORSOrigins),
	}
	return Handlers{
		Health:  httpH.NewHealthHandler("mindmesh"),
		Session: httpH.NewSessionSocketHandler(log, services.Sessions, socketCfg),
		Graph:   httpH.NewGraphHandler(log, services.Sessions),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, metrics *observability.Metrics) *http.Server {
	tracing := ""
	if cfg.OtelEnabled {
		tracing = cfg.OtelServiceName
	}
	return http.NewServer(log, cfg.Addr(), http.RouterConfig{
		Log:            log,
		Metrics:        metrics,
		TracingService: tracing,
		CORSOrigins:    httpMW.ParseOrigins(cfg.CORSOrigins),
		HealthHandler:  handlers.Health,
		SessionHandler: handlers.Session,
		GraphHandler:   handlers.Graph,
	})
}
