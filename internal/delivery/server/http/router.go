package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fsgate/internal/delivery/server/ws"
	"fsgate/internal/domain/fsevent"
	tools "fsgate/internal/domain/tools"
	toolspolicy "fsgate/internal/infra/tools"
	"fsgate/internal/shared/logging"
)

// ToolService lists and runs tools.
type ToolService interface {
	Definitions() []tools.Definition
	Execute(ctx context.Context, name string, args map[string]any) tools.Result
}

// ApprovalService exposes pending approvals and accepts decisions.
type ApprovalService interface {
	Pending() []fsevent.PendingApproval
	HandleConfirmation(ctx context.Context, resp fsevent.ConfirmationResponse)
}

// ConnectionService serves websocket clients.
type ConnectionService interface {
	ServeWS(w http.ResponseWriter, r *http.Request)
	Connections() []ws.ConnectionInfo
}

// SLAReporter reports per-tool service levels.
type SLAReporter interface {
	Snapshot() []toolspolicy.ToolSLA
}

// RouterDeps holds the services behind the HTTP surface. Nil services
// disable their routes.
type RouterDeps struct {
	Tools       ToolService
	Approvals   ApprovalService
	Connections ConnectionService
	SLA         SLAReporter
	Gatherer    prometheus.Gatherer
	Logger      logging.Logger
	// Degraded lists optional components that failed to start.
	Degraded func() map[string]string
}

// RouterConfig configures cross-cutting HTTP behavior.
type RouterConfig struct {
	AllowedOrigins []string
	Debug          bool
	Version        string
}

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     string `json:"error,omitempty"`
	ErrorType string `json:"errorType,omitempty"`
}

// NewRouter builds the gin engine for the gateway.
func NewRouter(deps RouterDeps, cfg RouterConfig) *gin.Engine {
	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	logger := deps.Logger
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("Router")
	}

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(LoggingMiddleware(logger))
	engine.Use(cors.New(corsConfig(cfg.AllowedOrigins)))

	h := &handler{deps: deps, logger: logger, version: cfg.Version, started: time.Now()}

	engine.GET("/healthz", h.health)
	if deps.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{})))
	}
	if deps.Connections != nil {
		engine.GET("/ws", gin.WrapF(deps.Connections.ServeWS))
	}

	api := engine.Group("/api")
	api.Use(JSONMiddleware())
	if deps.Tools != nil {
		api.GET("/tools", h.listTools)
		api.POST("/tools/:name", h.executeTool)
	}
	if deps.SLA != nil {
		api.GET("/tools/sla", h.toolSLA)
	}
	if deps.Approvals != nil {
		api.GET("/approvals", h.listApprovals)
		api.POST("/approvals/:messageId", h.decideApproval)
	}
	if deps.Connections != nil {
		api.GET("/connections", h.listConnections)
	}
	return engine
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
		cfg.AllowCredentials = true
	}
	cfg.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-Id"}
	cfg.AllowWebSockets = true
	return cfg
}
