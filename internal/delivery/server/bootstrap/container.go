package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"fsgate/internal/app/approval"
	serverHTTP "fsgate/internal/delivery/server/http"
	"fsgate/internal/delivery/server/remote"
	"fsgate/internal/delivery/server/ws"
	"fsgate/internal/infra/filesystem"
	toolspolicy "fsgate/internal/infra/tools"
	"fsgate/internal/infra/tools/builtin/fileops"
	"fsgate/internal/infra/tools/builtin/search"
	"fsgate/internal/infra/workspace"
	"fsgate/internal/shared/config"
	"fsgate/internal/shared/logging"
	"fsgate/internal/shared/observability"
)

// Version is reported on /healthz.
var Version = "dev"

// Container holds every long-lived component of the gateway.
type Container struct {
	Config        config.Config
	Workspace     *workspace.Workspace
	Engine        *fileops.Engine
	Tools         *toolspolicy.Registry
	SLA           *toolspolicy.SLACollector
	Observability *observability.Observability
	Prometheus    *prometheus.Registry
	Hub           *ws.Hub
	Remote        *remote.Client
	Coordinator   *approval.Coordinator
	Router        http.Handler
	Degraded      *Degraded

	logger logging.Logger
}

// BuildContainer wires the gateway from cfg. Required stages abort; the
// tracing exporter and the remote link degrade gracefully.
func BuildContainer(cfg config.Config, logger logging.Logger) (*Container, error) {
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("Bootstrap")
	}
	c := &Container{
		Config:     cfg,
		Prometheus: prometheus.NewRegistry(),
		Degraded:   NewDegraded(),
		logger:     logger,
	}
	c.Observability = &observability.Observability{Tracer: observability.NoopTracer()}

	stages := []Stage{
		{Name: "metrics", Required: true, Init: c.initMetrics},
		{Name: "tracing", Required: false, Init: c.initTracing},
		{Name: "workspace", Required: true, Init: c.initWorkspace},
		{Name: "tools", Required: true, Init: c.initTools},
		{Name: "transport", Required: true, Init: c.initTransport},
		{Name: "remote", Required: false, Init: c.initRemote},
		{Name: "coordinator", Required: true, Init: c.initCoordinator},
		{Name: "router", Required: true, Init: c.initRouter},
	}
	if err := RunStages(stages, c.Degraded, logger); err != nil {
		_ = c.Shutdown(context.Background())
		return nil, err
	}
	return c, nil
}

func (c *Container) initMetrics() error {
	c.Prometheus.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metricsCfg := c.Config.Observability.Metrics
	metricsCfg.Registerer = c.Prometheus
	metrics, err := observability.NewMetricsCollector(metricsCfg)
	if err != nil {
		return err
	}
	c.Observability.Metrics = metrics
	c.SLA = toolspolicy.NewSLACollector(c.Prometheus)
	return nil
}

func (c *Container) initTracing() error {
	tracer, err := observability.NewTracerProvider(c.Config.Observability.Tracing)
	if err != nil {
		return err
	}
	c.Observability.Tracer = tracer
	return nil
}

func (c *Container) initWorkspace() error {
	ws, err := workspace.New(c.Config.Workspace.Directories...)
	if err != nil {
		return err
	}
	c.Workspace = ws
	c.logger.Info("workspace roots: %v", ws.Directories())
	return nil
}

func (c *Container) initTools() error {
	searchLogger := logging.NewComponentLogger("Search")
	cascade := search.NewDefaultCascade(search.Options{
		Logger:            searchLogger,
		DisableGitGrep:    c.Config.Search.DisableGitGrep,
		DisableSystemGrep: c.Config.Search.DisableSystemGrep,
	})
	c.logger.Info("grep strategies: %v", cascade.Strategies())

	engine, err := fileops.NewEngine(fileops.Options{
		Workspace:       c.Workspace,
		FS:              filesystem.NewLocal(),
		Ignores:         workspace.NewIgnoreFilter(0),
		Searcher:        cascade,
		Logger:          logging.NewComponentLogger("FileOps"),
		ReadConcurrency: c.Config.Workspace.ReadConcurrency,
	})
	if err != nil {
		return err
	}
	c.Engine = engine

	c.Tools = toolspolicy.NewRegistry(toolspolicy.RegistryOptions{
		Collector: c.SLA,
		Tracer:    c.Observability.Tracer,
		Logger:    logging.NewComponentLogger("Tools"),
	})
	return c.Tools.Register(fileops.NewTools(engine)...)
}

func (c *Container) initTransport() error {
	c.Hub = ws.NewHub(ws.Options{
		Logger:     logging.NewComponentLogger("Hub"),
		Metrics:    c.Observability.Metrics,
		SendBuffer: c.Config.Server.SendBuffer,
	})
	return nil
}

func (c *Container) initRemote() error {
	if !c.Config.Remote.Enabled() {
		return nil
	}
	// The handler is installed once the coordinator exists.
	c.Remote = remote.NewClient(remote.Config{
		URL:                  c.Config.Remote.URL,
		MaxReconnectInterval: c.Config.Remote.MaxReconnectInterval,
	}, nil, logging.NewComponentLogger("Remote"))
	return nil
}

func (c *Container) initCoordinator() error {
	opts := []approval.Option{
		approval.WithLogger(logging.NewComponentLogger("Approval")),
		approval.WithPreviewer(c.Engine),
		approval.WithWorkspace(c.Workspace),
		approval.WithMetrics(c.Observability.Metrics),
		approval.WithTracer(c.Observability.Tracer),
		approval.WithPendingTTL(c.Config.Approval.PendingTTL, c.Config.Approval.SweepInterval),
	}
	if c.Remote != nil {
		opts = append(opts, approval.WithRemote(c.Remote))
	}
	c.Coordinator = approval.NewCoordinator(c.Tools, c.Hub, opts...)
	c.Hub.SetHandler(c.Coordinator)
	if c.Remote != nil {
		c.Remote.SetHandler(c.Coordinator)
	}
	return nil
}

func (c *Container) initRouter() error {
	c.Router = serverHTTP.NewRouter(serverHTTP.RouterDeps{
		Tools:       c.Tools,
		Approvals:   c.Coordinator,
		Connections: c.Hub,
		SLA:         c.SLA,
		Gatherer:    c.Prometheus,
		Logger:      logging.NewComponentLogger("Router"),
		Degraded:    c.Degraded.Map,
	}, serverHTTP.RouterConfig{
		AllowedOrigins: c.Config.Server.AllowedOrigins,
		Debug:          c.Config.Server.Debug,
		Version:        Version,
	})
	return nil
}

// Run drives the background loops until ctx is cancelled: the pending
// approval sweep and the remote link.
func (c *Container) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.Coordinator.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("approval sweep: %w", err)
		}
		return nil
	})
	if c.Remote != nil {
		g.Go(func() error {
			if err := c.Remote.Run(ctx); err != nil {
				// The link is best effort; record and keep serving.
				c.Degraded.Record("remote", err.Error())
				c.logger.Warn("remote transport stopped: %v", err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Shutdown closes client connections and flushes telemetry.
func (c *Container) Shutdown(ctx context.Context) error {
	if c == nil {
		return nil
	}
	if c.Hub != nil {
		c.Hub.Close()
	}
	return c.Observability.Shutdown(ctx)
}
