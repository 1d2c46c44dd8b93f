package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"fsgate/internal/shared/config"
	"fsgate/internal/shared/logging"
)

// RunServer builds the container, serves HTTP and websocket traffic and
// blocks until ctx is cancelled, then shuts down gracefully.
func RunServer(ctx context.Context, cfg config.Config, logger logging.Logger) error {
	if logging.IsNil(logger) {
		logger = logging.NewComponentLogger("Main")
	}

	container, err := BuildContainer(cfg, logger)
	if err != nil {
		return err
	}
	if names := container.Degraded.Names(); len(names) > 0 {
		logger.Warn("starting degraded: %v", names)
	}

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port)),
		Handler:           container.Router,
		ReadHeaderTimeout: cfg.Server.ReadTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       120 * time.Second,
	}

	listener, err := net.Listen("tcp", server.Addr)
	if err != nil {
		_ = container.Shutdown(context.Background())
		return fmt.Errorf("listen %s: %w", server.Addr, err)
	}
	return serve(ctx, server, listener, container, logger)
}

func serve(ctx context.Context, server *http.Server, listener net.Listener, container *Container, logger logging.Logger) error {
	runCtx, stopRun := context.WithCancel(ctx)
	defer stopRun()

	runErr := make(chan error, 1)
	go func() { runErr <- container.Run(runCtx) }()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("fsgate listening on %s", listener.Addr())
		serveErr <- server.Serve(listener)
	}()

	var result error
	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			result = fmt.Errorf("server error: %w", err)
		}
	case err := <-runErr:
		if err != nil {
			result = err
		}
	case <-ctx.Done():
		logger.Info("shutting down...")
	}

	timeout := container.Config.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = config.DefaultShutdownTimeout
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	stopRun()
	// Hijacked websocket connections are not closed by http.Server.Shutdown.
	shutdownErr := errors.Join(server.Shutdown(shutdownCtx), container.Shutdown(shutdownCtx))
	if shutdownErr != nil {
		shutdownErr = fmt.Errorf("shutdown: %w", shutdownErr)
	}
	logger.Info("fsgate stopped")
	return errors.Join(result, shutdownErr)
}
