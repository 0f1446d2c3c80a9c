package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"leadflow/internal/constants"
	"leadflow/pkg/health"
	"leadflow/pkg/middleware"
	"leadflow/pkg/tracing"
)

// NewRouter returns a gin engine with recovery, request logging, request ids
// and, when enabled, tracing. /health and /metrics are mounted on it.
func (b *Base) NewRouter(serviceName string, checks *health.CheckerRegistry) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if b.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}
	router.Use(middleware.RecoveryMiddleware(b.Logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(b.Logger))

	router.GET("/health", checks.Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return router
}

func (b *Base) NewServer(handler http.Handler) *http.Server {
	cfg := b.Config.Server
	return &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}

// Serve runs server until ctx is cancelled and then shuts it down.
func (b *Base) Serve(ctx context.Context, server *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		b.Logger.InfowCtx(ctx, "Server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("server error: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}
	return nil
}
