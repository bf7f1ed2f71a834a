package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Sriram-PR/supplier-sync/pkg/metrics"
)

// SetupRouter creates and configures the Gin router
func SetupRouter(handler *Handler, log *logrus.Entry) *gin.Engine {
	router := gin.New()

	router.Use(RecoveryMiddleware(log))
	router.Use(LoggerMiddleware(log))

	router.GET("/health", handler.HealthCheck)
	router.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := router.Group("/api/v1")
	{
		syncs := v1.Group("/syncs")
		{
			syncs.POST("", handler.StartSync)
			syncs.GET("/:id", handler.GetSync)
			syncs.DELETE("/:id", handler.CancelSync)
		}
		v1.POST("/parse", handler.ParseResponse)
		v1.POST("/pack-size", handler.ResolvePackSize)
	}

	return router
}

// Serve runs router on addr until ctx is cancelled, then shuts down gracefully
func Serve(ctx context.Context, addr string, router http.Handler, log *logrus.Entry) error {
	srv := &http.Server{Addr: addr, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("API listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}
