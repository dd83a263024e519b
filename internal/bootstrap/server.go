package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avreline/repairbooking/api"
	"github.com/avreline/repairbooking/config"
	"github.com/avreline/repairbooking/internal/service/catalog"
	"github.com/avreline/repairbooking/internal/service/session"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Run starts the HTTP server and blocks until the context is canceled or the
// server fails.
func Run(ctx context.Context, cfg *config.Config, sessionSvc session.SessionUseCase, catalogSvc catalog.CatalogUseCase, logger *zap.Logger) error {
	httpSrv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: newRouter(sessionSvc, catalogSvc),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("address", cfg.HTTP.Address))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}

func newRouter(sessionSvc session.SessionUseCase, catalogSvc catalog.CatalogUseCase) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	v1 := router.Group("/api/v1")
	api.NewSessionHandler(sessionSvc).Register(v1.Group("/sessions"))
	api.NewSlotHandler(sessionSvc).Register(v1.Group("/slots"))
	api.NewDeviceHandler(catalogSvc).Register(v1.Group("/devices"))

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	return router
}
