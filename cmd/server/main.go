package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/tender-guard/internal/config"
	"github.com/ZanzyTHEbar/tender-guard/internal/monitoring"
)

// @title Tender Guard API
// @version 1.0
// @description Procurement bid intake with anomaly detection for suspicious bids.
// @BasePath /
// @securityDefinitions.apikey OperatorToken
// @in header
// @name Authorization
func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := monitoring.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger.Logger)

	if cfg.UsesDefaultSecret() {
		logger.SecurityLogger("default_jwt_secret", "", "", map[string]interface{}{
			"details": "JWT_SECRET is not set; operator tokens use the built-in secret",
		})
	}
	if cfg.OperatorAPIKey == "" {
		logger.Warn("OPERATOR_API_KEY is not set; training and audit endpoints are open")
	}

	if cfg.LogLevel > slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to initialize", "error", err)
		os.Exit(1)
	}
	a.start(ctx)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           newRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.SystemLogger("server_starting", "port="+cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", "error", err)
	}
	a.close(shutdownCtx)

	logger.Info("Server exited")
}
