package main

import (
	"net/http/pprof"
	"os"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/ZanzyTHEbar/tender-guard/docs"
	"github.com/ZanzyTHEbar/tender-guard/internal/errors"
	"github.com/ZanzyTHEbar/tender-guard/internal/monitoring"
	"github.com/ZanzyTHEbar/tender-guard/internal/security"
)

const proposalScorePath = "/api/proposals/score"

func corsConfig(origins []string) cors.Config {
	config := cors.Config{
		AllowMethods:  []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-API-Key", "X-Operator", monitoring.RequestIDHeader},
		ExposeHeaders: []string{monitoring.RequestIDHeader, "X-RateLimit-Limit", "X-RateLimit-Remaining", "Retry-After"},
		MaxAge:        12 * time.Hour,
	}

	if len(origins) == 0 || slices.Contains(origins, "*") {
		config.AllowAllOrigins = true
	} else {
		config.AllowOrigins = origins
	}
	return config
}

func newRouter(a *app) *gin.Engine {
	r := gin.New()

	// Monitoring first so every request is counted
	r.Use(monitoring.RequestIDMiddleware())
	r.Use(monitoring.MonitoringMiddleware(a.metrics, a.logger))
	r.Use(monitoring.SecurityMonitoringMiddleware(a.logger))

	r.Use(errors.ErrorHandler())
	r.Use(errors.RecoveryHandler())

	r.Use(cors.New(corsConfig(a.cfg.CORSOrigins)))
	r.Use(security.SecurityHeadersMiddleware())
	r.Use(a.compressor.Handler())
	r.Use(a.guard.RequestTimeout)
	r.Use(a.guard.LimitBody)
	r.Use(a.guard.ValidateContentType)
	r.Use(a.limiter.IPRateLimitMiddleware())
	r.Use(a.proposalCache.Middleware(proposalScorePath, a.metrics))

	r.GET("/health", a.handleHealth)
	r.GET("/metrics", a.handleMetrics)
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	operator := a.sessions.RequireOperator()

	api := r.Group("/api")
	{
		api.POST("/session", a.sessions.HandleSession())
		api.GET("/ratelimit/status", a.limiter.HandleRateLimitStatus())

		api.POST("/proposals/score", a.handleScoreProposal)

		api.GET("/tenders", a.handleListTenders)
		api.POST("/tenders", a.handleCreateTender)

		api.GET("/bids", a.handleListBids)
		api.POST("/bids", a.handleSubmitBid)
		api.GET("/bids/suspicious", a.handleSuspiciousBids)
		api.GET("/bids/:id/anomaly", a.handleBidAnomaly)

		api.POST("/model/train", operator, a.limiter.TrainingRateLimitMiddleware(), a.handleTrain)
		api.GET("/model/status", a.handleModelStatus)
		api.GET("/model/features", a.handleFeatureImportance)

		api.GET("/alerts", a.handleAlerts)
		api.GET("/audit", operator, a.handleAudit)
		api.GET("/dashboard", a.handleDashboard)
	}

	// Profiling endpoints (development only)
	if os.Getenv("ENABLE_PROFILING") == "true" {
		a.logger.Info("Enabling performance profiling endpoints")
		debug := r.Group("/debug/pprof")
		debug.GET("/", gin.WrapF(pprof.Index))
		debug.GET("/cmdline", gin.WrapF(pprof.Cmdline))
		debug.GET("/profile", gin.WrapF(pprof.Profile))
		debug.GET("/symbol", gin.WrapF(pprof.Symbol))
		debug.GET("/trace", gin.WrapF(pprof.Trace))
		// heap, goroutine, allocs and the other named profiles
		debug.GET("/:profile", gin.WrapF(pprof.Index))
	}

	return r
}
