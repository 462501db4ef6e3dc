package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZanzyTHEbar/tender-guard/internal/errors"
	"github.com/ZanzyTHEbar/tender-guard/internal/procurement"
	"github.com/ZanzyTHEbar/tender-guard/internal/ratelimit"
	"github.com/ZanzyTHEbar/tender-guard/internal/resilience"
)

const (
	version = "1.0.0"

	defaultAlertLimit = 50
	defaultAuditLimit = 100
	maxListLimit      = 1000
)

// ScoreRequest is the body of POST /api/proposals/score
type ScoreRequest struct {
	Text string `json:"text"`
}

// TrainRequest is the body of POST /api/model/train
type TrainRequest struct {
	Retrain bool `json:"retrain"`
}

func actorFrom(c *gin.Context) procurement.Actor {
	return procurement.Actor{
		UserID:    c.GetString(ratelimit.OperatorKey),
		IPAddress: c.ClientIP(),
		UserAgent: c.GetHeader("User-Agent"),
	}
}

// limitParam reads ?limit=, falling back to def and capping at maxListLimit
func limitParam(c *gin.Context, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.NewValidationError("limit must be a positive integer", raw)
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

// handleHealth reports dependency health and the serving model
// @Summary Health check
// @Description Reports dependency health, the loaded model and request metrics
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (a *app) handleHealth(c *gin.Context) {
	status := a.health.Overall()
	model := a.analysis.Status()

	response := gin.H{
		"status":       status,
		"timestamp":    time.Now().Format(time.RFC3339),
		"version":      version,
		"uptime":       time.Since(a.startedAt).Round(time.Second).String(),
		"model_loaded": model.ModelLoaded,
		"model_id":     model.ModelID,
		"dependencies": a.health.Snapshot(),
		"metrics":      a.metrics.GetStats(),
	}

	if status == resilience.StatusUnavailable {
		c.JSON(http.StatusServiceUnavailable, response)
		return
	}
	c.JSON(http.StatusOK, response)
}

// handleScoreProposal scores proposal text
// @Summary Score proposal text
// @Description Runs the text quality scorer. Identical bodies are served from cache.
// @Tags proposals
// @Accept json
// @Produce json
// @Param request body ScoreRequest true "Proposal text"
// @Success 200 {object} analysis.QualityMetrics
// @Failure 400 {object} map[string]interface{}
// @Router /api/proposals/score [post]
func (a *app) handleScoreProposal(c *gin.Context) {
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewValidationError("invalid request body", err.Error()))
		return
	}
	if err := a.guard.ValidateText("text", req.Text); err != nil {
		_ = c.Error(errors.NewValidationError(err.Error()))
		return
	}

	c.JSON(http.StatusOK, a.analysis.ScoreProposal(req.Text))
}

// handleListTenders lists tenders
// @Summary List tenders
// @Tags tenders
// @Produce json
// @Success 200 {array} database.Tender
// @Failure 503 {object} map[string]interface{}
// @Router /api/tenders [get]
func (a *app) handleListTenders(c *gin.Context) {
	tenders, err := a.repo.ListTenders(c.Request.Context())
	if err != nil {
		_ = c.Error(errors.NewStorageError("list tenders", err))
		return
	}
	c.JSON(http.StatusOK, tenders)
}

// handleCreateTender creates a tender
// @Summary Create tender
// @Tags tenders
// @Accept json
// @Produce json
// @Param request body procurement.TenderRequest true "Tender"
// @Success 201 {object} procurement.TenderCreated
// @Failure 400 {object} map[string]interface{}
// @Router /api/tenders [post]
func (a *app) handleCreateTender(c *gin.Context) {
	var req procurement.TenderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	created, err := a.procurement.CreateTender(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, created)
}

// handleListBids lists bids, optionally for one tender
// @Summary List bids
// @Tags bids
// @Produce json
// @Param tender_id query int false "Tender ID"
// @Success 200 {array} database.Bid
// @Failure 400 {object} map[string]interface{}
// @Router /api/bids [get]
func (a *app) handleListBids(c *gin.Context) {
	var tenderID *int64
	if raw := c.Query("tender_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id <= 0 {
			_ = c.Error(errors.NewValidationError("tender_id must be a positive integer", raw))
			return
		}
		tenderID = &id
	}

	bids, err := a.repo.ListBids(c.Request.Context(), tenderID)
	if err != nil {
		_ = c.Error(errors.NewStorageError("list bids", err))
		return
	}
	c.JSON(http.StatusOK, bids)
}

// handleSubmitBid submits a bid and runs anomaly detection on it
// @Summary Submit bid
// @Description Stores the bid, scores the proposal, runs anomaly detection and raises an alert when the bid is suspicious
// @Tags bids
// @Accept json
// @Produce json
// @Param request body procurement.BidRequest true "Bid"
// @Success 201 {object} procurement.SubmitResult
// @Failure 400 {object} map[string]interface{}
// @Failure 404 {object} map[string]interface{}
// @Router /api/bids [post]
func (a *app) handleSubmitBid(c *gin.Context) {
	var req procurement.BidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(errors.NewValidationError("invalid request body", err.Error()))
		return
	}

	start := time.Now()
	result, err := a.procurement.SubmitBid(c.Request.Context(), req, actorFrom(c))
	if err != nil {
		_ = c.Error(err)
		return
	}

	a.logger.PerformanceLogger("bid_submission", float64(time.Since(start).Milliseconds()), "ms")
	c.JSON(http.StatusCreated, result)
}

// handleSuspiciousBids lists flagged bids
// @Summary List suspicious bids
// @Tags bids
// @Produce json
// @Success 200 {array} database.Bid
// @Router /api/bids/suspicious [get]
func (a *app) handleSuspiciousBids(c *gin.Context) {
	bids, err := a.repo.ListSuspiciousBids(c.Request.Context())
	if err != nil {
		_ = c.Error(errors.NewStorageError("list suspicious bids", err))
		return
	}
	c.JSON(http.StatusOK, bids)
}

// handleBidAnomaly re-runs anomaly detection for a stored bid without
// persisting the verdict
// @Summary Analyze bid
// @Tags bids
// @Produce json
// @Param id path int true "Bid ID"
// @Success 200 {object} analysis.AnomalyResult
// @Failure 400 {object} map[string]interface{}
// @Router /api/bids/{id}/anomaly [get]
func (a *app) handleBidAnomaly(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		_ = c.Error(errors.NewValidationError("bid id must be a positive integer", c.Param("id")))
		return
	}

	start := time.Now()
	result := a.analysis.AnalyzeBid(c.Request.Context(), id)
	a.logger.AnomalyLogger(id, result.AnomalyScore, result.IsSuspicious, string(result.ErrorCode), time.Since(start))

	c.JSON(http.StatusOK, result)
}

// handleTrain trains or retrains the anomaly model
// @Summary Train model
// @Description Fits a new model on stored bids, or on synthetic data when too few exist
// @Tags model
// @Accept json
// @Produce json
// @Param request body TrainRequest false "Training options"
// @Success 200 {object} analysis.TrainingReport
// @Failure 401 {object} map[string]interface{}
// @Failure 429 {object} map[string]interface{}
// @Failure 500 {object} analysis.TrainingReport
// @Security OperatorToken
// @Router /api/model/train [post]
func (a *app) handleTrain(c *gin.Context) {
	var req TrainRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(errors.NewValidationError("invalid request body", err.Error()))
			return
		}
	}

	report := a.analysis.Trainer().Train(c.Request.Context(), req.Retrain)
	a.logger.TrainingLogger(report.ModelID, report.NSamples, report.NOutliersDetected,
		report.UsedSyntheticData, report.ModelSaved, time.Duration(report.DurationMS)*time.Millisecond, report.Error)
	a.auditTraining(c.Request.Context(), report, actorFrom(c))

	if !report.Success {
		c.JSON(http.StatusInternalServerError, report)
		return
	}
	c.JSON(http.StatusOK, report)
}

// handleModelStatus describes the serving model
// @Summary Model status
// @Tags model
// @Produce json
// @Success 200 {object} analysis.ModelStatus
// @Router /api/model/status [get]
func (a *app) handleModelStatus(c *gin.Context) {
	status := a.analysis.Status()
	if a.retrainer != nil {
		c.JSON(http.StatusOK, gin.H{
			"model":        status,
			"next_retrain": a.retrainer.Next().Format(time.RFC3339),
			"retrain_runs": a.retrainer.Runs(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"model": status})
}

// handleFeatureImportance compares features of suspicious and normal bids
// @Summary Feature importance
// @Tags model
// @Produce json
// @Success 200 {object} analysis.FeatureImportanceReport
// @Router /api/model/features [get]
func (a *app) handleFeatureImportance(c *gin.Context) {
	c.JSON(http.StatusOK, a.analysis.FeatureImportance(c.Request.Context()))
}

// handleAlerts lists recent alerts
// @Summary Recent alerts
// @Tags alerts
// @Produce json
// @Param limit query int false "Maximum alerts" default(50)
// @Success 200 {array} database.Alert
// @Router /api/alerts [get]
func (a *app) handleAlerts(c *gin.Context) {
	limit, err := limitParam(c, defaultAlertLimit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	alerts, err := a.repo.RecentAlerts(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(errors.NewStorageError("list alerts", err))
		return
	}
	c.JSON(http.StatusOK, alerts)
}

// handleAudit lists audit log entries
// @Summary Audit log
// @Tags audit
// @Produce json
// @Param limit query int false "Maximum entries" default(100)
// @Success 200 {array} database.AuditLog
// @Security OperatorToken
// @Router /api/audit [get]
func (a *app) handleAudit(c *gin.Context) {
	limit, err := limitParam(c, defaultAuditLimit)
	if err != nil {
		_ = c.Error(err)
		return
	}

	logs, err := a.repo.AuditLogs(c.Request.Context(), limit)
	if err != nil {
		_ = c.Error(errors.NewStorageError("list audit logs", err))
		return
	}
	c.JSON(http.StatusOK, logs)
}

// handleDashboard returns dashboard aggregates
// @Summary Dashboard
// @Tags dashboard
// @Produce json
// @Success 200 {object} dashboard.Stats
// @Failure 503 {object} map[string]interface{}
// @Router /api/dashboard [get]
func (a *app) handleDashboard(c *gin.Context) {
	stats, cached, err := a.dashboard.Stats(c.Request.Context())
	if err != nil {
		_ = c.Error(errors.NewStorageError("build dashboard", err))
		return
	}

	if cached {
		a.metrics.IncrementCacheHit()
		c.Header("X-Cache", "HIT")
	} else {
		a.metrics.IncrementCacheMiss()
		c.Header("X-Cache", "MISS")
	}

	a.procurement.Audit(c.Request.Context(), actionDashboardAccessed, "Dashboard data retrieved", actorFrom(c))
	c.JSON(http.StatusOK, stats)
}

// handleMetrics returns the metrics snapshot
// @Summary Metrics
// @Tags system
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /metrics [get]
func (a *app) handleMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"requests":      a.metrics.GetStats(),
		"model":         a.metrics.GetModelStats(),
		"rate_limit":    a.metrics.GetRateLimitStats(),
		"runtime":       a.runtime.GetStats(),
		"database_pool": a.db.GetPoolStats(),
		"redis_pool":    a.redis.GetPoolStats(),
		"compression":   a.compressor.GetStats(),
		"audit":         a.privacy.RetentionInfo(),
		"caches": gin.H{
			"proposals": a.proposalCache.Stats(),
			"dashboard": a.dashboard.CacheStats(),
		},
	})
}
