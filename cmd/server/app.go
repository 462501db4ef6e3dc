package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/ZanzyTHEbar/tender-guard/internal/analysis"
	"github.com/ZanzyTHEbar/tender-guard/internal/cache"
	"github.com/ZanzyTHEbar/tender-guard/internal/config"
	"github.com/ZanzyTHEbar/tender-guard/internal/dashboard"
	"github.com/ZanzyTHEbar/tender-guard/internal/database"
	"github.com/ZanzyTHEbar/tender-guard/internal/errors"
	"github.com/ZanzyTHEbar/tender-guard/internal/middleware"
	"github.com/ZanzyTHEbar/tender-guard/internal/monitoring"
	"github.com/ZanzyTHEbar/tender-guard/internal/privacy"
	"github.com/ZanzyTHEbar/tender-guard/internal/procurement"
	"github.com/ZanzyTHEbar/tender-guard/internal/ratelimit"
	"github.com/ZanzyTHEbar/tender-guard/internal/resilience"
	"github.com/ZanzyTHEbar/tender-guard/internal/scheduler"
	"github.com/ZanzyTHEbar/tender-guard/internal/security"
)

const (
	actionModelTraining     = "model_training"
	actionDashboardAccessed = "dashboard_accessed"

	runtimeSampleInterval = 30 * time.Second
	heapSoftLimit         = 512 << 20
	keepModelRuns         = 3
)

// app holds every long-lived component the HTTP layer talks to
type app struct {
	cfg     *config.Config
	logger  *monitoring.Logger
	metrics *monitoring.Metrics

	db          *database.DB
	repo        *database.Repository
	analysis    *analysis.Service
	procurement *procurement.Service
	dashboard   *dashboard.Service
	privacy     *privacy.Service

	guard    *security.SecurityMiddleware
	sessions *security.SessionManager
	redis    *ratelimit.RedisClient
	limiter  *ratelimit.RateLimiter

	webhook       *monitoring.WebhookNotifier
	proposalCache *cache.Cache
	compressor    *middleware.Compressor
	health        *resilience.HealthMonitor
	runtime       *monitoring.RuntimeMonitor
	retrainer     *scheduler.Retrainer

	startedAt time.Time
	stopBg    context.CancelFunc
}

func newApp(ctx context.Context, cfg *config.Config, logger *monitoring.Logger) (*app, error) {
	db, err := database.NewDB(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := &app{
		cfg:       cfg,
		logger:    logger,
		metrics:   monitoring.NewMetrics(),
		db:        db,
		repo:      database.NewRepository(db),
		guard:     security.NewSecurityMiddleware(security.DefaultSecurityConfig()),
		sessions:  security.NewSessionManager(cfg.JWTSecret, cfg.OperatorAPIKey, 0),
		startedAt: time.Now(),
	}

	store := analysis.NewFileArtifactStore(cfg.ModelsDir, keepModelRuns)
	trainer := analysis.NewTrainer(a.repo, store, analysis.TrainerOptions{
		Forest:   analysis.DefaultForestConfig(),
		Recorder: a.metrics,
	})

	var linguistic analysis.LinguisticAnalyzer
	if cfg.EnableLinguistic {
		linguistic = analysis.NewProseAnalyzer()
	}
	a.analysis = analysis.NewService(a.repo, trainer, store, analysis.NewQualityScorer(linguistic))

	if _, err := a.analysis.LoadOrCreate(ctx); err != nil {
		// inference degrades to neutral verdicts until a model is trained
		logger.Error("Failed to prepare anomaly model", "error", err)
	}

	// redis may still be starting next to us
	err = resilience.RetryWithConfig(ctx, resilience.FastRetryPolicy.Config, func() error {
		var connErr error
		a.redis, connErr = ratelimit.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		return connErr
	})
	if err != nil {
		logger.Warn("Redis unavailable, continuing with in-memory rate limiting", "error", err)
	}
	a.limiter = ratelimit.NewRateLimiter(a.redis, ratelimit.Config{
		IPLimit:         cfg.RateLimitPerMinute,
		TrainLimit:      cfg.TrainLimitPerHour,
		EnableFallback:  true,
		CleanupInterval: time.Hour,
	}, a.metrics)

	var notifier monitoring.AlertNotifier = monitoring.NewLogNotifier(logger)
	if cfg.AlertWebhookURL != "" {
		a.webhook = monitoring.NewWebhookNotifier(cfg.AlertWebhookURL, a.metrics, logger)
		notifier = a.webhook
	}

	a.dashboard = dashboard.NewService(a.repo, cfg.CacheTTL)
	a.procurement = procurement.NewService(a.repo, a.analysis, notifier, logger, a.guard)
	a.procurement.SetInvalidator(a.dashboard)
	a.proposalCache = cache.NewCache(cfg.CacheTTL)
	a.compressor = middleware.NewCompressor(middleware.DefaultCompressionConfig())
	a.privacy = privacy.NewService(a.repo, cfg.AuditRetentionDays)

	if cfg.RetrainSchedule != "" {
		a.retrainer, err = scheduler.NewRetrainer(cfg.RetrainSchedule, trainer, logger)
		if err != nil {
			a.close(ctx)
			return nil, err
		}
		a.retrainer.OnComplete = func(report analysis.TrainingReport) {
			a.auditTraining(context.Background(), report, procurement.Actor{UserID: "scheduler"})
		}
	}

	a.health = resilience.NewHealthMonitor(resilience.DefaultHealthConfig())
	a.registerHealthChecks()

	a.runtime = monitoring.NewRuntimeMonitor(runtimeSampleInterval, heapSoftLimit, logger)

	return a, nil
}

func (a *app) registerHealthChecks() {
	a.health.Register("database", true, a.repo.Ping)

	a.health.Register("model", true, func(ctx context.Context) error {
		m := a.analysis.Trainer().Current()
		if m == nil || !m.Fitted() {
			return stderrors.New("no fitted model installed")
		}
		return nil
	})

	if a.redis.IsEnabled() {
		a.health.Register("redis", false, a.redis.HealthCheck)
	}

	if a.webhook != nil {
		a.health.Register("alert_webhook", false, func(ctx context.Context) error {
			if state := a.webhook.Breaker().State(); state == resilience.StateOpen {
				return fmt.Errorf("circuit %s", state)
			}
			return nil
		})
	}
}

// start launches the background workers
func (a *app) start(ctx context.Context) {
	bgCtx, cancel := context.WithCancel(ctx)
	a.stopBg = cancel

	a.runtime.ApplyLimit()
	a.runtime.Start()
	a.health.Start(bgCtx)
	a.privacy.Start(bgCtx)

	if a.retrainer != nil {
		a.retrainer.Start()
	}
}

// close stops the workers and releases storage. It waits for a running
// retrain until ctx expires.
func (a *app) close(ctx context.Context) {
	if a.stopBg != nil {
		a.stopBg()
	}

	if a.retrainer != nil {
		select {
		case <-a.retrainer.Stop().Done():
		case <-ctx.Done():
			a.logger.Warn("Retrain still running at shutdown")
		}
	}

	if a.runtime != nil {
		a.runtime.Stop()
	}
	if a.limiter != nil {
		a.limiter.Close()
	}
	if a.redis.IsEnabled() {
		errors.SafeClose(a.redis, "redis")
	}
	if a.proposalCache != nil {
		a.proposalCache.Close()
	}
	if a.dashboard != nil {
		a.dashboard.Close()
	}
	errors.SafeClose(a.db, "database")
}

func (a *app) auditTraining(ctx context.Context, report analysis.TrainingReport, actor procurement.Actor) {
	details := fmt.Sprintf("Model trained: success=%t samples=%d outliers=%d synthetic=%t model_id=%s",
		report.Success, report.NSamples, report.NOutliersDetected, report.UsedSyntheticData, report.ModelID)
	if report.Error != "" {
		details += " error=" + report.Error
	}
	a.procurement.Audit(ctx, actionModelTraining, details, actor)
}
