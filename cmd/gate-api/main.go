package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/sma-gate-api/api/swagger"
	"github.com/noah-isme/sma-gate-api/internal/handler"
	"github.com/noah-isme/sma-gate-api/internal/middleware"
	"github.com/noah-isme/sma-gate-api/internal/repository"
	"github.com/noah-isme/sma-gate-api/internal/scanner"
	"github.com/noah-isme/sma-gate-api/internal/service"
	"github.com/noah-isme/sma-gate-api/pkg/cache"
	"github.com/noah-isme/sma-gate-api/pkg/config"
	"github.com/noah-isme/sma-gate-api/pkg/database"
	"github.com/noah-isme/sma-gate-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-gate-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-gate-api/pkg/middleware/requestid"
	"github.com/noah-isme/sma-gate-api/pkg/storage"
)

// @title SMA Gate API
// @version 1.0.0
// @description Campus access control core: badge scans, access event log and daily presence.
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect database", "error", err)
	}
	defer db.Close() //nolint:errcheck

	metricsSvc := service.NewMetricsService()

	var cacheSvc *service.CacheService
	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Warnw("redis unavailable, summaries uncached", "error", err)
	} else {
		defer redisClient.Close() //nolint:errcheck
		cacheRepo := repository.NewCacheRepository(redisClient, logr)
		cacheSvc = service.NewCacheService(cacheRepo, metricsSvc, cfg.Gate.SummaryCacheTTL, logr, true)
	}

	persons := repository.NewPersonRepository(db)
	events := repository.NewAccessEventRepository(db)
	operators := repository.NewOperatorRepository(db)

	presenceSvc := service.NewPresenceService(events, persons, cacheSvc, logr, service.PresenceServiceConfig{
		CacheTTL:         cfg.Gate.SummaryCacheTTL,
		ExpectedStudents: cfg.Gate.ExpectedStudents,
		ExpectedStaff:    cfg.Gate.ExpectedStaff,
	})

	guard := service.NewDedupGuard(cfg.Gate.DedupWindow)
	guard.StartSweeper(ctx, cfg.Gate.DedupGCInterval)

	registrationSvc := service.NewRegistrationService(service.RegistrationServiceParams{
		Directory: persons,
		Log:       events,
		Guard:     guard,
		Presence:  presenceSvc,
		Metrics:   metricsSvc,
		Logger:    logr,
	})

	authSvc := service.NewAuthService(operators, nil, logr, service.AuthConfig{
		TokenSecret: cfg.JWT.Secret,
		TokenExpiry: cfg.JWT.Expiration,
		Issuer:      cfg.JWT.Issuer,
	})

	channels := scanner.NewRemoteChannels(cfg.Sessions.CameraEnabled, cfg.Sessions.RadioEnabled, nil)
	sessions := scanner.NewSessionManager(scanner.ManagerParams{
		Registrar: registrationSvc,
		Camera:    channels,
		Radio:     channels,
		Metrics:   metricsSvc,
		Logger:    logr,
		Config: scanner.Config{
			FeedbackTTL: cfg.Sessions.FeedbackTTL,
			ErrorTTL:    cfg.Sessions.ErrorTTL,
			TallyLimit:  cfg.Sessions.TallyLimit,
		},
		IdleTTL: cfg.Sessions.IdleTTL,
	})
	sessions.StartReaper(ctx, cfg.Sessions.ReapInterval)
	defer sessions.Shutdown()

	var reportSvc *service.ReportService
	if cfg.Reports.Enabled {
		store, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
		if err != nil {
			logr.Sugar().Fatalw("failed to prepare report storage", "error", err)
		}
		reports := repository.NewReportRepository(db)
		signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)
		reportSvc = service.NewReportService(service.ReportServiceParams{
			Reports:           reports,
			Events:            events,
			Presence:          presenceSvc,
			Store:             store,
			Signer:            signer,
			Logger:            logr,
			WorkerConcurrency: cfg.Reports.WorkerConcurrency,
			WorkerRetries:     cfg.Reports.WorkerRetries,
		})
		reportSvc.Start(ctx)
		defer reportSvc.Stop()
		reportSvc.StartCleanup(ctx, cfg.Reports.CleanupInterval, cfg.Reports.SignedURLTTL)
	}

	authHandler := handler.NewAuthHandler(authSvc)
	logHandler := handler.NewLogHandler(events, presenceSvc, time.Now)
	sessionHandler := handler.NewSessionHandler(sessions)
	metricsHandler := handler.NewMetricsHandler(metricsSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.POST("/auth/login", authHandler.Login)

	protected := api.Group("")
	protected.Use(middleware.JWT(authSvc))

	protected.GET("/auth/me", authHandler.Me)

	protected.GET("/logs/today", logHandler.Today)
	protected.GET("/logs", logHandler.List)
	protected.GET("/logs/summary", logHandler.Summary)
	protected.DELETE("/logs/:id", logHandler.Delete)

	protected.POST("/sessions", sessionHandler.Start)
	protected.GET("/sessions/:id", sessionHandler.Get)
	protected.DELETE("/sessions/:id", sessionHandler.Finalize)
	protected.POST("/sessions/:id/channel", sessionHandler.SwitchChannel)
	protected.POST("/sessions/:id/tokens", sessionHandler.CameraToken)
	protected.POST("/sessions/:id/readings", sessionHandler.RadioReading)
	protected.POST("/sessions/:id/errors", sessionHandler.RadioError)

	if reportSvc != nil {
		reportHandler := handler.NewReportHandler(reportSvc)
		protected.POST("/reports", reportHandler.Generate)
		protected.GET("/reports/:id", reportHandler.Status)
		// Download tokens are self-authenticating.
		api.GET("/reports/download/:token", reportHandler.Download)
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	logr.Sugar().Infow("server starting", "addr", addr, "env", cfg.Env)

	server := &http.Server{Addr: addr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logr.Sugar().Warnw("server shutdown", "error", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
