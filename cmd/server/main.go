package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"agroforward/internal/auth"
	"agroforward/internal/client/pinata"
	"agroforward/internal/client/pricefeed"
	"agroforward/internal/client/push"
	"agroforward/internal/config"
	cronrunner "agroforward/internal/cron"
	"agroforward/internal/db"
	"agroforward/internal/handler"
	"agroforward/internal/logger"
	gormrepository "agroforward/internal/repository/gorm"
	"agroforward/internal/service"

	_ "agroforward/docs"
)

func main() {
	cfgPath := os.Getenv("AF_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("AF_ENV_ONLY"); envOnlyRaw != "" {
		envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
	}

	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		panic(err)
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)

	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	var pusher service.PushSender
	if cfg.Push.Enabled && strings.TrimSpace(cfg.Push.BaseURL) != "" {
		pusher = &push.Client{
			BaseURL: cfg.Push.BaseURL,
			HTTP:    &http.Client{Timeout: cfg.Push.Timeout},
		}
	}
	notifier := &service.NotifyService{Repo: store, Push: pusher, Logger: logger}

	uploader := &pinata.Client{
		BaseURL:    cfg.Pinata.BaseURL,
		GatewayURL: cfg.Pinata.GatewayURL,
		JWT:        cfg.Pinata.JWT,
		HTTP:       &http.Client{Timeout: cfg.Pinata.Timeout},
	}
	publisher := &service.ArtifactPublisher{
		Repo:     store,
		Uploader: uploader,
		Logger:   logger,
		Config:   cfg.Publisher,
	}

	var prices service.PriceQuoter
	if cfg.PriceFeed.Enabled && strings.TrimSpace(cfg.PriceFeed.BaseURL) != "" {
		prices = &pricefeed.Client{
			BaseURL: cfg.PriceFeed.BaseURL,
			HTTP:    &http.Client{Timeout: cfg.PriceFeed.Timeout},
		}
	}

	matching := &service.MatchingService{
		Repo:      store,
		Notifier:  notifier,
		Publisher: publisher,
		Prices:    prices,
		Logger:    logger,
	}
	anchorSvc := &service.AnchorService{
		Repo:      store,
		Publisher: publisher,
		Logger:    logger,
		Config:    cfg.Anchor,
	}
	expirySvc := &service.ExpiryService{Repo: store, Logger: logger}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())
	engine.Use(auth.Middleware(cfg.Auth))

	healthHandler := &handler.HealthHandler{DB: dbConn}
	healthHandler.Register(engine)
	contractHandler := &handler.ContractHandler{
		Repo:      store,
		Matching:  matching,
		Anchor:    anchorSvc,
		Publisher: publisher,
		Logger:    logger,
	}
	contractHandler.Register(engine)
	notificationHandler := &handler.NotificationHandler{Repo: store}
	notificationHandler.Register(engine)

	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:        cfg.Server.HTTPAddr,
		Handler:     engine,
		ReadTimeout: cfg.Server.RequestTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := publisher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("artifact publisher stopped", zap.Error(err))
		}
	}()

	if cfg.Cron.Enabled {
		cronRunner := cronrunner.New(logger, ctx)
		if _, err := cronRunner.Add(cfg.Cron.ExpirySweep, func(ctx context.Context) {
			if _, err := expirySvc.SweepOnce(ctx); err != nil {
				logger.Warn("expiry sweep failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("cron register expiry sweep failed", zap.Error(err))
		}
		if _, err := cronRunner.Add(cfg.Cron.PublishRescan, func(ctx context.Context) {
			due, err := store.ListPublishDue(ctx, cfg.Publisher.MaxAttempts, cfg.Publisher.QueueSize)
			if err != nil {
				logger.Warn("publish rescan failed", zap.Error(err))
				return
			}
			for _, item := range due {
				publisher.Enqueue(item.ID)
			}
		}); err != nil {
			logger.Warn("cron register publish rescan failed", zap.Error(err))
		}
		cronRunner.Start()
		defer cronRunner.Stop()
	}

	errCh := make(chan error, 2)

	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
