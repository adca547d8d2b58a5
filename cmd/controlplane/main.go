package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"scalpbot/internal/alert"
	"scalpbot/internal/broker"
	"scalpbot/internal/config"
	cronrunner "scalpbot/internal/cron"
	"scalpbot/internal/db"
	"scalpbot/internal/executor"
	"scalpbot/internal/handler"
	"scalpbot/internal/heartbeat"
	"scalpbot/internal/ledger"
	"scalpbot/internal/logger"
	"scalpbot/internal/queue"
	gormrepository "scalpbot/internal/repository/gorm"
	"scalpbot/internal/risk"
)

func main() {
	cfgPath := os.Getenv("SB_CONFIG")
	if cfgPath == "" {
		cfgPath = "config/config.yaml"
	}

	envOnly := false
	if envOnlyRaw := os.Getenv("SB_ENV_ONLY"); envOnlyRaw != "" {
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

	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}

	store := gormrepository.New(dbConn.Gorm)

	alerts := &alert.Service{
		Environment:  cfg.App.Env,
		DedupeWindow: cfg.Alert.DedupeWindow,
		Logger:       logger,
	}
	if cfg.Alert.Enabled && cfg.Alert.WebhookURL != "" {
		alerts.Providers = append(alerts.Providers,
			alert.NewWebhookProvider(cfg.Alert.WebhookURL, cfg.Alert.WebhookTimeout))
	}

	fallback := &ledger.FallbackLog{Path: cfg.Ledger.FallbackPath}
	paperBroker := &broker.Paper{Repo: store, Fallback: fallback, Alerts: alerts, Logger: logger}
	cmdQueue := &queue.Service{Repo: store, Logger: logger}
	heartbeatSvc := &heartbeat.Service{Repo: store, Logger: logger}
	riskMgr := &risk.Manager{
		Repo:   store,
		Broker: paperBroker,
		Alerts: alerts,
		Logger: logger,
		Config: risk.Config{
			StartBalance:    decimal.NewFromFloat(cfg.Risk.StartBalance),
			MaxDailyLossPct: decimal.NewFromFloat(cfg.Risk.MaxDailyLossPct),
			Mode:            cfg.App.Mode,
		},
	}
	exec := &executor.Service{
		Queue:     cmdQueue,
		Broker:    paperBroker,
		Repo:      store,
		Heartbeat: heartbeatSvc,
		Alerts:    alerts,
		Logger:    logger,
		Config: executor.Config{
			WorkerID:     cfg.Executor.WorkerID,
			Mode:         cfg.App.Mode,
			Version:      cfg.App.Version,
			Pairs:        cfg.Executor.Pairs,
			StaleTimeout: cfg.Queue.StaleTimeout,
			LiveEnabled:  cfg.Executor.LiveEnabled,
		},
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	healthHandler := &handler.HealthHandler{DB: dbConn.Gorm}
	healthHandler.Register(engine)
	commandHandler := &handler.CommandHandler{Queue: cmdQueue}
	commandHandler.Register(engine)
	positionHandler := &handler.PositionHandler{Repo: store}
	positionHandler.Register(engine)
	tradeHandler := &handler.TradeHandler{Repo: store}
	tradeHandler.Register(engine)
	statsHandler := &handler.StatsHandler{Repo: store}
	statsHandler.Register(engine)
	statusHandler := &handler.StatusHandler{
		Heartbeat:      heartbeatSvc,
		StaleThreshold: heartbeat.DefaultStaleThreshold,
	}
	statusHandler.Register(engine)

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cronRunner := cronrunner.New(logger, ctx)
	if cfg.Cron.Enabled {
		if _, err := cronRunner.Add("executor_cycle", cfg.Cron.ExecutorCycle, exec.Cycle); err != nil {
			logger.Warn("cron register executor cycle failed", zap.Error(err))
		}
		if _, err := cronRunner.Add("risk_eval", cfg.Cron.RiskEval, func(ctx context.Context) error {
			_, err := riskMgr.EvaluateDay(ctx, time.Now().UTC())
			return err
		}); err != nil {
			logger.Warn("cron register risk eval failed", zap.Error(err))
		}
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	alerts.Send(alert.EventBotRestart, map[string]any{
		"service":          "scalpbot-controlplane",
		"handled_by":       cfg.Executor.WorkerID,
		"startup_time_utc": time.Now().UTC().Format(time.RFC3339),
		"version":          cfg.App.Version,
	})

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
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(204)
			return
		}
		c.Next()
	}
}
