// Package main provides the main entry point for the marketplace settlement service
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/marketplace-settlement/app/handlers"
	"github.com/amirphl/marketplace-settlement/app/middleware"
	"github.com/amirphl/marketplace-settlement/app/router"
	"github.com/amirphl/marketplace-settlement/app/services"
	businessflow "github.com/amirphl/marketplace-settlement/business_flow"
	"github.com/amirphl/marketplace-settlement/config"
	"github.com/amirphl/marketplace-settlement/repository"
	"github.com/amirphl/marketplace-settlement/utils"
	"github.com/gofiber/fiber/v3"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Application represents the main application structure
type Application struct {
	router    *router.FiberRouter
	config    *config.ProductionConfig
	server    *fiber.App
	logger    *slog.Logger
	stopFuncs []func()
}

func main() {
	cfg, err := config.LoadProductionConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := utils.NewLogger(cfg.Logging, cfg.Deployment)
	slog.SetDefault(logger)
	logger.Info("starting marketplace settlement service")

	app, err := initializeApplication(cfg, logger)
	if err != nil {
		logger.Error("failed to initialize application", "error", err)
		os.Exit(1)
	}

	app.router.SetupRoutes()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := app.router.Start(address); err != nil {
			logger.Error("server stopped with error", "error", err)
			os.Exit(1)
		}
	}()

	<-sigChan
	logger.Info("shutting down gracefully")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := app.server.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Error("error during shutdown", "error", err)
	}

	// Stop background workers and close connections after in-flight requests finished
	for _, fn := range app.stopFuncs {
		fn()
	}

	logger.Info("server stopped")
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, logger *slog.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)

	gormCfg := &gorm.Config{}
	if cfg.SlowQueryLog {
		gormCfg.Logger = gormlogger.New(
			slog.NewLogLogger(logger.Handler(), slog.LevelWarn),
			gormlogger.Config{
				SlowThreshold:             cfg.SlowQueryTime,
				LogLevel:                  gormlogger.Warn,
				IgnoreRecordNotFoundError: true,
			},
		)
	}

	db, err := gorm.Open(postgres.Open(dsn), gormCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("database connection established",
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
	)
	return db, nil
}

// initializeCache initializes the redis client and verifies connectivity; nil when the cache is disabled
func initializeCache(cfg config.CacheConfig, logger *slog.Logger) (*redis.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	opt.DB = cfg.RedisDB

	rc := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rc.Ping(ctx).Err(); err != nil {
		_ = rc.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("redis connection established", "db", cfg.RedisDB)
	return rc, nil
}

// startCacheHealthMonitor starts a background goroutine that periodically pings Redis
// to detect connectivity issues. The returned cancel function stops the monitor.
func startCacheHealthMonitor(parent context.Context, client *redis.Client, interval time.Duration, logger *slog.Logger) func() {
	monitorCtx, cancel := context.WithCancel(parent)
	if interval <= 0 {
		interval = 30 * time.Second
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-monitorCtx.Done():
				return
			case <-ticker.C:
				ctx, c := context.WithTimeout(context.Background(), 3*time.Second)
				if err := client.Ping(ctx).Err(); err != nil {
					logger.Warn("redis healthcheck failed", "error", err)
				}
				c()
			}
		}
	}()

	return cancel
}

// initializeApplication initializes the main application components
func initializeApplication(cfg *config.ProductionConfig, logger *slog.Logger) (*Application, error) {
	var stopFuncs []func()

	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(db); err != nil {
			return nil, err
		}
	}
	health := map[string]router.HealthCheck{
		"database": func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}
	stopFuncs = append(stopFuncs, func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	rc, err := initializeCache(cfg.Cache, logger)
	if err != nil {
		return nil, err
	}

	// One writer per split payment; redis extends the lock across instances
	var locker businessflow.PaymentLocker = businessflow.NewLocalPaymentLocker()
	if rc != nil {
		locker = businessflow.NewRedisPaymentLocker(rc, cfg.Cache.RedisPrefix, cfg.Locks.TTL, cfg.Locks.Wait)
		stopFuncs = append(stopFuncs, startCacheHealthMonitor(context.Background(), rc, cfg.Cache.HealthCheckInterval, logger))
		stopFuncs = append(stopFuncs, func() { _ = rc.Close() })
		health["redis"] = func(ctx context.Context) error {
			return rc.Ping(ctx).Err()
		}
	} else {
		logger.Warn("cache disabled, split payment locks are local to this instance")
	}

	// Initialize repositories
	txManager := repository.NewTxManager(db)
	ruleRepo := repository.NewCommissionRuleRepository(db)
	rateRepo := repository.NewCommissionRateRepository(db)
	lineRepo := repository.NewCommissionLineRepository(db)
	priceRepo := repository.NewPriceAmountRepository(db)
	paymentRepo := repository.NewSplitOrderPaymentRepository(db)
	eventRepo := repository.NewGatewayEventRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Initialize services
	gateway := services.NewStripeConnectClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey, cfg.Gateway.Timeout)

	// Initialize flows
	resolver := businessflow.NewRuleResolver(ruleRepo, logger)
	ledger := businessflow.NewSplitPaymentLedger(paymentRepo, auditRepo, txManager, logger)

	settlementFlow := businessflow.NewSettlementFlow(
		ledger,
		paymentRepo,
		eventRepo,
		lineRepo,
		gateway,
		locker,
		txManager,
		logger,
	)

	commissionFlow := businessflow.NewCommissionFlow(
		resolver,
		businessflow.NewFeeCalculator(priceRepo),
		ruleRepo,
		rateRepo,
		lineRepo,
		paymentRepo,
		auditRepo,
		txManager,
		cfg.Commission,
		logger,
	)

	auditFlow := businessflow.NewAuditFlow(auditRepo, paymentRepo, logger)

	// Initialize handlers
	settlementHandler := handlers.NewSettlementHandler(settlementFlow, logger)
	commissionHandler := handlers.NewCommissionHandler(commissionFlow, logger)
	auditHandler := handlers.NewAuditHandler(auditFlow, logger)
	authMiddleware := middleware.NewAuthMiddleware(cfg.Admin.APIKey, logger)
	if cfg.Admin.APIKey == "" {
		logger.Warn("ADMIN_API_KEY not set, admin routes are unauthenticated")
	}

	appRouter := router.NewFiberRouter(cfg, settlementHandler, commissionHandler, auditHandler, authMiddleware, health, logger)

	fiberRouter := appRouter.(*router.FiberRouter)
	return &Application{
		router:    fiberRouter,
		config:    cfg,
		server:    fiberRouter.GetApp(),
		logger:    logger,
		stopFuncs: stopFuncs,
	}, nil
}
