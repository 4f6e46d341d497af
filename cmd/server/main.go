package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	appbilling "github.com/UnFik/api-saku-tagihan/internal/application/billing"
	appbulk "github.com/UnFik/api-saku-tagihan/internal/application/bulk"
	"github.com/UnFik/api-saku-tagihan/internal/domain/billing"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/cache"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/config"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/gateway"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/logger"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/persistence"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/scheduler"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/taskqueue"
	"github.com/UnFik/api-saku-tagihan/internal/infrastructure/telemetry"
	"github.com/UnFik/api-saku-tagihan/internal/interfaces/http/handler"
	"github.com/UnFik/api-saku-tagihan/internal/interfaces/http/middleware"
	"github.com/UnFik/api-saku-tagihan/internal/interfaces/http/router"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(&logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		Service:    cfg.App.Name,
	})
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = logger.Sync(log)
	}()

	log.Info("Starting billing service",
		zap.String("app", cfg.App.Name),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	rootCtx := context.Background()

	// Telemetry
	tracerProvider, err := telemetry.NewTracerProvider(rootCtx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracer provider", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(rootCtx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize meter provider", zap.Error(err))
	}
	metrics, err := telemetry.NewPipelineMetrics(meterProvider.Meter(cfg.Telemetry.ServiceName))
	if err != nil {
		log.Fatal("Failed to register pipeline metrics", zap.Error(err))
	}

	// Database
	gormLog := logger.NewGormLogger(log, logger.MapGormLogLevel(cfg.Log.Level),
		logger.WithSlowThreshold(cfg.Telemetry.DBSlowQueryThresh),
		logger.WithParameterizedQueries(cfg.App.Env == "production"))
	db, err := persistence.NewDatabase(&cfg.Database, gormLog)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Error closing database", zap.Error(err))
		}
	}()
	dbTracing := telemetry.DefaultDBTracingConfig()
	dbTracing.Enabled = cfg.Telemetry.Enabled && cfg.Telemetry.DBTraceEnabled
	dbTracing.SlowQueryThresh = cfg.Telemetry.DBSlowQueryThresh
	if err := telemetry.NewDBTracingPlugin(dbTracing, log).RegisterOtelGorm(db.DB); err != nil {
		log.Fatal("Failed to register database tracing", zap.Error(err))
	}
	log.Info("Database connected successfully")

	billRepo := persistence.NewGormBillRepository(db.DB)
	journalRepo := persistence.NewGormJournalReferenceRepository(db.DB)
	unitRepo := persistence.NewGormUnitRepository(db.DB)
	trackerRepo := persistence.NewGormQueueTrackerRepository(db.DB)

	// Partner platforms
	multibank, err := gateway.NewMultibankClient(upstream(cfg.Multibank))
	if err != nil {
		log.Fatal("Invalid Multibank configuration", zap.Error(err))
	}
	jurnal, err := gateway.NewJurnalClient(upstream(cfg.Jurnal))
	if err != nil {
		log.Fatal("Invalid Jurnal configuration", zap.Error(err))
	}
	var directory billing.FacultyDirectory
	if cfg.Siakad.BaseURL != "" {
		siakad, err := gateway.NewSiakadDirectory(upstream(cfg.Siakad))
		if err != nil {
			log.Fatal("Invalid SIAKAD configuration", zap.Error(err))
		}
		directory = siakad
	} else {
		log.Warn("SIAKAD not configured, PIC falls back to the local unit table")
	}
	tokens := appbilling.TokenSources{
		Bank:   gateway.NewCachedTokenSource(billing.PlatformMultibank, multibank.Login),
		Ledger: gateway.NewCachedTokenSource(billing.PlatformJurnal, jurnal.Login),
	}

	lock, err := cache.NewLockFactory(cfg.Redis,
		cache.WithLogger(log),
		cache.WithInMemoryFallback(cfg.Lock.Fallback),
	).CreateLock()
	if err != nil {
		log.Fatal("Failed to create confirmation lock", zap.Error(err))
	}
	defer func() {
		if err := lock.Close(); err != nil {
			log.Warn("Error closing confirmation lock", zap.Error(err))
		}
	}()

	// Background pipeline
	queue, err := taskqueue.New(taskqueue.Config{
		Concurrency: cfg.Queue.Concurrency,
		MaxBacklog:  cfg.Queue.MaxBacklog,
		MaxRetries:  cfg.Queue.MaxRetries,
		BaseDelay:   cfg.Queue.BaseDelay,
		MaxDelay:    cfg.Queue.MaxDelay,
	}, taskqueue.WithLogger(log), taskqueue.WithObserver(metrics))
	if err != nil {
		log.Fatal("Invalid queue configuration", zap.Error(err))
	}
	if err := metrics.ObserveBacklog(queue.Backlog); err != nil {
		log.Warn("Failed to register backlog gauge", zap.Error(err))
	}
	if err := queue.Start(rootCtx); err != nil {
		log.Fatal("Failed to start task queue", zap.Error(err))
	}

	// Application services
	confirmationService := appbilling.NewConfirmationService(appbilling.ConfirmationServiceConfig{
		Bills:     billRepo,
		Units:     unitRepo,
		Bank:      multibank,
		Ledger:    jurnal,
		Directory: directory,
		Tokens:    tokens,
		Lock:      lock,
		LockTTL:   cfg.Lock.TTL,
		Metrics:   metrics,
		Logger:    log,
	})
	billService := appbilling.NewBillService(appbilling.BillServiceConfig{
		Bills:     billRepo,
		Journals:  journalRepo,
		Units:     unitRepo,
		Bank:      multibank,
		Ledger:    jurnal,
		Directory: directory,
		Tokens:    tokens,
		Metrics:   metrics,
		Logger:    log,
	})
	bulkService := appbilling.NewBulkConfirmationService(appbilling.BulkConfirmationServiceConfig{
		Bills:      billRepo,
		Trackers:   trackerRepo,
		Confirmer:  confirmationService,
		Creator:    billService,
		Queue:      queue,
		FlushEvery: cfg.Queue.FlushEvery,
		Logger:     log,
	})
	trackerService := appbulk.NewTrackerService(trackerRepo, log)

	var sweeper *scheduler.StaleTrackerSweeper
	if cfg.Sweeper.Enabled {
		sweeperCfg := scheduler.DefaultSweeperConfig()
		sweeperCfg.Schedule = cfg.Sweeper.Schedule
		sweeperCfg.StaleAfter = cfg.Sweeper.StaleAfter
		sweeper, err = scheduler.NewStaleTrackerSweeper(sweeperCfg, trackerRepo, bulkService, log)
		if err != nil {
			log.Fatal("Invalid sweeper configuration", zap.Error(err))
		}
		if err := sweeper.Start(rootCtx); err != nil {
			log.Fatal("Failed to start sweeper", zap.Error(err))
		}
	}

	// HTTP
	ginMode := gin.DebugMode
	if cfg.App.Env == "production" {
		ginMode = gin.ReleaseMode
	}
	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowOrigins = cfg.HTTP.CORSOrigins
	tracingCfg := middleware.DefaultTracingConfig()
	tracingCfg.Enabled = cfg.Telemetry.Enabled
	tracingCfg.ServiceName = cfg.Telemetry.ServiceName

	engine := router.NewEngine(router.EngineConfig{
		Mode:         ginMode,
		Tracing:      tracingCfg,
		CORS:         corsCfg,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		Logger:       log,
	})
	if err := engine.SetTrustedProxies(cfg.HTTP.TrustedProxies); err != nil {
		log.Fatal("Invalid trusted proxies", zap.Error(err))
	}

	systemHandler := handler.NewSystemHandler(cfg.App.Name, version, map[string]handler.HealthCheck{
		"database": db.Ping,
	})
	router.NewRouter(engine, router.WithHealth(systemHandler.Health)).
		Register(handler.NewBillHandler(billService, confirmationService, bulkService)).
		Register(handler.NewQueueTrackerHandler(trackerService)).
		Setup()

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(rootCtx, 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	if sweeper != nil {
		if err := sweeper.Stop(ctx); err != nil {
			log.Error("Sweeper did not stop cleanly", zap.Error(err))
		}
	}
	// Units still queued are dropped; their trackers are finalized by the recorder
	// or, after a crash, by the sweeper of the next instance.
	if err := queue.Shutdown(ctx); err != nil {
		log.Error("Task queue did not drain", zap.Error(err))
	}
	if err := bulkService.Wait(ctx); err != nil {
		log.Error("Bulk batches did not finish", zap.Error(err))
	}
	if err := meterProvider.Shutdown(ctx); err != nil {
		log.Error("Meter provider shutdown failed", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(ctx); err != nil {
		log.Error("Tracer provider shutdown failed", zap.Error(err))
	}

	log.Info("Server exited gracefully")
}

func upstream(c config.UpstreamConfig) gateway.Config {
	return gateway.Config{
		BaseURL:  c.BaseURL,
		Username: c.Username,
		Password: c.Password,
		Timeout:  c.Timeout,
	}
}
