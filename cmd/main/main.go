package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"assettracker/internal/api"
	routes "assettracker/internal/api/handlers"
	"assettracker/internal/config"
	"assettracker/internal/estimator"
	"assettracker/internal/history"
	"assettracker/internal/hub"
	"assettracker/internal/ingest"
	"assettracker/internal/model"
	"assettracker/internal/observability"
	"assettracker/internal/postgres"
	"assettracker/internal/redis"
	"assettracker/internal/service/fleet"
	"assettracker/internal/service/position"
	"assettracker/internal/service/storage"
	"assettracker/internal/simulator"
	"assettracker/internal/worker"
)

const shutdownTimeout = 15 * time.Second

type connections struct {
	db    *gorm.DB
	redis *redis.Client
}

type services struct {
	hub        *hub.Hub
	positions  *position.PositionService
	fleet      *fleet.Index
	history    *history.Adapter
	pipeline   *ingest.Pipeline
	subscriber *ingest.Subscriber
	simulator  *simulator.Simulator
}

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, closeLog, err := observability.SetupLogging(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conns := initializeDatabaseAndCache(cfg, logger)
	defer closeConnections(conns, logger)

	svc := initializeServices(ctx, cfg, conns, logger)

	scheduler := startWorkers(ctx, svc, logger)
	go reportMemoryStats(ctx, logger)

	runAPIServer(ctx, cfg, svc, logger)

	// workers run their last flush once ctx is done
	scheduler.Wait()
	svc.fleet.Detach()
	svc.hub.Close()
	logger.Info("shutdown complete")
}

func initializeDatabaseAndCache(cfg config.Config, logger *slog.Logger) connections {
	db, err := postgres.Init(cfg.DBUrl)
	if err != nil {
		logger.Error("failed to initialize PostgreSQL", "error", err)
		os.Exit(1)
	}

	rdb, err := redis.Init(cfg.RedisUrl, logger)
	if err != nil {
		logger.Error("failed to initialize Redis", "error", err)
		os.Exit(1)
	}

	return connections{db: db, redis: rdb}
}

func initializeServices(ctx context.Context, cfg config.Config, conns connections, logger *slog.Logger) *services {
	h := hub.New(
		hub.WithLogger(logger),
		hub.WithMaxConcurrency(cfg.HubMaxConcurrency),
	)

	var latest storage.Storage[string, model.PositionUpdate]
	if cfg.LatestShards > 1 {
		latest = storage.NewShardedMemoryStorage[string, model.PositionUpdate](cfg.LatestShards, nil)
	} else {
		latest = storage.NewMemoryStorage[string, model.PositionUpdate]()
	}

	repo := postgres.NewPositionRepository(conns.db, cfg.HistoryBatchSize)
	positions := position.NewPositionService(latest, h,
		position.WithHistory(repo),
		position.WithCache(redis.NewPositionCache(conns.redis)),
		position.WithLogger(logger),
	)
	if err := positions.InitService(ctx); err != nil {
		logger.Error("failed to initialize position service", "error", err)
		os.Exit(1)
	}

	idx := fleet.NewIndex()
	for _, u := range positions.AllLatest() {
		idx.Update(u)
	}
	if err := idx.Attach(h); err != nil {
		logger.Error("failed to initialize fleet index", "error", err)
		os.Exit(1)
	}

	var est estimator.Estimator = estimator.Disabled{}
	if cfg.PositionEstimatorURL != "" {
		est = estimator.NewHTTPEstimator(cfg.PositionEstimatorURL, cfg.EstimatorTimeout,
			estimator.WithRate(cfg.EstimatorRatePerSec),
		)
	}
	pipeline := ingest.NewPipeline(positions, est, logger)

	svc := &services{
		hub:        h,
		positions:  positions,
		fleet:      idx,
		history:    history.NewAdapter(repo, cfg.CircleSegments),
		pipeline:   pipeline,
		subscriber: ingest.NewSubscriber(conns.redis, cfg.TelemetryChannel, pipeline, logger),
	}

	if cfg.SimulationFile != "" {
		scenario, err := simulator.LoadScenario(cfg.SimulationFile)
		if err != nil {
			logger.Error("failed to load simulation", "file", cfg.SimulationFile, "error", err)
			os.Exit(1)
		}
		if svc.simulator, err = simulator.New(scenario, positions, logger); err != nil {
			logger.Error("failed to start simulation", "error", err)
			os.Exit(1)
		}
	}

	logger.Info("services initialized", "devices", positions.DeviceCount())
	return svc
}

func startWorkers(ctx context.Context, svc *services, logger *slog.Logger) *worker.Scheduler {
	s := worker.NewScheduler(logger)
	tasks := []worker.Task{
		worker.HistoryFlushTask(svc.positions),
		worker.RedisBackupTask(svc.positions),
	}
	if svc.simulator != nil {
		tasks = append(tasks, worker.SimulationTask(svc.simulator))
	}
	s.Start(ctx, tasks...)

	go func() {
		if err := svc.subscriber.Run(ctx); err != nil {
			logger.Error("telemetry subscriber stopped", "error", err)
		}
	}()
	return s
}

func runAPIServer(ctx context.Context, cfg config.Config, svc *services, logger *slog.Logger) {
	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery(), api.RequestLogger(logger))

	api.SetupRouter(r, routes.Deps{
		Hub:              svc.hub,
		Positions:        svc.positions,
		Pipeline:         svc.pipeline,
		Fleet:            svc.fleet,
		History:          svc.history,
		Simulator:        svc.simulator,
		Segments:         cfg.CircleSegments,
		HistoryMaxRange:  cfg.HistoryMaxRange,
		StreamRatePerSec: cfg.StreamRatePerSec,
		Logger:           logger,
	})

	srv := &http.Server{
		Addr:    cfg.Port,
		Handler: r,
		// cancelling ctx also ends open event streams
		BaseContext: func(net.Listener) context.Context { return ctx },
	}
	go func() {
		logger.Info("http server listening", "addr", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
}

func reportMemoryStats(ctx context.Context, logger *slog.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			var m runtime.MemStats
			runtime.ReadMemStats(&m)
			logger.Debug("memory stats",
				"allocMiB", m.Alloc/1024/1024,
				"totalAllocMiB", m.TotalAlloc/1024/1024,
				"sysMiB", m.Sys/1024/1024,
				"numGC", m.NumGC,
			)
		}
	}
}

func closeConnections(conns connections, logger *slog.Logger) {
	if err := postgres.Close(conns.db); err != nil {
		logger.Warn("error closing PostgreSQL connection", "error", err)
	}
	if err := conns.redis.Close(); err != nil {
		logger.Warn("error closing Redis connection", "error", err)
	}
	logger.Info("PostgreSQL and Redis connections closed")
}
