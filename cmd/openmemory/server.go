// Package main wires the OpenMemory process together: config, storage,
// the HSG engine, the analyzer battery, the HTTP surface, and background
// maintenance loops.
package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/openmemory/openmemory/api/httpapi"
	"github.com/openmemory/openmemory/config"
	"github.com/openmemory/openmemory/internal/agentapi"
	"github.com/openmemory/openmemory/internal/cache"
	"github.com/openmemory/openmemory/internal/database"
	"github.com/openmemory/openmemory/internal/embedding"
	"github.com/openmemory/openmemory/internal/enforcement"
	"github.com/openmemory/openmemory/internal/hsg"
	"github.com/openmemory/openmemory/internal/maintenance"
	"github.com/openmemory/openmemory/internal/metrics"
	"github.com/openmemory/openmemory/internal/orchestration"
	"github.com/openmemory/openmemory/internal/server"
	"github.com/openmemory/openmemory/internal/store"
	"github.com/openmemory/openmemory/internal/telemetry"
)

// dbStatsPollInterval controls how often PoolManager stats are folded into
// the dbConnectionsOpen/dbConnectionsIdle gauges.
const dbStatsPollInterval = 15 * time.Second

// Server owns every long-lived component of one OpenMemory process.
type Server struct {
	cfg    *config.Config
	logger *zap.Logger
	otel   *telemetry.Providers

	db   *gorm.DB
	pool *database.PoolManager

	store       *store.Store
	embedder    embedding.Embedder
	engine      *hsg.Engine
	cacheMgr    *cache.Manager
	api         *agentapi.API
	gate        *enforcement.Gate
	orchestrator *orchestration.Orchestrator
	metrics     *metrics.Collector
	maintenance *maintenance.Loops

	broadcaster *httpapi.Broadcaster

	httpManager    *server.Manager
	metricsManager *server.Manager

	stopStats context.CancelFunc
}

// NewServer assembles every component but starts nothing.
func NewServer(cfg *config.Config, logger *zap.Logger, otel *telemetry.Providers) (*Server, error) {
	s := &Server{cfg: cfg, logger: logger, otel: otel}

	db, err := openDatabase(cfg.Database, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	s.db = db

	pool, err := database.NewPoolManager(db, database.PoolConfig{
		MaxIdleConns:        cfg.Database.MaxIdleConns,
		MaxOpenConns:        cfg.Database.MaxOpenConns,
		ConnMaxLifetime:     cfg.Database.ConnMaxLifetime,
		ConnMaxIdleTime:     cfg.Database.ConnMaxLifetime,
		HealthCheckInterval: 30 * time.Second,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init connection pool: %w", err)
	}
	s.pool = pool

	st, err := store.New(db, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	s.store = st

	s.embedder = embedding.NewDeterministic(cfg.HSG.VectorDim)
	s.engine = hsg.New(st, s.embedder, hsg.Config{SectorLambda: cfg.HSG.SectorLambda}, logger)
	s.metrics = metrics.NewCollector("openmemory", logger)

	if cfg.Redis.Enabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.Addr = cfg.Redis.Addr
		cacheCfg.Password = cfg.Redis.Password
		cacheCfg.DB = cfg.Redis.DB
		cacheCfg.PoolSize = cfg.Redis.PoolSize
		cacheCfg.MinIdleConns = cfg.Redis.MinIdleConns
		cacheMgr, err := cache.NewManager(cacheCfg, logger)
		if err != nil {
			logger.Warn("redis cache unavailable, querying the store directly", zap.Error(err))
		} else {
			s.cacheMgr = cacheMgr
			s.engine.SetCache(cacheMgr, s.metrics)
		}
	}

	s.api = agentapi.New(s.engine, logger)
	s.gate = enforcement.New(st, logger)
	s.orchestrator = orchestration.New(st, s.engine, s.api, logger)

	decayInterval := time.Duration(cfg.HSG.DecayIntervalMins) * time.Minute
	s.maintenance = maintenance.New(s.engine, decayInterval, cfg.HSG.WaypointPruneWeak, s.metrics, logger)

	s.broadcaster = httpapi.NewBroadcaster()

	return s, nil
}

// openDatabase opens the configured driver's GORM dialector. Supported
// drivers mirror config.DatabaseConfig.DSN(): sqlite for local/dev use,
// postgres for production.
func openDatabase(dbCfg config.DatabaseConfig, logger *zap.Logger) (*gorm.DB, error) {
	if dbCfg.Driver == "" {
		return nil, fmt.Errorf("database driver not configured")
	}

	var dialector gorm.Dialector
	switch dbCfg.Driver {
	case "postgres":
		dialector = postgres.Open(dbCfg.DSN())
	case "sqlite":
		dialector = sqlite.Open(dbCfg.DSN())
	default:
		return nil, fmt.Errorf("unsupported database driver: %s (supported: sqlite, postgres)", dbCfg.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	logger.Info("database connected", zap.String("driver", dbCfg.Driver))
	return db, nil
}

// Start brings up background loops and both HTTP listeners (API + metrics).
// Non-blocking: call WaitForShutdown to block until termination.
func (s *Server) Start(version, buildTime, gitCommit string) error {
	s.maintenance.Start()

	statsCtx, cancel := context.WithCancel(context.Background())
	s.stopStats = cancel
	go s.pollDBStats(statsCtx)

	health := httpapi.NewHealthHandler(s.logger)
	health.RegisterCheck(httpapi.NewDatabaseHealthCheck("database", s.pool.Ping))
	if s.cacheMgr != nil {
		health.RegisterCheck(httpapi.NewDatabaseHealthCheck("redis", s.cacheMgr.Ping))
	}

	handlers := httpapi.New(s.api, s.engine, s.store, s.orchestrator, s.gate, s.broadcaster, s.cfg.Server.DefaultUserID, s.logger)
	stream := httpapi.NewStreamHandler(s.broadcaster, s.cfg.Server.StreamEnabled, s.logger)

	router := httpapi.NewRouter(context.Background(), handlers, health, stream, s.metrics, httpapi.RouterConfig{
		APIKeys:        s.cfg.Auth.APIKeys,
		RateLimitRPS:   s.cfg.Server.RateLimitRPS,
		RateLimitBurst: s.cfg.Server.RateLimitBurst,
		CORSAllowAll:   s.cfg.Server.CORSAllowAll,
	}, version, buildTime, gitCommit, s.logger)

	s.httpManager = server.NewManager(router, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.ListenPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	s.metricsManager = server.NewManager(metricsMux, server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 5 * time.Second,
	}, s.logger)
	if err := s.metricsManager.Start(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("openmemory started",
		zap.Int("api_port", s.cfg.Server.ListenPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)
	return nil
}

// pollDBStats periodically folds PoolManager.Stats() into the Collector's
// connection gauges, the only caller of metrics.RecordDBConnections.
func (s *Server) pollDBStats(ctx context.Context) {
	ticker := time.NewTicker(dbStatsPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.pool.Stats()
			s.metrics.RecordDBConnections(s.cfg.Database.Driver, stats.OpenConnections, stats.Idle)
		}
	}
}

// WaitForShutdown blocks until SIGINT/SIGTERM or a server error, then tears
// everything down in reverse dependency order.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if s.stopStats != nil {
		s.stopStats()
	}
	s.maintenance.Stop()

	if err := s.metricsManager.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("metrics server shutdown error", zap.Error(err))
	}
	if s.cacheMgr != nil {
		if err := s.cacheMgr.Close(); err != nil {
			s.logger.Warn("cache manager close error", zap.Error(err))
		}
	}
	if err := s.pool.Close(); err != nil {
		s.logger.Warn("database pool close error", zap.Error(err))
	}
	if err := s.otel.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn("telemetry shutdown error", zap.Error(err))
	}
}
