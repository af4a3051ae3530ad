package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"taskflow/backend/internal/config"
	"taskflow/backend/internal/database"
	"taskflow/backend/internal/logging"
	"taskflow/backend/internal/models"
	"taskflow/backend/internal/services"
	"taskflow/backend/internal/store"

	"go.uber.org/zap"
	"gorm.io/gorm/logger"
)

// app holds the long-lived dependencies shared by the commands.
type app struct {
	cfg          *config.Config
	log          *zap.Logger
	db           *database.DatabasePool
	backend      store.Backend
	redis        *store.RedisBackend
	tasks        *services.TaskProvider
	auth         *services.AuthServiceImpl
	provisioning *services.ProvisioningService
}

func loadConfig() (*config.Config, error) {
	if envFile != "" {
		return config.LoadConfig(envFile)
	}
	return config.LoadConfig()
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.Format = cfg.Logging.Format
	if err := logCfg.Validate(); err != nil {
		return nil, fmt.Errorf("logging config: %w", err)
	}
	return logging.New(logCfg)
}

func openDatabase(cfg *config.Config, log *zap.Logger) (*database.DatabasePool, error) {
	poolCfg := database.DefaultPoolConfig()
	poolCfg.Driver = cfg.Database.Driver
	poolCfg.DSN = cfg.GetDatabaseDSN()
	poolCfg.MaxOpenConns = cfg.Database.MaxOpenConns
	poolCfg.MaxIdleConns = cfg.Database.MaxIdleConns
	poolCfg.ConnMaxLifetime = cfg.Database.ConnMaxLifetime
	poolCfg.ConnMaxIdleTime = cfg.Database.ConnMaxIdleTime
	poolCfg.Logger = log
	poolCfg.LogLevel = logger.Warn
	if !cfg.IsProduction() {
		poolCfg.LogLevel = logger.Info
	}
	return database.NewDatabasePool(poolCfg)
}

// openBackend builds the blob store for the persisted collections. The
// returned RedisBackend is non-nil only for the redis driver.
func openBackend(ctx context.Context, cfg *config.Config, db *database.DatabasePool) (store.Backend, *store.RedisBackend, error) {
	var (
		backend store.Backend
		rdb     *store.RedisBackend
	)
	switch cfg.Store.Driver {
	case config.StoreDriverRedis:
		rdb = store.NewRedisBackend(&store.RedisConfig{
			Addr:         cfg.GetRedisAddr(),
			Password:     cfg.Redis.Password,
			DB:           cfg.Redis.DB,
			KeyPrefix:    cfg.Store.KeyPrefix,
			PoolSize:     cfg.Redis.PoolSize,
			MinIdleConns: cfg.Redis.MinIdleConns,
			MaxRetries:   cfg.Redis.MaxRetries,
			DialTimeout:  cfg.Redis.DialTimeout,
			ReadTimeout:  cfg.Redis.ReadTimeout,
			WriteTimeout: cfg.Redis.WriteTimeout,
		})
		pingCtx, cancel := context.WithTimeout(ctx, cfg.Redis.DialTimeout)
		defer cancel()
		if err := rdb.Health(pingCtx); err != nil {
			rdb.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		backend = rdb
	case config.StoreDriverSQL:
		if db == nil {
			return nil, nil, errors.New("sql store needs a database")
		}
		sqlBackend := store.NewSQLBackend(db.DB)
		if err := sqlBackend.Migrate(ctx); err != nil {
			return nil, nil, err
		}
		backend = sqlBackend
	case config.StoreDriverMemory:
		backend = store.NewMemoryBackend()
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}

	if cfg.Store.BreakerEnabled {
		backend = store.NewBreakerBackend(backend, &store.CircuitBreakerConfig{
			MaxFailures:      cfg.Store.BreakerMaxFailures,
			Timeout:          cfg.Store.BreakerTimeout,
			HalfOpenMaxCalls: 1,
		})
	}
	return backend, rdb, nil
}

// newApp wires storage, the task provider and the auth services. The
// account tables are migrated so a fresh sqlite file works out of the box.
func newApp(ctx context.Context, cfg *config.Config, log *zap.Logger) (*app, error) {
	db, err := openDatabase(cfg, log)
	if err != nil {
		return nil, err
	}
	if err := db.DB.WithContext(ctx).AutoMigrate(&models.Account{}, &models.RefreshToken{}); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate accounts: %w", err)
	}

	backend, rdb, err := openBackend(ctx, cfg, db)
	if err != nil {
		db.Close()
		return nil, err
	}

	tasks, err := services.NewTaskProvider(ctx, backend, log)
	if err != nil {
		backend.Close()
		db.Close()
		return nil, err
	}

	authService := services.NewAuthService(db.DB, tasks, services.AuthConfig{
		JWTSecret:       cfg.Auth.JWTSecret,
		Issuer:          cfg.Auth.Issuer,
		AccessTokenTTL:  cfg.Auth.AccessTokenTTL,
		RefreshTokenTTL: cfg.Auth.RefreshTokenTTL,
		BcryptCost:      cfg.Auth.BCryptCost,
	}, log)

	return &app{
		cfg:          cfg,
		log:          log,
		db:           db,
		backend:      backend,
		redis:        rdb,
		tasks:        tasks,
		auth:         authService,
		provisioning: services.NewProvisioningService(authService, tasks, log),
	}, nil
}

func (a *app) Close() {
	if err := a.backend.Close(); err != nil {
		a.log.Warn("closing store", zap.Error(err))
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn("closing database", zap.Error(err))
	}
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(ctx, d)
}
