package postgres_wrapper

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff"
	_ "github.com/lib/pq" // nolint
	"go.uber.org/zap"
	pg "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/plugin/dbresolver"
)

type PostgresConfig struct {
	DriverName                 string          `yaml:"driver_name"`
	DataSource                 string          `yaml:"data_source"`
	MaxOpenConns               int             `yaml:"max_open_conns"`
	MaxIdleConns               int             `yaml:"max_idle_conns"`
	ConnMaxLifeTimeMiliseconds int64           `yaml:"conn_max_life_time_ms"`
	MigrationConnURL           string          `yaml:"migration_conn_url"`
	SlaveSources               []string        `yaml:"slave_sources"`
	LogLevel                   logger.LogLevel `yaml:"log_level"`
	Location                   string          `yaml:"location"`
	// ConnectTimeoutSeconds bounds InitPostgresWithBackoff; 0 means one minute.
	ConnectTimeoutSeconds int `yaml:"connect_timeout_seconds"`
}

func (cfg *PostgresConfig) location() (*time.Location, error) {
	if cfg.Location == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(cfg.Location)
}

// InitPostgres set up postgres
func InitPostgres(cfg *PostgresConfig) (*gorm.DB, error) {
	loc, err := cfg.location()
	if err != nil {
		return nil, fmt.Errorf("postgres location %q: %w", cfg.Location, err)
	}

	level := cfg.LogLevel
	if level == 0 {
		level = logger.Warn
	}
	newLogger := logger.New(
		zap.NewStdLog(zap.L().Named("gorm")), // io writer
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(pg.Open(cfg.DataSource), &gorm.Config{
		Logger: newLogger,
		NowFunc: func() time.Time {
			return time.Now().In(loc)
		},
	})
	if err != nil {
		zap.S().Debugf("open postgres fail: %+v", err)
		return nil, err
	}

	var repl []gorm.Dialector
	for _, s := range cfg.SlaveSources {
		repl = append(repl, pg.Open(s))
	}

	if len(repl) > 0 {
		zap.S().Debugf("register %d postgres replicas", len(repl))
		err := db.Use(dbresolver.Register(dbresolver.Config{
			Replicas: repl,
			Policy:   dbresolver.RandomPolicy{},
		}))
		if err != nil {
			zap.S().Debugf("init postgres replicas fail: %+v", err)
			return nil, err
		}
	}

	sqlDB, err := db.DB()
	if err != nil {
		zap.S().Debugf("get DB instance failed %v", err)
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifeTimeMiliseconds > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifeTimeMiliseconds) * time.Millisecond)
	}

	return db, nil
}

// InitPostgresWithBackoff retries InitPostgres with exponential backoff
// until it connects, ctx ends or the connect timeout elapses.
func InitPostgresWithBackoff(ctx context.Context, cfg *PostgresConfig) (*gorm.DB, error) {
	var db *gorm.DB
	boff := backoff.NewExponentialBackOff()
	boff.MaxElapsedTime = time.Minute
	if cfg.ConnectTimeoutSeconds > 0 {
		boff.MaxElapsedTime = time.Duration(cfg.ConnectTimeoutSeconds) * time.Second
	}

	err := backoff.Retry(func() error {
		var err error
		db, err = InitPostgres(cfg)
		if err != nil {
			zap.S().Warnf("connect postgres error: %v", err)
			return err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}, backoff.WithContext(boff, ctx))
	if err != nil {
		return nil, err
	}
	return db, nil
}
