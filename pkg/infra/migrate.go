package infra

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	postgres_wrapper "github.com/joripage/stock-oms/pkg/infra/postgres"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// IMigrateTool tool to migrate schema and data.
type IMigrateTool interface {
	// CreateDBAndMigrate connects with backoff, then migrates to the latest version.
	CreateDBAndMigrate(ctx context.Context, cfg *postgres_wrapper.PostgresConfig, source string) (*gorm.DB, error)

	// Migrate from current version to latest verion.
	Migrate(source string, connStr string) error
}

type migrateTool struct{}

var once sync.Once         // nolint
var mutex = &sync.Mutex{}  // nolint
var singleton IMigrateTool // nolint

// GetMigrateTool get singleton instance for migrate tool
func GetMigrateTool() IMigrateTool { // nolint
	once.Do(func() {
		singleton = &migrateTool{}
	})
	return singleton
}

// Migrate execute migration in serialize.
func (mt *migrateTool) Migrate(source string, connStr string) error {
	mutex.Lock()
	defer mutex.Unlock()

	zap.S().Infof("migrating %s", source)

	mg, err := migrate.New(source, connStr)
	if err != nil {
		return fmt.Errorf("create new migration: %w", err)
	}
	defer mg.Close()

	version, dirty, err := mg.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return err
	}

	// a failed run leaves the version dirty; step back and rerun it
	if dirty {
		if err := mg.Force(int(version) - 1); err != nil {
			return fmt.Errorf("force version %d: %w", version-1, err)
		}
	}

	if err := mg.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	version, _, _ = mg.Version()
	zap.S().Infof("migration done, version %d", version)
	return nil
}

func (mt *migrateTool) CreateDBAndMigrate(ctx context.Context, cfg *postgres_wrapper.PostgresConfig, source string) (*gorm.DB, error) {
	db, err := postgres_wrapper.InitPostgresWithBackoff(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := mt.Migrate(source, cfg.MigrationConnURL); err != nil {
		return nil, err
	}
	return db, nil
}
