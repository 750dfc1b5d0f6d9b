package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"budgetbox/internal/logger"
)

// DefaultMigrationsSource is where the SQL migrations live relative to the
// working directory of the binaries.
const DefaultMigrationsSource = "file://migrations"

// Manager owns the gorm connection pool and the migration source.
type Manager struct {
	db        *gorm.DB
	url       string
	migration string
}

// NewManager connects to PostgreSQL using config.
func NewManager(config *Config) (*Manager, error) {
	m, err := Open(postgres.New(postgres.Config{
		DSN:                  config.DSN(),
		PreferSimpleProtocol: true,
	}))
	if err != nil {
		return nil, err
	}

	sqlDB, err := m.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	m.url = config.URL()
	return m, nil
}

// Open wraps an arbitrary gorm dialector in a Manager. Migrations are only
// available on managers created by NewManager.
func Open(dialector gorm.Dialector) (*Manager, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Manager{db: db, migration: DefaultMigrationsSource}, nil
}

// DB returns the underlying GORM database instance
func (m *Manager) DB() *gorm.DB {
	return m.db
}

// HealthCheck runs a trivial query with the caller's deadline.
func (m *Manager) HealthCheck(ctx context.Context) error {
	if err := m.db.WithContext(ctx).Exec("SELECT 1").Error; err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (m *Manager) Close() error {
	sqlDB, err := m.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// RunMigrations applies pending SQL migrations from the migrations/ directory.
func (m *Manager) RunMigrations() error {
	logger.Get().Info("Running database migrations...")

	err := m.withMigrator(func(mig *migrate.Migrate) error {
		return mig.Up()
	})
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}

	logger.Get().Info("Database migrations completed successfully")
	return nil
}

// MigrateDown rolls back steps migrations, or all of them when steps <= 0.
func (m *Manager) MigrateDown(steps int) error {
	err := m.withMigrator(func(mig *migrate.Migrate) error {
		if steps <= 0 {
			return mig.Down()
		}
		return mig.Steps(-steps)
	})
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("rollback failed: %w", err)
	}
	return nil
}

// MigrationVersion reports the applied schema version and dirty flag.
func (m *Manager) MigrationVersion() (uint, bool, error) {
	var (
		version uint
		dirty   bool
	)
	err := m.withMigrator(func(mig *migrate.Migrate) error {
		var verr error
		version, dirty, verr = mig.Version()
		return verr
	})
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

// ForceVersion sets the schema version without running migrations, used to
// recover from a dirty state.
func (m *Manager) ForceVersion(version int) error {
	return m.withMigrator(func(mig *migrate.Migrate) error {
		return mig.Force(version)
	})
}

func (m *Manager) withMigrator(fn func(*migrate.Migrate) error) error {
	if m.url == "" {
		return errors.New("migrations require a PostgreSQL manager")
	}

	mig, err := migrate.New(m.migration, m.url)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	defer func() {
		srcErr, dbErr := mig.Close()
		if srcErr != nil {
			logger.Get().Warnf("migrate source close error: %v", srcErr)
		}
		if dbErr != nil {
			logger.Get().Warnf("migrate database close error: %v", dbErr)
		}
	}()

	return fn(mig)
}
