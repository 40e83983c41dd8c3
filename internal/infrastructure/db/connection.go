package db

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/winramp/mixcore/internal/domain"
	"github.com/winramp/mixcore/internal/logger"
)

type Database struct {
	db   *gorm.DB
	path string
	mu   sync.RWMutex
}

type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	LogLevel        string
}

func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    1,
		MaxIdleConns:    1,
		ConnMaxLifetime: time.Hour,
		LogLevel:        "warn",
	}
}

// Open opens the profile database at cfg.Path, creating it if needed, and
// runs migrations.
func Open(cfg Config) (*Database, error) {
	// Ensure database directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	// Configure GORM logger
	var logLevel gormlogger.LogLevel
	switch cfg.LogLevel {
	case "silent":
		logLevel = gormlogger.Silent
	case "error":
		logLevel = gormlogger.Error
	case "info":
		logLevel = gormlogger.Info
	default:
		logLevel = gormlogger.Warn
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		PrepareStmt: true,
	})
	if err != nil {
		return nil, domain.NewDomainError(domain.ErrCodeStore, "failed to open database", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying SQL database: %w", err)
	}
	sqlDB.SetMaxOpenConns(max(cfg.MaxOpenConns, 1))
	sqlDB.SetMaxIdleConns(max(cfg.MaxIdleConns, 1))
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	d := &Database{db: db, path: cfg.Path}
	if err := d.Migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	logger.Debug("database opened", logger.String("path", cfg.Path))
	return d, nil
}

func (d *Database) Migrate() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := d.db.AutoMigrate(&domain.Profile{}); err != nil {
		return fmt.Errorf("failed to migrate %T: %w", &domain.Profile{}, err)
	}
	return nil
}

func (d *Database) DB() *gorm.DB {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.db
}

func (d *Database) Path() string { return d.path }

func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.db == nil {
		return nil
	}
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	d.db = nil
	return sqlDB.Close()
}

// Backup writes a compacted copy of the database to path.
func (d *Database) Backup(path string) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return fmt.Errorf("database not initialized")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	if err := d.db.Exec("VACUUM INTO ?", path).Error; err != nil {
		return fmt.Errorf("failed to backup database: %w", err)
	}

	logger.Info("database backed up", logger.String("path", path))
	return nil
}

func (d *Database) GetStats() (map[string]interface{}, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}

	stats := make(map[string]interface{})

	var count int64
	if err := d.db.Model(&domain.Profile{}).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to count profiles: %w", err)
	}
	stats["profiles_count"] = count

	var mode string
	d.db.Raw("PRAGMA journal_mode").Scan(&mode)
	stats["journal_mode"] = strings.ToLower(mode)

	var size int64
	d.db.Raw("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()").Scan(&size)
	stats["size_bytes"] = size

	return stats, nil
}
