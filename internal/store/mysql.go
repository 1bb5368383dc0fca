package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/user/movieverse/internal/config"
	"github.com/user/movieverse/internal/model"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// PasswordScheme controls how stored admin passwords are compared
type PasswordScheme string

const (
	// PasswordPlain compares the stored value exactly as written
	PasswordPlain PasswordScheme = "plain"
	// PasswordBcrypt treats the stored value as a bcrypt hash
	PasswordBcrypt PasswordScheme = "bcrypt"
)

// SQLStore implements Store on top of gorm. Every call borrows a pooled
// connection for one statement and returns it on every exit path.
type SQLStore struct {
	db     *gorm.DB
	scheme PasswordScheme
}

// Open creates a store for the driver named in cfg
func Open(cfg *config.DBConfig, scheme PasswordScheme) (*SQLStore, error) {
	switch cfg.Driver {
	case "mysql", "":
		return NewMySQLStore(cfg, scheme)
	case "sqlite":
		return NewSQLiteStore(cfg.Path, scheme)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewMySQLStore creates a new MySQL store instance
func NewMySQLStore(cfg *config.DBConfig, scheme PasswordScheme) (*SQLStore, error) {
	s, err := newSQLStore(mysql.Open(cfg.DSN()), scheme)
	if err != nil {
		return nil, err
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// Configure connection pool
	sqlDB.SetMaxOpenConns(cfg.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.MaxConns / 2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	return s, nil
}

// NewSQLiteStore creates a store backed by an embedded SQLite database.
// path may be ":memory:".
func NewSQLiteStore(path string, scheme PasswordScheme) (*SQLStore, error) {
	dsn := path
	if path != ":memory:" {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	s, err := newSQLStore(sqlite.Open(dsn), scheme)
	if err != nil {
		return nil, err
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	// SQLite has a single writer, and each :memory: connection is its own database
	sqlDB.SetMaxOpenConns(1)

	return s, nil
}

func newSQLStore(dialector gorm.Dialector, scheme PasswordScheme) (*SQLStore, error) {
	if scheme == "" {
		scheme = PasswordPlain
	}
	if scheme != PasswordPlain && scheme != PasswordBcrypt {
		return nil, fmt.Errorf("unsupported password scheme %q", scheme)
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Auto migrate tables
	if err := db.AutoMigrate(&model.Movie{}, &model.Admin{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := backfillTitleFold(db); err != nil {
		return nil, fmt.Errorf("failed to backfill title search keys: %w", err)
	}

	return &SQLStore{db: db, scheme: scheme}, nil
}

// Ping checks database connectivity
func (s *SQLStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return storeErr("get underlying db", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return storeErr("ping database", err)
	}
	return nil
}

// Close closes the database connection pool
func (s *SQLStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying db: %w", err)
	}
	return sqlDB.Close()
}

// DB returns the underlying gorm.DB instance (for testing purposes)
func (s *SQLStore) DB() *gorm.DB {
	return s.db
}
