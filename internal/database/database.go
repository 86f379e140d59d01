// Package database provides database connectivity and operations.
package database

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Connect opens a connection for the given configuration.
func Connect(cfg Config) (*sql.DB, error) {
	var db *sql.DB
	var err error

	switch cfg.Dialect {
	case DialectPostgres:
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
		)
		db, err = sql.Open("postgres", dsn)
	case DialectSQLite:
		db, err = sql.Open("sqlite", cfg.Path)
	default:
		return nil, fmt.Errorf("unsupported database dialect: %s", cfg.Dialect)
	}
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	configurePool(db, cfg)

	if cfg.Dialect == DialectSQLite {
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			return nil, fmt.Errorf("enabling foreign keys: %w", err)
		}
	}

	return db, nil
}

// ConnectWithDSN connects to PostgreSQL using a full DSN string.
func ConnectWithDSN(dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	configurePool(db, DefaultConfig())
	return db, nil
}

func configurePool(db *sql.DB, cfg Config) {
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 25
	}
	// SQLite serializes writers; extra connections only add lock contention.
	if cfg.Dialect == DialectSQLite {
		maxOpen = 1
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(1 * time.Minute)
}

// Ping verifies the database connection is alive.
func Ping(db *sql.DB) error {
	if err := db.Ping(); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}
	return nil
}

// Close closes the database connection.
func Close(db *sql.DB) error {
	if err := db.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// PoolStats returns current connection pool statistics.
type PoolStats struct {
	MaxOpenConnections int
	OpenConnections    int
	InUse              int
	Idle               int
}

// GetPoolStats returns the current connection pool statistics.
func GetPoolStats(db *sql.DB) PoolStats {
	stats := db.Stats()
	return PoolStats{
		MaxOpenConnections: stats.MaxOpenConnections,
		OpenConnections:    stats.OpenConnections,
		InUse:              stats.InUse,
		Idle:               stats.Idle,
	}
}
