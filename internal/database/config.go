// Package database provides database connectivity and operations.
package database

import (
	"os"
	"strconv"
	"strings"
)

// Dialect represents the supported database backends.
type Dialect string

const (
	// DialectPostgres is the production backend with real row-level locking.
	DialectPostgres Dialect = "postgres"
	// DialectSQLite is the development and test backend.
	DialectSQLite Dialect = "sqlite"
)

// String returns the string representation of the dialect.
func (d Dialect) String() string {
	return string(d)
}

// IsValid returns true if the dialect is supported.
func (d Dialect) IsValid() bool {
	switch d {
	case DialectPostgres, DialectSQLite:
		return true
	default:
		return false
	}
}

// ParseDialect parses a string into a Dialect.
// Returns DialectPostgres if the input is empty or unknown.
func ParseDialect(s string) Dialect {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sqlite", "sqlite3":
		return DialectSQLite
	case "postgres", "postgresql", "pg":
		return DialectPostgres
	default:
		return DialectPostgres
	}
}

// Rebind rewrites `?` placeholders into the dialect's native form.
// PostgreSQL uses ordinal $1..$n placeholders; SQLite takes `?` as is.
func (d Dialect) Rebind(query string) string {
	if d != DialectPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// LockSuffix returns the clause appended to a SELECT to take an exclusive
// row lock. SQLite has no FOR UPDATE; its single-writer lock already
// serializes read-then-write transactions, so the suffix is empty there.
func (d Dialect) LockSuffix() string {
	if d == DialectPostgres {
		return " FOR UPDATE"
	}
	return ""
}

// Config holds database connection configuration.
type Config struct {
	Dialect Dialect

	// PostgreSQL settings
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string

	// SQLite settings
	Path string

	MaxOpenConns int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Dialect: DialectPostgres,
		Host:    "localhost",
		Port:    5432,
		SSLMode: "disable",
		Path:    "runforge.db",
	}
}

// ConfigFromEnv creates a Config from environment variables.
// Environment variables:
//   - DATABASE_DIALECT: "postgres" or "sqlite" (default: "postgres")
//   - For PostgreSQL: DB_HOST, DB_PORT, DB_NAME, DB_USER, DB_PASSWORD, DB_SSL_MODE
//   - For SQLite: DB_PATH
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	if dialect := os.Getenv("DATABASE_DIALECT"); dialect != "" {
		cfg.Dialect = ParseDialect(dialect)
	}
	if host := os.Getenv("DB_HOST"); host != "" {
		cfg.Host = host
	}
	if port := os.Getenv("DB_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil && p > 0 {
			cfg.Port = p
		}
	}
	if name := os.Getenv("DB_NAME"); name != "" {
		cfg.Database = name
	}
	if user := os.Getenv("DB_USER"); user != "" {
		cfg.User = user
	}
	if pass := os.Getenv("DB_PASSWORD"); pass != "" {
		cfg.Password = pass
	}
	if ssl := os.Getenv("DB_SSL_MODE"); ssl != "" {
		cfg.SSLMode = ssl
	}
	if path := os.Getenv("DB_PATH"); path != "" {
		cfg.Path = path
	}

	return cfg
}
