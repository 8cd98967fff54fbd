package storage

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// PostgresConfig configures the PostgreSQL connection pool.
type PostgresConfig struct {
	// ConnectionString is the PostgreSQL connection string.
	ConnectionString string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime.
	ConnMaxLifetime time.Duration
}

// OpenPostgres opens and pings a PostgreSQL database.
func OpenPostgres(ctx context.Context, cfg PostgresConfig) (*sql.DB, error) {
	if cfg.ConnectionString == "" {
		return nil, fmt.Errorf("postgres connection string required")
	}

	db, err := sql.Open(Postgres.Name, cfg.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// OpenSQLite opens a SQLite database file with foreign keys enforced.
// path may be ":memory:" for a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path required")
	}

	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sql.Open(SQLite.Name, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; also keeps ":memory:" on a single connection.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	return db, nil
}

// NewPostgresRepository creates a repository over a PostgreSQL database.
func NewPostgresRepository(db *sql.DB) *SQLRepository {
	return NewSQLRepository(db, Postgres)
}

// NewSQLiteRepository creates a repository over a SQLite database.
func NewSQLiteRepository(db *sql.DB) *SQLRepository {
	return NewSQLRepository(db, SQLite)
}

// Open opens, migrates and wraps the database selected by driver.
func Open(ctx context.Context, driver string, pg PostgresConfig, sqlitePath string) (*SQLRepository, error) {
	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)
	switch driver {
	case Postgres.Name:
		db, err = OpenPostgres(ctx, pg)
		dialect = Postgres
	case SQLite.Name:
		db, err = OpenSQLite(ctx, sqlitePath)
		dialect = SQLite
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
	if err != nil {
		return nil, err
	}

	if err := NewMigrationRunner(db, dialect).Run(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewSQLRepository(db, dialect), nil
}
