package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"pg-user-api/internal/config"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Open creates the connection pool and verifies it with a ping.
// The returned handle is shared by every request; callers never open
// per-request connections.
func Open(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// sqlite allows one writer; serialize instead of failing with SQLITE_BUSY.
		// Keeping the single connection alive also preserves :memory: databases.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxIdleConns)
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.PingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return db, nil
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS user_register (
		user_id        INTEGER PRIMARY KEY,
		name           TEXT NOT NULL,
		phone_number   TEXT NOT NULL,
		email          TEXT NOT NULL UNIQUE,
		user_type      TEXT NOT NULL,
		pg_name        TEXT,
		photo          BLOB,
		address        TEXT,
		profession     TEXT,
		aadhaar_number TEXT,
		password_hash  TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'Active',
		created_at     TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS login_history (
		login_id    INTEGER PRIMARY KEY,
		user_id     INTEGER NOT NULL REFERENCES user_register(user_id) ON DELETE CASCADE,
		login_time  TIMESTAMP NOT NULL,
		ip_address  TEXT,
		device_info TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_login_history_user ON login_history(user_id)`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS user_register (
		user_id        BIGINT PRIMARY KEY,
		name           TEXT NOT NULL,
		phone_number   TEXT NOT NULL,
		email          TEXT NOT NULL UNIQUE,
		user_type      TEXT NOT NULL,
		pg_name        TEXT,
		photo          BYTEA,
		address        TEXT,
		profession     TEXT,
		aadhaar_number TEXT,
		password_hash  TEXT NOT NULL,
		status         TEXT NOT NULL DEFAULT 'Active',
		created_at     TIMESTAMPTZ NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS login_history (
		login_id    BIGINT PRIMARY KEY,
		user_id     BIGINT NOT NULL REFERENCES user_register(user_id) ON DELETE CASCADE,
		login_time  TIMESTAMPTZ NOT NULL,
		ip_address  TEXT,
		device_info TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_login_history_user ON login_history(user_id)`,
}

// EnsureSchema creates the tables if they do not exist. It is idempotent.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	stmts := sqliteSchema
	if db.DriverName() == DriverPostgres {
		stmts = postgresSchema
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// IsUniqueViolation reports whether err came from a UNIQUE or PRIMARY KEY
// constraint, for either supported driver.
func IsUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}
