package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"lostfound/internal/config"
)

// Open connects to the configured relational store. The returned dialect name
// ("sqlite", "mysql" or "postgres") selects migrations and placeholder style.
func Open(cfg config.DBConfig) (*sql.DB, string, error) {
	switch cfg.Driver {
	case "", "sqlite":
		db, err := OpenSQLite(cfg.Path, cfg.MaxOpenConns, cfg.MaxIdleConns, cfg.ConnMaxLifetime)
		return db, "sqlite", err
	case "mysql":
		db, err := openPool("mysql", withParseTime(cfg.DSN), cfg)
		return db, "mysql", err
	case "postgres":
		db, err := openPool("pgx", cfg.DSN, cfg)
		return db, "postgres", err
	default:
		return nil, "", fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}
}

func OpenSQLite(path string, maxOpen, maxIdle int, maxLifetime time.Duration) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)&_time_format=sqlite", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return db, nil
}

func openPool(driver, dsn string, cfg config.DBConfig) (*sql.DB, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// withParseTime makes the MySQL driver scan DATETIME columns into time.Time.
func withParseTime(dsn string) string {
	if strings.Contains(strings.ToLower(dsn), "parsetime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}
