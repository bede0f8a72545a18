// Package mysql opens MySQL pools through go-sql-driver/mysql.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/nimburion/ticketwarden/pkg/observability/logger"
)

const defaultConnectTimeout = 5 * time.Second

// MySQLAdapter provides MySQL connectivity with pooled connections.
type MySQLAdapter struct {
	db     *sql.DB
	logger logger.Logger
	config Config
}

// Config holds MySQL configuration.
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
	ConnectTimeout  time.Duration
}

// NewMySQLAdapter parses the DSN, opens a pool and pings it once.
func NewMySQLAdapter(cfg Config, log logger.Logger) (*MySQLAdapter, error) {
	driverCfg, err := driverConfig(cfg)
	if err != nil {
		return nil, err
	}

	connector, err := mysql.NewConnector(driverCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)
	a := newAdapter(db, cfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), driverCfg.Timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping mysql database: %w", err)
	}

	log.Info("MySQL connection established",
		"addr", driverCfg.Addr,
		"database", driverCfg.DBName,
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
		"conn_max_lifetime", cfg.ConnMaxLifetime,
		"conn_max_idle_time", cfg.ConnMaxIdleTime,
	)

	return a, nil
}

// driverConfig applies the adapter timeouts on top of the DSN. Timeouts set
// in the DSN itself are kept.
func driverConfig(cfg Config) (*mysql.Config, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	driverCfg, err := mysql.ParseDSN(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql DSN: %w", err)
	}
	if driverCfg.Timeout <= 0 {
		driverCfg.Timeout = cfg.ConnectTimeout
		if driverCfg.Timeout <= 0 {
			driverCfg.Timeout = defaultConnectTimeout
		}
	}
	if driverCfg.ReadTimeout <= 0 && cfg.QueryTimeout > 0 {
		driverCfg.ReadTimeout = cfg.QueryTimeout
	}
	if driverCfg.WriteTimeout <= 0 && cfg.QueryTimeout > 0 {
		driverCfg.WriteTimeout = cfg.QueryTimeout
	}
	return driverCfg, nil
}

func newAdapter(db *sql.DB, cfg Config, log logger.Logger) *MySQLAdapter {
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return &MySQLAdapter{db: db, logger: log, config: cfg}
}

// DB returns the pool.
func (a *MySQLAdapter) DB() *sql.DB {
	return a.db
}

// HealthCheck pings the server.
func (a *MySQLAdapter) HealthCheck(ctx context.Context) error {
	hcCtx, cancel := a.withQueryTimeout(ctx)
	defer cancel()
	if err := a.db.PingContext(hcCtx); err != nil {
		a.logger.Error("MySQL health check failed", "error", err)
		return fmt.Errorf("mysql health check failed: %w", err)
	}
	return nil
}

// Close releases the pool.
func (a *MySQLAdapter) Close() error {
	a.logger.Info("closing MySQL connection")
	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close MySQL connection", "error", err)
		return fmt.Errorf("failed to close mysql connection: %w", err)
	}
	a.logger.Info("MySQL connection closed successfully")
	return nil
}

func (a *MySQLAdapter) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.config.QueryTimeout)
}
