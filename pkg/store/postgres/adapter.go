// Package postgres opens PostgreSQL pools through lib/pq. When the server
// asks for GSSAPI authentication the driver uses whatever GSS provider is
// registered with pq, which is how the Kerberos ticket reaches the wire.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/nimburion/ticketwarden/pkg/observability/logger"
)

const defaultConnectTimeout = 5 * time.Second

// PostgreSQLAdapter provides PostgreSQL database connectivity with connection pooling
type PostgreSQLAdapter struct {
	db     *sql.DB
	logger logger.Logger
	config Config
}

// Config holds PostgreSQL connection configuration
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	QueryTimeout    time.Duration
	ConnectTimeout  time.Duration
	// KerberosServiceName and KerberosSPN become the krbsrvname and krbspn
	// connection parameters unless the URL already carries them.
	KerberosServiceName string
	KerberosSPN         string
}

// NewPostgreSQLAdapter creates a new PostgreSQL adapter with connection pooling
func NewPostgreSQLAdapter(cfg Config, log logger.Logger) (*PostgreSQLAdapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	dsn, err := kerberosDSN(cfg.URL, cfg.KerberosServiceName, cfg.KerberosSPN)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	a := newAdapter(db, cfg, log)

	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info("PostgreSQL connection established",
		"max_open_conns", cfg.MaxOpenConns,
		"max_idle_conns", cfg.MaxIdleConns,
		"conn_max_lifetime", cfg.ConnMaxLifetime,
		"conn_max_idle_time", cfg.ConnMaxIdleTime,
		"krbsrvname", cfg.KerberosServiceName,
	)

	return a, nil
}

func newAdapter(db *sql.DB, cfg Config, log logger.Logger) *PostgreSQLAdapter {
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	return &PostgreSQLAdapter{db: db, logger: log, config: cfg}
}

// kerberosDSN adds krbsrvname and krbspn to a URL or key=value DSN.
// Parameters already present in the DSN win.
func kerberosDSN(dsn, serviceName, spn string) (string, error) {
	params := [][2]string{{"krbsrvname", serviceName}, {"krbspn", spn}}

	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		u, err := url.Parse(dsn)
		if err != nil {
			return "", fmt.Errorf("invalid database URL: %w", err)
		}
		q := u.Query()
		for _, p := range params {
			if p[1] != "" && q.Get(p[0]) == "" {
				q.Set(p[0], p[1])
			}
		}
		u.RawQuery = q.Encode()
		return u.String(), nil
	}

	out := dsn
	for _, p := range params {
		if p[1] == "" || strings.Contains(out, p[0]+"=") {
			continue
		}
		out += fmt.Sprintf(" %s=%s", p[0], quoteValue(p[1]))
	}
	return strings.TrimSpace(out), nil
}

func quoteValue(v string) string {
	if !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

// DB returns the underlying *sql.DB for direct access when needed
func (a *PostgreSQLAdapter) DB() *sql.DB {
	return a.db
}

// HealthCheck verifies the database connection is healthy with a timeout
func (a *PostgreSQLAdapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := a.withQueryTimeout(ctx)
	defer cancel()

	if err := a.db.PingContext(ctx); err != nil {
		a.logger.Error("PostgreSQL health check failed", "error", err)
		return fmt.Errorf("database health check failed: %w", err)
	}

	return nil
}

// Close gracefully closes the database connection
func (a *PostgreSQLAdapter) Close() error {
	a.logger.Info("closing PostgreSQL connection")

	if err := a.db.Close(); err != nil {
		a.logger.Error("failed to close PostgreSQL connection", "error", err)
		return fmt.Errorf("failed to close database connection: %w", err)
	}

	a.logger.Info("PostgreSQL connection closed successfully")
	return nil
}

func (a *PostgreSQLAdapter) withQueryTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a.config.QueryTimeout <= 0 {
		return ctx, func() {}
	}
	if _, hasDeadline := ctx.Deadline(); hasDeadline {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, a.config.QueryTimeout)
}
