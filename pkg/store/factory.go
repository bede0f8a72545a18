package store

import (
	"fmt"
	"strings"

	"github.com/nimburion/ticketwarden/pkg/config"
	"github.com/nimburion/ticketwarden/pkg/observability/logger"
	"github.com/nimburion/ticketwarden/pkg/store/mysql"
	"github.com/nimburion/ticketwarden/pkg/store/postgres"
)

// NewSQLAdapter opens the pool selected by cfg.Type.
func NewSQLAdapter(cfg config.DatabaseConfig, log logger.Logger) (SQLAdapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.DatabaseTypePostgres:
		return postgres.NewPostgreSQLAdapter(postgres.Config{
			URL:                 cfg.URL,
			MaxOpenConns:        cfg.MaxOpenConns,
			MaxIdleConns:        cfg.MaxIdleConns,
			ConnMaxLifetime:     cfg.ConnMaxLifetime,
			ConnMaxIdleTime:     cfg.ConnMaxIdleTime,
			QueryTimeout:        cfg.QueryTimeout,
			ConnectTimeout:      cfg.ConnectTimeout,
			KerberosServiceName: cfg.KerberosServiceName,
			KerberosSPN:         cfg.KerberosSPN,
		}, log)
	case config.DatabaseTypeMySQL:
		return mysql.NewMySQLAdapter(mysql.Config{
			URL:             cfg.URL,
			MaxOpenConns:    cfg.MaxOpenConns,
			MaxIdleConns:    cfg.MaxIdleConns,
			ConnMaxLifetime: cfg.ConnMaxLifetime,
			ConnMaxIdleTime: cfg.ConnMaxIdleTime,
			QueryTimeout:    cfg.QueryTimeout,
			ConnectTimeout:  cfg.ConnectTimeout,
		}, log)
	default:
		return nil, fmt.Errorf("unsupported database.type %q (supported: postgres, mysql)", cfg.Type)
	}
}
