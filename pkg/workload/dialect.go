package workload

import (
	"fmt"
	"regexp"
	"strings"
)

// Dialect renders the statements of the workload for one SQL engine.
type Dialect string

const (
	Postgres Dialect = "postgres"
	MySQL    Dialect = "mysql"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// ParseDialect accepts the database.type values of the configuration.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "postgres", "postgresql":
		return Postgres, nil
	case "mysql":
		return MySQL, nil
	default:
		return "", workloadError(ErrValidation, fmt.Sprintf("unsupported dialect %q (supported: postgres, mysql)", name))
	}
}

// System is the OpenTelemetry db.system value.
func (d Dialect) System() string {
	if d == Postgres {
		return "postgresql"
	}
	return string(d)
}

func (d Dialect) CreateTable(table string) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (pk VARCHAR(32) NOT NULL PRIMARY KEY, col1 INTEGER)", table)
}

// Upsert inserts (pk, col1) or overwrites col1 of an existing key.
func (d Dialect) Upsert(table string) string {
	if d == MySQL {
		return fmt.Sprintf("INSERT INTO %s (pk, col1) VALUES (?, ?) ON DUPLICATE KEY UPDATE col1 = VALUES(col1)", table)
	}
	return fmt.Sprintf("INSERT INTO %s (pk, col1) VALUES ($1, $2) ON CONFLICT (pk) DO UPDATE SET col1 = EXCLUDED.col1", table)
}

// Select reads the first row by key. The runner still reports extra rows if
// a driver ignores the limit.
func (d Dialect) Select(table string) string {
	return fmt.Sprintf("SELECT pk, col1 FROM %s ORDER BY pk LIMIT 1", table)
}

func validateTableName(table string) error {
	if !tableNamePattern.MatchString(table) {
		return workloadError(ErrValidation, fmt.Sprintf("invalid table name %q", table))
	}
	return nil
}
