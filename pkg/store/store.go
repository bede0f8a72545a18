package store

import (
	"context"
	"database/sql"
)

// Adapter is the minimal lifecycle and health contract for storage adapters.
type Adapter interface {
	HealthCheck(ctx context.Context) error
	Close() error
}

// SQLAdapter is an Adapter backed by a database/sql pool.
type SQLAdapter interface {
	Adapter
	DB() *sql.DB
}
