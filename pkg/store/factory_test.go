package store

import (
	"strings"
	"testing"

	"github.com/nimburion/ticketwarden/pkg/config"
	"github.com/nimburion/ticketwarden/pkg/observability/logger"
)

func TestNewSQLAdapter_UnsupportedType(t *testing.T) {
	_, err := NewSQLAdapter(config.DatabaseConfig{Type: "oracle"}, logger.Nop())
	if err == nil {
		t.Fatal("expected unsupported type error")
	}
	if !strings.Contains(err.Error(), "unsupported database.type") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewSQLAdapter_RequiresURL(t *testing.T) {
	for _, typ := range []string{config.DatabaseTypePostgres, config.DatabaseTypeMySQL, " MySQL "} {
		t.Run(typ, func(t *testing.T) {
			_, err := NewSQLAdapter(config.DatabaseConfig{Type: typ}, logger.Nop())
			if err == nil || !strings.Contains(err.Error(), "database URL is required") {
				t.Fatalf("expected missing URL error, got %v", err)
			}
		})
	}
}
