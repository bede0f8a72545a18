package workload

import (
	"context"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nimburion/ticketwarden/pkg/store/postgres"
	"github.com/nimburion/ticketwarden/pkg/testutil"
)

// TestRunner_PostgresIntegration runs the load and poll statements against a
// real server with password authentication.
func TestRunner_PostgresIntegration(t *testing.T) {
	testutil.RequireIntegration(t)

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx,
		"postgres:17-alpine",
		tcpostgres.WithDatabase("ticketwarden"),
		tcpostgres.WithUsername("renewal1"),
		tcpostgres.WithPassword("renewal1"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	defer func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("terminate container: %v", err)
		}
	}()

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	log := testutil.NewMockLogger()
	adapter, err := postgres.NewPostgreSQLAdapter(postgres.Config{
		URL:             connStr,
		MaxOpenConns:    2,
		MaxIdleConns:    1,
		ConnMaxLifetime: 5 * time.Minute,
		QueryTimeout:    10 * time.Second,
		ConnectTimeout:  10 * time.Second,
	}, log)
	if err != nil {
		t.Fatalf("NewPostgreSQLAdapter() error = %v", err)
	}
	defer adapter.Close()

	cfg := DefaultConfig()
	cfg.Rows = 10
	cfg.BatchSize = 3
	cfg.QueryPeriod = time.Hour
	runner, err := NewRunner(adapter.DB(), Postgres, cfg, log)
	if err != nil {
		t.Fatalf("NewRunner() error = %v", err)
	}

	conn, err := adapter.DB().Conn(ctx)
	if err != nil {
		t.Fatalf("acquire connection: %v", err)
	}
	defer conn.Close()

	countRows := func() int {
		t.Helper()
		var n int
		if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM KERBEROS_TEST").Scan(&n); err != nil {
			t.Fatalf("count rows: %v", err)
		}
		return n
	}

	t.Run("BulkLoad", func(t *testing.T) {
		report, err := runner.BulkLoad(ctx, conn)
		if err != nil {
			t.Fatalf("BulkLoad() error = %v", err)
		}
		if report.Rows != 10 || report.Commits != 5 {
			t.Fatalf("unexpected report %+v", report)
		}
		if got := countRows(); got != 10 {
			t.Fatalf("expected 10 rows, got %d", got)
		}
	})

	t.Run("BulkLoadIsIdempotent", func(t *testing.T) {
		if _, err := conn.ExecContext(ctx, "UPDATE KERBEROS_TEST SET col1 = 42 WHERE pk = '5'"); err != nil {
			t.Fatalf("update row: %v", err)
		}
		if _, err := runner.BulkLoad(ctx, conn); err != nil {
			t.Fatalf("second BulkLoad() error = %v", err)
		}
		if got := countRows(); got != 10 {
			t.Fatalf("upsert must not duplicate rows, got %d", got)
		}
		var value int64
		if err := conn.QueryRowContext(ctx, "SELECT col1 FROM KERBEROS_TEST WHERE pk = '5'").Scan(&value); err != nil {
			t.Fatalf("read row: %v", err)
		}
		if value != 5 {
			t.Fatalf("upsert should overwrite col1, got %d", value)
		}
	})

	t.Run("PollOnceMatchesFirstRow", func(t *testing.T) {
		obs, err := runner.PollOnce(ctx, conn)
		if err != nil {
			t.Fatalf("PollOnce() error = %v", err)
		}
		if obs.Rows != 1 || obs.Key != "0" || obs.Value != 0 || len(obs.Warnings) != 0 {
			t.Fatalf("unexpected observation %+v", obs)
		}
	})

	t.Run("PollOnceReportsMismatch", func(t *testing.T) {
		if _, err := conn.ExecContext(ctx, "UPDATE KERBEROS_TEST SET col1 = 7 WHERE pk = '0'"); err != nil {
			t.Fatalf("update row: %v", err)
		}
		obs, err := runner.PollOnce(ctx, conn)
		if err != nil {
			t.Fatalf("PollOnce() error = %v", err)
		}
		if len(obs.Warnings) != 1 || obs.Warnings[0] != WarningUnexpectedValue {
			t.Fatalf("expected one unexpected value warning, got %+v", obs)
		}
	})

	if err := adapter.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}
}
