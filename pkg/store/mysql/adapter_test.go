package mysql

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nimburion/ticketwarden/pkg/observability/logger"
	"github.com/nimburion/ticketwarden/pkg/testutil"
)

func TestNewMySQLAdapter_Validation(t *testing.T) {
	_, err := NewMySQLAdapter(Config{}, logger.Nop())
	if err == nil {
		t.Fatal("expected error for empty URL")
	}
}

func TestDriverConfig(t *testing.T) {
	tests := []struct {
		name        string
		cfg         Config
		wantErr     bool
		wantTimeout time.Duration
		wantRead    time.Duration
		wantDB      string
	}{
		{
			name:        "defaults",
			cfg:         Config{URL: "renewal1@tcp(db.example.com:3306)/test"},
			wantTimeout: defaultConnectTimeout,
			wantDB:      "test",
		},
		{
			name:        "adapter timeouts",
			cfg:         Config{URL: "renewal1@tcp(db:3306)/test", ConnectTimeout: 2 * time.Second, QueryTimeout: 7 * time.Second},
			wantTimeout: 2 * time.Second,
			wantRead:    7 * time.Second,
			wantDB:      "test",
		},
		{
			name:        "dsn timeouts win",
			cfg:         Config{URL: "renewal1@tcp(db:3306)/test?timeout=3s&readTimeout=4s", ConnectTimeout: 2 * time.Second, QueryTimeout: 7 * time.Second},
			wantTimeout: 3 * time.Second,
			wantRead:    4 * time.Second,
			wantDB:      "test",
		},
		{
			name:    "malformed dsn",
			cfg:     Config{URL: "renewal1@tcp(db:3306"},
			wantErr: true,
		},
		{
			name:    "empty url",
			cfg:     Config{},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := driverConfig(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("driverConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if got.Timeout != tt.wantTimeout {
				t.Errorf("Timeout = %v, want %v", got.Timeout, tt.wantTimeout)
			}
			if got.ReadTimeout != tt.wantRead {
				t.Errorf("ReadTimeout = %v, want %v", got.ReadTimeout, tt.wantRead)
			}
			if got.DBName != tt.wantDB {
				t.Errorf("DBName = %q, want %q", got.DBName, tt.wantDB)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	defer db.Close()

	log := testutil.NewMockLogger()
	a := newAdapter(db, Config{QueryTimeout: time.Second, MaxOpenConns: 1, MaxIdleConns: 1}, log)

	mock.ExpectPing()
	if err := a.HealthCheck(context.Background()); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	mock.ExpectPing().WillReturnError(errors.New("server has gone away"))
	if err := a.HealthCheck(context.Background()); err == nil {
		t.Fatal("expected health check failure")
	}
	if got := log.CountMessage("error", "MySQL health check failed"); got != 1 {
		t.Errorf("expected 1 health check error log, got %d", got)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("sqlmock expectations: %v", err)
	}
}

func TestClosePreventsSubsequentOperations(t *testing.T) {
	db, expectations, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	expectations.ExpectClose()

	a := newAdapter(db, Config{}, logger.Nop())
	if err := a.Close(); err != nil {
		t.Fatalf("close error: %v", err)
	}

	if _, err := a.DB().ExecContext(context.Background(), "SELECT 1"); err == nil {
		t.Fatal("expected error after close")
	}
	if err := expectations.ExpectationsWereMet(); err != nil {
		t.Fatalf("sqlmock expectations: %v", err)
	}
}
