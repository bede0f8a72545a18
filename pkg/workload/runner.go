// Package workload drives the SQL load whose connections authenticate with
// the process Kerberos credential: a one-off bulk load followed by a
// periodic validation query.
package workload

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nimburion/ticketwarden/pkg/observability/logger"
	"github.com/nimburion/ticketwarden/pkg/observability/tracing"
)

const (
	DefaultTable       = "KERBEROS_TEST"
	DefaultRows        = 100000
	DefaultBatchSize   = 5000
	DefaultQueryPeriod = 6 * time.Minute
	DefaultExpectedKey = "0"
)

// Config controls the workload.
type Config struct {
	Table       string
	Rows        int
	BatchSize   int
	QueryPeriod time.Duration
	// ExpectedKey and ExpectedValue describe the first row the poll query
	// must return.
	ExpectedKey   string
	ExpectedValue int64
	// SkipLoad goes straight to polling, e.g. against a table loaded earlier.
	SkipLoad bool
}

// DefaultConfig returns the stock workload.
func DefaultConfig() Config {
	return Config{
		Table:       DefaultTable,
		Rows:        DefaultRows,
		BatchSize:   DefaultBatchSize,
		QueryPeriod: DefaultQueryPeriod,
		ExpectedKey: DefaultExpectedKey,
	}
}

func (c *Config) normalize() {
	c.Table = strings.TrimSpace(c.Table)
	if c.Table == "" {
		c.Table = DefaultTable
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.QueryPeriod <= 0 {
		c.QueryPeriod = DefaultQueryPeriod
	}
}

// Validate checks the configuration after defaults are applied.
func (c Config) Validate() error {
	if err := validateTableName(c.Table); err != nil {
		return err
	}
	if c.Rows < 0 {
		return workloadError(ErrValidation, "rows must be >= 0")
	}
	return nil
}

// LoadReport summarizes a bulk load.
type LoadReport struct {
	Rows    int
	Commits int
}

// WarningKind classifies a data validation warning.
type WarningKind string

const (
	WarningNoRows          WarningKind = "no_rows"
	WarningUnexpectedKey   WarningKind = "unexpected_key"
	WarningUnexpectedValue WarningKind = "unexpected_value"
	WarningMultipleRows    WarningKind = "multiple_rows"
)

// Observation is the outcome of one poll query.
type Observation struct {
	Rows     int
	Key      string
	Value    int64
	Warnings []WarningKind
}

// Runner executes the workload on a single connection.
type Runner struct {
	db      *sql.DB
	dialect Dialect
	cfg     Config
	log     logger.Logger
}

// NewRunner validates cfg and returns a Runner bound to db.
func NewRunner(db *sql.DB, dialect Dialect, cfg Config, log logger.Logger) (*Runner, error) {
	if db == nil {
		return nil, workloadError(ErrValidation, "database handle is required")
	}
	if _, err := ParseDialect(string(dialect)); err != nil {
		return nil, err
	}
	if log == nil {
		log = logger.Nop()
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Runner{
		db:      db,
		dialect: dialect,
		cfg:     cfg,
		log:     log.With("table", cfg.Table),
	}, nil
}

// Run holds one connection for the whole workload, loads the table and then
// polls until ctx is cancelled. Cancellation is a clean exit.
func (r *Runner) Run(ctx context.Context) error {
	log := r.log.WithContext(ctx)

	conn, err := r.db.Conn(ctx)
	if err != nil {
		return setupError("acquire connection", err)
	}
	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Warn("failed to release workload connection", "error", cerr)
		}
	}()

	if !r.cfg.SkipLoad {
		report, err := r.BulkLoad(ctx, conn)
		if err != nil {
			return err
		}
		log.Info("bulk load completed", "rows", report.Rows, "commits", report.Commits)
	}
	return r.Poll(ctx, conn)
}

// BulkLoad creates the table and upserts Rows rows, committing every
// BatchSize rows and once more at the end. Any failure rolls back the open
// transaction and returns ErrSetup.
func (r *Runner) BulkLoad(ctx context.Context, conn *sql.Conn) (report LoadReport, err error) {
	ctx, span := tracing.StartDatabaseSpan(ctx, tracing.SpanOperationDBTx,
		tracing.WithDBTable(r.cfg.Table),
		tracing.WithDBSystem(r.dialect.System()),
	)
	defer func() {
		span.SetAttributes(attribute.Int("db.rows", report.Rows))
		tracing.End(span, err)
	}()

	if _, err := conn.ExecContext(ctx, r.dialect.CreateTable(r.cfg.Table)); err != nil {
		return report, setupError("create table "+r.cfg.Table, err)
	}

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return report, setupError("begin transaction", err)
	}
	// tx is replaced after every batch commit; only the open one is rolled back.
	defer func() {
		if err != nil && tx != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.log.Error("failed to rollback bulk load", "error", rbErr)
			}
		}
	}()

	upsert := r.dialect.Upsert(r.cfg.Table)
	for i := 0; i < r.cfg.Rows; i++ {
		if _, err = tx.ExecContext(ctx, upsert, strconv.Itoa(i), int64(i)); err != nil {
			return report, setupError(fmt.Sprintf("upsert row %d", i), err)
		}
		report.Rows++
		workloadRowsLoadedTotal.Inc()

		if i%r.cfg.BatchSize == 0 {
			if err = tx.Commit(); err != nil {
				return report, setupError(fmt.Sprintf("commit at row %d", i), err)
			}
			report.Commits++
			workloadCommitsTotal.Inc()
			r.log.Debug("committed batch", "row", i)

			if tx, err = conn.BeginTx(ctx, nil); err != nil {
				return report, setupError("begin transaction", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return report, setupError("final commit", err)
	}
	report.Commits++
	workloadCommitsTotal.Inc()
	return report, nil
}

// PollOnce runs the validation query once and logs one warning per finding.
// Findings are not errors; only a failed query is.
func (r *Runner) PollOnce(ctx context.Context, conn *sql.Conn) (obs Observation, err error) {
	query := r.dialect.Select(r.cfg.Table)
	ctx, span := tracing.StartDatabaseSpan(ctx, tracing.SpanOperationDBQuery,
		tracing.WithDBTable(r.cfg.Table),
		tracing.WithDBSystem(r.dialect.System()),
		tracing.WithDBStatement(query),
	)
	defer func() {
		tracing.End(span, err)
		switch {
		case err != nil:
			recordPoll("error")
		case len(obs.Warnings) > 0:
			recordPoll("mismatch")
		default:
			recordPoll("ok")
		}
	}()

	log := r.log.WithContext(ctx)
	log.Debug("starting query")

	rows, err := conn.QueryContext(ctx, query)
	if err != nil {
		return obs, fmt.Errorf("poll query: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		obs.Rows++
		if obs.Rows > 1 {
			r.warn(log, &obs, WarningMultipleRows, "found more than one row of data")
			break
		}

		var key sql.NullString
		var value sql.NullInt64
		if err := rows.Scan(&key, &value); err != nil {
			return obs, fmt.Errorf("scan poll row: %w", err)
		}
		obs.Key, obs.Value = key.String, value.Int64
		if !key.Valid || key.String != r.cfg.ExpectedKey {
			r.warn(log, &obs, WarningUnexpectedKey, "found unexpected string column data", "value", key.String)
		}
		if !value.Valid || value.Int64 != r.cfg.ExpectedValue {
			r.warn(log, &obs, WarningUnexpectedValue, "found unexpected numeric column data", "value", value.Int64)
		}
	}
	if err := rows.Err(); err != nil {
		return obs, fmt.Errorf("read poll rows: %w", err)
	}
	if obs.Rows == 0 {
		r.warn(log, &obs, WarningNoRows, "expected results for query, but found none")
	}

	log.Debug("query successfully completed")
	return obs, nil
}

func (r *Runner) warn(log logger.Logger, obs *Observation, kind WarningKind, msg string, args ...any) {
	obs.Warnings = append(obs.Warnings, kind)
	recordWarning(kind)
	log.Warn(msg, args...)
}

// Poll repeats PollOnce every QueryPeriod. Query failures are logged and the
// loop continues. It returns nil when ctx is cancelled during the sleep and
// ErrWaitAborted when the sleep ends for any other reason, such as a deadline.
// A query in flight is not cancelled; only the sleep observes ctx.
func (r *Runner) Poll(ctx context.Context, conn *sql.Conn) error {
	queryCtx := context.WithoutCancel(ctx)
	for {
		if _, err := r.PollOnce(queryCtx, conn); err != nil {
			r.log.WithContext(ctx).Error("poll query failed", "error", err)
		}
		if err := r.sleep(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
	}
}

func (r *Runner) sleep(ctx context.Context) error {
	timer := time.NewTimer(r.cfg.QueryPeriod)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
	}

	log := r.log.WithContext(ctx)
	if errors.Is(ctx.Err(), context.Canceled) {
		log.Info("workload interrupted while sleeping, stopping queries")
		return context.Canceled
	}
	cause := context.Cause(ctx)
	log.Error("workload sleep aborted, exiting", "error", cause)
	return fmt.Errorf("%w: %w", ErrWaitAborted, cause)
}
