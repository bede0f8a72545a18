package cli

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/nimburion/ticketwarden/pkg/config"
	"github.com/nimburion/ticketwarden/pkg/credential"
	"github.com/nimburion/ticketwarden/pkg/credential/krb5"
	"github.com/nimburion/ticketwarden/pkg/health"
	"github.com/nimburion/ticketwarden/pkg/observability/logger"
	"github.com/nimburion/ticketwarden/pkg/observability/metrics"
	"github.com/nimburion/ticketwarden/pkg/observability/tracing"
	"github.com/nimburion/ticketwarden/pkg/server"
	"github.com/nimburion/ticketwarden/pkg/store"
	"github.com/nimburion/ticketwarden/pkg/supervisor"
	"github.com/nimburion/ticketwarden/pkg/version"
	"github.com/nimburion/ticketwarden/pkg/workload"
)

// Authority is a credential authority with a lifecycle.
type Authority interface {
	credential.Authority
	HealthCheck(ctx context.Context) error
	Close() error
}

// Dependencies are the factories Run uses to reach the outside world.
type Dependencies struct {
	NewAuthority func(cfg config.KerberosConfig, log logger.Logger) (Authority, error)
	OpenStore    func(cfg config.DatabaseConfig, log logger.Logger) (store.SQLAdapter, error)
}

func (d Dependencies) withDefaults() Dependencies {
	if d.NewAuthority == nil {
		d.NewAuthority = newKerberosAuthority
	}
	if d.OpenStore == nil {
		d.OpenStore = store.NewSQLAdapter
	}
	return d
}

// newKerberosAuthority builds the gokrb5 authority and hands its client to
// the postgres driver.
func newKerberosAuthority(cfg config.KerberosConfig, log logger.Logger) (Authority, error) {
	a, err := krb5.NewAuthority(krb5.Config{
		Krb5ConfPath:     cfg.Krb5Conf,
		Realm:            cfg.Realm,
		TicketLifetime:   cfg.TicketLifetime,
		RenewLifetime:    cfg.RenewLifetime,
		DisablePAFXFAST:  cfg.DisablePAFXFAST,
		LoginTimeout:     cfg.LoginTimeout,
		RetireDelay:      cfg.RetireDelay,
		MaxLoginFailures: cfg.MaxLoginFailures,
		FailureCooldown:  cfg.FailureCooldown,
	}, log)
	if err != nil {
		return nil, err
	}
	a.RegisterTransport()
	return a, nil
}

// Run is the run command: it logs in, keeps the ticket renewed and runs the
// workload until ctx is cancelled or the workload fails.
func Run(ctx context.Context, cfg *config.Config, log logger.Logger, deps Dependencies) (err error) {
	deps = deps.withDefaults()
	info := version.Current(cfg.Service.Name)
	log.Info("starting", "version", info.Version, "commit", info.Commit, "principal", cfg.Kerberos.Principal)

	tp, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    cfg.Service.Name,
		ServiceVersion: info.Version,
		Environment:    cfg.Service.Environment,
		Endpoint:       cfg.Observability.TracingEndpoint,
		Insecure:       cfg.Observability.TracingInsecure,
		SampleRate:     cfg.Observability.TracingSampleRate,
		Enabled:        cfg.Observability.TracingEnabled,
	})
	if err != nil {
		return fmt.Errorf("create tracer provider: %w", err)
	}
	defer func() {
		if serr := tp.Shutdown(context.Background()); serr != nil {
			log.Warn("failed to shut down tracer provider", "error", serr)
		}
	}()

	authority, err := deps.NewAuthority(cfg.Kerberos, log)
	if err != nil {
		return fmt.Errorf("create credential authority: %w", err)
	}
	defer func() {
		if cerr := authority.Close(); cerr != nil {
			log.Warn("failed to close credential authority", "error", cerr)
		}
	}()

	healthRegistry := health.NewRegistry()
	healthRegistry.Register(health.NewAdapterChecker("authority", authority, 0))
	healthRegistry.Register(health.NewCredentialChecker("credential"))

	metricsRegistry := metrics.NewRegistry()
	stopManagement := startManagement(ctx, cfg.Management, log, healthRegistry, metricsRegistry, info)
	defer stopManagement()

	sup, err := supervisor.New(supervisor.Options{
		Authority:             authority,
		Principal:             cfg.Kerberos.Principal,
		Source:                cfg.Kerberos.Keytab,
		RenewalInterval:       cfg.Renewal.Interval,
		RenewalAttemptTimeout: cfg.Renewal.AttemptTimeout,
		RefreshThreshold:      cfg.Renewal.RefreshThreshold,
		StopTimeout:           cfg.Renewal.StopTimeout,
	}, log)
	if err != nil {
		return err
	}

	return sup.Run(ctx, supervisor.WorkloadFunc(func(ctx context.Context) error {
		return runWorkload(ctx, cfg, log, deps, healthRegistry, metricsRegistry)
	}))
}

// runWorkload opens the database after login, since the driver authenticates
// with the ticket the supervisor just obtained.
func runWorkload(ctx context.Context, cfg *config.Config, log logger.Logger, deps Dependencies, registry *health.Registry, metricsRegistry *metrics.Registry) error {
	dialect, err := workload.ParseDialect(cfg.Database.Type)
	if err != nil {
		return err
	}

	adapter, err := deps.OpenStore(cfg.Database, log)
	if err != nil {
		return fmt.Errorf("%w: open database: %w", workload.ErrSetup, err)
	}
	defer func() {
		if cerr := adapter.Close(); cerr != nil {
			log.Warn("failed to close database", "error", cerr)
		}
	}()
	registry.Register(health.NewDatabaseChecker("database", adapter))
	defer registry.Unregister("database")

	poolStats := collectors.NewDBStatsCollector(adapter.DB(), cfg.Database.Type)
	if err := metricsRegistry.Register(poolStats); err != nil {
		log.Warn("failed to register database pool metrics", "error", err)
	} else {
		defer metricsRegistry.Unregister(poolStats)
	}

	runner, err := workload.NewRunner(adapter.DB(), dialect, workload.Config{
		Table:         cfg.Workload.Table,
		Rows:          cfg.Workload.Rows,
		BatchSize:     cfg.Workload.BatchSize,
		QueryPeriod:   cfg.Workload.QueryPeriod,
		ExpectedKey:   cfg.Workload.ExpectedKey,
		ExpectedValue: cfg.Workload.ExpectedValue,
		SkipLoad:      cfg.Workload.SkipLoad,
	}, log)
	if err != nil {
		return err
	}
	return runner.Run(ctx)
}

// startManagement serves the management endpoints in the background when
// enabled. The returned function stops the server and waits for it.
func startManagement(ctx context.Context, cfg config.ManagementConfig, log logger.Logger, registry *health.Registry, metricsRegistry *metrics.Registry, info version.Info) func() {
	if !cfg.Enabled {
		return func() {}
	}

	mgmt := server.NewManagementServer(cfg, log, registry, metricsRegistry, info)
	mgmtCtx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := mgmt.Start(mgmtCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("management server stopped", "error", err)
		}
	}()

	return func() {
		cancel()
		wg.Wait()
	}
}

// CredentialStatus logs in once without starting renewal and reports the
// resulting ticket window.
func CredentialStatus(ctx context.Context, cfg *config.Config, log logger.Logger, deps Dependencies) (credential.Status, error) {
	deps = deps.withDefaults()

	authority, err := deps.NewAuthority(cfg.Kerberos, log)
	if err != nil {
		return credential.Status{}, fmt.Errorf("create credential authority: %w", err)
	}
	defer authority.Close()

	h, err := credential.Login(ctx, authority, cfg.Kerberos.Principal, cfg.Kerberos.Keytab, log, credential.Options{
		RefreshThreshold: cfg.Renewal.RefreshThreshold,
	})
	if err != nil {
		return credential.Status{}, err
	}
	return h.Status(), nil
}
