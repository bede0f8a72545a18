package config

import "time"

// Database type constants
const (
	// DatabaseTypePostgres represents PostgreSQL database
	DatabaseTypePostgres = "postgres"
	// DatabaseTypeMySQL represents MySQL database
	DatabaseTypeMySQL = "mysql"
)

// Config is the root configuration structure for ticketwarden
type Config struct {
	Service       ServiceConfig       `mapstructure:"service" yaml:"service"`
	Kerberos      KerberosConfig      `mapstructure:"kerberos" yaml:"kerberos"`
	Renewal       RenewalConfig       `mapstructure:"renewal" yaml:"renewal"`
	Database      DatabaseConfig      `mapstructure:"database" yaml:"database"`
	Workload      WorkloadConfig      `mapstructure:"workload" yaml:"workload"`
	Management    ManagementConfig    `mapstructure:"management" yaml:"management"`
	Observability ObservabilityConfig `mapstructure:"observability" yaml:"observability"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name" yaml:"name"`
	Environment string `mapstructure:"environment" yaml:"environment"`
}

// KerberosConfig configures the principal, its keytab and the KDC client.
type KerberosConfig struct {
	Principal       string        `mapstructure:"principal" yaml:"principal"`
	Keytab          string        `mapstructure:"keytab" yaml:"keytab"`
	Krb5Conf        string        `mapstructure:"krb5_conf" yaml:"krb5_conf"`
	Realm           string        `mapstructure:"realm" yaml:"realm"`
	TicketLifetime  time.Duration `mapstructure:"ticket_lifetime" yaml:"ticket_lifetime"`
	RenewLifetime   time.Duration `mapstructure:"renew_lifetime" yaml:"renew_lifetime"`
	DisablePAFXFAST bool          `mapstructure:"disable_pa_fx_fast" yaml:"disable_pa_fx_fast"`
	LoginTimeout    time.Duration `mapstructure:"login_timeout" yaml:"login_timeout"`
	RetireDelay     time.Duration `mapstructure:"retire_delay" yaml:"retire_delay"`
	// MaxLoginFailures consecutive failures pause logins for FailureCooldown.
	MaxLoginFailures int           `mapstructure:"max_login_failures" yaml:"max_login_failures"`
	FailureCooldown  time.Duration `mapstructure:"failure_cooldown" yaml:"failure_cooldown"`
	// ServiceName and SPN are passed to the postgres driver as krbsrvname and krbspn.
	ServiceName string `mapstructure:"service_name" yaml:"service_name"`
	SPN         string `mapstructure:"spn" yaml:"spn"`
}

// RenewalConfig configures the background renewal task
type RenewalConfig struct {
	Interval         time.Duration `mapstructure:"interval" yaml:"interval"`
	AttemptTimeout   time.Duration `mapstructure:"attempt_timeout" yaml:"attempt_timeout"`
	RefreshThreshold float64       `mapstructure:"refresh_threshold" yaml:"refresh_threshold"`
	StopTimeout      time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`
}

// DatabaseConfig configures database connections
type DatabaseConfig struct {
	Type            string        `mapstructure:"type" yaml:"type"` // postgres, mysql
	URL             string        `mapstructure:"url" yaml:"url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" yaml:"conn_max_idle_time"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout" yaml:"query_timeout"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	// KerberosServiceName and KerberosSPN are copied from KerberosConfig by the loader.
	KerberosServiceName string `mapstructure:"-" yaml:"-"`
	KerberosSPN         string `mapstructure:"-" yaml:"-"`
}

// WorkloadConfig configures the bulk load and the periodic query
type WorkloadConfig struct {
	Table         string        `mapstructure:"table" yaml:"table"`
	Rows          int           `mapstructure:"rows" yaml:"rows"`
	BatchSize     int           `mapstructure:"batch_size" yaml:"batch_size"`
	QueryPeriod   time.Duration `mapstructure:"query_period" yaml:"query_period"`
	ExpectedKey   string        `mapstructure:"expected_key" yaml:"expected_key"`
	ExpectedValue int64         `mapstructure:"expected_value" yaml:"expected_value"`
	SkipLoad      bool          `mapstructure:"skip_load" yaml:"skip_load"`
}

// ManagementConfig configures the management server
type ManagementConfig struct {
	Enabled      bool          `mapstructure:"enabled" yaml:"enabled"`
	Port         int           `mapstructure:"port" yaml:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
}

// ObservabilityConfig configures logging and tracing
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level" yaml:"log_level"`
	LogFormat         string  `mapstructure:"log_format" yaml:"log_format"` // json, text
	TracingEnabled    bool    `mapstructure:"tracing_enabled" yaml:"tracing_enabled"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate" yaml:"tracing_sample_rate"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint" yaml:"tracing_endpoint"`
	TracingInsecure   bool    `mapstructure:"tracing_insecure" yaml:"tracing_insecure"`
}

// DefaultConfig returns a configuration with the documented defaults
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "ticketwarden",
			Environment: "production",
		},
		Kerberos: KerberosConfig{
			Principal:        "renewal1",
			Keytab:           "/usr/local/lib/hadoop/etc/secure/keytabs/renewal1.headless.keytab",
			Krb5Conf:         "/etc/krb5.conf",
			LoginTimeout:     30 * time.Second,
			RetireDelay:      1 * time.Minute,
			MaxLoginFailures: 5,
			FailureCooldown:  1 * time.Minute,
			ServiceName:      "postgres",
		},
		Renewal: RenewalConfig{
			Interval:         30 * time.Second,
			RefreshThreshold: 0.8,
			StopTimeout:      1 * time.Second,
		},
		Database: DatabaseConfig{
			Type:            DatabaseTypePostgres,
			MaxOpenConns:    4,
			MaxIdleConns:    2,
			ConnMaxLifetime: 30 * time.Minute,
			ConnMaxIdleTime: 5 * time.Minute,
			QueryTimeout:    30 * time.Second,
			ConnectTimeout:  10 * time.Second,
		},
		Workload: WorkloadConfig{
			Table:       "KERBEROS_TEST",
			Rows:        100000,
			BatchSize:   5000,
			QueryPeriod: 6 * time.Minute,
			ExpectedKey: "0",
		},
		Management: ManagementConfig{
			Enabled:      false,
			Port:         9090,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			TracingEnabled:    false,
			TracingSampleRate: 0.1,
			TracingEndpoint:   "localhost:4317",
		},
	}
}
