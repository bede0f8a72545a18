package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultEnvPrefix is the environment variable prefix used by the CLI.
const DefaultEnvPrefix = "TICKETWARDEN"

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "TICKETWARDEN")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// Load loads configuration with precedence: ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()

	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	l.bindEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	cfg.Database.KerberosServiceName = cfg.Kerberos.ServiceName
	cfg.Database.KerberosSPN = cfg.Kerberos.SPN

	return &cfg, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// Kerberos
	v.BindEnv("kerberos.principal", l.prefixedEnv("KRB_PRINCIPAL"))
	v.BindEnv("kerberos.keytab", l.prefixedEnv("KRB_KEYTAB"))
	v.BindEnv("kerberos.krb5_conf", l.prefixedEnv("KRB_KRB5_CONF"), "KRB5_CONFIG")
	v.BindEnv("kerberos.realm", l.prefixedEnv("KRB_REALM"))
	v.BindEnv("kerberos.ticket_lifetime", l.prefixedEnv("KRB_TICKET_LIFETIME"))
	v.BindEnv("kerberos.renew_lifetime", l.prefixedEnv("KRB_RENEW_LIFETIME"))
	v.BindEnv("kerberos.disable_pa_fx_fast", l.prefixedEnv("KRB_DISABLE_PA_FX_FAST"))
	v.BindEnv("kerberos.login_timeout", l.prefixedEnv("KRB_LOGIN_TIMEOUT"))
	v.BindEnv("kerberos.retire_delay", l.prefixedEnv("KRB_RETIRE_DELAY"))
	v.BindEnv("kerberos.max_login_failures", l.prefixedEnv("KRB_MAX_LOGIN_FAILURES"))
	v.BindEnv("kerberos.failure_cooldown", l.prefixedEnv("KRB_FAILURE_COOLDOWN"))
	v.BindEnv("kerberos.service_name", l.prefixedEnv("KRB_SERVICE_NAME"))
	v.BindEnv("kerberos.spn", l.prefixedEnv("KRB_SPN"))

	// Renewal
	v.BindEnv("renewal.interval", l.prefixedEnv("RENEWAL_INTERVAL"))
	v.BindEnv("renewal.attempt_timeout", l.prefixedEnv("RENEWAL_ATTEMPT_TIMEOUT"))
	v.BindEnv("renewal.refresh_threshold", l.prefixedEnv("RENEWAL_REFRESH_THRESHOLD"))
	v.BindEnv("renewal.stop_timeout", l.prefixedEnv("RENEWAL_STOP_TIMEOUT"))

	// Database
	v.BindEnv("database.type", l.prefixedEnv("DB_TYPE"))
	v.BindEnv("database.url", l.prefixedEnv("DB_URL"))
	v.BindEnv("database.max_open_conns", l.prefixedEnv("DB_MAX_OPEN_CONNS"))
	v.BindEnv("database.max_idle_conns", l.prefixedEnv("DB_MAX_IDLE_CONNS"))
	v.BindEnv("database.conn_max_lifetime", l.prefixedEnv("DB_CONN_MAX_LIFETIME"))
	v.BindEnv("database.conn_max_idle_time", l.prefixedEnv("DB_CONN_MAX_IDLE_TIME"))
	v.BindEnv("database.query_timeout", l.prefixedEnv("DB_QUERY_TIMEOUT"))
	v.BindEnv("database.connect_timeout", l.prefixedEnv("DB_CONNECT_TIMEOUT"))

	// Workload
	v.BindEnv("workload.table", l.prefixedEnv("WORKLOAD_TABLE"))
	v.BindEnv("workload.rows", l.prefixedEnv("WORKLOAD_ROWS"))
	v.BindEnv("workload.batch_size", l.prefixedEnv("WORKLOAD_BATCH_SIZE"))
	v.BindEnv("workload.query_period", l.prefixedEnv("WORKLOAD_QUERY_PERIOD"))
	v.BindEnv("workload.expected_key", l.prefixedEnv("WORKLOAD_EXPECTED_KEY"))
	v.BindEnv("workload.expected_value", l.prefixedEnv("WORKLOAD_EXPECTED_VALUE"))
	v.BindEnv("workload.skip_load", l.prefixedEnv("WORKLOAD_SKIP_LOAD"))

	// Management
	v.BindEnv("management.enabled", l.prefixedEnv("MGMT_ENABLED"))
	v.BindEnv("management.port", l.prefixedEnv("MGMT_PORT"))
	v.BindEnv("management.read_timeout", l.prefixedEnv("MGMT_READ_TIMEOUT"))
	v.BindEnv("management.write_timeout", l.prefixedEnv("MGMT_WRITE_TIMEOUT"))

	// Observability
	v.BindEnv("observability.log_level", l.prefixedEnv("OBSERVABILITY_LOG_LEVEL"), l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("observability.log_format", l.prefixedEnv("OBSERVABILITY_LOG_FORMAT"), l.prefixedEnv("LOG_FORMAT"))
	v.BindEnv("observability.tracing_enabled", l.prefixedEnv("OBSERVABILITY_TRACING_ENABLED"))
	v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("OBSERVABILITY_TRACING_SAMPLE_RATE"))
	v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("OBSERVABILITY_TRACING_ENDPOINT"))
	v.BindEnv("observability.tracing_insecure", l.prefixedEnv("OBSERVABILITY_TRACING_INSECURE"))
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("kerberos.principal", cfg.Kerberos.Principal)
	v.SetDefault("kerberos.keytab", cfg.Kerberos.Keytab)
	v.SetDefault("kerberos.krb5_conf", cfg.Kerberos.Krb5Conf)
	v.SetDefault("kerberos.realm", cfg.Kerberos.Realm)
	v.SetDefault("kerberos.ticket_lifetime", cfg.Kerberos.TicketLifetime)
	v.SetDefault("kerberos.renew_lifetime", cfg.Kerberos.RenewLifetime)
	v.SetDefault("kerberos.disable_pa_fx_fast", cfg.Kerberos.DisablePAFXFAST)
	v.SetDefault("kerberos.login_timeout", cfg.Kerberos.LoginTimeout)
	v.SetDefault("kerberos.retire_delay", cfg.Kerberos.RetireDelay)
	v.SetDefault("kerberos.max_login_failures", cfg.Kerberos.MaxLoginFailures)
	v.SetDefault("kerberos.failure_cooldown", cfg.Kerberos.FailureCooldown)
	v.SetDefault("kerberos.service_name", cfg.Kerberos.ServiceName)
	v.SetDefault("kerberos.spn", cfg.Kerberos.SPN)

	v.SetDefault("renewal.interval", cfg.Renewal.Interval)
	v.SetDefault("renewal.attempt_timeout", cfg.Renewal.AttemptTimeout)
	v.SetDefault("renewal.refresh_threshold", cfg.Renewal.RefreshThreshold)
	v.SetDefault("renewal.stop_timeout", cfg.Renewal.StopTimeout)

	v.SetDefault("database.type", cfg.Database.Type)
	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.max_open_conns", cfg.Database.MaxOpenConns)
	v.SetDefault("database.max_idle_conns", cfg.Database.MaxIdleConns)
	v.SetDefault("database.conn_max_lifetime", cfg.Database.ConnMaxLifetime)
	v.SetDefault("database.conn_max_idle_time", cfg.Database.ConnMaxIdleTime)
	v.SetDefault("database.query_timeout", cfg.Database.QueryTimeout)
	v.SetDefault("database.connect_timeout", cfg.Database.ConnectTimeout)

	v.SetDefault("workload.table", cfg.Workload.Table)
	v.SetDefault("workload.rows", cfg.Workload.Rows)
	v.SetDefault("workload.batch_size", cfg.Workload.BatchSize)
	v.SetDefault("workload.query_period", cfg.Workload.QueryPeriod)
	v.SetDefault("workload.expected_key", cfg.Workload.ExpectedKey)
	v.SetDefault("workload.expected_value", cfg.Workload.ExpectedValue)
	v.SetDefault("workload.skip_load", cfg.Workload.SkipLoad)

	v.SetDefault("management.enabled", cfg.Management.Enabled)
	v.SetDefault("management.port", cfg.Management.Port)
	v.SetDefault("management.read_timeout", cfg.Management.ReadTimeout)
	v.SetDefault("management.write_timeout", cfg.Management.WriteTimeout)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.tracing_insecure", cfg.Observability.TracingInsecure)
}

// Validate validates the configuration and returns detailed errors
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	if strings.TrimSpace(cfg.Service.Name) == "" {
		errs = append(errs, errors.New("service.name is required"))
	}

	// Kerberos
	if strings.TrimSpace(cfg.Kerberos.Principal) == "" {
		errs = append(errs, errors.New("kerberos.principal is required"))
	}
	if strings.TrimSpace(cfg.Kerberos.Keytab) == "" {
		errs = append(errs, errors.New("kerberos.keytab is required"))
	}
	if cfg.Kerberos.TicketLifetime < 0 || cfg.Kerberos.RenewLifetime < 0 {
		errs = append(errs, errors.New("kerberos lifetimes cannot be negative"))
	}
	if cfg.Kerberos.TicketLifetime > 0 && cfg.Kerberos.RenewLifetime > 0 && cfg.Kerberos.RenewLifetime < cfg.Kerberos.TicketLifetime {
		errs = append(errs, fmt.Errorf("kerberos.renew_lifetime (%s) must not be shorter than kerberos.ticket_lifetime (%s)", cfg.Kerberos.RenewLifetime, cfg.Kerberos.TicketLifetime))
	}
	if cfg.Kerberos.MaxLoginFailures < 0 {
		errs = append(errs, errors.New("kerberos.max_login_failures cannot be negative"))
	}

	// Renewal
	if cfg.Renewal.Interval <= 0 {
		errs = append(errs, fmt.Errorf("renewal.interval must be positive, got %s", cfg.Renewal.Interval))
	}
	if cfg.Renewal.AttemptTimeout < 0 {
		errs = append(errs, errors.New("renewal.attempt_timeout cannot be negative"))
	}
	if cfg.Renewal.RefreshThreshold <= 0 || cfg.Renewal.RefreshThreshold > 1 {
		errs = append(errs, fmt.Errorf("renewal.refresh_threshold must be in (0, 1], got %v", cfg.Renewal.RefreshThreshold))
	}
	if cfg.Renewal.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("renewal.stop_timeout must be positive, got %s", cfg.Renewal.StopTimeout))
	}

	// Database
	validDBTypes := []string{DatabaseTypePostgres, DatabaseTypeMySQL}
	if !contains(validDBTypes, strings.ToLower(cfg.Database.Type)) {
		errs = append(errs, fmt.Errorf("invalid database.type: %s (must be one of: %v)", cfg.Database.Type, validDBTypes))
	}
	if cfg.Database.MaxOpenConns < 0 || cfg.Database.MaxIdleConns < 0 {
		errs = append(errs, errors.New("database connection pool sizes cannot be negative"))
	}
	if cfg.Database.ConnMaxIdleTime < 0 {
		errs = append(errs, errors.New("database.conn_max_idle_time cannot be negative"))
	}

	// Workload
	if strings.TrimSpace(cfg.Workload.Table) == "" {
		errs = append(errs, errors.New("workload.table is required"))
	}
	if cfg.Workload.Rows < 0 {
		errs = append(errs, errors.New("workload.rows cannot be negative"))
	}
	if cfg.Workload.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("workload.batch_size must be positive, got %d", cfg.Workload.BatchSize))
	}
	if cfg.Workload.QueryPeriod <= 0 {
		errs = append(errs, fmt.Errorf("workload.query_period must be positive, got %s", cfg.Workload.QueryPeriod))
	}

	// Management
	if cfg.Management.Enabled && (cfg.Management.Port < 1 || cfg.Management.Port > 65535) {
		errs = append(errs, fmt.Errorf("management.port must be between 1 and 65535, got %d", cfg.Management.Port))
	}

	// Observability
	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, strings.ToLower(cfg.Observability.LogLevel)) {
		errs = append(errs, fmt.Errorf("invalid log_level: %s (must be one of: %v)", cfg.Observability.LogLevel, validLogLevels))
	}
	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, strings.ToLower(cfg.Observability.LogFormat)) {
		errs = append(errs, fmt.Errorf("invalid log_format: %s (must be one of: %v)", cfg.Observability.LogFormat, validLogFormats))
	}
	if cfg.Observability.TracingSampleRate < 0 || cfg.Observability.TracingSampleRate > 1 {
		errs = append(errs, fmt.Errorf("observability.tracing_sample_rate must be between 0 and 1, got %v", cfg.Observability.TracingSampleRate))
	}
	if cfg.Observability.TracingEnabled && strings.TrimSpace(cfg.Observability.TracingEndpoint) == "" {
		errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}
