// Package cli wires configuration, logging and the supervisor into the
// ticketwarden command line.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	"github.com/nimburion/ticketwarden/pkg/config"
	"github.com/nimburion/ticketwarden/pkg/observability/logger"
	"github.com/nimburion/ticketwarden/pkg/version"
)

// Options customizes the root command. Zero values select the production
// dependencies.
type Options struct {
	Name       string
	ConfigPath string
	EnvPrefix  string
	Deps       Dependencies
}

// NewRootCommand builds the CLI: run (default), credential status,
// config show and version.
func NewRootCommand(opts Options) *cobra.Command {
	if opts.Name == "" {
		opts.Name = "ticketwarden"
	}
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = config.DefaultEnvPrefix
	}
	deps := opts.Deps.withDefaults()

	rootCmd := &cobra.Command{
		Use:           opts.Name,
		Short:         "Keep a Kerberos ticket renewed while running a database workload",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var cfgPath string
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config-file", "c", opts.ConfigPath, "config file path")

	loadConfig := func(flags *pflag.FlagSet) (*config.Config, logger.Logger, error) {
		return LoadConfigAndLogger(cfgPath, opts.EnvPrefix, flags)
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Log in, keep the ticket renewed and run the workload until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return Run(cmd.Context(), cfg, log, deps)
		},
	}
	runCmd.Flags().String("principal", "", "principal to log in as (overrides kerberos.principal)")
	runCmd.Flags().String("keytab", "", "keytab path (overrides kerberos.keytab)")
	runCmd.Flags().Bool("skip-load", false, "skip the bulk load and only poll")
	rootCmd.AddCommand(runCmd)
	rootCmd.RunE = runCmd.RunE
	rootCmd.Flags().AddFlagSet(runCmd.Flags())

	credentialCmd := &cobra.Command{
		Use:   "credential",
		Short: "Credential commands",
	}
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Log in once from the keytab and print the resulting ticket window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, err := loadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			status, err := CredentialStatus(cmd.Context(), cfg, log, deps)
			if err != nil {
				return err
			}
			return writeYAML(cmd, status)
		},
	}
	statusCmd.Flags().String("principal", "", "principal to log in as (overrides kerberos.principal)")
	statusCmd.Flags().String("keytab", "", "keytab path (overrides kerberos.keytab)")
	credentialCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(credentialCmd)

	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewViperLoader(cfgPath, opts.EnvPrefix).Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return writeYAML(cmd, redact(cfg))
		},
	})
	rootCmd.AddCommand(configCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeYAML(cmd, version.Current(opts.Name))
		},
	})

	return rootCmd
}

// LoadConfigAndLogger loads configuration, applies command flag overrides and
// builds the zap logger.
func LoadConfigAndLogger(cfgPath, envPrefix string, flags *pflag.FlagSet) (*config.Config, logger.Logger, error) {
	cfg, err := config.NewViperLoader(cfgPath, envPrefix).Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	if err := applyFlags(cfg, flags); err != nil {
		return nil, nil, err
	}

	log, err := logger.NewZapLogger(logger.Config{
		Level:  logger.LogLevel(cfg.Observability.LogLevel),
		Format: logger.LogFormat(cfg.Observability.LogFormat),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("create logger: %w", err)
	}
	return cfg, log.With("service", cfg.Service.Name), nil
}

func applyFlags(cfg *config.Config, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}
	if f := flags.Lookup("principal"); f != nil && f.Changed {
		cfg.Kerberos.Principal = f.Value.String()
	}
	if f := flags.Lookup("keytab"); f != nil && f.Changed {
		cfg.Kerberos.Keytab = f.Value.String()
	}
	if f := flags.Lookup("skip-load"); f != nil && f.Changed {
		skip, err := flags.GetBool("skip-load")
		if err != nil {
			return fmt.Errorf("invalid --skip-load: %w", err)
		}
		cfg.Workload.SkipLoad = skip
	}
	return nil
}

// redact hides the database URL, which may carry a password.
func redact(cfg *config.Config) *config.Config {
	out := *cfg
	if out.Database.URL != "" {
		out.Database.URL = "<redacted>"
	}
	return &out
}

func writeYAML(cmd *cobra.Command, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
