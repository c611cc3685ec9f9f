package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/mvvplatform/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "json" | "text"
	ConfigPath string

	// Config is resolved in PersistentPreRunE: the file named by
	// --config, or config.Default.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the mvv CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "mvv",
		Short: "mvv - asynchronous order scheduler",
		Long: `Drive the mvv order scheduler: run workloads on the worker pool,
check scheduler scenarios, and inspect order journals.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "scheduler config file (YAML)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// loadConfig resolves the configuration and installs the default logger.
// Logs go to stderr so JSON output on stdout stays parseable.
func (o *RootOptions) loadConfig(cmd *cobra.Command) error {
	cfg := config.Default()
	if o.ConfigPath != "" {
		loaded, err := config.Load(o.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to load config", err)
		}
		cfg = loaded
	}
	if o.Verbose {
		cfg.Log.Level = "debug"
	}
	o.Config = cfg

	slog.SetDefault(config.NewLogger(cmd.ErrOrStderr(), cfg.Log))
	return nil
}

// resolvedConfig returns the resolved configuration, falling back to
// defaults for commands executed without the root (tests).
func (o *RootOptions) resolvedConfig() *config.Config {
	if o.Config == nil {
		o.Config = config.Default()
	}
	return o.Config
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
