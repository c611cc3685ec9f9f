package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/mvvplatform/internal/config"
	"github.com/roach88/mvvplatform/internal/harness"
)

// Validation error codes.
const (
	ErrCodeConfig   = "E_CONFIG"
	ErrCodeScenario = "E_SCENARIO"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Scenario bool // treat files as scenarios instead of configs
}

// ValidationResult is the outcome for one file.
type ValidationResult struct {
	File  string `json:"file"`
	Kind  string `json:"kind"` // "config" | "scenario"
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <file>...",
		Short: "Validate scheduler configs or scenarios",
		Long: `Validate scheduler config files against the config schema, or
scenario files (with --scenario) for unknown keys, dangling references
and predecessor cycles.

Examples:
  mvv validate ./mvv.yaml
  mvv validate --scenario ./scenarios/*.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.Scenario, "scenario", false, "validate scenario files")

	return cmd
}

func runValidate(opts *ValidateOptions, files []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	results := make([]ValidationResult, 0, len(files))
	invalid := 0
	for _, file := range files {
		r := validateFile(file, opts.Scenario)
		formatter.VerboseLog("validated %s (%s): valid=%t", r.File, r.Kind, r.Valid)
		if !r.Valid {
			invalid++
		}
		results = append(results, r)
	}

	if invalid == 0 {
		if opts.Format == "json" {
			return formatter.Success(results)
		}
		return formatter.Success(fmt.Sprintf("✓ %d file(s) valid", len(results)))
	}

	code := ErrCodeConfig
	if opts.Scenario {
		code = ErrCodeScenario
	}
	if opts.Format == "json" {
		if err := formatter.Error(code, fmt.Sprintf("%d of %d file(s) invalid", invalid, len(results)), results); err != nil {
			return err
		}
	} else {
		for _, r := range results {
			if !r.Valid {
				fmt.Fprintf(formatter.Writer, "✗ %s\n  %s\n", r.File, r.Error)
			}
		}
	}
	return NewExitError(ExitFailure, fmt.Sprintf("%d file(s) invalid", invalid))
}

func validateFile(path string, scenario bool) ValidationResult {
	r := ValidationResult{File: path, Kind: "config", Valid: true}
	var err error
	if scenario {
		r.Kind = "scenario"
		_, err = harness.LoadScenario(path)
	} else {
		_, err = config.Load(path)
	}
	if err != nil {
		r.Valid = false
		r.Error = err.Error()
	}
	return r
}
