// Package cli implements the cobra-based CLI commands for dsenv.
//
// The root command provisions the environment. The plan, init and
// extensions subcommands are defined in their own files. This file defines
// the root command, the global flags and the error-to-exit-code mapping.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/dsenv/internal/config"
	"github.com/shinji-kodama/dsenv/internal/model"
	"github.com/shinji-kodama/dsenv/internal/provision"
	"github.com/shinji-kodama/dsenv/internal/runner"
)

// Global flag variables shared across all subcommands.
// These are bound to cobra persistent flags on the root command.
var (
	// jsonOutput switches command output to JSON for machine consumption.
	jsonOutput bool

	// verbose lowers the log level to Debug.
	verbose bool

	// logger is rebuilt from the flags before every command runs.
	logger = slog.New(slog.DiscardHandler)
)

// Version, Commit and Date are set at build time via ldflags.
var (
	// Version is the semantic version of the binary (e.g., "1.0.0").
	Version = "dev"

	// Commit is the Git commit hash the binary was built from.
	Commit = "none"

	// Date is the build timestamp.
	Date = "unknown"
)

// NewRootCommand creates and configures the root cobra command.
//
// Unlike a pure dispatcher, the root command does work: running dsenv with
// no subcommand provisions the environment described by the configuration.
func NewRootCommand() *cobra.Command {
	cfgFlags := &configFlags{}
	runFlags := &provisionFlags{}

	rootCmd := &cobra.Command{
		Use:   "dsenv",
		Short: "Provision a conda-based data-science environment",
		Long: `dsenv creates a named conda environment, installs the project's Python
requirements into it and, optionally, the notebook tools and extensions.

Every step runs in order against the located environment. By default the
first failure stops the run; the exit status and the final summary say
which step failed.

Examples:
  dsenv
  dsenv --config ./dsenv.yaml --no-notebook
  dsenv --policy continue --report junit:dsenv.xml
  dsenv --target docker --container jupyter`,

		Args: cobra.NoArgs,

		// SilenceUsage prevents cobra from printing usage on every error.
		// We handle error output ourselves for cleaner UX.
		SilenceUsage: true,

		// SilenceErrors prevents cobra from printing errors automatically.
		// We format errors ourselves (text or JSON based on --json flag).
		SilenceErrors: true,

		Version: fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, Date),

		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger = newLogger(cmd.ErrOrStderr(), verbose)
		},

		RunE: func(cmd *cobra.Command, args []string) error {
			return runProvision(cmd, cfgFlags, runFlags)
		},
	}

	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	cfgFlags.register(rootCmd.PersistentFlags())
	runFlags.register(rootCmd.Flags())

	rootCmd.AddCommand(NewPlanCommand(cfgFlags))
	rootCmd.AddCommand(NewInitCommand())
	rootCmd.AddCommand(NewExtensionsCommand(cfgFlags))

	return rootCmd
}

// Execute runs the root command and returns the process exit code.
// This is the main entry point called from main.go.
func Execute(ctx context.Context, rootCmd *cobra.Command) int {
	err := rootCmd.ExecuteContext(ctx)
	if err == nil {
		return int(model.ExitSuccess)
	}

	code, message, underlying := describeError(err)
	printError(rootCmd.ErrOrStderr(), message, underlying)
	return int(code)
}

// describeError maps err to an exit code and the message to print.
// CLIError types carry their own exit codes; the remaining domain errors
// are recognised by type or sentinel, and everything else is exit code 1.
func describeError(err error) (model.ExitCode, string, error) {
	var cliErr *model.CLIError
	if errors.As(err, &cliErr) {
		return cliErr.Code, cliErr.Message, cliErr.Err
	}

	switch {
	case config.IsValidationError(err):
		return model.ExitConfigInvalid, err.Error(), nil
	case errors.Is(err, runner.ErrNotFound):
		return model.ExitToolNotFound, err.Error(), nil
	case errors.Is(err, provision.ErrStepFailed):
		return model.ExitStepFailed, err.Error(), nil
	}
	return model.ExitGeneralError, err.Error(), nil
}

// printError outputs an error message in the appropriate format
// (JSON or text) based on the --json global flag.
func printError(w io.Writer, message string, underlying error) {
	if jsonOutput {
		errObj := map[string]interface{}{
			"error": map[string]interface{}{
				"message": message,
			},
		}
		if underlying != nil {
			if errMap, ok := errObj["error"].(map[string]interface{}); ok {
				errMap["detail"] = underlying.Error()
			}
		}
		// Errors go to stderr even in JSON mode; stdout is reserved for the
		// command's own output.
		data, _ := json.MarshalIndent(errObj, "", "  ")
		fmt.Fprintln(w, string(data))
		return
	}

	if underlying != nil {
		fmt.Fprintf(w, "Error: %s: %v\n", message, underlying)
	} else {
		fmt.Fprintf(w, "Error: %s\n", message)
	}
}

// newLogger returns a text logger on w. Verbose mode logs at Debug level,
// otherwise only warnings and errors are shown.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// VerboseLog logs a formatted debug message. It is only printed when
// --verbose is set.
func VerboseLog(format string, args ...interface{}) {
	logger.Debug(fmt.Sprintf(format, args...))
}

// writeJSON writes v as indented JSON followed by a newline.
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "failed to encode JSON output", err)
	}
	return nil
}

// stdoutOrStderr returns where human-oriented progress output goes: stdout
// normally, stderr in JSON mode so stdout stays parseable.
func stdoutOrStderr(cmd *cobra.Command) io.Writer {
	if jsonOutput {
		return cmd.ErrOrStderr()
	}
	return cmd.OutOrStdout()
}
