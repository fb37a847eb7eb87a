package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/dsenv/internal/config"
)

// NewInitCommand creates the "init" cobra command.
func NewInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default configuration file",
		Long: `Write the default configuration to path (default: dsenv.yaml).

The file reproduces the built-in defaults, so running dsenv with it is the
same as running dsenv without one. A .json path writes JSON instead of YAML.
An existing file is left untouched unless --force is given.

Examples:
  dsenv init
  dsenv init config/dsenv.yaml
  dsenv init --force`,

		Args: cobra.MaximumNArgs(1),

		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.FileName + ".yaml"
			if len(args) == 1 {
				path = args[0]
			}
			return runInit(cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func runInit(cmd *cobra.Command, path string, force bool) error {
	if err := config.WriteDefault(path, force); err != nil {
		return err
	}
	VerboseLog("Wrote default configuration to %s", path)

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"path": path})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
