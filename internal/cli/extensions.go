package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/shinji-kodama/dsenv/internal/model"
)

// extensionsOutput is the --json shape of the extensions command.
type extensionsOutput struct {
	Enabled    bool              `json:"enabled"`
	Extensions []model.Extension `json:"extensions"`
}

// NewExtensionsCommand creates the "extensions" cobra command.
func NewExtensionsCommand(cfgFlags *configFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "extensions",
		Short: "List the configured notebook extensions",
		Long: `List the notebook extensions the configuration enables, in order.

Each extension is enabled once after every notebook tool is installed.
Pins are packages installed into the environment instead of enabled.

Examples:
  dsenv extensions
  dsenv extensions --json`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, cfgFlags)
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			out := extensionsOutput{Enabled: cfg.Notebook.Enabled, Extensions: cfg.Notebook.Extensions}
			if out.Extensions == nil {
				out.Extensions = []model.Extension{}
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), out)
			}
			printExtensionsTable(cmd.OutOrStdout(), out)
			return nil
		},
	}
}

// printExtensionsTable prints the extensions as aligned columns.
func printExtensionsTable(w io.Writer, out extensionsOutput) {
	if len(out.Extensions) == 0 {
		fmt.Fprintln(w, "No notebook extensions configured.")
		return
	}

	idWidth := len("ID")
	for _, ext := range out.Extensions {
		if len(ext.ID) > idWidth {
			idWidth = len(ext.ID)
		}
	}

	fmt.Fprintf(w, "%-*s  %-12s  %s\n", idWidth, "ID", "KIND", "TITLE")
	for _, ext := range out.Extensions {
		title := ext.Title
		if title == "" {
			title = "-"
		}
		fmt.Fprintf(w, "%-*s  %-12s  %s\n", idWidth, ext.ID, ext.Kind, title)
	}
	if !out.Enabled {
		fmt.Fprintln(w, "\nThe notebook layer is disabled; these extensions will not be enabled.")
	}
}
