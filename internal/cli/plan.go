package cli

import (
	"fmt"
	"io"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/dsenv/internal/config"
	"github.com/shinji-kodama/dsenv/internal/model"
	"github.com/shinji-kodama/dsenv/internal/provision"
)

// planOutput is the --json and --yaml shape of the plan command.
type planOutput struct {
	Environment model.Environment   `json:"environment" yaml:"environment"`
	OS          string              `json:"os" yaml:"os"`
	Target      string              `json:"target" yaml:"target"`
	Policy      model.ErrorPolicy   `json:"policy" yaml:"policy"`
	Steps       []model.PlannedStep `json:"steps" yaml:"steps"`
}

// NewPlanCommand creates the "plan" cobra command.
func NewPlanCommand(cfgFlags *configFlags) *cobra.Command {
	var asYAML bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show the provisioning steps without running them",
		Long: `Print the ordered provisioning steps and the command each one runs.

The environment prefix is not known until the environment exists, so
commands that run inside it show it as <name>.

Examples:
  dsenv plan
  dsenv plan --no-notebook
  dsenv plan --json
  dsenv plan --yaml`,

		Args: cobra.NoArgs,

		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, cfgFlags, asYAML)
		},
	}

	cmd.Flags().BoolVar(&asYAML, "yaml", false, "Output in YAML format")

	return cmd
}

func runPlan(cmd *cobra.Command, cfgFlags *configFlags, asYAML bool) error {
	cfg, err := loadConfig(cmd, cfgFlags)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Docker targets are Linux containers whatever the host is.
	goos := runtime.GOOS
	if cfg.Target == config.TargetDocker {
		goos = "linux"
	}

	// A preview never runs anything, so the wrappers get no runner.
	plan, err := provision.BuildPlan(cfg, provision.NewDeps(nil, cfg.Conda), goos)
	if err != nil {
		return model.WrapCLIError(model.ExitConfigInvalid, "invalid provisioning plan", err)
	}

	out := planOutput{
		Environment: plan.Environment,
		OS:          plan.OS,
		Target:      cfg.Target,
		Policy:      cfg.Policy,
		Steps:       plan.Preview(),
	}

	w := cmd.OutOrStdout()
	switch {
	case jsonOutput:
		return writeJSON(w, out)
	case asYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(out); err != nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to encode YAML output", err)
		}
		return enc.Close()
	}

	printPlanText(w, out)
	return nil
}

// printPlanText prints one numbered line per step followed by its command.
func printPlanText(w io.Writer, out planOutput) {
	fmt.Fprintf(w, "Plan for %s (%d step(s), target %s, policy %s):\n",
		out.Environment, len(out.Steps), out.Target, out.Policy)
	for i, s := range out.Steps {
		line := fmt.Sprintf("%3d. %-40s [%s]", i+1, s.Name, s.Phase)
		if len(s.Requires) > 0 {
			line += " requires " + strings.Join(s.Requires, ", ")
		}
		fmt.Fprintln(w, line)
		fmt.Fprintf(w, "     $ %s\n", s.Command)
	}
}
