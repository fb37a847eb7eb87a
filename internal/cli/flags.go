package cli

import (
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/shinji-kodama/dsenv/internal/config"
)

// configFlags are the flags that shape the loaded configuration. They are
// persistent so plan and extensions see the same configuration the root
// command would run.
type configFlags struct {
	path       string // --config: explicit config file
	noNotebook bool   // --no-notebook: skip the tools and extensions phases
	target     string // --target: local or docker
	container  string // --container: docker container name or ID
}

func (f *configFlags) register(fs *pflag.FlagSet) {
	fs.StringVar(&f.path, "config", "", "Config file (default: ./dsenv.yaml, then ~/.dsenv.yaml)")
	fs.BoolVar(&f.noNotebook, "no-notebook", false, "Skip the notebook tools and extensions")
	fs.StringVar(&f.target, "target", config.TargetLocal, "Where to run the tools: local or docker")
	fs.StringVar(&f.container, "container", "", "Docker container to provision (implies --target docker)")
}

// loadConfig loads the configuration and applies the flags the user set
// explicitly. Flags left at their defaults never override the file or the
// environment. The result is not validated.
func loadConfig(cmd *cobra.Command, f *configFlags) (*config.Config, error) {
	cfg, path, err := config.Load(f.path)
	if err != nil {
		return nil, err
	}
	if path != "" {
		VerboseLog("Using config file %s", path)
	} else {
		VerboseLog("No config file found, using defaults")
	}

	if changed(cmd, "no-notebook") && f.noNotebook {
		cfg.Notebook.Enabled = false
	}
	if changed(cmd, "container") {
		cfg.Docker.Container = f.container
		if !changed(cmd, "target") {
			cfg.Target = config.TargetDocker
		}
	}
	if changed(cmd, "target") {
		cfg.Target = f.target
	}
	return cfg, nil
}

// changed reports whether the named flag, local or inherited, was set on
// the command line.
func changed(cmd *cobra.Command, name string) bool {
	fl := cmd.Flag(name)
	return fl != nil && fl.Changed
}
