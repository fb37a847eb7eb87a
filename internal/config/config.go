// Package config loads and validates dsenv configuration.
//
// Every value has a default that reproduces the fixed provisioning sequence
// dsenv was built to replace, so running without a config file performs
// that sequence unchanged. A config file (YAML, JSON, or JSONC) and DSENV_*
// environment variables override the defaults; command-line flags override
// both and are applied by the cli package.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shinji-kodama/dsenv/internal/model"
)

// Target names where the external tools run.
const (
	TargetLocal  = "local"
	TargetDocker = "docker"
)

// Config is the full provisioning configuration.
type Config struct {
	// Environment describes the environment to create.
	Environment EnvironmentConfig `mapstructure:"environment" yaml:"environment" json:"environment"`

	// Conda is the environment manager executable (conda, mamba, micromamba).
	Conda string `mapstructure:"conda" yaml:"conda" json:"conda"`

	// Requirements is the path of the declarative requirements file, passed
	// to pip unchanged.
	Requirements string `mapstructure:"requirements" yaml:"requirements" json:"requirements"`

	// Channel is the default channel for notebook tools.
	Channel string `mapstructure:"channel" yaml:"channel" json:"channel"`

	// Policy decides whether the first failure aborts the run.
	Policy model.ErrorPolicy `mapstructure:"policy" yaml:"policy" json:"policy"`

	// StepTimeout bounds each external tool call. Zero disables the watchdog.
	StepTimeout time.Duration `mapstructure:"stepTimeout" yaml:"stepTimeout" json:"stepTimeout"`

	// Notebook configures the optional notebook tooling and extensions.
	Notebook NotebookConfig `mapstructure:"notebook" yaml:"notebook" json:"notebook"`

	// Target is "local" or "docker".
	Target string `mapstructure:"target" yaml:"target" json:"target"`

	// Docker is used when Target is "docker".
	Docker DockerConfig `mapstructure:"docker" yaml:"docker,omitempty" json:"docker,omitempty"`
}

// EnvironmentConfig is the environment descriptor plus creation options.
type EnvironmentConfig struct {
	model.Environment `mapstructure:",squash" yaml:",inline"`

	// Recreate removes an existing environment of the same name before
	// creating it. Without it, an existing environment fails the create step.
	Recreate bool `mapstructure:"recreate" yaml:"recreate" json:"recreate"`
}

// NotebookConfig configures the optional notebook layer.
type NotebookConfig struct {
	// Enabled turns the tools and extensions phases on.
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Tools are installed with the environment manager, in order.
	Tools []model.Tool `mapstructure:"tools" yaml:"tools" json:"tools"`

	// Extensions are enabled after every tool is installed, in order.
	Extensions []model.Extension `mapstructure:"extensions" yaml:"extensions" json:"extensions"`
}

// DockerConfig selects the container the tools run in.
type DockerConfig struct {
	// Container is the name or ID of a running container. Empty selects the
	// running container labeled as a dsenv target.
	Container string `mapstructure:"container" yaml:"container,omitempty" json:"container,omitempty"`

	// User runs the commands as this user inside the container.
	User string `mapstructure:"user" yaml:"user,omitempty" json:"user,omitempty"`

	// Workdir is the working directory inside the container.
	Workdir string `mapstructure:"workdir" yaml:"workdir,omitempty" json:"workdir,omitempty"`
}

// DefaultTools are the notebook runtime, the kernel bridge, the extension
// manager and the notebook-to-script translator.
func DefaultTools() []model.Tool {
	return []model.Tool{
		{Package: "notebook"},
		{Package: "nb_conda_kernels"},
		{Package: "jupyter_contrib_nbextensions"},
		{Package: "jupytext"},
	}
}

// DefaultExtensions are the six notebook extensions enabled by default.
// The jedi pin is the autocompletion engine's compatibility shim.
func DefaultExtensions() []model.Extension {
	return []model.Extension{
		{ID: "collapsible_headings/main", Title: "Collapsible sections", Kind: model.KindNBExtension},
		{ID: "execute_time/ExecuteTime", Title: "Execution time display", Kind: model.KindNBExtension},
		{ID: "hinterland/hinterland", Title: "Autocompletion", Kind: model.KindNBExtension},
		{ID: "jedi==0.17.2", Title: "Autocompletion engine compatibility shim", Kind: model.KindPin},
		{ID: "spellchecker/main", Title: "Spell checking", Kind: model.KindNBExtension},
		{ID: "toc2/main", Title: "Table of contents sidebar", Kind: model.KindNBExtension},
	}
}

// Default returns the configuration used when no file is found: the
// environment mlb on Python 3.8 with the four notebook tools and six
// extensions.
func Default() *Config {
	return &Config{
		Environment: EnvironmentConfig{
			Environment: model.Environment{Name: "mlb", Python: "3.8"},
		},
		Conda:        "conda",
		Requirements: "requirements.txt",
		Channel:      "conda-forge",
		Policy:       model.PolicyFailFast,
		Notebook: NotebookConfig{
			Enabled:    true,
			Tools:      DefaultTools(),
			Extensions: DefaultExtensions(),
		},
		Target: TargetLocal,
	}
}

// ValidationError describes one invalid configuration field.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every problem found, so users can fix them in
// one pass.
type ValidationErrors []*ValidationError

// Error joins the individual messages.
func (v ValidationErrors) Error() string {
	msgs := make([]string, 0, len(v))
	for _, e := range v {
		msgs = append(msgs, e.Error())
	}
	return "invalid configuration: " + strings.Join(msgs, "; ")
}

// Validate checks the configuration and normalizes defaults that depend on
// other fields (extension kinds). It returns ValidationErrors or nil.
func (c *Config) Validate() error {
	var errs ValidationErrors
	add := func(field, format string, args ...interface{}) {
		errs = append(errs, &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if err := c.Environment.Validate(); err != nil {
		add("environment", "%v", err)
	}
	if strings.TrimSpace(c.Conda) == "" {
		add("conda", "environment manager executable must not be empty")
	}
	if c.Requirements == "" {
		add("requirements", "requirements file path must not be empty")
	}
	if policy, err := model.ParseErrorPolicy(string(c.Policy)); err != nil {
		add("policy", "%v", err)
	} else {
		c.Policy = policy
	}
	if c.StepTimeout < 0 {
		add("stepTimeout", "must not be negative (got %s)", c.StepTimeout)
	}

	switch c.Target {
	case TargetLocal, TargetDocker:
	default:
		add("target", "invalid target %q (valid: local, docker)", c.Target)
	}

	seenTools := make(map[string]bool)
	for i, tool := range c.Notebook.Tools {
		if strings.TrimSpace(tool.Package) == "" {
			add(fmt.Sprintf("notebook.tools[%d]", i), "package must not be empty")
			continue
		}
		if seenTools[tool.Package] {
			add(fmt.Sprintf("notebook.tools[%d]", i), "duplicate tool %q", tool.Package)
		}
		seenTools[tool.Package] = true
	}

	seenExt := make(map[string]bool)
	for i := range c.Notebook.Extensions {
		ext := &c.Notebook.Extensions[i]
		field := fmt.Sprintf("notebook.extensions[%d]", i)
		if strings.TrimSpace(ext.ID) == "" {
			add(field, "id must not be empty")
			continue
		}
		kind, err := model.ParseExtensionKind(string(ext.Kind))
		if err != nil {
			add(field, "%v", err)
		} else {
			ext.Kind = kind
		}
		if seenExt[ext.ID] {
			add(field, "duplicate extension %q", ext.ID)
		}
		seenExt[ext.ID] = true
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

// IsValidationError reports whether err came from Validate.
func IsValidationError(err error) bool {
	var v ValidationErrors
	return errors.As(err, &v)
}
