// Package provision builds and runs the ordered provisioning sequence.
//
// A Plan is an explicit list of Steps. Each step names the steps it hard
// depends on; everything else about ordering comes from the list itself.
// One driver loop (Provisioner.Run) executes the list and applies the
// error policy uniformly, recording a model.StepResult per step.
//
// Steps never rely on an "activated" shell. The activate step locates the
// environment and stores a conda.Handle in the run State; later steps
// resolve their executables through that handle.
package provision

import (
	"context"
	"errors"
	"fmt"

	"github.com/shinji-kodama/dsenv/internal/conda"
	"github.com/shinji-kodama/dsenv/internal/config"
	"github.com/shinji-kodama/dsenv/internal/jupyter"
	"github.com/shinji-kodama/dsenv/internal/model"
	"github.com/shinji-kodama/dsenv/internal/pip"
	"github.com/shinji-kodama/dsenv/internal/runner"
)

// Fixed step names. Tool and extension steps are prefixed with
// StepToolPrefix and StepExtensionPrefix followed by the package or ID.
const (
	StepRemove              = "remove"
	StepCreate              = "create"
	StepActivate            = "activate"
	StepInstallRequirements = "install-requirements"
	StepToolPrefix          = "tool/"
	StepExtensionPrefix     = "extension/"
)

// Step is one provisioning action.
type Step struct {
	Name  string
	Phase model.Phase

	// Requires lists steps that must have succeeded for this one to run.
	// Every name must appear earlier in the plan.
	Requires []string

	// Command renders the tool invocation against the current state. It is
	// used for previews and for the step result.
	Command func(st *State) runner.Command

	// Action performs the step.
	Action func(ctx context.Context, st *State) error
}

// State carries what earlier steps established for later ones.
type State struct {
	handle  conda.Handle
	preview conda.Handle
}

// NewState creates the state for a run against envName on goos. Until the
// environment is located, Handle returns a placeholder so commands can
// still be previewed.
func NewState(envName, goos string) *State {
	return &State{preview: conda.Handle{Name: envName, Prefix: "<" + envName + ">", OS: goos}}
}

// Activate records the located environment.
func (s *State) Activate(h conda.Handle) {
	s.handle = h
}

// Active reports whether the environment has been located.
func (s *State) Active() bool {
	return !s.handle.IsZero()
}

// Handle returns the located environment, or the placeholder.
func (s *State) Handle() conda.Handle {
	if s.handle.IsZero() {
		return s.preview
	}
	return s.handle
}

// ErrNotActivated is returned by steps that need the environment before
// the activate step has succeeded.
var ErrNotActivated = errors.New("environment has not been activated")

func (s *State) activeHandle() (conda.Handle, error) {
	if !s.Active() {
		return conda.Handle{}, ErrNotActivated
	}
	return s.handle, nil
}

// Plan is the ordered list of steps for one environment.
type Plan struct {
	Environment model.Environment
	OS          string
	Steps       []Step
}

// Deps are the tool wrappers the steps call.
type Deps struct {
	Conda    *conda.Manager
	Pip      *pip.Installer
	Notebook *jupyter.Notebook
}

// NewDeps builds the wrappers on top of one runner.
func NewDeps(r runner.Runner, condaBinary string) Deps {
	return Deps{
		Conda:    conda.NewManager(r, condaBinary),
		Pip:      pip.NewInstaller(r),
		Notebook: jupyter.NewNotebook(r),
	}
}

// BuildPlan turns a validated configuration into a Plan:
//
//	[remove] create activate install-requirements [tool/<pkg>...] [extension/<id>...]
//
// remove is only present when the environment is recreated. Tools and
// extensions are only present when the notebook layer is enabled. Every
// step after activate requires it, since each needs the located
// environment. No other hard dependencies exist: under the continue policy
// a failed create does not stop activate from finding an existing
// environment.
func BuildPlan(cfg *config.Config, deps Deps, goos string) (*Plan, error) {
	env := cfg.Environment.Environment
	plan := &Plan{Environment: env, OS: goos}

	if cfg.Environment.Recreate {
		plan.Steps = append(plan.Steps, Step{
			Name:  StepRemove,
			Phase: model.PhaseCreate,
			Command: func(*State) runner.Command {
				return deps.Conda.RemoveCommand(env.Name)
			},
			Action: func(ctx context.Context, st *State) error {
				// Removing an environment that does not exist is a no-op.
				if _, err := deps.Conda.Locate(ctx, env.Name); err != nil {
					if conda.IsEnvNotFound(err) {
						return nil
					}
					return err
				}
				return deps.Conda.Remove(ctx, env.Name)
			},
		})
	}

	plan.Steps = append(plan.Steps,
		Step{
			Name:  StepCreate,
			Phase: model.PhaseCreate,
			Command: func(*State) runner.Command {
				return deps.Conda.CreateCommand(env)
			},
			Action: func(ctx context.Context, _ *State) error {
				return deps.Conda.Create(ctx, env)
			},
		},
		Step{
			Name:  StepActivate,
			Phase: model.PhaseActivate,
			Command: func(*State) runner.Command {
				return deps.Conda.ListCommand()
			},
			Action: func(ctx context.Context, st *State) error {
				h, err := deps.Conda.Locate(ctx, env.Name)
				if err != nil {
					return err
				}
				st.Activate(h)
				return nil
			},
		},
		Step{
			Name:     StepInstallRequirements,
			Phase:    model.PhaseInstall,
			Requires: []string{StepActivate},
			Command: func(st *State) runner.Command {
				return deps.Pip.RequirementsCommand(st.Handle(), cfg.Requirements)
			},
			Action: func(ctx context.Context, st *State) error {
				h, err := st.activeHandle()
				if err != nil {
					return err
				}
				return deps.Pip.InstallRequirements(ctx, h, cfg.Requirements)
			},
		},
	)

	if cfg.Notebook.Enabled {
		for _, tool := range cfg.Notebook.Tools {
			plan.Steps = append(plan.Steps, toolStep(deps, env.Name, cfg.Channel, tool))
		}
		for _, ext := range cfg.Notebook.Extensions {
			step, err := extensionStep(deps, ext)
			if err != nil {
				return nil, err
			}
			plan.Steps = append(plan.Steps, step)
		}
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func toolStep(deps Deps, envName, defaultChannel string, tool model.Tool) Step {
	channel := tool.Channel
	if channel == "" {
		channel = defaultChannel
	}
	return Step{
		Name:     StepToolPrefix + tool.Package,
		Phase:    model.PhaseTools,
		Requires: []string{StepActivate},
		Command: func(*State) runner.Command {
			return deps.Conda.InstallCommand(envName, channel, tool.Package)
		},
		Action: func(ctx context.Context, st *State) error {
			h, err := st.activeHandle()
			if err != nil {
				return err
			}
			return deps.Conda.Install(ctx, h, channel, tool.Package)
		},
	}
}

func extensionStep(deps Deps, ext model.Extension) (Step, error) {
	step := Step{
		Name:     StepExtensionPrefix + ext.ID,
		Phase:    model.PhaseExtensions,
		Requires: []string{StepActivate},
	}

	kind, err := model.ParseExtensionKind(string(ext.Kind))
	if err != nil {
		return Step{}, fmt.Errorf("extension %q: %w", ext.ID, err)
	}

	switch kind {
	case model.KindPin:
		step.Command = func(st *State) runner.Command {
			return deps.Pip.PinnedCommand(st.Handle(), ext.ID)
		}
		step.Action = func(ctx context.Context, st *State) error {
			h, err := st.activeHandle()
			if err != nil {
				return err
			}
			return deps.Pip.InstallPinned(ctx, h, ext.ID)
		}
	default:
		step.Command = func(st *State) runner.Command {
			return deps.Notebook.EnableCommand(st.Handle(), ext.ID)
		}
		step.Action = func(ctx context.Context, st *State) error {
			h, err := st.activeHandle()
			if err != nil {
				return err
			}
			return deps.Notebook.EnableExtension(ctx, h, ext.ID)
		}
	}
	return step, nil
}

// Validate checks that step names are unique, that every requirement names
// an earlier step, and that every step can run.
func (p *Plan) Validate() error {
	seen := make(map[string]bool, len(p.Steps))
	for i, s := range p.Steps {
		if s.Name == "" {
			return fmt.Errorf("step %d has no name", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate step %q", s.Name)
		}
		if s.Action == nil || s.Command == nil {
			return fmt.Errorf("step %q has no action", s.Name)
		}
		for _, req := range s.Requires {
			if !seen[req] {
				return fmt.Errorf("step %q requires %q, which does not run before it", s.Name, req)
			}
		}
		seen[s.Name] = true
	}
	return nil
}

// Planned describes every step against st, for previews and reporters.
func (p *Plan) Planned(st *State) []model.PlannedStep {
	out := make([]model.PlannedStep, 0, len(p.Steps))
	for _, s := range p.Steps {
		out = append(out, s.describe(st))
	}
	return out
}

// Preview describes the plan before anything has run.
func (p *Plan) Preview() []model.PlannedStep {
	return p.Planned(NewState(p.Environment.Name, p.OS))
}

func (s Step) describe(st *State) model.PlannedStep {
	return model.PlannedStep{
		Name:     s.Name,
		Phase:    s.Phase,
		Requires: append([]string(nil), s.Requires...),
		Command:  s.Command(st).String(),
	}
}
