package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/shinji-kodama/dsenv/internal/config"
	"github.com/shinji-kodama/dsenv/internal/docker"
	"github.com/shinji-kodama/dsenv/internal/model"
	"github.com/shinji-kodama/dsenv/internal/provision"
	"github.com/shinji-kodama/dsenv/internal/report"
	"github.com/shinji-kodama/dsenv/internal/runner"
)

// provisionFlags holds the flags that only affect a run.
type provisionFlags struct {
	policy      string        // --policy: fail-fast or continue
	stepTimeout time.Duration // --step-timeout: per-step watchdog
	reports     []string      // --report: repeatable reporter specs
}

func (f *provisionFlags) register(set *pflag.FlagSet) {
	set.StringVar(&f.policy, "policy", string(model.PolicyFailFast), "Error policy: fail-fast or continue")
	set.DurationVar(&f.stepTimeout, "step-timeout", 0, "Fail a step that runs longer than this (0 disables)")
	set.StringArrayVar(&f.reports, "report", nil, "Report output: console, json:<path> or junit:<path> (repeatable)")
}

// runProvision is the root command: it loads the configuration, opens the
// target, builds the plan and runs it.
func runProvision(cmd *cobra.Command, cfgFlags *configFlags, flags *provisionFlags) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd, cfgFlags)
	if err != nil {
		return err
	}
	if changed(cmd, "policy") {
		cfg.Policy = model.ErrorPolicy(flags.policy)
	}
	if changed(cmd, "step-timeout") {
		cfg.StepTimeout = flags.stepTimeout
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	specs, err := report.ParseSpecs(flags.reports)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "invalid --report value", err)
	}

	progress := stdoutOrStderr(cmd)
	tgt, err := openTarget(ctx, cfg, progress, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer tgt.Close()

	plan, err := provision.BuildPlan(cfg, provision.NewDeps(tgt.runner, cfg.Conda), tgt.runner.OS())
	if err != nil {
		return model.WrapCLIError(model.ExitConfigInvalid, "invalid provisioning plan", err)
	}
	VerboseLog("Plan for %s has %d step(s)", plan.Environment, len(plan.Steps))

	group, err := report.New(specs, progress)
	if err != nil {
		return model.WrapCLIError(model.ExitGeneralError, "invalid --report value", err)
	}
	VerboseLog("Reporting to %d reporter(s)", group.Len())

	p := provision.New(plan, provision.Options{
		Policy:      cfg.Policy,
		StepTimeout: cfg.StepTimeout,
		Target:      cfg.Target,
		Reporter:    group,
		Logger:      logger,
	})
	rep, runErr := p.Run(ctx)

	if flushErr := group.Flush(); flushErr != nil {
		logger.Warn("failed to write report", "error", flushErr)
		if runErr == nil {
			return model.WrapCLIError(model.ExitGeneralError, "failed to write report", flushErr)
		}
	}

	if jsonOutput {
		if err := writeJSON(cmd.OutOrStdout(), rep); err != nil {
			return err
		}
	}
	return runErr
}

// newLocalRunner creates the runner for the local target. Tests replace it
// with a fake.
var newLocalRunner = func(stdout, stderr io.Writer) runner.Runner {
	return runner.NewExec(stdout, stderr)
}

// target is an opened place to run the tools.
type target struct {
	runner runner.Runner
	close  func() error
}

// Close releases the target's resources.
func (t *target) Close() error {
	if t.close == nil {
		return nil
	}
	return t.close()
}

// openTarget prepares the runner for cfg.Target. Local runs are checked
// up front for the environment manager and the requirements file, so a
// missing prerequisite is reported before anything is created.
func openTarget(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) (*target, error) {
	if cfg.Target == config.TargetDocker {
		return openDockerTarget(ctx, cfg, stdout, stderr)
	}

	path, err := runner.LookPath(cfg.Conda)
	if err != nil {
		return nil, model.WrapCLIError(model.ExitToolNotFound,
			fmt.Sprintf("environment manager %q not found on PATH", cfg.Conda), err)
	}
	VerboseLog("Using environment manager %s", path)

	if err := checkRequirements(cfg.Requirements); err != nil {
		return nil, err
	}
	return &target{runner: newLocalRunner(stdout, stderr)}, nil
}

func openDockerTarget(ctx context.Context, cfg *config.Config, stdout, stderr io.Writer) (*target, error) {
	client, err := docker.NewClient()
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx); err != nil {
		client.Close()
		return nil, err
	}
	VerboseLog("Connected to Docker daemon at %s", client.Host())

	info, err := docker.ResolveTarget(ctx, client.API(), cfg.Docker.Container, cfg.Environment.Name)
	if err != nil {
		client.Close()
		return nil, err
	}
	VerboseLog("Provisioning inside container %s (%s, %s)", info.ContainerName, info.ContainerID, info.Image)

	r := docker.NewRunner(client.API(), info.ContainerID, stdout, stderr)
	labels := docker.ParseTargetLabels(info.Labels)
	r.User = firstNonEmpty(cfg.Docker.User, labels.User)
	r.Workdir = firstNonEmpty(cfg.Docker.Workdir, labels.Workdir)

	return &target{runner: r, close: client.Close}, nil
}

// checkRequirements verifies the requirements file exists on the host.
// The path is resolved the same way pip resolves it: relative to the
// working directory, without expansion.
func checkRequirements(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return model.WrapCLIError(model.ExitRequirementsNotFound,
				fmt.Sprintf("requirements file %q not found", path), err)
		}
		return model.WrapCLIError(model.ExitGeneralError,
			fmt.Sprintf("cannot read requirements file %q", path), err)
	}
	if info.IsDir() {
		return model.NewCLIError(model.ExitRequirementsNotFound,
			fmt.Sprintf("requirements path %q is a directory", path))
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
