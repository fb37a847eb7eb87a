package provision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shinji-kodama/dsenv/internal/model"
	"github.com/shinji-kodama/dsenv/internal/report"
	"github.com/shinji-kodama/dsenv/internal/runner"
)

// Options control how a plan is executed.
type Options struct {
	// Policy decides whether the first failure aborts the run. Anything
	// other than continue, including the zero value, is fail-fast.
	Policy model.ErrorPolicy

	// StepTimeout bounds each step. Zero means no limit.
	StepTimeout time.Duration

	// Target is recorded in the report ("local" or "docker").
	Target string

	// Reporter receives progress events. Nil means none.
	Reporter report.Reporter

	// Logger receives debug logs. Nil discards them.
	Logger *slog.Logger
}

// Provisioner executes a Plan.
type Provisioner struct {
	plan *Plan
	opts Options
	log  *slog.Logger
}

// New creates a Provisioner for plan.
func New(plan *Plan, opts Options) *Provisioner {
	if policy, err := model.ParseErrorPolicy(string(opts.Policy)); err == nil {
		opts.Policy = policy
	} else {
		opts.Policy = model.PolicyFailFast
	}
	if opts.Reporter == nil {
		opts.Reporter = report.NewGroup()
	}
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Provisioner{plan: plan, opts: opts, log: log}
}

// Run executes every step in order and returns the report. The error is
// nil only when every step succeeded; otherwise it is a *RunError.
//
// A step is skipped instead of run when:
//   - an earlier step failed under the fail-fast policy
//   - a step it requires did not succeed
//   - ctx is done
func (p *Provisioner) Run(ctx context.Context) (*model.Report, error) {
	rep := model.NewReport(p.plan.Environment, p.opts.Policy, p.opts.Target)
	st := NewState(p.plan.Environment.Name, p.plan.OS)
	start := time.Now()

	total := len(p.plan.Steps)
	p.opts.Reporter.HandleStart(rep, p.plan.Planned(st))

	status := make(map[string]model.StepStatus, total)
	runErr := &RunError{}
	abortReason := ""

	for i, step := range p.plan.Steps {
		res := model.StepResult{Name: step.Name, Phase: step.Phase, Status: model.StatusPending}

		reason := abortReason
		if reason == "" && ctx.Err() != nil {
			reason = "cancelled"
		}
		if reason == "" {
			reason = unmetRequirement(step, status)
		}

		var stepErr error
		if reason != "" {
			res.Command = step.Command(st).String()
			res.Status = model.StatusSkipped
			res.SkipReason = reason
			p.log.Debug("step skipped", "step", step.Name, "reason", reason)
		} else {
			planned := step.describe(st)
			p.opts.Reporter.HandleStepStart(planned, i, total)
			res, stepErr = p.runStep(ctx, step, st, res)
			res.Command = planned.Command
		}

		status[step.Name] = res.Status
		rep.Steps = append(rep.Steps, res)
		p.opts.Reporter.HandleStep(res)

		if res.Status != model.StatusFailed {
			continue
		}
		runErr.Failed = append(runErr.Failed, step.Name)
		if runErr.First == nil {
			runErr.First = &StepError{Step: step.Name, Err: stepErr}
		}
		if p.opts.Policy != model.PolicyContinue && abortReason == "" {
			abortReason = fmt.Sprintf("aborted after %s failed", step.Name)
		}
	}

	rep.Duration = time.Since(start)
	p.opts.Reporter.HandleFinish(rep)

	if err := ctx.Err(); err != nil {
		runErr.Interrupted = err
	}
	if len(runErr.Failed) == 0 && runErr.Interrupted == nil {
		return rep, nil
	}
	return rep, runErr
}

// runStep executes one step under the step timeout and fills in res. The
// returned error is the step's failure, if any.
func (p *Provisioner) runStep(ctx context.Context, step Step, st *State, res model.StepResult) (model.StepResult, error) {
	stepCtx := ctx
	if p.opts.StepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, p.opts.StepTimeout)
		defer cancel()
	}

	res.StartedAt = time.Now().UTC()
	p.log.Debug("step started", "step", step.Name, "phase", step.Phase)

	err := step.Action(stepCtx, st)
	res.Duration = time.Since(res.StartedAt)

	if err == nil {
		res.Status = model.StatusSucceeded
		p.log.Debug("step succeeded", "step", step.Name, "duration", res.Duration)
		return res, nil
	}

	// The parent context is still live, so the deadline was this step's own.
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		err = fmt.Errorf("timed out after %s: %w", p.opts.StepTimeout, err)
	}

	res.Status = model.StatusFailed
	res.ExitCode = runner.ExitCodeOf(err)
	res.Error = err.Error()
	var exitErr *runner.ExitError
	if errors.As(err, &exitErr) {
		res.Output = exitErr.Tail
	}
	p.log.Debug("step failed", "step", step.Name, "exit_code", res.ExitCode, "error", err)
	return res, err
}

// unmetRequirement returns a skip reason when a required step did not
// succeed, or "" when the step may run.
func unmetRequirement(step Step, status map[string]model.StepStatus) string {
	for _, req := range step.Requires {
		if status[req] != model.StatusSucceeded {
			return fmt.Sprintf("requires %s, which %s", req, status[req])
		}
	}
	return ""
}
