package docker

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/shinji-kodama/dsenv/internal/runner"
)

// exitNotFound is the status the container runtime reports when the exec'd
// binary does not exist.
const exitNotFound = 127

// Runner runs commands inside a running container through the exec API.
// It implements runner.Runner, so the provisioning steps are unaware of
// where they execute.
//
// The Docker API has no way to kill an exec'd process. Cancelling the
// context detaches from it and returns immediately; the process inside
// the container runs to completion on its own.
type Runner struct {
	api       API
	container string

	// User and Workdir apply to every command. A Command's own Dir takes
	// precedence over Workdir.
	User    string
	Workdir string

	// Stdout and Stderr receive the demultiplexed streams. Nil discards them.
	Stdout io.Writer
	Stderr io.Writer

	// TailSize is how many trailing bytes of output to keep in Result.
	TailSize int
}

// NewRunner creates a Runner for the given container ID or name.
func NewRunner(api API, containerID string, stdout, stderr io.Writer) *Runner {
	return &Runner{
		api:       api,
		container: containerID,
		Stdout:    stdout,
		Stderr:    stderr,
		TailSize:  runner.DefaultTailSize,
	}
}

// OS implements runner.Runner. Exec targets are Linux containers.
func (r *Runner) OS() string {
	return "linux"
}

// ExecOptions builds the exec configuration for cmd.
func (r *Runner) ExecOptions(cmd runner.Command) container.ExecOptions {
	workdir := r.Workdir
	if cmd.Dir != "" {
		workdir = cmd.Dir
	}
	return container.ExecOptions{
		User:         r.User,
		WorkingDir:   workdir,
		Env:          cmd.Env,
		Cmd:          append([]string{cmd.Name}, cmd.Args...),
		AttachStdout: true,
		AttachStderr: true,
	}
}

// Run implements runner.Runner. It creates an exec instance, streams its
// multiplexed output, and reads the exit code once the stream closes.
func (r *Runner) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	out := runner.NewOutput(cmd, r.Stdout, r.Stderr, r.TailSize)
	failed := out.Result(-1)

	created, err := r.api.ContainerExecCreate(ctx, r.container, r.ExecOptions(cmd))
	if err != nil {
		return failed, r.wrap(ctx, cmd, "exec create", err)
	}

	hijacked, err := r.api.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return failed, r.wrap(ctx, cmd, "exec attach", err)
	}
	defer hijacked.Close()

	copied := make(chan error, 1)
	go func() {
		_, err := stdcopy.StdCopy(out.Stdout, out.Stderr, hijacked.Reader)
		copied <- err
	}()

	select {
	case <-ctx.Done():
		hijacked.Close()
		return out.Result(-1), fmt.Errorf("%s: %w", cmd.String(), ctx.Err())
	case err := <-copied:
		if err != nil {
			return out.Result(-1), r.wrap(ctx, cmd, "exec stream", err)
		}
	}

	inspect, err := r.api.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return out.Result(-1), r.wrap(ctx, cmd, "exec inspect", err)
	}

	result := out.Result(inspect.ExitCode)
	if inspect.ExitCode == 0 {
		return result, nil
	}

	exitErr := &runner.ExitError{Command: cmd.String(), Code: inspect.ExitCode, Tail: result.Output}
	if inspect.ExitCode == exitNotFound {
		return result, fmt.Errorf("%s in container %s: %w: %w", cmd.Name, r.container, runner.ErrNotFound, exitErr)
	}
	return result, exitErr
}

// wrap prefers the context error when the call failed because ctx ended.
func (r *Runner) wrap(ctx context.Context, cmd runner.Command, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("%s: %w", cmd.String(), ctxErr)
	}
	return fmt.Errorf("%s: %s in container %s: %w", cmd.String(), op, r.container, err)
}
