package runner

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// waitDelay bounds how long Run waits for the child's output pipes to close
// after the context kills it. Package managers often leave grandchildren
// holding the pipes open.
const waitDelay = 5 * time.Second

// Exec runs commands as local child processes via os/exec.
//
// Output is streamed to Stdout and Stderr as it is produced, so users see
// the tools' own progress, and the tail is kept for the step report.
type Exec struct {
	// Stdout and Stderr receive the child's streams. Nil discards them.
	Stdout io.Writer
	Stderr io.Writer

	// TailSize is how many trailing bytes of output to keep in Result.
	TailSize int
}

// NewExec creates an Exec runner that passes tool output through to the
// given writers.
func NewExec(stdout, stderr io.Writer) *Exec {
	return &Exec{Stdout: stdout, Stderr: stderr, TailSize: DefaultTailSize}
}

// OS returns the platform the binary runs on.
func (e *Exec) OS() string {
	return runtime.GOOS
}

// Run executes cmd and blocks until it exits or ctx is done. Cancelling
// ctx kills the child process.
func (e *Exec) Run(ctx context.Context, cmd Command) (Result, error) {
	// #nosec G204 -- commands are built from validated configuration
	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}
	c.WaitDelay = waitDelay

	out := NewOutput(cmd, e.Stdout, e.Stderr, e.TailSize)
	c.Stdout = out.Stdout
	c.Stderr = out.Stderr

	err := c.Run()
	result := out.Result(0)
	if err == nil {
		return result, nil
	}

	result.ExitCode = -1
	if errors.Is(err, exec.ErrNotFound) || missingBinary(err, c.Path) {
		return result, fmt.Errorf("%s: %w", cmd.Name, ErrNotFound)
	}
	// A context error takes precedence over the kill signal it caused.
	if ctxErr := ctx.Err(); ctxErr != nil {
		return result, fmt.Errorf("%s: %w", cmd.String(), ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, &ExitError{Command: cmd.String(), Code: result.ExitCode, Tail: result.Output}
	}
	return result, fmt.Errorf("%s: %w", cmd.String(), err)
}

// missingBinary reports whether err says the executable at path does not
// exist. A missing working directory fails with the directory's path and
// does not count.
func missingBinary(err error, path string) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr) && pathErr.Path == path && errors.Is(pathErr.Err, fs.ErrNotExist)
}

// LookPath reports whether name resolves to an executable on PATH (or is
// an existing path). It returns ErrNotFound otherwise.
func LookPath(name string) (string, error) {
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, ErrNotFound)
	}
	return p, nil
}
