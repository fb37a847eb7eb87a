// Package runner is the seam between dsenv and the external tools it
// drives. Every conda, pip and jupyter invocation goes through a Runner,
// which lets the provisioner run against the local machine, a Docker
// container, or a scripted fake in tests.
package runner

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned when the executable of a Command cannot be found.
var ErrNotFound = errors.New("executable not found")

// Command is one external tool invocation.
type Command struct {
	// Name is the executable name or path.
	Name string

	// Args are passed to the executable verbatim.
	Args []string

	// Dir is the working directory. Empty means the runner's default.
	Dir string

	// Env holds extra KEY=VALUE entries appended to the inherited environment.
	Env []string

	// Capture keeps the full stdout in Result.Stdout instead of streaming
	// it to the console. Used for machine-readable tool output.
	Capture bool
}

// String renders the command as a shell-like line for logs and reports.
// Arguments containing whitespace or quotes are single-quoted.
func (c Command) String() string {
	parts := make([]string, 0, len(c.Args)+1)
	parts = append(parts, quote(c.Name))
	for _, a := range c.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"$\\") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// Result is what a finished command left behind.
type Result struct {
	// ExitCode is the process exit status. -1 when the process never started
	// or was killed.
	ExitCode int

	// Output is the tail of the combined stdout/stderr stream.
	Output string

	// Stdout is the full standard output, set only for Capture commands.
	Stdout string
}

// Runner executes Commands.
type Runner interface {
	// Run executes cmd and waits for it to exit. A non-zero exit status is
	// reported as *ExitError.
	Run(ctx context.Context, cmd Command) (Result, error)

	// OS is the operating system the commands run on ("linux", "darwin",
	// "windows"). Environment layouts differ between them.
	OS() string
}

// ExitError reports a command that ran but exited non-zero.
type ExitError struct {
	Command string
	Code    int
	Tail    string
}

// Error includes the last line of output, which is usually the tool's
// own error message.
func (e *ExitError) Error() string {
	msg := fmt.Sprintf("%s exited with status %d", e.Command, e.Code)
	if line := lastLine(e.Tail); line != "" {
		msg += ": " + line
	}
	return msg
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\r\n\t ")
	if i := strings.LastIndexAny(s, "\r\n"); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// ExitCodeOf extracts the exit status carried by err. It returns 0 for a nil
// error and -1 when err does not carry a status.
func ExitCodeOf(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return -1
}
