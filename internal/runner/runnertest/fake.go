// Package runnertest provides a scripted runner.Runner for tests that need
// mocked external tools.
package runnertest

import (
	"context"
	"strings"
	"sync"

	"github.com/shinji-kodama/dsenv/internal/runner"
)

// Response is what the fake returns for a matched command.
type Response struct {
	Output string
	Err    error
}

// Rule matches commands whose rendered line contains Match and answers
// with the queued responses, one per call. The last response repeats once
// the queue is exhausted.
type Rule struct {
	Match     string
	Responses []Response
	calls     int
}

// Fake records every command it receives and answers according to its
// rules. Commands that match no rule succeed with empty output.
type Fake struct {
	mu    sync.Mutex
	os    string
	rules []*Rule
	calls []runner.Command

	// Hook, when set, runs before each command is answered. Tests use it to
	// block or cancel mid-run.
	Hook func(ctx context.Context, cmd runner.Command)
}

// New creates a Fake that reports the given OS ("linux" if empty).
func New(goos string) *Fake {
	if goos == "" {
		goos = "linux"
	}
	return &Fake{os: goos}
}

// On adds a rule. Rules are checked in the order they were added.
func (f *Fake) On(match string, responses ...Response) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, &Rule{Match: match, Responses: responses})
	return f
}

// Fail is shorthand for a rule that always fails with err.
func (f *Fake) Fail(match string, err error) *Fake {
	return f.On(match, Response{Err: err})
}

// OS implements runner.Runner.
func (f *Fake) OS() string {
	return f.os
}

// Run implements runner.Runner.
func (f *Fake) Run(ctx context.Context, cmd runner.Command) (runner.Result, error) {
	if f.Hook != nil {
		f.Hook(ctx, cmd)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, cmd)
	if err := ctx.Err(); err != nil {
		return runner.Result{ExitCode: -1}, err
	}

	line := cmd.String()
	for _, r := range f.rules {
		if !strings.Contains(line, r.Match) || len(r.Responses) == 0 {
			continue
		}
		i := r.calls
		if i >= len(r.Responses) {
			i = len(r.Responses) - 1
		}
		r.calls++
		resp := r.Responses[i]
		res := runner.Result{ExitCode: runner.ExitCodeOf(resp.Err), Output: resp.Output}
		if cmd.Capture {
			res.Stdout = resp.Output
		}
		return res, resp.Err
	}
	return runner.Result{}, nil
}

// Calls returns a copy of every command received so far.
func (f *Fake) Calls() []runner.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]runner.Command, len(f.calls))
	copy(out, f.calls)
	return out
}

// Lines returns the rendered command lines received so far.
func (f *Fake) Lines() []string {
	calls := f.Calls()
	lines := make([]string, 0, len(calls))
	for _, c := range calls {
		lines = append(lines, c.String())
	}
	return lines
}

// Count returns how many received commands contain match.
func (f *Fake) Count(match string) int {
	n := 0
	for _, l := range f.Lines() {
		if strings.Contains(l, match) {
			n++
		}
	}
	return n
}
