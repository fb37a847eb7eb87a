package report

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/shinji-kodama/dsenv/internal/model"
)

type consoleReporter struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsole returns a reporter that announces each step as it starts and
// prints a summary table when the run finishes.
func NewConsole(out io.Writer) Reporter {
	if out == nil {
		out = io.Discard
	}
	return &consoleReporter{out: out}
}

func (c *consoleReporter) HandleStart(rep *model.Report, steps []model.PlannedStep) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "Provisioning %s: %d step(s), policy %s, target %s\n",
		rep.Environment, len(steps), rep.Policy, rep.Target)
}

func (c *consoleReporter) HandleStepStart(step model.PlannedStep, index, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, "==> [%d/%d] %s: %s\n", index+1, total, step.Name, step.Command)
}

func (c *consoleReporter) HandleStep(result model.StepResult) {}

func (c *consoleReporter) HandleFinish(rep *model.Report) {
	c.mu.Lock()
	defer c.mu.Unlock()

	nameWidth := len("Step")
	for _, s := range rep.Steps {
		if len(s.Name) > nameWidth {
			nameWidth = len(s.Name)
		}
	}

	rowFmt := fmt.Sprintf("| %%-%ds | %%-10s | %%-9s | %%-9s |\n", nameWidth)
	border := strings.Repeat("=", nameWidth+2+13+12+12+1)

	fmt.Fprintln(c.out, border)
	fmt.Fprintf(c.out, rowFmt, "Step", "Phase", "Duration", "Status")
	fmt.Fprintln(c.out, border)
	for _, s := range rep.Steps {
		fmt.Fprintf(c.out, rowFmt, s.Name, s.Phase, formatDuration(s.Duration), s.Status)
	}
	fmt.Fprintln(c.out, border)

	for _, s := range rep.Steps {
		switch s.Status {
		case model.StatusFailed:
			fmt.Fprintf(c.out, "FAILED  %s: %s\n", s.Name, s.Error)
		case model.StatusSkipped:
			fmt.Fprintf(c.out, "SKIPPED %s: %s\n", s.Name, s.SkipReason)
		}
	}

	counts := rep.Counts()
	fmt.Fprintf(c.out, "Duration: %s | Steps: %d/%d succeeded, %d failed, %d skipped\n",
		formatDuration(rep.Duration), counts[model.StatusSucceeded], len(rep.Steps),
		counts[model.StatusFailed], counts[model.StatusSkipped])

	if rep.Succeeded() {
		fmt.Fprintf(c.out, "Environment %s is ready.\n", rep.Environment.Name)
		return
	}
	if first, ok := rep.FirstFailure(); ok && first.Output != "" {
		fmt.Fprintf(c.out, "\nLast output of %s (exit status %d):\n%s", first.Name, first.ExitCode, first.Output)
		if !strings.HasSuffix(first.Output, "\n") {
			fmt.Fprintln(c.out)
		}
	}
}

func (c *consoleReporter) Flush() error {
	return nil
}

// formatDuration keeps sub-second steps readable and rounds longer ones.
func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "-"
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
