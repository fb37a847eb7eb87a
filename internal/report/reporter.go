// Package report turns provisioning events into human and machine readable
// output: a console table, a JSON document, or a JUnit XML file.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/shinji-kodama/dsenv/internal/model"
)

// Reporter receives provisioning events in order: HandleStart once, then
// HandleStepStart and HandleStep for every step that runs (skipped steps
// only get HandleStep), then HandleFinish. Flush writes any buffered output.
type Reporter interface {
	HandleStart(rep *model.Report, steps []model.PlannedStep)
	HandleStepStart(step model.PlannedStep, index, total int)
	HandleStep(result model.StepResult)
	HandleFinish(rep *model.Report)
	Flush() error
}

// Group fans events out to several reporters.
type Group struct {
	reporters []Reporter
}

// NewGroup wraps reporters into a Group.
func NewGroup(reporters ...Reporter) *Group {
	return &Group{reporters: reporters}
}

func (g *Group) HandleStart(rep *model.Report, steps []model.PlannedStep) {
	for _, r := range g.reporters {
		r.HandleStart(rep, steps)
	}
}

func (g *Group) HandleStepStart(step model.PlannedStep, index, total int) {
	for _, r := range g.reporters {
		r.HandleStepStart(step, index, total)
	}
}

func (g *Group) HandleStep(result model.StepResult) {
	for _, r := range g.reporters {
		r.HandleStep(result)
	}
}

func (g *Group) HandleFinish(rep *model.Report) {
	for _, r := range g.reporters {
		r.HandleFinish(rep)
	}
}

// Flush flushes every reporter and returns the first error.
func (g *Group) Flush() error {
	var firstErr error
	for _, r := range g.reporters {
		if err := r.Flush(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Len returns the number of reporters.
func (g *Group) Len() int {
	return len(g.reporters)
}

// Spec is one parsed --report value.
type Spec struct {
	Format string
	Path   string
}

const (
	FormatConsole = "console"
	FormatJSON    = "json"
	FormatJUnit   = "junit"
)

// ParseSpecs parses --report values of the form "format" or
// "format:path". No values means a single console reporter.
func ParseSpecs(values []string) ([]Spec, error) {
	specs := make([]Spec, 0, len(values))
	for _, raw := range values {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}

		format := trimmed
		var path string
		if idx := strings.Index(trimmed, ":"); idx >= 0 {
			format = strings.TrimSpace(trimmed[:idx])
			path = strings.TrimSpace(trimmed[idx+1:])
		}
		format = strings.ToLower(format)

		switch format {
		case FormatConsole:
			if path != "" {
				return nil, fmt.Errorf("console reporter does not accept a path")
			}
		case FormatJSON, FormatJUnit:
			if path == "" {
				return nil, fmt.Errorf("%s reporter requires a file path", format)
			}
		default:
			return nil, fmt.Errorf("unsupported report format %q (valid: console, json:<path>, junit:<path>)", format)
		}

		specs = append(specs, Spec{Format: format, Path: path})
	}

	if len(specs) == 0 {
		specs = append(specs, Spec{Format: FormatConsole})
	}
	return specs, nil
}

// New builds a Group for specs. Console output goes to console.
func New(specs []Spec, console io.Writer) (*Group, error) {
	reporters := make([]Reporter, 0, len(specs))
	for _, spec := range specs {
		switch spec.Format {
		case FormatConsole:
			reporters = append(reporters, NewConsole(console))
		case FormatJSON:
			reporters = append(reporters, NewJSON(spec.Path))
		case FormatJUnit:
			reporters = append(reporters, NewJUnit(spec.Path))
		default:
			return nil, fmt.Errorf("unsupported report format %q", spec.Format)
		}
	}
	return NewGroup(reporters...), nil
}
