package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shinji-kodama/dsenv/internal/model"
)

type jsonReporter struct {
	path   string
	mu     sync.Mutex
	report *model.Report
}

// NewJSON returns a reporter that writes the final report to path as JSON.
func NewJSON(path string) Reporter {
	return &jsonReporter{path: path}
}

func (j *jsonReporter) HandleStart(rep *model.Report, steps []model.PlannedStep) {}

func (j *jsonReporter) HandleStepStart(step model.PlannedStep, index, total int) {}

func (j *jsonReporter) HandleStep(result model.StepResult) {}

func (j *jsonReporter) HandleFinish(rep *model.Report) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.report = rep
}

func (j *jsonReporter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.path == "" {
		return fmt.Errorf("json reporter missing output path")
	}
	if j.report == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("creating json report directory: %w", err)
	}

	data, err := json.MarshalIndent(j.report, "", "  ")
	if err != nil {
		return fmt.Errorf("serializing json report: %w", err)
	}

	if err := os.WriteFile(j.path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing json report: %w", err)
	}
	return nil
}
