package report

import (
	"encoding/xml"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shinji-kodama/dsenv/internal/model"
)

type junitReporter struct {
	path   string
	mu     sync.Mutex
	report *model.Report
}

// NewJUnit returns a reporter that writes the run to path as JUnit XML: one
// testsuite for the run and one testcase per step.
func NewJUnit(path string) Reporter {
	return &junitReporter{path: path}
}

func (j *junitReporter) HandleStart(rep *model.Report, steps []model.PlannedStep) {}

func (j *junitReporter) HandleStepStart(step model.PlannedStep, index, total int) {}

func (j *junitReporter) HandleStep(result model.StepResult) {}

func (j *junitReporter) HandleFinish(rep *model.Report) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.report = rep
}

type junitTestSuites struct {
	XMLName xml.Name         `xml:"testsuites"`
	Suites  []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	XMLName   xml.Name        `xml:"testsuite"`
	Name      string          `xml:"name,attr"`
	ID        string          `xml:"id,attr,omitempty"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      string          `xml:"time,attr"`
	Timestamp string          `xml:"timestamp,attr,omitempty"`
	Cases     []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	XMLName   xml.Name      `xml:"testcase"`
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      string        `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr,omitempty"`
	Data    string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr"`
}

func (j *junitReporter) Flush() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.path == "" {
		return fmt.Errorf("junit reporter missing output path")
	}
	if j.report == nil {
		return nil
	}

	data, err := marshalJUnit(j.report)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return fmt.Errorf("creating junit report directory: %w", err)
	}
	if err := os.WriteFile(j.path, data, 0o644); err != nil {
		return fmt.Errorf("writing junit report: %w", err)
	}
	return nil
}

func marshalJUnit(rep *model.Report) ([]byte, error) {
	suite := junitTestSuite{
		Name:     "dsenv " + rep.Environment.Name,
		ID:       rep.RunID,
		Tests:    len(rep.Steps),
		Failures: len(rep.Failed()),
		Time:     fmt.Sprintf("%.6f", rep.Duration.Seconds()),
		Cases:    make([]junitTestCase, 0, len(rep.Steps)),
	}
	if !rep.StartedAt.IsZero() {
		suite.Timestamp = rep.StartedAt.Format("2006-01-02T15:04:05")
	}

	for _, step := range rep.Steps {
		tc := junitTestCase{
			Name:      step.Name,
			ClassName: string(step.Phase),
			Time:      fmt.Sprintf("%.6f", step.Duration.Seconds()),
		}
		switch step.Status {
		case model.StatusFailed:
			tc.Failure = &junitFailure{
				Message: step.Error,
				Type:    fmt.Sprintf("exit status %d", step.ExitCode),
				Data:    step.Output,
			}
		case model.StatusSkipped:
			tc.Skipped = &junitSkipped{Message: step.SkipReason}
			suite.Skipped++
		}
		suite.Cases = append(suite.Cases, tc)
	}

	data, err := xml.MarshalIndent(junitTestSuites{Suites: []junitTestSuite{suite}}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("serializing junit report: %w", err)
	}
	return append([]byte(xml.Header), append(data, '\n')...), nil
}
