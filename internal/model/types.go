package model

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Environment describes the isolated runtime environment to provision:
// a name and a pinned interpreter version. It is created once and never
// mutated afterwards.
type Environment struct {
	// Name is the environment name passed to the environment manager.
	Name string `json:"name" yaml:"name" mapstructure:"name"`

	// Python is the pinned interpreter version (e.g., "3.8").
	Python string `json:"python" yaml:"python" mapstructure:"python"`
}

// nameRegex accepts the characters conda allows in environment names
// without quoting: letters, digits, '-', '_' and '.', starting with a
// letter or digit.
var nameRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)

// pythonRegex accepts dotted numeric versions such as "3", "3.8" or "3.8.10".
var pythonRegex = regexp.MustCompile(`^[0-9]+(\.[0-9]+){0,2}$`)

// Validate checks that the descriptor can be handed to the environment
// manager as-is.
func (e Environment) Validate() error {
	if e.Name == "" {
		return fmt.Errorf("environment name must not be empty")
	}
	if !nameRegex.MatchString(e.Name) {
		return fmt.Errorf("invalid environment name %q: must contain only letters, digits, '.', '_' or '-', and start with a letter or digit", e.Name)
	}
	if !pythonRegex.MatchString(e.Python) {
		return fmt.Errorf("invalid python version %q: expected a dotted version like 3.8", e.Python)
	}
	return nil
}

// String returns "name (python X.Y)".
func (e Environment) String() string {
	return fmt.Sprintf("%s (python %s)", e.Name, e.Python)
}

// Tool is an optional notebook tool installed with the environment manager
// from a named channel.
type Tool struct {
	// Package is the package name resolved by the environment manager.
	Package string `json:"package" yaml:"package" mapstructure:"package"`

	// Channel overrides the default channel for this tool. Empty means
	// the configured default channel.
	Channel string `json:"channel,omitempty" yaml:"channel,omitempty" mapstructure:"channel"`
}

// ExtensionKind tells the provisioner how an extension is turned on.
type ExtensionKind string

const (
	// KindNBExtension is enabled with `jupyter nbextension enable <id>`.
	KindNBExtension ExtensionKind = "nbextension"

	// KindPin is a compatibility shim: a pinned package installed with pip.
	// Its identifier is the pip requirement specifier (e.g., "jedi==0.17.2").
	KindPin ExtensionKind = "pin"
)

// String returns the string representation of ExtensionKind.
func (k ExtensionKind) String() string {
	return string(k)
}

// IsValid checks whether the ExtensionKind is one of the known kinds.
func (k ExtensionKind) IsValid() bool {
	switch k {
	case KindNBExtension, KindPin:
		return true
	default:
		return false
	}
}

// ParseExtensionKind converts a string to an ExtensionKind.
// An empty string defaults to KindNBExtension.
func ParseExtensionKind(s string) (ExtensionKind, error) {
	if s == "" {
		return KindNBExtension, nil
	}
	kind := ExtensionKind(strings.ToLower(s))
	if !kind.IsValid() {
		return "", fmt.Errorf("invalid extension kind: %q (valid: nbextension, pin)", s)
	}
	return kind, nil
}

// Extension is an optional, independently toggleable notebook feature.
// It is enabled once and not tracked afterwards.
type Extension struct {
	// ID is the fixed identifier passed to the enable action.
	ID string `json:"id" yaml:"id" mapstructure:"id"`

	// Title is a short human-readable description.
	Title string `json:"title,omitempty" yaml:"title,omitempty" mapstructure:"title"`

	// Kind selects the enable action.
	Kind ExtensionKind `json:"kind,omitempty" yaml:"kind,omitempty" mapstructure:"kind"`
}

// ErrorPolicy decides what happens after a step fails.
type ErrorPolicy string

const (
	// PolicyFailFast aborts the remaining sequence on the first failure.
	PolicyFailFast ErrorPolicy = "fail-fast"

	// PolicyContinue keeps running later steps whose requirements succeeded.
	PolicyContinue ErrorPolicy = "continue"
)

// String returns the string representation of ErrorPolicy.
func (p ErrorPolicy) String() string {
	return string(p)
}

// ParseErrorPolicy converts a string to an ErrorPolicy.
func ParseErrorPolicy(s string) (ErrorPolicy, error) {
	switch p := ErrorPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case PolicyFailFast, PolicyContinue:
		return p, nil
	default:
		return "", fmt.Errorf("invalid error policy: %q (valid: fail-fast, continue)", s)
	}
}

// Phase groups steps for display. Phases run in the order declared here.
type Phase string

const (
	PhaseCreate     Phase = "create"
	PhaseActivate   Phase = "activate"
	PhaseInstall    Phase = "install"
	PhaseTools      Phase = "tools"
	PhaseExtensions Phase = "extensions"
)

// StepStatus is the outcome of a single provisioning step.
type StepStatus string

const (
	StatusPending   StepStatus = "pending"
	StatusSucceeded StepStatus = "succeeded"
	StatusFailed    StepStatus = "failed"
	StatusSkipped   StepStatus = "skipped"
)

// String returns the string representation of StepStatus.
func (s StepStatus) String() string {
	return string(s)
}

// PlannedStep describes a step before it runs. Command is a preview of the
// tool invocation; paths inside the environment are shown with a
// placeholder prefix until the environment has been located.
type PlannedStep struct {
	Name     string   `json:"name" yaml:"name"`
	Phase    Phase    `json:"phase" yaml:"phase"`
	Requires []string `json:"requires,omitempty" yaml:"requires,omitempty"`
	Command  string   `json:"command" yaml:"command"`
}

// StepResult records what happened when one step ran (or why it did not).
type StepResult struct {
	Name       string        `json:"name"`
	Phase      Phase         `json:"phase"`
	Status     StepStatus    `json:"status"`
	Command    string        `json:"command,omitempty"`
	StartedAt  time.Time     `json:"startedAt,omitempty"`
	Duration   time.Duration `json:"duration"`
	ExitCode   int           `json:"exitCode"`
	Error      string        `json:"error,omitempty"`
	SkipReason string        `json:"skipReason,omitempty"`

	// Output holds the tail of the tool's combined output. The full output
	// has already been streamed to the console.
	Output string `json:"output,omitempty"`
}

// Report aggregates the results of one provisioning run.
type Report struct {
	RunID       string        `json:"runId"`
	Environment Environment   `json:"environment"`
	Policy      ErrorPolicy   `json:"policy"`
	Target      string        `json:"target"`
	StartedAt   time.Time     `json:"startedAt"`
	Duration    time.Duration `json:"duration"`
	Steps       []StepResult  `json:"steps"`
}

// NewReport starts an empty report with a fresh run id.
func NewReport(env Environment, policy ErrorPolicy, target string) *Report {
	return &Report{
		RunID:       uuid.NewString(),
		Environment: env,
		Policy:      policy,
		Target:      target,
		StartedAt:   time.Now().UTC(),
		Steps:       []StepResult{},
	}
}

// Failed returns every step that failed, in execution order.
func (r *Report) Failed() []StepResult {
	var failed []StepResult
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			failed = append(failed, s)
		}
	}
	return failed
}

// FirstFailure returns the first failed step, if any.
func (r *Report) FirstFailure() (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Status == StatusFailed {
			return s, true
		}
	}
	return StepResult{}, false
}

// Succeeded reports whether every step succeeded.
func (r *Report) Succeeded() bool {
	for _, s := range r.Steps {
		if s.Status != StatusSucceeded {
			return false
		}
	}
	return true
}

// Counts tallies steps by status.
func (r *Report) Counts() map[StepStatus]int {
	counts := make(map[StepStatus]int, 4)
	for _, s := range r.Steps {
		counts[s.Status]++
	}
	return counts
}

// Step returns the result for the named step.
func (r *Report) Step(name string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return StepResult{}, false
}

// ContainerInfo describes a container that can serve as the docker target.
type ContainerInfo struct {
	// ContainerID is the Docker container identifier.
	ContainerID string `json:"containerId"`

	// ContainerName is the container name without Docker's leading "/".
	ContainerName string `json:"containerName"`

	// Image is the image the container was created from.
	Image string `json:"image,omitempty"`

	// Status is the container state (e.g., "running", "exited").
	Status string `json:"status"`

	// Labels is the full set of Docker labels on the container.
	Labels map[string]string `json:"labels,omitempty"`
}

// ExitCode defines the CLI exit codes. Scripts and CI systems use them to
// tell configuration problems apart from tool failures.
type ExitCode int

const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGeneralError indicates an unspecified error occurred.
	ExitGeneralError ExitCode = 1

	// ExitConfigInvalid indicates the configuration could not be loaded
	// or failed validation.
	ExitConfigInvalid ExitCode = 2

	// ExitDockerNotRunning indicates the Docker daemon or the target
	// container is not accessible.
	ExitDockerNotRunning ExitCode = 3

	// ExitStepFailed indicates at least one provisioning step failed.
	ExitStepFailed ExitCode = 4

	// ExitRequirementsNotFound indicates the requirements file is missing.
	ExitRequirementsNotFound ExitCode = 5

	// ExitToolNotFound indicates a required external tool is not on PATH.
	ExitToolNotFound ExitCode = 6
)

// CLIError is a custom error type that carries an exit code.
// This allows the CLI layer to translate domain errors into
// appropriate process exit codes.
type CLIError struct {
	// Code is the exit code to return to the OS.
	Code ExitCode

	// Message is the human-readable error description.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error satisfies the error interface. It returns the human-readable
// error message, optionally including the underlying error.
func (e *CLIError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *CLIError) Unwrap() error {
	return e.Err
}

// NewCLIError creates a new CLIError with the given exit code and message.
func NewCLIError(code ExitCode, message string) *CLIError {
	return &CLIError{Code: code, Message: message}
}

// WrapCLIError creates a new CLIError that wraps an existing error.
func WrapCLIError(code ExitCode, message string, err error) *CLIError {
	return &CLIError{Code: code, Message: message, Err: err}
}
