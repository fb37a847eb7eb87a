package model

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestEnvironment_Validate checks the name and python version rules.
func TestEnvironment_Validate(t *testing.T) {
	tests := []struct {
		name     string
		env      Environment
		hasError bool
	}{
		{"default", Environment{Name: "mlb", Python: "3.8"}, false},
		{"dots and underscores", Environment{Name: "ds_env.v2", Python: "3.10"}, false},
		{"patch version", Environment{Name: "a", Python: "3.8.10"}, false},
		{"major only", Environment{Name: "a", Python: "3"}, false},
		{"empty name", Environment{Name: "", Python: "3.8"}, true},
		{"leading hyphen", Environment{Name: "-mlb", Python: "3.8"}, true},
		{"space", Environment{Name: "my env", Python: "3.8"}, true},
		{"slash", Environment{Name: "a/b", Python: "3.8"}, true},
		{"empty python", Environment{Name: "mlb", Python: ""}, true},
		{"python with prefix", Environment{Name: "mlb", Python: "python3.8"}, true},
		{"python with operator", Environment{Name: "mlb", Python: ">=3.8"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if tt.hasError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestEnvironment_String(t *testing.T) {
	assert.Equal(t, "mlb (python 3.8)", Environment{Name: "mlb", Python: "3.8"}.String())
}

// TestParseExtensionKind verifies kind parsing, including the empty default.
func TestParseExtensionKind(t *testing.T) {
	tests := []struct {
		input    string
		expected ExtensionKind
		hasError bool
	}{
		{"", KindNBExtension, false},
		{"nbextension", KindNBExtension, false},
		{"PIN", KindPin, false},
		{"labextension", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			kind, err := ParseExtensionKind(tt.input)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, kind)
		})
	}
}

func TestParseErrorPolicy(t *testing.T) {
	tests := []struct {
		input    string
		expected ErrorPolicy
		hasError bool
	}{
		{"fail-fast", PolicyFailFast, false},
		{"Continue", PolicyContinue, false},
		{" continue ", PolicyContinue, false},
		{"", "", true},
		{"retry", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			policy, err := ParseErrorPolicy(tt.input)
			if tt.hasError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, policy)
		})
	}
}

// TestReport_Aggregates covers the helpers the CLI uses to summarize a run.
func TestReport_Aggregates(t *testing.T) {
	r := NewReport(Environment{Name: "mlb", Python: "3.8"}, PolicyContinue, "local")

	_, err := uuid.Parse(r.RunID)
	require.NoError(t, err, "run id should be a UUID")
	assert.True(t, r.Succeeded(), "an empty report has nothing that failed")

	r.Steps = append(r.Steps,
		StepResult{Name: "create", Status: StatusSucceeded},
		StepResult{Name: "install-requirements", Status: StatusFailed, Error: "exit status 1"},
		StepResult{Name: "tool/notebook", Status: StatusSucceeded},
		StepResult{Name: "tool/jupytext", Status: StatusFailed},
		StepResult{Name: "extension/toc2/main", Status: StatusSkipped},
	)

	assert.False(t, r.Succeeded())

	first, ok := r.FirstFailure()
	require.True(t, ok)
	assert.Equal(t, "install-requirements", first.Name)

	failed := r.Failed()
	require.Len(t, failed, 2)
	assert.Equal(t, "tool/jupytext", failed[1].Name)

	counts := r.Counts()
	assert.Equal(t, 2, counts[StatusSucceeded])
	assert.Equal(t, 2, counts[StatusFailed])
	assert.Equal(t, 1, counts[StatusSkipped])

	step, ok := r.Step("tool/notebook")
	require.True(t, ok)
	assert.Equal(t, StatusSucceeded, step.Status)

	_, ok = r.Step("missing")
	assert.False(t, ok)
}

// TestCLIError verifies the custom error type used for exit code mapping.
func TestCLIError(t *testing.T) {
	t.Run("simple error", func(t *testing.T) {
		err := NewCLIError(ExitStepFailed, "step \"create\" failed")
		assert.Equal(t, ExitStepFailed, err.Code)
		assert.Equal(t, "step \"create\" failed", err.Error())
		assert.Nil(t, err.Unwrap())
	})

	t.Run("wrapped error", func(t *testing.T) {
		inner := errors.New("exit status 1")
		err := WrapCLIError(ExitStepFailed, "provisioning failed", inner)
		assert.Contains(t, err.Error(), "exit status 1")
		assert.Equal(t, inner, err.Unwrap())
		assert.True(t, errors.Is(err, inner))
	})
}
