package provision

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/dsenv/internal/conda"
	"github.com/shinji-kodama/dsenv/internal/config"
	"github.com/shinji-kodama/dsenv/internal/model"
	"github.com/shinji-kodama/dsenv/internal/runner"
	"github.com/shinji-kodama/dsenv/internal/runner/runnertest"
)

func TestBuildPlan_Default(t *testing.T) {
	cfg := config.Default()
	plan, err := BuildPlan(cfg, NewDeps(runnertest.New("linux"), cfg.Conda), "linux")
	require.NoError(t, err)

	var names []string
	for _, s := range plan.Steps {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{
		"create",
		"activate",
		"install-requirements",
		"tool/notebook",
		"tool/nb_conda_kernels",
		"tool/jupyter_contrib_nbextensions",
		"tool/jupytext",
		"extension/collapsible_headings/main",
		"extension/execute_time/ExecuteTime",
		"extension/hinterland/hinterland",
		"extension/jedi==0.17.2",
		"extension/spellchecker/main",
		"extension/toc2/main",
	}, names)
}

// TestBuildPlan_Preview verifies previews render without touching the
// tools, using a placeholder prefix for paths inside the environment.
func TestBuildPlan_Preview(t *testing.T) {
	fake := runnertest.New("linux")
	cfg := config.Default()
	cfg.Notebook.Tools = []model.Tool{{Package: "jupytext", Channel: "defaults"}}
	cfg.Notebook.Extensions = cfg.Notebook.Extensions[3:5]

	plan, err := BuildPlan(cfg, NewDeps(fake, "mamba"), "linux")
	require.NoError(t, err)

	preview := plan.Preview()
	require.Len(t, preview, 6)
	assert.Empty(t, fake.Calls())

	assert.Equal(t, model.PlannedStep{Name: "create", Phase: model.PhaseCreate, Command: "mamba create --yes --name mlb python=3.8 pip"}, preview[0])
	assert.Equal(t, "mamba env list --json", preview[1].Command)
	assert.Equal(t, "<mlb>/bin/python -m pip install -r requirements.txt", preview[2].Command)
	assert.Equal(t, []string{"activate"}, preview[2].Requires)
	assert.Equal(t, "mamba install --yes --name mlb --channel defaults jupytext", preview[3].Command)
	assert.Equal(t, "<mlb>/bin/python -m pip install jedi==0.17.2", preview[4].Command)
	assert.Equal(t, "<mlb>/bin/jupyter nbextension enable spellchecker/main", preview[5].Command)
}

func TestBuildPlan_Options(t *testing.T) {
	t.Run("notebook disabled", func(t *testing.T) {
		cfg := config.Default()
		cfg.Notebook.Enabled = false
		plan, err := BuildPlan(cfg, NewDeps(runnertest.New(""), ""), "linux")
		require.NoError(t, err)
		assert.Len(t, plan.Steps, 3)
	})

	t.Run("recreate", func(t *testing.T) {
		cfg := config.Default()
		cfg.Environment.Recreate = true
		plan, err := BuildPlan(cfg, NewDeps(runnertest.New(""), ""), "linux")
		require.NoError(t, err)
		assert.Equal(t, StepRemove, plan.Steps[0].Name)
		assert.Equal(t, StepCreate, plan.Steps[1].Name)
	})

	t.Run("windows paths", func(t *testing.T) {
		cfg := config.Default()
		cfg.Notebook.Enabled = false
		plan, err := BuildPlan(cfg, NewDeps(runnertest.New("windows"), ""), "windows")
		require.NoError(t, err)
		assert.Equal(t, `'<mlb>\python.exe' -m pip install -r requirements.txt`, plan.Preview()[2].Command)
	})

	t.Run("duplicate extension", func(t *testing.T) {
		cfg := config.Default()
		cfg.Notebook.Extensions = append(cfg.Notebook.Extensions, cfg.Notebook.Extensions[0])
		_, err := BuildPlan(cfg, NewDeps(runnertest.New(""), ""), "linux")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate step")
	})

	t.Run("invalid extension kind", func(t *testing.T) {
		cfg := config.Default()
		cfg.Notebook.Extensions = []model.Extension{{ID: "x/main", Kind: "lab"}}
		_, err := BuildPlan(cfg, NewDeps(runnertest.New(""), ""), "linux")
		assert.Error(t, err)
	})
}

func TestPlan_Validate(t *testing.T) {
	noop := func(context.Context, *State) error { return nil }
	cmd := func(*State) runner.Command { return runner.Command{Name: "true"} }

	tests := []struct {
		name    string
		steps   []Step
		wantErr string
	}{
		{"ok", []Step{
			{Name: "a", Command: cmd, Action: noop},
			{Name: "b", Requires: []string{"a"}, Command: cmd, Action: noop},
		}, ""},
		{"unnamed", []Step{{Command: cmd, Action: noop}}, "no name"},
		{"duplicate", []Step{
			{Name: "a", Command: cmd, Action: noop},
			{Name: "a", Command: cmd, Action: noop},
		}, "duplicate step"},
		{"forward requirement", []Step{
			{Name: "a", Requires: []string{"b"}, Command: cmd, Action: noop},
			{Name: "b", Command: cmd, Action: noop},
		}, `requires "b"`},
		{"self requirement", []Step{
			{Name: "a", Requires: []string{"a"}, Command: cmd, Action: noop},
		}, `requires "a"`},
		{"no action", []Step{{Name: "a", Command: cmd}}, "no action"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := (&Plan{Steps: tt.steps}).Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestState(t *testing.T) {
	st := NewState("mlb", "linux")
	assert.False(t, st.Active())
	assert.Equal(t, "<mlb>", st.Handle().Prefix)

	_, err := st.activeHandle()
	assert.ErrorIs(t, err, ErrNotActivated)

	st.Activate(conda.Handle{Name: "mlb", Prefix: "/opt/conda/envs/mlb", OS: "linux"})
	assert.True(t, st.Active())
	h, err := st.activeHandle()
	require.NoError(t, err)
	assert.Equal(t, "/opt/conda/envs/mlb", h.Prefix)
}
