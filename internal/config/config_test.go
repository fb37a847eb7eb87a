package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shinji-kodama/dsenv/internal/model"
)

// writeFile creates name under dir with the given contents.
func writeFile(t *testing.T, dir, name, contents string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(contents), 0o644))
	return p
}

// testLoader returns a Loader confined to temporary directories so the
// developer's own config files never leak into tests.
func testLoader(t *testing.T) (*Loader, string, string) {
	t.Helper()
	work := t.TempDir()
	home := t.TempDir()
	return &Loader{WorkDir: work, HomeDir: home}, work, home
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "mlb", cfg.Environment.Name)
	assert.Equal(t, "3.8", cfg.Environment.Python)
	assert.Equal(t, "requirements.txt", cfg.Requirements)
	assert.Equal(t, "conda-forge", cfg.Channel)
	assert.Equal(t, model.PolicyFailFast, cfg.Policy)
	assert.Equal(t, TargetLocal, cfg.Target)
	assert.True(t, cfg.Notebook.Enabled)

	var pkgs []string
	for _, tool := range cfg.Notebook.Tools {
		pkgs = append(pkgs, tool.Package)
	}
	assert.Equal(t, []string{"notebook", "nb_conda_kernels", "jupyter_contrib_nbextensions", "jupytext"}, pkgs)

	require.Len(t, cfg.Notebook.Extensions, 6)
	pins := 0
	for _, ext := range cfg.Notebook.Extensions {
		if ext.Kind == model.KindPin {
			pins++
			assert.Equal(t, "jedi==0.17.2", ext.ID)
		}
	}
	assert.Equal(t, 1, pins)

	assert.NoError(t, cfg.Validate())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"empty name", func(c *Config) { c.Environment.Name = "" }, "environment"},
		{"bad python", func(c *Config) { c.Environment.Python = "three" }, "environment"},
		{"empty conda", func(c *Config) { c.Conda = " " }, "conda"},
		{"empty requirements", func(c *Config) { c.Requirements = "" }, "requirements"},
		{"bad policy", func(c *Config) { c.Policy = "retry" }, "policy"},
		{"negative timeout", func(c *Config) { c.StepTimeout = -time.Second }, "stepTimeout"},
		{"bad target", func(c *Config) { c.Target = "ssh" }, "target"},
		{"empty tool", func(c *Config) { c.Notebook.Tools = append(c.Notebook.Tools, model.Tool{}) }, "notebook.tools[4]"},
		{"duplicate tool", func(c *Config) {
			c.Notebook.Tools = append(c.Notebook.Tools, model.Tool{Package: "jupytext"})
		}, "notebook.tools[4]"},
		{"duplicate extension", func(c *Config) {
			c.Notebook.Extensions = append(c.Notebook.Extensions, model.Extension{ID: "toc2/main"})
		}, "notebook.extensions[6]"},
		{"bad extension kind", func(c *Config) { c.Notebook.Extensions[0].Kind = "labextension" }, "notebook.extensions[0]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, IsValidationError(err))

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs))
			require.Len(t, verrs, 1)
			assert.Equal(t, tt.field, verrs[0].Field)
		})
	}
}

// TestValidate_CollectsAll verifies every problem is reported in one pass.
func TestValidate_CollectsAll(t *testing.T) {
	cfg := Default()
	cfg.Environment.Name = ""
	cfg.Target = "nowhere"

	var verrs ValidationErrors
	require.True(t, errors.As(cfg.Validate(), &verrs))
	assert.Len(t, verrs, 2)
	assert.Contains(t, verrs.Error(), "invalid configuration: ")
}

// TestValidate_DefaultsExtensionKind verifies an omitted kind is normalized
// to nbextension.
func TestValidate_DefaultsExtensionKind(t *testing.T) {
	cfg := Default()
	cfg.Notebook.Extensions = []model.Extension{{ID: "codefolding/main"}}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, model.KindNBExtension, cfg.Notebook.Extensions[0].Kind)
}

// TestValidate_NormalizesPolicy verifies a policy is stored in its
// canonical spelling once it parses.
func TestValidate_NormalizesPolicy(t *testing.T) {
	cfg := Default()
	cfg.Policy = " Fail-Fast "

	require.NoError(t, cfg.Validate())
	assert.Equal(t, model.PolicyFailFast, cfg.Policy)

	cfg.Policy = "CONTINUE"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, model.PolicyContinue, cfg.Policy)
}

func TestLoad_NoFile(t *testing.T) {
	l, _, _ := testLoader(t)

	cfg, path, err := l.Load("")
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAML(t *testing.T) {
	l, work, _ := testLoader(t)
	want := writeFile(t, work, "dsenv.yaml", `
environment:
  name: analysis
  python: "3.10"
  recreate: true
requirements: reqs/base.txt
policy: continue
stepTimeout: 10m
notebook:
  tools:
    - notebook
    - package: jupytext
      channel: defaults
  extensions:
    - toc2/main
    - jedi==0.17.2
`)

	cfg, path, err := l.Load("")
	require.NoError(t, err)
	assert.Equal(t, want, path)

	assert.Equal(t, "analysis", cfg.Environment.Name)
	assert.Equal(t, "3.10", cfg.Environment.Python)
	assert.True(t, cfg.Environment.Recreate)
	assert.Equal(t, "reqs/base.txt", cfg.Requirements)
	assert.Equal(t, model.PolicyContinue, cfg.Policy)
	assert.Equal(t, 10*time.Minute, cfg.StepTimeout)

	// Unset keys keep their defaults.
	assert.Equal(t, "conda", cfg.Conda)
	assert.Equal(t, "conda-forge", cfg.Channel)
	assert.True(t, cfg.Notebook.Enabled)

	assert.Equal(t, []model.Tool{
		{Package: "notebook"},
		{Package: "jupytext", Channel: "defaults"},
	}, cfg.Notebook.Tools)
	assert.Equal(t, []model.Extension{
		{ID: "toc2/main", Kind: model.KindNBExtension},
		{ID: "jedi==0.17.2", Kind: model.KindPin},
	}, cfg.Notebook.Extensions)

	assert.NoError(t, cfg.Validate())
}

// TestLoad_EmptyLists verifies an explicit empty list disables the
// defaults instead of falling back to them.
func TestLoad_EmptyLists(t *testing.T) {
	l, work, _ := testLoader(t)
	writeFile(t, work, "dsenv.yaml", "notebook:\n  tools: []\n  extensions: []\n")

	cfg, _, err := l.Load("")
	require.NoError(t, err)
	assert.Empty(t, cfg.Notebook.Tools)
	assert.Empty(t, cfg.Notebook.Extensions)
}

func TestLoad_JSONC(t *testing.T) {
	l, work, _ := testLoader(t)
	writeFile(t, work, "dsenv.jsonc", `{
  // analysis environment
  "environment": {"name": "nb", "python": "3.9"},
  /* run inside the dev container */
  "target": "docker",
  "docker": {"container": "ds-dev", "user": "jovyan"},
}`)

	cfg, path, err := l.Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(work, "dsenv.jsonc"), path)
	assert.Equal(t, "nb", cfg.Environment.Name)
	assert.Equal(t, TargetDocker, cfg.Target)
	assert.Equal(t, "ds-dev", cfg.Docker.Container)
	assert.Equal(t, "jovyan", cfg.Docker.User)
	assert.NoError(t, cfg.Validate())
}

// TestLoad_HomeFallback verifies the home directory is searched when the
// working directory has no config, and that the working directory wins
// when both exist.
func TestLoad_HomeFallback(t *testing.T) {
	l, work, home := testLoader(t)
	writeFile(t, home, ".dsenv.yaml", "environment:\n  name: from-home\n")

	cfg, path, err := l.Load("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".dsenv.yaml"), path)
	assert.Equal(t, "from-home", cfg.Environment.Name)

	writeFile(t, work, "dsenv.yml", "environment:\n  name: from-work\n")
	cfg, _, err = l.Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-work", cfg.Environment.Name)
}

func TestLoad_EnvOverride(t *testing.T) {
	l, work, _ := testLoader(t)
	writeFile(t, work, "dsenv.yaml", "environment:\n  name: from-file\n")

	t.Setenv("DSENV_ENVIRONMENT_NAME", "from-env")
	t.Setenv("DSENV_POLICY", "continue")
	t.Setenv("DSENV_NOTEBOOK_ENABLED", "false")

	cfg, _, err := l.Load("")
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Environment.Name)
	assert.Equal(t, model.PolicyContinue, cfg.Policy)
	assert.False(t, cfg.Notebook.Enabled)
}

func TestLoad_ExplicitPath(t *testing.T) {
	l, _, _ := testLoader(t)
	dir := t.TempDir()
	p := writeFile(t, dir, "custom.json", `{"requirements": "ci/requirements.txt"}`)

	cfg, path, err := l.Load(p)
	require.NoError(t, err)
	assert.Equal(t, p, path)
	assert.Equal(t, "ci/requirements.txt", cfg.Requirements)
}

func TestLoad_Errors(t *testing.T) {
	t.Run("explicit path missing", func(t *testing.T) {
		l, _, _ := testLoader(t)
		_, _, err := l.Load(filepath.Join(t.TempDir(), "missing.yaml"))
		require.Error(t, err)

		var cliErr *model.CLIError
		require.True(t, errors.As(err, &cliErr))
		assert.Equal(t, model.ExitConfigInvalid, cliErr.Code)
	})

	t.Run("unsupported extension", func(t *testing.T) {
		l, _, _ := testLoader(t)
		p := writeFile(t, t.TempDir(), "dsenv.toml", "name = 'x'\n")
		_, _, err := l.Load(p)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported config format")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		l, work, _ := testLoader(t)
		writeFile(t, work, "dsenv.yaml", "environment: [unclosed\n")
		_, _, err := l.Load("")
		require.Error(t, err)

		var cliErr *model.CLIError
		require.True(t, errors.As(err, &cliErr))
		assert.Equal(t, model.ExitConfigInvalid, cliErr.Code)
	})

	t.Run("bad duration", func(t *testing.T) {
		l, work, _ := testLoader(t)
		writeFile(t, work, "dsenv.yaml", "stepTimeout: soon\n")
		_, _, err := l.Load("")
		assert.Error(t, err)
	})
}

func TestWriteDefault(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "dsenv.yaml")

	require.NoError(t, WriteDefault(p, false))

	data, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# dsenv configuration.")
	assert.Contains(t, string(data), "name: mlb")

	// The written file round-trips to the defaults.
	l, _, _ := testLoader(t)
	cfg, _, err := l.Load(p)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	t.Run("refuses to overwrite", func(t *testing.T) {
		err := WriteDefault(p, false)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "already exists")
	})

	t.Run("force overwrites", func(t *testing.T) {
		require.NoError(t, os.WriteFile(p, []byte("junk"), 0o644))
		require.NoError(t, WriteDefault(p, true))
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.NotEqual(t, "junk", string(data))
	})
}

func TestWriteDefault_JSON(t *testing.T) {
	p := filepath.Join(t.TempDir(), "sub", "dsenv.json")
	require.NoError(t, WriteDefault(p, false))

	l, _, _ := testLoader(t)
	cfg, _, err := l.Load(p)
	require.NoError(t, err)
	assert.Equal(t, "mlb", cfg.Environment.Name)
	assert.Len(t, cfg.Notebook.Extensions, 6)
}
