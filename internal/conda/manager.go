// Package conda wraps the conda CLI: creating, removing and locating named
// environments and installing packages into them from a channel.
//
// Design decisions:
//   - We shell out to conda through a runner.Runner rather than touching
//     conda's on-disk metadata, because conda owns its own locking and
//     solver state.
//   - "Activation" does not mutate the process environment. Locate returns
//     an explicit Handle that carries the environment's interpreter, pip and
//     jupyter paths, and every later step receives that Handle.
package conda

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/shinji-kodama/dsenv/internal/model"
	"github.com/shinji-kodama/dsenv/internal/runner"
)

// DefaultBinary is the executable name used when none is configured.
const DefaultBinary = "conda"

// Manager provides conda environment operations by invoking the conda CLI.
type Manager struct {
	runner runner.Runner
	binary string
}

// NewManager creates a Manager that runs binary (DefaultBinary if empty)
// through r.
func NewManager(r runner.Runner, binary string) *Manager {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Manager{runner: r, binary: binary}
}

// CreateCommand builds `conda create --yes --name <name> python=<ver> pip`.
//
// pip is always requested so the secondary installer exists inside the new
// environment. --yes keeps conda from prompting; dsenv runs unattended.
func (m *Manager) CreateCommand(env model.Environment) runner.Command {
	return runner.Command{
		Name: m.binary,
		Args: []string{"create", "--yes", "--name", env.Name, "python=" + env.Python, "pip"},
	}
}

// Create creates the named environment. conda fails when the name already
// exists; that failure is returned as-is.
func (m *Manager) Create(ctx context.Context, env model.Environment) error {
	_, err := m.runner.Run(ctx, m.CreateCommand(env))
	return err
}

// RemoveCommand builds `conda env remove --yes --name <name>`.
func (m *Manager) RemoveCommand(name string) runner.Command {
	return runner.Command{
		Name: m.binary,
		Args: []string{"env", "remove", "--yes", "--name", name},
	}
}

// Remove deletes the named environment.
func (m *Manager) Remove(ctx context.Context, name string) error {
	_, err := m.runner.Run(ctx, m.RemoveCommand(name))
	return err
}

// InstallCommand builds `conda install --yes --name <name> --channel <ch> <pkg>`.
// An empty channel leaves channel selection to conda's own configuration.
func (m *Manager) InstallCommand(envName, channel, pkg string) runner.Command {
	args := []string{"install", "--yes", "--name", envName}
	if channel != "" {
		args = append(args, "--channel", channel)
	}
	args = append(args, pkg)
	return runner.Command{Name: m.binary, Args: args}
}

// Install installs pkg into the environment behind h.
func (m *Manager) Install(ctx context.Context, h Handle, channel, pkg string) error {
	_, err := m.runner.Run(ctx, m.InstallCommand(h.Name, channel, pkg))
	return err
}

// ListCommand builds `conda env list --json`.
func (m *Manager) ListCommand() runner.Command {
	return runner.Command{
		Name:    m.binary,
		Args:    []string{"env", "list", "--json"},
		Capture: true,
	}
}

// envList mirrors the JSON printed by `conda env list --json`.
type envList struct {
	Envs []string `json:"envs"`
}

// Locate finds the prefix of the named environment and returns a Handle
// for it. This is the explicit replacement for `conda activate`.
func (m *Manager) Locate(ctx context.Context, name string) (Handle, error) {
	res, err := m.runner.Run(ctx, m.ListCommand())
	if err != nil {
		return Handle{}, err
	}

	prefixes, err := parseEnvList(res.Stdout)
	if err != nil {
		return Handle{}, err
	}

	goos := m.runner.OS()
	// The root environment is listed first and is named after its install
	// directory, not "base".
	if name == "base" && len(prefixes) > 0 {
		return Handle{Name: name, Prefix: prefixes[0], OS: goos}, nil
	}
	for _, prefix := range prefixes {
		if baseName(goos, prefix) == name {
			return Handle{Name: name, Prefix: prefix, OS: goos}, nil
		}
	}
	return Handle{}, &EnvNotFoundError{Name: name, Known: len(prefixes)}
}

// EnvNotFoundError is returned by Locate when no environment has the
// requested name.
type EnvNotFoundError struct {
	Name  string
	Known int
}

func (e *EnvNotFoundError) Error() string {
	return fmt.Sprintf("conda environment %q not found among %d environment(s)", e.Name, e.Known)
}

// IsEnvNotFound reports whether err is an EnvNotFoundError.
func IsEnvNotFound(err error) bool {
	var nf *EnvNotFoundError
	return errors.As(err, &nf)
}

// parseEnvList decodes `conda env list --json` output. conda may print
// banners or deprecation notices around the JSON, so decoding starts at
// the first '{'.
func parseEnvList(out string) ([]string, error) {
	start := strings.Index(out, "{")
	if start < 0 {
		return nil, fmt.Errorf("conda env list: no JSON in output")
	}

	var list envList
	dec := json.NewDecoder(strings.NewReader(out[start:]))
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("conda env list: %w", err)
	}
	return list.Envs, nil
}

// baseName returns the last element of prefix using the separator rules
// of the OS the environment lives on, not the OS dsenv runs on.
func baseName(goos, prefix string) string {
	if goos == "windows" {
		prefix = strings.ReplaceAll(prefix, `\`, "/")
	}
	return path.Base(strings.TrimRight(prefix, "/"))
}
