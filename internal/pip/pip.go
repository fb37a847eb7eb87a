// Package pip drives the secondary installer inside a located conda
// environment.
//
// pip is invoked as `<python> -m pip` through the environment's own
// interpreter, so packages always land in that environment regardless of
// which pip is first on PATH.
package pip

import (
	"context"

	"github.com/shinji-kodama/dsenv/internal/conda"
	"github.com/shinji-kodama/dsenv/internal/runner"
)

// Installer runs pip inside an environment.
type Installer struct {
	runner runner.Runner
}

// NewInstaller creates an Installer that runs commands through r.
func NewInstaller(r runner.Runner) *Installer {
	return &Installer{runner: r}
}

// RequirementsCommand builds `<python> -m pip install -r <path>`. The path
// is passed through unchanged; the requirements file is never read here.
func (i *Installer) RequirementsCommand(h conda.Handle, path string) runner.Command {
	return runner.Command{
		Name: h.Python(),
		Args: []string{"-m", "pip", "install", "-r", path},
	}
}

// InstallRequirements installs every package listed in the requirements
// file at path into the environment behind h.
func (i *Installer) InstallRequirements(ctx context.Context, h conda.Handle, path string) error {
	_, err := i.runner.Run(ctx, i.RequirementsCommand(h, path))
	return err
}

// PinnedCommand builds `<python> -m pip install <spec>`.
func (i *Installer) PinnedCommand(h conda.Handle, spec string) runner.Command {
	return runner.Command{
		Name: h.Python(),
		Args: []string{"-m", "pip", "install", spec},
	}
}

// InstallPinned installs a single requirement specifier such as
// "jedi==0.17.2".
func (i *Installer) InstallPinned(ctx context.Context, h conda.Handle, spec string) error {
	_, err := i.runner.Run(ctx, i.PinnedCommand(h, spec))
	return err
}
