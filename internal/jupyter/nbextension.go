// Package jupyter drives the notebook CLI of a located environment.
package jupyter

import (
	"context"

	"github.com/shinji-kodama/dsenv/internal/conda"
	"github.com/shinji-kodama/dsenv/internal/runner"
)

// Notebook runs `jupyter` subcommands from an environment's bin directory.
type Notebook struct {
	runner runner.Runner
}

// NewNotebook creates a Notebook that runs commands through r.
func NewNotebook(r runner.Runner) *Notebook {
	return &Notebook{runner: r}
}

// EnableCommand builds `<jupyter> nbextension enable <id>`.
func (n *Notebook) EnableCommand(h conda.Handle, id string) runner.Command {
	return runner.Command{
		Name: h.Jupyter(),
		Args: []string{"nbextension", "enable", id},
	}
}

// EnableExtension enables the notebook extension id. jupyter writes the
// result into its own nbconfig files; nothing is tracked here.
func (n *Notebook) EnableExtension(ctx context.Context, h conda.Handle, id string) error {
	_, err := n.runner.Run(ctx, n.EnableCommand(h, id))
	return err
}
