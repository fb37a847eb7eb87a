package docker

import (
	"strconv"

	"github.com/docker/docker/api/types/filters"
)

// Label keys that mark a container as a provisioning target. Containers
// carry them from their image or compose file; dsenv only reads them.
//
// All keys share the "dev.dsenv." prefix to avoid collisions with labels
// set by other tools (Docker Compose, VS Code, etc.).
const (
	// LabelPrefix is the common prefix for all dsenv labels.
	LabelPrefix = "dev.dsenv."

	// LabelTarget marks a container as eligible for provisioning.
	// Key: "dev.dsenv.target", Value: "true".
	LabelTarget = LabelPrefix + "target"

	// LabelEnvironment optionally names the environment the container is
	// meant to host. When several target containers run, the one whose
	// value matches the configured environment name is chosen.
	LabelEnvironment = LabelPrefix + "environment"

	// LabelUser optionally names the user commands should run as.
	LabelUser = LabelPrefix + "user"

	// LabelWorkdir optionally sets the working directory for commands.
	LabelWorkdir = LabelPrefix + "workdir"
)

// TargetFilter builds the Docker API filter for running containers that
// carry the target label. The daemon matches label values exactly, so the
// value itself is checked with IsTarget.
func TargetFilter() filters.Args {
	return filters.NewArgs(
		filters.Arg("label", LabelTarget),
		filters.Arg("status", "running"),
	)
}

// IsTarget reports whether labels mark a container as a target. Any value
// strconv.ParseBool accepts as true counts.
func IsTarget(labels map[string]string) bool {
	v, ok := labels[LabelTarget]
	if !ok {
		return false
	}
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// TargetOptions are the exec defaults a container declares through its
// labels. Empty fields mean the label is absent.
type TargetOptions struct {
	Environment string
	User        string
	Workdir     string
}

// ParseTargetLabels extracts the exec defaults from a container's labels.
func ParseTargetLabels(labels map[string]string) TargetOptions {
	return TargetOptions{
		Environment: labels[LabelEnvironment],
		User:        labels[LabelUser],
		Workdir:     labels[LabelWorkdir],
	}
}
