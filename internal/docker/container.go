// container.go resolves the container that the docker target runs commands
// in. A container is either named explicitly or discovered through the
// dev.dsenv.target label.
package docker

import (
	"context"
	"fmt"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"

	"github.com/shinji-kodama/dsenv/internal/model"
)

// EnsureRunning inspects the named container and returns its info. It
// fails with ExitDockerNotRunning when the container does not exist or is
// not running.
func EnsureRunning(ctx context.Context, api API, ref string) (model.ContainerInfo, error) {
	resp, err := api.ContainerInspect(ctx, ref)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return model.ContainerInfo{}, model.WrapCLIError(
				model.ExitDockerNotRunning,
				fmt.Sprintf("container %q not found", ref),
				err,
			)
		}
		return model.ContainerInfo{}, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to inspect container %q", ref),
			err,
		)
	}

	info := inspectToInfo(resp)
	if info.Status != "running" {
		return info, model.NewCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("container %q is %s, not running", ref, info.Status),
		)
	}
	return info, nil
}

// ListTargets returns every running container labeled as a target.
func ListTargets(ctx context.Context, api API) ([]model.ContainerInfo, error) {
	containers, err := api.ContainerList(ctx, container.ListOptions{
		Filters: TargetFilter(),
	})
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			"failed to list Docker containers",
			err,
		)
	}

	result := make([]model.ContainerInfo, 0, len(containers))
	for _, c := range containers {
		info := summaryToInfo(c)
		// The daemon only checked that the label exists.
		if IsTarget(info.Labels) {
			result = append(result, info)
		}
	}
	return result, nil
}

// ResolveTarget picks the container to provision. An explicit ref must
// name a running container. Without one, the single running target
// container is used; when several run, the one labeled for envName wins.
func ResolveTarget(ctx context.Context, api API, ref, envName string) (model.ContainerInfo, error) {
	if ref != "" {
		return EnsureRunning(ctx, api, ref)
	}

	targets, err := ListTargets(ctx, api)
	if err != nil {
		return model.ContainerInfo{}, err
	}

	switch len(targets) {
	case 0:
		return model.ContainerInfo{}, model.NewCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("no running container labeled %s=true (set docker.container or --container)", LabelTarget),
		)
	case 1:
		return targets[0], nil
	}

	var matches []model.ContainerInfo
	for _, t := range targets {
		if ParseTargetLabels(t.Labels).Environment == envName {
			matches = append(matches, t)
		}
	}
	if len(matches) == 1 {
		return matches[0], nil
	}

	names := make([]string, 0, len(targets))
	for _, t := range targets {
		names = append(names, t.ContainerName)
	}
	return model.ContainerInfo{}, model.NewCLIError(
		model.ExitConfigInvalid,
		fmt.Sprintf("%d target containers are running (%s); choose one with --container",
			len(targets), strings.Join(names, ", ")),
	)
}

// summaryToInfo converts a ContainerList entry. Docker prefixes names
// with "/", which is stripped.
func summaryToInfo(c container.Summary) model.ContainerInfo {
	name := ""
	if len(c.Names) > 0 {
		name = strings.TrimPrefix(c.Names[0], "/")
	}
	return model.ContainerInfo{
		ContainerID:   c.ID,
		ContainerName: name,
		Image:         c.Image,
		Status:        string(c.State),
		Labels:        c.Labels,
	}
}

func inspectToInfo(resp container.InspectResponse) model.ContainerInfo {
	var info model.ContainerInfo
	if resp.ContainerJSONBase != nil {
		info.ContainerID = resp.ID
		info.ContainerName = strings.TrimPrefix(resp.Name, "/")
		info.Image = resp.Image
		if resp.State != nil {
			info.Status = string(resp.State.Status)
			if resp.State.Running {
				info.Status = "running"
			}
		}
	}
	if resp.Config != nil {
		info.Labels = resp.Config.Labels
		if resp.Config.Image != "" {
			info.Image = resp.Config.Image
		}
	}
	return info
}
