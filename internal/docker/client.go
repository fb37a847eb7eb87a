package docker

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"

	"github.com/shinji-kodama/dsenv/internal/model"
)

// pingTimeout bounds the daemon health check. Docker Desktop can take a
// few seconds to answer.
const pingTimeout = 5 * time.Second

// windowsPipe is Docker Desktop's named pipe on Windows.
const windowsPipe = `//./pipe/docker_engine`

// API is the subset of the Docker Engine client used by dsenv. The SDK's
// *client.Client satisfies it; tests substitute a fake.
type API interface {
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerExecCreate(ctx context.Context, containerID string, options container.ExecOptions) (container.ExecCreateResponse, error)
	ContainerExecAttach(ctx context.Context, execID string, config container.ExecAttachOptions) (types.HijackedResponse, error)
	ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error)
}

// Client owns the connection to the Docker daemon that hosts the target
// container.
type Client struct {
	inner *client.Client
	host  string
}

// NewClient connects to the daemon named by DOCKER_HOST, or else to the
// first platform socket that exists (see socketCandidates). API version
// negotiation keeps it working against older daemons.
//
// Every failure is a model.CLIError with ExitDockerNotRunning.
func NewClient() (*Client, error) {
	host := os.Getenv("DOCKER_HOST")
	if host == "" {
		detected, err := detectHost(runtime.GOOS)
		if err != nil {
			return nil, model.WrapCLIError(model.ExitDockerNotRunning, "Docker socket not found", err)
		}
		host = detected
	}

	c, err := client.NewClientWithOpts(
		client.WithHost(host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("failed to create Docker client for host %q", host),
			err,
		)
	}
	return &Client{inner: c, host: host}, nil
}

// Host returns the daemon address the client talks to.
func (c *Client) Host() string {
	return c.host
}

// socketCandidates lists the unix sockets to check on goos, most preferred
// first. Newer Docker Desktop releases on macOS may only create the
// per-user socket under home.
func socketCandidates(goos, home string) []string {
	switch goos {
	case "darwin":
		paths := []string{"/var/run/docker.sock"}
		if home != "" {
			paths = append(paths, filepath.Join(home, ".docker", "run", "docker.sock"))
		}
		return paths
	case "windows":
		return nil
	default:
		return []string{"/var/run/docker.sock"}
	}
}

// detectHost returns the daemon URI for goos. On Windows the named pipe is
// dialed, since os.Stat cannot see pipes.
func detectHost(goos string) (string, error) {
	if goos == "windows" {
		conn, err := net.DialTimeout("pipe", windowsPipe, time.Second)
		if err != nil {
			return "", fmt.Errorf("Docker named pipe not found at %s: %w", windowsPipe, err)
		}
		conn.Close()
		return "npipe://" + windowsPipe, nil
	}

	home, _ := os.UserHomeDir()
	return firstSocket(socketCandidates(goos, home))
}

// firstSocket returns the unix:// URI of the first path that exists.
func firstSocket(paths []string) (string, error) {
	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			return "unix://" + path, nil
		}
	}
	return "", fmt.Errorf("Docker socket not found at any of: %v (is Docker running?)", paths)
}

// Ping fails with ExitDockerNotRunning when the daemon does not answer
// within pingTimeout.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.inner.Ping(ctx); err != nil {
		return model.WrapCLIError(
			model.ExitDockerNotRunning,
			fmt.Sprintf("Docker daemon at %s is not responding (is Docker running?)", c.host),
			err,
		)
	}
	return nil
}

// Close releases the connection. It is safe to call more than once.
func (c *Client) Close() error {
	if c.inner != nil {
		return c.inner.Close()
	}
	return nil
}

// API returns the SDK client as the subset the rest of the package uses.
func (c *Client) API() API {
	return c.inner
}
