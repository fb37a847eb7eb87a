// Package docker provides the docker target: provisioning commands run
// inside an already running container instead of on the host.
//
// This package handles:
//   - Docker client initialization with automatic socket detection
//     (Linux, macOS, Windows)
//   - Resolving the target container, either by name or through the
//     dev.dsenv.target label
//   - A runner.Runner implementation on top of the exec API, with the
//     multiplexed output split back into stdout and stderr
//
// The package uses github.com/docker/docker/client as the underlying
// Docker SDK, with version negotiation enabled for broad compatibility.
package docker
