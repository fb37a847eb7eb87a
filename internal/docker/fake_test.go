package docker

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"sync"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/stretchr/testify/require"
)

// fakeAPI is an in-memory API. Each exec streams the frames in stream and
// then reports exitCode.
type fakeAPI struct {
	mu sync.Mutex

	inspect    map[string]container.InspectResponse
	inspectErr error
	list       []container.Summary
	listOpts   container.ListOptions

	stream   []byte
	exitCode int
	block    bool

	created []container.ExecOptions
	target  []string
}

var _ API = (*fakeAPI)(nil)

func (f *fakeAPI) ContainerInspect(_ context.Context, id string) (container.InspectResponse, error) {
	if f.inspectErr != nil {
		return container.InspectResponse{}, f.inspectErr
	}
	return f.inspect[id], nil
}

func (f *fakeAPI) ContainerList(_ context.Context, opts container.ListOptions) ([]container.Summary, error) {
	f.listOpts = opts
	return f.list, nil
}

func (f *fakeAPI) ContainerExecCreate(_ context.Context, id string, opts container.ExecOptions) (container.ExecCreateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, opts)
	f.target = append(f.target, id)
	return container.ExecCreateResponse{ID: "exec-1"}, nil
}

func (f *fakeAPI) ContainerExecAttach(_ context.Context, _ string, _ container.ExecAttachOptions) (types.HijackedResponse, error) {
	local, remote := net.Pipe()
	if f.block {
		// Nothing is ever written to remote, so reads block until the
		// runner closes the connection.
		return types.HijackedResponse{Conn: local, Reader: bufio.NewReader(local)}, nil
	}
	remote.Close()
	return types.HijackedResponse{Conn: local, Reader: bufio.NewReader(bytes.NewReader(f.stream))}, nil
}

func (f *fakeAPI) ContainerExecInspect(_ context.Context, id string) (container.ExecInspect, error) {
	return container.ExecInspect{ExecID: id, ExitCode: f.exitCode}, nil
}

// frames multiplexes stdout and stderr the way the daemon does for
// non-TTY execs.
func frames(t *testing.T, stdout, stderr string) []byte {
	t.Helper()
	var buf bytes.Buffer
	if stdout != "" {
		_, err := stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(stdout))
		require.NoError(t, err)
	}
	if stderr != "" {
		_, err := stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(stderr))
		require.NoError(t, err)
	}
	return buf.Bytes()
}
