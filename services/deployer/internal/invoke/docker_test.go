package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDocker struct {
	stdout   string
	stderr   string
	exit     int64
	pullErr  error
	startErr error

	pulled  string
	config  *container.Config
	host    *container.HostConfig
	name    string
	removed []string
	closed  bool
}

func (f *fakeDocker) ImagePull(_ context.Context, ref string, _ image.PullOptions) (io.ReadCloser, error) {
	if f.pullErr != nil {
		return nil, f.pullErr
	}
	f.pulled = ref
	return io.NopCloser(bytes.NewBufferString(`{"status":"Downloaded"}`)), nil
}

func (f *fakeDocker) ContainerCreate(_ context.Context, cfg *container.Config, host *container.HostConfig, _ *network.NetworkingConfig, _ *ocispec.Platform, name string) (container.CreateResponse, error) {
	f.config, f.host, f.name = cfg, host, name
	return container.CreateResponse{ID: "c1"}, nil
}

func (f *fakeDocker) ContainerStart(context.Context, string, container.StartOptions) error {
	return f.startErr
}

func (f *fakeDocker) ContainerWait(context.Context, string, container.WaitCondition) (<-chan container.WaitResponse, <-chan error) {
	statusCh := make(chan container.WaitResponse, 1)
	errCh := make(chan error, 1)
	statusCh <- container.WaitResponse{StatusCode: f.exit}
	return statusCh, errCh
}

func (f *fakeDocker) ContainerLogs(context.Context, string, container.LogsOptions) (io.ReadCloser, error) {
	var buf bytes.Buffer
	if f.stdout != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(f.stdout))
	}
	if f.stderr != "" {
		_, _ = stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(f.stderr))
	}
	return io.NopCloser(&buf), nil
}

func (f *fakeDocker) ContainerRemove(_ context.Context, id string, opts container.RemoveOptions) error {
	if opts.Force {
		f.removed = append(f.removed, id)
	}
	return nil
}

func (f *fakeDocker) Close() error {
	f.closed = true
	return nil
}

func TestDockerRunnerSuccess(t *testing.T) {
	api := &fakeDocker{
		stdout: "{\"statusCode\":200}\n",
		stderr: "START RequestId: 1\nEND RequestId: 1\n",
	}
	runner := newDockerRunner(api, "", api)
	src := t.TempDir()

	res, err := runner.Run(context.Background(), "nodejs6.10", "index.handler", src, json.RawMessage(`{"a":1}`))
	require.NoError(t, err)

	assert.Equal(t, "lambci/lambda:nodejs6.10", api.pulled)
	assert.Equal(t, "lambci/lambda:nodejs6.10", api.config.Image)
	assert.Equal(t, []string{"index.handler", `{"a":1}`}, []string(api.config.Cmd))
	assert.Contains(t, api.name, "lmb-test-")
	require.Len(t, api.host.Mounts, 1)
	assert.Equal(t, mount.Mount{Type: mount.TypeBind, Source: src, Target: "/var/task", ReadOnly: true}, api.host.Mounts[0])
	assert.Equal(t, []string{"c1"}, api.removed)

	assert.JSONEq(t, `{"statusCode":200}`, string(res.Payload))
	assert.Equal(t, []string{"START RequestId: 1", "END RequestId: 1"}, res.Log)
	assert.Zero(t, res.ExitCode)

	require.NoError(t, runner.Close())
	assert.True(t, api.closed)
}

func TestDockerRunnerNonZeroExit(t *testing.T) {
	api := &fakeDocker{
		stdout: "{\"errorMessage\":\"boom\"}\n",
		stderr: "START\nboom\n",
		exit:   1,
	}
	res, err := newDockerRunner(api, "custom/image", nil).Run(context.Background(), "python3.6", "index.handler", t.TempDir(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
	assert.Equal(t, int64(1), res.ExitCode)
	assert.JSONEq(t, `{"errorMessage":"boom"}`, string(res.Payload))
	assert.Equal(t, "custom/image:python3.6", api.pulled)
	assert.Equal(t, []string{"index.handler", `{}`}, []string(api.config.Cmd))
	assert.Equal(t, []string{"c1"}, api.removed)
}

func TestDockerRunnerFailures(t *testing.T) {
	pullErr := errors.New("no such image")
	_, err := newDockerRunner(&fakeDocker{pullErr: pullErr}, "", nil).Run(context.Background(), "nodejs6.10", "index.handler", t.TempDir(), nil)
	require.ErrorIs(t, err, pullErr)

	startErr := errors.New("cannot start")
	api := &fakeDocker{startErr: startErr}
	_, err = newDockerRunner(api, "", nil).Run(context.Background(), "nodejs6.10", "index.handler", t.TempDir(), nil)
	require.ErrorIs(t, err, startErr)
	assert.Equal(t, []string{"c1"}, api.removed)

	_, err = newDockerRunner(&fakeDocker{}, "", nil).Run(context.Background(), "nodejs6.10", "nohandler", t.TempDir(), nil)
	require.Error(t, err)

	var nilRunner *DockerRunner
	_, err = nilRunner.Run(context.Background(), "nodejs6.10", "index.handler", t.TempDir(), nil)
	require.Error(t, err)
	require.NoError(t, nilRunner.Close())
}
