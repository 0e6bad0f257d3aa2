package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"

	"lmb/services/deployer/internal/config"
)

const taskDir = "/var/task"

// containerAPI is the part of the docker client the runner uses.
type containerAPI interface {
	ImagePull(ctx context.Context, ref string, options image.PullOptions) (io.ReadCloser, error)
	ContainerCreate(ctx context.Context, config *container.Config, hostConfig *container.HostConfig, networkingConfig *network.NetworkingConfig, platform *ocispec.Platform, containerName string) (container.CreateResponse, error)
	ContainerStart(ctx context.Context, containerID string, options container.StartOptions) error
	ContainerWait(ctx context.Context, containerID string, condition container.WaitCondition) (<-chan container.WaitResponse, <-chan error)
	ContainerLogs(ctx context.Context, containerID string, options container.LogsOptions) (io.ReadCloser, error)
	ContainerRemove(ctx context.Context, containerID string, options container.RemoveOptions) error
}

// DockerResult is the outcome of a containerized run.
type DockerResult struct {
	Payload  json.RawMessage
	Log      []string
	ExitCode int64
}

// DockerRunner runs a handler inside the lambci/lambda image matching its runtime,
// with the source directory mounted read-only at /var/task.
type DockerRunner struct {
	api    containerAPI
	image  string
	closer io.Closer
}

// NewDockerRunner connects to the docker daemon configured in the environment.
// repo is the image repository; the runtime becomes the tag.
func NewDockerRunner(repo string) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	return newDockerRunner(cli, repo, cli), nil
}

func newDockerRunner(api containerAPI, repo string, closer io.Closer) *DockerRunner {
	if strings.TrimSpace(repo) == "" {
		repo = config.DefaultDockerImage
	}
	return &DockerRunner{api: api, image: repo, closer: closer}
}

// Close releases the docker client.
func (d *DockerRunner) Close() error {
	if d == nil || d.closer == nil {
		return nil
	}
	return d.closer.Close()
}

// ImageRef returns the image used for runtime.
func (d *DockerRunner) ImageRef(runtime string) string {
	return d.image + ":" + runtime
}

// Run executes handler with payload. The container's stdout is the result and its
// stderr the execution log. A non-zero exit is reported as an error together with
// whatever the container produced.
func (d *DockerRunner) Run(ctx context.Context, runtime, handler, sourceDir string, payload json.RawMessage) (DockerResult, error) {
	if d == nil || d.api == nil {
		return DockerResult{}, errors.New("nil docker runner")
	}
	if _, err := ParseHandlerRef(handler); err != nil {
		return DockerResult{}, err
	}
	src, err := filepath.Abs(sourceDir)
	if err != nil {
		return DockerResult{}, err
	}
	if len(payload) == 0 {
		payload = emptyEvent
	}
	ref := d.ImageRef(runtime)

	if err := d.pull(ctx, ref); err != nil {
		return DockerResult{}, err
	}

	name := "lmb-test-" + uuid.NewString()
	created, err := d.api.ContainerCreate(ctx,
		&container.Config{
			Image:  ref,
			Cmd:    []string{handler, string(payload)},
			Labels: map[string]string{"lmb.handler": handler},
		},
		&container.HostConfig{
			Mounts: []mount.Mount{{
				Type:     mount.TypeBind,
				Source:   src,
				Target:   taskDir,
				ReadOnly: true,
			}},
		},
		nil, nil, name)
	if err != nil {
		return DockerResult{}, fmt.Errorf("create container %s: %w", name, err)
	}
	defer d.api.ContainerRemove(context.WithoutCancel(ctx), created.ID, container.RemoveOptions{Force: true})

	if err := d.api.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return DockerResult{}, fmt.Errorf("start container %s: %w", name, err)
	}

	exitCode, err := d.wait(ctx, created.ID)
	if err != nil {
		return DockerResult{}, err
	}

	logs, err := d.api.ContainerLogs(ctx, created.ID, container.LogsOptions{ShowStdout: true, ShowStderr: true})
	if err != nil {
		return DockerResult{}, fmt.Errorf("container logs %s: %w", name, err)
	}
	defer logs.Close()

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, logs); err != nil {
		return DockerResult{}, fmt.Errorf("read container output %s: %w", name, err)
	}

	res := DockerResult{ExitCode: exitCode, Log: splitLines(stderr.String())}
	out := lastLine(stdout.String())
	if out != "" && json.Valid([]byte(out)) {
		res.Payload = json.RawMessage(out)
	}
	if exitCode != 0 {
		msg := lastLine(stderr.String())
		if msg == "" {
			msg = fmt.Sprintf("exited with status %d", exitCode)
		}
		return res, fmt.Errorf("handler %s: %s", handler, msg)
	}
	return res, nil
}

func (d *DockerRunner) pull(ctx context.Context, ref string) error {
	reader, err := d.api.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", ref, err)
	}
	defer reader.Close()
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return fmt.Errorf("pull %s: %w", ref, err)
	}
	return nil
}

func (d *DockerRunner) wait(ctx context.Context, id string) (int64, error) {
	statusCh, errCh := d.api.ContainerWait(ctx, id, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		return 0, fmt.Errorf("wait for container: %w", err)
	case status := <-statusCh:
		if status.Error != nil && status.Error.Message != "" {
			return 0, fmt.Errorf("wait for container: %s", status.Error.Message)
		}
		return status.StatusCode, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

func splitLines(s string) []string {
	s = strings.TrimRight(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}
