package runtime

import (
	"context"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	imagetypes "github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	dockererrdefs "github.com/docker/docker/errdefs"
	"github.com/rs/zerolog"

	"github.com/maruhq/maru/pkg/errdefs"
	"github.com/maruhq/maru/pkg/log"
	"github.com/maruhq/maru/pkg/types"
)

const stopTimeoutSeconds = 10

// DockerRuntime implements Runtime against a Docker-compatible engine via
// its HTTP API.
type DockerRuntime struct {
	client *client.Client
	logger zerolog.Logger
}

// NewDockerRuntime connects to the local Docker daemon using the standard
// environment configuration and negotiates an API version.
func NewDockerRuntime() (*DockerRuntime, error) {
	dockerClient, err := client.NewClientWithOpts(client.FromEnv)
	if err != nil {
		return nil, errdefs.RuntimeFailure("connect to docker daemon", err)
	}

	negotiateCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	dockerClient.NegotiateAPIVersion(negotiateCtx)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelPing()
	if _, err := dockerClient.Ping(pingCtx); err != nil {
		return nil, errdefs.RuntimeFailure("ping docker daemon", err)
	}

	logger := log.WithComponent("runtime")
	logger.Info().Str("api_version", dockerClient.ClientVersion()).Msg("connected to docker daemon")

	return &DockerRuntime{
		client: dockerClient,
		logger: logger,
	}, nil
}

// Close releases the client connection.
func (r *DockerRuntime) Close() error {
	return r.client.Close()
}

// CreateContainer ensures the image is present, then creates a container
// under the given name. A name collision means a previous attempt already
// created it; the existing container's ID is returned, which makes the
// operation safe to retry.
func (r *DockerRuntime) CreateContainer(ctx context.Context, name, image string, res types.Resources) (string, error) {
	if err := r.ensureImage(ctx, image); err != nil {
		return "", err
	}

	hostConfig := &container.HostConfig{
		Resources: container.Resources{
			NanoCPUs: int64(res.CPUMillis) * 1_000_000,
			Memory:   int64(res.MemoryMB) * 1024 * 1024,
		},
	}

	resp, err := r.client.ContainerCreate(ctx, &container.Config{Image: image}, hostConfig, nil, nil, name)
	if err != nil {
		if dockererrdefs.IsConflict(err) {
			existing, inspectErr := r.client.ContainerInspect(ctx, name)
			if inspectErr != nil {
				return "", errdefs.RuntimeFailure("inspect existing container "+name, inspectErr)
			}
			return existing.ID, nil
		}
		return "", errdefs.RuntimeFailure("create container "+name, err)
	}

	r.logger.Info().Str("container", name).Str("image", image).Msg("container created")
	return resp.ID, nil
}

// StartContainer starts a created container.
func (r *DockerRuntime) StartContainer(ctx context.Context, id string) error {
	if err := r.client.ContainerStart(ctx, id, container.StartOptions{}); err != nil {
		return errdefs.RuntimeFailure("start container "+id, err)
	}
	return nil
}

// StopContainer stops a container. A container that is already gone or
// already stopped is treated as success.
func (r *DockerRuntime) StopContainer(ctx context.Context, id string) error {
	timeout := stopTimeoutSeconds
	err := r.client.ContainerStop(ctx, id, container.StopOptions{Timeout: &timeout})
	if err == nil || dockererrdefs.IsNotFound(err) || dockererrdefs.IsNotModified(err) {
		return nil
	}
	return errdefs.RuntimeFailure("stop container "+id, err)
}

// RemoveContainer force-removes a container. A container that is already
// gone is treated as success.
func (r *DockerRuntime) RemoveContainer(ctx context.Context, id string) error {
	err := r.client.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if err == nil || dockererrdefs.IsNotFound(err) {
		return nil
	}
	return errdefs.RuntimeFailure("remove container "+id, err)
}

// InspectContainer returns the engine's view of the container state.
func (r *DockerRuntime) InspectContainer(ctx context.Context, nameOrID string) (ContainerState, error) {
	info, err := r.client.ContainerInspect(ctx, nameOrID)
	if err != nil {
		if dockererrdefs.IsNotFound(err) {
			return StateUnknown, errdefs.NotFound("container", nameOrID)
		}
		return StateUnknown, errdefs.RuntimeFailure("inspect container "+nameOrID, err)
	}
	if info.State == nil {
		return StateUnknown, nil
	}
	return ParseContainerState(info.State.Status), nil
}

// ensureImage pulls the image unless it is already present locally.
func (r *DockerRuntime) ensureImage(ctx context.Context, image string) error {
	if _, _, err := r.client.ImageInspectWithRaw(ctx, image); err == nil {
		return nil
	}

	r.logger.Info().Str("image", image).Msg("pulling image")
	reader, err := r.client.ImagePull(ctx, image, imagetypes.PullOptions{})
	if err != nil {
		return errdefs.RuntimeFailure("pull image "+image, err)
	}
	defer reader.Close()

	// Drain the progress stream; the pull completes when it ends.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		return errdefs.RuntimeFailure("pull image "+image, err)
	}
	return nil
}
