package runtime

import (
	"context"
	"strings"

	"github.com/maruhq/maru/pkg/types"
)

// ContainerState is the runtime-reported state of a container.
type ContainerState string

const (
	StateCreated    ContainerState = "created"
	StateRunning    ContainerState = "running"
	StatePaused     ContainerState = "paused"
	StateRestarting ContainerState = "restarting"
	StateExited     ContainerState = "exited"
	StateDead       ContainerState = "dead"
	StateUnknown    ContainerState = "unknown"
)

// ParseContainerState maps an engine status string onto a ContainerState.
func ParseContainerState(s string) ContainerState {
	switch strings.ToLower(s) {
	case "created":
		return StateCreated
	case "running":
		return StateRunning
	case "paused":
		return StatePaused
	case "restarting":
		return StateRestarting
	case "exited":
		return StateExited
	case "dead":
		return StateDead
	default:
		return StateUnknown
	}
}

// Gone reports whether the container is past the point of running again.
func (s ContainerState) Gone() bool {
	return s == StateExited || s == StateDead
}

// Runtime is the contract the agent needs from a container engine.
// Implementations must make CreateContainer idempotent on the container
// name: creating a name that already exists returns the existing
// container's ID.
type Runtime interface {
	// CreateContainer ensures a container with the given name exists for
	// the image, applying the resource limits, and returns its ID.
	CreateContainer(ctx context.Context, name, image string, res types.Resources) (string, error)
	// StartContainer starts a created container.
	StartContainer(ctx context.Context, id string) error
	// StopContainer stops a container. Stopping a container that no longer
	// exists is not an error.
	StopContainer(ctx context.Context, id string) error
	// RemoveContainer force-removes a container. Removing a container that
	// no longer exists is not an error.
	RemoveContainer(ctx context.Context, id string) error
	// InspectContainer returns the container's current state. A missing
	// container reports ErrNotFound.
	InspectContainer(ctx context.Context, nameOrID string) (ContainerState, error)
	// Close releases the engine connection.
	Close() error
}
