package agent

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/maruhq/maru/pkg/client"
	"github.com/maruhq/maru/pkg/errdefs"
	"github.com/maruhq/maru/pkg/log"
	"github.com/maruhq/maru/pkg/runtime"
	"github.com/maruhq/maru/pkg/types"
)

// Config holds agent configuration.
type Config struct {
	NodeName          string
	Address           string
	Port              int
	Capacity          types.Resources
	HeartbeatInterval time.Duration
	SyncInterval      time.Duration
}

// Agent makes the local runtime match the pods the master has bound to
// this node. It keeps one piece of state: the map from pod ID to the
// container it started. Every sync pass converges that map against the
// master's assignment, so a failed pass is simply retried by the next one.
type Agent struct {
	cfg     Config
	client  *client.Client
	runtime runtime.Runtime
	logger  zerolog.Logger

	mu    sync.Mutex
	local map[string]string // pod ID -> container ID
}

// New creates an agent for the given master.
func New(cfg Config, c *client.Client, rt runtime.Runtime) *Agent {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = 2 * time.Second
	}
	return &Agent{
		cfg:     cfg,
		client:  c,
		runtime: rt,
		logger:  log.WithComponent("agent"),
		local:   make(map[string]string),
	}
}

// Run registers with the master and drives the heartbeat and executor
// loops until the context is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	if err := a.registerWithRetry(ctx); err != nil {
		return err
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.heartbeatLoop(ctx)
	}()
	go func() {
		defer wg.Done()
		a.executorLoop(ctx)
	}()
	wg.Wait()
	return nil
}

// registerWithRetry registers the node, retrying until the master accepts
// or the context is cancelled.
func (a *Agent) registerWithRetry(ctx context.Context) error {
	req := types.RegisterNodeRequest{
		Name:     a.cfg.NodeName,
		Address:  a.cfg.Address,
		Port:     a.cfg.Port,
		Capacity: a.cfg.Capacity,
	}

	for {
		_, err := a.client.RegisterNode(req)
		if err == nil {
			a.logger.Info().
				Str("node", a.cfg.NodeName).
				Uint64("cpu_millis", a.cfg.Capacity.CPUMillis).
				Uint64("memory_mb", a.cfg.Capacity.MemoryMB).
				Msg("registered with master")
			return nil
		}

		a.logger.Warn().Err(err).Msg("registration failed, retrying in 5s")
		select {
		case <-time.After(5 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (a *Agent) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			a.heartbeat(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// heartbeat sends a liveness signal. An evicted response means the master
// gave up on this node: all locally owned containers are stopped and the
// node re-registers with a clean slate. A not-found response means the
// master restarted; re-registering is enough, the executor loop reconciles
// the rest.
func (a *Agent) heartbeat(ctx context.Context) {
	err := a.client.Heartbeat(a.cfg.NodeName, nil)
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, errdefs.ErrEvicted):
		a.logger.Warn().Msg("node was evicted, resetting local state and re-registering")
		a.resetLocal(ctx)
		if err := a.registerWithRetry(ctx); err != nil {
			a.logger.Error().Err(err).Msg("re-registration abandoned")
		}
	case errors.Is(err, errdefs.ErrNotFound):
		a.logger.Warn().Msg("master does not know this node, re-registering")
		if err := a.registerWithRetry(ctx); err != nil {
			a.logger.Error().Err(err).Msg("re-registration abandoned")
		}
	default:
		a.logger.Warn().Err(err).Msg("heartbeat failed")
	}
}

func (a *Agent) executorLoop(ctx context.Context) {
	for {
		select {
		case <-time.After(a.cfg.SyncInterval):
			a.SyncOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// SyncOnce performs one executor pass: start containers for newly bound
// pods, stop containers for terminating pods, drop containers the master
// no longer tracks, and report observed transitions back. Exposed so tests
// can drive passes directly.
func (a *Agent) SyncOnce(ctx context.Context) {
	assigned, err := a.client.ListNodePods(a.cfg.NodeName)
	if err != nil {
		a.logger.Warn().Err(err).Msg("failed to fetch assigned pods")
		return
	}

	assignedByID := make(map[string]types.Pod, len(assigned))
	for _, p := range assigned {
		assignedByID[p.ID] = p
	}

	for _, pod := range assigned {
		switch pod.Status {
		case types.PodStatusScheduled:
			a.startPod(ctx, pod)
		case types.PodStatusRunning:
			a.checkPod(ctx, pod)
		case types.PodStatusTerminating:
			a.stopPod(ctx, pod)
		}
	}

	// Anything still held locally that the master no longer assigns here
	// is gone as far as the control plane is concerned: stop it.
	for podID, containerID := range a.snapshotLocal() {
		if _, ok := assignedByID[podID]; ok {
			continue
		}
		a.logger.Info().Str("pod_id", podID).Msg("pod no longer assigned, removing container")
		a.removeContainer(ctx, containerID)
		a.forget(podID)
	}
}

// startPod ensures a container is running for a newly bound pod and
// reports the outcome. The container name is derived from the pod ID, so
// a pass that died between create and report just re-adopts its container.
func (a *Agent) startPod(ctx context.Context, pod types.Pod) {
	if containerID, ok := a.lookup(pod.ID); ok {
		// Started on an earlier pass but the report did not stick.
		a.report(pod.ID, types.PodStatusRunning, containerID)
		return
	}

	name := containerName(pod.ID)
	containerID, err := a.runtime.CreateContainer(ctx, name, pod.Image, pod.Resources)
	if err != nil {
		a.logger.Error().Err(err).Str("pod_id", pod.ID).Str("image", pod.Image).Msg("failed to create container")
		a.report(pod.ID, types.PodStatusFailed, "")
		return
	}

	if err := a.runtime.StartContainer(ctx, containerID); err != nil {
		a.logger.Error().Err(err).Str("pod_id", pod.ID).Msg("failed to start container")
		a.removeContainer(ctx, containerID)
		a.report(pod.ID, types.PodStatusFailed, "")
		return
	}

	a.remember(pod.ID, containerID)
	a.logger.Info().Str("pod_id", pod.ID).Str("container_id", containerID).Msg("container started")
	a.report(pod.ID, types.PodStatusRunning, containerID)
}

// checkPod verifies that a running pod's container is still alive and
// reports failure when it has exited underneath us.
func (a *Agent) checkPod(ctx context.Context, pod types.Pod) {
	containerID, ok := a.lookup(pod.ID)
	if !ok {
		// Agent restarted while the pod ran: re-adopt by derived name.
		state, err := a.runtime.InspectContainer(ctx, containerName(pod.ID))
		if err != nil {
			if errors.Is(err, errdefs.ErrNotFound) {
				a.report(pod.ID, types.PodStatusFailed, "")
			}
			return
		}
		if !state.Gone() {
			containerID := pod.ContainerID
			if containerID == "" {
				containerID = containerName(pod.ID)
			}
			a.remember(pod.ID, containerID)
			return
		}
		a.report(pod.ID, types.PodStatusFailed, "")
		return
	}

	state, err := a.runtime.InspectContainer(ctx, containerID)
	if err != nil {
		if errors.Is(err, errdefs.ErrNotFound) {
			a.report(pod.ID, types.PodStatusFailed, "")
			a.forget(pod.ID)
		}
		return
	}
	if state.Gone() {
		a.logger.Warn().Str("pod_id", pod.ID).Str("state", string(state)).Msg("container exited unexpectedly")
		a.report(pod.ID, types.PodStatusFailed, "")
		a.removeContainer(ctx, containerID)
		a.forget(pod.ID)
	}
}

// stopPod stops and removes the container of a terminating pod and reports
// completion. A container that is already gone is fine.
func (a *Agent) stopPod(ctx context.Context, pod types.Pod) {
	containerID, ok := a.lookup(pod.ID)
	if !ok {
		containerID = pod.ContainerID
	}
	if containerID == "" {
		containerID = containerName(pod.ID)
	}

	a.removeContainer(ctx, containerID)
	a.forget(pod.ID)
	a.report(pod.ID, types.PodStatusTerminated, "")
	a.logger.Info().Str("pod_id", pod.ID).Msg("pod terminated")
}

func (a *Agent) removeContainer(ctx context.Context, containerID string) {
	if err := a.runtime.StopContainer(ctx, containerID); err != nil {
		a.logger.Warn().Err(err).Str("container_id", containerID).Msg("failed to stop container")
	}
	if err := a.runtime.RemoveContainer(ctx, containerID); err != nil {
		a.logger.Warn().Err(err).Str("container_id", containerID).Msg("failed to remove container")
	}
}

// resetLocal stops every container this agent owns. Used when the node is
// re-registering after an eviction.
func (a *Agent) resetLocal(ctx context.Context) {
	for podID, containerID := range a.snapshotLocal() {
		a.removeContainer(ctx, containerID)
		a.forget(podID)
	}
}

// report sends a status transition to the master. Failures are logged and
// dropped: the master still shows the pod's old status, so the next sync
// pass redoes the step and reports again.
func (a *Agent) report(podID string, status types.PodStatus, containerID string) {
	err := a.client.ReportPodStatus(podID, types.PodStatusUpdate{
		Status:      status,
		ContainerID: containerID,
	})
	// A 400/404 means the master has moved on (pod gone or already past
	// this transition); there is nothing to retry.
	if err != nil && !errors.Is(err, errdefs.ErrInvalidSpec) && !errors.Is(err, errdefs.ErrNotFound) {
		a.logger.Warn().Err(err).Str("pod_id", podID).Str("status", string(status)).Msg("failed to report pod status")
	}
}

func (a *Agent) lookup(podID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.local[podID]
	return id, ok
}

func (a *Agent) remember(podID, containerID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.local[podID] = containerID
}

func (a *Agent) forget(podID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.local, podID)
}

func (a *Agent) snapshotLocal() map[string]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[string]string, len(a.local))
	for k, v := range a.local {
		out[k] = v
	}
	return out
}

// containerName derives the deterministic container name for a pod.
func containerName(podID string) string {
	return "maru-" + podID
}
