package manager

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruhq/maru/pkg/errdefs"
	"github.com/maruhq/maru/pkg/events"
	"github.com/maruhq/maru/pkg/store"
	"github.com/maruhq/maru/pkg/types"
)

func newManager(t *testing.T) (*store.Store, *Manager) {
	t.Helper()
	st := store.New()
	mgr := NewManager(st, nil, Config{
		HeartbeatTimeout: 15 * time.Second,
		EvictionTimeout:  60 * time.Second,
	})
	return st, mgr
}

func TestRegisterNodeValidation(t *testing.T) {
	_, mgr := newManager(t)

	_, err := mgr.RegisterNode(types.RegisterNodeRequest{})
	assert.ErrorIs(t, err, errdefs.ErrInvalidSpec)

	node, err := mgr.RegisterNode(types.RegisterNodeRequest{
		Name:     "node-a",
		Address:  "10.0.0.1",
		Port:     8081,
		Capacity: types.Resources{CPUMillis: 4000, MemoryMB: 8192},
	})
	require.NoError(t, err)
	assert.Equal(t, types.NodeStatusReady, node.Status)
}

func TestIdempotentRegister(t *testing.T) {
	st, mgr := newManager(t)

	for i := 0; i < 3; i++ {
		_, err := mgr.RegisterNode(types.RegisterNodeRequest{
			Name:     "node-a",
			Capacity: types.Resources{CPUMillis: uint64(1000 * (i + 1))},
		})
		require.NoError(t, err)
	}

	nodes := st.ListNodes()
	require.Len(t, nodes, 1)
	assert.Equal(t, uint64(3000), nodes[0].Node.Capacity.CPUMillis,
		"capacity reflects the most recent registration")
}

func TestSweepMarksUnhealthyThenEvicts(t *testing.T) {
	st, mgr := newManager(t)
	_, err := mgr.RegisterNode(types.RegisterNodeRequest{Name: "node-a"})
	require.NoError(t, err)

	nu, err := st.GetNode("node-a")
	require.NoError(t, err)
	registeredAt := nu.Node.LastHeartbeat

	mgr.SweepOnce(registeredAt.Add(10 * time.Second))
	nu, _ = st.GetNode("node-a")
	assert.Equal(t, types.NodeStatusReady, nu.Node.Status, "within heartbeat timeout")

	mgr.SweepOnce(registeredAt.Add(20 * time.Second))
	nu, _ = st.GetNode("node-a")
	assert.Equal(t, types.NodeStatusUnhealthy, nu.Node.Status)

	mgr.SweepOnce(registeredAt.Add(61 * time.Second))
	nu, _ = st.GetNode("node-a")
	assert.Equal(t, types.NodeStatusEvicted, nu.Node.Status)

	// Further sweeps leave the evicted node alone.
	mgr.SweepOnce(registeredAt.Add(2 * time.Hour))
	nu, _ = st.GetNode("node-a")
	assert.Equal(t, types.NodeStatusEvicted, nu.Node.Status)
}

func TestHeartbeatRestoresUnhealthyNode(t *testing.T) {
	st, mgr := newManager(t)
	_, err := mgr.RegisterNode(types.RegisterNodeRequest{Name: "node-a"})
	require.NoError(t, err)

	nu, _ := st.GetNode("node-a")
	mgr.SweepOnce(nu.Node.LastHeartbeat.Add(20 * time.Second))

	require.NoError(t, mgr.Heartbeat("node-a", nil))
	nu, _ = st.GetNode("node-a")
	assert.Equal(t, types.NodeStatusReady, nu.Node.Status)
}

func TestHeartbeatFromEvictedNodeRejected(t *testing.T) {
	st, mgr := newManager(t)
	_, err := mgr.RegisterNode(types.RegisterNodeRequest{Name: "node-a"})
	require.NoError(t, err)

	nu, _ := st.GetNode("node-a")
	mgr.SweepOnce(nu.Node.LastHeartbeat.Add(2 * time.Minute))

	err = mgr.Heartbeat("node-a", nil)
	assert.ErrorIs(t, err, errdefs.ErrEvicted)

	// Re-registration brings the node back.
	_, err = mgr.RegisterNode(types.RegisterNodeRequest{Name: "node-a"})
	require.NoError(t, err)
	require.NoError(t, mgr.Heartbeat("node-a", nil))
}

func TestEvictionResetsPods(t *testing.T) {
	st, mgr := newManager(t)
	_, err := mgr.RegisterNode(types.RegisterNodeRequest{
		Name:     "node-a",
		Capacity: types.Resources{CPUMillis: 4000},
	})
	require.NoError(t, err)

	pod, err := st.CreatePod(types.Pod{DeploymentName: "web"})
	require.NoError(t, err)
	_, err = st.BindPod(pod.ID, "node-a")
	require.NoError(t, err)
	_, err = st.UpdatePodStatus(pod.ID, types.PodStatusRunning, "c1")
	require.NoError(t, err)

	nu, _ := st.GetNode("node-a")
	mgr.SweepOnce(nu.Node.LastHeartbeat.Add(2 * time.Minute))

	got, err := st.GetPod(pod.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PodStatusPending, got.Status)
	assert.Empty(t, got.NodeName)
	assert.Empty(t, got.ContainerID)
}

func TestHeartbeatAppliesPodReports(t *testing.T) {
	st, mgr := newManager(t)
	_, err := mgr.RegisterNode(types.RegisterNodeRequest{Name: "node-a"})
	require.NoError(t, err)

	pod, err := st.CreatePod(types.Pod{DeploymentName: "web"})
	require.NoError(t, err)
	_, err = st.BindPod(pod.ID, "node-a")
	require.NoError(t, err)

	terminated, err := st.CreatePod(types.Pod{DeploymentName: "web"})
	require.NoError(t, err)
	_, err = st.BindPod(terminated.ID, "node-a")
	require.NoError(t, err)
	for _, status := range []types.PodStatus{types.PodStatusRunning, types.PodStatusTerminating, types.PodStatusTerminated} {
		_, err = st.UpdatePodStatus(terminated.ID, status, "")
		require.NoError(t, err)
	}

	err = mgr.Heartbeat("node-a", []types.PodStatusReport{
		{PodID: pod.ID, Status: types.PodStatusRunning, ContainerID: "c1"},
		{PodID: terminated.ID, Status: types.PodStatusRunning, ContainerID: "zombie"}, // illegal, dropped
		{PodID: "unknown", Status: types.PodStatusRunning},                            // unknown, dropped
	})
	require.NoError(t, err)

	got, err := st.GetPod(pod.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PodStatusRunning, got.Status)
	assert.Equal(t, "c1", got.ContainerID)

	got, err = st.GetPod(terminated.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PodStatusTerminated, got.Status, "terminal pods stay terminal")
}

func TestRemoveNodeResetsPods(t *testing.T) {
	st, mgr := newManager(t)
	_, err := mgr.RegisterNode(types.RegisterNodeRequest{Name: "node-a"})
	require.NoError(t, err)

	pod, err := st.CreatePod(types.Pod{DeploymentName: "web"})
	require.NoError(t, err)
	_, err = st.BindPod(pod.ID, "node-a")
	require.NoError(t, err)

	require.NoError(t, mgr.RemoveNode("node-a"))
	assert.ErrorIs(t, mgr.RemoveNode("node-a"), errdefs.ErrNotFound)

	got, err := st.GetPod(pod.ID)
	require.NoError(t, err)
	assert.Equal(t, types.PodStatusPending, got.Status)
}

func TestEvictionPublishesEvent(t *testing.T) {
	st := store.New()
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	mgr := NewManager(st, broker, Config{
		HeartbeatTimeout: 15 * time.Second,
		EvictionTimeout:  60 * time.Second,
	})

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	_, err := mgr.RegisterNode(types.RegisterNodeRequest{Name: "node-a"})
	require.NoError(t, err)

	nu, _ := st.GetNode("node-a")
	mgr.SweepOnce(nu.Node.LastHeartbeat.Add(2 * time.Minute))

	deadline := time.After(2 * time.Second)
	seen := make(map[events.EventType]bool)
	for !seen[events.EventNodeEvicted] {
		select {
		case event := <-sub:
			seen[event.Type] = true
		case <-deadline:
			t.Fatal("timed out waiting for eviction event")
		}
	}
	assert.True(t, seen[events.EventNodeRegistered])
}
