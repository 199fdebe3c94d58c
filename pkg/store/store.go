package store

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maruhq/maru/pkg/errdefs"
	"github.com/maruhq/maru/pkg/types"
)

// Store is the single source of truth for cluster state: deployments, pods,
// and nodes. All tables live in memory; a process restart starts empty and
// the cluster rebuilds from agent re-registration and user re-apply.
//
// Each table has its own lock. Operations that touch more than one table
// acquire locks in a fixed order (deployments, then pods, then nodes) so
// that concurrent multi-table operations cannot deadlock.
type Store struct {
	deploymentsMu sync.RWMutex
	deployments   map[string]*types.Deployment

	podsMu sync.RWMutex
	pods   map[string]*types.Pod

	nodesMu sync.RWMutex
	nodes   map[string]*types.Node
}

// New creates an empty store.
func New() *Store {
	return &Store{
		deployments: make(map[string]*types.Deployment),
		pods:        make(map[string]*types.Pod),
		nodes:       make(map[string]*types.Node),
	}
}

// CreateDeployment stores a new deployment. The name is the key; creating a
// second deployment with the same name fails with ErrAlreadyExists.
func (s *Store) CreateDeployment(d types.Deployment) (types.Deployment, error) {
	s.deploymentsMu.Lock()
	defer s.deploymentsMu.Unlock()

	if _, ok := s.deployments[d.Name]; ok {
		return types.Deployment{}, errdefs.AlreadyExists("deployment", d.Name)
	}

	now := time.Now()
	d.Version = 1
	d.CreatedAt = now
	d.UpdatedAt = now
	s.deployments[d.Name] = &d
	return d, nil
}

// UpdateDeployment applies the non-nil fields of the update to an existing
// deployment. The name cannot change.
func (s *Store) UpdateDeployment(name string, update types.UpdateDeploymentRequest) (types.Deployment, error) {
	s.deploymentsMu.Lock()
	defer s.deploymentsMu.Unlock()

	d, ok := s.deployments[name]
	if !ok {
		return types.Deployment{}, errdefs.NotFound("deployment", name)
	}

	if update.Replicas != nil {
		d.Replicas = *update.Replicas
	}
	if update.Image != nil {
		d.Image = *update.Image
	}
	if update.Resources != nil {
		d.Resources = *update.Resources
	}
	d.Version++
	d.UpdatedAt = time.Now()
	return *d, nil
}

// DeleteDeployment removes the deployment and marks all of its non-terminal
// pods terminating so the agents stop their containers.
func (s *Store) DeleteDeployment(name string) error {
	s.deploymentsMu.Lock()
	defer s.deploymentsMu.Unlock()
	s.podsMu.Lock()
	defer s.podsMu.Unlock()

	if _, ok := s.deployments[name]; !ok {
		return errdefs.NotFound("deployment", name)
	}
	delete(s.deployments, name)

	for _, p := range s.pods {
		if p.DeploymentName != name || p.Status.Terminal() || p.Status == types.PodStatusTerminating {
			continue
		}
		p.Status = types.PodStatusTerminating
		p.Version++
	}
	return nil
}

// GetDeployment returns the deployment with the given name.
func (s *Store) GetDeployment(name string) (types.Deployment, error) {
	s.deploymentsMu.RLock()
	defer s.deploymentsMu.RUnlock()

	d, ok := s.deployments[name]
	if !ok {
		return types.Deployment{}, errdefs.NotFound("deployment", name)
	}
	return *d, nil
}

// ListDeployments returns all deployments sorted by name.
func (s *Store) ListDeployments() []types.Deployment {
	s.deploymentsMu.RLock()
	defer s.deploymentsMu.RUnlock()

	out := make([]types.Deployment, 0, len(s.deployments))
	for _, d := range s.deployments {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CreatePod stores a new pod. A fresh ID is assigned when the pod has none;
// status is forced to pending and any binding fields are cleared.
func (s *Store) CreatePod(p types.Pod) (types.Pod, error) {
	s.podsMu.Lock()
	defer s.podsMu.Unlock()

	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	p.Status = types.PodStatusPending
	p.NodeName = ""
	p.ContainerID = ""
	p.Version = 1
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.pods[p.ID] = &p
	return p, nil
}

// BindPod assigns a pending pod to a node and moves it to scheduled.
func (s *Store) BindPod(podID, nodeName string) (types.Pod, error) {
	s.podsMu.Lock()
	defer s.podsMu.Unlock()

	p, ok := s.pods[podID]
	if !ok {
		return types.Pod{}, errdefs.NotFound("pod", podID)
	}
	if p.NodeName != "" {
		return types.Pod{}, errdefs.AlreadyBound(podID, p.NodeName)
	}
	if p.Status != types.PodStatusPending {
		return types.Pod{}, errdefs.IllegalTransition(podID, p.Status, types.PodStatusScheduled)
	}

	p.NodeName = nodeName
	p.Status = types.PodStatusScheduled
	p.Version++
	return *p, nil
}

// legalTransitions is the pod state machine enforced by UpdatePodStatus.
// The eviction reset back to pending is deliberately absent; it goes
// through ResetPodsOnNode, and binding goes through BindPod.
var legalTransitions = map[types.PodStatus][]types.PodStatus{
	types.PodStatusPending:     {types.PodStatusTerminating},
	types.PodStatusScheduled:   {types.PodStatusRunning, types.PodStatusFailed, types.PodStatusTerminating},
	types.PodStatusRunning:     {types.PodStatusTerminating, types.PodStatusFailed},
	types.PodStatusTerminating: {types.PodStatusTerminated},
	types.PodStatusFailed:      {},
	types.PodStatusTerminated:  {},
}

// UpdatePodStatus transitions a pod to the given status, recording the
// container ID when one is supplied. Transitions outside the state machine
// fail with ErrIllegalTransition; updating to the current status is a no-op.
func (s *Store) UpdatePodStatus(podID string, status types.PodStatus, containerID string) (types.Pod, error) {
	s.podsMu.Lock()
	defer s.podsMu.Unlock()

	p, ok := s.pods[podID]
	if !ok {
		return types.Pod{}, errdefs.NotFound("pod", podID)
	}

	if p.Status != status {
		legal := false
		for _, next := range legalTransitions[p.Status] {
			if next == status {
				legal = true
				break
			}
		}
		if !legal {
			return types.Pod{}, errdefs.IllegalTransition(podID, p.Status, status)
		}
		p.Status = status
		p.Version++
	}
	if containerID != "" && p.ContainerID != containerID {
		p.ContainerID = containerID
		p.Version++
	}
	return *p, nil
}

// GetPod returns the pod with the given ID.
func (s *Store) GetPod(podID string) (types.Pod, error) {
	s.podsMu.RLock()
	defer s.podsMu.RUnlock()

	p, ok := s.pods[podID]
	if !ok {
		return types.Pod{}, errdefs.NotFound("pod", podID)
	}
	return *p, nil
}

// DeletePod removes a pod outright. Used only for garbage collection of
// terminal pods whose deployment is gone.
func (s *Store) DeletePod(podID string) error {
	s.podsMu.Lock()
	defer s.podsMu.Unlock()

	if _, ok := s.pods[podID]; !ok {
		return errdefs.NotFound("pod", podID)
	}
	delete(s.pods, podID)
	return nil
}

func sortPods(pods []types.Pod) {
	sort.Slice(pods, func(i, j int) bool {
		if !pods[i].CreatedAt.Equal(pods[j].CreatedAt) {
			return pods[i].CreatedAt.Before(pods[j].CreatedAt)
		}
		return pods[i].ID < pods[j].ID
	})
}

// ListPods returns all pods ordered by creation time, ties broken by ID.
func (s *Store) ListPods() []types.Pod {
	s.podsMu.RLock()
	defer s.podsMu.RUnlock()
	return s.listPodsLocked(func(*types.Pod) bool { return true })
}

// ListPodsByNode returns the pods bound to the given node.
func (s *Store) ListPodsByNode(nodeName string) []types.Pod {
	s.podsMu.RLock()
	defer s.podsMu.RUnlock()
	return s.listPodsLocked(func(p *types.Pod) bool { return p.NodeName == nodeName })
}

// ListPodsByDeployment returns the pods belonging to the given deployment.
func (s *Store) ListPodsByDeployment(name string) []types.Pod {
	s.podsMu.RLock()
	defer s.podsMu.RUnlock()
	return s.listPodsLocked(func(p *types.Pod) bool { return p.DeploymentName == name })
}

func (s *Store) listPodsLocked(keep func(*types.Pod) bool) []types.Pod {
	out := []types.Pod{}
	for _, p := range s.pods {
		if keep(p) {
			out = append(out, *p)
		}
	}
	sortPods(out)
	return out
}

// RegisterNode stores a node entry. Registering a name that already exists
// replaces the entry: the node comes back ready with the new capacity and a
// fresh heartbeat, which is how an agent recovers after eviction.
func (s *Store) RegisterNode(req types.RegisterNodeRequest) (types.Node, error) {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()

	version := int64(1)
	if prev, ok := s.nodes[req.Name]; ok {
		version = prev.Version + 1
	}

	now := time.Now()
	n := &types.Node{
		Name:          req.Name,
		Address:       req.Address,
		Port:          req.Port,
		Capacity:      req.Capacity,
		Status:        types.NodeStatusReady,
		LastHeartbeat: now,
		Version:       version,
		CreatedAt:     now,
	}
	s.nodes[req.Name] = n
	return *n, nil
}

// HeartbeatNode records a liveness signal from a node. An unhealthy node is
// restored to ready; an evicted node is rejected with ErrEvicted and must
// re-register.
func (s *Store) HeartbeatNode(name string) error {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()

	n, ok := s.nodes[name]
	if !ok {
		return errdefs.NotFound("node", name)
	}
	if n.Status == types.NodeStatusEvicted {
		return errdefs.Evicted(name)
	}

	n.LastHeartbeat = time.Now()
	if n.Status == types.NodeStatusUnhealthy {
		n.Status = types.NodeStatusReady
	}
	n.Version++
	return nil
}

// SetNodeStatus transitions a node's liveness state. Used by the node
// manager's sweep.
func (s *Store) SetNodeStatus(name string, status types.NodeStatus) error {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()

	n, ok := s.nodes[name]
	if !ok {
		return errdefs.NotFound("node", name)
	}
	if n.Status != status {
		n.Status = status
		n.Version++
	}
	return nil
}

// DeleteNode removes a node entry.
func (s *Store) DeleteNode(name string) error {
	s.nodesMu.Lock()
	defer s.nodesMu.Unlock()

	if _, ok := s.nodes[name]; !ok {
		return errdefs.NotFound("node", name)
	}
	delete(s.nodes, name)
	return nil
}

// ResetPodsOnNode returns every non-terminal pod bound to the node to
// pending: node and container bindings are cleared so the scheduler can
// place the pod somewhere else. Returns the IDs of the pods reset.
func (s *Store) ResetPodsOnNode(nodeName string) []string {
	s.podsMu.Lock()
	defer s.podsMu.Unlock()

	var reset []string
	for _, p := range s.pods {
		if p.NodeName != nodeName || p.Status.Terminal() {
			continue
		}
		p.Status = types.PodStatusPending
		p.NodeName = ""
		p.ContainerID = ""
		p.Version++
		reset = append(reset, p.ID)
	}
	sort.Strings(reset)
	return reset
}

// usageFor sums the requests of pods that hold a reservation on the node.
// Callers must hold podsMu.
func (s *Store) usageFor(nodeName string) types.Resources {
	var used types.Resources
	for _, p := range s.pods {
		if p.NodeName != nodeName {
			continue
		}
		switch p.Status {
		case types.PodStatusScheduled, types.PodStatusRunning, types.PodStatusTerminating:
			used = used.Add(p.Resources)
		}
	}
	return used
}

// GetNode returns the node with the given name together with its derived
// usage.
func (s *Store) GetNode(name string) (types.NodeWithUsage, error) {
	s.podsMu.RLock()
	defer s.podsMu.RUnlock()
	s.nodesMu.RLock()
	defer s.nodesMu.RUnlock()

	n, ok := s.nodes[name]
	if !ok {
		return types.NodeWithUsage{}, errdefs.NotFound("node", name)
	}
	return types.NodeWithUsage{Node: *n, Used: s.usageFor(name)}, nil
}

// ListNodes returns all nodes with derived usage, sorted by name.
func (s *Store) ListNodes() []types.NodeWithUsage {
	s.podsMu.RLock()
	defer s.podsMu.RUnlock()
	s.nodesMu.RLock()
	defer s.nodesMu.RUnlock()

	out := make([]types.NodeWithUsage, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, types.NodeWithUsage{Node: *n, Used: s.usageFor(n.Name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Node.Name < out[j].Node.Name })
	return out
}

// Snapshot returns the scheduler's input: all pending pods and all ready
// nodes with their current usage, observed under one consistent view of
// both tables. All three read locks are taken in the store's fixed order.
func (s *Store) Snapshot() ([]types.Pod, []types.NodeWithUsage) {
	s.deploymentsMu.RLock()
	defer s.deploymentsMu.RUnlock()
	s.podsMu.RLock()
	defer s.podsMu.RUnlock()
	s.nodesMu.RLock()
	defer s.nodesMu.RUnlock()

	var pending []types.Pod
	for _, p := range s.pods {
		if p.Status == types.PodStatusPending {
			pending = append(pending, *p)
		}
	}
	sortPods(pending)

	var ready []types.NodeWithUsage
	for _, n := range s.nodes {
		if n.Status != types.NodeStatusReady {
			continue
		}
		ready = append(ready, types.NodeWithUsage{Node: *n, Used: s.usageFor(n.Name)})
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].Node.Name < ready[j].Node.Name })
	return pending, ready
}
