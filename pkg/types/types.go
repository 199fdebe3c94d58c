package types

import (
	"time"
)

// Resources describes a CPU/memory quantity, either a pod's request or a
// node's capacity. CPU is in millicores (1000 = one core), memory in MB.
type Resources struct {
	CPUMillis uint64 `json:"cpu_millis"`
	MemoryMB  uint64 `json:"memory_mb"`
}

// Fits reports whether r can accommodate the given request.
func (r Resources) Fits(request Resources) bool {
	return r.CPUMillis >= request.CPUMillis && r.MemoryMB >= request.MemoryMB
}

// Add returns r grown by other.
func (r Resources) Add(other Resources) Resources {
	return Resources{
		CPUMillis: r.CPUMillis + other.CPUMillis,
		MemoryMB:  r.MemoryMB + other.MemoryMB,
	}
}

// Subtract returns r shrunk by other, saturating at zero.
func (r Resources) Subtract(other Resources) Resources {
	out := Resources{}
	if r.CPUMillis > other.CPUMillis {
		out.CPUMillis = r.CPUMillis - other.CPUMillis
	}
	if r.MemoryMB > other.MemoryMB {
		out.MemoryMB = r.MemoryMB - other.MemoryMB
	}
	return out
}

// IsZero reports whether no resources are requested.
func (r Resources) IsZero() bool {
	return r.CPUMillis == 0 && r.MemoryMB == 0
}

// Deployment represents a user-declared workload: run Replicas copies of
// Image, each reserving Resources on its node.
type Deployment struct {
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	Replicas  int       `json:"replicas"`
	Resources Resources `json:"resources"`
	Version   int64     `json:"version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// PodStatus represents the lifecycle state of a pod.
type PodStatus string

const (
	PodStatusPending     PodStatus = "pending"
	PodStatusScheduled   PodStatus = "scheduled"
	PodStatusRunning     PodStatus = "running"
	PodStatusFailed      PodStatus = "failed"
	PodStatusTerminating PodStatus = "terminating"
	PodStatusTerminated  PodStatus = "terminated"
)

// Terminal reports whether the status admits no further transitions. The
// eviction reset back to pending leaves terminal pods alone as well.
func (s PodStatus) Terminal() bool {
	return s == PodStatusTerminated || s == PodStatusFailed
}

// Pod is a single replica instance of a deployment. NodeName is empty
// while the pod is pending, and stays empty for a pod that is terminated
// before it was ever bound; ContainerID is set by the agent once a
// container has been started for it.
type Pod struct {
	ID             string    `json:"id"`
	DeploymentName string    `json:"deployment_name"`
	Image          string    `json:"image"`
	Resources      Resources `json:"resources"`
	NodeName       string    `json:"node_name,omitempty"`
	ContainerID    string    `json:"container_id,omitempty"`
	Status         PodStatus `json:"status"`
	Version        int64     `json:"version"`
	CreatedAt      time.Time `json:"created_at"`
}

// Active reports whether the pod still counts toward its deployment's
// replica target.
func (p *Pod) Active() bool {
	return p.Status != PodStatusTerminated &&
		p.Status != PodStatusFailed &&
		p.Status != PodStatusTerminating
}

// NodeStatus represents the liveness state of a worker node.
type NodeStatus string

const (
	NodeStatusReady     NodeStatus = "ready"
	NodeStatusUnhealthy NodeStatus = "unhealthy"
	NodeStatusEvicted   NodeStatus = "evicted"
)

// Node is a registered worker host. Usage is never stored on the node; it
// is derived from the pods bound to it so that accounting cannot drift
// from the actual bindings.
type Node struct {
	Name          string     `json:"name"`
	Address       string     `json:"address"`
	Port          int        `json:"port"`
	Capacity      Resources  `json:"capacity"`
	Status        NodeStatus `json:"status"`
	LastHeartbeat time.Time  `json:"last_heartbeat"`
	Version       int64      `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NodeWithUsage pairs a node with its derived resource usage: the sum of
// requests of pods bound to it in scheduled, running, or terminating state.
type NodeWithUsage struct {
	Node Node      `json:"node"`
	Used Resources `json:"used"`
}

// Free returns the capacity remaining on the node.
func (n NodeWithUsage) Free() Resources {
	return n.Node.Capacity.Subtract(n.Used)
}

// CreateDeploymentRequest is the body of POST /deployments.
type CreateDeploymentRequest struct {
	Name      string    `json:"name"`
	Image     string    `json:"image"`
	Replicas  *int      `json:"replicas,omitempty"`
	Resources Resources `json:"resources"`
}

// UpdateDeploymentRequest is the body of PUT /deployments/{name}. Nil
// fields are left unchanged.
type UpdateDeploymentRequest struct {
	Replicas  *int       `json:"replicas,omitempty"`
	Image     *string    `json:"image,omitempty"`
	Resources *Resources `json:"resources,omitempty"`
}

// RegisterNodeRequest is the body of POST /nodes/register.
type RegisterNodeRequest struct {
	Name     string    `json:"name"`
	Address  string    `json:"address"`
	Port     int       `json:"port"`
	Capacity Resources `json:"capacity"`
}

// PodStatusReport is one entry of a heartbeat's batched status updates.
type PodStatusReport struct {
	PodID       string    `json:"pod_id"`
	Status      PodStatus `json:"status"`
	ContainerID string    `json:"container_id,omitempty"`
}

// HeartbeatRequest is the body of POST /nodes/{name}/heartbeat. An empty
// body is equivalent to a request with no status reports.
type HeartbeatRequest struct {
	PodStatuses []PodStatusReport `json:"pod_statuses,omitempty"`
}

// PodStatusUpdate is the body of POST /pods/{id}/status.
type PodStatusUpdate struct {
	Status      PodStatus `json:"status"`
	ContainerID string    `json:"container_id,omitempty"`
}

// DeploymentResponse is a deployment as returned by the API, annotated
// with the number of currently running replicas.
type DeploymentResponse struct {
	Deployment
	ReadyReplicas int `json:"ready_replicas"`
}

// NodeResponse is a node as returned by the API, annotated with derived
// usage and remaining capacity.
type NodeResponse struct {
	Node
	Used      Resources `json:"used"`
	Available Resources `json:"available"`
}

// NewNodeResponse builds the API view of a node from its usage pair.
func NewNodeResponse(nu NodeWithUsage) NodeResponse {
	return NodeResponse{
		Node:      nu.Node,
		Used:      nu.Used,
		Available: nu.Free(),
	}
}

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}
