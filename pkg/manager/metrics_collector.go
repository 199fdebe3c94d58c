package manager

import (
	"time"

	"github.com/maruhq/maru/pkg/metrics"
	"github.com/maruhq/maru/pkg/types"
)

// MetricsCollector refreshes the cluster state gauges from the store.
type MetricsCollector struct {
	manager  *Manager
	interval time.Duration
	stopCh   chan struct{}
}

// NewMetricsCollector creates a collector over the manager's store.
func NewMetricsCollector(mgr *Manager) *MetricsCollector {
	return &MetricsCollector{
		manager:  mgr,
		interval: 15 * time.Second,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics.
func (c *MetricsCollector) Start() {
	go func() {
		// Collect immediately so gauges are populated before the first tick.
		c.collect()

		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *MetricsCollector) Stop() {
	close(c.stopCh)
}

func (c *MetricsCollector) collect() {
	st := c.manager.Store()

	deployments := st.ListDeployments()
	metrics.DeploymentsTotal.Set(float64(len(deployments)))

	metrics.DeploymentReplicasDesired.Reset()
	metrics.DeploymentReplicasReady.Reset()
	for _, d := range deployments {
		metrics.DeploymentReplicasDesired.WithLabelValues(d.Name).Set(float64(d.Replicas))

		ready := 0
		for _, p := range st.ListPodsByDeployment(d.Name) {
			if p.Status == types.PodStatusRunning {
				ready++
			}
		}
		metrics.DeploymentReplicasReady.WithLabelValues(d.Name).Set(float64(ready))
	}

	metrics.PodsTotal.Reset()
	podCounts := make(map[types.PodStatus]int)
	for _, p := range st.ListPods() {
		podCounts[p.Status]++
	}
	for status, count := range podCounts {
		metrics.PodsTotal.WithLabelValues(string(status)).Set(float64(count))
	}

	metrics.NodesTotal.Reset()
	metrics.NodeCPUUsed.Reset()
	metrics.NodeMemoryUsed.Reset()
	nodeCounts := make(map[types.NodeStatus]int)
	for _, nu := range st.ListNodes() {
		nodeCounts[nu.Node.Status]++
		metrics.NodeCPUUsed.WithLabelValues(nu.Node.Name).Set(float64(nu.Used.CPUMillis))
		metrics.NodeMemoryUsed.WithLabelValues(nu.Node.Name).Set(float64(nu.Used.MemoryMB))
	}
	for status, count := range nodeCounts {
		metrics.NodesTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}
