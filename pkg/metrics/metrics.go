package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Cluster state metrics
	DeploymentsTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "maru_deployments_total",
			Help: "Total number of deployments",
		},
	)

	DeploymentReplicasDesired = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "maru_deployment_replicas_desired",
			Help: "Desired number of replicas per deployment",
		},
		[]string{"deployment"},
	)

	DeploymentReplicasReady = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "maru_deployment_replicas_ready",
			Help: "Number of running replicas per deployment",
		},
		[]string{"deployment"},
	)

	PodsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "maru_pods_total",
			Help: "Total number of pods by status",
		},
		[]string{"status"},
	)

	NodesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "maru_nodes_total",
			Help: "Total number of nodes by status",
		},
		[]string{"status"},
	)

	NodeCPUUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "maru_node_cpu_used_millicores",
			Help: "Millicores reserved by pods bound to the node",
		},
		[]string{"node"},
	)

	NodeMemoryUsed = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "maru_node_memory_used_mb",
			Help: "Memory in MB reserved by pods bound to the node",
		},
		[]string{"node"},
	)

	// Control loop metrics
	ReconcileCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "maru_reconcile_cycles_total",
			Help: "Total number of reconciliation cycles",
		},
	)

	ReconcileDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "maru_reconcile_duration_seconds",
			Help:    "Duration of reconciliation cycles",
			Buckets: prometheus.DefBuckets,
		},
	)

	SchedulerBindsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "maru_scheduler_binds_total",
			Help: "Total pod-to-node bindings by strategy",
		},
		[]string{"strategy"},
	)

	NodeEvictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "maru_node_evictions_total",
			Help: "Total number of node evictions",
		},
	)
)

func init() {
	prometheus.MustRegister(
		DeploymentsTotal,
		DeploymentReplicasDesired,
		DeploymentReplicasReady,
		PodsTotal,
		NodesTotal,
		NodeCPUUsed,
		NodeMemoryUsed,
		ReconcileCyclesTotal,
		ReconcileDuration,
		SchedulerBindsTotal,
		NodeEvictionsTotal,
	)
}

// Handler returns the HTTP handler serving the prometheus text exposition.
func Handler() http.Handler {
	return promhttp.Handler()
}
