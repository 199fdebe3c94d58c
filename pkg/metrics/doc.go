// Package metrics defines the prometheus instrumentation for the control
// plane: cluster state gauges refreshed by the manager's collector and
// counters/histograms updated inline by the control loops. Handler exposes
// everything at /metrics.
package metrics
