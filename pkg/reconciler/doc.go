/*
Package reconciler implements the replica convergence loop.

Each tick processes deployments in name order: deployments short of
replicas get fresh pending pods, deployments over their count have surplus
pods marked terminating (pending first, then scheduled, then running;
newest first within each bucket). The tick then snapshots pending pods and
ready nodes, runs the configured scheduling strategy, applies the bindings,
and finally garbage-collects pods left behind by deleted deployments.

Ticks are self-healing: any individual failure is logged and retried
naturally on the next pass, because every pass recomputes its work from the
store rather than from carried-over state.
*/
package reconciler
