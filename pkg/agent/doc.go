/*
Package agent implements the worker-side executor.

The agent runs two loops against the master: a heartbeat every few seconds
and an executor pass that fetches the pods bound to this node and makes
the local container runtime match them. Each pass is idempotent; whatever
a previous pass failed to finish (a container not started, a report that
never arrived) is redone because the pass always recomputes its work from
the master's assignment and the local pod-to-container map.

Container names embed the pod ID, so creates are idempotent and a
restarted agent can re-adopt containers it started in a previous life.
*/
package agent
