/*
Package types defines the core data model shared by the master and the
agent: Deployments (user intent), Pods (replica instances), and Nodes
(registered workers), plus the JSON request/response shapes of the HTTP
API.

Pods move through a fixed lifecycle:

	pending ──> scheduled ──> running ──> terminating ──> terminated
	               │             │
	               └──> failed <─┘

Pending and scheduled pods may also go straight to terminating (scale-down
or deployment delete). The one way back is the node manager's reset of
non-terminal pods on an evicted node to pending, so the scheduler can
place them again.

Node usage is intentionally not a stored field. It is derived from the
set of pods bound to the node, which keeps resource accounting consistent
with bindings by construction.
*/
package types
