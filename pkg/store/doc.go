/*
Package store holds the authoritative in-memory state of the cluster.

The store owns three tables (deployments, pods, nodes), each behind its own
lock. Multi-table operations acquire locks in a fixed order to stay
deadlock-free:

	deployments -> pods -> nodes

Every entity carries a version counter bumped on each mutation. Node usage
is derived from pod bindings on every read instead of being stored, so a
binding and its resource accounting can never disagree.

There is no persistence. State is rebuilt after a restart from agent
re-registration and user re-apply.
*/
package store
