/*
Package manager implements node lifecycle on the master.

Agents register on startup and heartbeat every few seconds. The manager's
sweep compares each node's last heartbeat against two thresholds:

	silent > heartbeat timeout  ->  unhealthy (no new bindings)
	silent > eviction timeout   ->  evicted   (pods reset to pending)

A heartbeat from an unhealthy node restores it to ready. A heartbeat from
an evicted node is rejected; the agent must re-register, which replaces
the node entry with a fresh identity.
*/
package manager
