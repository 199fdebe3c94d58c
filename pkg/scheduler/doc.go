/*
Package scheduler binds pending pods to ready nodes.

Schedule is a pure function over a snapshot: it never touches the store and
returns the bindings for the caller (the reconciler) to apply. Pods are
considered oldest first; for each pod the feasible set is the ready nodes
whose remaining capacity covers the pod's request, and one of four
strategies picks the winner:

	first-fit        smallest node name that fits
	best-fit         least headroom left after placement (pack tightly)
	least-allocated  most headroom left after placement (spread)
	balanced         minimal |cpu utilization - memory utilization|

As pods are placed the snapshot's free capacity is decremented, so a single
pass cannot over-commit a node. A pod with an empty feasible set is simply
left pending; the next reconcile pass retries it.
*/
package scheduler
