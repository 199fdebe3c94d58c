// Package events provides an in-process pub/sub broker for cluster
// lifecycle events (deployment, pod, and node transitions). Delivery is
// best-effort: slow subscribers miss events instead of stalling the
// control loops that publish them.
package events
