// Package runtime defines the container engine contract the agent drives
// and its Docker implementation. Container names are derived from pod IDs
// by the agent, which makes create idempotent and lets a crashed agent
// re-adopt containers it started before.
package runtime
