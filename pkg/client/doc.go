// Package client is the typed HTTP client for the master API, used by both
// the CLI and the worker agent. Server error statuses are translated back
// into errdefs kinds so callers can branch with errors.Is.
package client
