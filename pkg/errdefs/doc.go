// Package errdefs defines the error kinds shared across the control plane
// and the agent. Kinds are sentinel errors tested with errors.Is so that
// wrapped context never breaks classification.
package errdefs
