package errdefs

import (
	"errors"
	"fmt"
)

// Sentinel error kinds surfaced by the store, the runtime, and the API.
// Callers classify with errors.Is; the API layer maps each kind to an HTTP
// status.
var (
	ErrNotFound          = errors.New("not found")
	ErrAlreadyExists     = errors.New("already exists")
	ErrAlreadyBound      = errors.New("already bound")
	ErrInvalidSpec       = errors.New("invalid spec")
	ErrIllegalTransition = errors.New("illegal transition")
	ErrEvicted           = errors.New("evicted")
	ErrRuntimeFailure    = errors.New("runtime failure")
	ErrUnavailable       = errors.New("unavailable")
)

// NotFound wraps ErrNotFound with the kind and name of the missing entity.
func NotFound(kind, name string) error {
	return fmt.Errorf("%s %q: %w", kind, name, ErrNotFound)
}

// AlreadyExists wraps ErrAlreadyExists with the kind and name of the
// conflicting entity.
func AlreadyExists(kind, name string) error {
	return fmt.Errorf("%s %q: %w", kind, name, ErrAlreadyExists)
}

// AlreadyBound reports a bind attempt against a pod that has a node.
func AlreadyBound(podID, nodeName string) error {
	return fmt.Errorf("pod %q is bound to node %q: %w", podID, nodeName, ErrAlreadyBound)
}

// InvalidSpec wraps ErrInvalidSpec with a reason.
func InvalidSpec(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInvalidSpec)
}

// IllegalTransition reports a rejected pod status change.
func IllegalTransition(podID string, from, to any) error {
	return fmt.Errorf("pod %q: %v -> %v: %w", podID, from, to, ErrIllegalTransition)
}

// Evicted reports a heartbeat from a node that has been evicted and must
// re-register.
func Evicted(nodeName string) error {
	return fmt.Errorf("node %q: %w", nodeName, ErrEvicted)
}

// RuntimeFailure wraps a container engine error.
func RuntimeFailure(op string, err error) error {
	return fmt.Errorf("%s: %v: %w", op, err, ErrRuntimeFailure)
}

// Unavailable wraps a transport error talking to a peer.
func Unavailable(peer string, err error) error {
	return fmt.Errorf("%s: %v: %w", peer, err, ErrUnavailable)
}
