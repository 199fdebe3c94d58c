package manager

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/maruhq/maru/pkg/errdefs"
	"github.com/maruhq/maru/pkg/events"
	"github.com/maruhq/maru/pkg/log"
	"github.com/maruhq/maru/pkg/metrics"
	"github.com/maruhq/maru/pkg/store"
	"github.com/maruhq/maru/pkg/types"
)

// Manager owns node lifecycle on the master: registration, heartbeats, and
// the liveness sweep that marks silent nodes unhealthy and eventually
// evicts them. Eviction returns the node's pods to pending so the
// reconciler can place them elsewhere.
type Manager struct {
	store  *store.Store
	broker *events.Broker
	logger zerolog.Logger

	heartbeatTimeout time.Duration
	evictionTimeout  time.Duration
	sweepInterval    time.Duration

	stopCh chan struct{}
}

// Config holds manager timeouts. A node with no heartbeat for
// HeartbeatTimeout stops receiving new pods; after EvictionTimeout it is
// evicted and its pods are rescheduled.
type Config struct {
	HeartbeatTimeout time.Duration
	EvictionTimeout  time.Duration
	SweepInterval    time.Duration
}

// NewManager creates a manager over the given store.
func NewManager(st *store.Store, broker *events.Broker, cfg Config) *Manager {
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 15 * time.Second
	}
	if cfg.EvictionTimeout <= 0 {
		cfg.EvictionTimeout = 60 * time.Second
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Second
	}

	return &Manager{
		store:            st,
		broker:           broker,
		logger:           log.WithComponent("manager"),
		heartbeatTimeout: cfg.HeartbeatTimeout,
		evictionTimeout:  cfg.EvictionTimeout,
		sweepInterval:    cfg.SweepInterval,
		stopCh:           make(chan struct{}),
	}
}

// Store returns the underlying store.
func (m *Manager) Store() *store.Store {
	return m.store
}

// Start begins the liveness sweep loop.
func (m *Manager) Start() {
	go m.run()
}

// Stop stops the liveness sweep loop.
func (m *Manager) Stop() {
	close(m.stopCh)
}

func (m *Manager) run() {
	ticker := time.NewTicker(m.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.SweepOnce(time.Now())
		case <-m.stopCh:
			return
		}
	}
}

// SweepOnce checks every node's heartbeat age against the two timeouts and
// transitions it accordingly. Exposed so tests can drive sweeps with a
// controlled clock.
func (m *Manager) SweepOnce(now time.Time) {
	for _, nu := range m.store.ListNodes() {
		node := nu.Node
		if node.Status == types.NodeStatusEvicted {
			continue
		}

		elapsed := now.Sub(node.LastHeartbeat)
		switch {
		case elapsed > m.evictionTimeout:
			m.evict(node, elapsed)
		case elapsed > m.heartbeatTimeout && node.Status == types.NodeStatusReady:
			m.logger.Warn().
				Str("node", node.Name).
				Dur("silent_for", elapsed).
				Msg("node missed heartbeats, marking unhealthy")
			if err := m.store.SetNodeStatus(node.Name, types.NodeStatusUnhealthy); err != nil {
				m.logger.Error().Err(err).Str("node", node.Name).Msg("failed to mark node unhealthy")
				continue
			}
			m.publish(events.EventNodeUnhealthy, node.Name, "node missed heartbeats")
		}
	}
}

func (m *Manager) evict(node types.Node, elapsed time.Duration) {
	m.logger.Warn().
		Str("node", node.Name).
		Dur("silent_for", elapsed).
		Msg("evicting node")

	if err := m.store.SetNodeStatus(node.Name, types.NodeStatusEvicted); err != nil {
		m.logger.Error().Err(err).Str("node", node.Name).Msg("failed to evict node")
		return
	}

	reset := m.store.ResetPodsOnNode(node.Name)
	metrics.NodeEvictionsTotal.Inc()
	m.publish(events.EventNodeEvicted, node.Name, "node evicted after missing heartbeats")

	if len(reset) > 0 {
		m.logger.Info().
			Str("node", node.Name).
			Int("pods", len(reset)).
			Msg("returned pods to pending for rescheduling")
	}
}

// RegisterNode registers (or re-registers) a worker node. Registration is
// idempotent per name: a repeat replaces the entry with the new capacity
// and a fresh heartbeat.
func (m *Manager) RegisterNode(req types.RegisterNodeRequest) (types.Node, error) {
	if req.Name == "" {
		return types.Node{}, errdefs.InvalidSpec("node name cannot be empty")
	}

	node, err := m.store.RegisterNode(req)
	if err != nil {
		return types.Node{}, err
	}

	m.logger.Info().
		Str("node", node.Name).
		Str("address", node.Address).
		Int("port", node.Port).
		Uint64("cpu_millis", node.Capacity.CPUMillis).
		Uint64("memory_mb", node.Capacity.MemoryMB).
		Msg("node registered")
	m.publish(events.EventNodeRegistered, node.Name, "node registered")
	return node, nil
}

// Heartbeat records a node's liveness signal and applies any batched pod
// status reports it carries. Reports that would violate the pod state
// machine are dropped: the master's view wins, and the agent converges on
// its next sync.
func (m *Manager) Heartbeat(nodeName string, reports []types.PodStatusReport) error {
	if err := m.store.HeartbeatNode(nodeName); err != nil {
		return err
	}

	for _, r := range reports {
		if _, err := m.store.UpdatePodStatus(r.PodID, r.Status, r.ContainerID); err != nil {
			if errors.Is(err, errdefs.ErrIllegalTransition) || errors.Is(err, errdefs.ErrNotFound) {
				continue
			}
			m.logger.Error().Err(err).Str("pod_id", r.PodID).Msg("failed to apply heartbeat status report")
		}
	}
	return nil
}

// RemoveNode deletes a node entry and returns its pods to pending, exactly
// as an eviction would.
func (m *Manager) RemoveNode(name string) error {
	if err := m.store.DeleteNode(name); err != nil {
		return err
	}
	m.store.ResetPodsOnNode(name)
	m.logger.Info().Str("node", name).Msg("node removed")
	m.publish(events.EventNodeEvicted, name, "node removed")
	return nil
}

func (m *Manager) publish(eventType events.EventType, nodeName, message string) {
	if m.broker == nil {
		return
	}
	m.broker.Publish(&events.Event{
		Type:     eventType,
		Message:  message,
		Metadata: map[string]string{"node": nodeName},
	})
}
