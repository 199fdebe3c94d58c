package reconciler

import (
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/maruhq/maru/pkg/events"
	"github.com/maruhq/maru/pkg/log"
	"github.com/maruhq/maru/pkg/metrics"
	"github.com/maruhq/maru/pkg/scheduler"
	"github.com/maruhq/maru/pkg/store"
	"github.com/maruhq/maru/pkg/types"
)

// Reconciler drives every deployment toward its declared replica count and
// feeds the resulting pending pods to the scheduler. It never propagates
// errors out of a tick: a failed store operation is logged and the next
// tick re-derives the correct state from scratch.
type Reconciler struct {
	store    *store.Store
	strategy scheduler.Strategy
	broker   *events.Broker
	interval time.Duration
	logger   zerolog.Logger
	stopCh   chan struct{}
}

// NewReconciler creates a reconciler using the given placement strategy.
func NewReconciler(st *store.Store, strategy scheduler.Strategy, broker *events.Broker, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Second
	}
	return &Reconciler{
		store:    st,
		strategy: strategy,
		broker:   broker,
		interval: interval,
		logger:   log.WithComponent("reconciler"),
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciliation loop.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.Tick()
		case <-r.stopCh:
			return
		}
	}
}

// Tick runs one full reconciliation pass: converge replica counts, bind
// pending pods, then collect garbage. Exposed so tests can drive passes
// directly.
func (r *Reconciler) Tick() {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconcileDuration)
		metrics.ReconcileCyclesTotal.Inc()
	}()

	for _, d := range r.store.ListDeployments() {
		r.reconcileDeployment(d)
	}
	r.schedulePending()
	r.collectGarbage()
}

// reconcileDeployment creates missing pods or marks surplus pods for
// termination for a single deployment.
func (r *Reconciler) reconcileDeployment(d types.Deployment) {
	pods := r.store.ListPodsByDeployment(d.Name)

	var active []types.Pod
	for _, p := range pods {
		if p.Active() {
			active = append(active, p)
		}
	}

	switch {
	case len(active) < d.Replicas:
		r.scaleUp(d, d.Replicas-len(active))
	case len(active) > d.Replicas:
		r.scaleDown(d, active, len(active)-d.Replicas)
	}
}

func (r *Reconciler) scaleUp(d types.Deployment, count int) {
	r.logger.Info().
		Str("deployment", d.Name).
		Int("count", count).
		Msg("scaling up")

	for i := 0; i < count; i++ {
		pod, err := r.store.CreatePod(types.Pod{
			DeploymentName: d.Name,
			Image:          d.Image,
			Resources:      d.Resources,
		})
		if err != nil {
			r.logger.Error().Err(err).Str("deployment", d.Name).Msg("failed to create pod")
			continue
		}
		r.publish(events.EventPodCreated, pod, "pod created")
	}
}

// scaleDown marks surplus pods terminating, cheapest first: pending pods
// never ran, scheduled ones never started a container, running ones cost a
// container stop. Within a bucket the newest pod goes first.
func (r *Reconciler) scaleDown(d types.Deployment, active []types.Pod, count int) {
	r.logger.Info().
		Str("deployment", d.Name).
		Int("count", count).
		Msg("scaling down")

	bucket := func(s types.PodStatus) int {
		switch s {
		case types.PodStatusPending:
			return 0
		case types.PodStatusScheduled:
			return 1
		default:
			return 2
		}
	}
	sort.Slice(active, func(i, j int) bool {
		bi, bj := bucket(active[i].Status), bucket(active[j].Status)
		if bi != bj {
			return bi < bj
		}
		if !active[i].CreatedAt.Equal(active[j].CreatedAt) {
			return active[i].CreatedAt.After(active[j].CreatedAt)
		}
		return active[i].ID < active[j].ID
	})

	if count > len(active) {
		count = len(active)
	}
	for _, p := range active[:count] {
		r.terminatePod(p)
	}
}

// terminatePod marks a pod terminating. A pod that was never bound has no
// container to stop, so it is completed on the spot instead of waiting for
// an agent that will never see it.
func (r *Reconciler) terminatePod(p types.Pod) {
	updated, err := r.store.UpdatePodStatus(p.ID, types.PodStatusTerminating, "")
	if err != nil {
		r.logger.Error().Err(err).Str("pod_id", p.ID).Msg("failed to mark pod terminating")
		return
	}
	if updated.NodeName == "" {
		if _, err := r.store.UpdatePodStatus(p.ID, types.PodStatusTerminated, ""); err != nil {
			r.logger.Error().Err(err).Str("pod_id", p.ID).Msg("failed to complete unbound pod")
			return
		}
		r.publish(events.EventPodTerminated, updated, "unbound pod terminated")
	}
}

// schedulePending snapshots pending pods and ready nodes, runs the
// placement strategy, and applies the returned bindings. Zero bindings is
// not an error; unplaceable pods stay pending and are retried every tick.
func (r *Reconciler) schedulePending() {
	pending, ready := r.store.Snapshot()
	if len(pending) == 0 {
		return
	}

	bindings, unbound := scheduler.Schedule(r.strategy, pending, ready)
	for _, b := range bindings {
		pod, err := r.store.BindPod(b.PodID, b.NodeName)
		if err != nil {
			// The pod may have been terminated or its deployment deleted
			// between the snapshot and now; the next tick sorts it out.
			r.logger.Warn().Err(err).Str("pod_id", b.PodID).Str("node", b.NodeName).Msg("failed to apply binding")
			continue
		}
		metrics.SchedulerBindsTotal.WithLabelValues(r.strategy.Name()).Inc()
		r.logger.Info().
			Str("pod_id", pod.ID).
			Str("deployment", pod.DeploymentName).
			Str("node", pod.NodeName).
			Str("strategy", r.strategy.Name()).
			Msg("pod scheduled")
		r.publish(events.EventPodScheduled, pod, "pod scheduled")
	}

	if len(unbound) > 0 {
		r.logger.Debug().Int("count", len(unbound)).Msg("pods left pending: no node fits")
	}
}

// collectGarbage finishes terminating pods that have nowhere to run and
// retires pods whose deployment no longer exists. Terminal pods are kept
// while their deployment lives so users can inspect failures.
func (r *Reconciler) collectGarbage() {
	known := make(map[string]bool)
	for _, d := range r.store.ListDeployments() {
		known[d.Name] = true
	}

	for _, p := range r.store.ListPods() {
		orphaned := !known[p.DeploymentName]

		switch {
		case p.Status == types.PodStatusTerminating && p.NodeName == "":
			if _, err := r.store.UpdatePodStatus(p.ID, types.PodStatusTerminated, ""); err != nil {
				r.logger.Error().Err(err).Str("pod_id", p.ID).Msg("failed to complete unbound terminating pod")
			}
		case orphaned && p.Status.Terminal():
			if err := r.store.DeletePod(p.ID); err != nil {
				r.logger.Error().Err(err).Str("pod_id", p.ID).Msg("failed to delete orphaned pod")
			}
		case orphaned && p.Active():
			// Created or bound concurrently with a deployment delete.
			r.terminatePod(p)
		}
	}
}

func (r *Reconciler) publish(eventType events.EventType, pod types.Pod, message string) {
	if r.broker == nil {
		return
	}
	r.broker.Publish(&events.Event{
		Type:    eventType,
		Message: message,
		Metadata: map[string]string{
			"pod_id":     pod.ID,
			"deployment": pod.DeploymentName,
		},
	})
}
