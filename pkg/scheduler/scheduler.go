package scheduler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/maruhq/maru/pkg/types"
)

// Binding is one placement decision: pod onto node.
type Binding struct {
	PodID    string
	NodeName string
}

// candidate is the scheduler's working view of a node. free is decremented
// as pods are placed during a pass so later pods see the updated headroom.
type candidate struct {
	name     string
	capacity types.Resources
	used     types.Resources
	free     types.Resources
}

// Strategy selects one node from a non-empty feasible set. Implementations
// must be deterministic: identical inputs yield identical choices.
type Strategy interface {
	Name() string
	// Choose returns the index of the selected candidate. The feasible
	// slice is sorted by node name ascending.
	Choose(feasible []candidate, pod types.Pod) int
}

// Schedule assigns each pending pod to a ready node with room for it, or
// leaves it unbound when no node fits. It is a pure function of its inputs:
// the store is not touched, and the returned bindings are applied by the
// caller.
func Schedule(strategy Strategy, pending []types.Pod, nodes []types.NodeWithUsage) (bindings []Binding, unbound []types.Pod) {
	candidates := make([]candidate, 0, len(nodes))
	for _, n := range nodes {
		candidates = append(candidates, candidate{
			name:     n.Node.Name,
			capacity: n.Node.Capacity,
			used:     n.Used,
			free:     n.Free(),
		})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].name < candidates[j].name })

	pods := make([]types.Pod, len(pending))
	copy(pods, pending)
	sort.Slice(pods, func(i, j int) bool {
		if !pods[i].CreatedAt.Equal(pods[j].CreatedAt) {
			return pods[i].CreatedAt.Before(pods[j].CreatedAt)
		}
		return pods[i].ID < pods[j].ID
	})

	for _, pod := range pods {
		var feasible []candidate
		var feasibleIdx []int
		for i, c := range candidates {
			if c.free.Fits(pod.Resources) {
				feasible = append(feasible, c)
				feasibleIdx = append(feasibleIdx, i)
			}
		}
		if len(feasible) == 0 {
			unbound = append(unbound, pod)
			continue
		}

		chosen := feasibleIdx[strategy.Choose(feasible, pod)]
		bindings = append(bindings, Binding{PodID: pod.ID, NodeName: candidates[chosen].name})

		// Reserve the pod's request in the working view so a single pass
		// cannot over-commit a node.
		candidates[chosen].free = candidates[chosen].free.Subtract(pod.Resources)
		candidates[chosen].used = candidates[chosen].used.Add(pod.Resources)
	}
	return bindings, unbound
}

// FirstFit picks the feasible node with the smallest name.
type FirstFit struct{}

func (FirstFit) Name() string { return "first-fit" }

func (FirstFit) Choose(feasible []candidate, _ types.Pod) int {
	return 0
}

// BestFit packs tightly: it picks the node that would be left with the
// least total headroom after placing the pod.
type BestFit struct{}

func (BestFit) Name() string { return "best-fit" }

func (BestFit) Choose(feasible []candidate, pod types.Pod) int {
	best := 0
	bestRemaining := remainingSum(feasible[0], pod)
	for i := 1; i < len(feasible); i++ {
		if r := remainingSum(feasible[i], pod); r < bestRemaining {
			best, bestRemaining = i, r
		}
	}
	return best
}

// LeastAllocated spreads load: it picks the node that would be left with
// the most total headroom after placing the pod.
type LeastAllocated struct{}

func (LeastAllocated) Name() string { return "least-allocated" }

func (LeastAllocated) Choose(feasible []candidate, pod types.Pod) int {
	best := 0
	bestRemaining := remainingSum(feasible[0], pod)
	for i := 1; i < len(feasible); i++ {
		if r := remainingSum(feasible[i], pod); r > bestRemaining {
			best, bestRemaining = i, r
		}
	}
	return best
}

// Balanced keeps CPU and memory utilization close to each other on every
// node. Ties prefer the node with more headroom left, then the smaller
// name.
type Balanced struct{}

func (Balanced) Name() string { return "balanced" }

func (Balanced) Choose(feasible []candidate, pod types.Pod) int {
	best := 0
	bestScore := imbalance(feasible[0], pod)
	bestRemaining := remainingSum(feasible[0], pod)
	for i := 1; i < len(feasible); i++ {
		score := imbalance(feasible[i], pod)
		remaining := remainingSum(feasible[i], pod)
		if score < bestScore || (score == bestScore && remaining > bestRemaining) {
			best, bestScore, bestRemaining = i, score, remaining
		}
	}
	return best
}

// remainingSum is the candidate's total free headroom after hypothetically
// placing the pod.
func remainingSum(c candidate, pod types.Pod) uint64 {
	free := c.free.Subtract(pod.Resources)
	return free.CPUMillis + free.MemoryMB
}

// imbalance is the distance between CPU and memory utilization ratios after
// hypothetically placing the pod. A zero capacity dimension contributes
// zero utilization.
func imbalance(c candidate, pod types.Pod) float64 {
	var uCPU, uMem float64
	if c.capacity.CPUMillis > 0 {
		uCPU = float64(c.used.CPUMillis+pod.Resources.CPUMillis) / float64(c.capacity.CPUMillis)
	}
	if c.capacity.MemoryMB > 0 {
		uMem = float64(c.used.MemoryMB+pod.Resources.MemoryMB) / float64(c.capacity.MemoryMB)
	}
	if uCPU > uMem {
		return uCPU - uMem
	}
	return uMem - uCPU
}

// ParseStrategy resolves a CLI strategy name to its implementation.
func ParseStrategy(name string) (Strategy, error) {
	switch strings.ToLower(name) {
	case "first-fit", "firstfit", "first_fit":
		return FirstFit{}, nil
	case "best-fit", "bestfit", "best_fit", "bin-packing", "binpacking":
		return BestFit{}, nil
	case "least-allocated", "leastallocated", "least_allocated", "spread":
		return LeastAllocated{}, nil
	case "balanced", "balance":
		return Balanced{}, nil
	default:
		return nil, fmt.Errorf("unknown scheduling strategy %q (available: first-fit, best-fit, least-allocated, balanced)", name)
	}
}
