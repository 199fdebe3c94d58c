package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maruhq/maru/pkg/types"
)

func node(name string, capCPU, capMem, usedCPU, usedMem uint64) types.NodeWithUsage {
	return types.NodeWithUsage{
		Node: types.Node{
			Name:     name,
			Status:   types.NodeStatusReady,
			Capacity: types.Resources{CPUMillis: capCPU, MemoryMB: capMem},
		},
		Used: types.Resources{CPUMillis: usedCPU, MemoryMB: usedMem},
	}
}

func pod(id string, cpu, mem uint64, createdAt time.Time) types.Pod {
	return types.Pod{
		ID:        id,
		Status:    types.PodStatusPending,
		Resources: types.Resources{CPUMillis: cpu, MemoryMB: mem},
		CreatedAt: createdAt,
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		input string
		want  string
		err   bool
	}{
		{"first-fit", "first-fit", false},
		{"FirstFit", "first-fit", false},
		{"best-fit", "best-fit", false},
		{"bin-packing", "best-fit", false},
		{"least-allocated", "least-allocated", false},
		{"spread", "least-allocated", false},
		{"balanced", "balanced", false},
		{"round-robin", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			strategy, err := ParseStrategy(tt.input)
			if tt.err {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, strategy.Name())
		})
	}
}

func TestScheduleNoNodes(t *testing.T) {
	now := time.Now()
	bindings, unbound := Schedule(FirstFit{}, []types.Pod{pod("p1", 100, 128, now)}, nil)
	assert.Empty(t, bindings)
	require.Len(t, unbound, 1)
	assert.Equal(t, "p1", unbound[0].ID)
}

func TestScheduleInfeasiblePodStaysPending(t *testing.T) {
	now := time.Now()
	nodes := []types.NodeWithUsage{node("a", 4000, 8192, 0, 0)}

	bindings, unbound := Schedule(FirstFit{}, []types.Pod{pod("huge", 10000, 0, now)}, nodes)
	assert.Empty(t, bindings)
	require.Len(t, unbound, 1)
}

func TestScheduleZeroRequestFitsAnywhere(t *testing.T) {
	now := time.Now()
	// Node is fully committed but a zero-request pod still fits.
	nodes := []types.NodeWithUsage{node("a", 1000, 1024, 1000, 1024)}

	bindings, unbound := Schedule(FirstFit{}, []types.Pod{pod("p1", 0, 0, now)}, nodes)
	require.Len(t, bindings, 1)
	assert.Empty(t, unbound)
	assert.Equal(t, "a", bindings[0].NodeName)
}

func TestSchedulePodOrderIsDeterministic(t *testing.T) {
	now := time.Now()
	nodes := []types.NodeWithUsage{node("a", 1000, 1024, 0, 0)}

	// Only one pod fits; the oldest must win, with ID as the tiebreak.
	pods := []types.Pod{
		pod("z-newer", 1000, 0, now.Add(time.Second)),
		pod("b-older", 1000, 0, now),
		pod("a-older", 1000, 0, now),
	}

	bindings, unbound := Schedule(FirstFit{}, pods, nodes)
	require.Len(t, bindings, 1)
	assert.Equal(t, "a-older", bindings[0].PodID)
	assert.Len(t, unbound, 2)
}

func TestFirstFitPicksSmallestName(t *testing.T) {
	now := time.Now()
	nodes := []types.NodeWithUsage{
		node("charlie", 4000, 8192, 0, 0),
		node("alpha", 4000, 8192, 0, 0),
		node("bravo", 4000, 8192, 0, 0),
	}

	bindings, _ := Schedule(FirstFit{}, []types.Pod{pod("p1", 100, 128, now)}, nodes)
	require.Len(t, bindings, 1)
	assert.Equal(t, "alpha", bindings[0].NodeName)
}

func TestBestFitPacksTightest(t *testing.T) {
	now := time.Now()
	nodes := []types.NodeWithUsage{
		node("roomy", 8000, 8192, 0, 0),
		node("snug", 1000, 1024, 0, 0),
	}

	bindings, _ := Schedule(BestFit{}, []types.Pod{pod("p1", 500, 512, now)}, nodes)
	require.Len(t, bindings, 1)
	assert.Equal(t, "snug", bindings[0].NodeName)
}

func TestBestFitTieBreaksBySmallestName(t *testing.T) {
	now := time.Now()
	nodes := []types.NodeWithUsage{
		node("b", 1000, 1024, 0, 0),
		node("a", 1000, 1024, 0, 0),
	}

	bindings, _ := Schedule(BestFit{}, []types.Pod{pod("p1", 500, 512, now)}, nodes)
	require.Len(t, bindings, 1)
	assert.Equal(t, "a", bindings[0].NodeName)
}

func TestLeastAllocatedSpreads(t *testing.T) {
	now := time.Now()
	nodes := []types.NodeWithUsage{
		node("busy", 4000, 4096, 3000, 3072),
		node("idle", 4000, 4096, 0, 0),
	}

	bindings, _ := Schedule(LeastAllocated{}, []types.Pod{pod("p1", 500, 512, now)}, nodes)
	require.Len(t, bindings, 1)
	assert.Equal(t, "idle", bindings[0].NodeName)
}

func TestBalancedMinimizesImbalance(t *testing.T) {
	now := time.Now()
	// Placing a cpu-heavy pod on "skewed" would push its cpu utilization
	// far past memory; "even" ends up balanced.
	nodes := []types.NodeWithUsage{
		node("skewed", 2000, 8192, 1000, 0),
		node("even", 4000, 4096, 0, 0),
	}

	bindings, _ := Schedule(Balanced{}, []types.Pod{pod("p1", 1000, 1024, now)}, nodes)
	require.Len(t, bindings, 1)
	assert.Equal(t, "even", bindings[0].NodeName)
}

func TestBalancedZeroCapacityDimension(t *testing.T) {
	now := time.Now()
	nodes := []types.NodeWithUsage{node("cpu-only", 4000, 0, 0, 0)}

	// Memory capacity of zero contributes zero utilization, not a panic.
	bindings, _ := Schedule(Balanced{}, []types.Pod{pod("p1", 1000, 0, now)}, nodes)
	require.Len(t, bindings, 1)
}

func TestInPassReservationPreventsOvercommit(t *testing.T) {
	now := time.Now()
	// Node holds exactly two of these pods; a naive pass would place all
	// four against the same initial snapshot.
	nodes := []types.NodeWithUsage{node("a", 2000, 2048, 0, 0)}

	var pods []types.Pod
	for _, id := range []string{"p1", "p2", "p3", "p4"} {
		pods = append(pods, pod(id, 1000, 1024, now))
	}

	for _, strategy := range []Strategy{FirstFit{}, BestFit{}, LeastAllocated{}, Balanced{}} {
		t.Run(strategy.Name(), func(t *testing.T) {
			bindings, unbound := Schedule(strategy, pods, nodes)
			assert.Len(t, bindings, 2)
			assert.Len(t, unbound, 2)
		})
	}
}

func TestResourceDrivenSpread(t *testing.T) {
	now := time.Now()
	// Five one-core pods over a 4-core and a 2-core node: every strategy
	// must land at most 4 on A and at most 2 on B, with all 5 placed.
	nodes := []types.NodeWithUsage{
		node("a", 4000, 0, 0, 0),
		node("b", 2000, 0, 0, 0),
	}

	var pods []types.Pod
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5"} {
		pods = append(pods, pod(id, 1000, 0, now))
	}

	for _, strategy := range []Strategy{FirstFit{}, BestFit{}, LeastAllocated{}, Balanced{}} {
		t.Run(strategy.Name(), func(t *testing.T) {
			bindings, unbound := Schedule(strategy, pods, nodes)
			require.Len(t, bindings, 5)
			assert.Empty(t, unbound)

			perNode := map[string]int{}
			for _, b := range bindings {
				perNode[b.NodeName]++
			}
			assert.LessOrEqual(t, perNode["a"], 4)
			assert.LessOrEqual(t, perNode["b"], 2)
			assert.Positive(t, perNode["a"])
			assert.Positive(t, perNode["b"])
		})
	}
}

func TestStrategyDeterminism(t *testing.T) {
	now := time.Now()
	nodes := []types.NodeWithUsage{
		node("a", 4000, 4096, 500, 1024),
		node("b", 2000, 8192, 0, 2048),
		node("c", 6000, 2048, 1000, 0),
	}
	var pods []types.Pod
	for i, id := range []string{"p1", "p2", "p3", "p4", "p5", "p6"} {
		pods = append(pods, pod(id, uint64(300*(i+1)), uint64(256*(i%3)), now.Add(time.Duration(i)*time.Millisecond)))
	}

	for _, strategy := range []Strategy{FirstFit{}, BestFit{}, LeastAllocated{}, Balanced{}} {
		t.Run(strategy.Name(), func(t *testing.T) {
			first, _ := Schedule(strategy, pods, nodes)
			for i := 0; i < 5; i++ {
				again, _ := Schedule(strategy, pods, nodes)
				assert.Equal(t, first, again)
			}
		})
	}
}
