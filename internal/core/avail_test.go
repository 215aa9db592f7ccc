package core

import (
	"testing"

	"github.com/slurm-sched/coresched/pkg/bitmap"
	"github.com/stretchr/testify/require"
)

func TestComputeMaxTasksSimple(t *testing.T) {
	// 2 sockets x 4 cores, nothing charged, 1 cpu per task.
	tasks := computeMaxTasks(2, 4, 1, []int{0, 0}, MCConstraints{}, 1)
	require.Equal(t, 8, tasks)
}

func TestComputeMaxTasksRespectsCpusPerTask(t *testing.T) {
	tasks := computeMaxTasks(2, 4, 1, []int{0, 0}, MCConstraints{}, 2)
	require.Equal(t, 4, tasks)
}

func TestComputeMaxTasksMinCoresExcludesSocket(t *testing.T) {
	// socket 0 has only 1 free core, socket 1 has 4; MinCores=2 excludes socket 0.
	tasks := computeMaxTasks(2, 4, 1, []int{3, 0}, MCConstraints{MinCores: 2}, 1)
	require.Equal(t, 4, tasks)
}

func TestComputeMaxTasksTasksPerNodeCap(t *testing.T) {
	tasks := computeMaxTasks(2, 4, 1, []int{0, 0}, MCConstraints{TasksPerNode: 3}, 1)
	require.Equal(t, 3, tasks)
}

func TestComputeMaxTasksInsufficientSockets(t *testing.T) {
	tasks := computeMaxTasks(2, 4, 1, []int{0, 0}, MCConstraints{MinSockets: 3}, 1)
	require.Equal(t, 0, tasks)
}

func TestAvailTasksFreeRowPreferred(t *testing.T) {
	node := &NodeRecord{Name: "n1", Sockets: 1, CoresPerSocket: 4, State: NodeAvailable}
	row := node.EnsurePartRow("debug", 2)
	row.AllocCores[0] = 3 // row 0 nearly full, row 1 free

	job := &Job{CRType: CRCpu}
	res := availTasks(node, row, Available, false, job)
	require.Equal(t, 1, res.FreeRow)
	require.Equal(t, 4, res.NumTasks, "placement should land on the empty row, not the nearly-full one")
}

func TestVerifyNodeStateExcludesInsufficientMemory(t *testing.T) {
	nodes := []*NodeRecord{
		{Name: "n1", RealMemory: 1000, AllocatedMemory: 900, Sockets: 1, CoresPerSocket: 1},
		{Name: "n2", RealMemory: 1000, AllocatedMemory: 0, Sockets: 1, CoresPerSocket: 1},
	}
	candidates := bitmap.New(2)
	candidates.Set(0)
	candidates.Set(1)

	job := &Job{MaxMemoryPerJob: 500}
	filtered, err := verifyNodeState(candidates, nodes, job, nil)
	require.Nil(t, err)
	require.False(t, filtered.Test(0))
	require.True(t, filtered.Test(1))
}

func TestVerifyNodeStateRequiredNodeClearedFails(t *testing.T) {
	nodes := []*NodeRecord{
		{Name: "n1", State: NodeReserved, Sockets: 1, CoresPerSocket: 1},
	}
	candidates := bitmap.New(1)
	candidates.Set(0)

	required := bitmap.New(1)
	required.Set(0)

	job := &Job{ReqNodeBitmap: required}
	_, err := verifyNodeState(candidates, nodes, job, nil)
	require.NotNil(t, err)
	require.Equal(t, MemoryBusy, err.Code)
}

func TestNodeHasAnyOccupancy(t *testing.T) {
	n := &NodeRecord{Name: "n1", Sockets: 1, CoresPerSocket: 4}
	require.False(t, nodeHasAnyOccupancy(n))
	row := n.EnsurePartRow("debug", 1)
	row.AllocCores[0] = 1
	require.True(t, nodeHasAnyOccupancy(n))
}
